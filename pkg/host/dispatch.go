package host

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Call is one inbound contract invocation as seen by the harness.
type Call struct {
	Method string
	Ctx    TxContext
	// Value is the chain-native amount attached to the call, zero for
	// plain invocations.
	Value uint64
	Args  json.RawMessage
}

// Dispatcher routes calls into a contract, enforcing the method table:
// unknown methods are rejected, value may only ride on ValueAccepting
// methods, and mutating calls are serialized (the execution model requires
// one writer at a time; read-only queries run unlocked).
type Dispatcher struct {
	contract Contract
	kinds    map[string]MethodKind
	mu       sync.Mutex
	log      *zap.SugaredLogger
}

func NewDispatcher(c Contract, logger *zap.SugaredLogger) *Dispatcher {
	kinds := make(map[string]MethodKind)
	for _, m := range c.Methods() {
		kinds[m.Name] = m.Kind
	}
	return &Dispatcher{contract: c, kinds: kinds, log: logger}
}

// KindOf looks up a method's classification.
func (d *Dispatcher) KindOf(method string) (MethodKind, bool) {
	k, ok := d.kinds[method]
	return k, ok
}

// Invoke runs one call to completion. Mutating and value-accepting calls
// hold the writer lock for their full duration, so a Deal is processed
// to completion before the next call is considered.
func (d *Dispatcher) Invoke(call Call) (any, error) {
	kind, ok := d.kinds[call.Method]
	if !ok {
		return nil, fmt.Errorf("unknown method %q", call.Method)
	}
	if call.Value > 0 && kind != ValueAccepting {
		return nil, fmt.Errorf("method %q is %s and rejects attached value", call.Method, kind)
	}

	if kind != ReadOnly {
		d.mu.Lock()
		defer d.mu.Unlock()
	}

	out, err := d.contract.Invoke(call.Ctx, call.Method, call.Args)
	if err != nil {
		if d.log != nil {
			d.log.Infow("call_rejected",
				"method", call.Method,
				"sender", call.Ctx.SenderAddress,
				"tx", call.Ctx.TxID,
				"err", err)
		}
		return nil, err
	}
	return out, nil
}
