// Package host models the execution environment a contract runs in: the
// per-call transaction context, the external value-transfer rail, and the
// dispatch harness that enforces method classification. The contract never
// inherits host state; everything arrives as explicit arguments.
package host

import "encoding/json"

// TxContext carries the host-supplied facts about the current call. It is
// constructed per call and passed explicitly; contracts must not retain it.
type TxContext struct {
	SenderAddress string `json:"senderAddress"`
	BlockHeight   int64  `json:"blockHeight"`
	BlockTime     int64  `json:"blockTime"` // Unix seconds
	TxID          string `json:"txId"`
}

// MethodKind classifies an exposed contract method. The dispatcher checks
// the classification; contracts do not self-police.
type MethodKind uint8

const (
	// ReadOnly methods never mutate state and accept no value.
	ReadOnly MethodKind = iota
	// Mutating methods mutate state but reject attached value.
	Mutating
	// ValueAccepting methods mutate state and may carry attached value.
	ValueAccepting
)

func (k MethodKind) String() string {
	switch k {
	case ReadOnly:
		return "readonly"
	case Mutating:
		return "mutating"
	case ValueAccepting:
		return "value-accepting"
	default:
		return "unknown"
	}
}

// MethodInfo is one entry of a contract's method table.
type MethodInfo struct {
	Name string
	Kind MethodKind
}

// Contract is the capability surface a hosted contract exposes.
type Contract interface {
	// Name is the contract's identity probe.
	Name() string

	// Methods returns the full method table.
	Methods() []MethodInfo

	// Invoke runs a named method with JSON-encoded arguments.
	Invoke(ctx TxContext, method string, args json.RawMessage) (any, error)
}

// TransferRail is the external payment rail that moves the chain-native
// asset across the contract boundary. Deposits arrive value-attached via
// the host; withdrawals trigger TransferOut. Internal matching transfers
// never touch the rail.
type TransferRail interface {
	TransferOut(ctx TxContext, to string, amount uint64, asset string) error
}

// NopRail is a rail that accepts every transfer. Used by dev nodes and
// tests that do not model the outer chain.
type NopRail struct{}

func (NopRail) TransferOut(TxContext, string, uint64, string) error { return nil }
