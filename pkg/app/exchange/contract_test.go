package exchange

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/aschplatform/aschex/pkg/app/core/ledger"
	"github.com/aschplatform/aschex/pkg/host"
	"github.com/aschplatform/aschex/pkg/storage"
)

func TestDepositWithdrawLifecycle(t *testing.T) {
	c, _ := newTestContract()
	ctx := host.TxContext{SenderAddress: "Aalice", TxID: "tx-d1"}

	if err := c.Deposit(ctx, 100, "XAS"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := c.UserBalance("Aalice", "XAS"); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}

	if err := c.Withdraw(ctx, 60, "XAS"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := c.UserBalance("Aalice", "XAS"); got != 40 {
		t.Errorf("balance = %d, want 40", got)
	}

	err := c.Withdraw(ctx, 41, "XAS")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("over-withdraw error = %v, want ErrInsufficientFunds", err)
	}
	if got := c.UserBalance("Aalice", "XAS"); got != 40 {
		t.Errorf("failed withdraw mutated balance: %d", got)
	}

	// Withdrawing the entire remaining balance is fine.
	if err := c.Withdraw(ctx, 40, "XAS"); err != nil {
		t.Fatalf("full withdraw: %v", err)
	}
	if got := c.UserBalance("Aalice", "XAS"); got != 0 {
		t.Errorf("balance = %d after full withdraw, want 0", got)
	}
}

func TestDepositValidation(t *testing.T) {
	c, _ := newTestContract()
	ctx := host.TxContext{SenderAddress: "Aalice"}

	if err := c.Deposit(ctx, 0, "XAS"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero deposit error = %v, want ErrInvalidAmount", err)
	}
	if err := c.Deposit(ctx, 10, ""); !errors.Is(err, ErrInvalidAsset) {
		t.Errorf("empty asset error = %v, want ErrInvalidAsset", err)
	}
	if err := c.Withdraw(ctx, 0, "XAS"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero withdraw error = %v, want ErrInvalidAmount", err)
	}
}

type failingRail struct{ err error }

func (r failingRail) TransferOut(host.TxContext, string, uint64, string) error { return r.err }

func TestWithdrawRailFailureKeepsBalance(t *testing.T) {
	railErr := errors.New("rail down")
	c := New(ledger.NewStore(storage.NewMemStore()), failingRail{err: railErr}, nil)
	ctx := host.TxContext{SenderAddress: "Aalice"}

	if err := c.Deposit(ctx, 100, "XAS"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := c.Withdraw(ctx, 50, "XAS"); !errors.Is(err, railErr) {
		t.Fatalf("withdraw error = %v, want rail error", err)
	}
	// The debit never ran.
	if got := c.UserBalance("Aalice", "XAS"); got != 100 {
		t.Errorf("balance = %d after failed rail, want 100", got)
	}
}

func TestCancelSaltWatermark(t *testing.T) {
	c, _ := newTestContract()
	ctx := host.TxContext{SenderAddress: "Aalice"}

	if err := c.Cancel(ctx, CancelParams{Salt: 5}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// The watermark only moves forward.
	if err := c.Cancel(ctx, CancelParams{Salt: 5}); !errors.Is(err, ErrInvalidSalt) {
		t.Errorf("equal salt error = %v, want ErrInvalidSalt", err)
	}
	if err := c.Cancel(ctx, CancelParams{Salt: 3}); !errors.Is(err, ErrInvalidSalt) {
		t.Errorf("lower salt error = %v, want ErrInvalidSalt", err)
	}
	if err := c.Cancel(ctx, CancelParams{Salt: 9}); err != nil {
		t.Fatalf("raise watermark: %v", err)
	}

	// Another address has an independent watermark.
	other := host.TxContext{SenderAddress: "Abob"}
	if err := c.Cancel(other, CancelParams{Salt: 2}); err != nil {
		t.Errorf("other-address cancel: %v", err)
	}
}

func TestCancelRequiresSaltOrIDs(t *testing.T) {
	c, _ := newTestContract()
	ctx := host.TxContext{SenderAddress: "Aalice"}

	if err := c.Cancel(ctx, CancelParams{}); !errors.Is(err, ErrEmptyCancel) {
		t.Errorf("empty cancel error = %v, want ErrEmptyCancel", err)
	}
	if err := c.Cancel(ctx, CancelParams{IDs: []string{"o1", "o2"}}); err != nil {
		t.Fatalf("id cancel: %v", err)
	}
}

func TestInvokeRoutesMethods(t *testing.T) {
	c, _ := newTestContract()
	ctx := host.TxContext{SenderAddress: "Aalice"}

	if _, err := c.Invoke(ctx, "deposit", json.RawMessage(`{"amount":"250","asset":"USDT"}`)); err != nil {
		t.Fatalf("invoke deposit: %v", err)
	}

	got, err := c.Invoke(ctx, "getUserBalance", json.RawMessage(`{"address":"Aalice","asset":"USDT"}`))
	if err != nil {
		t.Fatalf("invoke getUserBalance: %v", err)
	}
	if got.(uint64) != 250 {
		t.Errorf("balance = %v, want 250", got)
	}

	name, err := c.Invoke(ctx, "getName", nil)
	if err != nil {
		t.Fatalf("invoke getName: %v", err)
	}
	if name.(string) != Name {
		t.Errorf("name = %v, want %q", name, Name)
	}

	if _, err := c.Invoke(ctx, "teleport", json.RawMessage(`{}`)); err == nil {
		t.Error("unknown method did not error")
	}
}

func TestMethodTable(t *testing.T) {
	c, _ := newTestContract()

	want := map[string]host.MethodKind{
		"deposit":        host.ValueAccepting,
		"withdraw":       host.Mutating,
		"cancel":         host.Mutating,
		"deal":           host.Mutating,
		"getUserBalance": host.ReadOnly,
		"getFeePool":     host.ReadOnly,
		"getFilled":      host.ReadOnly,
		"getName":        host.ReadOnly,
	}
	methods := c.Methods()
	if len(methods) != len(want) {
		t.Fatalf("method table has %d entries, want %d", len(methods), len(want))
	}
	for _, m := range methods {
		kind, ok := want[m.Name]
		if !ok {
			t.Errorf("unexpected method %q", m.Name)
			continue
		}
		if m.Kind != kind {
			t.Errorf("method %q kind = %v, want %v", m.Name, m.Kind, kind)
		}
	}
}
