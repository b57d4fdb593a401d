// Package exchange implements the asch-ex exchange contract: a signed-order
// matching and settlement core over a per-user, per-asset balance ledger.
// The host supplies every call's TxContext explicitly; the contract keeps no
// ambient caller state.
package exchange

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/aschplatform/aschex/pkg/app/core/ledger"
	"github.com/aschplatform/aschex/pkg/app/core/order"
	"github.com/aschplatform/aschex/pkg/host"
)

// Name is the contract identity returned by the getName probe.
const Name = "asch-ex"

// FeeRate is the protocol fee divisor: fee = quoteTotal / FeeRate (0.1%),
// taken from the quote flow of ask-taker settlements.
const FeeRate = 1000

// Contract is the asch-ex exchange. All mutating entry points serialize on
// one mutex: a Deal runs to completion or aborts before the next call.
type Contract struct {
	mu    sync.Mutex
	state *ledger.Store
	rail  host.TransferRail
	log   *zap.SugaredLogger
}

func New(state *ledger.Store, rail host.TransferRail, logger *zap.SugaredLogger) *Contract {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if rail == nil {
		rail = host.NopRail{}
	}
	return &Contract{state: state, rail: rail, log: logger}
}

// CancelParams invalidates orders either by raising the per-address salt
// watermark (all orders with salt <= watermark become unfillable) or by an
// explicit set of order IDs owned by the sender.
type CancelParams struct {
	Salt uint32   `json:"salt"`
	IDs  []string `json:"ids"`
}

// Deposit credits value that arrived over the external rail. Value-
// accepting; the host has already moved the asset into the contract.
func (c *Contract) Deposit(ctx host.TxContext, amount uint64, asset string) error {
	if amount == 0 {
		return fmt.Errorf("%w: deposit amount must be greater than 0", ErrInvalidAmount)
	}
	if asset == "" {
		return fmt.Errorf("%w: empty asset symbol", ErrInvalidAsset)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.state.Credit(ctx.SenderAddress, asset, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrArithmetic, err)
	}
	c.log.Infow("deposit", "address", ctx.SenderAddress, "asset", asset, "amount", amount, "tx", ctx.TxID)
	return nil
}

// Withdraw moves value back out over the external rail, then debits the
// ledger. Rejects non-positive amounts and balances that cannot cover the
// withdrawal; withdrawing the full balance is allowed.
func (c *Contract) Withdraw(ctx host.TxContext, amount uint64, asset string) error {
	if amount == 0 {
		return fmt.Errorf("%w: withdraw amount must be greater than 0", ErrInvalidAmount)
	}
	if asset == "" {
		return fmt.Errorf("%w: empty asset symbol", ErrInvalidAsset)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if bal := c.state.Balance(ctx.SenderAddress, asset); bal < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, bal, amount)
	}
	if err := c.rail.TransferOut(ctx, ctx.SenderAddress, amount, asset); err != nil {
		return fmt.Errorf("transfer rail: %w", err)
	}
	if err := c.state.Debit(ctx.SenderAddress, asset, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	c.log.Infow("withdraw", "address", ctx.SenderAddress, "asset", asset, "amount", amount, "tx", ctx.TxID)
	return nil
}

// Cancel invalidates the sender's orders. A positive salt must strictly
// exceed the current watermark; otherwise a non-empty ID set is required.
func (c *Contract) Cancel(ctx host.TxContext, params CancelParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if params.Salt > 0 {
		last := c.state.SaltWatermark(ctx.SenderAddress)
		if params.Salt <= last {
			return fmt.Errorf("%w: salt %d not above watermark %d", ErrInvalidSalt, params.Salt, last)
		}
		if err := c.state.SetSaltWatermark(ctx.SenderAddress, params.Salt); err != nil {
			return fmt.Errorf("persist salt watermark: %w", err)
		}
		c.log.Infow("cancel_salt", "address", ctx.SenderAddress, "salt", params.Salt)
		return nil
	}

	if len(params.IDs) == 0 {
		return fmt.Errorf("%w: either salt or ids must be given", ErrEmptyCancel)
	}
	if err := c.state.MarkCanceled(ctx.SenderAddress, params.IDs); err != nil {
		return fmt.Errorf("persist cancellations: %w", err)
	}
	c.log.Infow("cancel_ids", "address", ctx.SenderAddress, "count", len(params.IDs))
	return nil
}

// Deal validates and settles one proposed deal. Validation is all-or-
// nothing across every participating order; settlement stages all ledger
// moves in a transaction and commits them in a single batch, so a failed
// deal leaves zero observable mutation.
func (c *Contract) Deal(ctx host.TxContext, d order.Deal) (order.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validateDeal(ctx, &d); err != nil {
		return order.Result{}, err
	}

	tx := c.state.Begin()
	res, err := c.match(tx, &d)
	if err != nil {
		return order.Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return order.Result{}, fmt.Errorf("commit deal: %w", err)
	}

	c.log.Infow("deal_settled",
		"taker", d.TakerOrder.ID,
		"makers", len(d.MakerOrders),
		"pair", d.TakerOrder.Pair,
		"side", d.TakerOrder.Side.String(),
		"totalBase", res.TotalDealBase,
		"totalQuote", res.TotalDealQuote,
		"tx", ctx.TxID)
	return res, nil
}

// UserBalance returns the ledger balance; zero for unknown keys.
func (c *Contract) UserBalance(address, asset string) uint64 {
	return c.state.Balance(address, asset)
}

// FeePool returns the accrued protocol fee for an asset.
func (c *Contract) FeePool(asset string) uint64 {
	return c.state.FeePool(asset)
}

// Filled returns the cumulative filled amount recorded for an order ID.
func (c *Contract) Filled(orderID string) uint64 {
	return c.state.Filled(orderID)
}

// Name implements the identity probe.
func (c *Contract) Name() string { return Name }

// Methods is the contract's method table. The host dispatcher enforces the
// kinds; the contract itself never inspects attached value.
func (c *Contract) Methods() []host.MethodInfo {
	return []host.MethodInfo{
		{Name: "deposit", Kind: host.ValueAccepting},
		{Name: "withdraw", Kind: host.Mutating},
		{Name: "cancel", Kind: host.Mutating},
		{Name: "deal", Kind: host.Mutating},
		{Name: "getUserBalance", Kind: host.ReadOnly},
		{Name: "getFeePool", Kind: host.ReadOnly},
		{Name: "getFilled", Kind: host.ReadOnly},
		{Name: "getName", Kind: host.ReadOnly},
	}
}

type amountArgs struct {
	Amount uint64 `json:"amount,string"`
	Asset  string `json:"asset"`
}

type balanceArgs struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
}

type assetArgs struct {
	Asset string `json:"asset"`
}

type filledArgs struct {
	OrderID string `json:"orderId"`
}

// Invoke routes a named call with JSON arguments to the typed methods.
func (c *Contract) Invoke(ctx host.TxContext, method string, args json.RawMessage) (any, error) {
	switch method {
	case "deposit":
		var a amountArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		return nil, c.Deposit(ctx, a.Amount, a.Asset)

	case "withdraw":
		var a amountArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		return nil, c.Withdraw(ctx, a.Amount, a.Asset)

	case "cancel":
		var p CancelParams
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmptyCancel, err)
		}
		return nil, c.Cancel(ctx, p)

	case "deal":
		var d order.Deal
		if err := json.Unmarshal(args, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOrder, err)
		}
		return c.Deal(ctx, d)

	case "getUserBalance":
		var a balanceArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
		}
		return c.UserBalance(a.Address, a.Asset), nil

	case "getFeePool":
		var a assetArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
		}
		return c.FeePool(a.Asset), nil

	case "getFilled":
		var a filledArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOrder, err)
		}
		return c.Filled(a.OrderID), nil

	case "getName":
		return c.Name(), nil

	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

var _ host.Contract = (*Contract)(nil)
