package exchange

import (
	"fmt"

	"github.com/aschplatform/aschex/pkg/app/core/ledger"
	"github.com/aschplatform/aschex/pkg/app/core/order"
)

// match runs the matching engine for a validated deal against a ledger
// transaction. Nothing here touches committed state; the caller commits on
// success and discards the transaction on any error.
func (c *Contract) match(tx *ledger.Tx, d *order.Deal) (order.Result, error) {
	taker := &d.TakerOrder

	base, quote, err := order.ParsePair(taker.Pair)
	if err != nil {
		return order.Result{}, fmt.Errorf("%w: %v", ErrMalformedOrder, err)
	}

	// Tradable ceiling: the caller's cap bounded by what the contract has
	// not already filled for this order identifier.
	takeLimit := d.TakeAmount
	if rem := remainingByLedger(tx, taker); rem < takeLimit {
		takeLimit = rem
	}
	if takeLimit == 0 {
		return order.Result{}, fmt.Errorf("%w: taker order all filled", ErrOrderExhausted)
	}

	if taker.Side == order.Ask {
		return c.matchAsk(tx, d, base, quote, takeLimit)
	}
	return c.matchBid(tx, d, base, quote, takeLimit)
}

// remainingByLedger is the order's amount minus the contract-tracked fill.
func remainingByLedger(tx *ledger.Tx, o *order.Order) uint64 {
	filled := tx.Filled(o.ID)
	if filled >= o.Amount {
		return 0
	}
	return o.Amount - filled
}

// makerCap computes how much of maker mo may fill in this deal: its
// ledger-remaining capacity bounded by the signed filledAmount field, or by
// the caller's partialAmount when mo is the last maker and partialAmount is
// positive.
func makerCap(tx *ledger.Tx, d *order.Deal, i int) uint64 {
	mo := &d.MakerOrders[i]
	fill := remainingByLedger(tx, mo)
	if i == len(d.MakerOrders)-1 && d.PartialAmount > 0 {
		if d.PartialAmount < fill {
			fill = d.PartialAmount
		}
		return fill
	}
	if declared := mo.Remaining(); declared < fill {
		fill = declared
	}
	return fill
}

// matchAsk settles a selling taker against buying makers. The taker
// delivers base and receives quote less the protocol fee; each maker
// delivers quote and receives base.
func (c *Contract) matchAsk(tx *ledger.Tx, d *order.Deal, base, quote string, takeLimit uint64) (order.Result, error) {
	taker := &d.TakerOrder

	if bal := tx.Balance(taker.Address, base); bal < takeLimit {
		return order.Result{}, fmt.Errorf("%w: taker has %d %s, needs %d", ErrInsufficientFunds, bal, base, takeLimit)
	}

	var totalBase, totalQuote uint64
	for i := range d.MakerOrders {
		mo := &d.MakerOrders[i]

		if mo.Side != order.Bid {
			return order.Result{}, fmt.Errorf("%w: maker %s is not a bid", ErrSideMismatch, mo.ID)
		}
		if mo.Pair != taker.Pair {
			return order.Result{}, fmt.Errorf("%w: maker pair %q, taker pair %q", ErrPairMismatch, mo.Pair, taker.Pair)
		}
		// The maker's bid must be at least the taker's ask, compared as
		// exact rationals.
		cmp, err := order.ComparePrice(mo.PriceNume, mo.PriceDeno, taker.PriceNume, taker.PriceDeno)
		if err != nil {
			return order.Result{}, fmt.Errorf("%w: %v", ErrArithmetic, err)
		}
		if cmp < 0 {
			return order.Result{}, fmt.Errorf("%w: maker bid below taker ask", ErrPriceMismatch)
		}

		fill := makerCap(tx, d, i)
		if fill == 0 {
			return order.Result{}, fmt.Errorf("%w: maker order %s all filled", ErrOrderExhausted, mo.ID)
		}

		cost, err := order.QuoteCost(fill, mo.PriceNume, mo.PriceDeno)
		if err != nil {
			return order.Result{}, fmt.Errorf("%w: maker cost: %v", ErrArithmetic, err)
		}
		if bal := tx.Balance(mo.Address, quote); bal < cost {
			return order.Result{}, fmt.Errorf("%w: maker %s has %d %s, needs %d", ErrInsufficientFunds, mo.ID, bal, quote, cost)
		}

		newBase, err := order.CheckedAdd(totalBase, fill)
		if err != nil {
			return order.Result{}, fmt.Errorf("%w: fill total: %v", ErrArithmetic, err)
		}
		// Early stop: a maker whose full cap would exceed the ceiling
		// ends the loop. The excess is not clipped to the remaining
		// headroom; that is the engine's termination rule, not an error.
		if newBase > takeLimit {
			break
		}

		if err := tx.Credit(mo.Address, base, fill); err != nil {
			return order.Result{}, fmt.Errorf("%w: %v", ErrArithmetic, err)
		}
		if err := tx.Debit(mo.Address, quote, cost); err != nil {
			return order.Result{}, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		if err := tx.AddFill(mo.ID, fill); err != nil {
			return order.Result{}, fmt.Errorf("%w: %v", ErrArithmetic, err)
		}

		totalBase = newBase
		totalQuote, err = order.CheckedAdd(totalQuote, cost)
		if err != nil {
			return order.Result{}, fmt.Errorf("%w: quote total: %v", ErrArithmetic, err)
		}
	}

	fee := totalQuote / FeeRate
	if err := tx.AccrueFee(quote, fee); err != nil {
		return order.Result{}, fmt.Errorf("%w: %v", ErrArithmetic, err)
	}
	if err := tx.Credit(taker.Address, quote, totalQuote-fee); err != nil {
		return order.Result{}, fmt.Errorf("%w: %v", ErrArithmetic, err)
	}
	if err := tx.Debit(taker.Address, base, totalBase); err != nil {
		return order.Result{}, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	if err := tx.AddFill(taker.ID, totalBase); err != nil {
		return order.Result{}, fmt.Errorf("%w: %v", ErrArithmetic, err)
	}

	return order.Result{TotalDealQuote: totalQuote, TotalDealBase: totalBase}, nil
}

// matchBid settles a buying taker against selling makers: base and quote
// roles swap relative to matchAsk. No protocol fee accrues on this path.
func (c *Contract) matchBid(tx *ledger.Tx, d *order.Deal, base, quote string, takeLimit uint64) (order.Result, error) {
	taker := &d.TakerOrder

	// The taker delivers quote for the whole ceiling at its own limit
	// price; makers can only be cheaper.
	takeMoney, err := order.QuoteCost(takeLimit, taker.PriceNume, taker.PriceDeno)
	if err != nil {
		return order.Result{}, fmt.Errorf("%w: taker cost: %v", ErrArithmetic, err)
	}
	if bal := tx.Balance(taker.Address, quote); bal < takeMoney {
		return order.Result{}, fmt.Errorf("%w: taker has %d %s, needs %d", ErrInsufficientFunds, bal, quote, takeMoney)
	}

	var totalBase, totalQuote uint64
	for i := range d.MakerOrders {
		mo := &d.MakerOrders[i]

		if mo.Side != order.Ask {
			return order.Result{}, fmt.Errorf("%w: maker %s is not an ask", ErrSideMismatch, mo.ID)
		}
		if mo.Pair != taker.Pair {
			return order.Result{}, fmt.Errorf("%w: maker pair %q, taker pair %q", ErrPairMismatch, mo.Pair, taker.Pair)
		}
		// The maker's ask must not exceed the taker's bid.
		cmp, err := order.ComparePrice(mo.PriceNume, mo.PriceDeno, taker.PriceNume, taker.PriceDeno)
		if err != nil {
			return order.Result{}, fmt.Errorf("%w: %v", ErrArithmetic, err)
		}
		if cmp > 0 {
			return order.Result{}, fmt.Errorf("%w: maker ask above taker bid", ErrPriceMismatch)
		}

		fill := makerCap(tx, d, i)
		if fill == 0 {
			return order.Result{}, fmt.Errorf("%w: maker order %s all filled", ErrOrderExhausted, mo.ID)
		}

		if bal := tx.Balance(mo.Address, base); bal < fill {
			return order.Result{}, fmt.Errorf("%w: maker %s has %d %s, needs %d", ErrInsufficientFunds, mo.ID, bal, base, fill)
		}
		cost, err := order.QuoteCost(fill, mo.PriceNume, mo.PriceDeno)
		if err != nil {
			return order.Result{}, fmt.Errorf("%w: maker cost: %v", ErrArithmetic, err)
		}

		newBase, err := order.CheckedAdd(totalBase, fill)
		if err != nil {
			return order.Result{}, fmt.Errorf("%w: fill total: %v", ErrArithmetic, err)
		}
		if newBase > takeLimit {
			break
		}

		if err := tx.Credit(mo.Address, quote, cost); err != nil {
			return order.Result{}, fmt.Errorf("%w: %v", ErrArithmetic, err)
		}
		if err := tx.Debit(mo.Address, base, fill); err != nil {
			return order.Result{}, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		if err := tx.AddFill(mo.ID, fill); err != nil {
			return order.Result{}, fmt.Errorf("%w: %v", ErrArithmetic, err)
		}

		totalBase = newBase
		totalQuote, err = order.CheckedAdd(totalQuote, cost)
		if err != nil {
			return order.Result{}, fmt.Errorf("%w: quote total: %v", ErrArithmetic, err)
		}
	}

	if err := tx.Credit(taker.Address, base, totalBase); err != nil {
		return order.Result{}, fmt.Errorf("%w: %v", ErrArithmetic, err)
	}
	if err := tx.Debit(taker.Address, quote, totalQuote); err != nil {
		return order.Result{}, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	if err := tx.AddFill(taker.ID, totalBase); err != nil {
		return order.Result{}, fmt.Errorf("%w: %v", ErrArithmetic, err)
	}

	return order.Result{TotalDealQuote: totalQuote, TotalDealBase: totalBase}, nil
}
