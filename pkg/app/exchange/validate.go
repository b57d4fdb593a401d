package exchange

import (
	"fmt"

	"github.com/aschplatform/aschex/pkg/app/core/order"
	"github.com/aschplatform/aschex/pkg/crypto"
	"github.com/aschplatform/aschex/pkg/host"
)

const (
	pubKeySize    = 32
	signatureSize = 64
)

// validateDeal authenticates every participating order before any balance
// is touched. If any participant fails, the whole deal is rejected.
func (c *Contract) validateDeal(ctx host.TxContext, d *order.Deal) error {
	if err := c.validateOrder(ctx, &d.TakerOrder); err != nil {
		return fmt.Errorf("taker order: %w", err)
	}
	for i := range d.MakerOrders {
		if err := c.validateOrder(ctx, &d.MakerOrders[i]); err != nil {
			return fmt.Errorf("maker order %d: %w", i, err)
		}
	}
	return nil
}

// validateOrder checks one order: structural sanity, contract binding,
// address/key binding, signature over the canonical digest, expiry, and
// cancellation state. On success o.ID holds the content-addressed
// identifier, recomputed from the canonical bytes.
func (c *Contract) validateOrder(ctx host.TxContext, o *order.Order) error {
	if o.Contract != Name {
		return fmt.Errorf("%w: order addressed to %q", ErrWrongContract, o.Contract)
	}
	if o.Amount == 0 {
		return fmt.Errorf("%w: zero amount", ErrMalformedOrder)
	}
	if o.FilledAmount > o.Amount {
		return fmt.Errorf("%w: filledAmount %d exceeds amount %d", ErrMalformedOrder, o.FilledAmount, o.Amount)
	}
	if o.PriceNume == 0 {
		return fmt.Errorf("%w: zero price numerator", ErrMalformedOrder)
	}
	if o.PriceDeno > order.MaxPriceDeno {
		return fmt.Errorf("%w: price denominator exponent %d", ErrMalformedOrder, o.PriceDeno)
	}
	if o.Side != order.Bid && o.Side != order.Ask {
		return fmt.Errorf("%w: unknown side %d", ErrMalformedOrder, o.Side)
	}

	pub, err := crypto.DecodeHex(o.PublicKey)
	if err != nil || len(pub) != pubKeySize {
		return fmt.Errorf("%w: bad public key", ErrMalformedOrder)
	}

	// Address <-> key binding: the claimed address must be the one the
	// chain derives from the claimed public key.
	if derived := crypto.NormalAddress(pub); derived != o.Address {
		return fmt.Errorf("%w: address %s does not match key-derived %s", ErrInvalidSigner, o.Address, derived)
	}

	// The identifier is the content hash of the canonical bytes. A
	// caller-supplied ID must agree; the computed value is authoritative.
	id := o.ComputeID()
	if o.ID != "" && o.ID != id {
		return fmt.Errorf("%w: supplied %s, computed %s", ErrOrderIDMismatch, o.ID, id)
	}
	o.ID = id

	sig, err := crypto.DecodeHex(o.Signature)
	if err != nil || len(sig) != signatureSize {
		return fmt.Errorf("%w: bad signature encoding", ErrInvalidSignature)
	}
	digest := o.Digest()
	if !crypto.VerifyDigest(pub, digest[:], sig) {
		return fmt.Errorf("%w: signature does not verify", ErrInvalidSignature)
	}

	if o.ExpiredAt > 0 && ctx.BlockTime > o.ExpiredAt {
		return fmt.Errorf("%w: expired at %d, block time %d", ErrOrderExpired, o.ExpiredAt, ctx.BlockTime)
	}

	// A canceled order must never be fillable.
	if c.state.IsCanceled(o.Address, id) {
		return fmt.Errorf("%w: id %s", ErrOrderCanceled, id)
	}
	if wm := c.state.SaltWatermark(o.Address); wm > 0 && o.Salt <= wm {
		return fmt.Errorf("%w: salt %d at or below watermark %d", ErrOrderCanceled, o.Salt, wm)
	}

	return nil
}
