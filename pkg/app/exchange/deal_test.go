package exchange

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aschplatform/aschex/pkg/app/core/ledger"
	"github.com/aschplatform/aschex/pkg/app/core/order"
	"github.com/aschplatform/aschex/pkg/crypto"
	"github.com/aschplatform/aschex/pkg/host"
	"github.com/aschplatform/aschex/pkg/storage"
)

const testPair = "XAS/USDT"

func newTestContract() (*Contract, *ledger.Store) {
	st := ledger.NewStore(storage.NewMemStore())
	return New(st, nil, nil), st
}

func testCtx() host.TxContext {
	return host.TxContext{
		SenderAddress: "Acaller",
		BlockHeight:   10,
		BlockTime:     5000,
		TxID:          "tx-1",
	}
}

// signOrder fills in address, key, signature, and id from the signer and the
// order's economic fields.
func signOrder(t *testing.T, s *crypto.Signer, o order.Order) order.Order {
	t.Helper()
	o.Contract = Name
	o.Address = s.Address()
	o.PublicKey = s.PublicKeyHex()
	digest := o.Digest()
	sig, err := s.SignDigest(digest[:])
	if err != nil {
		t.Fatalf("sign order: %v", err)
	}
	o.Signature = hex.EncodeToString(sig)
	o.ID = o.ComputeID()
	return o
}

func askOrder(t *testing.T, s *crypto.Signer, nume uint32, deno uint8, amount uint64, salt uint32) order.Order {
	t.Helper()
	return signOrder(t, s, order.Order{
		Pair:      testPair,
		Side:      order.Ask,
		Timestamp: 1000,
		PriceNume: nume,
		PriceDeno: deno,
		Amount:    amount,
		Salt:      salt,
	})
}

func bidOrder(t *testing.T, s *crypto.Signer, nume uint32, deno uint8, amount uint64, salt uint32) order.Order {
	t.Helper()
	return signOrder(t, s, order.Order{
		Pair:      testPair,
		Side:      order.Bid,
		Timestamp: 1000,
		PriceNume: nume,
		PriceDeno: deno,
		Amount:    amount,
		Salt:      salt,
	})
}

func TestDealAskTakerSettlesWithFee(t *testing.T) {
	c, st := newTestContract()
	seller := crypto.FromSecret("seller")
	buyer := crypto.FromSecret("buyer")

	// Seller asks 100 XAS at 10 USDT each; buyer bids the same price.
	taker := askOrder(t, seller, 10, 0, 100, 1)
	maker := bidOrder(t, buyer, 10, 0, 100, 1)

	st.Credit(seller.Address(), "XAS", 100)
	st.Credit(buyer.Address(), "USDT", 1000)

	res, err := c.Deal(testCtx(), order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{maker},
		TakeAmount:  100,
	})
	if err != nil {
		t.Fatalf("deal: %v", err)
	}
	if res.TotalDealBase != 100 || res.TotalDealQuote != 1000 {
		t.Errorf("result = %+v, want base 100 quote 1000", res)
	}

	// 1000 quote moves; fee is 1000/1000 = 1 to the pool, 999 to the taker.
	if got := st.Balance(seller.Address(), "USDT"); got != 999 {
		t.Errorf("seller USDT = %d, want 999", got)
	}
	if got := st.Balance(seller.Address(), "XAS"); got != 0 {
		t.Errorf("seller XAS = %d, want 0", got)
	}
	if got := st.Balance(buyer.Address(), "XAS"); got != 100 {
		t.Errorf("buyer XAS = %d, want 100", got)
	}
	if got := st.Balance(buyer.Address(), "USDT"); got != 0 {
		t.Errorf("buyer USDT = %d, want 0", got)
	}
	if got := st.FeePool("USDT"); got != 1 {
		t.Errorf("fee pool = %d, want 1", got)
	}

	// Both orders record their fills.
	if got := st.Filled(taker.ID); got != 100 {
		t.Errorf("taker filled = %d, want 100", got)
	}
	if got := st.Filled(maker.ID); got != 100 {
		t.Errorf("maker filled = %d, want 100", got)
	}
}

func TestDealBidTakerNoFee(t *testing.T) {
	c, st := newTestContract()
	buyer := crypto.FromSecret("buyer")
	seller := crypto.FromSecret("seller")

	taker := bidOrder(t, buyer, 10, 0, 100, 1)
	maker := askOrder(t, seller, 10, 0, 100, 1)

	st.Credit(buyer.Address(), "USDT", 1000)
	st.Credit(seller.Address(), "XAS", 100)

	res, err := c.Deal(testCtx(), order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{maker},
		TakeAmount:  100,
	})
	if err != nil {
		t.Fatalf("deal: %v", err)
	}
	if res.TotalDealBase != 100 || res.TotalDealQuote != 1000 {
		t.Errorf("result = %+v, want base 100 quote 1000", res)
	}

	// The bid path accrues no fee: the maker receives the full quote.
	if got := st.Balance(seller.Address(), "USDT"); got != 1000 {
		t.Errorf("seller USDT = %d, want 1000", got)
	}
	if got := st.Balance(buyer.Address(), "XAS"); got != 100 {
		t.Errorf("buyer XAS = %d, want 100", got)
	}
	if got := st.FeePool("USDT"); got != 0 {
		t.Errorf("fee pool = %d, want 0", got)
	}
}

func TestDealConservesAssets(t *testing.T) {
	c, st := newTestContract()
	seller := crypto.FromSecret("s1")
	b1 := crypto.FromSecret("b1")
	b2 := crypto.FromSecret("b2")

	taker := askOrder(t, seller, 3, 0, 90, 1)
	m1 := bidOrder(t, b1, 3, 0, 40, 1)
	m2 := bidOrder(t, b2, 4, 0, 50, 1)

	st.Credit(seller.Address(), "XAS", 90)
	st.Credit(b1.Address(), "USDT", 120)
	st.Credit(b2.Address(), "USDT", 200)

	if _, err := c.Deal(testCtx(), order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{m1, m2},
		TakeAmount:  90,
	}); err != nil {
		t.Fatalf("deal: %v", err)
	}

	addrs := []string{seller.Address(), b1.Address(), b2.Address()}
	var xas, usdt uint64
	for _, a := range addrs {
		xas += st.Balance(a, "XAS")
		usdt += st.Balance(a, "USDT")
	}
	usdt += st.FeePool("USDT")

	if xas != 90 {
		t.Errorf("XAS total = %d, want 90", xas)
	}
	if usdt != 320 {
		t.Errorf("USDT total (with fee pool) = %d, want 320", usdt)
	}
}

func TestDealEarlyStopDoesNotClip(t *testing.T) {
	c, st := newTestContract()
	seller := crypto.FromSecret("seller")
	b1 := crypto.FromSecret("b1")
	b2 := crypto.FromSecret("b2")

	// Ceiling 100. First maker takes 60; the second wants 60 more, which
	// would overshoot, so the engine stops there instead of clipping to 40.
	taker := askOrder(t, seller, 10, 0, 100, 1)
	m1 := bidOrder(t, b1, 10, 0, 60, 1)
	m2 := bidOrder(t, b2, 10, 0, 60, 1)

	st.Credit(seller.Address(), "XAS", 100)
	st.Credit(b1.Address(), "USDT", 600)
	st.Credit(b2.Address(), "USDT", 600)

	res, err := c.Deal(testCtx(), order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{m1, m2},
		TakeAmount:  100,
	})
	if err != nil {
		t.Fatalf("deal: %v", err)
	}
	if res.TotalDealBase != 60 {
		t.Errorf("total base = %d, want 60", res.TotalDealBase)
	}
	if got := st.Filled(m2.ID); got != 0 {
		t.Errorf("second maker filled = %d, want 0", got)
	}
	if got := st.Balance(b2.Address(), "USDT"); got != 600 {
		t.Errorf("second maker USDT = %d, want untouched 600", got)
	}
}

func TestDealPartialAmountCapsLastMaker(t *testing.T) {
	c, st := newTestContract()
	seller := crypto.FromSecret("seller")
	b1 := crypto.FromSecret("b1")
	b2 := crypto.FromSecret("b2")

	taker := askOrder(t, seller, 10, 0, 100, 1)
	m1 := bidOrder(t, b1, 10, 0, 60, 1)
	m2 := bidOrder(t, b2, 10, 0, 60, 1)

	st.Credit(seller.Address(), "XAS", 100)
	st.Credit(b1.Address(), "USDT", 600)
	st.Credit(b2.Address(), "USDT", 600)

	// PartialAmount 40 bounds the last maker, so the deal fills exactly.
	res, err := c.Deal(testCtx(), order.Deal{
		TakerOrder:    taker,
		MakerOrders:   []order.Order{m1, m2},
		TakeAmount:    100,
		PartialAmount: 40,
	})
	if err != nil {
		t.Fatalf("deal: %v", err)
	}
	if res.TotalDealBase != 100 {
		t.Errorf("total base = %d, want 100", res.TotalDealBase)
	}
	if got := st.Filled(m2.ID); got != 40 {
		t.Errorf("second maker filled = %d, want 40", got)
	}
	if got := st.Balance(b2.Address(), "USDT"); got != 200 {
		t.Errorf("second maker USDT = %d, want 200", got)
	}
}

func TestDealFillsNeverOvershoot(t *testing.T) {
	c, st := newTestContract()
	seller := crypto.FromSecret("seller")
	buyer := crypto.FromSecret("buyer")

	taker := askOrder(t, seller, 10, 0, 100, 1)
	maker := bidOrder(t, buyer, 10, 0, 100, 1)

	st.Credit(seller.Address(), "XAS", 100)
	st.Credit(buyer.Address(), "USDT", 1000)

	deal := order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{maker},
		TakeAmount:  60,
	}
	if _, err := c.Deal(testCtx(), deal); err != nil {
		t.Fatalf("first deal: %v", err)
	}
	if got := st.Filled(taker.ID); got != 60 {
		t.Fatalf("taker filled = %d after first deal, want 60", got)
	}

	// A second call with the same ceiling is bounded by the recorded fill:
	// only the remaining 40 settles.
	if _, err := c.Deal(testCtx(), deal); err != nil {
		t.Fatalf("second deal: %v", err)
	}
	if got := st.Filled(taker.ID); got != 100 {
		t.Errorf("taker filled = %d, want 100", got)
	}
	if got := st.Filled(maker.ID); got != 100 {
		t.Errorf("maker filled = %d, want 100", got)
	}

	// A third call finds the taker exhausted.
	_, err := c.Deal(testCtx(), deal)
	if !errors.Is(err, ErrOrderExhausted) {
		t.Errorf("exhausted deal error = %v, want ErrOrderExhausted", err)
	}
}

func TestDealRejectsBadSignature(t *testing.T) {
	c, st := newTestContract()
	seller := crypto.FromSecret("seller")
	buyer := crypto.FromSecret("buyer")

	taker := askOrder(t, seller, 10, 0, 100, 1)
	maker := bidOrder(t, buyer, 10, 0, 100, 1)
	// Tamper with the taker's amount after signing. The ID recomputes from
	// the mutated bytes, so the signature no longer covers them.
	taker.Amount = 50
	taker.ID = ""

	st.Credit(seller.Address(), "XAS", 100)
	st.Credit(buyer.Address(), "USDT", 1000)

	_, err := c.Deal(testCtx(), order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{maker},
		TakeAmount:  50,
	})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("tampered deal error = %v, want ErrInvalidSignature", err)
	}
	if got := st.Balance(seller.Address(), "XAS"); got != 100 {
		t.Errorf("rejected deal mutated seller balance: %d", got)
	}
	if got := st.Balance(buyer.Address(), "USDT"); got != 1000 {
		t.Errorf("rejected deal mutated buyer balance: %d", got)
	}
}

func TestDealRejectsAddressKeyMismatch(t *testing.T) {
	c, _ := newTestContract()
	seller := crypto.FromSecret("seller")
	stranger := crypto.FromSecret("stranger")

	o := order.Order{
		Contract:  Name,
		Pair:      testPair,
		Side:      order.Ask,
		Timestamp: 1000,
		PriceNume: 10,
		Amount:    100,
		Salt:      1,
		Address:   stranger.Address(),
		PublicKey: seller.PublicKeyHex(),
	}
	digest := o.Digest()
	sig, err := seller.SignDigest(digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	o.Signature = hex.EncodeToString(sig)
	o.ID = o.ComputeID()

	_, err = c.Deal(testCtx(), order.Deal{TakerOrder: o, TakeAmount: 100})
	if !errors.Is(err, ErrInvalidSigner) {
		t.Errorf("mismatched signer error = %v, want ErrInvalidSigner", err)
	}
}

func TestDealLaterMakerFailureLeavesNoTrace(t *testing.T) {
	c, st := newTestContract()
	seller := crypto.FromSecret("seller")
	b1 := crypto.FromSecret("b1")
	b2 := crypto.FromSecret("b2")

	taker := askOrder(t, seller, 10, 0, 100, 1)
	m1 := bidOrder(t, b1, 10, 0, 40, 1)
	m2 := bidOrder(t, b2, 10, 0, 60, 1)

	st.Credit(seller.Address(), "XAS", 100)
	st.Credit(b1.Address(), "USDT", 400)
	// The second maker cannot cover its cost; the whole deal must abort.
	st.Credit(b2.Address(), "USDT", 100)

	_, err := c.Deal(testCtx(), order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{m1, m2},
		TakeAmount:  100,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("deal error = %v, want ErrInsufficientFunds", err)
	}

	// Nothing from the first maker's leg leaked either.
	if got := st.Balance(b1.Address(), "USDT"); got != 400 {
		t.Errorf("first maker USDT = %d, want untouched 400", got)
	}
	if got := st.Balance(b1.Address(), "XAS"); got != 0 {
		t.Errorf("first maker XAS = %d, want 0", got)
	}
	if got := st.Filled(m1.ID); got != 0 {
		t.Errorf("first maker filled = %d, want 0", got)
	}
	if got := st.Filled(taker.ID); got != 0 {
		t.Errorf("taker filled = %d, want 0", got)
	}
}

func TestDealPriceCrossChecks(t *testing.T) {
	c, st := newTestContract()
	seller := crypto.FromSecret("seller")
	buyer := crypto.FromSecret("buyer")

	st.Credit(seller.Address(), "XAS", 100)
	st.Credit(buyer.Address(), "USDT", 1000)

	// Maker bids 9 against a 10 ask: no cross.
	taker := askOrder(t, seller, 10, 0, 100, 1)
	maker := bidOrder(t, buyer, 9, 0, 100, 1)
	_, err := c.Deal(testCtx(), order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{maker},
		TakeAmount:  100,
	})
	if !errors.Is(err, ErrPriceMismatch) {
		t.Errorf("uncrossed deal error = %v, want ErrPriceMismatch", err)
	}

	// Equal rationals written differently do cross: 10/10^0 == 100/10^1.
	maker2 := bidOrder(t, buyer, 100, 1, 100, 2)
	if _, err := c.Deal(testCtx(), order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{maker2},
		TakeAmount:  100,
	}); err != nil {
		t.Errorf("equal-price deal failed: %v", err)
	}
}

func TestDealPairAndSideChecks(t *testing.T) {
	c, st := newTestContract()
	seller := crypto.FromSecret("seller")
	buyer := crypto.FromSecret("buyer")

	st.Credit(seller.Address(), "XAS", 100)
	st.Credit(buyer.Address(), "USDT", 1000)

	taker := askOrder(t, seller, 10, 0, 100, 1)

	otherPair := signOrder(t, buyer, order.Order{
		Pair:      "BTC/USDT",
		Side:      order.Bid,
		Timestamp: 1000,
		PriceNume: 10,
		Amount:    100,
		Salt:      1,
	})
	_, err := c.Deal(testCtx(), order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{otherPair},
		TakeAmount:  100,
	})
	if !errors.Is(err, ErrPairMismatch) {
		t.Errorf("cross-pair deal error = %v, want ErrPairMismatch", err)
	}

	sameSide := askOrder(t, buyer, 10, 0, 100, 2)
	_, err = c.Deal(testCtx(), order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{sameSide},
		TakeAmount:  100,
	})
	if !errors.Is(err, ErrSideMismatch) {
		t.Errorf("same-side deal error = %v, want ErrSideMismatch", err)
	}
}

func TestDealRejectsExpiredOrder(t *testing.T) {
	c, st := newTestContract()
	seller := crypto.FromSecret("seller")
	buyer := crypto.FromSecret("buyer")

	taker := signOrder(t, seller, order.Order{
		Pair:      testPair,
		Side:      order.Ask,
		Timestamp: 1000,
		PriceNume: 10,
		Amount:    100,
		ExpiredAt: 4000,
		Salt:      1,
	})
	maker := bidOrder(t, buyer, 10, 0, 100, 1)

	st.Credit(seller.Address(), "XAS", 100)
	st.Credit(buyer.Address(), "USDT", 1000)

	ctx := testCtx() // block time 5000 > expiredAt 4000
	_, err := c.Deal(ctx, order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{maker},
		TakeAmount:  100,
	})
	if !errors.Is(err, ErrOrderExpired) {
		t.Errorf("expired deal error = %v, want ErrOrderExpired", err)
	}
	if !strings.Contains(err.Error(), "taker order") {
		t.Errorf("error %q does not name the failing participant", err)
	}
}

func TestDealRejectsCanceledOrders(t *testing.T) {
	c, st := newTestContract()
	seller := crypto.FromSecret("seller")
	buyer := crypto.FromSecret("buyer")

	taker := askOrder(t, seller, 10, 0, 100, 5)
	maker := bidOrder(t, buyer, 10, 0, 100, 1)

	st.Credit(seller.Address(), "XAS", 100)
	st.Credit(buyer.Address(), "USDT", 1000)

	deal := order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{maker},
		TakeAmount:  100,
	}

	// Explicit ID cancellation.
	if err := c.Cancel(host.TxContext{SenderAddress: seller.Address()}, CancelParams{IDs: []string{taker.ID}}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := c.Deal(testCtx(), deal); !errors.Is(err, ErrOrderCanceled) {
		t.Errorf("canceled-id deal error = %v, want ErrOrderCanceled", err)
	}

	// Salt watermark cancellation kills the maker (salt 1 <= 3).
	taker2 := askOrder(t, seller, 10, 0, 100, 6)
	if err := c.Cancel(host.TxContext{SenderAddress: buyer.Address()}, CancelParams{Salt: 3}); err != nil {
		t.Fatalf("cancel salt: %v", err)
	}
	_, err := c.Deal(testCtx(), order.Deal{
		TakerOrder:  taker2,
		MakerOrders: []order.Order{maker},
		TakeAmount:  100,
	})
	if !errors.Is(err, ErrOrderCanceled) {
		t.Errorf("below-watermark deal error = %v, want ErrOrderCanceled", err)
	}
}

func TestDealRejectsWrongContract(t *testing.T) {
	c, _ := newTestContract()
	seller := crypto.FromSecret("seller")

	o := askOrder(t, seller, 10, 0, 100, 1)
	o.Contract = "other-dex"
	// Re-sign so only the contract binding is wrong.
	digest := o.Digest()
	sig, err := seller.SignDigest(digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	o.Signature = hex.EncodeToString(sig)
	o.ID = o.ComputeID()

	_, err = c.Deal(testCtx(), order.Deal{TakerOrder: o, TakeAmount: 100})
	if !errors.Is(err, ErrWrongContract) {
		t.Errorf("wrong-contract deal error = %v, want ErrWrongContract", err)
	}
}

func TestDealRejectsSuppliedIDMismatch(t *testing.T) {
	c, _ := newTestContract()
	seller := crypto.FromSecret("seller")

	o := askOrder(t, seller, 10, 0, 100, 1)
	o.ID = strings.Repeat("ab", 32)

	_, err := c.Deal(testCtx(), order.Deal{TakerOrder: o, TakeAmount: 100})
	if !errors.Is(err, ErrOrderIDMismatch) {
		t.Errorf("mismatched-id deal error = %v, want ErrOrderIDMismatch", err)
	}
}

func TestDealRejectsTakerWithoutFunds(t *testing.T) {
	c, st := newTestContract()
	seller := crypto.FromSecret("seller")
	buyer := crypto.FromSecret("buyer")

	taker := askOrder(t, seller, 10, 0, 100, 1)
	maker := bidOrder(t, buyer, 10, 0, 100, 1)

	// Seller holds less base than the ceiling.
	st.Credit(seller.Address(), "XAS", 50)
	st.Credit(buyer.Address(), "USDT", 1000)

	_, err := c.Deal(testCtx(), order.Deal{
		TakerOrder:  taker,
		MakerOrders: []order.Order{maker},
		TakeAmount:  100,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("underfunded deal error = %v, want ErrInsufficientFunds", err)
	}
}

func TestDealErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{ErrInvalidSignature, KindValidation},
		{ErrOrderCanceled, KindState},
		{ErrInsufficientFunds, KindFunds},
		{ErrArithmetic, KindArithmetic},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("wrapped: %w", tt.err)
		if got := KindOf(wrapped); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	if got := KindOf(errors.New("other")); got != 0 {
		t.Errorf("KindOf(foreign error) = %v, want 0", got)
	}
}
