package order

import (
	"errors"
	"math/bits"
)

// MaxPriceDeno bounds the decimal exponent so 10^deno fits in a uint64.
const MaxPriceDeno = 19

var (
	// ErrOverflow is returned when amount or price arithmetic does not fit
	// the fixed-width result. It always fails the operation; values never
	// wrap or saturate silently.
	ErrOverflow = errors.New("integer overflow")

	// ErrPriceDenoRange is returned for a price denominator exponent
	// outside [0, MaxPriceDeno].
	ErrPriceDenoRange = errors.New("price denominator exponent out of range")
)

var pow10tab = func() [MaxPriceDeno + 1]uint64 {
	var t [MaxPriceDeno + 1]uint64
	t[0] = 1
	for i := 1; i <= MaxPriceDeno; i++ {
		t[i] = t[i-1] * 10
	}
	return t
}()

func pow10(deno uint8) (uint64, error) {
	if deno > MaxPriceDeno {
		return 0, ErrPriceDenoRange
	}
	return pow10tab[deno], nil
}

// ComparePrice compares two order prices as exact rationals:
//
//	aNume/10^aDeno  vs  bNume/10^bDeno
//
// by cross-multiplying into 128-bit intermediates. Floating point is never
// used for price ordering. Returns -1, 0 or 1.
func ComparePrice(aNume uint32, aDeno uint8, bNume uint32, bDeno uint8) (int, error) {
	pa, err := pow10(bDeno)
	if err != nil {
		return 0, err
	}
	pb, err := pow10(aDeno)
	if err != nil {
		return 0, err
	}
	ahi, alo := bits.Mul64(uint64(aNume), pa)
	bhi, blo := bits.Mul64(uint64(bNume), pb)
	switch {
	case ahi != bhi:
		if ahi < bhi {
			return -1, nil
		}
		return 1, nil
	case alo != blo:
		if alo < blo {
			return -1, nil
		}
		return 1, nil
	default:
		return 0, nil
	}
}

// QuoteCost converts a base amount into quote units at the given price:
//
//	amount * nume / 10^deno
//
// with a 128-bit intermediate product and truncating integer division.
// The truncation is the settlement rounding rule, not an approximation.
// Fails with ErrOverflow when the quotient does not fit in a uint64.
func QuoteCost(amount uint64, nume uint32, deno uint8) (uint64, error) {
	d, err := pow10(deno)
	if err != nil {
		return 0, err
	}
	hi, lo := bits.Mul64(amount, uint64(nume))
	if hi >= d {
		return 0, ErrOverflow
	}
	quo, _ := bits.Div64(hi, lo, d)
	return quo, nil
}

// CheckedAdd returns a+b or ErrOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}
