package exchange

import "errors"

// ErrorKind classifies contract failures. Every failure aborts the whole
// call synchronously; the kind tells the caller whether retrying with the
// same inputs can ever succeed.
type ErrorKind uint8

const (
	// KindValidation: malformed or expired order, address/key mismatch,
	// bad signature. The input itself is unacceptable.
	KindValidation ErrorKind = iota + 1
	// KindState: the order or pair is in a state that forbids the
	// operation (already filled, canceled, mismatched pair).
	KindState
	// KindFunds: a participant cannot cover a required transfer.
	KindFunds
	// KindArithmetic: overflow or range failure in amount/price math.
	// Raised explicitly, never wrapped silently.
	KindArithmetic
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindFunds:
		return "funds"
	case KindArithmetic:
		return "arithmetic"
	default:
		return "unknown"
	}
}

// Error is a contract failure with its taxonomy kind. Sentinels below are
// wrapped with fmt.Errorf("%w: ...", ...) detail, so callers match with
// errors.Is and classify with KindOf.
type Error struct {
	Kind ErrorKind
	Code string
}

func (e *Error) Error() string { return e.Code }

var (
	ErrInvalidSigner     = &Error{KindValidation, "InvalidSigner"}
	ErrInvalidSignature  = &Error{KindValidation, "InvalidSignature"}
	ErrWrongContract     = &Error{KindValidation, "WrongContract"}
	ErrOrderIDMismatch   = &Error{KindValidation, "OrderIDMismatch"}
	ErrOrderExpired      = &Error{KindValidation, "OrderExpired"}
	ErrMalformedOrder    = &Error{KindValidation, "MalformedOrder"}
	ErrSideMismatch      = &Error{KindValidation, "SideMismatch"}
	ErrPriceMismatch     = &Error{KindValidation, "PriceMismatch"}
	ErrInvalidAmount     = &Error{KindValidation, "InvalidAmount"}
	ErrInvalidAsset      = &Error{KindValidation, "InvalidAsset"}
	ErrInvalidSalt       = &Error{KindValidation, "InvalidSalt"}
	ErrEmptyCancel       = &Error{KindValidation, "EmptyCancel"}
	ErrPairMismatch      = &Error{KindState, "PairMismatch"}
	ErrOrderCanceled     = &Error{KindState, "OrderCanceled"}
	ErrOrderExhausted    = &Error{KindState, "OrderExhausted"}
	ErrInsufficientFunds = &Error{KindFunds, "InsufficientFunds"}
	ErrArithmetic        = &Error{KindArithmetic, "ArithmeticOverflow"}
)

// KindOf extracts the taxonomy kind from an error chain; zero when the
// error did not originate in the contract.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
