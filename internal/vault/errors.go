package vault

import "errors"

// Kind classifies vault errors for callers that map them onto transport
// error codes.
type Kind uint8

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindState
	KindAuthorization
	KindCustody
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindAuthorization:
		return "authorization"
	case KindCustody:
		return "custody"
	default:
		return "internal"
	}
}

// Error is a classified vault error. Details are added by wrapping with
// fmt.Errorf("%w: ...").
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(k Kind, msg string) *Error {
	return &Error{Kind: k, msg: msg}
}

// Validation errors.
var (
	ErrZeroAmount        = newError(KindValidation, "amount must be positive")
	ErrBelowMinimum      = newError(KindValidation, "amount below minimum")
	ErrExceedsMaxStake   = newError(KindValidation, "exceeds maximum stake")
	ErrInsufficientStake = newError(KindValidation, "insufficient balance")
	ErrZeroDuration      = newError(KindValidation, "duration must be positive")
	ErrRateRoundsToZero  = newError(KindValidation, "reward rate rounds to zero")
	ErrRateTooHigh       = newError(KindValidation, "reward schedule too large")
	ErrFeeOutOfBounds    = newError(KindValidation, "emergency fee out of bounds")
	ErrLockOutOfBounds   = newError(KindValidation, "lock period out of bounds")
	ErrInvalidLimits     = newError(KindValidation, "invalid stake limits")
	ErrZeroAddress       = newError(KindValidation, "zero address")
	ErrUnknownRole       = newError(KindValidation, "unknown role")
)

// State errors.
var (
	ErrPaused        = newError(KindState, "vault is paused")
	ErrNotPaused     = newError(KindState, "vault is not paused")
	ErrTokensLocked  = newError(KindState, "tokens are locked")
	ErrNoRewards     = newError(KindState, "no rewards to claim")
	ErrNoStake       = newError(KindState, "no staked balance")
	ErrNoFees        = newError(KindState, "no fees to collect")
	ErrReentrantCall = newError(KindState, "reentrant call")
)

// Authorization errors.
var (
	ErrUnauthorized = newError(KindAuthorization, "missing role")
)

// Custody errors.
var (
	ErrTransferFailed   = newError(KindCustody, "token transfer failed")
	ErrCustodyMismatch  = newError(KindCustody, "custody changed by unexpected amount")
	ErrCustodyShortfall = newError(KindCustody, "custody below obligations")
)

// Internal errors.
var (
	ErrOverflow           = newError(KindInternal, "arithmetic overflow")
	ErrNotInitialized     = newError(KindInternal, "vault not initialized")
	ErrAlreadyInitialized = newError(KindInternal, "vault already initialized")
)

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
