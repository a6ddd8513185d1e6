package shared

import "errors"

var (
	// ErrValidation indicates missing or invalid caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced record is absent.
	ErrNotFound = errors.New("not found")
	// ErrSequencing indicates numbering configuration is missing or the
	// counter update exhausted its retries. Safe to retry the request.
	ErrSequencing = errors.New("invoice sequencing failed")
	// ErrOverpayment indicates a payment exceeding the pending amount.
	ErrOverpayment = errors.New("payment exceeds pending amount")
	// ErrStateConflict indicates a transition invalid for the current status.
	ErrStateConflict = errors.New("invalid state transition")
)

// UserSafeMessage returns text suitable for API consumers. Known domain
// errors pass through with their wrapped detail; anything else is masked.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrSequencing),
		errors.Is(err, ErrOverpayment),
		errors.Is(err, ErrStateConflict):
		return err.Error()
	default:
		return "internal error"
	}
}
