package model

import "errors"

// Error taxonomy shared by the stores, the price oracle and the ledger engine.
// Callers wrap these with a human readable reason and test with errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientFunds = errors.New("not enough buying power")
	ErrInvalidPositionID = errors.New("invalid position id")
	ErrAlreadyClosed     = errors.New("position already closed")
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrStoreUnavailable  = errors.New("store unavailable")

	// ErrNotFound is returned by the stores when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")
)

// IsUserError reports whether err belongs to the caller-correctable part of the
// taxonomy, i.e. its message is safe to show to the end user.
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrInvalidInput,
		ErrInsufficientFunds,
		ErrInvalidPositionID,
		ErrAlreadyClosed,
		ErrInvalidSymbol,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
