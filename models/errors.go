package models

import "errors"

var (
	// ErrNotFound indicates that a user, instrument or document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a registration collision on the username.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDenied indicates an authentication mismatch.
	ErrDenied = errors.New("access denied")

	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrInvalidSide          = errors.New("invalid side: expected buy or sell")
	ErrInvalidQuantity      = errors.New("invalid quantity: must be a positive integer")
	ErrInvalidRole          = errors.New("invalid role: expected user or admin")
	ErrInvalidAmount        = errors.New("invalid amount: must not be negative")
	ErrInvalidInput         = errors.New("invalid input")

	// ErrTradeFailed wraps a storage failure that aborted a trade. No state was
	// changed when it is returned.
	ErrTradeFailed = errors.New("trade failed")
)
