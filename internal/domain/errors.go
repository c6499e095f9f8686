package domain

import "errors"

// Business errors raised by the account service. They are sentinel values so
// handlers can map them to HTTP statuses with errors.Is; none of them is
// retried internally.
var (
	// ErrNegativeBalance rejects an opening balance that is not strictly positive.
	ErrNegativeBalance = errors.New("balance must be positive")

	// ErrDuplicateHolder rejects opening a second account for the same last name.
	ErrDuplicateHolder = errors.New("account holder already exists")

	// ErrAccountNotFound is returned when an account id has no record.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientFunds rejects a withdrawal or transfer that would drive
	// the balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSameAccountTransfer rejects a transfer whose recipient is the source
	// account; the atomic two-row write cannot update one row twice.
	ErrSameAccountTransfer = errors.New("cannot transfer to the same account")

	// ErrConflict is returned by the store when a compare-and-set update loses
	// against a concurrent mutation of the same account. No write happens.
	ErrConflict = errors.New("account was modified concurrently")
)
