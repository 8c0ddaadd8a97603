package storage

import "errors"

var (
	// ErrPersistence marks every failure to read or write a durable record.
	// A missing record is not a failure.
	ErrPersistence = errors.New("persistence failure")
	ErrInvalidUser = errors.New("invalid user name")
	ErrInvalidDeck = errors.New("invalid deck name")
)
