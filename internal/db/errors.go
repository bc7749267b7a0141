package db

import "errors"

var (
	// ErrNotFound is returned by stores when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrSealedToken is returned when a sealed token cannot be opened with the configured key.
	ErrSealedToken = errors.New("cannot open sealed token")
)
