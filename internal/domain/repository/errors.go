package repository

import "errors"

// ErrDuplicateKey is returned when an insert violates a uniqueness
// constraint (idempotency key, provider transaction ID). Callers treat
// it as "the row already exists", not as a failure.
var ErrDuplicateKey = errors.New("duplicate key")
