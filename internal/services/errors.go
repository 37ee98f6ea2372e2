package services

import "errors"

// Domain errors returned by the relationship and messaging services. Handlers
// map these to HTTP statuses; none of them is fatal to the process.
var (
	ErrInvalidTarget = errors.New("cannot target yourself")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrEmptyContent  = errors.New("message content is empty")
	ErrConflict      = errors.New("conflict")
)
