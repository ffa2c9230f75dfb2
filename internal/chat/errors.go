package chat

import "errors"

// Operation errors. All of them are terminal for the triggering call; the
// caller corrects its input or identity, nothing is retried here.
var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
)
