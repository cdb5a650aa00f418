package chat

import "errors"

var (
	// ErrNotFound is returned when a conversation or message id does not resolve.
	ErrNotFound = errors.New("chat: not found")
	// ErrForbidden is returned when the actor is not a participant or not the sender.
	ErrForbidden = errors.New("chat: forbidden")
	// ErrValidation is returned for empty content or out-of-range pagination limits.
	ErrValidation = errors.New("chat: validation failed")
)
