package delivery

import "errors"

// Precondition failures surfaced to the caller as distinct kinds. Any
// other error from an engine operation is a store failure and is
// retriable by the caller.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrChatNotFound    = errors.New("chat not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrForbidden       = errors.New("not a participant of this chat")
)
