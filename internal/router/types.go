package router

import "errors"

// Errors
var (
	ErrUnregisteredSender = errors.New("sender has not registered")
	ErrMissingRecipient   = errors.New("message has no recipient")
)

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesSent      int64 // Persisted messages
	MessagesDelivered int64 // Persisted messages handed to a live recipient session
	PersistErrors     int64
}
