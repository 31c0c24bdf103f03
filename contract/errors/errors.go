package errors

// Error codes for the relay contracts. Keep stable; used across adapters and the core.
const (
	ErrCodeInvalidArgument     = "relay.invalid_argument"
	ErrCodeAlreadyRegistered   = "relay.already_registered"
	ErrCodeConflict            = "relay.conflict"
	ErrCodeHandlerNotFound     = "relay.handler_not_found"
	ErrCodeInternal            = "relay.internal"
	ErrCodeHandlerPanic        = "relay.handler_panic"
	ErrCodeForwardFailed       = "relay.forward_failed"
	ErrCodeSerializationFailed = "relay.serialization_failed"
	ErrCodeClosed              = "relay.closed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrInvalidArgument     = Code(ErrCodeInvalidArgument)
	ErrAlreadyRegistered   = Code(ErrCodeAlreadyRegistered)
	ErrConflict            = Code(ErrCodeConflict)
	ErrHandlerNotFound     = Code(ErrCodeHandlerNotFound)
	ErrInternal            = Code(ErrCodeInternal)
	ErrHandlerPanic        = Code(ErrCodeHandlerPanic)
	ErrForwardFailed       = Code(ErrCodeForwardFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrClosed              = Code(ErrCodeClosed)
)
