package domain

import (
	"errors"
	"fmt"
)

// Business rejections. These are authoritative answers from whichever path
// produced them and are never retried via the fallback.
var (
	ErrNotFound          = errors.New("user not found")
	ErrInvalidCredential = errors.New("invalid password")
	ErrAlreadyExists     = errors.New("username already exists")
	ErrInvalidInput      = errors.New("username and password required")
)

// ErrUnreachable means neither the primary service nor the store could
// answer. Callers must not read it as "does not exist".
var ErrUnreachable = errors.New("offline: please check your internet connection")

// TransportError wraps a failure to reach a service at all, as opposed to a
// rejection the service itself reported.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a transport failure.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Err: err}
}

// IsTransport reports whether err is a transport failure eligible for the
// fallback path.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsBusiness reports whether err is an authoritative rejection.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidCredential) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrInvalidInput)
}
