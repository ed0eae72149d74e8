package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrCancelled marks a user-initiated cancellation. It is a normal
// termination path, not a failure.
var ErrCancelled = errors.New("cancelled by user")

// NetworkError is a transport-level failure: timeout, DNS, connection reset.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError means the remote service answered but signaled failure or
// returned a shape we cannot use. Payload keeps the raw diagnostic body.
type ServiceError struct {
	Op         string
	StatusCode int
	Payload    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: service error (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: service error: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// PersistenceError is a failed local durable write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persistence error: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Service builds a ServiceError from a status code and raw body.
func Service(op string, status int, payload string, err error) error {
	return &ServiceError{Op: op, StatusCode: status, Payload: payload, Err: err}
}

// Persistence wraps err as a PersistenceError. A nil err stays nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Classify maps an error returned by a remote client call onto the
// taxonomy. Errors that are already classified pass through untouched.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		ne *NetworkError
		se *ServiceError
	)
	if errors.As(err, &ne) || errors.As(err, &se) || errors.Is(err, ErrCancelled) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, ErrCancelled)
	case errors.Is(err, context.DeadlineExceeded):
		return &NetworkError{Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &NetworkError{Op: op, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &NetworkError{Op: op, Err: err}
	}

	return &ServiceError{Op: op, Err: err}
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsService reports whether err is a ServiceError.
func IsService(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// Retryable reports whether the user should be offered a retry for err.
func Retryable(err error) bool {
	return IsNetwork(err) || IsService(err) || IsPersistence(err) || errors.Is(err, ErrCancelled)
}

// Message returns a human-readable description suitable for showing to
// the user next to a retry affordance.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "The operation was cancelled."
	case IsNetwork(err):
		return "Could not reach the service. Check your connection and try again."
	case IsService(err):
		return "The service could not process this image. Try again, or retake the picture."
	case IsPersistence(err):
		return "Could not save the item on this device. Free some space and try again."
	default:
		return "Something went wrong. Please try again."
	}
}
