package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when staff act on a pending question that no
// longer exists (already answered or rejected by another action).
var ErrNotFound = errors.New("question not found")

// ValidationError reports invalid input on a staff commit. It is shown to
// the staff member who triggered the action and is never fatal.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError wraps a durable read/write failure. The operation that hit
// it is retryable; in-memory state is not advanced past a StorageError.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DeliveryError wraps an outbound message failure (blocked chat, bad id).
// It is logged only and never blocks registry mutations or commits.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
