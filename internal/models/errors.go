package models

import (
	"errors"
	"fmt"
)

// Error variables for better error handling and testability
var (
	// ErrNotFound indicates an operation referenced an unknown reminder id.
	ErrNotFound = errors.New("reminder not found")
	// ErrPolicyNotFound indicates no policy is stored for a reminder kind.
	ErrPolicyNotFound = errors.New("reminder policy not found")
	// ErrInvalidStateTransition indicates a mutation was attempted on a row
	// whose status does not permit it.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrConcurrentModification indicates a version-checked update lost the
	// race to another writer. Callers should re-read and retry.
	ErrConcurrentModification = errors.New("concurrent modification")

	ErrInvalidKind     = errors.New("invalid reminder kind")
	ErrInvalidChannel  = errors.New("invalid channel")
	ErrNegativeOffset  = errors.New("offset cannot be negative")
	ErrAmbiguousOffset = errors.New("offset cannot set both days and minutes")
	ErrNegativeRetries = errors.New("max retries cannot be negative")
	ErrMissingEntityID = errors.New("entity id is required")
	ErrMissingTrigger  = errors.New("entity trigger date is required")
	ErrEmptyRecipient  = errors.New("recipient cannot be empty")
)

// DispatchError wraps a failed channel adapter call. It is never surfaced
// synchronously to the scheduling caller; it is recorded in the reminder log
// and reflected in the row's retry state.
type DispatchError struct {
	Channel   Channel
	Recipient string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch via %s to %s failed: %v", e.Channel, e.Recipient, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
