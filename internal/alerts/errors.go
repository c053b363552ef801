package alerts

import "fmt"

// ValidationError reports bad or missing input. Nothing has been written
// when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError wraps a failure of the storage collaborator.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// BatchError describes a failed batch send. It is only ever recorded in an
// Outcome, never returned to callers.
type BatchError struct {
	TenantID   string
	BatchIndex int
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %s#%d: %v", e.TenantID, e.BatchIndex, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
