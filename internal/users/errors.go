package users

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrConnection indicates the pool could not be established within the retry budget.
	ErrConnection = errors.New("users: connection failed")
	// ErrNotInitialized indicates an operation outside the connected state.
	ErrNotInitialized = errors.New("users: store not initialized")
	// ErrSchema indicates the schema could not be ensured.
	ErrSchema = errors.New("users: schema initialization failed")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("users: duplicate value")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("users: validation failed")
	// ErrStore indicates any other persistence failure.
	ErrStore = errors.New("users: store operation failed")
)

// DuplicateError reports which unique field collided.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("users: %s already exists", e.Field)
}

// Is matches ErrDuplicate.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// ValidationError maps field names to human readable problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "users: invalid input: " + strings.Join(parts, "; ")
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StoreError wraps an unexpected persistence failure. Its message never
// includes the driver error; use errors.Unwrap for diagnostics.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("users: %s: store operation failed", e.Op)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches ErrStore.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// DuplicateField returns the collided field when err is a DuplicateError.
func DuplicateField(err error) (string, bool) {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.Field, true
	}
	return "", false
}
