package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrStaleSelection: the slot was already unavailable when the patient selected it.
	ErrStaleSelection = errors.New("time slot is no longer available")
	// ErrLostRace: another booking claimed the slot between selection and submission.
	ErrLostRace = errors.New("time slot was just booked by someone else")
	// ErrSlotExpired: the slot has already started.
	ErrSlotExpired = errors.New("time slot has already started")

	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("caller may not change this appointment")
	ErrNotFound          = errors.New("not found")

	// ErrStoreUnavailable marks retryable record-store failures. Match with
	// errors.Is; the concrete error is a *StoreError.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrStoreRejected marks a statement the store refused. Stores wrap such
	// errors with it; retrying cannot help.
	ErrStoreRejected = errors.New("record store rejected the operation")
)

// ValidationError lists per-field problems with a request. It matches ErrValidation.
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
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StoreError wraps a failed record-store call. It matches
// ErrStoreUnavailable unless the store rejected the statement.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Retryable() {
		return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}
func (e *StoreError) Unwrap() error { return e.Err }
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable && e.Retryable()
}

func (e *StoreError) Retryable() bool { return !errors.Is(e.Err, ErrStoreRejected) }

// storeErr passes domain outcomes (not found, lost race) through and wraps
// everything else as a store failure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var serr *StoreError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrLostRace) || errors.As(err, &serr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
