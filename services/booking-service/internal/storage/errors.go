package storage

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrConflict: a unique key (slot start, staff email) is already taken.
	ErrConflict = errors.New("conflicting record exists")
	// ErrInUse: the record is still referenced and cannot be removed.
	ErrInUse = errors.New("record is still in use")
	// ErrStaleWrite: the record changed since the caller read it.
	ErrStaleWrite = errors.New("record changed since it was read")
)

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, booking.ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || db.IsUniqueViolation(err)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, booking.ErrNotFound)
}

// wrapNoRows turns pgx.ErrNoRows into booking.ErrNotFound so callers never
// depend on pgx.
func wrapNoRows(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(kind, id)
	}
	return err
}

// validID rejects ids Postgres would fail to cast to uuid; such ids cannot
// exist, so lookups report not found instead of a query error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// classify marks statements Postgres rejected with booking.ErrStoreRejected
// so they are not retried or reported as an outage. Domain outcomes and
// transient failures pass through unchanged.
func classify(err error) error {
	if err == nil || errors.Is(err, booking.ErrNotFound) || errors.Is(err, booking.ErrStoreRejected) || db.IsUnavailable(err) {
		return err
	}
	if db.SQLState(err) == "" {
		return err
	}
	return fmt.Errorf("%w: %w", booking.ErrStoreRejected, err)
}

// Retryable reports whether err is a store failure a client may retry.
func Retryable(err error) bool {
	if errors.Is(err, booking.ErrStoreRejected) {
		return false
	}
	return errors.Is(err, booking.ErrStoreUnavailable) || db.IsUnavailable(err)
}
