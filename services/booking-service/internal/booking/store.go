package booking

import (
	"context"

	"github.com/healthcarepro/clinicbook/libs/outbox"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
)

// Store is the record store the reservation protocol and status transitions
// run against. Lookups return an error matching ErrNotFound for missing rows.
type Store interface {
	GetSlot(ctx context.Context, slotID string) (model.TimeSlot, error)
	GetDoctor(ctx context.Context, doctorID string) (model.Doctor, error)
	GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error)

	// SwapSlotAvailability sets the slot's availability to next only if it
	// currently equals expected, and reports whether the row changed.
	SwapSlotAvailability(ctx context.Context, slotID string, expected, next bool) (bool, error)

	// InsertAppointment assigns ID and timestamps. It returns ErrLostRace when
	// the slot already has a non-cancelled appointment.
	InsertAppointment(ctx context.Context, appt *model.Appointment) error

	// SwapAppointmentStatus is the status counterpart of SwapSlotAvailability.
	SwapAppointmentStatus(ctx context.Context, appointmentID string, expected, next model.AppointmentStatus) (bool, error)

	// RecordEvent queues a post-commit event for asynchronous delivery. A
	// failure must not invalidate other writes made through the same Store.
	RecordEvent(ctx context.Context, evt outbox.Event) error

	RecordReconciliation(ctx context.Context, item model.ReconciliationItem) error
}

// Transactional is implemented by stores that can apply several writes
// atomically. fn receives a Store bound to the transaction.
type Transactional interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

// Caller is the authenticated staff member behind a request.
type Caller struct {
	UserID string
	Role   model.StaffRole
}

// Authorizer decides whether caller may change appt's status.
type Authorizer interface {
	CanTransition(ctx context.Context, caller Caller, appt model.Appointment) (bool, error)
}

type AuthorizerFunc func(ctx context.Context, caller Caller, appt model.Appointment) (bool, error)

func (f AuthorizerFunc) CanTransition(ctx context.Context, caller Caller, appt model.Appointment) (bool, error) {
	return f(ctx, caller, appt)
}
