package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"go.uber.org/zap"
)

// RetryPolicy bounds the slot-availability retries after a status change.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxTries == 0 {
		p.MaxTries = 3
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 100 * time.Millisecond
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 2 * time.Second
	}
	return p
}

// TransitionResult reports the new appointment state. SlotSynced is false
// when the slot write kept failing and was queued for reconciliation.
type TransitionResult struct {
	Appointment model.Appointment `json:"appointment"`
	SlotSynced  bool              `json:"slot_synced"`
}

// Transitioner applies staff status changes and keeps slot availability in
// step with them.
type Transitioner struct {
	store  Store
	authz  Authorizer
	logger *zap.Logger
	retry  RetryPolicy
}

func NewTransitioner(store Store, authz Authorizer, logger *zap.Logger, retry RetryPolicy) *Transitioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transitioner{store: store, authz: authz, logger: logger, retry: retry.withDefaults()}
}

func (t *Transitioner) Confirm(ctx context.Context, caller Caller, appointmentID string) (TransitionResult, error) {
	return t.Apply(ctx, caller, appointmentID, model.TransitionConfirm)
}

func (t *Transitioner) Cancel(ctx context.Context, caller Caller, appointmentID string) (TransitionResult, error) {
	return t.Apply(ctx, caller, appointmentID, model.TransitionCancel)
}

// Apply writes the appointment status first and the slot availability
// second. A failed slot write is retried and then recorded for
// reconciliation; it does not fail the call.
func (t *Transitioner) Apply(ctx context.Context, caller Caller, appointmentID string, action model.Transition) (TransitionResult, error) {
	if appointmentID == "" {
		return TransitionResult{}, &ValidationError{Fields: map[string]string{"appointment_id": "is required"}}
	}
	appt, err := t.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return TransitionResult{}, storeErr("get appointment", err)
	}

	allowed, err := t.authz.CanTransition(ctx, caller, appt)
	if err != nil {
		return TransitionResult{}, storeErr("authorize transition", err)
	}
	if !allowed {
		return TransitionResult{}, ErrForbidden
	}

	next, ok := appt.Status.Next(action)
	if !ok {
		return TransitionResult{}, fmt.Errorf("%w: cannot %s an appointment that is %s", ErrInvalidTransition, action, appt.Status)
	}

	swapped, err := t.store.SwapAppointmentStatus(ctx, appt.ID, appt.Status, next)
	if err != nil {
		return TransitionResult{}, storeErr("update appointment status", err)
	}
	if !swapped {
		current, err := t.store.GetAppointment(ctx, appt.ID)
		if err != nil {
			return TransitionResult{}, storeErr("get appointment", err)
		}
		return TransitionResult{}, fmt.Errorf("%w: appointment changed to %s while this request was in flight", ErrInvalidTransition, current.Status)
	}
	prev := appt.Status
	appt.Status = next

	t.logger.Info("appointment status changed",
		zap.String("appointment_id", appt.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.String("actor_id", caller.UserID),
	)

	res := TransitionResult{Appointment: appt}
	res.SlotSynced = t.syncSlot(ctx, appt, action.SlotAvailableAfter())

	if action == model.TransitionConfirm {
		t.notify(ctx, appt)
	}

	// Re-read for updated_at; the status itself is known.
	if fresh, err := t.store.GetAppointment(ctx, appt.ID); err == nil {
		res.Appointment = fresh
	}
	return res, nil
}

// syncSlot drives the slot to the wanted availability with a conditional
// write. Finding it already there counts as success.
func (t *Transitioner) syncSlot(ctx context.Context, appt model.Appointment, available bool) bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.retry.InitialInterval
	b.MaxInterval = t.retry.MaxInterval

	attempts := 0
	_, err := backoff.Retry(ctx, func() (bool, error) {
		attempts++
		changed, err := t.store.SwapSlotAvailability(ctx, appt.TimeSlotID, !available, available)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStoreRejected) {
			return false, backoff.Permanent(err)
		}
		return changed, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(t.retry.MaxTries))
	if err == nil {
		return true
	}

	t.logger.Warn("slot availability out of sync with appointment",
		zap.String("appointment_id", appt.ID),
		zap.String("slot_id", appt.TimeSlotID),
		zap.Bool("desired_available", available),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	item := model.ReconciliationItem{
		Kind:             model.ReconcileSlotSync,
		AppointmentID:    appt.ID,
		TimeSlotID:       appt.TimeSlotID,
		DesiredAvailable: available,
		Detail:           err.Error(),
		Attempts:         attempts,
	}
	if err := t.store.RecordReconciliation(context.WithoutCancel(ctx), item); err != nil {
		t.logger.Error("manual reconciliation required: slot availability drift",
			zap.String("appointment_id", appt.ID),
			zap.String("slot_id", appt.TimeSlotID),
			zap.Error(err),
		)
	}
	return false
}

func (t *Transitioner) notify(ctx context.Context, appt model.Appointment) {
	err := func() error {
		doctor, err := t.store.GetDoctor(ctx, appt.DoctorID)
		if err != nil {
			return err
		}
		slot, err := t.store.GetSlot(ctx, appt.TimeSlotID)
		if err != nil {
			return err
		}
		evt, err := appointmentEvent(EventAppointmentConfirmed, appt, doctor, slot)
		if err != nil {
			return err
		}
		return t.store.RecordEvent(ctx, evt)
	}()
	if err != nil {
		t.logger.Warn("confirmation notification not queued", zap.String("appointment_id", appt.ID), zap.Error(err))
	}
}
