package booking

import (
	"context"
	"errors"
	"time"

	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"go.uber.org/zap"
)

// Options tunes time handling shared by the reservation and transition services.
type Options struct {
	// Location is the clinic time zone slot dates and times are written in.
	Location *time.Location
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Reserver runs the slot reservation protocol: an advisory soft-check when a
// patient picks a slot, and an authoritative hard-check-and-commit when the
// booking is submitted.
type Reserver struct {
	store  Store
	logger *zap.Logger
	opts   Options
}

func NewReserver(store Store, logger *zap.Logger, opts Options) *Reserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reserver{store: store, logger: logger, opts: opts.withDefaults()}
}

// SoftCheck re-reads a slot the patient just selected. It is advisory only;
// Book repeats the check authoritatively.
func (r *Reserver) SoftCheck(ctx context.Context, slotID string) (model.TimeSlot, error) {
	if slotID == "" {
		return model.TimeSlot{}, &ValidationError{Fields: map[string]string{"time_slot_id": "is required"}}
	}
	slot, err := r.store.GetSlot(ctx, slotID)
	if err != nil {
		return model.TimeSlot{}, storeErr("get slot", err)
	}
	if !slot.Available {
		return slot, ErrStaleSelection
	}
	if err := r.checkNotStarted(slot); err != nil {
		return slot, err
	}
	return slot, nil
}

// Book claims the slot and records a pending appointment. Exactly one of any
// number of concurrent calls for the same slot succeeds; the others get
// ErrLostRace. On any failure no appointment exists and the slot is left
// available, or a reconciliation item says why it is not.
func (r *Reserver) Book(ctx context.Context, req BookingRequest) (model.Appointment, error) {
	req.normalize()
	if err := req.Validate(); err != nil {
		return model.Appointment{}, err
	}

	// Hard check: the list the patient chose from may be minutes old.
	slot, err := r.store.GetSlot(ctx, req.SlotID)
	if err != nil {
		return model.Appointment{}, storeErr("get slot", err)
	}
	if !slot.Available {
		return model.Appointment{}, ErrLostRace
	}
	if err := r.checkNotStarted(slot); err != nil {
		return model.Appointment{}, err
	}
	doctor, err := r.store.GetDoctor(ctx, slot.DoctorID)
	if err != nil {
		return model.Appointment{}, storeErr("get doctor", err)
	}

	appt := model.Appointment{
		DoctorID:       slot.DoctorID,
		TimeSlotID:     slot.ID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
		EducationLevel: req.EducationLevel,
		Status:         model.StatusPending,
	}

	if tx, ok := r.store.(Transactional); ok {
		err = tx.InTx(ctx, func(st Store) error {
			return r.commit(ctx, st, &appt, doctor, slot, false)
		})
	} else {
		err = r.commit(ctx, r.store, &appt, doctor, slot, true)
	}
	if err != nil {
		if errors.Is(err, ErrLostRace) {
			r.logger.Info("booking lost race", zap.String("slot_id", slot.ID))
		}
		return model.Appointment{}, storeErr("commit booking", err)
	}

	r.logger.Info("appointment booked",
		zap.String("appointment_id", appt.ID),
		zap.String("slot_id", slot.ID),
		zap.String("doctor_id", slot.DoctorID),
	)
	return appt, nil
}

// commit flips the slot first and only then inserts the appointment, so a
// failure between the two leaves an unavailable slot with no appointment
// rather than an appointment without a held slot.
func (r *Reserver) commit(ctx context.Context, st Store, appt *model.Appointment, doctor model.Doctor, slot model.TimeSlot, compensate bool) error {
	claimed, err := st.SwapSlotAvailability(ctx, slot.ID, true, false)
	if err != nil {
		return storeErr("claim slot", err)
	}
	if !claimed {
		return ErrLostRace
	}

	if err := st.InsertAppointment(ctx, appt); err != nil {
		if compensate {
			r.releaseClaim(ctx, st, slot.ID, err)
		}
		return storeErr("insert appointment", err)
	}

	evt, err := appointmentEvent(EventAppointmentBooked, *appt, doctor, slot)
	if err == nil {
		err = st.RecordEvent(ctx, evt)
	}
	if err != nil {
		r.logger.Warn("booking notification not queued",
			zap.String("appointment_id", appt.ID),
			zap.Error(err),
		)
	}
	return nil
}

// releaseClaim undoes a slot claim whose appointment insert failed. If the
// release fails too, the slot is handed to reconciliation.
func (r *Reserver) releaseClaim(ctx context.Context, st Store, slotID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	_, err := st.SwapSlotAvailability(ctx, slotID, false, true)
	if err == nil {
		r.logger.Warn("released slot after failed appointment insert", zap.String("slot_id", slotID), zap.Error(cause))
		return
	}
	r.logger.Error("slot release failed", zap.String("slot_id", slotID), zap.Error(err))

	item := model.ReconciliationItem{
		Kind:             model.ReconcileOrphanedHold,
		TimeSlotID:       slotID,
		DesiredAvailable: true,
		Detail:           "appointment insert failed: " + cause.Error(),
	}
	if err := st.RecordReconciliation(ctx, item); err != nil {
		r.logger.Error("manual reconciliation required: slot held without appointment",
			zap.String("slot_id", slotID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

func (r *Reserver) checkNotStarted(slot model.TimeSlot) error {
	start, err := slot.Start(r.opts.Location)
	if err != nil {
		return err
	}
	if start.Before(r.opts.Now()) {
		return ErrSlotExpired
	}
	return nil
}
