package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/healthcarepro/clinicbook/libs/httpx"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/audit"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/availability"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/storage"
	"go.uber.org/zap"
)

// SlotStore is the record surface of the staff time-slot screens.
type SlotStore interface {
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
	ListSlots(ctx context.Context, doctorID string, f storage.SlotFilter) ([]model.TimeSlot, error)
	CreateSlots(ctx context.Context, slots []model.TimeSlot) ([]model.TimeSlot, error)
	ToggleSlot(ctx context.Context, id string, expected, next bool) (model.TimeSlot, error)
	DeleteSlot(ctx context.Context, id string) error
}

// SlotHandler serves staff time-slot management.
type SlotHandler struct {
	store  SlotStore
	audit  audit.Recorder
	logger *zap.Logger
	opts   booking.Options
}

func NewSlotHandler(store SlotStore, rec audit.Recorder, logger *zap.Logger, opts booking.Options) *SlotHandler {
	return &SlotHandler{store: store, audit: rec, logger: logger, opts: opts}
}

func (h *SlotHandler) Register(mux *http.ServeMux, staff func(http.Handler) http.Handler) {
	mux.Handle("GET /api/v1/staff/doctors/{id}/slots", staff(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/v1/staff/doctors/{id}/slots", staff(http.HandlerFunc(h.Create)))
	mux.Handle("POST /api/v1/staff/doctors/{id}/slots/generate", staff(http.HandlerFunc(h.Generate)))
	mux.Handle("PATCH /api/v1/staff/slots/{id}", staff(http.HandlerFunc(h.SetAvailability)))
	mux.Handle("DELETE /api/v1/staff/slots/{id}", staff(http.HandlerFunc(h.Delete)))
}

type slotInput struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available *bool  `json:"is_available"`
}

// validate normalizes the clock fields to HH:MM and rejects slots that end
// before they start or begin in the past.
func (in *slotInput) validate(now time.Time, loc *time.Location) error {
	verr := &booking.ValidationError{Fields: map[string]string{}}
	in.Date = strings.TrimSpace(in.Date)
	day, err := time.ParseInLocation(model.DateLayout, in.Date, loc)
	if err != nil {
		verr.Fields["date"] = "must be a date formatted YYYY-MM-DD"
	}
	start, startErr := parseClock(in.StartTime)
	if startErr != nil {
		verr.Fields["start_time"] = "must be a time formatted HH:MM"
	}
	end, endErr := parseClock(in.EndTime)
	if endErr != nil {
		verr.Fields["end_time"] = "must be a time formatted HH:MM"
	}
	if startErr == nil && endErr == nil && !start.Before(end) {
		verr.Fields["end_time"] = "must be after start_time"
	}
	if err == nil && startErr == nil {
		at := time.Date(day.Year(), day.Month(), day.Day(), start.Hour(), start.Minute(), 0, 0, loc)
		if at.Before(now) {
			verr.Fields["start_time"] = "must not be in the past"
		}
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	in.StartTime = start.Format(model.ClockLayout)
	in.EndTime = end.Format(model.ClockLayout)
	return nil
}

// parseClock accepts HH:MM and the HH:MM:SS form HTML time inputs send.
func parseClock(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(model.ClockLayout, s); err == nil {
		return t, nil
	}
	return time.Parse("15:04:05", s)
}

// List returns every slot of a doctor, past ones included, for staff.
// ?from=YYYY-MM-DD narrows it.
func (h *SlotHandler) List(w http.ResponseWriter, r *http.Request) {
	doctorID := r.PathValue("id")
	if _, err := h.store.GetDoctor(r.Context(), doctorID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	if from != "" {
		if _, err := time.Parse(model.DateLayout, from); err != nil {
			writeError(w, r, h.logger, invalid("from", "must be a date formatted YYYY-MM-DD"))
			return
		}
	}
	slots, err := h.store.ListSlots(r.Context(), doctorID, storage.SlotFilter{FromDate: from})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if slots == nil {
		slots = []model.TimeSlot{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (h *SlotHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in slotInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		badRequest(w, err)
		return
	}
	if err := in.validate(h.opts.Now(), h.opts.Location); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	slot := model.TimeSlot{
		DoctorID:  r.PathValue("id"),
		Date:      in.Date,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Available: in.Available == nil || *in.Available,
	}
	created, err := h.store.CreateSlots(r.Context(), []model.TimeSlot{slot})
	if errors.Is(err, storage.ErrConflict) {
		httpx.WriteError(w, http.StatusConflict, "slot_exists", "the doctor already has a slot starting at this time")
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	slot = created[0]
	record(r.Context(), h.audit, h.logger, audit.SlotCreated, actorID(r), map[string]any{
		"time_slot_id": slot.ID, "doctor_id": slot.DoctorID, "date": slot.Date, "start_time": slot.StartTime,
	})
	httpx.WriteJSON(w, http.StatusCreated, slot)
}

type generateInput struct {
	Date            string `json:"date"`
	From            string `json:"from"`
	To              string `json:"to"`
	DurationMinutes int    `json:"duration_minutes"`
}

// plan turns a working window into back-to-back slot intervals that do not
// overlap the doctor's existing slots and do not start before now.
func (in generateInput) plan(existing []model.TimeSlot, now time.Time, loc *time.Location) ([]availability.Interval, error) {
	verr := &booking.ValidationError{Fields: map[string]string{}}
	day, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(in.Date), loc)
	if err != nil {
		verr.Fields["date"] = "must be a date formatted YYYY-MM-DD"
	}
	from, fromErr := parseClock(in.From)
	if fromErr != nil {
		verr.Fields["from"] = "must be a time formatted HH:MM"
	}
	to, toErr := parseClock(in.To)
	if toErr != nil {
		verr.Fields["to"] = "must be a time formatted HH:MM"
	}
	if fromErr == nil && toErr == nil && !from.Before(to) {
		verr.Fields["to"] = "must be after from"
	}
	if in.DurationMinutes < 5 || in.DurationMinutes > 480 {
		verr.Fields["duration_minutes"] = "must be between 5 and 480"
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	at := func(c time.Time) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, loc)
	}
	d := time.Duration(in.DurationMinutes) * time.Minute
	return availability.Plan(at(from), at(to), d, d, availability.Busy(existing, loc), now), nil
}

// Generate creates slots for a working window in one call. Intervals that
// overlap an existing slot are skipped.
func (h *SlotHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var in generateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		badRequest(w, err)
		return
	}
	doctorID := r.PathValue("id")
	ctx := r.Context()
	if _, err := h.store.GetDoctor(ctx, doctorID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	// Validate before the date reaches SQL; plan repeats it with the slots.
	if _, err := in.plan(nil, h.opts.Now(), h.opts.Location); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	existing, err := h.store.ListSlots(ctx, doctorID, storage.SlotFilter{FromDate: strings.TrimSpace(in.Date)})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	intervals, _ := in.plan(existing, h.opts.Now(), h.opts.Location)

	batch := make([]model.TimeSlot, 0, len(intervals))
	for _, iv := range intervals {
		batch = append(batch, model.TimeSlot{
			DoctorID:  doctorID,
			Date:      iv.Start.In(h.opts.Location).Format(model.DateLayout),
			StartTime: iv.Start.In(h.opts.Location).Format(model.ClockLayout),
			EndTime:   iv.End.In(h.opts.Location).Format(model.ClockLayout),
			Available: true,
		})
	}
	created, err := h.store.CreateSlots(ctx, batch)
	if errors.Is(err, storage.ErrConflict) {
		httpx.WriteError(w, http.StatusConflict, "slot_exists", "slots changed while generating, reload and retry")
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if created == nil {
		created = []model.TimeSlot{}
	}
	record(ctx, h.audit, h.logger, audit.SlotCreated, actorID(r), map[string]any{
		"doctor_id": doctorID, "date": in.Date, "count": len(created),
	})
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"slots": created})
}

// SetAvailability flips a slot to is_available, provided it currently holds
// the opposite value. Freeing a slot a live appointment holds is refused.
func (h *SlotHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Available *bool `json:"is_available"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		badRequest(w, err)
		return
	}
	if in.Available == nil {
		writeError(w, r, h.logger, invalid("is_available", "is required"))
		return
	}
	id := r.PathValue("id")
	next := *in.Available
	slot, err := h.store.ToggleSlot(r.Context(), id, !next, next)
	switch {
	case errors.Is(err, storage.ErrInUse):
		httpx.WriteError(w, http.StatusConflict, "slot_booked", "the slot has a pending or confirmed appointment; cancel it instead")
		return
	case err != nil:
		writeError(w, r, h.logger, err)
		return
	}
	record(r.Context(), h.audit, h.logger, audit.SlotToggled, actorID(r), map[string]any{"time_slot_id": id, "is_available": next})
	httpx.WriteJSON(w, http.StatusOK, slot)
}

func (h *SlotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.store.DeleteSlot(r.Context(), id)
	if errors.Is(err, storage.ErrInUse) {
		httpx.WriteError(w, http.StatusConflict, "slot_has_appointments", "appointments reference this slot; mark it unavailable instead")
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	record(r.Context(), h.audit, h.logger, audit.SlotDeleted, actorID(r), map[string]any{"time_slot_id": id})
	w.WriteHeader(http.StatusNoContent)
}
