package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/healthcarepro/clinicbook/libs/httpx"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/audit"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/storage"
	"go.uber.org/zap"
)

type Transitions interface {
	Confirm(ctx context.Context, caller booking.Caller, appointmentID string) (booking.TransitionResult, error)
	Cancel(ctx context.Context, caller booking.Caller, appointmentID string) (booking.TransitionResult, error)
}

type AppointmentLister interface {
	ListAppointments(ctx context.Context, f storage.AppointmentFilter) ([]model.AppointmentView, error)
}

// AppointmentHandler serves the staff appointment screens.
type AppointmentHandler struct {
	list   AppointmentLister
	trans  Transitions
	audit  audit.Recorder
	logger *zap.Logger
}

func NewAppointmentHandler(list AppointmentLister, trans Transitions, rec audit.Recorder, logger *zap.Logger) *AppointmentHandler {
	return &AppointmentHandler{list: list, trans: trans, audit: rec, logger: logger}
}

func (h *AppointmentHandler) Register(mux *http.ServeMux, staff func(http.Handler) http.Handler) {
	mux.Handle("GET /api/v1/staff/appointments", staff(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/v1/staff/appointments/{id}/confirm", staff(http.HandlerFunc(h.Confirm)))
	mux.Handle("POST /api/v1/staff/appointments/{id}/cancel", staff(http.HandlerFunc(h.Cancel)))
}

// List filters by ?status=all|pending|confirmed|cancelled, newest first.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := appointmentFilter(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items, err := h.list.ListAppointments(r.Context(), f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []model.AppointmentView{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.trans.Confirm, audit.AppointmentConfirmed)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.trans.Cancel, audit.AppointmentCancelled)
}

type transitionFunc func(ctx context.Context, caller booking.Caller, appointmentID string) (booking.TransitionResult, error)

func (h *AppointmentHandler) transition(w http.ResponseWriter, r *http.Request, apply transitionFunc, action string) {
	caller := callerFrom(r)
	id := r.PathValue("id")
	res, err := apply(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	record(r.Context(), h.audit, h.logger, action, caller.UserID, map[string]any{
		"appointment_id": id,
		"status":         res.Appointment.Status,
		"slot_synced":    res.SlotSynced,
	})
	httpx.WriteJSON(w, http.StatusOK, res)
}

func appointmentFilter(r *http.Request) (storage.AppointmentFilter, error) {
	q := r.URL.Query()
	f := storage.AppointmentFilter{Search: strings.TrimSpace(q.Get("q"))}
	switch status := strings.TrimSpace(q.Get("status")); status {
	case "", "all":
	default:
		s := model.AppointmentStatus(status)
		if !s.Valid() {
			return f, invalid("status", "must be one of all, pending, confirmed, cancelled")
		}
		f.Status = s
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, invalid("limit", "must be a positive integer")
		}
		f.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, invalid("offset", "must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

// record writes an audit entry. Audit failures never fail the request.
func record(ctx context.Context, rec audit.Recorder, logger *zap.Logger, action, actor string, meta map[string]any) {
	if rec == nil {
		return
	}
	if err := rec.Record(context.WithoutCancel(ctx), action, actor, meta); err != nil {
		logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
