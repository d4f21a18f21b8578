package handlers

import (
	"context"
	"net/http"

	"github.com/healthcarepro/clinicbook/libs/httpx"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/availability"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"go.uber.org/zap"
)

type Directory interface {
	Doctors(ctx context.Context) ([]model.Doctor, error)
	Doctor(ctx context.Context, id string) (model.Doctor, error)
	Schedule(ctx context.Context, doctorID string) ([]availability.Day, error)
	Invalidate(ctx context.Context)
}

type Reservations interface {
	SoftCheck(ctx context.Context, slotID string) (model.TimeSlot, error)
	Book(ctx context.Context, req booking.BookingRequest) (model.Appointment, error)
}

// PublicHandler serves the patient booking flow. No authentication.
type PublicHandler struct {
	dir    Directory
	res    Reservations
	logger *zap.Logger
}

func NewPublicHandler(dir Directory, res Reservations, logger *zap.Logger) *PublicHandler {
	return &PublicHandler{dir: dir, res: res, logger: logger}
}

func (h *PublicHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/public/doctors", h.ListDoctors)
	mux.HandleFunc("GET /api/v1/public/doctors/{id}", h.GetDoctor)
	mux.HandleFunc("GET /api/v1/public/doctors/{id}/slots", h.DoctorSlots)
	mux.HandleFunc("GET /api/v1/public/slots/{id}", h.CheckSlot)
	mux.HandleFunc("POST /api/v1/public/appointments", h.Book)
}

func (h *PublicHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.dir.Doctors(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"doctors": doctors})
}

func (h *PublicHandler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	d, err := h.dir.Doctor(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

func (h *PublicHandler) DoctorSlots(w http.ResponseWriter, r *http.Request) {
	days, err := h.dir.Schedule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"days": days})
}

// CheckSlot is the soft-check a client runs when the patient selects a slot.
func (h *PublicHandler) CheckSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := h.res.SoftCheck(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Info("slot selection rejected", zap.String("time_slot_id", r.PathValue("id")), zap.Error(err))
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slot)
}

func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req booking.BookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	appt, err := h.res.Book(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appt)
}
