package handlers

import (
	"errors"
	"net/http"

	"github.com/healthcarepro/clinicbook/libs/httpx"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/identity"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/media"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/storage"
	"go.uber.org/zap"
)

// writeError maps domain and storage errors to API responses. Unrecognised
// errors are store failures: retryable ones are 503, rejected statements 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Error:   "validation_error",
			Message: "some fields are missing or invalid",
			Fields:  verr.Fields,
		})
	case errors.Is(err, booking.ErrStaleSelection):
		httpx.WriteError(w, http.StatusConflict, "slot_unavailable", "this time slot is no longer available, please pick another")
	case errors.Is(err, booking.ErrLostRace):
		httpx.WriteError(w, http.StatusConflict, "slot_taken", "someone else just booked this time slot, please pick another")
	case errors.Is(err, booking.ErrSlotExpired):
		httpx.WriteError(w, http.StatusConflict, "slot_expired", "this time slot has already started")
	case errors.Is(err, booking.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, booking.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "you may not perform this action")
	case errors.Is(err, booking.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, storage.ErrConflict), errors.Is(err, identity.ErrDuplicate):
		httpx.WriteError(w, http.StatusConflict, "conflict", "a record with the same key already exists")
	case errors.Is(err, storage.ErrInUse):
		httpx.WriteError(w, http.StatusConflict, "in_use", "the record is still in use")
	case errors.Is(err, storage.ErrStaleWrite):
		httpx.WriteError(w, http.StatusConflict, "stale_write", "the record changed since you loaded it, reload and retry")
	case errors.Is(err, identity.ErrWeakPassword):
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
			Error:  "validation_error",
			Fields: map[string]string{"password": "must be at least 8 characters"},
		})
	case errors.Is(err, media.ErrUnsupportedImage):
		httpx.WriteError(w, http.StatusUnsupportedMediaType, "unsupported_image", "upload a JPEG, PNG, WebP or GIF image")
	case errors.Is(err, media.ErrDisabled):
		httpx.WriteError(w, http.StatusNotImplemented, "upload_disabled", err.Error())
	default:
		logger.Error("request failed",
			zap.String("request_id", httpx.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		if !storage.Retryable(err) {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "the request could not be completed")
			return
		}
		httpx.WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "the service is temporarily unavailable, please retry")
	}
}

func badRequest(w http.ResponseWriter, err error) {
	httpx.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
}

func invalid(field, msg string) error {
	return &booking.ValidationError{Fields: map[string]string{field: msg}}
}
