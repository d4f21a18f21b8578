package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/healthcarepro/clinicbook/libs/httpx"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/audit"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/media"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/storage"
	"go.uber.org/zap"
)

// DoctorStore is the record surface of the staff doctor screens.
type DoctorStore interface {
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
	ListDoctorsForStaff(ctx context.Context, includeArchived bool) ([]model.Doctor, error)
	CreateDoctor(ctx context.Context, d *model.Doctor) error
	UpdateDoctor(ctx context.Context, d *model.Doctor) error
	ArchiveDoctor(ctx context.Context, id, today string) error
	SetDoctorImage(ctx context.Context, id, url string) error
}

// DoctorHandler serves staff doctor management.
type DoctorHandler struct {
	store    DoctorStore
	dir      Directory
	uploader media.Uploader
	audit    audit.Recorder
	logger   *zap.Logger
	opts     booking.Options
}

func NewDoctorHandler(store DoctorStore, dir Directory, uploader media.Uploader, rec audit.Recorder, logger *zap.Logger, opts booking.Options) *DoctorHandler {
	return &DoctorHandler{store: store, dir: dir, uploader: uploader, audit: rec, logger: logger, opts: opts}
}

func (h *DoctorHandler) Register(mux *http.ServeMux, staff func(http.Handler) http.Handler) {
	mux.Handle("GET /api/v1/staff/doctors", staff(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/v1/staff/doctors", staff(http.HandlerFunc(h.Create)))
	mux.Handle("PUT /api/v1/staff/doctors/{id}", staff(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/v1/staff/doctors/{id}", staff(http.HandlerFunc(h.Archive)))
	mux.Handle("POST /api/v1/staff/doctors/{id}/image", staff(http.HandlerFunc(h.UploadImage)))
}

type doctorInput struct {
	Name        string `json:"name"`
	Specialty   string `json:"specialty"`
	Description string `json:"description"`
}

func (in *doctorInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Specialty = strings.TrimSpace(in.Specialty)
	in.Description = strings.TrimSpace(in.Description)

	verr := &booking.ValidationError{Fields: map[string]string{}}
	if in.Name == "" {
		verr.Fields["name"] = "is required"
	} else if utf8.RuneCountInString(in.Name) > 120 {
		verr.Fields["name"] = "must be at most 120 characters"
	}
	if in.Specialty == "" {
		verr.Fields["specialty"] = "is required"
	}
	if utf8.RuneCountInString(in.Description) > 2000 {
		verr.Fields["description"] = "must be at most 2000 characters"
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// List includes archived doctors with ?archived=true.
func (h *DoctorHandler) List(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.store.ListDoctorsForStaff(r.Context(), r.URL.Query().Get("archived") == "true")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if doctors == nil {
		doctors = []model.Doctor{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"doctors": doctors})
}

func (h *DoctorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in doctorInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		badRequest(w, err)
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	d := model.Doctor{Name: in.Name, Specialty: in.Specialty, Description: in.Description}
	if err := h.store.CreateDoctor(r.Context(), &d); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.dir.Invalidate(r.Context())
	record(r.Context(), h.audit, h.logger, audit.DoctorCreated, actorID(r), map[string]any{"doctor_id": d.ID, "name": d.Name})
	httpx.WriteJSON(w, http.StatusCreated, d)
}

func (h *DoctorHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in doctorInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		badRequest(w, err)
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	d := model.Doctor{ID: r.PathValue("id"), Name: in.Name, Specialty: in.Specialty, Description: in.Description}
	if err := h.store.UpdateDoctor(r.Context(), &d); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.dir.Invalidate(r.Context())
	record(r.Context(), h.audit, h.logger, audit.DoctorUpdated, actorID(r), map[string]any{"doctor_id": d.ID})
	httpx.WriteJSON(w, http.StatusOK, d)
}

// Archive hides the doctor from patients. Refused while the doctor has
// slots today or later; staff must delete or let them pass first.
func (h *DoctorHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	today := h.opts.Now().In(h.opts.Location).Format(model.DateLayout)
	err := h.store.ArchiveDoctor(r.Context(), id, today)
	if errors.Is(err, storage.ErrInUse) {
		httpx.WriteError(w, http.StatusConflict, "doctor_has_upcoming_slots", "remove the doctor's upcoming time slots before archiving")
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.dir.Invalidate(r.Context())
	record(r.Context(), h.audit, h.logger, audit.DoctorArchived, actorID(r), map[string]any{"doctor_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage accepts a multipart form with an "image" file.
func (h *DoctorHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.store.GetDoctor(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxImageBytes+64<<10)
	file, _, err := r.FormFile("image")
	if err != nil {
		badRequest(w, errors.New("multipart field \"image\" is required and must be at most 5MB"))
		return
	}
	defer file.Close()

	body, _, err := media.Sniff(file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	url, err := h.uploader.Upload(r.Context(), body)
	if err != nil {
		if errors.Is(err, media.ErrDisabled) {
			writeError(w, r, h.logger, err)
			return
		}
		h.logger.Error("image upload failed", zap.String("doctor_id", id), zap.Error(err))
		httpx.WriteError(w, http.StatusBadGateway, "upload_failed", "the image could not be stored, please retry")
		return
	}
	if err := h.store.SetDoctorImage(r.Context(), id, url); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.dir.Invalidate(r.Context())
	record(r.Context(), h.audit, h.logger, audit.DoctorImageUpdated, actorID(r), map[string]any{"doctor_id": id})
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"profile_image_url": url})
}
