package handlers

import (
	"context"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/healthcarepro/clinicbook/libs/httpx"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/audit"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/identity"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/storage"
	"go.uber.org/zap"
)

// AdminStore is the record surface of the admin screens.
type AdminStore interface {
	Overview(ctx context.Context) (model.Overview, error)
	ListAppointments(ctx context.Context, f storage.AppointmentFilter) ([]model.AppointmentView, error)
	ListStaff(ctx context.Context) ([]model.StaffAccount, error)
	CreateStaff(ctx context.Context, acct *model.StaffAccount) error
	UpdateStaff(ctx context.Context, id string, p storage.StaffPatch) (model.StaffAccount, error)
	DeleteStaff(ctx context.Context, id string) (model.StaffAccount, error)
	RecentReconciliation(ctx context.Context, openOnly bool, limit int) ([]model.ReconciliationItem, error)
}

type AuditLog interface {
	audit.Recorder
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

// AdminHandler serves staff account management and the admin dashboard.
type AdminHandler struct {
	store       AdminStore
	provisioner identity.Provisioner
	audit       AuditLog
	logger      *zap.Logger
}

func NewAdminHandler(store AdminStore, provisioner identity.Provisioner, auditRepo AuditLog, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{store: store, provisioner: provisioner, audit: auditRepo, logger: logger}
}

func (h *AdminHandler) Register(mux *http.ServeMux, admin func(http.Handler) http.Handler) {
	mux.Handle("GET /api/v1/admin/overview", admin(http.HandlerFunc(h.Overview)))
	mux.Handle("GET /api/v1/admin/activity", admin(http.HandlerFunc(h.Activity)))
	mux.Handle("GET /api/v1/admin/staff", admin(http.HandlerFunc(h.ListStaff)))
	mux.Handle("POST /api/v1/admin/staff", admin(http.HandlerFunc(h.CreateStaff)))
	mux.Handle("PATCH /api/v1/admin/staff/{id}", admin(http.HandlerFunc(h.UpdateStaff)))
	mux.Handle("DELETE /api/v1/admin/staff/{id}", admin(http.HandlerFunc(h.DeleteStaff)))
	mux.Handle("GET /api/v1/admin/reconciliation", admin(http.HandlerFunc(h.Reconciliation)))
	mux.Handle("GET /api/v1/admin/audit", admin(http.HandlerFunc(h.Audit)))
}

func (h *AdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	o, err := h.store.Overview(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

// Activity lists appointments by most recent change, with the same
// status, search and paging parameters as the staff listing.
func (h *AdminHandler) Activity(w http.ResponseWriter, r *http.Request) {
	f, err := appointmentFilter(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	f.Order = storage.RecentlyUpdated
	items, err := h.store.ListAppointments(r.Context(), f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []model.AppointmentView{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"activity": items})
}

func (h *AdminHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.store.ListStaff(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if staff == nil {
		staff = []model.StaffAccount{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"staff": staff})
}

type createStaffInput struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     model.StaffRole `json:"role"`
}

func (in *createStaffInput) validate() error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	verr := &booking.ValidationError{Fields: map[string]string{}}
	if in.Email == "" {
		verr.Fields["email"] = "is required"
	} else if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		verr.Fields["email"] = "must be a valid email address"
	}
	if len(in.Password) < identity.MinPasswordLength {
		verr.Fields["password"] = "must be at least 8 characters"
	}
	if in.Role == "" {
		in.Role = model.RoleStaff
	}
	if !in.Role.Valid() {
		verr.Fields["role"] = "must be staff or admin"
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// CreateStaff provisions the login identity first, then the account. When
// the account insert fails the identity is removed again.
func (h *AdminHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var in createStaffInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		badRequest(w, err)
		return
	}
	if err := in.validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ctx := r.Context()
	userID, err := h.provisioner.Create(ctx, in.Email, in.Password, in.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	acct := model.StaffAccount{UserID: userID, Email: in.Email, Role: in.Role, Active: true}
	if err := h.store.CreateStaff(ctx, &acct); err != nil {
		if derr := h.provisioner.Delete(ctx, userID); derr != nil {
			h.logger.Error("orphaned identity after failed staff create",
				zap.String("user_id", userID), zap.Error(derr))
		}
		writeError(w, r, h.logger, err)
		return
	}
	record(ctx, h.audit, h.logger, audit.StaffCreated, actorID(r), map[string]any{
		"staff_id": acct.ID, "email": acct.Email, "role": acct.Role,
	})
	httpx.WriteJSON(w, http.StatusCreated, acct)
}

type updateStaffInput struct {
	Role   *model.StaffRole `json:"role"`
	Active *bool            `json:"is_active"`
}

// UpdateStaff changes role or active flag. Admins cannot demote or
// deactivate themselves.
func (h *AdminHandler) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	var in updateStaffInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		badRequest(w, err)
		return
	}
	if in.Role == nil && in.Active == nil {
		writeError(w, r, h.logger, invalid("role", "role or is_active is required"))
		return
	}
	if in.Role != nil && !in.Role.Valid() {
		writeError(w, r, h.logger, invalid("role", "must be staff or admin"))
		return
	}
	id := r.PathValue("id")
	if h.isSelf(r, id) && ((in.Role != nil && *in.Role != model.RoleAdmin) || (in.Active != nil && !*in.Active)) {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "you cannot demote or deactivate your own account")
		return
	}
	acct, err := h.store.UpdateStaff(r.Context(), id, storage.StaffPatch{Role: in.Role, Active: in.Active})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	record(r.Context(), h.audit, h.logger, audit.StaffUpdated, actorID(r), map[string]any{
		"staff_id": acct.ID, "role": acct.Role, "is_active": acct.Active,
	})
	httpx.WriteJSON(w, http.StatusOK, acct)
}

// DeleteStaff removes the account, then the identity. Identity removal is
// best-effort: the account row is what grants access.
func (h *AdminHandler) DeleteStaff(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if h.isSelf(r, id) {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "you cannot delete your own account")
		return
	}
	acct, err := h.store.DeleteStaff(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.provisioner.Delete(r.Context(), acct.UserID); err != nil {
		h.logger.Warn("identity removal failed", zap.String("user_id", acct.UserID), zap.Error(err))
	}
	record(r.Context(), h.audit, h.logger, audit.StaffDeleted, actorID(r), map[string]any{
		"staff_id": acct.ID, "email": acct.Email,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) isSelf(r *http.Request, staffID string) bool {
	acct, ok := staffFromContext(r.Context())
	return ok && acct.ID == staffID
}

// Reconciliation lists open items, or all recent ones with ?all=true.
func (h *AdminHandler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.RecentReconciliation(r.Context(), r.URL.Query().Get("all") != "true", queryLimit(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []model.ReconciliationItem{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	events, err := h.audit.ListRecent(r.Context(), queryLimit(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func queryLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}
