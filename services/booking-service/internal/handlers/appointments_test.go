package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking/bookingtest"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLister struct {
	got   storage.AppointmentFilter
	items []model.AppointmentView
	err   error
}

func (f *fakeLister) ListAppointments(_ context.Context, filter storage.AppointmentFilter) ([]model.AppointmentView, error) {
	f.got = filter
	return f.items, f.err
}

type auditEntry struct {
	action, actor string
}

type fakeAudit struct{ entries []auditEntry }

func (a *fakeAudit) Record(_ context.Context, action, actor string, _ map[string]any) error {
	a.entries = append(a.entries, auditEntry{action, actor})
	return nil
}

type staffFixture struct {
	store *bookingtest.Store
	list  *fakeLister
	audit *fakeAudit
	mux   *http.ServeMux
	appt  model.Appointment
}

func newStaffFixture(t *testing.T) staffFixture {
	t.Helper()
	st := bookingtest.NewStore()
	doc := st.AddDoctor(model.Doctor{Name: "Dr. Amina Rahman", Specialty: "Cardiology"})
	slot := st.AddSlot(model.TimeSlot{DoctorID: doc.ID, Date: "2024-06-01", StartTime: "09:00", EndTime: "09:30", Available: true})
	st.AddStaff(model.StaffAccount{UserID: "nurse-1", Email: "nurse@clinic.test", Role: model.RoleStaff, Active: true})
	st.AddStaff(model.StaffAccount{UserID: "former-1", Email: "former@clinic.test", Role: model.RoleStaff, Active: false})

	appt, err := booking.NewReserver(st, nil, testOptions()).Book(context.Background(), booking.BookingRequest{
		SlotID: slot.ID, FirstName: "Nadia", LastName: "Karim", Email: "nadia@example.com",
		Phone: "01711000000", EducationLevel: "Other",
	})
	require.NoError(t, err)

	trans := booking.NewTransitioner(st, booking.StaffAuthorizer{Staff: st}, zap.NewNop(), booking.RetryPolicy{MaxTries: 1})
	list := &fakeLister{}
	rec := &fakeAudit{}
	guard := Guard{Staff: st}
	mux := http.NewServeMux()
	NewAppointmentHandler(list, trans, rec, zap.NewNop()).Register(mux, guard.Require(model.RoleStaff, model.RoleAdmin))
	return staffFixture{store: st, list: list, audit: rec, mux: mux, appt: appt}
}

func (f staffFixture) do(method, path, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestGuardRejectsMissingAndInactiveCallers(t *testing.T) {
	f := newStaffFixture(t)
	path := "/api/v1/staff/appointments/" + f.appt.ID + "/confirm"

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, path, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, path, "stranger").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, path, "former-1").Code)

	appt, err := f.store.GetAppointment(context.Background(), f.appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, appt.Status)
}

func TestConfirmThenCancelEndpoints(t *testing.T) {
	f := newStaffFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/staff/appointments/"+f.appt.ID+"/confirm", "nurse-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res booking.TransitionResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, model.StatusConfirmed, res.Appointment.Status)
	assert.True(t, res.SlotSynced)

	rec = f.do(http.MethodPost, "/api/v1/staff/appointments/"+f.appt.ID+"/confirm", "nurse-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Error)

	rec = f.do(http.MethodPost, "/api/v1/staff/appointments/"+f.appt.ID+"/cancel", "nurse-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.store.Slot(f.appt.TimeSlotID).Available)

	require.Len(t, f.audit.entries, 2)
	assert.Equal(t, auditEntry{"appointment.confirmed", "nurse-1"}, f.audit.entries[0])
	assert.Equal(t, auditEntry{"appointment.cancelled", "nurse-1"}, f.audit.entries[1])
}

func TestConfirmUnknownAppointment(t *testing.T) {
	f := newStaffFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/staff/appointments/nope/confirm", "nurse-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAppointmentsFilter(t *testing.T) {
	f := newStaffFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/staff/appointments?status=confirmed&q=karim&limit=20", "nurse-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusConfirmed, f.list.got.Status)
	assert.Equal(t, "karim", f.list.got.Search)
	assert.Equal(t, 20, f.list.got.Limit)
	assert.JSONEq(t, `{"appointments":[]}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/v1/staff/appointments?status=all", "nurse-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.list.got.Status)

	rec = f.do(http.MethodGet, "/api/v1/staff/appointments?status=done", "nurse-1")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStoreFailureIsServiceUnavailable(t *testing.T) {
	f := newStaffFixture(t)
	f.list.err = errors.New("connection reset")

	rec := f.do(http.MethodGet, "/api/v1/staff/appointments", "nurse-1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", decodeError(t, rec).Error)
}

func TestRejectedStatementIsInternalError(t *testing.T) {
	f := newStaffFixture(t)
	f.list.err = fmt.Errorf("%w: column does not exist", booking.ErrStoreRejected)

	rec := f.do(http.MethodGet, "/api/v1/staff/appointments", "nurse-1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeError(t, rec).Error)
}
