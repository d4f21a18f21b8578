package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/healthcarepro/clinicbook/libs/httpx"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking/bookingtest"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/directory"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func testOptions() booking.Options {
	return booking.Options{Location: time.UTC, Now: func() time.Time { return testNow }}
}

type publicFixture struct {
	store  *bookingtest.Store
	mux    *http.ServeMux
	doctor model.Doctor
	slot   model.TimeSlot
}

func newPublicFixture(t *testing.T) publicFixture {
	t.Helper()
	st := bookingtest.NewStore()
	doc := st.AddDoctor(model.Doctor{Name: "Dr. Amina Rahman", Specialty: "Cardiology"})
	slot := st.AddSlot(model.TimeSlot{DoctorID: doc.ID, Date: "2024-06-01", StartTime: "09:00", EndTime: "09:30", Available: true})

	dir := directory.NewService(st, directory.Config{Options: testOptions()})
	res := booking.NewReserver(st, zap.NewNop(), testOptions())
	mux := http.NewServeMux()
	NewPublicHandler(dir, res, zap.NewNop()).Register(mux)
	return publicFixture{store: st, mux: mux, doctor: doc, slot: slot}
}

func (f publicFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func bookingBody(slotID string) string {
	raw, _ := json.Marshal(booking.BookingRequest{
		SlotID:         slotID,
		FirstName:      "Nadia",
		LastName:       "Karim",
		Email:          "nadia@example.com",
		Phone:          "+880 1711 000000",
		EducationLevel: "Master's Degree",
	})
	return string(raw)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestBookEndpointCreatesAppointment(t *testing.T) {
	f := newPublicFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/public/appointments", bookingBody(f.slot.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var appt model.Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&appt))
	assert.Equal(t, model.StatusPending, appt.Status)
	assert.Equal(t, f.doctor.ID, appt.DoctorID)
	assert.False(t, f.store.Slot(f.slot.ID).Available)
}

func TestBookEndpointSecondSubmissionIsSlotTaken(t *testing.T) {
	f := newPublicFixture(t)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/public/appointments", bookingBody(f.slot.ID)).Code)

	rec := f.do(http.MethodPost, "/api/v1/public/appointments", bookingBody(f.slot.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_taken", decodeError(t, rec).Error)
}

func TestBookEndpointValidationFields(t *testing.T) {
	f := newPublicFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/public/appointments", `{"time_slot_id":"`+f.slot.ID+`","email":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "validation_error", body.Error)
	assert.Contains(t, body.Fields, "first_name")
	assert.Contains(t, body.Fields, "email")
	assert.True(t, f.store.Slot(f.slot.ID).Available)
}

func TestBookEndpointRejectsUnknownFields(t *testing.T) {
	f := newPublicFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/public/appointments", `{"time_slot_id":"x","admin":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckSlotEndpoint(t *testing.T) {
	f := newPublicFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/public/slots/"+f.slot.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := f.store.SwapSlotAvailability(t.Context(), f.slot.ID, true, false)
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/api/v1/public/slots/"+f.slot.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decodeError(t, rec).Error)

	rec = f.do(http.MethodGet, "/api/v1/public/slots/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDoctorSlotsEndpointGroupsByDate(t *testing.T) {
	f := newPublicFixture(t)
	f.store.AddSlot(model.TimeSlot{DoctorID: f.doctor.ID, Date: "2024-06-02", StartTime: "10:00", EndTime: "10:30", Available: true})

	rec := f.do(http.MethodGet, "/api/v1/public/doctors/"+f.doctor.ID+"/slots", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Days []struct {
			Date  string           `json:"date"`
			Slots []model.TimeSlot `json:"slots"`
		} `json:"days"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Days, 2)
	assert.Equal(t, "2024-06-01", body.Days[0].Date)
	assert.Equal(t, f.slot.ID, body.Days[0].Slots[0].ID)
}

func TestListDoctorsEndpoint(t *testing.T) {
	f := newPublicFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/public/doctors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dr. Amina Rahman")
}
