package booking_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking/bookingtest"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)

func testOptions() booking.Options {
	return booking.Options{Location: time.UTC, Now: func() time.Time { return fixedNow }}
}

type fixture struct {
	doctor model.Doctor
	slot   model.TimeSlot
}

func seed(st *bookingtest.Store) fixture {
	doc := st.AddDoctor(model.Doctor{Name: "Dr. Amina Rahman", Specialty: "Cardiology"})
	slot := st.AddSlot(model.TimeSlot{
		DoctorID:  doc.ID,
		Date:      "2024-06-01",
		StartTime: "09:00",
		EndTime:   "09:30",
		Available: true,
	})
	return fixture{doctor: doc, slot: slot}
}

func validRequest(slotID string) booking.BookingRequest {
	return booking.BookingRequest{
		SlotID:         slotID,
		FirstName:      "Nadia",
		LastName:       "Karim",
		Email:          "nadia@example.com",
		Phone:          "+880 1711-000000",
		EducationLevel: "Bachelor's Degree",
	}
}

func TestBookCreatesPendingAppointmentAndClaimsSlot(t *testing.T) {
	st := bookingtest.NewStore()
	fx := seed(st)
	r := booking.NewReserver(st, zap.NewNop(), testOptions())

	appt, err := r.Book(context.Background(), validRequest(fx.slot.ID))
	require.NoError(t, err)

	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, model.StatusPending, appt.Status)
	assert.Equal(t, fx.doctor.ID, appt.DoctorID)
	assert.False(t, st.Slot(fx.slot.ID).Available)
	assert.Equal(t, 1, st.ActiveAppointmentsForSlot(fx.slot.ID))

	events := st.Events()
	require.Len(t, events, 1)
	assert.Equal(t, booking.EventAppointmentBooked, events[0].EventType)
	assert.Contains(t, string(events[0].Payload), "Dr. Amina Rahman")
	assert.Contains(t, string(events[0].Payload), `"start_time":"09:00"`)
}

func TestBookRejectsInvalidRequestBeforeAnyWrite(t *testing.T) {
	st := bookingtest.NewStore()
	fx := seed(st)
	r := booking.NewReserver(st, zap.NewNop(), testOptions())

	req := validRequest(fx.slot.ID)
	req.Email = ""
	_, err := r.Book(context.Background(), req)

	var verr *booking.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, booking.ErrValidation)
	assert.Equal(t, "is required", verr.Fields["email"])
	assert.Empty(t, st.Appointments())
	assert.True(t, st.Slot(fx.slot.ID).Available)
	assert.Zero(t, st.SlotWriteAttempts)
}

func TestValidateReportsEveryBadField(t *testing.T) {
	req := booking.BookingRequest{
		SlotID:         "s",
		FirstName:      "A",
		LastName:       "B",
		Email:          "not-an-email",
		Phone:          "call me",
		EducationLevel: "Kindergarten",
	}
	var verr *booking.ValidationError
	require.ErrorAs(t, req.Validate(), &verr)
	assert.Len(t, verr.Fields, 3)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "phone_number")
	assert.Contains(t, verr.Fields, "education_level")
}

func TestSoftCheck(t *testing.T) {
	st := bookingtest.NewStore()
	fx := seed(st)
	r := booking.NewReserver(st, zap.NewNop(), testOptions())
	ctx := context.Background()

	_, err := r.SoftCheck(ctx, fx.slot.ID)
	require.NoError(t, err)

	_, err = r.Book(ctx, validRequest(fx.slot.ID))
	require.NoError(t, err)

	_, err = r.SoftCheck(ctx, fx.slot.ID)
	assert.ErrorIs(t, err, booking.ErrStaleSelection)

	_, err = r.SoftCheck(ctx, "missing")
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestSlotThatAlreadyStartedIsRejected(t *testing.T) {
	st := bookingtest.NewStore()
	fx := seed(st)
	late := booking.Options{Location: time.UTC, Now: func() time.Time {
		return time.Date(2024, 6, 1, 9, 5, 0, 0, time.UTC)
	}}
	r := booking.NewReserver(st, zap.NewNop(), late)

	_, err := r.SoftCheck(context.Background(), fx.slot.ID)
	assert.ErrorIs(t, err, booking.ErrSlotExpired)
	_, err = r.Book(context.Background(), validRequest(fx.slot.ID))
	assert.ErrorIs(t, err, booking.ErrSlotExpired)
	assert.True(t, st.Slot(fx.slot.ID).Available)
}

// Two patients both pass the soft-check and the hard re-read, then race on the
// conditional write. Exactly one wins.
func TestSimultaneousSubmissionsOneWins(t *testing.T) {
	st := bookingtest.NewStore()
	fx := seed(st)
	r := booking.NewReserver(st, zap.NewNop(), testOptions())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := r.SoftCheck(ctx, fx.slot.ID)
		require.NoError(t, err)
	}

	var arrived sync.WaitGroup
	arrived.Add(2)
	st.BeforeSlotWrite = func() {
		arrived.Done()
		arrived.Wait()
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := validRequest(fx.slot.ID)
			if i == 1 {
				req.Email = "second@example.com"
			}
			_, errs[i] = r.Book(ctx, req)
		}(i)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, booking.ErrLostRace):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
	assert.False(t, st.Slot(fx.slot.ID).Available)
	assert.Equal(t, 1, st.ActiveAppointmentsForSlot(fx.slot.ID))
}

type slotCountingStore interface {
	booking.Store
	ActiveAppointmentsForSlot(slotID string) int
}

func TestManyConcurrentBookingsNeverDoubleBook(t *testing.T) {
	t.Run("compensating", func(t *testing.T) {
		st := bookingtest.NewStore()
		raceOneSlot(t, st, seed(st))
	})
	t.Run("transactional", func(t *testing.T) {
		st := bookingtest.NewTxStore()
		raceOneSlot(t, st, seed(st.Store))
	})
}

func raceOneSlot(t *testing.T, st slotCountingStore, fx fixture) {
	t.Helper()
	r := booking.NewReserver(st, zap.NewNop(), testOptions())

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Book(context.Background(), validRequest(fx.slot.ID))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, booking.ErrLostRace)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, st.ActiveAppointmentsForSlot(fx.slot.ID))
}

func TestInsertFailureReleasesClaimedSlot(t *testing.T) {
	st := bookingtest.NewStore()
	fx := seed(st)
	st.InsertErr = errors.New("connection reset")
	r := booking.NewReserver(st, zap.NewNop(), testOptions())

	_, err := r.Book(context.Background(), validRequest(fx.slot.ID))
	require.Error(t, err)
	assert.ErrorIs(t, err, booking.ErrStoreUnavailable)

	var serr *booking.StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "insert appointment", serr.Op)

	assert.True(t, st.Slot(fx.slot.ID).Available, "claim must be released")
	assert.Empty(t, st.Appointments())
	assert.Empty(t, st.Reconciliations())
}

func TestFailedReleaseIsRecordedForReconciliation(t *testing.T) {
	st := bookingtest.NewStore()
	fx := seed(st)
	st.InsertErr = errors.New("connection reset")
	st.SlotReleaseErr = errors.New("still down")
	r := booking.NewReserver(st, zap.NewNop(), testOptions())

	_, err := r.Book(context.Background(), validRequest(fx.slot.ID))
	assert.ErrorIs(t, err, booking.ErrStoreUnavailable)

	assert.False(t, st.Slot(fx.slot.ID).Available)
	assert.Empty(t, st.Appointments())
	items := st.Reconciliations()
	require.Len(t, items, 1)
	assert.Equal(t, model.ReconcileOrphanedHold, items[0].Kind)
	assert.Equal(t, fx.slot.ID, items[0].TimeSlotID)
	assert.True(t, items[0].DesiredAvailable)
}

func TestTransactionalInsertFailureRollsBackClaim(t *testing.T) {
	st := bookingtest.NewTxStore()
	fx := seed(st.Store)
	st.InsertErr = errors.New("disk full")
	r := booking.NewReserver(st, zap.NewNop(), testOptions())

	_, err := r.Book(context.Background(), validRequest(fx.slot.ID))
	assert.ErrorIs(t, err, booking.ErrStoreUnavailable)
	assert.True(t, st.Slot(fx.slot.ID).Available)
	assert.Empty(t, st.Appointments())
}

func TestRejectedInsertIsNotReportedAsOutage(t *testing.T) {
	st := bookingtest.NewStore()
	fx := seed(st)
	st.InsertErr = fmt.Errorf("%w: value too long for type character varying(100)", booking.ErrStoreRejected)
	r := booking.NewReserver(st, zap.NewNop(), testOptions())

	_, err := r.Book(context.Background(), validRequest(fx.slot.ID))
	assert.ErrorIs(t, err, booking.ErrStoreRejected)
	assert.NotErrorIs(t, err, booking.ErrStoreUnavailable)
	assert.True(t, st.Slot(fx.slot.ID).Available, "claim must be released")
}

func TestBookingSurvivesNotificationFailure(t *testing.T) {
	st := bookingtest.NewStore()
	fx := seed(st)
	st.EventErr = errors.New("outbox unavailable")
	r := booking.NewReserver(st, zap.NewNop(), testOptions())

	appt, err := r.Book(context.Background(), validRequest(fx.slot.ID))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, appt.Status)
	assert.False(t, st.Slot(fx.slot.ID).Available)
	assert.Empty(t, st.Events())
}

func TestBookUnavailableSlotIsLostRace(t *testing.T) {
	st := bookingtest.NewStore()
	fx := seed(st)
	r := booking.NewReserver(st, zap.NewNop(), testOptions())
	ctx := context.Background()

	_, err := r.Book(ctx, validRequest(fx.slot.ID))
	require.NoError(t, err)

	_, err = r.Book(ctx, validRequest(fx.slot.ID))
	assert.ErrorIs(t, err, booking.ErrLostRace)
	assert.NotErrorIs(t, err, booking.ErrStoreUnavailable)
	assert.Len(t, st.Appointments(), 1)
}
