package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMachine(t *testing.T) {
	next, ok := StatusPending.Next(TransitionConfirm)
	assert.True(t, ok)
	assert.Equal(t, StatusConfirmed, next)

	for _, from := range []AppointmentStatus{StatusPending, StatusConfirmed} {
		next, ok := from.Next(TransitionCancel)
		assert.True(t, ok, from)
		assert.Equal(t, StatusCancelled, next)
	}

	_, ok = StatusConfirmed.Next(TransitionConfirm)
	assert.False(t, ok)
	_, ok = StatusCancelled.Next(TransitionConfirm)
	assert.False(t, ok)
	_, ok = StatusCancelled.Next(TransitionCancel)
	assert.False(t, ok)

	assert.True(t, TransitionCancel.SlotAvailableAfter())
	assert.False(t, TransitionConfirm.SlotAvailableAfter())
	assert.False(t, StatusCancelled.HoldsSlot())
}

func TestSlotStartInLocation(t *testing.T) {
	loc := time.FixedZone("BDT", 6*60*60)
	s := TimeSlot{Date: "2026-03-14", StartTime: "09:30", EndTime: "10:00"}

	start, err := s.Start(loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 3, 30, 0, 0, time.UTC), start.UTC())

	_, err = TimeSlot{Date: "14/03/2026", StartTime: "09:30"}.Start(loc)
	assert.Error(t, err)
}
