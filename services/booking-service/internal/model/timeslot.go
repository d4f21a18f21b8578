package model

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// TimeSlot is a bookable interval on one calendar day. Date and clock times
// are wall-clock values in the clinic's time zone.
type TimeSlot struct {
	ID        string    `json:"id"`
	DoctorID  string    `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Available bool      `json:"is_available"`
	CreatedAt time.Time `json:"created_at"`
}

// Start resolves the slot start to an instant in loc.
func (s TimeSlot) Start(loc *time.Location) (time.Time, error) {
	return wallClock(s.Date, s.StartTime, loc)
}

func (s TimeSlot) End(loc *time.Location) (time.Time, error) {
	return wallClock(s.Date, s.EndTime, loc)
}

func wallClock(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot time %q %q: %w", date, clock, err)
	}
	return t, nil
}
