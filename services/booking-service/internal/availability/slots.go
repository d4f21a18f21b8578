package availability

import (
	"sort"
	"time"

	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Plan returns slot intervals of length duration within [windowStart, windowEnd),
// starting every step, that do not overlap any busy interval and do not start
// before now. Staff use it to lay out a doctor's day in one request.
//
// All times are expected to be in the same location (timezone).
func Plan(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []Interval {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) || windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var out []Interval
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(t, t.Add(duration), busy) {
			out = append(out, Interval{Start: t, End: t.Add(duration)})
		}
	}
	return out
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}

// Busy converts existing slots into intervals, skipping malformed rows.
func Busy(slots []model.TimeSlot, loc *time.Location) []Interval {
	out := make([]Interval, 0, len(slots))
	for _, s := range slots {
		start, err := s.Start(loc)
		if err != nil {
			continue
		}
		end, err := s.End(loc)
		if err != nil {
			continue
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out
}

// Upcoming keeps slots that have not started yet, ordered by date then start time.
func Upcoming(slots []model.TimeSlot, now time.Time, loc *time.Location) []model.TimeSlot {
	out := make([]model.TimeSlot, 0, len(slots))
	for _, s := range slots {
		start, err := s.Start(loc)
		if err != nil || start.Before(now) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

// Day is one entry of the patient-facing date picker.
type Day struct {
	Date  string           `json:"date"`
	Slots []model.TimeSlot `json:"slots"`
}

// GroupByDate groups slots already ordered by date.
func GroupByDate(slots []model.TimeSlot) []Day {
	var days []Day
	for _, s := range slots {
		if n := len(days); n > 0 && days[n-1].Date == s.Date {
			days[n-1].Slots = append(days[n-1].Slots, s)
			continue
		}
		days = append(days, Day{Date: s.Date, Slots: []model.TimeSlot{s}})
	}
	return days
}
