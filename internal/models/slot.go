package models

import (
	"fmt"
	"math"
	"time"
)

// TimeSlot is a concrete meeting interval. Start and End carry the same
// location and End is always after Start.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

const (
	// MaxDurationHours is the longest meeting a slot may describe.
	MaxDurationHours = 24.0
	// MinSlotDuration is the shortest meeting a slot may describe.
	MinSlotDuration = time.Minute
)

// ValidDurationHours reports whether h hours fits a slot.
func ValidDurationHours(h float64) bool {
	return !math.IsNaN(h) && h <= MaxDurationHours && time.Duration(h*float64(time.Hour)) >= MinSlotDuration
}

// NewTimeSlot derives End from start and a duration in hours. Durations
// under a minute or over MaxDurationHours are rejected.
func NewTimeSlot(start time.Time, durationHours float64) (TimeSlot, error) {
	if !ValidDurationHours(durationHours) {
		return TimeSlot{}, fmt.Errorf("duration must be between 1 minute and %v hours, got %v", MaxDurationHours, durationHours)
	}
	end := start.Add(time.Duration(durationHours * float64(time.Hour)))
	if !end.After(start) {
		return TimeSlot{}, fmt.Errorf("slot end %v is not after start %v", end, start)
	}
	return TimeSlot{Start: start, End: end}, nil
}

// Duration returns the length of the slot.
func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Overlaps reports whether the slot intersects [start, end).
func (s TimeSlot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && start.Before(s.End)
}

// String renders the slot the way it is shown to email recipients.
func (s TimeSlot) String() string {
	return fmt.Sprintf("%s - %s", s.Start.Format("Monday, January 2, 2006 at 03:04 PM"), s.End.Format("03:04 PM"))
}

// BusyInterval is one busy block reported by a calendar.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// SlotSearchResult is the ordered list of free candidates found by the
// alternative slot search. It never holds more than five slots.
type SlotSearchResult struct {
	Slots []TimeSlot `json:"slots"`
}
