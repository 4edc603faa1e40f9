// Package scheduling reconciles a requested meeting slot against a calendar's
// free/busy state and searches for alternatives when it is taken.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mailcal/internal/models"
)

// ErrNoRequestedSlot is returned when a request does not name both a date
// and a time.
var ErrNoRequestedSlot = errors.New("meeting request has no date and time")

const (
	// MaxAlternatives caps the alternative slot search.
	MaxAlternatives = 5
	// DayStartHour is the first candidate start hour.
	DayStartHour = 9
	// DayEndHour is the hour no candidate may run past.
	DayEndHour = 17
	// DefaultWindowDays is the number of days scanned from the start date.
	DefaultWindowDays = 7
)

// FreeBusy reports busy intervals of the calendar between timeMin and timeMax.
type FreeBusy interface {
	BusyIntervals(ctx context.Context, timeMin, timeMax time.Time, loc *time.Location) ([]models.BusyInterval, error)
}

// Checker answers whether an exact slot is free.
type Checker struct {
	calendar FreeBusy
	loc      *time.Location
	logger   *slog.Logger
}

// NewChecker creates a Checker that queries calendar in loc.
func NewChecker(calendar FreeBusy, loc *time.Location, logger *slog.Logger) *Checker {
	return &Checker{calendar: calendar, loc: loc, logger: logger}
}

// IsAvailable reports whether no busy interval overlaps slot. Oracle
// failures are returned, never read as free or busy.
func (c *Checker) IsAvailable(ctx context.Context, slot models.TimeSlot) (bool, error) {
	busy, err := c.calendar.BusyIntervals(ctx, slot.Start, slot.End, c.loc)
	if err != nil {
		return false, fmt.Errorf("query free/busy for %s: %w", slot, err)
	}
	for _, b := range busy {
		if slot.Overlaps(b.Start, b.End) {
			c.logger.Debug("Slot busy", "start", slot.Start, "end", slot.End, "conflict_start", b.Start, "conflict_end", b.End)
			return false, nil
		}
	}
	return true, nil
}

// CheckRequest builds the slot implied by req and checks it. A request
// without a date or time yields ErrNoRequestedSlot.
func (c *Checker) CheckRequest(ctx context.Context, req models.MeetingRequest) (models.TimeSlot, bool, error) {
	if !req.HasSlot() {
		return models.TimeSlot{}, false, ErrNoRequestedSlot
	}
	slot, err := req.RequestedSlot(c.loc)
	if err != nil {
		return models.TimeSlot{}, false, fmt.Errorf("%w: %v", ErrNoRequestedSlot, err)
	}
	ok, err := c.IsAvailable(ctx, slot)
	if err != nil {
		return slot, false, err
	}
	return slot, ok, nil
}

// Finder searches business days for free slots.
type Finder struct {
	checker    *Checker
	windowDays int
	loc        *time.Location
	logger     *slog.Logger
}

// NewFinder creates a Finder scanning windowDays days. A non-positive
// window uses DefaultWindowDays.
func NewFinder(checker *Checker, windowDays int, logger *slog.Logger) *Finder {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Finder{checker: checker, windowDays: windowDays, loc: checker.loc, logger: logger}
}

// FindAlternatives scans days startFrom..startFrom+window-1, skipping
// weekends, and hours from 09:00 while the slot ends by 17:00. It returns
// the first MaxAlternatives free slots in (day, hour) order. An empty
// result is not an error.
func (f *Finder) FindAlternatives(ctx context.Context, startFrom time.Time, durationHours float64) (models.SlotSearchResult, error) {
	result := models.SlotSearchResult{Slots: []models.TimeSlot{}}
	if !models.ValidDurationHours(durationHours) {
		return result, fmt.Errorf("invalid meeting duration %v hours", durationHours)
	}

	startFrom = startFrom.In(f.loc)
	day := time.Date(startFrom.Year(), startFrom.Month(), startFrom.Day(), 0, 0, 0, 0, f.loc)
	checked := 0

	for offset := 0; offset < f.windowDays; offset++ {
		d := day.AddDate(0, 0, offset)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		for hour := DayStartHour; float64(hour)+durationHours <= DayEndHour; hour++ {
			slot, err := models.NewTimeSlot(time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, f.loc), durationHours)
			if err != nil {
				return result, err
			}
			checked++
			free, err := f.checker.IsAvailable(ctx, slot)
			if err != nil {
				return result, err
			}
			if !free {
				continue
			}
			result.Slots = append(result.Slots, slot)
			if len(result.Slots) == MaxAlternatives {
				f.logger.Info("Alternative slots found", "count", len(result.Slots), "checked", checked)
				return result, nil
			}
		}
	}

	f.logger.Info("Alternative slot search exhausted window", "count", len(result.Slots), "checked", checked, "window_days", f.windowDays)
	return result, nil
}
