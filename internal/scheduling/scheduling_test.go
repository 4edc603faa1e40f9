package scheduling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"mailcal/internal/models"
)

type fakeCalendar struct {
	busy  []models.BusyInterval
	err   error
	calls int
}

func (f *fakeCalendar) BusyIntervals(_ context.Context, timeMin, timeMax time.Time, _ *time.Location) ([]models.BusyInterval, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []models.BusyInterval
	for _, b := range f.busy {
		if b.Start.Before(timeMax) && timeMin.Before(b.End) {
			out = append(out, b)
		}
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tunis(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Africa/Tunis")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func at(loc *time.Location, day, hour, minute int) time.Time {
	return time.Date(2025, time.December, day, hour, minute, 0, 0, loc)
}

func TestChecker_IsAvailable(t *testing.T) {
	loc := tunis(t)
	cal := &fakeCalendar{busy: []models.BusyInterval{{Start: at(loc, 22, 10, 0), End: at(loc, 22, 11, 0)}}}
	c := NewChecker(cal, loc, discardLogger())

	tests := []struct {
		name  string
		start time.Time
		want  bool
	}{
		{"overlapping", at(loc, 22, 10, 30), false},
		{"exact", at(loc, 22, 10, 0), false},
		{"ends at busy start", at(loc, 22, 9, 0), true},
		{"starts at busy end", at(loc, 22, 11, 0), true},
		{"other day", at(loc, 23, 10, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, err := models.NewTimeSlot(tt.start, 1)
			if err != nil {
				t.Fatalf("NewTimeSlot: %v", err)
			}
			got, err := c.IsAvailable(context.Background(), slot)
			if err != nil {
				t.Fatalf("IsAvailable() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsAvailable(%s) = %v, want %v", slot, got, tt.want)
			}
		})
	}
}

func TestChecker_OracleError(t *testing.T) {
	loc := tunis(t)
	boom := errors.New("401 unauthorized")
	c := NewChecker(&fakeCalendar{err: boom}, loc, discardLogger())

	slot, _ := models.NewTimeSlot(at(loc, 22, 10, 0), 1)
	ok, err := c.IsAvailable(context.Background(), slot)
	if !errors.Is(err, boom) {
		t.Fatalf("IsAvailable() error = %v, want wrapped %v", err, boom)
	}
	if ok {
		t.Error("IsAvailable() = true on error")
	}
}

func TestChecker_CheckRequest(t *testing.T) {
	loc := tunis(t)
	c := NewChecker(&fakeCalendar{}, loc, discardLogger())

	req := models.NewMeetingRequest()
	req.MeetingDate = "2025-12-20"
	if _, _, err := c.CheckRequest(context.Background(), req); !errors.Is(err, ErrNoRequestedSlot) {
		t.Errorf("CheckRequest() without time error = %v, want ErrNoRequestedSlot", err)
	}

	req.MeetingTime = "10:00"
	slot, ok, err := c.CheckRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("CheckRequest() error: %v", err)
	}
	if !ok {
		t.Error("CheckRequest() = busy, want free")
	}
	if !slot.Start.Equal(at(loc, 20, 10, 0)) || !slot.End.Equal(at(loc, 20, 11, 0)) {
		t.Errorf("slot = %s", slot)
	}
}

func TestFinder_FreeWeek(t *testing.T) {
	loc := tunis(t)
	cal := &fakeCalendar{}
	f := NewFinder(NewChecker(cal, loc, discardLogger()), 7, discardLogger())

	// 2025-12-20 is a Saturday.
	res, err := f.FindAlternatives(context.Background(), at(loc, 20, 0, 0), 1)
	if err != nil {
		t.Fatalf("FindAlternatives() error: %v", err)
	}
	if len(res.Slots) != MaxAlternatives {
		t.Fatalf("got %d slots, want %d", len(res.Slots), MaxAlternatives)
	}
	for i, s := range res.Slots {
		want := at(loc, 22, 9+i, 0)
		if !s.Start.Equal(want) {
			t.Errorf("slot %d start = %v, want %v", i, s.Start, want)
		}
		if s.Duration() != time.Hour {
			t.Errorf("slot %d duration = %v, want 1h", i, s.Duration())
		}
	}
	if cal.calls != MaxAlternatives {
		t.Errorf("oracle calls = %d, want %d (search must stop early)", cal.calls, MaxAlternatives)
	}
}

func TestFinder_BusyWeek(t *testing.T) {
	loc := tunis(t)
	cal := &fakeCalendar{busy: []models.BusyInterval{{Start: at(loc, 1, 0, 0), End: at(loc, 31, 0, 0)}}}
	f := NewFinder(NewChecker(cal, loc, discardLogger()), 7, discardLogger())

	res, err := f.FindAlternatives(context.Background(), at(loc, 22, 0, 0), 1)
	if err != nil {
		t.Fatalf("FindAlternatives() error: %v", err)
	}
	if len(res.Slots) != 0 {
		t.Errorf("got %d slots, want 0", len(res.Slots))
	}
	// Mon 22 to Fri 26 are business days, 8 candidate hours each.
	if cal.calls != 5*8 {
		t.Errorf("oracle calls = %d, want 40", cal.calls)
	}
}

func TestFinder_NeverPastDayEnd(t *testing.T) {
	loc := tunis(t)
	// Busy every morning so only late candidates qualify.
	var busy []models.BusyInterval
	for d := 22; d <= 26; d++ {
		busy = append(busy, models.BusyInterval{Start: at(loc, d, 9, 0), End: at(loc, d, 14, 0)})
	}
	cal := &fakeCalendar{busy: busy}
	f := NewFinder(NewChecker(cal, loc, discardLogger()), 7, discardLogger())

	res, err := f.FindAlternatives(context.Background(), at(loc, 22, 0, 0), 2.5)
	if err != nil {
		t.Fatalf("FindAlternatives() error: %v", err)
	}
	if len(res.Slots) != 5 {
		t.Fatalf("got %d slots, want 5", len(res.Slots))
	}
	dayEnd := func(s models.TimeSlot) time.Time {
		return time.Date(s.Start.Year(), s.Start.Month(), s.Start.Day(), DayEndHour, 0, 0, 0, loc)
	}
	for i, s := range res.Slots {
		if s.End.After(dayEnd(s)) {
			t.Errorf("slot %d = %s ends after 17:00", i, s)
		}
	}
	// 14:00 is the only candidate per day: 14:00-16:30.
	if !res.Slots[0].Start.Equal(at(loc, 22, 14, 0)) || !res.Slots[4].Start.Equal(at(loc, 26, 14, 0)) {
		t.Errorf("slots = %v", res.Slots)
	}
}

func TestFinder_TooLongForBusinessDay(t *testing.T) {
	loc := tunis(t)
	cal := &fakeCalendar{}
	f := NewFinder(NewChecker(cal, loc, discardLogger()), 7, discardLogger())

	res, err := f.FindAlternatives(context.Background(), at(loc, 22, 0, 0), 9)
	if err != nil {
		t.Fatalf("FindAlternatives() error: %v", err)
	}
	if len(res.Slots) != 0 || cal.calls != 0 {
		t.Errorf("slots = %d, calls = %d, want 0 and 0", len(res.Slots), cal.calls)
	}
}

func TestFinder_OracleError(t *testing.T) {
	loc := tunis(t)
	boom := errors.New("timeout")
	f := NewFinder(NewChecker(&fakeCalendar{err: boom}, loc, discardLogger()), 7, discardLogger())

	if _, err := f.FindAlternatives(context.Background(), at(loc, 22, 0, 0), 1); !errors.Is(err, boom) {
		t.Errorf("FindAlternatives() error = %v, want wrapped %v", err, boom)
	}
}

func TestFinder_WindowRespected(t *testing.T) {
	loc := tunis(t)
	cal := &fakeCalendar{busy: []models.BusyInterval{{Start: at(loc, 22, 9, 0), End: at(loc, 22, 17, 0)}}}
	f := NewFinder(NewChecker(cal, loc, discardLogger()), 1, discardLogger())

	res, err := f.FindAlternatives(context.Background(), at(loc, 22, 15, 30), 1)
	if err != nil {
		t.Fatalf("FindAlternatives() error: %v", err)
	}
	if len(res.Slots) != 0 {
		t.Errorf("got %d slots beyond a one-day window", len(res.Slots))
	}
}
