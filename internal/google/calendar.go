// Package google implements the calendar oracle, mailbox source and
// notification sink on top of Google Calendar and Gmail.
package google

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"mailcal/internal/models"
)

// CalendarClient queries free/busy state and inserts events on one Google
// calendar.
type CalendarClient struct {
	service    *calendar.Service
	calendarID string
	logger     *slog.Logger
}

// NewCalendarClient creates a client for calendarID. Callers pass
// option.WithHTTPClient with an authorized client from HTTPClient.
func NewCalendarClient(ctx context.Context, logger *slog.Logger, calendarID string, opts ...option.ClientOption) (*CalendarClient, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &CalendarClient{service: service, calendarID: calendarID, logger: logger}, nil
}

// BusyIntervals returns the busy blocks between timeMin and timeMax, with
// times converted to loc.
func (c *CalendarClient) BusyIntervals(ctx context.Context, timeMin, timeMax time.Time, loc *time.Location) ([]models.BusyInterval, error) {
	req := &calendar.FreeBusyRequest{
		TimeMin:  timeMin.UTC().Format(time.RFC3339),
		TimeMax:  timeMax.UTC().Format(time.RFC3339),
		TimeZone: loc.String(),
		Items:    []*calendar.FreeBusyRequestItem{{Id: c.calendarID}},
	}

	resp, err := c.service.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query: %w", err)
	}

	cal, ok := resp.Calendars[c.calendarID]
	if !ok {
		return nil, fmt.Errorf("freebusy response has no entry for calendar %s", c.calendarID)
	}
	if len(cal.Errors) > 0 {
		var reasons []string
		for _, e := range cal.Errors {
			reasons = append(reasons, e.Domain+"/"+e.Reason)
		}
		return nil, fmt.Errorf("freebusy errors for calendar %s: %s", c.calendarID, strings.Join(reasons, ", "))
	}

	busy := make([]models.BusyInterval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start %q: %w", p.Start, err)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end %q: %w", p.End, err)
		}
		busy = append(busy, models.BusyInterval{Start: start.In(loc), End: end.In(loc)})
	}

	c.logger.Debug("Free/busy queried", "calendarID", c.calendarID, "timeMin", req.TimeMin, "timeMax", req.TimeMax, "busy", len(busy))
	return busy, nil
}

// CreateEvent inserts event and fills in the provider id and iCalendar UID.
// Attendees receive Google's invitation email.
func (c *CalendarClient) CreateEvent(ctx context.Context, event *models.Event) error {
	created, err := c.service.Events.Insert(c.calendarID, toGoogleEvent(event)).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	event.ID = created.Id
	event.UID = created.ICalUID
	c.logger.Info("Created event in Google Calendar", "calendarID", c.calendarID, "eventID", created.Id, "title", event.Title, "link", created.HtmlLink)
	return nil
}

func toGoogleEvent(e *models.Event) *calendar.Event {
	var attendees []*calendar.EventAttendee
	for _, a := range e.Attendees {
		attendees = append(attendees, &calendar.EventAttendee{Email: a})
	}
	return &calendar.Event{
		Summary:     e.Title,
		Description: e.Description,
		Start: &calendar.EventDateTime{
			DateTime: e.StartTime.Format(time.RFC3339),
			TimeZone: e.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: e.EndTime.Format(time.RFC3339),
			TimeZone: e.TimeZone,
		},
		Attendees: attendees,
	}
}
