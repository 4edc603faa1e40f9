// Package icloud implements the calendar oracle over CalDAV. iCloud is the
// default endpoint but any CalDAV server with time-range queries works.
package icloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"mailcal/internal/config"
	"mailcal/internal/models"
)

const (
	productID   = "-//mailcal//EN"
	propTransp  = "TRANSP"
	transparent = "TRANSPARENT"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "mailcal/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVClient queries and writes one named calendar.
type CalDAVClient struct {
	client       *caldav.Client
	logger       *slog.Logger
	calendarPath string
}

// NewClient connects to the endpoint and resolves the calendar named in cfg.
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.CalDAVConfig) (*CalDAVClient, error) {
	httpClient := &http.Client{
		Transport: &customTransport{
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: http.DefaultTransport,
		},
		Timeout: 60 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	c := &CalDAVClient{client: client, logger: logger}

	logger.Info("Finding CalDAV calendar", "calendarName", cfg.CalendarName, "endpoint", cfg.Endpoint)
	calendarPath, err := c.findCalendar(ctx, cfg.CalendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", cfg.CalendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)

	return c, nil
}

// BusyIntervals returns the opaque events overlapping [timeMin, timeMax).
func (c *CalDAVClient) BusyIntervals(ctx context.Context, timeMin, timeMax time.Time, loc *time.Location) ([]models.BusyInterval, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name:  ical.CompEvent,
				Props: []string{
					ical.PropUID, ical.PropDateTimeStart, ical.PropDateTimeEnd, ical.PropDuration, propTransp,
					ical.PropRecurrenceRule, ical.PropExceptionDates, ical.PropRecurrenceID,
				},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: timeMin.UTC(),
				End:   timeMax.UTC(),
			}},
		},
	}

	objects, err := c.client.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("caldav time-range query: %w", err)
	}

	busy, err := busyIntervals(objects, timeMin, timeMax, loc)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("CalDAV free/busy queried", "objects", len(objects), "busy", len(busy))
	return busy, nil
}

// busyIntervals flattens calendar objects into the busy blocks overlapping
// the window. Recurring events are expanded, with overridden instances
// taken from their RECURRENCE-ID component. Transparent events do not block
// time.
func busyIntervals(objects []caldav.CalendarObject, timeMin, timeMax time.Time, loc *time.Location) ([]models.BusyInterval, error) {
	var busy []models.BusyInterval
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		events := obj.Data.Events()

		overridden := make(map[int64]bool)
		for _, ev := range events {
			if rid := ev.Props.Get(ical.PropRecurrenceID); rid != nil {
				t, err := rid.DateTime(loc)
				if err != nil {
					return nil, fmt.Errorf("parse RECURRENCE-ID in %s: %w", obj.Path, err)
				}
				overridden[t.Unix()] = true
			}
		}

		for _, ev := range events {
			if transp, _ := ev.Props.Text(propTransp); strings.EqualFold(transp, transparent) {
				continue
			}
			start, err := ev.DateTimeStart(loc)
			if err != nil {
				return nil, fmt.Errorf("parse DTSTART in %s: %w", obj.Path, err)
			}
			end, err := ev.DateTimeEnd(loc)
			if err != nil {
				return nil, fmt.Errorf("parse DTEND in %s: %w", obj.Path, err)
			}
			if start.IsZero() {
				continue
			}
			if !end.After(start) {
				end = start
			}
			length := end.Sub(start)

			starts := []time.Time{start}
			if ev.Props.Get(ical.PropRecurrenceID) == nil {
				rset, err := ev.RecurrenceSet(loc)
				if err != nil {
					return nil, fmt.Errorf("expand RRULE in %s: %w", obj.Path, err)
				}
				if rset != nil {
					starts = starts[:0]
					for _, occ := range rset.Between(timeMin.Add(-length), timeMax, true) {
						if !overridden[occ.Unix()] {
							starts = append(starts, occ)
						}
					}
				}
			}

			for _, s := range starts {
				e := s.Add(length)
				if s.Before(timeMax) && timeMin.Before(e) {
					busy = append(busy, models.BusyInterval{Start: s.In(loc), End: e.In(loc)})
				}
			}
		}
	}
	return busy, nil
}

// CreateEvent writes event as a new calendar object. A UID is generated when
// the event has none.
func (c *CalDAVClient) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.UID == "" {
		event.UID = GenerateUID()
	}
	c.logger.Debug("Creating event on CalDAV server", "eventTitle", event.Title, "uid", event.UID)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, toICal(event, time.Now().UTC()))

	eventPath := path.Join(c.calendarPath, event.UID+".ics")
	obj, err := c.client.PutCalendarObject(ctx, eventPath, cal)
	if err != nil {
		return fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}

	event.ID = obj.Path
	c.logger.Info("Created event on CalDAV server", "eventTitle", event.Title, "path", obj.Path)
	return nil
}

// toICal converts an Event to a VEVENT component.
func toICal(event *models.Event, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, event.UID)
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	ve.Props.SetDateTime(ical.PropDateTimeStart, event.StartTime)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, event.EndTime)

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Organizer != "" {
		p := ical.NewProp(ical.PropOrganizer)
		p.SetText(fmt.Sprintf("mailto:%s", event.Organizer))
		ve.Props.Add(p)
	}
	for _, attendee := range event.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.SetText(fmt.Sprintf("mailto:%s", attendee))
		ve.Props.Add(p)
	}
	return ve
}

// findCalendar discovers the user's calendars and returns the path of the
// one with the matching name.
func (c *CalDAVClient) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.client.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.client.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String() + "@mailcal"
}
