package models

import "time"

// Event represents a calendar event to be created for a booked meeting.
// This is an internal representation, independent of any specific calendar provider.
type Event struct {
	ID          string    // Identifier assigned by the calendar provider once created
	UID         string    // The iCalendar UID, used by CalDAV backends
	Title       string    // Summary or title of the event
	Description string    // Detailed description of the event
	StartTime   time.Time // Start time of the event, in TimeZone
	EndTime     time.Time // End time of the event, in TimeZone
	TimeZone    string    // IANA zone name the event was scheduled in
	Organizer   string    // Organizer's email
	Attendees   []string  // List of attendee emails
}
