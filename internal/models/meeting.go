package models

import (
	"fmt"
	"time"
)

// SenderRole is the role the sender plays relative to the mailbox owner.
type SenderRole string

const (
	SenderRoleManager    SenderRole = "manager"
	SenderRoleClient     SenderRole = "client"
	SenderRoleSupplier   SenderRole = "supplier"
	SenderRoleTeamMember SenderRole = "team_member"
	SenderRoleUnknown    SenderRole = "unknown"
)

// ParseSenderRole maps free text onto a SenderRole, falling back to unknown.
func ParseSenderRole(s string) SenderRole {
	switch normalizeEnum(s) {
	case "manager":
		return SenderRoleManager
	case "client", "customer":
		return SenderRoleClient
	case "supplier", "vendor", "provider":
		return SenderRoleSupplier
	case "team_member", "teammember", "team", "colleague":
		return SenderRoleTeamMember
	default:
		return SenderRoleUnknown
	}
}

// RelationType classifies the business relationship behind a meeting.
type RelationType string

const (
	RelationMeetingClient RelationType = "meeting_client"
	RelationCollaboration RelationType = "collaboration"
	RelationSupplierOffer RelationType = "supplier_offer"
	RelationUnknown       RelationType = "unknown"
)

// ParseRelationType maps free text onto a RelationType, falling back to unknown.
func ParseRelationType(s string) RelationType {
	switch normalizeEnum(s) {
	case "meeting_client", "client_meeting", "client":
		return RelationMeetingClient
	case "collaboration", "partnership", "partenariat":
		return RelationCollaboration
	case "supplier_offer", "supplier", "offer":
		return RelationSupplierOffer
	default:
		return RelationUnknown
	}
}

// ConfirmationStatus is three-state: an absent or unrecognised value stays
// unknown instead of collapsing into pending.
type ConfirmationStatus string

const (
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	ConfirmationPending   ConfirmationStatus = "pending"
	ConfirmationUnknown   ConfirmationStatus = "unknown"
)

// ParseConfirmationStatus maps a textual status onto a ConfirmationStatus.
func ParseConfirmationStatus(s string) ConfirmationStatus {
	switch normalizeEnum(s) {
	case "confirmed", "confirm", "yes", "true", "accepted":
		return ConfirmationConfirmed
	case "pending", "tentative", "no", "false", "unconfirmed":
		return ConfirmationPending
	default:
		return ConfirmationUnknown
	}
}

// DefaultDurationHours is used when the email does not state a duration.
const DefaultDurationHours = 1.0

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// MeetingRequest is the structured form of an inbound meeting email.
// Every field always carries a value: enums fall back to "unknown", lists to
// empty slices, and the nullable strings (ProjectTitle, MeetingTopic,
// MeetingDate, MeetingTime) use "" for "not stated".
type MeetingRequest struct {
	SenderRole         SenderRole         `json:"sender_role"`
	ProjectTitle       string             `json:"project_title"`
	MeetingTopic       string             `json:"meeting_topic"`
	RelationType       RelationType       `json:"relation_type"`
	MeetingDate        string             `json:"meeting_date"` // YYYY-MM-DD
	MeetingTime        string             `json:"meeting_time"` // HH:MM
	DurationHours      float64            `json:"duration_hours"`
	Urgent             bool               `json:"urgent"`
	TasksRequested     []string           `json:"tasks_requested"`
	DocumentsToPrepare []string           `json:"documents_to_prepare"`
	ConfirmationStatus ConfirmationStatus `json:"confirmation_status"`
}

// NewMeetingRequest returns a request with every field set to its default.
func NewMeetingRequest() MeetingRequest {
	return MeetingRequest{
		SenderRole:         SenderRoleUnknown,
		RelationType:       RelationUnknown,
		DurationHours:      DefaultDurationHours,
		TasksRequested:     []string{},
		DocumentsToPrepare: []string{},
		ConfirmationStatus: ConfirmationUnknown,
	}
}

// HasSlot reports whether both a date and a time were extracted.
func (m MeetingRequest) HasSlot() bool {
	return m.MeetingDate != "" && m.MeetingTime != ""
}

// RequestedDate returns the requested day at midnight in loc.
func (m MeetingRequest) RequestedDate(loc *time.Location) (time.Time, error) {
	if m.MeetingDate == "" {
		return time.Time{}, fmt.Errorf("meeting date not stated")
	}
	d, err := time.ParseInLocation(DateLayout, m.MeetingDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse meeting date %q: %w", m.MeetingDate, err)
	}
	return d, nil
}

// RequestedSlot builds the slot implied by MeetingDate, MeetingTime and
// DurationHours in loc.
func (m MeetingRequest) RequestedSlot(loc *time.Location) (TimeSlot, error) {
	day, err := m.RequestedDate(loc)
	if err != nil {
		return TimeSlot{}, err
	}
	if m.MeetingTime == "" {
		return TimeSlot{}, fmt.Errorf("meeting time not stated")
	}
	clock, err := time.Parse(TimeLayout, m.MeetingTime)
	if err != nil {
		return TimeSlot{}, fmt.Errorf("parse meeting time %q: %w", m.MeetingTime, err)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	return NewTimeSlot(start, m.DurationHours)
}

// Summary is the event title for the request: the project, else the topic,
// else a generic title naming the sender.
func (m MeetingRequest) Summary(sender string) string {
	switch {
	case m.ProjectTitle != "":
		return m.ProjectTitle
	case m.MeetingTopic != "":
		return m.MeetingTopic
	case sender != "":
		return "Meeting with " + sender
	default:
		return "Meeting"
	}
}
