// Package notify composes the single outbound email of a pipeline run and
// defines where it is delivered.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mailcal/internal/models"
)

// Sink delivers a notification.
type Sink interface {
	Send(ctx context.Context, n models.Notification) error
}

// Composer renders confirmation and reschedule emails.
type Composer struct {
	signature  string
	loc        *time.Location
	windowDays int
}

// NewComposer creates a Composer that signs mails as signature and shows
// times in loc.
func NewComposer(signature string, loc *time.Location, windowDays int) *Composer {
	if signature == "" {
		signature = "Calendar Assistant"
	}
	return &Composer{signature: signature, loc: loc, windowDays: windowDays}
}

// Confirmation tells the sender their meeting was booked.
func (c *Composer) Confirmation(email models.InboundEmail, req models.MeetingRequest, booked models.Booked) models.Notification {
	slot := models.TimeSlot{Start: booked.Event.StartTime.In(c.loc), End: booked.Event.EndTime.In(c.loc)}
	summary := booked.Event.Title

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", greeting(email))
	fmt.Fprintf(&b, "Your meeting has been successfully scheduled for %s (%s timezone).\n", slot, c.loc)
	if req.MeetingTopic != "" {
		fmt.Fprintf(&b, "\nTopic: %s\n", req.MeetingTopic)
	}
	b.WriteString("\nPlease let me know if you need any changes.\n\n")
	fmt.Fprintf(&b, "Kind regards,\n%s", c.signature)

	details := []string{
		"Meeting: " + summary,
		"Time: " + c.formatSlot(slot),
	}
	if req.MeetingTopic != "" {
		details = append(details, "Description: "+req.MeetingTopic)
	}

	return models.Notification{
		Recipient:      email.SenderEmail,
		Subject:        "Meeting Confirmed: " + summary,
		Body:           b.String(),
		MeetingDetails: strings.Join(details, "\n"),
	}
}

// Reschedule tells the sender the requested time is not possible and lists
// the alternatives found, if any.
func (c *Composer) Reschedule(email models.InboundEmail, req models.MeetingRequest, proposed models.AlternativesProposed) models.Notification {
	summary := req.Summary(email.SenderEmail)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", greeting(email))
	if proposed.Requested != nil {
		fmt.Fprintf(&b, "Unfortunately, the requested time (%s) is not available.\n", c.formatSlot(*proposed.Requested))
	} else {
		b.WriteString("Your request did not include a specific date and time for the meeting.\n")
	}

	details := []string{"Meeting: " + summary}
	if proposed.Requested != nil {
		details = append(details, "Requested: "+c.formatSlot(*proposed.Requested))
	}

	if len(proposed.Slots.Slots) == 0 {
		fmt.Fprintf(&b, "\nNo free slot was found in the next %d days. Please propose another date.\n", c.windowDays)
		details = append(details, "Alternatives: none available")
	} else {
		b.WriteString("\nHere are some alternative slots:\n\n")
		details = append(details, "Alternatives:")
		for i, s := range proposed.Slots.Slots {
			line := fmt.Sprintf("%d. %s", i+1, c.formatSlot(s))
			b.WriteString(line + "\n")
			details = append(details, line)
		}
		b.WriteString("\nPlease reply with the option that suits you best.\n")
	}
	fmt.Fprintf(&b, "\nKind regards,\n%s", c.signature)

	return models.Notification{
		Recipient:      email.SenderEmail,
		Subject:        "Meeting Reschedule Proposal: " + summary,
		Body:           b.String(),
		MeetingDetails: strings.Join(details, "\n"),
	}
}

func (c *Composer) formatSlot(s models.TimeSlot) string {
	s = models.TimeSlot{Start: s.Start.In(c.loc), End: s.End.In(c.loc)}
	return fmt.Sprintf("%s (%s)", s, c.loc)
}

func greeting(email models.InboundEmail) string {
	if email.SenderName != "" {
		return "Hello " + email.SenderName + ","
	}
	return "Hello,"
}

// LogSink writes notifications to the log instead of delivering them.
type LogSink struct {
	Logger *slog.Logger
}

// Send logs n.
func (s LogSink) Send(_ context.Context, n models.Notification) error {
	s.Logger.Info("Notification (not sent)",
		"recipient", n.Recipient,
		"subject", n.Subject,
		"body", n.Body,
		"details", n.MeetingDetails,
	)
	return nil
}
