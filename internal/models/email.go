package models

import "time"

// InboundEmail is one relevant email handed to the pipeline.
type InboundEmail struct {
	MessageID   string    // Provider message id, used for deduplication
	SenderEmail string    // Bare address of the sender
	SenderName  string    // Display name, may be empty
	Subject     string    // Subject line
	Body        string    // Plain-text body, already truncated
	ReceivedAt  time.Time // When the email was picked up
}

// Notification is the single outbound email produced by a pipeline run.
type Notification struct {
	Recipient      string
	Subject        string
	Body           string
	MeetingDetails string
}
