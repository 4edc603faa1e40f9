// Package inbox feeds relevant mailbox messages into the pipeline, once per
// message.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mailcal/internal/models"
	"mailcal/internal/pipeline"
)

// Source yields the newest relevant inbound email that accept takes, or nil
// when there is none.
type Source interface {
	FetchOne(ctx context.Context, accept func(ctx context.Context, messageID string) (bool, error)) (*models.InboundEmail, error)
}

// Seen marks message ids that were already handed to the pipeline.
type Seen interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
	Forget(ctx context.Context, messageID string) error
}

// EmailStore records inbound emails before they are processed.
type EmailStore interface {
	InsertEmail(ctx context.Context, email models.InboundEmail) (int64, error)
}

// Runner executes the pipeline for one stored email.
type Runner interface {
	Execute(ctx context.Context, emailID int64, email models.InboundEmail) (pipeline.Run, error)
}

// Driver pulls mail from a Source and runs the pipeline on each new message.
type Driver struct {
	source Source
	seen   Seen
	store  EmailStore
	runner Runner
	logger *slog.Logger
}

// NewDriver creates a Driver.
func NewDriver(source Source, seen Seen, store EmailStore, runner Runner, logger *slog.Logger) *Driver {
	return &Driver{source: source, seen: seen, store: store, runner: runner, logger: logger}
}

// ProcessNext fetches the newest relevant email not yet processed and runs
// it. Processed messages are skipped while choosing, so older unprocessed
// mail is reached on later polls. It returns nil, nil when the mailbox has
// nothing new.
func (d *Driver) ProcessNext(ctx context.Context) (*pipeline.Run, error) {
	email, err := d.source.FetchOne(ctx, d.seen.IsNew)
	if err != nil {
		return nil, fmt.Errorf("fetch email: %w", err)
	}
	if email == nil {
		return nil, nil
	}
	return d.Process(ctx, *email)
}

// Process stores email and runs the pipeline on it. When the email cannot
// be stored its dedup mark is cleared so a later poll retries it.
func (d *Driver) Process(ctx context.Context, email models.InboundEmail) (*pipeline.Run, error) {
	emailID, err := d.store.InsertEmail(ctx, email)
	if err != nil {
		if email.MessageID != "" {
			if ferr := d.seen.Forget(ctx, email.MessageID); ferr != nil {
				d.logger.Warn("Failed to clear dedup mark", "messageID", email.MessageID, "error", ferr)
			}
		}
		return nil, fmt.Errorf("store email: %w", err)
	}
	d.logger.Info("Email stored", "emailID", emailID, "from", email.SenderEmail)

	run, err := d.runner.Execute(ctx, emailID, email)
	return &run, err
}

// Watch polls every interval until ctx is cancelled. Failures are logged
// and the next poll goes ahead.
func (d *Driver) Watch(ctx context.Context, interval time.Duration) {
	d.logger.Info("Watching mailbox", "interval", interval)

	d.poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Mailbox watch stopped")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Driver) poll(ctx context.Context) {
	run, err := d.ProcessNext(ctx)
	if err != nil {
		d.logger.Error("Mailbox poll failed", "error", err)
		return
	}
	if run == nil {
		d.logger.Debug("No new meeting email")
	}
}
