// Package store persists inbound emails, parsed meeting requests,
// recommendations and booked events, and serves the contact directory.
//
// Every write is its own atomic statement. Nothing spans pipeline stages,
// so a run that halts keeps the rows its earlier stages wrote.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"mailcal/internal/config"
	"mailcal/internal/models"
)

// Store is the persistence surface shared by the Postgres and SQLite
// backends.
type Store interface {
	InsertEmail(ctx context.Context, email models.InboundEmail) (int64, error)
	InsertMeeting(ctx context.Context, emailID int64, req models.MeetingRequest) (int64, error)
	InsertRecommendation(ctx context.Context, emailID int64, projectTitle string, kind models.RecommendationKind, content string) (int64, error)
	InsertEvent(ctx context.Context, emailID int64, event models.Event) (int64, error)
	LookupPerson(ctx context.Context, email string) (*models.PersonContext, error)
	UpsertPerson(ctx context.Context, p models.PersonContext) error
	Close() error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*SQLite)(nil)
)

// Open connects the backend selected by cfg.Driver and bootstraps its schema.
func Open(ctx context.Context, logger *slog.Logger, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return OpenPostgres(ctx, logger, cfg.DatabaseURL)
	case "sqlite", "":
		return OpenSQLite(ctx, logger, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

func nowUTC() time.Time { return time.Now().UTC() }

// nullable maps "" to SQL NULL for the columns where "not stated" is
// distinct from an empty value.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func receivedAt(e models.InboundEmail) time.Time {
	if e.ReceivedAt.IsZero() {
		return nowUTC()
	}
	return e.ReceivedAt.UTC()
}
