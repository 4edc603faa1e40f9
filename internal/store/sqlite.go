package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"mailcal/internal/models"
)

// SQLite is the single-file Store used for local runs and tests.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, logger *slog.Logger, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	logger.Info("SQLite store initialised", "path", path)
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS emails (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT DEFAULT '',
			sender_email TEXT NOT NULL,
			sender_name TEXT DEFAULT '',
			subject TEXT DEFAULT '',
			body TEXT DEFAULT '',
			received_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS meetings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email_id INTEGER NOT NULL REFERENCES emails(id),
			sender_role TEXT NOT NULL,
			project_title TEXT,
			meeting_topic TEXT,
			relation_type TEXT NOT NULL,
			meeting_date TEXT,
			meeting_time TEXT,
			duration REAL NOT NULL,
			urgent INTEGER NOT NULL,
			tasks_requested TEXT NOT NULL,
			documents_to_prepare TEXT NOT NULL,
			confirmation_status TEXT NOT NULL,
			stored_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS recommendations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email_id INTEGER NOT NULL REFERENCES emails(id),
			project_title TEXT,
			type TEXT NOT NULL CHECK (type IN ('task', 'advice')),
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email_id INTEGER NOT NULL REFERENCES emails(id),
			provider_id TEXT DEFAULT '',
			summary TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP NOT NULL,
			timezone TEXT NOT NULL,
			attendees TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS personnes (
			name TEXT NOT NULL,
			email TEXT PRIMARY KEY COLLATE NOCASE,
			role TEXT DEFAULT '',
			service TEXT DEFAULT '',
			company TEXT DEFAULT '',
			relation_type TEXT DEFAULT '',
			project_title TEXT DEFAULT '',
			project_description TEXT DEFAULT '',
			latest_decision TEXT DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_email ON recommendations(email_id);`,
		`CREATE INDEX IF NOT EXISTS idx_meetings_email ON meetings(email_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) insert(ctx context.Context, what, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", what, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", what, err)
	}
	return id, nil
}

// InsertEmail records one inbound email and returns its id.
func (s *SQLite) InsertEmail(ctx context.Context, e models.InboundEmail) (int64, error) {
	return s.insert(ctx, "email", `
		INSERT INTO emails (message_id, sender_email, sender_name, subject, body, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.MessageID, e.SenderEmail, e.SenderName, e.Subject, e.Body, receivedAt(e))
}

// InsertMeeting records the parsed request for emailID.
func (s *SQLite) InsertMeeting(ctx context.Context, emailID int64, req models.MeetingRequest) (int64, error) {
	tasks, err := encodeList(req.TasksRequested)
	if err != nil {
		return 0, err
	}
	docs, err := encodeList(req.DocumentsToPrepare)
	if err != nil {
		return 0, err
	}
	return s.insert(ctx, "meeting", `
		INSERT INTO meetings (
			email_id, sender_role, project_title, meeting_topic, relation_type,
			meeting_date, meeting_time, duration, urgent,
			tasks_requested, documents_to_prepare, confirmation_status, stored_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		emailID, string(req.SenderRole), nullable(req.ProjectTitle), nullable(req.MeetingTopic), string(req.RelationType),
		nullable(req.MeetingDate), nullable(req.MeetingTime), req.DurationHours, req.Urgent,
		tasks, docs, string(req.ConfirmationStatus), nowUTC())
}

// InsertRecommendation records one task or advice item.
func (s *SQLite) InsertRecommendation(ctx context.Context, emailID int64, projectTitle string, kind models.RecommendationKind, content string) (int64, error) {
	return s.insert(ctx, "recommendation", `
		INSERT INTO recommendations (email_id, project_title, type, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		emailID, nullable(projectTitle), string(kind), content, nowUTC())
}

// InsertEvent records a booked event for emailID.
func (s *SQLite) InsertEvent(ctx context.Context, emailID int64, e models.Event) (int64, error) {
	attendees, err := encodeList(e.Attendees)
	if err != nil {
		return 0, err
	}
	return s.insert(ctx, "event", `
		INSERT INTO events (email_id, provider_id, summary, start_time, end_time, timezone, attendees, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		emailID, e.ID, e.Title, e.StartTime.UTC(), e.EndTime.UTC(), e.TimeZone, attendees, nowUTC())
}

// LookupPerson returns the contact for email, or nil when there is none.
func (s *SQLite) LookupPerson(ctx context.Context, email string) (*models.PersonContext, error) {
	var p models.PersonContext
	err := s.db.QueryRowContext(ctx, `
		SELECT name, email, COALESCE(role, ''), COALESCE(service, ''), COALESCE(company, ''),
		       COALESCE(relation_type, ''), COALESCE(project_title, ''),
		       COALESCE(project_description, ''), COALESCE(latest_decision, '')
		FROM personnes
		WHERE email = ?
		LIMIT 1`, strings.ToLower(email)).Scan(
		&p.Name, &p.Email, &p.Role, &p.Service, &p.Company, &p.RelationType,
		&p.ProjectTitle, &p.ProjectDescription, &p.LatestDecision,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup person: %w", err)
	}
	return &p, nil
}

// UpsertPerson inserts or replaces a directory entry keyed on email.
func (s *SQLite) UpsertPerson(ctx context.Context, p models.PersonContext) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO personnes (name, email, role, service, company, relation_type,
		                       project_title, project_description, latest_decision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			service = excluded.service,
			company = excluded.company,
			relation_type = excluded.relation_type,
			project_title = excluded.project_title,
			project_description = excluded.project_description,
			latest_decision = excluded.latest_decision`,
		p.Name, strings.ToLower(p.Email), p.Role, p.Service, p.Company, p.RelationType,
		p.ProjectTitle, p.ProjectDescription, p.LatestDecision)
	if err != nil {
		return fmt.Errorf("upsert person: %w", err)
	}
	return nil
}
