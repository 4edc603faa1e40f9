package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailcal/internal/models"
)

// Postgres is the production Store.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates a pool for databaseURL, checks connectivity and
// bootstraps the schema.
func OpenPostgres(ctx context.Context, logger *slog.Logger, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := NewPostgres(ctx, logger, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres wraps an existing pool. It ensures the tables exist.
func NewPostgres(ctx context.Context, logger *slog.Logger, pool *pgxpool.Pool) (*Postgres, error) {
	s := &Postgres{pool: pool, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("Postgres store initialised")
	return s, nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS emails (
			id           BIGSERIAL PRIMARY KEY,
			message_id   TEXT DEFAULT '',
			sender_email TEXT NOT NULL,
			sender_name  TEXT DEFAULT '',
			subject      TEXT DEFAULT '',
			body         TEXT DEFAULT '',
			received_at  TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS meetings (
			id                   BIGSERIAL PRIMARY KEY,
			email_id             BIGINT NOT NULL REFERENCES emails(id),
			sender_role          TEXT NOT NULL,
			project_title        TEXT,
			meeting_topic        TEXT,
			relation_type        TEXT NOT NULL,
			meeting_date         DATE,
			meeting_time         TEXT,
			duration             DOUBLE PRECISION NOT NULL,
			urgent               BOOLEAN NOT NULL,
			tasks_requested      JSONB NOT NULL,
			documents_to_prepare JSONB NOT NULL,
			confirmation_status  TEXT NOT NULL,
			stored_at            TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS recommendations (
			id            BIGSERIAL PRIMARY KEY,
			email_id      BIGINT NOT NULL REFERENCES emails(id),
			project_title TEXT,
			type          TEXT NOT NULL CHECK (type IN ('task', 'advice')),
			content       TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS events (
			id          BIGSERIAL PRIMARY KEY,
			email_id    BIGINT NOT NULL REFERENCES emails(id),
			provider_id TEXT DEFAULT '',
			summary     TEXT NOT NULL,
			start_time  TIMESTAMPTZ NOT NULL,
			end_time    TIMESTAMPTZ NOT NULL,
			timezone    TEXT NOT NULL,
			attendees   JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS personnes (
			name                TEXT NOT NULL,
			email               TEXT PRIMARY KEY,
			role                TEXT DEFAULT '',
			service             TEXT DEFAULT '',
			company             TEXT DEFAULT '',
			relation_type       TEXT DEFAULT '',
			project_title       TEXT DEFAULT '',
			project_description TEXT DEFAULT '',
			latest_decision     TEXT DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_recommendations_email ON recommendations(email_id);
		CREATE INDEX IF NOT EXISTS idx_meetings_email ON meetings(email_id);
	`)
	return err
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// InsertEmail records one inbound email and returns its id.
func (s *Postgres) InsertEmail(ctx context.Context, e models.InboundEmail) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO emails (message_id, sender_email, sender_name, subject, body, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, e.MessageID, e.SenderEmail, e.SenderName, e.Subject, e.Body, receivedAt(e)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert email: %w", err)
	}
	return id, nil
}

// InsertMeeting records the parsed request for emailID.
func (s *Postgres) InsertMeeting(ctx context.Context, emailID int64, req models.MeetingRequest) (int64, error) {
	tasks, err := encodeList(req.TasksRequested)
	if err != nil {
		return 0, err
	}
	docs, err := encodeList(req.DocumentsToPrepare)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO meetings (
			email_id, sender_role, project_title, meeting_topic, relation_type,
			meeting_date, meeting_time, duration, urgent,
			tasks_requested, documents_to_prepare, confirmation_status, stored_at
		)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10::jsonb, $11::jsonb, $12, $13)
		RETURNING id
	`,
		emailID, string(req.SenderRole), nullable(req.ProjectTitle), nullable(req.MeetingTopic), string(req.RelationType),
		nullable(req.MeetingDate), nullable(req.MeetingTime), req.DurationHours, req.Urgent,
		tasks, docs, string(req.ConfirmationStatus), nowUTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert meeting: %w", err)
	}
	return id, nil
}

// InsertRecommendation records one task or advice item.
func (s *Postgres) InsertRecommendation(ctx context.Context, emailID int64, projectTitle string, kind models.RecommendationKind, content string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO recommendations (email_id, project_title, type, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, emailID, nullable(projectTitle), string(kind), content, nowUTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert recommendation: %w", err)
	}
	return id, nil
}

// InsertEvent records a booked event for emailID.
func (s *Postgres) InsertEvent(ctx context.Context, emailID int64, e models.Event) (int64, error) {
	attendees, err := encodeList(e.Attendees)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO events (email_id, provider_id, summary, start_time, end_time, timezone, attendees, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		RETURNING id
	`, emailID, e.ID, e.Title, e.StartTime, e.EndTime, e.TimeZone, attendees, nowUTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}

// LookupPerson returns the contact for email, or nil when there is none.
func (s *Postgres) LookupPerson(ctx context.Context, email string) (*models.PersonContext, error) {
	var p models.PersonContext
	err := s.pool.QueryRow(ctx, `
		SELECT name, email, COALESCE(role, ''), COALESCE(service, ''), COALESCE(company, ''),
		       COALESCE(relation_type, ''), COALESCE(project_title, ''),
		       COALESCE(project_description, ''), COALESCE(latest_decision, '')
		FROM personnes
		WHERE lower(email) = $1
		LIMIT 1
	`, strings.ToLower(email)).Scan(
		&p.Name, &p.Email, &p.Role, &p.Service, &p.Company, &p.RelationType,
		&p.ProjectTitle, &p.ProjectDescription, &p.LatestDecision,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup person: %w", err)
	}
	return &p, nil
}

// UpsertPerson inserts or replaces a directory entry keyed on email.
func (s *Postgres) UpsertPerson(ctx context.Context, p models.PersonContext) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO personnes (name, email, role, service, company, relation_type,
		                       project_title, project_description, latest_decision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (email) DO UPDATE SET
			name                = EXCLUDED.name,
			role                = EXCLUDED.role,
			service             = EXCLUDED.service,
			company             = EXCLUDED.company,
			relation_type       = EXCLUDED.relation_type,
			project_title       = EXCLUDED.project_title,
			project_description = EXCLUDED.project_description,
			latest_decision     = EXCLUDED.latest_decision
	`, p.Name, strings.ToLower(p.Email), p.Role, p.Service, p.Company, p.RelationType,
		p.ProjectTitle, p.ProjectDescription, p.LatestDecision)
	if err != nil {
		return fmt.Errorf("upsert person: %w", err)
	}
	return nil
}
