package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"mailcal/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), discardLogger(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestEmail(t *testing.T, s *SQLite) int64 {
	t.Helper()
	id, err := s.InsertEmail(context.Background(), models.InboundEmail{
		MessageID:   "m1",
		SenderEmail: "sami@acme.tn",
		SenderName:  "Sami Trabelsi",
		Subject:     "Meeting request",
		Body:        "Can we meet?",
		ReceivedAt:  time.Date(2025, 12, 15, 8, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("InsertEmail: %v", err)
	}
	return id
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	s := openTestSQLite(t)
	if err := s.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestSQLite_InsertMeeting(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	emailID := insertTestEmail(t, s)

	req := models.NewMeetingRequest()
	req.SenderRole = models.SenderRoleSupplier
	req.RelationType = models.RelationSupplierOffer
	req.MeetingDate = "2025-12-20"
	req.MeetingTime = "10:00"
	req.TasksRequested = []string{"Send catalogue"}

	id, err := s.InsertMeeting(ctx, emailID, req)
	if err != nil {
		t.Fatalf("InsertMeeting: %v", err)
	}
	if id <= 0 {
		t.Errorf("id = %d, want positive", id)
	}

	var role, date, tasks, docs, status string
	var topic *string
	var duration float64
	err = s.db.QueryRowContext(ctx, `
		SELECT sender_role, meeting_date, meeting_topic, duration, tasks_requested, documents_to_prepare, confirmation_status
		FROM meetings WHERE id = ?`, id).Scan(&role, &date, &topic, &duration, &tasks, &docs, &status)
	if err != nil {
		t.Fatalf("select meeting: %v", err)
	}
	if role != "supplier" || date != "2025-12-20" || duration != 1.0 || status != "unknown" {
		t.Errorf("row = %s %s %v %s", role, date, duration, status)
	}
	if topic != nil {
		t.Errorf("meeting_topic = %q, want NULL", *topic)
	}
	if tasks != `["Send catalogue"]` || docs != `[]` {
		t.Errorf("lists = %s %s", tasks, docs)
	}
}

func TestSQLite_InsertRecommendations(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	emailID := insertTestEmail(t, s)

	for i := 0; i < models.RecommendationsPerKind; i++ {
		if _, err := s.InsertRecommendation(ctx, emailID, "Solar Panels", models.RecommendationTask, "task"); err != nil {
			t.Fatalf("InsertRecommendation task: %v", err)
		}
		if _, err := s.InsertRecommendation(ctx, emailID, "Solar Panels", models.RecommendationAdvice, "advice"); err != nil {
			t.Fatalf("InsertRecommendation advice: %v", err)
		}
	}

	var tasks, advice int
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recommendations WHERE email_id = ? AND type = 'task'`, emailID).Scan(&tasks)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recommendations WHERE email_id = ? AND type = 'advice'`, emailID).Scan(&advice)
	if tasks != 5 || advice != 5 {
		t.Errorf("counts = %d tasks, %d advice, want 5 and 5", tasks, advice)
	}

	if _, err := s.InsertRecommendation(ctx, emailID, "", "note", "x"); err == nil {
		t.Error("InsertRecommendation with unknown kind succeeded")
	}
}

func TestSQLite_InsertEvent(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	emailID := insertTestEmail(t, s)

	start := time.Date(2025, 12, 22, 9, 0, 0, 0, time.UTC)
	id, err := s.InsertEvent(ctx, emailID, models.Event{
		ID:        "evt123",
		Title:     "Solar Panels",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		TimeZone:  "Africa/Tunis",
		Attendees: []string{"sami@acme.tn"},
	})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	var summary, attendees string
	if err := s.db.QueryRowContext(ctx, `SELECT summary, attendees FROM events WHERE id = ?`, id).Scan(&summary, &attendees); err != nil {
		t.Fatalf("select event: %v", err)
	}
	if summary != "Solar Panels" || attendees != `["sami@acme.tn"]` {
		t.Errorf("row = %q %q", summary, attendees)
	}
}

func TestSQLite_InsertMeetingRequiresEmail(t *testing.T) {
	s := openTestSQLite(t)
	if _, err := s.InsertMeeting(context.Background(), 999, models.NewMeetingRequest()); err == nil {
		t.Error("InsertMeeting for missing email succeeded, want foreign key error")
	}
}

func TestSQLite_Persons(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	p, err := s.LookupPerson(ctx, "sami@acme.tn")
	if err != nil {
		t.Fatalf("LookupPerson: %v", err)
	}
	if p != nil {
		t.Fatalf("LookupPerson on empty directory = %+v, want nil", p)
	}

	want := models.PersonContext{
		Name:               "Sami Trabelsi",
		Email:              "Sami@Acme.tn",
		Role:               "Sales manager",
		Service:            "Sales",
		Company:            "Acme",
		RelationType:       "supplier",
		ProjectTitle:       "Solar Panels",
		ProjectDescription: "Rooftop panels for the Sfax site",
		LatestDecision:     "Request a revised quote",
	}
	if err := s.UpsertPerson(ctx, want); err != nil {
		t.Fatalf("UpsertPerson: %v", err)
	}
	want.LatestDecision = "Quote accepted"
	if err := s.UpsertPerson(ctx, want); err != nil {
		t.Fatalf("UpsertPerson update: %v", err)
	}

	got, err := s.LookupPerson(ctx, "SAMI@acme.tn")
	if err != nil {
		t.Fatalf("LookupPerson: %v", err)
	}
	if got == nil {
		t.Fatal("LookupPerson = nil, want contact")
	}
	if got.Name != want.Name || got.Email != "sami@acme.tn" || got.LatestDecision != "Quote accepted" {
		t.Errorf("LookupPerson = %+v", got)
	}
}
