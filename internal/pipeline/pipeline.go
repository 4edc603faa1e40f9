// Package pipeline runs one inbound email through parse, advise,
// availability check, resolution and notification.
//
// Stages run strictly in order. Each receives the Run built so far and
// returns it augmented. A failing stage halts the run and nothing after it
// executes; rows written by earlier stages are kept.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailcal/internal/models"
	"mailcal/internal/notify"
	"mailcal/internal/scheduling"
)

// ErrUnknownOutcome is returned by the notify stage when the resolve stage
// left no outcome it knows how to announce.
var ErrUnknownOutcome = errors.New("unknown scheduling outcome")

// Stage names, in execution order.
const (
	StageParse             = "parse"
	StageAdvise            = "advise"
	StageCheckAvailability = "check_availability"
	StageResolve           = "resolve"
	StageNotify            = "notify"
)

// Extractor turns raw email text into a meeting request.
type Extractor interface {
	Extract(ctx context.Context, rawEmail string) (models.MeetingRequest, error)
}

// Advisor produces preparation tasks and advice for a meeting.
type Advisor interface {
	Recommend(ctx context.Context, req models.MeetingRequest, person models.PersonContext) (models.RecommendationSet, error)
}

// Resolver looks up the sender in the contact directory.
type Resolver interface {
	Resolve(ctx context.Context, senderEmail string) (models.PersonContext, error)
}

// Availability checks the slot a request names.
type Availability interface {
	CheckRequest(ctx context.Context, req models.MeetingRequest) (models.TimeSlot, bool, error)
}

// Alternatives searches for free slots from a start day.
type Alternatives interface {
	FindAlternatives(ctx context.Context, startFrom time.Time, durationHours float64) (models.SlotSearchResult, error)
}

// EventCreator books an event. Implementations fill in ID and UID.
type EventCreator interface {
	CreateEvent(ctx context.Context, event *models.Event) error
}

// Recorder is the persistence the stages write to.
type Recorder interface {
	InsertMeeting(ctx context.Context, emailID int64, req models.MeetingRequest) (int64, error)
	InsertRecommendation(ctx context.Context, emailID int64, projectTitle string, kind models.RecommendationKind, content string) (int64, error)
	InsertEvent(ctx context.Context, emailID int64, event models.Event) (int64, error)
}

// Run is the context accumulated by one pipeline execution.
type Run struct {
	RunID   string
	EmailID int64
	Email   models.InboundEmail

	Request         models.MeetingRequest
	Person          models.PersonContext
	Recommendations models.RecommendationSet

	// Requested is nil when the request named no usable date and time.
	Requested *models.TimeSlot
	Available bool

	Outcome      models.Outcome
	Notification *models.Notification
}

// Stage is one step of the pipeline.
type Stage struct {
	Name string
	Run  func(ctx context.Context, run Run) (Run, error)
}

// StageError reports which stage halted a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Extractor    Extractor
	Advisor      Advisor
	Resolver     Resolver
	Availability Availability
	Alternatives Alternatives
	Events       EventCreator
	Recorder     Recorder
	Composer     *notify.Composer
	Sink         notify.Sink
}

// Pipeline executes the stages for one email at a time. It holds no per-run
// state, so concurrent Execute calls on distinct emails are safe when the
// collaborators are.
type Pipeline struct {
	deps   Deps
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline that books events in loc.
func New(deps Deps, loc *time.Location, logger *slog.Logger) *Pipeline {
	return &Pipeline{deps: deps, loc: loc, logger: logger, now: time.Now}
}

// Stages returns the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	return []Stage{
		{Name: StageParse, Run: p.parse},
		{Name: StageAdvise, Run: p.advise},
		{Name: StageCheckAvailability, Run: p.checkAvailability},
		{Name: StageResolve, Run: p.resolve},
		{Name: StageNotify, Run: p.notify},
	}
}

// Execute runs every stage for email, already stored under emailID. On
// failure the returned error is a *StageError and the Run holds whatever
// the completed stages produced.
func (p *Pipeline) Execute(ctx context.Context, emailID int64, email models.InboundEmail) (Run, error) {
	run := Run{RunID: uuid.NewString(), EmailID: emailID, Email: email}
	logger := p.logger.With("run_id", run.RunID, "email_id", emailID)
	logger.Info("Pipeline started", "from", email.SenderEmail, "subject", email.Subject)

	started := time.Now()
	for _, stage := range p.Stages() {
		stageStart := time.Now()
		logger.Debug("Stage started", "stage", stage.Name)

		next, err := stage.Run(ctx, run)
		elapsed := time.Since(stageStart).Milliseconds()
		if err != nil {
			logger.Error("Stage failed, run halted", "stage", stage.Name, "elapsed_ms", elapsed, "error", err)
			return run, &StageError{Stage: stage.Name, Err: err}
		}
		run = next
		logger.Info("Stage finished", "stage", stage.Name, "elapsed_ms", elapsed)
	}

	logger.Info("Pipeline finished", "outcome", outcomeName(run.Outcome), "elapsed_ms", time.Since(started).Milliseconds())
	return run, nil
}

func (p *Pipeline) parse(ctx context.Context, run Run) (Run, error) {
	req, err := p.deps.Extractor.Extract(ctx, RawText(run.Email))
	if err != nil {
		return run, err
	}
	if _, err := p.deps.Recorder.InsertMeeting(ctx, run.EmailID, req); err != nil {
		return run, err
	}
	run.Request = req
	return run, nil
}

func (p *Pipeline) advise(ctx context.Context, run Run) (Run, error) {
	person, err := p.deps.Resolver.Resolve(ctx, run.Email.SenderEmail)
	if err != nil {
		return run, err
	}

	recs, err := p.deps.Advisor.Recommend(ctx, run.Request, person)
	if err != nil {
		return run, err
	}
	recs.EmailID = run.EmailID

	for _, item := range []struct {
		kind  models.RecommendationKind
		items []string
	}{
		{models.RecommendationTask, recs.Tasks},
		{models.RecommendationAdvice, recs.Advice},
	} {
		for _, content := range item.items {
			if _, err := p.deps.Recorder.InsertRecommendation(ctx, run.EmailID, recs.ProjectTitle, item.kind, content); err != nil {
				return run, err
			}
		}
	}

	run.Person = person
	run.Recommendations = recs
	return run, nil
}

func (p *Pipeline) checkAvailability(ctx context.Context, run Run) (Run, error) {
	slot, ok, err := p.deps.Availability.CheckRequest(ctx, run.Request)
	switch {
	case errors.Is(err, scheduling.ErrNoRequestedSlot):
		p.logger.Info("No requested slot, alternatives will be proposed", "email_id", run.EmailID, "reason", err)
		run.Requested = nil
		run.Available = false
		return run, nil
	case err != nil:
		return run, err
	}
	run.Requested = &slot
	run.Available = ok
	return run, nil
}

func (p *Pipeline) resolve(ctx context.Context, run Run) (Run, error) {
	if run.Available && run.Requested != nil {
		event := models.Event{
			Title:       run.Request.Summary(run.Email.SenderEmail),
			Description: run.Request.MeetingTopic,
			StartTime:   run.Requested.Start,
			EndTime:     run.Requested.End,
			TimeZone:    p.loc.String(),
			Attendees:   []string{run.Email.SenderEmail},
		}
		if err := p.deps.Events.CreateEvent(ctx, &event); err != nil {
			return run, err
		}
		if _, err := p.deps.Recorder.InsertEvent(ctx, run.EmailID, event); err != nil {
			return run, err
		}
		run.Outcome = models.Booked{Event: event}
		return run, nil
	}

	startFrom, err := run.Request.RequestedDate(p.loc)
	if err != nil {
		startFrom = p.now().In(p.loc)
	}
	slots, err := p.deps.Alternatives.FindAlternatives(ctx, startFrom, run.Request.DurationHours)
	if err != nil {
		return run, err
	}
	run.Outcome = models.AlternativesProposed{Requested: run.Requested, Slots: slots}
	return run, nil
}

func (p *Pipeline) notify(ctx context.Context, run Run) (Run, error) {
	var n models.Notification
	switch o := run.Outcome.(type) {
	case models.Booked:
		n = p.deps.Composer.Confirmation(run.Email, run.Request, o)
	case models.AlternativesProposed:
		n = p.deps.Composer.Reschedule(run.Email, run.Request, o)
	default:
		return run, fmt.Errorf("%w: %T", ErrUnknownOutcome, run.Outcome)
	}

	if err := p.deps.Sink.Send(ctx, n); err != nil {
		return run, err
	}
	run.Notification = &n
	return run, nil
}

// RawText lays out an email the way the extraction prompt expects it.
func RawText(email models.InboundEmail) string {
	var b strings.Builder
	if email.SenderName != "" {
		fmt.Fprintf(&b, "From: %s <%s>\n", email.SenderName, email.SenderEmail)
	} else {
		fmt.Fprintf(&b, "From: %s\n", email.SenderEmail)
	}
	fmt.Fprintf(&b, "Subject: %s\n\n", email.Subject)
	b.WriteString(email.Body)
	return b.String()
}

func outcomeName(o models.Outcome) string {
	switch o := o.(type) {
	case models.Booked:
		return "event_created"
	case models.AlternativesProposed:
		return fmt.Sprintf("alternatives_found(%d)", len(o.Slots.Slots))
	default:
		return "none"
	}
}

// LogEvents stands in for a calendar in dry runs: it logs the event and
// assigns a local UID without booking anything.
type LogEvents struct {
	Logger *slog.Logger
}

// CreateEvent logs event.
func (l LogEvents) CreateEvent(_ context.Context, event *models.Event) error {
	if event.UID == "" {
		event.UID = uuid.NewString() + "@mailcal"
	}
	event.ID = "dry-run:" + event.UID
	l.Logger.Info("Event (not created)",
		"title", event.Title,
		"start", event.StartTime.Format(time.RFC3339),
		"end", event.EndTime.Format(time.RFC3339),
		"attendees", strings.Join(event.Attendees, ","),
	)
	return nil
}
