package inbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"mailcal/internal/dedup"
	"mailcal/internal/models"
	"mailcal/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource holds the relevant mailbox messages, newest first.
type fakeSource struct {
	emails []models.InboundEmail
	err    error
	calls  int
}

func (f *fakeSource) FetchOne(ctx context.Context, accept func(context.Context, string) (bool, error)) (*models.InboundEmail, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for _, e := range f.emails {
		ok, err := accept(ctx, e.MessageID)
		if err != nil {
			return nil, err
		}
		if ok {
			return &e, nil
		}
	}
	return nil, nil
}

type fakeStore struct {
	stored []models.InboundEmail
	err    error
}

func (f *fakeStore) InsertEmail(_ context.Context, email models.InboundEmail) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.stored = append(f.stored, email)
	return int64(len(f.stored)), nil
}

type fakeRunner struct {
	ids []int64
	err error
}

func (f *fakeRunner) Execute(_ context.Context, emailID int64, email models.InboundEmail) (pipeline.Run, error) {
	f.ids = append(f.ids, emailID)
	return pipeline.Run{EmailID: emailID, Email: email}, f.err
}

func meetingEmail(id string) models.InboundEmail {
	return models.InboundEmail{MessageID: id, SenderEmail: "sami@acme.tn", Subject: "Meeting " + id}
}

func TestDriver_ProcessNext(t *testing.T) {
	source := &fakeSource{emails: []models.InboundEmail{meetingEmail("m1")}}
	store := &fakeStore{}
	runner := &fakeRunner{}
	d := NewDriver(source, dedup.NewMemory(time.Hour), store, runner, discardLogger())

	run, err := d.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext() error: %v", err)
	}
	if run == nil || run.EmailID != 1 {
		t.Fatalf("run = %+v, want email 1", run)
	}
	if len(store.stored) != 1 || len(runner.ids) != 1 {
		t.Errorf("stored %d, ran %d", len(store.stored), len(runner.ids))
	}

	// The same message on the next poll is skipped.
	run, err = d.ProcessNext(context.Background())
	if err != nil || run != nil {
		t.Errorf("second ProcessNext() = %+v, %v, want nil, nil", run, err)
	}
	if len(runner.ids) != 1 {
		t.Errorf("pipeline ran %d times, want 1", len(runner.ids))
	}
}

func TestDriver_ProcessNextReachesOlderMail(t *testing.T) {
	source := &fakeSource{emails: []models.InboundEmail{meetingEmail("new"), meetingEmail("old")}}
	store := &fakeStore{}
	d := NewDriver(source, dedup.NewMemory(time.Hour), store, &fakeRunner{}, discardLogger())

	for i := 0; i < 3; i++ {
		if _, err := d.ProcessNext(context.Background()); err != nil {
			t.Fatalf("poll %d: ProcessNext() error: %v", i+1, err)
		}
	}

	var got []string
	for _, e := range store.stored {
		got = append(got, e.MessageID)
	}
	if len(got) != 2 || got[0] != "new" || got[1] != "old" {
		t.Errorf("processed %v after 3 polls, want [new old]", got)
	}
}

func TestDriver_ProcessNextNothingNew(t *testing.T) {
	runner := &fakeRunner{}
	d := NewDriver(&fakeSource{}, dedup.NewMemory(time.Hour), &fakeStore{}, runner, discardLogger())

	run, err := d.ProcessNext(context.Background())
	if err != nil || run != nil {
		t.Errorf("ProcessNext() = %+v, %v, want nil, nil", run, err)
	}
	if len(runner.ids) != 0 {
		t.Error("pipeline ran without an email")
	}
}

func TestDriver_FetchError(t *testing.T) {
	d := NewDriver(&fakeSource{err: errors.New("quota exceeded")}, dedup.NewMemory(time.Hour), &fakeStore{}, &fakeRunner{}, discardLogger())

	if _, err := d.ProcessNext(context.Background()); err == nil {
		t.Error("ProcessNext() error = nil, want fetch error")
	}
}

func TestDriver_StoreFailureAllowsRetry(t *testing.T) {
	source := &fakeSource{emails: []models.InboundEmail{meetingEmail("m1")}}
	store := &fakeStore{err: errors.New("db down")}
	runner := &fakeRunner{}
	d := NewDriver(source, dedup.NewMemory(time.Hour), store, runner, discardLogger())

	if _, err := d.ProcessNext(context.Background()); err == nil {
		t.Fatal("ProcessNext() error = nil, want store error")
	}
	if len(runner.ids) != 0 {
		t.Error("pipeline ran without a stored email")
	}

	store.err = nil
	run, err := d.ProcessNext(context.Background())
	if err != nil || run == nil {
		t.Fatalf("retry ProcessNext() = %+v, %v", run, err)
	}
}

func TestDriver_PipelineErrorReturnsRun(t *testing.T) {
	stageErr := &pipeline.StageError{Stage: pipeline.StageParse, Err: errors.New("no json")}
	d := NewDriver(&fakeSource{emails: []models.InboundEmail{meetingEmail("m1")}}, dedup.NewMemory(time.Hour), &fakeStore{}, &fakeRunner{err: stageErr}, discardLogger())

	run, err := d.ProcessNext(context.Background())
	var se *pipeline.StageError
	if !errors.As(err, &se) || se.Stage != pipeline.StageParse {
		t.Errorf("error = %v, want parse StageError", err)
	}
	if run == nil || run.EmailID != 1 {
		t.Errorf("run = %+v", run)
	}
}

func TestDriver_WatchStopsOnCancel(t *testing.T) {
	source := &fakeSource{}
	d := NewDriver(source, dedup.NewMemory(time.Hour), &fakeStore{}, &fakeRunner{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Watch(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	if source.calls == 0 {
		t.Error("Watch never polled")
	}
}
