package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"jobtrail/internal/domain"
	"jobtrail/internal/engine"
)

type captureSink struct {
	sent []domain.Reminder
}

func (s *captureSink) Send(_ context.Context, _ string, r domain.Reminder) error {
	s.sent = append(s.sent, r)
	return nil
}

// failSink fails delivery for one job and records the rest.
type failSink struct {
	failJobID string
	sent      []domain.Reminder
}

func (s *failSink) Send(_ context.Context, _ string, r domain.Reminder) error {
	if r.JobID == s.failJobID {
		return fmt.Errorf("smtp down")
	}
	s.sent = append(s.sent, r)
	return nil
}

func TestRunRemindersSendsDue(t *testing.T) {
	env := newTestEnv(t)
	sink := &captureSink{}
	env.Engine.Sink = sink

	a := env.create(t, "job-1")
	env.transition(t, a.ID, domain.StatusApplied)
	env.advance(15 * 24 * time.Hour)

	run, err := env.Engine.RunReminders(env.Ctx, env.now())
	if err != nil {
		t.Fatalf("run reminders: %v", err)
	}
	if run.Sent != 1 || run.Failed != 0 {
		t.Fatalf("expected 1 sent, got %+v", run)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(sink.sent))
	}
	r := sink.sent[0]
	if r.ApplicationID != a.ID || r.JobID != "job-1" || r.Status != domain.StatusApplied {
		t.Fatalf("unexpected payload %+v", r)
	}
	if r.DaysSinceApplied != 15 {
		t.Fatalf("expected 15 days since applied, got %d", r.DaysSinceApplied)
	}

	got, err := env.Engine.GetApplication(env.Ctx, a.ID, "user-1")
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	if got.LastReminderSentAt == nil {
		t.Fatalf("expected last_reminder_sent_at to be set")
	}
	if n := env.countEvents(t, a.ID, domain.EventReminderSent); n != 1 {
		t.Fatalf("expected 1 reminder_sent event, got %d", n)
	}
}

func TestReminderCooldown(t *testing.T) {
	env := newTestEnv(t)
	sink := &captureSink{}
	env.Engine.Sink = sink

	a := env.create(t, "job-1")
	env.transition(t, a.ID, domain.StatusApplied)
	env.advance(15 * 24 * time.Hour)

	if run, _ := env.Engine.RunReminders(env.Ctx, env.now()); run.Sent != 1 {
		t.Fatalf("first run should send, got %+v", run)
	}
	// within the 7 day cooldown nothing is due
	env.advance(24 * time.Hour)
	run, err := env.Engine.RunReminders(env.Ctx, env.now())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if run.Examined != 0 || run.Sent != 0 {
		t.Fatalf("expected quiet run during cooldown, got %+v", run)
	}
	// past the cooldown it fires again
	env.advance(7 * 24 * time.Hour)
	if run, _ := env.Engine.RunReminders(env.Ctx, env.now()); run.Sent != 1 {
		t.Fatalf("expected resend after cooldown, got %+v", run)
	}
	if len(sink.sent) != 2 {
		t.Fatalf("expected 2 deliveries total, got %d", len(sink.sent))
	}
}

func TestRunRemindersIsolatesSinkFailure(t *testing.T) {
	env := newTestEnv(t)
	sink := &failSink{failJobID: "job-bad"}
	env.Engine.Sink = sink

	bad := env.create(t, "job-bad")
	good := env.create(t, "job-good")
	env.transition(t, bad.ID, domain.StatusApplied)
	env.transition(t, good.ID, domain.StatusApplied)
	env.advance(15 * 24 * time.Hour)

	run, err := env.Engine.RunReminders(env.Ctx, env.now())
	if err != nil {
		t.Fatalf("run reminders: %v", err)
	}
	if run.Sent != 1 || run.Failed != 1 {
		t.Fatalf("expected 1 sent 1 failed, got %+v", run)
	}

	// the failed application keeps no cooldown marker and is retried
	got, _ := env.Engine.GetApplication(env.Ctx, bad.ID, "user-1")
	if got.LastReminderSentAt != nil {
		t.Fatalf("failed delivery must not mark the application")
	}
	if n := env.countEvents(t, bad.ID, domain.EventReminderSent); n != 0 {
		t.Fatalf("failed delivery must not be audited, got %d events", n)
	}

	env.Engine.Sink = &captureSink{}
	if run, _ := env.Engine.RunReminders(env.Ctx, env.now()); run.Sent != 1 {
		t.Fatalf("expected retry to send, got %+v", run)
	}
}

func TestTriggerReminderEligibility(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Sink = &captureSink{}

	a := env.create(t, "job-1")
	var ve engine.ValidationError

	// saved applications are never reminded
	err := env.Engine.TriggerReminder(env.Ctx, a.ID, "user-1", env.now())
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for saved, got %v", err)
	}

	// applied but not due yet
	env.transition(t, a.ID, domain.StatusApplied)
	err = env.Engine.TriggerReminder(env.Ctx, a.ID, "user-1", env.now())
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError before due date, got %v", err)
	}

	// due
	env.advance(14 * 24 * time.Hour)
	if err := env.Engine.TriggerReminder(env.Ctx, a.ID, "user-1", env.now()); err != nil {
		t.Fatalf("expected manual reminder to send: %v", err)
	}
	// cooldown blocks an immediate second trigger
	err = env.Engine.TriggerReminder(env.Ctx, a.ID, "user-1", env.now())
	if !errors.As(err, &ve) {
		t.Fatalf("expected cooldown error, got %v", err)
	}
}
