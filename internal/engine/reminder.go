package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobtrail/internal/domain"
	"jobtrail/internal/timeline"
)

// ReminderRun summarizes one batch invocation.
type ReminderRun struct {
	Examined int `json:"examined"`
	Sent     int `json:"sent"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

var errReminderClaimed = errors.New("reminder already claimed")

// RunReminders scans eligible applications in pages and emits at most one
// reminder per application. evaluationTime is injected so the predicate
// stays clock-independent. Cancellation is honored between pages;
// per-application transactions always run to completion or roll back.
func (e Engine) RunReminders(ctx context.Context, evaluationTime time.Time) (ReminderRun, error) {
	var run ReminderRun
	if e.Sink == nil {
		return run, errors.New("notification sink not configured")
	}
	t := evaluationTime.UTC()
	now := t.Format(time.RFC3339)
	cutoff := t.AddDate(0, 0, -e.cooldownDays()).Format(time.RFC3339)

	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		page, err := e.Repo.DueForReminder(ctx, activeStatuses, now, cutoff, afterID, e.batchSize())
		if err != nil {
			return run, fmt.Errorf("scan due applications: %w", err)
		}
		if len(page) == 0 {
			return run, nil
		}
		for _, a := range page {
			run.Examined++
			afterID = a.ID
			switch err := e.sendReminder(ctx, a, t); {
			case err == nil:
				run.Sent++
			case errors.Is(err, errReminderClaimed):
				run.Skipped++
			default:
				// Partial-failure isolation: the cooldown marker was
				// rolled back, so this application is retried next run.
				run.Failed++
				e.log().Warn("reminder delivery failed",
					"application_id", a.ID,
					"user_id", a.UserID,
					"error", err)
			}
		}
	}
}

// TriggerReminder runs the batch predicate for a single application on
// demand. The cooldown still applies, so users cannot spam themselves.
func (e Engine) TriggerReminder(ctx context.Context, applicationID, actorID string, evaluationTime time.Time) error {
	if e.Sink == nil {
		return errors.New("notification sink not configured")
	}
	a, err := e.getOwned(ctx, applicationID, actorID)
	if err != nil {
		return err
	}
	t := evaluationTime.UTC()
	if err := e.checkEligibility(a, t); err != nil {
		return err
	}
	if err := e.sendReminder(ctx, a, t); err != nil {
		if errors.Is(err, errReminderClaimed) {
			return ValidationError{Field: "application", Reason: "reminder cooldown active"}
		}
		return err
	}
	return nil
}

func (e Engine) checkEligibility(a domain.Application, t time.Time) error {
	if !isActive(a.Status) {
		return ValidationError{Field: "status", Reason: fmt.Sprintf("%s applications are not reminded", a.Status)}
	}
	if a.FollowUpDate == nil {
		return ValidationError{Field: "follow_up_date", Reason: "no follow-up scheduled"}
	}
	due, err := time.Parse(time.RFC3339, *a.FollowUpDate)
	if err != nil {
		return fmt.Errorf("parse follow_up_date: %w", err)
	}
	if due.After(t) {
		return ValidationError{Field: "follow_up_date", Reason: "follow-up not due yet"}
	}
	if a.LastReminderSentAt != nil {
		last, err := time.Parse(time.RFC3339, *a.LastReminderSentAt)
		if err != nil {
			return fmt.Errorf("parse last_reminder_sent_at: %w", err)
		}
		if t.Sub(last) < time.Duration(e.cooldownDays())*24*time.Hour {
			return ValidationError{Field: "application", Reason: "reminder cooldown active"}
		}
	}
	return nil
}

// sendReminder claims the cooldown marker, delivers through the sink, and
// records the audit event, all in one transaction. Delivery happens before
// commit so a sink failure rolls the marker back and nothing is lost; a
// concurrent run loses the conditional claim and skips.
func (e Engine) sendReminder(ctx context.Context, a domain.Application, t time.Time) error {
	now := t.Format(time.RFC3339)
	cutoff := t.AddDate(0, 0, -e.cooldownDays()).Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	claimed, err := e.Repo.ClaimReminder(ctx, tx, a.ID, now, cutoff)
	if err != nil {
		return err
	}
	if !claimed {
		return errReminderClaimed
	}

	reminder := domain.Reminder{
		ApplicationID:    a.ID,
		UserID:           a.UserID,
		JobID:            a.JobID,
		Status:           a.Status,
		DaysSinceApplied: daysSince(a.AppliedAt, t),
	}
	if err := e.Sink.Send(ctx, a.UserID, reminder); err != nil {
		return fmt.Errorf("sink delivery: %w", err)
	}
	if err := e.timelineWriter().Append(ctx, tx, a.ID, domain.EventReminderSent, "scheduler", timeline.Metadata{
		"days_since_applied": reminder.DaysSinceApplied,
		"status":             a.Status,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func daysSince(ts string, t time.Time) int {
	from, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return 0
	}
	d := int(t.Sub(from).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
