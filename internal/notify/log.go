package notify

import (
	"context"
	"log/slog"

	"jobtrail/internal/domain"
)

// LogSink writes reminders to the log. Default sink for local workspaces
// with no webhook configured.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Send(ctx context.Context, userID string, r domain.Reminder) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "follow-up reminder",
		"user_id", userID,
		"application_id", r.ApplicationID,
		"job_id", r.JobID,
		"status", r.Status,
		"days_since_applied", r.DaysSinceApplied)
	return nil
}
