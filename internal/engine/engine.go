package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"jobtrail/internal/config"
	"jobtrail/internal/domain"
	"jobtrail/internal/repo"
	"jobtrail/internal/timeline"
)

// Sink delivers follow-up reminders. Implementations live outside the
// engine; a delivery failure is never surfaced as an application error.
type Sink interface {
	Send(ctx context.Context, userID string, r domain.Reminder) error
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Timeline timeline.Store
	Config   *config.Config
	Sink     Sink
	Log      *slog.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Timeline: timeline.Store{DB: db},
		Config:   cfg,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

// CreateApplication records a new pursuit in saved status.
func (e Engine) CreateApplication(ctx context.Context, userID, jobID, actorID string) (domain.Application, error) {
	if userID == "" {
		userID = actorID
	}
	if userID == "" {
		return domain.Application{}, ValidationError{Field: "user_id", Reason: "required"}
	}
	if jobID == "" {
		return domain.Application{}, ValidationError{Field: "job_id", Reason: "required"}
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Application{
		ID:            uuid.New().String(),
		UserID:        userID,
		JobID:         jobID,
		Status:        domain.StatusSaved,
		AppliedAt:     now,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertApplication(ctx, tx, a); err != nil {
		return domain.Application{}, fmt.Errorf("insert application: %w", err)
	}
	if err := e.timelineWriter().Append(ctx, tx, a.ID, domain.EventCreated, actorID, timeline.Metadata{"job_id": jobID, "status": a.Status}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return a, nil
}

// getOwned fetches an application and hides it from non-owners.
func (e Engine) getOwned(ctx context.Context, applicationID, actorID string) (domain.Application, error) {
	a, err := e.Repo.GetApplication(ctx, applicationID)
	if err != nil {
		return a, err
	}
	if actorID != "" && a.UserID != actorID {
		return domain.Application{}, repo.ErrNotFound
	}
	return a, nil
}

// Transition moves an application to newStatus, applying the side effects
// registered for the target status atomically with the status write.
func (e Engine) Transition(ctx context.Context, applicationID, newStatus, actorID string) (domain.Application, error) {
	if !validStatus(newStatus) {
		return domain.Application{}, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", newStatus)}
	}
	a, err := e.getOwned(ctx, applicationID, actorID)
	if err != nil {
		return domain.Application{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)

	if newStatus == a.Status {
		// Idempotent metadata-only update: always allowed, no side
		// effects, no status_changed record.
		a.LastUpdatedAt = now
		if err := e.Repo.UpdateApplication(ctx, tx, a); err != nil {
			return domain.Application{}, err
		}
		if err := e.timelineWriter().Append(ctx, tx, a.ID, domain.EventStatusConfirmed, actorID, timeline.Metadata{"status": a.Status}); err != nil {
			return domain.Application{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.Application{}, err
		}
		return a, nil
	}

	if err := ensureTransition(a.Status, newStatus); err != nil {
		return domain.Application{}, err
	}

	from := a.Status
	a.Status = newStatus
	a.LastUpdatedAt = now
	for _, effect := range transitionEffects[newStatus] {
		switch effect.kind {
		case effectSetFollowUp:
			due := e.now().UTC().AddDate(0, 0, e.followUpDays()).Format(time.RFC3339)
			a.FollowUpDate = &due
		case effectClearFollowUp:
			a.FollowUpDate = nil
		case effectEmitEvent:
			if err := e.timelineWriter().Append(ctx, tx, a.ID, effect.eventType, actorID, timeline.Metadata{"status": newStatus}); err != nil {
				return domain.Application{}, err
			}
		}
	}
	if err := e.Repo.UpdateApplication(ctx, tx, a); err != nil {
		return domain.Application{}, err
	}
	if err := e.timelineWriter().Append(ctx, tx, a.ID, domain.EventStatusChanged, actorID, timeline.Metadata{"from": from, "to": newStatus}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return a, nil
}

// AddNote attaches a user annotation and audits it.
func (e Engine) AddNote(ctx context.Context, applicationID, noteType, content, actorID string) (domain.Note, error) {
	if err := validateNote(noteType, content); err != nil {
		return domain.Note{}, err
	}
	a, err := e.getOwned(ctx, applicationID, actorID)
	if err != nil {
		return domain.Note{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	n := domain.Note{
		ID:            uuid.New().String(),
		ApplicationID: a.ID,
		Type:          noteType,
		Content:       content,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Note{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertNote(ctx, tx, n); err != nil {
		return domain.Note{}, fmt.Errorf("insert note: %w", err)
	}
	if err := e.timelineWriter().Append(ctx, tx, a.ID, domain.EventNoteAdded, actorID, timeline.Metadata{"note_id": n.ID, "type": n.Type}); err != nil {
		return domain.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Note{}, err
	}
	return n, nil
}

// NoteUpdateOptions are the allowed note edits.
type NoteUpdateOptions struct {
	Type    *string
	Content *string
}

func (e Engine) UpdateNote(ctx context.Context, applicationID, noteID string, opts NoteUpdateOptions, actorID string) (domain.Note, error) {
	a, err := e.getOwned(ctx, applicationID, actorID)
	if err != nil {
		return domain.Note{}, err
	}
	n, err := e.Repo.GetNote(ctx, noteID)
	if err != nil {
		return domain.Note{}, err
	}
	if n.ApplicationID != a.ID {
		return domain.Note{}, repo.ErrNotFound
	}
	if opts.Type != nil {
		n.Type = *opts.Type
	}
	if opts.Content != nil {
		n.Content = *opts.Content
	}
	if err := validateNote(n.Type, n.Content); err != nil {
		return domain.Note{}, err
	}
	n.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Note{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateNote(ctx, tx, n); err != nil {
		return domain.Note{}, err
	}
	if err := e.timelineWriter().Append(ctx, tx, a.ID, domain.EventNoteUpdated, actorID, timeline.Metadata{"note_id": n.ID, "type": n.Type}); err != nil {
		return domain.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Note{}, err
	}
	return n, nil
}

// DeleteNote removes the note; its timeline entries stay.
func (e Engine) DeleteNote(ctx context.Context, applicationID, noteID, actorID string) error {
	a, err := e.getOwned(ctx, applicationID, actorID)
	if err != nil {
		return err
	}
	n, err := e.Repo.GetNote(ctx, noteID)
	if err != nil {
		return err
	}
	if n.ApplicationID != a.ID {
		return repo.ErrNotFound
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteNote(ctx, tx, noteID); err != nil {
		return err
	}
	if err := e.timelineWriter().Append(ctx, tx, a.ID, domain.EventNoteDeleted, actorID, timeline.Metadata{"note_id": n.ID, "type": n.Type}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListNotes(ctx context.Context, applicationID, actorID string) ([]domain.Note, error) {
	a, err := e.getOwned(ctx, applicationID, actorID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListNotes(ctx, a.ID)
}

// GetTimeline returns the full audit log oldest first.
func (e Engine) GetTimeline(ctx context.Context, applicationID, actorID string) ([]domain.TimelineEvent, error) {
	a, err := e.getOwned(ctx, applicationID, actorID)
	if err != nil {
		return nil, err
	}
	return e.Timeline.ListByApplication(ctx, a.ID)
}

func (e Engine) GetApplication(ctx context.Context, applicationID, actorID string) (domain.Application, error) {
	return e.getOwned(ctx, applicationID, actorID)
}

// DeleteApplication removes an application outright. Notes and timeline
// rows go with it via the FK cascade; this is for tracking mistakes, not
// for closing a pursuit (use a terminal transition for that).
func (e Engine) DeleteApplication(ctx context.Context, applicationID, actorID string) error {
	a, err := e.getOwned(ctx, applicationID, actorID)
	if err != nil {
		return err
	}
	return e.Repo.DeleteApplication(ctx, a.ID)
}

// ListApplications returns the actor's applications, newest first.
func (e Engine) ListApplications(ctx context.Context, userID, status string, limit int) ([]domain.Application, error) {
	if status != "" && !validStatus(status) {
		return nil, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	return e.Repo.ListApplications(ctx, repo.ApplicationFilters{
		UserID: userID,
		Status: status,
		Limit:  limit,
	})
}

// ListFollowUps returns the actor's applications with a scheduled
// follow-up, soonest first.
func (e Engine) ListFollowUps(ctx context.Context, userID string) ([]domain.Application, error) {
	return e.Repo.ListFollowUps(ctx, userID)
}

func (e Engine) followUpDays() int {
	if e.Config != nil && e.Config.Reminders.FollowUpDays > 0 {
		return e.Config.Reminders.FollowUpDays
	}
	return 14
}

func (e Engine) cooldownDays() int {
	if e.Config != nil && e.Config.Reminders.CooldownDays > 0 {
		return e.Config.Reminders.CooldownDays
	}
	return 7
}

func (e Engine) batchSize() int {
	if e.Config != nil && e.Config.Reminders.BatchSize > 0 {
		return e.Config.Reminders.BatchSize
	}
	return 100
}

func (e Engine) timelineWriter() timeline.Store {
	w := e.Timeline
	if w.Now == nil {
		w.Now = e.Now
	}
	return w
}

func validateNote(noteType, content string) error {
	switch noteType {
	case domain.NoteGeneral, domain.NoteInterview, domain.NoteFeedback, domain.NoteFollowUp:
	default:
		return ValidationError{Field: "type", Reason: fmt.Sprintf("unknown note type %q", noteType)}
	}
	if content == "" {
		return ValidationError{Field: "content", Reason: "required"}
	}
	return nil
}
