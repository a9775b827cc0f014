package repo

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"jobtrail/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func scanApplication(row interface{ Scan(...any) error }) (domain.Application, error) {
	var a domain.Application
	var followUp, lastReminder sql.NullString
	err := row.Scan(&a.ID, &a.UserID, &a.JobID, &a.Status, &a.AppliedAt, &a.CreatedAt, &a.LastUpdatedAt, &followUp, &lastReminder)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if followUp.Valid {
		a.FollowUpDate = &followUp.String
	}
	if lastReminder.Valid {
		a.LastReminderSentAt = &lastReminder.String
	}
	return a, nil
}

const applicationColumns = `id,user_id,job_id,status,applied_at,created_at,last_updated_at,follow_up_date,last_reminder_sent_at`

func (r Repo) InsertApplication(ctx context.Context, tx *sql.Tx, a domain.Application) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO applications(`+applicationColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.UserID, a.JobID, a.Status, a.AppliedAt, a.CreatedAt, a.LastUpdatedAt, nullableStringPtr(a.FollowUpDate), nullableStringPtr(a.LastReminderSentAt))
	return err
}

func (r Repo) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	return scanApplication(r.DB.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id=?`, id))
}

// UpdateApplication writes the mutable projection fields within tx.
func (r Repo) UpdateApplication(ctx context.Context, tx *sql.Tx, a domain.Application) error {
	res, err := tx.ExecContext(ctx, `UPDATE applications SET status=?, last_updated_at=?, follow_up_date=?, last_reminder_sent_at=? WHERE id=?`,
		a.Status, a.LastUpdatedAt, nullableStringPtr(a.FollowUpDate), nullableStringPtr(a.LastReminderSentAt), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteApplication(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM applications WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type ApplicationFilters struct {
	UserID          string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListApplications filters and pages newest first with a keyset cursor.
func (r Repo) ListApplications(ctx context.Context, f ApplicationFilters) ([]domain.Application, error) {
	q := sq.Select(applicationColumns).From("applications")
	if f.UserID != "" {
		q = q.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		q = q.Where(sq.Or{
			sq.Lt{"created_at": f.CursorCreatedAt},
			sq.And{sq.Eq{"created_at": f.CursorCreatedAt}, sq.Lt{"id": f.CursorID}},
		})
	}
	q = q.OrderBy("created_at DESC", "id DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryApplications(ctx, query, args...)
}

// ListFollowUps returns a user's applications with a follow-up scheduled,
// soonest first.
func (r Repo) ListFollowUps(ctx context.Context, userID string) ([]domain.Application, error) {
	query, args, err := sq.Select(applicationColumns).From("applications").
		Where(sq.Eq{"user_id": userID}).
		Where("follow_up_date IS NOT NULL").
		OrderBy("follow_up_date ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryApplications(ctx, query, args...)
}

// DueForReminder pages applications whose follow-up date has passed and
// whose cooldown has lapsed. Keyset on id so a page of failures cannot
// make the batch spin on the same rows.
func (r Repo) DueForReminder(ctx context.Context, activeStatuses []string, now, cooldownCutoff, afterID string, limit int) ([]domain.Application, error) {
	q := sq.Select(applicationColumns).From("applications").
		Where(sq.Eq{"status": activeStatuses}).
		Where("follow_up_date IS NOT NULL").
		Where(sq.LtOrEq{"follow_up_date": now}).
		Where(sq.Or{
			sq.Expr("last_reminder_sent_at IS NULL"),
			sq.LtOrEq{"last_reminder_sent_at": cooldownCutoff},
		}).
		OrderBy("id ASC").
		Limit(uint64(limit))
	if afterID != "" {
		q = q.Where(sq.Gt{"id": afterID})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryApplications(ctx, query, args...)
}

// ClaimReminder marks the cooldown inside tx, but only while the
// application is still due. Returns false when a concurrent run already
// claimed it.
func (r Repo) ClaimReminder(ctx context.Context, tx *sql.Tx, id, now, cooldownCutoff string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE applications SET last_reminder_sent_at=?
WHERE id=? AND follow_up_date IS NOT NULL AND follow_up_date<=?
AND (last_reminder_sent_at IS NULL OR last_reminder_sent_at<=?)`,
		now, id, now, cooldownCutoff)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) CountByStatus(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM applications WHERE user_id=? GROUP BY status`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func (r Repo) queryApplications(ctx context.Context, query string, args ...any) ([]domain.Application, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
