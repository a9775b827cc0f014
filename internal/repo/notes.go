package repo

import (
	"context"
	"database/sql"

	"jobtrail/internal/domain"
)

func (r Repo) InsertNote(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notes(id,application_id,type,content,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		n.ID, n.ApplicationID, n.Type, n.Content, n.CreatedAt, n.UpdatedAt)
	return err
}

func (r Repo) GetNote(ctx context.Context, id string) (domain.Note, error) {
	var n domain.Note
	err := r.DB.QueryRowContext(ctx, `SELECT id,application_id,type,content,created_at,updated_at FROM notes WHERE id=?`, id).
		Scan(&n.ID, &n.ApplicationID, &n.Type, &n.Content, &n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	return n, err
}

func (r Repo) UpdateNote(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	res, err := tx.ExecContext(ctx, `UPDATE notes SET type=?, content=?, updated_at=? WHERE id=?`,
		n.Type, n.Content, n.UpdatedAt, n.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteNote removes the note row only. Timeline entries that mention the
// note stay, the timeline is independent history.
func (r Repo) DeleteNote(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListNotes(ctx context.Context, applicationID string) ([]domain.Note, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,application_id,type,content,created_at,updated_at FROM notes WHERE application_id=? ORDER BY created_at ASC, id ASC`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Note
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.ApplicationID, &n.Type, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
