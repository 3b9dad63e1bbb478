package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/radgate/radgate/internal/types"
)

// CreateReindexJob inserts a new running job and returns it.
func (s *Store) CreateReindexJob(ctx context.Context) (*types.ReindexJob, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reindex_jobs (status, started_at) VALUES ('running', ?)`,
		now.Format(time.RFC3339))
	if err != nil {
		return nil, wrapDBError("create reindex job", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrapDBError("create reindex job", err)
	}
	return &types.ReindexJob{
		ID:        id,
		Status:    types.JobRunning,
		StartedAt: now,
	}, nil
}

// UpdateReindexJob writes a progress or terminal update. Terminal statuses
// also stamp completed_at.
func (s *Store) UpdateReindexJob(ctx context.Context, id int64, status types.ReindexJobStatus, total, processed, errs int, message string) error {
	var completedAt interface{}
	if status != types.JobRunning {
		completedAt = time.Now().UTC().Format(time.RFC3339)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE reindex_jobs
		SET status = ?, total_files = ?, processed = ?, errors = ?, message = ?,
		    completed_at = COALESCE(?, completed_at)
		WHERE id = ?`,
		status, total, processed, errs, message, completedAt, id)
	if err != nil {
		return wrapDBError("update reindex job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrapDBError("update reindex job", sql.ErrNoRows)
	}
	return nil
}

// GetReindexJob fetches one job by ID.
func (s *Store) GetReindexJob(ctx context.Context, id int64) (*types.ReindexJob, error) {
	return s.scanJob(s.db.QueryRowContext(ctx, `
		SELECT id, status, total_files, processed, errors, message, started_at, completed_at
		FROM reindex_jobs WHERE id = ?`, id))
}

// GetLatestReindexJob fetches the most recently started job.
func (s *Store) GetLatestReindexJob(ctx context.Context) (*types.ReindexJob, error) {
	return s.scanJob(s.db.QueryRowContext(ctx, `
		SELECT id, status, total_files, processed, errors, message, started_at, completed_at
		FROM reindex_jobs ORDER BY id DESC LIMIT 1`))
}

func (s *Store) scanJob(row *sql.Row) (*types.ReindexJob, error) {
	j := &types.ReindexJob{}
	var started string
	var completed sql.NullString
	err := row.Scan(&j.ID, &j.Status, &j.TotalFiles, &j.Processed, &j.Errors,
		&j.Message, &started, &completed)
	if err != nil {
		return nil, wrapDBError("get reindex job", err)
	}
	if t, err := time.Parse(time.RFC3339, started); err == nil {
		j.StartedAt = t
	}
	if completed.Valid {
		if t, err := time.Parse(time.RFC3339, completed.String); err == nil {
			j.CompletedAt = &t
		}
	}
	return j, nil
}
