package jobs

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	SetJobResult(ctx context.Context, job *Job) error
	ResetInterruptedJobs(ctx context.Context) (int, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const jobColumns = `id, status, sport, video_url, output_url, source_path, result_path,
	options, result, error, progress, created_at, updated_at, completed_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Status, j.Sport, j.VideoURL, j.OutputURL, j.SourcePath, j.ResultPath,
		j.Options, j.Result, j.Error, j.Progress,
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339), formatTime(j.CompletedAt))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE id = ?
	`, id)
	return r.scanJob(row)
}

func (r *SQLiteRepository) scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var createdAt, updatedAt, completedAt string

	err := row.Scan(&j.ID, &j.Status, &j.Sport, &j.VideoURL, &j.OutputURL, &j.SourcePath, &j.ResultPath,
		&j.Options, &j.Result, &j.Error, &j.Progress, &createdAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	j.CompletedAt = parseTime(completedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = 'pending' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

func (r *SQLiteRepository) scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var j Job
		var createdAt, updatedAt, completedAt string

		if err := rows.Scan(&j.ID, &j.Status, &j.Sport, &j.VideoURL, &j.OutputURL, &j.SourcePath, &j.ResultPath,
			&j.Options, &j.Result, &j.Error, &j.Progress, &createdAt, &updatedAt, &completedAt); err != nil {
			return nil, err
		}
		j.CreatedAt = parseTime(createdAt)
		j.UpdatedAt = parseTime(updatedAt)
		j.CompletedAt = parseTime(completedAt)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, errorMsg, nowRFC3339(), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, nowRFC3339(), id)
	return err
}

// SetJobResult persists a finished job in one write: terminal status, the
// detected sport, the result document, and the annotated video's location.
func (r *SQLiteRepository) SetJobResult(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, sport = ?, result_path = ?, result = ?, error = ?,
			progress = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, j.Status, j.Sport, j.ResultPath, j.Result, j.Error,
		j.Progress, formatTime(j.CompletedAt), nowRFC3339(), j.ID)
	return err
}

// ResetInterruptedJobs fails every job a previous process left mid-run.
// Pending jobs are untouched; the runner picks them up again.
func (r *SQLiteRepository) ResetInterruptedJobs(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', error = 'interrupted by restart', updated_at = ?
		WHERE status = 'running'
	`, nowRFC3339())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
