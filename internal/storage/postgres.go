package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/avatar-podcast/internal/domain"
	"github.com/cuongbtq/avatar-podcast/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

const selectJobColumns = `
	SELECT
		job_id, host_avatar_id, guest_avatar_id, status,
		options, turns, stitch, created_by, created_at, updated_at
	FROM podcast_jobs`

// jobRow is the podcast_jobs row. Turns, options and the stitch record are JSONB.
type jobRow struct {
	JobID         string             `db:"job_id"`
	HostAvatarID  string             `db:"host_avatar_id"`
	GuestAvatarID string             `db:"guest_avatar_id"`
	Status        string             `db:"status"`
	Options       types.JSONText     `db:"options"`
	Turns         types.JSONText     `db:"turns"`
	Stitch        types.NullJSONText `db:"stitch"`
	CreatedBy     string             `db:"created_by"`
	CreatedAt     time.Time          `db:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at"`
}

func newJobRow(job *domain.Job) (*jobRow, error) {
	options, err := json.Marshal(job.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal options: %w", err)
	}

	turns := job.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turns: %w", err)
	}

	var stitch types.NullJSONText
	if job.Stitch != nil {
		raw, err := json.Marshal(job.Stitch)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stitch: %w", err)
		}
		stitch = types.NullJSONText{JSONText: raw, Valid: true}
	}

	return &jobRow{
		JobID:         job.JobID,
		HostAvatarID:  job.HostAvatarID,
		GuestAvatarID: job.GuestAvatarID,
		Status:        string(job.Status),
		Options:       types.JSONText(options),
		Turns:         types.JSONText(turnsJSON),
		Stitch:        stitch,
		CreatedBy:     job.CreatedBy,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}, nil
}

func (r *jobRow) toJob() (*domain.Job, error) {
	job := &domain.Job{
		JobID:         r.JobID,
		HostAvatarID:  r.HostAvatarID,
		GuestAvatarID: r.GuestAvatarID,
		Status:        domain.JobStatus(r.Status),
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}

	if len(r.Options) > 0 {
		if err := r.Options.Unmarshal(&job.Options); err != nil {
			return nil, fmt.Errorf("failed to decode options: %w", err)
		}
	}
	if err := r.Turns.Unmarshal(&job.Turns); err != nil {
		return nil, fmt.Errorf("failed to decode turns: %w", err)
	}
	if r.Stitch.Valid {
		job.Stitch = &domain.StitchRecord{}
		if err := r.Stitch.Unmarshal(job.Stitch); err != nil {
			return nil, fmt.Errorf("failed to decode stitch: %w", err)
		}
	}
	return job, nil
}

// PostgresStore is the JobStore backed by the podcast_jobs table.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgresStore(pg *postgresql.Client, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     pg.GetDB(),
		logger: logger,
	}
}

func (s *PostgresStore) Create(ctx context.Context, job *domain.Job) error {
	row, err := newJobRow(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO podcast_jobs (
			job_id, host_avatar_id, guest_avatar_id, status,
			options, turns, stitch, created_by, created_at, updated_at
		) VALUES (
			:job_id, :host_avatar_id, :guest_avatar_id, :status,
			:options, :turns, :stitch, :created_by, :created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrJobExists
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, selectJobColumns+` WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toJob()
}

// Update locks the row with SELECT ... FOR UPDATE so concurrent writers for
// one job serialize at the database.
func (s *PostgresStore) Update(ctx context.Context, jobID string, fn UpdateFunc) (*domain.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var row jobRow
	err = tx.GetContext(ctx, &row, selectJobColumns+` WHERE job_id = $1 FOR UPDATE`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to lock job: %w", err)
	}

	job, err := row.toJob()
	if err != nil {
		return nil, err
	}

	if err := fn(job); err != nil {
		return nil, err
	}

	updated, err := newJobRow(job)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE podcast_jobs
		SET status = :status,
			options = :options,
			turns = :turns,
			stitch = :stitch,
			updated_at = :updated_at
		WHERE job_id = :job_id
	`
	if _, err := tx.NamedExecContext(ctx, query, updated); err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job update: %w", err)
	}

	s.logger.Debug("Job record updated",
		slog.String("job_id", jobID),
		slog.String("status", string(job.Status)),
	)

	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	query := selectJobColumns + ` WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.CreatedBy != "" {
		query += fmt.Sprintf(" AND created_by = $%d", argIdx)
		args = append(args, filter.CreatedBy)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"

	if filter.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.PageSize+1)
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
