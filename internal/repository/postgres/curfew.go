package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/santiagoj/homeguard/internal/models"
	"github.com/santiagoj/homeguard/internal/repository"
)

type curfewJobRepository struct {
	db *sql.DB
}

// NewCurfewJobRepository creates a new curfew job repository
func NewCurfewJobRepository(db *sql.DB) repository.CurfewJobRepository {
	return &curfewJobRepository{db: db}
}

func (r *curfewJobRepository) Create(ctx context.Context, job *models.CurfewJob) (*models.CurfewJob, error) {
	query := `
		INSERT INTO curfew_jobs (owner_key, pairing_code, display_name, deadline, home_lat, home_lon, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.CurfewJobPending
	}

	err := r.db.QueryRowContext(ctx, query,
		job.OwnerKey,
		job.PairingCode,
		job.DisplayName,
		job.Deadline,
		job.HomeLat,
		job.HomeLon,
		job.Status,
		job.Attempts,
		job.CreatedAt,
		job.UpdatedAt,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create curfew job: %w", err)
	}

	return job, nil
}

func (r *curfewJobRepository) GetByID(ctx context.Context, id int64) (*models.CurfewJob, error) {
	query := `
		SELECT id, owner_key, pairing_code, display_name, deadline, home_lat, home_lon, status, attempts, created_at, updated_at
		FROM curfew_jobs
		WHERE id = $1`

	job := &models.CurfewJob{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.OwnerKey,
		&job.PairingCode,
		&job.DisplayName,
		&job.Deadline,
		&job.HomeLat,
		&job.HomeLon,
		&job.Status,
		&job.Attempts,
		&job.CreatedAt,
		&job.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get curfew job: %w", err)
	}

	return job, nil
}

func (r *curfewJobRepository) GetDue(ctx context.Context, ownerKey string, now time.Time) ([]*models.CurfewJob, error) {
	query := `
		SELECT id, owner_key, pairing_code, display_name, deadline, home_lat, home_lon, status, attempts, created_at, updated_at
		FROM curfew_jobs
		WHERE owner_key = $1 AND status = $2 AND deadline <= $3
		ORDER BY deadline ASC`

	rows, err := r.db.QueryContext(ctx, query, ownerKey, models.CurfewJobPending, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due curfew jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *curfewJobRepository) ListByOwner(ctx context.Context, ownerKey string) ([]*models.CurfewJob, error) {
	query := `
		SELECT id, owner_key, pairing_code, display_name, deadline, home_lat, home_lon, status, attempts, created_at, updated_at
		FROM curfew_jobs
		WHERE owner_key = $1
		ORDER BY deadline ASC`

	rows, err := r.db.QueryContext(ctx, query, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query curfew jobs by owner: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *curfewJobRepository) MarkDone(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, models.CurfewJobDone)
}

func (r *curfewJobRepository) MarkFailed(ctx context.Context, id int64, attempts int, final bool) error {
	// A non-final failure keeps the job pending so the next poll retries it.
	status := models.CurfewJobPending
	if final {
		status = models.CurfewJobFailed
	}

	query := `
		UPDATE curfew_jobs
		SET status = $2, attempts = $3, updated_at = $4
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, status, attempts, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark curfew job failed: %w", err)
	}

	return nil
}

func (r *curfewJobRepository) Cancel(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, models.CurfewJobCancelled)
}

func (r *curfewJobRepository) setStatus(ctx context.Context, id int64, status models.CurfewJobStatus) error {
	query := `
		UPDATE curfew_jobs
		SET status = $2, updated_at = $3
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update curfew job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("curfew job %d not found", id)
	}

	return nil
}

func scanJobs(rows *sql.Rows) ([]*models.CurfewJob, error) {
	var jobs []*models.CurfewJob
	for rows.Next() {
		job := &models.CurfewJob{}
		if err := rows.Scan(
			&job.ID,
			&job.OwnerKey,
			&job.PairingCode,
			&job.DisplayName,
			&job.Deadline,
			&job.HomeLat,
			&job.HomeLon,
			&job.Status,
			&job.Attempts,
			&job.CreatedAt,
			&job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan curfew job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}
