package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ip-report-scanner/internal/models"
	"github.com/ip-report-scanner/internal/types"
)

// JobRepository handles scan job persistence. Jobs are written queued at
// fan-out and updated once with their terminal outcome.
type JobRepository struct {
	db *PostgresDB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *PostgresDB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateJob stores a freshly queued job
func (r *JobRepository) CreateJob(ctx context.Context, job *models.ScanJob) error {
	query := `
		INSERT INTO scan_jobs (
			report_id, address, provider_id, state, attempt,
			last_error, last_error_message, result, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	resultJSON, err := marshalResult(job)
	if err != nil {
		return err
	}

	if _, err := r.db.Pool().Exec(ctx, query,
		job.Key.ReportID,
		job.Key.Address,
		job.Key.ProviderID,
		job.State,
		job.Attempt,
		job.LastError,
		job.LastErrorMessage,
		resultJSON,
		job.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create scan job: %w", err)
	}

	return nil
}

// UpdateJob records a job's current state. Rows already terminal are
// left untouched, mirroring the tracker's idempotent terminal writes.
func (r *JobRepository) UpdateJob(ctx context.Context, job *models.ScanJob) error {
	query := `
		UPDATE scan_jobs
		SET state = $4, attempt = $5, last_error = $6, last_error_message = $7,
			result = $8, updated_at = $9
		WHERE report_id = $1 AND address = $2 AND provider_id = $3
			AND state NOT IN ($10, $11)
	`

	resultJSON, err := marshalResult(job)
	if err != nil {
		return err
	}

	if _, err := r.db.Pool().Exec(ctx, query,
		job.Key.ReportID,
		job.Key.Address,
		job.Key.ProviderID,
		job.State,
		job.Attempt,
		job.LastError,
		job.LastErrorMessage,
		resultJSON,
		job.UpdatedAt,
		types.JobStateCompleted,
		types.JobStateFailed,
	); err != nil {
		return fmt.Errorf("failed to update scan job: %w", err)
	}

	return nil
}

// ListByReport retrieves a report's jobs in deterministic order
func (r *JobRepository) ListByReport(ctx context.Context, reportID string) ([]*models.ScanJob, error) {
	query := `
		SELECT report_id, address, provider_id, state, attempt,
			   last_error, last_error_message, result, updated_at
		FROM scan_jobs
		WHERE report_id = $1
		ORDER BY address, provider_id
	`

	rows, err := r.db.Pool().Query(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ScanJob
	for rows.Next() {
		var job models.ScanJob
		var resultJSON []byte

		if err := rows.Scan(
			&job.Key.ReportID,
			&job.Key.Address,
			&job.Key.ProviderID,
			&job.State,
			&job.Attempt,
			&job.LastError,
			&job.LastErrorMessage,
			&resultJSON,
			&job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}

		if len(resultJSON) > 0 {
			var result types.ScanResult
			if err := json.Unmarshal(resultJSON, &result); err != nil {
				return nil, fmt.Errorf("failed to decode job result: %w", err)
			}
			job.Result = &result
		}

		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scan jobs: %w", err)
	}

	return jobs, nil
}

func marshalResult(job *models.ScanJob) ([]byte, error) {
	if job.Result == nil {
		return nil, nil
	}
	data, err := json.Marshal(job.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job result: %w", err)
	}
	return data, nil
}
