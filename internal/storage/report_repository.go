package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ip-report-scanner/internal/models"
	"github.com/ip-report-scanner/internal/types"
	"github.com/jackc/pgx/v5"
)

// ReportRepository handles report persistence. The reports table carries
// no status column: status is derived from job states at read time.
type ReportRepository struct {
	db *PostgresDB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *PostgresDB) *ReportRepository {
	return &ReportRepository{db: db}
}

// CreateReport stores a report and its ordered address associations
func (r *ReportRepository) CreateReport(ctx context.Context, report *models.Report) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO reports (id, created_at) VALUES ($1, $2)`,
		report.ID, report.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}

	for i, address := range report.RequestedAddresses {
		if _, err := tx.Exec(ctx,
			`INSERT INTO report_addresses (report_id, position, address) VALUES ($1, $2, $3)`,
			report.ID, i, address,
		); err != nil {
			return fmt.Errorf("failed to associate address: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

// GetReport retrieves a report with its addresses in submission order
func (r *ReportRepository) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, created_at FROM reports WHERE id = $1`, id,
	).Scan(&report.ID, &report.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &types.ServiceError{
				Code:    types.ErrCodeReportNotFound,
				Message: fmt.Sprintf("report not found: %s", id),
			}
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	rows, err := r.db.Pool().Query(ctx,
		`SELECT address FROM report_addresses WHERE report_id = $1 ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query report addresses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, fmt.Errorf("failed to scan report address: %w", err)
		}
		report.RequestedAddresses = append(report.RequestedAddresses, address)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read report addresses: %w", err)
	}

	return &report, nil
}

// ListReports retrieves all reports, most recent first
func (r *ReportRepository) ListReports(ctx context.Context) ([]*models.Report, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT r.id, r.created_at, array_agg(ra.address ORDER BY ra.position)
		 FROM reports r
		 LEFT JOIN report_addresses ra ON ra.report_id = r.id
		 GROUP BY r.id, r.created_at
		 ORDER BY r.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		var report models.Report
		var addresses []*string
		if err := rows.Scan(&report.ID, &report.CreatedAt, &addresses); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		for _, addr := range addresses {
			if addr != nil {
				report.RequestedAddresses = append(report.RequestedAddresses, *addr)
			}
		}
		reports = append(reports, &report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}

	return reports, nil
}
