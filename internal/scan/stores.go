package scan

import (
	"context"

	"github.com/ip-report-scanner/internal/models"
)

// ProfileStore holds deduplicated per-IP metadata keyed by normalized address.
type ProfileStore interface {
	// GetOrCreate resolves a profile idempotently. The bool reports
	// whether the profile was created by this call.
	GetOrCreate(ctx context.Context, profile *models.IPProfile) (*models.IPProfile, bool, error)

	// Get returns the profile for a normalized address.
	Get(ctx context.Context, address string) (*models.IPProfile, error)

	// GetMany returns profiles for the given addresses, preserving order.
	GetMany(ctx context.Context, addresses []string) ([]*models.IPProfile, error)

	// SetCountry fills the country code write-once. Setting an already
	// resolved country is a no-op.
	SetCountry(ctx context.Context, address, countryCode string) error
}

// ReportStore durably holds report entities and their address associations.
type ReportStore interface {
	CreateReport(ctx context.Context, report *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListReports(ctx context.Context) ([]*models.Report, error)
}

// JobStore durably holds scan job records. Jobs are created queued and
// updated once with their terminal outcome.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.ScanJob) error
	UpdateJob(ctx context.Context, job *models.ScanJob) error
	ListByReport(ctx context.Context, reportID string) ([]*models.ScanJob, error)
}

// ProfileCache is an optional read-through cache in front of the
// profile store, consulted during submit dedup.
type ProfileCache interface {
	Get(ctx context.Context, address string) (*models.IPProfile, bool, error)
	Put(ctx context.Context, profile *models.IPProfile) error
}
