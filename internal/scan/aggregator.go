package scan

import (
	"context"
	"time"

	"github.com/ip-report-scanner/internal/logging"
	"github.com/ip-report-scanner/internal/models"
	"github.com/ip-report-scanner/internal/types"
)

// Aggregator consumes terminal job outcomes and exposes read access to
// reports at whatever completeness the terminal jobs represent. Report
// status and statistics are recomputed on every read; nothing derived is
// stored.
type Aggregator struct {
	profiles ProfileStore
	reports  ReportStore
	jobs     JobStore
	tracker  *Tracker
	logger   *logging.Logger

	// persistTimeout bounds the background writes triggered by a
	// terminal event.
	persistTimeout time.Duration
}

// NewAggregator creates an aggregator
func NewAggregator(
	profiles ProfileStore,
	reports ReportStore,
	jobs JobStore,
	tracker *Tracker,
	logger *logging.Logger,
) *Aggregator {
	return &Aggregator{
		profiles:       profiles,
		reports:        reports,
		jobs:           jobs,
		tracker:        tracker,
		logger:         logger.WithField("component", "scan.aggregator"),
		persistTimeout: 5 * time.Second,
	}
}

// HandleTerminal persists a terminal job outcome and fills the profile's
// country write-once from a completed result. Append-only: a prior
// terminal outcome is never overwritten upstream (the tracker guarantees
// at most one terminal transition per job).
func (a *Aggregator) HandleTerminal(job *models.ScanJob) {
	ctx, cancel := context.WithTimeout(context.Background(), a.persistTimeout)
	defer cancel()

	if err := a.jobs.UpdateJob(ctx, job); err != nil {
		a.logger.WithError(err).WithFields(map[string]interface{}{
			"reportId": job.Key.ReportID,
			"address":  job.Key.Address,
			"provider": job.Key.ProviderID,
		}).Error("Failed to persist terminal job outcome")
	}

	if job.State == types.JobStateCompleted && job.Result != nil && job.Result.CountryCode != "" {
		if err := a.profiles.SetCountry(ctx, job.Key.Address, job.Result.CountryCode); err != nil {
			a.logger.WithError(err).WithField("address", job.Key.Address).Error("Failed to set profile country")
		}
	}
}

// Snapshot builds the current view of a report: status derived from job
// states, per-profile scan statuses and the derived statistics.
func (a *Aggregator) Snapshot(ctx context.Context, reportID string) (*ReportSnapshot, error) {
	report, err := a.reports.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}

	jobs := a.jobsForReport(ctx, reportID)

	profiles, err := a.profiles.GetMany(ctx, report.RequestedAddresses)
	if err != nil {
		return nil, storageUnavailable("failed to load profiles", err)
	}

	statuses := make(map[string]map[string]JobStatus, len(profiles))
	for _, job := range jobs {
		byProvider, ok := statuses[job.Key.Address]
		if !ok {
			byProvider = make(map[string]JobStatus)
			statuses[job.Key.Address] = byProvider
		}

		status := JobStatus{
			State:    job.State,
			Attempts: job.Attempt,
		}
		if job.LastError != "" {
			status.Error = job.LastError
			status.ErrorMessage = job.LastErrorMessage
		}
		if job.Result != nil {
			score := job.Result.AbuseScore
			status.AbuseScore = &score
		}
		byProvider[job.Key.ProviderID] = status
	}

	profileSnapshots := make([]ProfileSnapshot, len(profiles))
	for i, profile := range profiles {
		profileSnapshots[i] = ProfileSnapshot{
			Address:      profile.Address,
			CountryCode:  profile.CountryCode,
			IsPrivate:    profile.IsPrivate,
			CreatedAt:    profile.CreatedAt,
			ScanStatuses: statuses[profile.Address],
		}
	}

	return &ReportSnapshot{
		ReportID:          report.ID,
		CreatedAt:         report.CreatedAt,
		Status:            models.ComputeStatus(jobs),
		TotalProfiles:     len(profiles),
		MostCommonCountry: models.MostCommonCountry(profiles),
		Profiles:          profileSnapshots,
	}, nil
}

// List returns summaries of all reports, most recent first
func (a *Aggregator) List(ctx context.Context) ([]ReportSummary, error) {
	reports, err := a.reports.ListReports(ctx)
	if err != nil {
		return nil, storageUnavailable("failed to list reports", err)
	}

	summaries := make([]ReportSummary, len(reports))
	for i, report := range reports {
		jobs := a.jobsForReport(ctx, report.ID)
		summaries[i] = ReportSummary{
			ReportID:      report.ID,
			CreatedAt:     report.CreatedAt,
			Status:        models.ComputeStatus(jobs),
			TotalProfiles: len(report.RequestedAddresses),
		}
	}

	return summaries, nil
}

// Cancel fails all non-terminal jobs of a report and blocks retries
func (a *Aggregator) Cancel(ctx context.Context, reportID string) error {
	if _, err := a.reports.GetReport(ctx, reportID); err != nil {
		return err
	}

	a.tracker.CancelReport(reportID)
	return nil
}

// jobsForReport prefers the tracker's live view and falls back to the
// persisted outcomes for reports from a previous process lifetime.
func (a *Aggregator) jobsForReport(ctx context.Context, reportID string) []*models.ScanJob {
	jobs := a.tracker.JobsForReport(reportID)
	if len(jobs) > 0 {
		return jobs
	}

	stored, err := a.jobs.ListByReport(ctx, reportID)
	if err != nil {
		a.logger.WithError(err).WithField("reportId", reportID).Error("Failed to load persisted jobs")
		return nil
	}
	return stored
}
