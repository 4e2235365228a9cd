package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ip-report-scanner/internal/logging"
	"github.com/ip-report-scanner/internal/models"
	"github.com/ip-report-scanner/internal/provider"
	"github.com/ip-report-scanner/internal/types"
)

// Orchestrator expands a report request into profiles and scan jobs.
// Submit is synchronous only up to job creation; scanning runs on the
// shared pool.
type Orchestrator struct {
	profiles ProfileStore
	reports  ReportStore
	jobs     JobStore
	cache    ProfileCache // optional, may be nil
	tracker  *Tracker
	pool     *Pool
	registry *provider.Registry
	logger   *logging.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(
	profiles ProfileStore,
	reports ReportStore,
	jobs JobStore,
	cache ProfileCache,
	tracker *Tracker,
	pool *Pool,
	registry *provider.Registry,
	logger *logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		profiles: profiles,
		reports:  reports,
		jobs:     jobs,
		cache:    cache,
		tracker:  tracker,
		pool:     pool,
		registry: registry,
		logger:   logger.WithField("component", "scan.orchestrator"),
	}
}

// Submit validates and normalizes a batch of addresses, resolves their
// profiles, creates the report and fans out one queued job per
// (non-private profile, provider) pair. It returns the report ID without
// waiting for any scan.
func (o *Orchestrator) Submit(ctx context.Context, addresses []string, providers []string) (string, error) {
	if len(addresses) == 0 {
		return "", &types.ServiceError{
			Code:    types.ErrCodeInvalidInput,
			Message: "address list is empty",
		}
	}

	providerIDs, err := o.resolveProviders(providers)
	if err != nil {
		return "", err
	}

	// Validate and normalize the whole batch before touching storage:
	// one malformed address rejects the entire request.
	normalized, err := normalizeBatch(addresses)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()

	profiles := make([]*models.IPProfile, 0, len(normalized))
	for _, addr := range normalized {
		profile, err := o.resolveProfile(ctx, addr, now)
		if err != nil {
			return "", err
		}
		profiles = append(profiles, profile)
	}

	report := &models.Report{
		ID:                 uuid.New().String(),
		CreatedAt:          now,
		RequestedAddresses: addressesOf(profiles),
	}

	if err := o.reports.CreateReport(ctx, report); err != nil {
		return "", storageUnavailable("failed to create report", err)
	}

	jobs := make([]*models.ScanJob, 0, len(profiles)*len(providerIDs))
	for _, profile := range profiles {
		// Private addresses are never scanned externally; the profile
		// stands alone in the report with no jobs.
		if profile.IsPrivate {
			continue
		}
		for _, providerID := range providerIDs {
			jobs = append(jobs, models.NewScanJob(report.ID, profile.Address, providerID, now))
		}
	}

	for _, job := range jobs {
		if err := o.jobs.CreateJob(ctx, job); err != nil {
			return "", storageUnavailable("failed to persist scan job", err)
		}
	}

	if err := o.tracker.Add(jobs); err != nil {
		return "", err
	}

	for _, job := range jobs {
		o.pool.Enqueue(job.Key)
	}

	o.logger.WithFields(map[string]interface{}{
		"reportId":  report.ID,
		"addresses": len(profiles),
		"jobs":      len(jobs),
		"providers": providerIDs,
	}).Info("Report submitted")

	return report.ID, nil
}

// resolveProviders validates the requested provider set against the
// registry; an empty request means every registered provider.
func (o *Orchestrator) resolveProviders(providers []string) ([]string, error) {
	if len(providers) == 0 {
		ids := o.registry.IDs()
		if len(ids) == 0 {
			return nil, &types.ServiceError{
				Code:    types.ErrCodeProviderNotFound,
				Message: "no providers registered",
			}
		}
		return ids, nil
	}

	seen := make(map[string]bool, len(providers))
	result := make([]string, 0, len(providers))
	for _, id := range providers {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := o.registry.Get(id); !ok {
			return nil, &types.ServiceError{
				Code:    types.ErrCodeInvalidInput,
				Message: fmt.Sprintf("unknown provider: %s", id),
				Details: map[string]interface{}{"providerId": id},
			}
		}
		result = append(result, id)
	}

	return result, nil
}

// resolveProfile returns the profile for a normalized address, going
// through the cache when one is configured. Profile creation is
// idempotent; private classification comes from static range rules.
func (o *Orchestrator) resolveProfile(ctx context.Context, address string, now time.Time) (*models.IPProfile, error) {
	if o.cache != nil {
		if profile, ok, err := o.cache.Get(ctx, address); err == nil && ok {
			return profile, nil
		} else if err != nil {
			o.logger.WithError(err).WithField("address", address).Warn("Profile cache read failed")
		}
	}

	_, isPrivate, err := models.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	profile, created, err := o.profiles.GetOrCreate(ctx, &models.IPProfile{
		Address:   address,
		IsPrivate: isPrivate,
		CreatedAt: now,
	})
	if err != nil {
		return nil, storageUnavailable("failed to resolve profile", err)
	}

	if o.cache != nil {
		if err := o.cache.Put(ctx, profile); err != nil {
			o.logger.WithError(err).WithField("address", address).Warn("Profile cache write failed")
		}
	}

	if created {
		o.logger.WithFields(map[string]interface{}{
			"address":   profile.Address,
			"isPrivate": profile.IsPrivate,
		}).Debug("Profile created")
	}

	return profile, nil
}

// normalizeBatch validates every address and dedupes the normalized
// forms preserving first-occurrence order.
func normalizeBatch(addresses []string) ([]string, error) {
	seen := make(map[string]bool, len(addresses))
	result := make([]string, 0, len(addresses))

	for _, raw := range addresses {
		normalized, _, err := models.NormalizeAddress(raw)
		if err != nil {
			return nil, err
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		result = append(result, normalized)
	}

	return result, nil
}

func addressesOf(profiles []*models.IPProfile) []string {
	addrs := make([]string, len(profiles))
	for i, p := range profiles {
		addrs[i] = p.Address
	}
	return addrs
}

// storageUnavailable wraps a store failure in the fatal classification
// surfaced to callers.
func storageUnavailable(message string, err error) error {
	return &types.ServiceError{
		Code:    types.ErrCodeStorageUnavailable,
		Message: fmt.Sprintf("%s: %v", message, err),
	}
}
