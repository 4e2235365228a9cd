package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ip-report-scanner/internal/models"
	"github.com/ip-report-scanner/internal/types"
)

// MemoryStore is an in-process implementation of the profile, report and
// job stores. It backs tests and single-node deployments without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*models.IPProfile
	reports  map[string]*models.Report
	jobs     map[models.JobKey]*models.ScanJob
	order    []string // report IDs in creation order
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*models.IPProfile),
		reports:  make(map[string]*models.Report),
		jobs:     make(map[models.JobKey]*models.ScanJob),
	}
}

// GetOrCreate resolves a profile idempotently by normalized address
func (s *MemoryStore) GetOrCreate(ctx context.Context, profile *models.IPProfile) (*models.IPProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[profile.Address]; ok {
		cp := *existing
		return &cp, false, nil
	}

	stored := *profile
	s.profiles[profile.Address] = &stored
	cp := stored
	return &cp, true, nil
}

// Get retrieves a profile by normalized address
func (s *MemoryStore) Get(ctx context.Context, address string) (*models.IPProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[address]
	if !ok {
		return nil, &types.ServiceError{
			Code:    types.ErrCodeProfileNotFound,
			Message: fmt.Sprintf("profile not found: %s", address),
		}
	}
	cp := *profile
	return &cp, nil
}

// GetMany retrieves profiles preserving the order of the address list
func (s *MemoryStore) GetMany(ctx context.Context, addresses []string) ([]*models.IPProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.IPProfile, 0, len(addresses))
	for _, address := range addresses {
		if profile, ok := s.profiles[address]; ok {
			cp := *profile
			result = append(result, &cp)
		}
	}
	return result, nil
}

// SetCountry fills a profile's country write-once
func (s *MemoryStore) SetCountry(ctx context.Context, address, countryCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[address]
	if !ok {
		return &types.ServiceError{
			Code:    types.ErrCodeProfileNotFound,
			Message: fmt.Sprintf("profile not found: %s", address),
		}
	}
	if profile.CountryCode == "" {
		profile.CountryCode = countryCode
	}
	return nil
}

// CreateReport stores a report
func (s *MemoryStore) CreateReport(ctx context.Context, report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reports[report.ID]; exists {
		return fmt.Errorf("report already exists: %s", report.ID)
	}

	cp := *report
	cp.RequestedAddresses = append([]string(nil), report.RequestedAddresses...)
	s.reports[report.ID] = &cp
	s.order = append(s.order, report.ID)
	return nil
}

// GetReport retrieves a report by ID
func (s *MemoryStore) GetReport(ctx context.Context, id string) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[id]
	if !ok {
		return nil, &types.ServiceError{
			Code:    types.ErrCodeReportNotFound,
			Message: fmt.Sprintf("report not found: %s", id),
		}
	}

	cp := *report
	cp.RequestedAddresses = append([]string(nil), report.RequestedAddresses...)
	return &cp, nil
}

// ListReports retrieves all reports, most recent first
func (s *MemoryStore) ListReports(ctx context.Context) ([]*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Report, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		report := s.reports[s.order[i]]
		cp := *report
		cp.RequestedAddresses = append([]string(nil), report.RequestedAddresses...)
		result = append(result, &cp)
	}
	return result, nil
}

// CreateJob stores a freshly queued job
func (s *MemoryStore) CreateJob(ctx context.Context, job *models.ScanJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Key]; exists {
		return &types.ServiceError{
			Code:    types.ErrCodeDuplicateJob,
			Message: "scan job already exists",
		}
	}

	s.jobs[job.Key] = job.Clone()
	return nil
}

// UpdateJob records a job's state; terminal rows are never overwritten
func (s *MemoryStore) UpdateJob(ctx context.Context, job *models.ScanJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[job.Key]
	if !ok {
		return fmt.Errorf("scan job not found: %+v", job.Key)
	}
	if existing.State.Terminal() {
		return nil
	}

	s.jobs[job.Key] = job.Clone()
	return nil
}

// ListByReport retrieves a report's jobs in deterministic order
func (s *MemoryStore) ListByReport(ctx context.Context, reportID string) ([]*models.ScanJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []*models.ScanJob
	for key, job := range s.jobs {
		if key.ReportID == reportID {
			jobs = append(jobs, job.Clone())
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Key.Address != jobs[j].Key.Address {
			return jobs[i].Key.Address < jobs[j].Key.Address
		}
		return jobs[i].Key.ProviderID < jobs[j].Key.ProviderID
	})

	return jobs, nil
}
