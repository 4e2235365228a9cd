package models

import (
	"time"

	"github.com/ip-report-scanner/internal/types"
)

// JobKey identifies a scan job. Exactly one job exists per triple.
type JobKey struct {
	ReportID   string `json:"reportId"`
	Address    string `json:"address"`
	ProviderID string `json:"providerId"`
}

// ScanJob represents one (report, address, provider) scan attempt lifecycle.
// Mutated only by the tracker; terminal states are immutable.
type ScanJob struct {
	Key              JobKey            `json:"key"`
	State            types.JobState    `json:"state"`
	Attempt          int               `json:"attempt"`
	LastError        types.ErrorClass  `json:"lastError,omitempty"`
	LastErrorMessage string            `json:"lastErrorMessage,omitempty"`
	Result           *types.ScanResult `json:"result,omitempty"`
	NotBefore        time.Time         `json:"notBefore,omitempty"` // Earliest re-claim time while in retry_wait
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// NewScanJob creates a queued job for the given triple.
func NewScanJob(reportID, address, providerID string, now time.Time) *ScanJob {
	return &ScanJob{
		Key: JobKey{
			ReportID:   reportID,
			Address:    address,
			ProviderID: providerID,
		},
		State:     types.JobStateQueued,
		UpdatedAt: now,
	}
}

// Clone returns a copy safe to hand outside the tracker's lock.
func (j *ScanJob) Clone() *ScanJob {
	cp := *j
	if j.Result != nil {
		res := *j.Result
		cp.Result = &res
	}
	return &cp
}
