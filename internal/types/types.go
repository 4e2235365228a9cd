// Package types provides common type definitions for the IP report scanner system.
package types

import "time"

// JobState represents the lifecycle state of a scan job
type JobState string

const (
	// JobStateQueued represents a job waiting to be claimed by a worker
	JobStateQueued JobState = "queued"
	// JobStateRunning represents a job currently held by a worker
	JobStateRunning JobState = "running"
	// JobStateRetryWait represents a job waiting out its backoff delay
	JobStateRetryWait JobState = "retry_wait"
	// JobStateCompleted represents a job that produced a provider result
	JobStateCompleted JobState = "completed"
	// JobStateFailed represents a job that exhausted retries or hit a non-retryable error
	JobStateFailed JobState = "failed"
)

// Terminal reports whether no further transition can occur from this state.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// ErrorClass classifies a provider-side failure
type ErrorClass string

const (
	// ErrorClassRateLimited represents a provider quota/throttling rejection
	ErrorClassRateLimited ErrorClass = "rate_limited"
	// ErrorClassTimeout represents a call that exceeded the per-call deadline
	ErrorClassTimeout ErrorClass = "timeout"
	// ErrorClassInvalidAddress represents an address the provider rejected as malformed
	ErrorClassInvalidAddress ErrorClass = "invalid_address"
	// ErrorClassUnavailable represents a transient provider outage
	ErrorClassUnavailable ErrorClass = "unavailable"
	// ErrorClassUnknown represents an unclassified provider failure
	ErrorClassUnknown ErrorClass = "unknown"
	// ErrorClassCancelled represents a job terminated by report cancellation
	ErrorClassCancelled ErrorClass = "cancelled"
)

// Retryable reports whether a failure with this classification may be retried.
// Malformed addresses and cancellations are never retried.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrorClassInvalidAddress, ErrorClassCancelled:
		return false
	default:
		return true
	}
}

// ReportStatus represents the overall completeness of a report.
// It is always derived from job states at read time, never stored.
type ReportStatus string

const (
	// ReportStatusPending represents a report with at least one non-terminal job
	ReportStatusPending ReportStatus = "PENDING"
	// ReportStatusComplete represents a report whose jobs all completed successfully
	ReportStatusComplete ReportStatus = "COMPLETE"
	// ReportStatusCompleteWithErrors represents a finished report with at least one failed job
	ReportStatusCompleteWithErrors ReportStatus = "COMPLETE_WITH_ERRORS"
)

// ScanResult represents a provider response in common format across all providers
type ScanResult struct {
	ProviderID     string     `json:"providerId"`
	Address        string     `json:"address"`
	AbuseScore     int        `json:"abuseScore"`             // Confidence of abuse, 0-100
	CountryCode    string     `json:"countryCode,omitempty"`  // ISO 3166-1 alpha-2
	ISP            string     `json:"isp,omitempty"`
	Domain         string     `json:"domain,omitempty"`
	UsageType      string     `json:"usageType,omitempty"`    // e.g. "Data Center/Web Hosting/Transit"
	TotalReports   int        `json:"totalReports"`
	LastReportedAt *time.Time `json:"lastReportedAt,omitempty"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Common service error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeReportNotFound     = "REPORT_NOT_FOUND"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeDuplicateJob       = "DUPLICATE_JOB"
	ErrCodeProviderNotFound   = "PROVIDER_NOT_FOUND"
	ErrCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
)
