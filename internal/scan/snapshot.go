package scan

import (
	"time"

	"github.com/ip-report-scanner/internal/types"
)

// ReportSnapshot is the read view of a report at a point in time.
// Readers see monotonically improving completeness while scans run.
type ReportSnapshot struct {
	ReportID          string             `json:"reportId"`
	CreatedAt         time.Time          `json:"createdAt"`
	Status            types.ReportStatus `json:"status"`
	TotalProfiles     int                `json:"totalProfiles"`
	MostCommonCountry string             `json:"mostCommonCountry,omitempty"`
	Profiles          []ProfileSnapshot  `json:"ipProfiles"`
}

// ProfileSnapshot is one profile row of a report snapshot
type ProfileSnapshot struct {
	Address     string    `json:"address"`
	CountryCode string    `json:"countryCode,omitempty"`
	IsPrivate   bool      `json:"isPrivate"`
	CreatedAt   time.Time `json:"createdAt"`
	// ScanStatuses is keyed by provider ID. Private profiles and
	// profiles with no applicable providers have none.
	ScanStatuses map[string]JobStatus `json:"scanStatuses,omitempty"`
}

// JobStatus is the per-provider scan state of one profile
type JobStatus struct {
	State        types.JobState   `json:"state"`
	Attempts     int              `json:"attempts"`
	Error        types.ErrorClass `json:"error,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	AbuseScore   *int             `json:"abuseScore,omitempty"`
}

// ReportSummary is the list view of a report
type ReportSummary struct {
	ReportID      string             `json:"reportId"`
	CreatedAt     time.Time          `json:"createdAt"`
	Status        types.ReportStatus `json:"status"`
	TotalProfiles int                `json:"totalProfiles"`
}
