package models

import (
	"sort"
	"time"

	"github.com/ip-report-scanner/internal/types"
)

// Report is the aggregate result of scanning a batch of IP addresses.
// It references profiles by normalized address and jobs by key; its status
// is a pure function of job states and is never stored.
type Report struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	// Addresses as submitted, normalized, duplicates removed
	// preserving first occurrence.
	RequestedAddresses []string `json:"requestedAddresses"`
}

// ComputeStatus derives the report status from its job states.
// Zero jobs (all-private report) counts as complete.
func ComputeStatus(jobs []*ScanJob) types.ReportStatus {
	failed := false
	for _, job := range jobs {
		if !job.State.Terminal() {
			return types.ReportStatusPending
		}
		if job.State == types.JobStateFailed {
			failed = true
		}
	}
	if failed {
		return types.ReportStatusCompleteWithErrors
	}
	return types.ReportStatusComplete
}

// MostCommonCountry returns the most frequent country code among
// non-private profiles with a resolved country. Ties break to the
// lexicographically smallest code. Empty when no country is known.
func MostCommonCountry(profiles []*IPProfile) string {
	freq := make(map[string]int)
	for _, p := range profiles {
		if p.IsPrivate || p.CountryCode == "" {
			continue
		}
		freq[p.CountryCode]++
	}
	if len(freq) == 0 {
		return ""
	}

	codes := make([]string, 0, len(freq))
	for code := range freq {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	best := codes[0]
	for _, code := range codes[1:] {
		if freq[code] > freq[best] {
			best = code
		}
	}
	return best
}
