package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ip-report-scanner/internal/types"
)

// ProviderAbuseIPDB is the provider ID for the AbuseIPDB adapter.
const ProviderAbuseIPDB = "abuseIPDB"

const defaultAbuseIPDBBaseURL = "https://api.abuseipdb.com/api/v2"

// AbuseIPDBAdapter queries the AbuseIPDB v2 check endpoint.
type AbuseIPDBAdapter struct {
	client     *http.Client
	apiKey     string
	baseURL    string
	maxAgeDays int
}

// AbuseIPDBOption configures the adapter
type AbuseIPDBOption func(*AbuseIPDBAdapter)

// WithBaseURL overrides the API base URL (used in tests)
func WithBaseURL(baseURL string) AbuseIPDBOption {
	return func(a *AbuseIPDBAdapter) {
		a.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(client *http.Client) AbuseIPDBOption {
	return func(a *AbuseIPDBAdapter) {
		a.client = client
	}
}

// WithMaxAgeDays sets the report age window sent to the API
func WithMaxAgeDays(days int) AbuseIPDBOption {
	return func(a *AbuseIPDBAdapter) {
		a.maxAgeDays = days
	}
}

// NewAbuseIPDBAdapter creates an AbuseIPDB adapter
func NewAbuseIPDBAdapter(apiKey string, opts ...AbuseIPDBOption) *AbuseIPDBAdapter {
	a := &AbuseIPDBAdapter{
		client:     &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		baseURL:    defaultAbuseIPDBBaseURL,
		maxAgeDays: 90,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the provider identifier
func (a *AbuseIPDBAdapter) ID() string {
	return ProviderAbuseIPDB
}

// abuseIPDBResponse mirrors the check endpoint payload
type abuseIPDBResponse struct {
	Data struct {
		IPAddress            string  `json:"ipAddress"`
		AbuseConfidenceScore int     `json:"abuseConfidenceScore"`
		CountryCode          string  `json:"countryCode"`
		ISP                  string  `json:"isp"`
		Domain               string  `json:"domain"`
		UsageType            string  `json:"usageType"`
		TotalReports         int     `json:"totalReports"`
		LastReportedAt       *string `json:"lastReportedAt"`
	} `json:"data"`
}

// Scan queries AbuseIPDB for one address
func (a *AbuseIPDBAdapter) Scan(ctx context.Context, address string) (*types.ScanResult, error) {
	endpoint := fmt.Sprintf("%s/check", a.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, WrapError(types.ErrorClassUnknown, "failed to build request", err)
	}

	q := url.Values{}
	q.Set("ipAddress", address)
	q.Set("maxAgeInDays", strconv.Itoa(a.maxAgeDays))
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Key", a.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, WrapError(types.ErrorClassTimeout, "abuseipdb call timed out", err)
		}
		return nil, WrapError(types.ErrorClassUnavailable, "abuseipdb request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		// Drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, err
	}

	var payload abuseIPDBResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, WrapError(types.ErrorClassUnknown, "failed to decode abuseipdb response", err)
	}

	result := &types.ScanResult{
		ProviderID:   ProviderAbuseIPDB,
		Address:      address,
		AbuseScore:   payload.Data.AbuseConfidenceScore,
		CountryCode:  payload.Data.CountryCode,
		ISP:          payload.Data.ISP,
		Domain:       payload.Data.Domain,
		UsageType:    payload.Data.UsageType,
		TotalReports: payload.Data.TotalReports,
	}

	if payload.Data.LastReportedAt != nil && *payload.Data.LastReportedAt != "" {
		if ts, err := time.Parse(time.RFC3339, *payload.Data.LastReportedAt); err == nil {
			result.LastReportedAt = &ts
		}
	}

	return result, nil
}

// classifyStatus maps HTTP statuses to failure classifications
func classifyStatus(status int) *Error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return NewError(types.ErrorClassRateLimited, "abuseipdb rate limit exceeded")
	case status == http.StatusUnprocessableEntity:
		return NewError(types.ErrorClassInvalidAddress, "abuseipdb rejected the address")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(types.ErrorClassUnavailable, fmt.Sprintf("abuseipdb authentication failed (status %d)", status))
	case status >= 500:
		return NewError(types.ErrorClassUnavailable, fmt.Sprintf("abuseipdb server error (status %d)", status))
	default:
		return NewError(types.ErrorClassUnknown, fmt.Sprintf("abuseipdb unexpected status %d", status))
	}
}
