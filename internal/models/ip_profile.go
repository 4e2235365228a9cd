// Package models provides the core entities of the IP report scanner.
package models

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/ip-report-scanner/internal/types"
)

// IPProfile holds deduplicated metadata for one IP address.
// Identity is the normalized address. Address and IsPrivate are immutable
// once set; CountryCode is write-once and stays empty for private addresses.
type IPProfile struct {
	Address     string    `json:"address"`
	IsPrivate   bool      `json:"isPrivate"`
	CountryCode string    `json:"countryCode,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewIPProfile builds a profile from a raw address literal, normalizing it
// and classifying private ranges via static rules. No provider call is made.
func NewIPProfile(raw string, now time.Time) (*IPProfile, error) {
	normalized, isPrivate, err := NormalizeAddress(raw)
	if err != nil {
		return nil, err
	}

	return &IPProfile{
		Address:   normalized,
		IsPrivate: isPrivate,
		CreatedAt: now,
	}, nil
}

// NormalizeAddress validates a raw IPv4/IPv6 literal and returns its
// canonical form plus the private-range classification.
func NormalizeAddress(raw string) (string, bool, error) {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", false, &types.ServiceError{
			Code:    types.ErrCodeInvalidInput,
			Message: fmt.Sprintf("invalid IP address: %q", raw),
			Details: map[string]interface{}{"address": raw},
		}
	}

	// IPv4-mapped IPv6 collapses to its IPv4 form so both spellings
	// dedupe to the same profile.
	addr = addr.Unmap()

	return addr.String(), isPrivateAddr(addr), nil
}

// isPrivateAddr classifies addresses that must never be sent to a provider:
// RFC 1918 / RFC 4193 private ranges, loopback, link-local and unspecified.
func isPrivateAddr(addr netip.Addr) bool {
	return addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
