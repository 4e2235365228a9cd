package provider

import (
	"context"
	"sync"

	"github.com/ip-report-scanner/internal/types"
)

// MockAdapter is a scripted adapter for tests. Outcomes queued per address
// are consumed in order; the last outcome repeats once the script runs out.
type MockAdapter struct {
	id string

	mu      sync.Mutex
	scripts map[string][]mockOutcome
	calls   map[string]int
}

type mockOutcome struct {
	result *types.ScanResult
	err    error
}

// NewMockAdapter creates a mock adapter with the given provider ID
func NewMockAdapter(id string) *MockAdapter {
	return &MockAdapter{
		id:      id,
		scripts: make(map[string][]mockOutcome),
		calls:   make(map[string]int),
	}
}

// ID returns the configured provider ID
func (m *MockAdapter) ID() string {
	return m.id
}

// QueueResult appends a successful outcome for an address
func (m *MockAdapter) QueueResult(address string, result *types.ScanResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[address] = append(m.scripts[address], mockOutcome{result: result})
}

// QueueError appends a classified failure outcome for an address
func (m *MockAdapter) QueueError(address string, class types.ErrorClass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[address] = append(m.scripts[address], mockOutcome{
		err: NewError(class, "scripted failure"),
	})
}

// Calls returns how many times Scan was invoked for an address
func (m *MockAdapter) Calls(address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[address]
}

// Scan pops the next scripted outcome for the address. Addresses without
// a script get a generic completed result.
func (m *MockAdapter) Scan(ctx context.Context, address string) (*types.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[address]++

	script := m.scripts[address]
	if len(script) == 0 {
		return &types.ScanResult{
			ProviderID: m.id,
			Address:    address,
		}, nil
	}

	outcome := script[0]
	if len(script) > 1 {
		m.scripts[address] = script[1:]
	}

	if outcome.err != nil {
		return nil, outcome.err
	}
	res := *outcome.result
	return &res, nil
}
