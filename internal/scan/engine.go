package scan

import (
	"context"

	"github.com/ip-report-scanner/internal/logging"
	"github.com/ip-report-scanner/internal/provider"
)

// Engine wires the tracker, worker pool, orchestrator and aggregator
// into one unit with a shared lifecycle.
type Engine struct {
	Tracker      *Tracker
	Pool         *Pool
	Orchestrator *Orchestrator
	Aggregator   *Aggregator
}

// Deps holds the engine's external collaborators
type Deps struct {
	Profiles ProfileStore
	Reports  ReportStore
	Jobs     JobStore
	Cache    ProfileCache // optional
	Registry *provider.Registry
	Logger   *logging.Logger
}

// NewEngine assembles a scan engine
func NewEngine(cfg Config, deps Deps) *Engine {
	tracker := NewTracker(cfg, deps.Logger)
	pool := NewPool(cfg, tracker, deps.Registry, deps.Logger)
	aggregator := NewAggregator(deps.Profiles, deps.Reports, deps.Jobs, tracker, deps.Logger)
	orchestrator := NewOrchestrator(deps.Profiles, deps.Reports, deps.Jobs, deps.Cache, tracker, pool, deps.Registry, deps.Logger)

	tracker.SetEnqueue(pool.Enqueue)
	tracker.SetOnTerminal(aggregator.HandleTerminal)

	return &Engine{
		Tracker:      tracker,
		Pool:         pool,
		Orchestrator: orchestrator,
		Aggregator:   aggregator,
	}
}

// Start launches the worker pool
func (e *Engine) Start(ctx context.Context) error {
	return e.Pool.Start(ctx)
}

// Stop drains workers and cancels pending backoff timers
func (e *Engine) Stop() {
	e.Pool.Stop()
	e.Tracker.Stop()
}

// Submit delegates to the orchestrator
func (e *Engine) Submit(ctx context.Context, addresses []string, providers []string) (string, error) {
	return e.Orchestrator.Submit(ctx, addresses, providers)
}

// Snapshot delegates to the aggregator
func (e *Engine) Snapshot(ctx context.Context, reportID string) (*ReportSnapshot, error) {
	return e.Aggregator.Snapshot(ctx, reportID)
}

// ListReports delegates to the aggregator
func (e *Engine) ListReports(ctx context.Context) ([]ReportSummary, error) {
	return e.Aggregator.List(ctx)
}

// Cancel delegates to the aggregator
func (e *Engine) Cancel(ctx context.Context, reportID string) error {
	return e.Aggregator.Cancel(ctx, reportID)
}
