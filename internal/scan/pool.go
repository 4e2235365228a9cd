package scan

import (
	"context"
	"fmt"
	"sync"

	"github.com/ip-report-scanner/internal/logging"
	"github.com/ip-report-scanner/internal/models"
	"github.com/ip-report-scanner/internal/provider"
	"github.com/ip-report-scanner/internal/types"
)

// Pool is the fixed-size worker pool shared across all reports. Workers
// pull ready job keys, claim them through the tracker and execute the
// provider call under the per-call timeout. Pool size bounds outbound
// load regardless of how many reports are in flight.
type Pool struct {
	cfg      Config
	tracker  *Tracker
	registry *provider.Registry
	logger   *logging.Logger

	ready    chan models.JobKey
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
	mu       sync.Mutex
}

// NewPool creates a worker pool
func NewPool(cfg Config, tracker *Tracker, registry *provider.Registry, logger *logging.Logger) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:      cfg,
		tracker:  tracker,
		registry: registry,
		logger:   logger.WithField("component", "scan.pool"),
		ready:    make(chan models.JobKey, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the workers. Blocks until Stop or context cancellation
// only inside the workers themselves; Start returns immediately.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("pool already started")
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	p.logger.WithField("workers", p.cfg.Workers).Info("Worker pool started")
	return nil
}

// Stop shuts the pool down and waits for in-flight calls to finish
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

// Enqueue offers a job key for claiming. Blocks only when the ready
// queue is at capacity; never performs network work.
func (p *Pool) Enqueue(key models.JobKey) {
	select {
	case p.ready <- key:
	case <-p.done:
	}
}

// worker is one execution unit of the pool
func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case key := <-p.ready:
			p.execute(ctx, key)
		}
	}
}

// execute claims and runs a single job
func (p *Pool) execute(ctx context.Context, key models.JobKey) {
	job, ok := p.tracker.Claim(key)
	if !ok {
		// Cancelled, already terminal, or claimed elsewhere.
		return
	}

	adapter, ok := p.registry.Get(key.ProviderID)
	if !ok {
		p.tracker.Fail(key, types.ErrorClassUnavailable, fmt.Sprintf("provider not registered: %s", key.ProviderID))
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	result, err := adapter.Scan(callCtx, key.Address)
	cancel()

	if err != nil {
		class, message := provider.Classify(err)
		p.tracker.Fail(key, class, message)
		return
	}

	p.logger.WithFields(map[string]interface{}{
		"reportId": key.ReportID,
		"address":  key.Address,
		"provider": key.ProviderID,
		"attempt":  job.Attempt,
	}).Debug("Scan completed")

	p.tracker.Complete(key, result)
}
