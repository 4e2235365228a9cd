package scan

import (
	"sort"
	"sync"
	"time"

	"github.com/ip-report-scanner/internal/logging"
	"github.com/ip-report-scanner/internal/models"
	"github.com/ip-report-scanner/internal/types"
)

// Tracker owns the state machine for every scan job. All transitions go
// through its lock; a job leaves QUEUED/RETRY_WAIT only via Claim, so at
// most one worker holds a job at a time. Terminal writes are idempotent.
type Tracker struct {
	mu        sync.Mutex
	cfg       Config
	jobs      map[models.JobKey]*models.ScanJob
	byReport  map[string][]models.JobKey
	cancelled map[string]bool
	timers    map[models.JobKey]*time.Timer

	// enqueue re-offers a job key to the worker pool once its backoff
	// delay has elapsed. Set before any job is added.
	enqueue func(models.JobKey)

	// onTerminal is invoked exactly once per job, outside the lock,
	// when the job reaches COMPLETED or FAILED.
	onTerminal func(*models.ScanJob)

	logger *logging.Logger
}

// NewTracker creates a job tracker
func NewTracker(cfg Config, logger *logging.Logger) *Tracker {
	return &Tracker{
		cfg:       cfg.withDefaults(),
		jobs:      make(map[models.JobKey]*models.ScanJob),
		byReport:  make(map[string][]models.JobKey),
		cancelled: make(map[string]bool),
		timers:    make(map[models.JobKey]*time.Timer),
		logger:    logger.WithField("component", "scan.tracker"),
	}
}

// SetEnqueue wires the ready-queue sink used for retry re-entry
func (t *Tracker) SetEnqueue(fn func(models.JobKey)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enqueue = fn
}

// SetOnTerminal wires the terminal-event consumer
func (t *Tracker) SetOnTerminal(fn func(*models.ScanJob)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTerminal = fn
}

// Add registers queued jobs. The whole batch is rejected if any triple
// already exists: one job per (report, address, provider), ever.
func (t *Tracker) Add(jobs []*models.ScanJob) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, job := range jobs {
		if _, exists := t.jobs[job.Key]; exists {
			return &types.ServiceError{
				Code:    types.ErrCodeDuplicateJob,
				Message: "scan job already exists for this report, address and provider",
				Details: map[string]interface{}{
					"reportId":   job.Key.ReportID,
					"address":    job.Key.Address,
					"providerId": job.Key.ProviderID,
				},
			}
		}
	}

	for _, job := range jobs {
		t.jobs[job.Key] = job
		t.byReport[job.Key.ReportID] = append(t.byReport[job.Key.ReportID], job.Key)
	}

	return nil
}

// Claim atomically transitions a ready job to RUNNING and increments its
// attempt counter. It returns false when the job is not claimable: already
// running, terminal, cancelled, or still inside its backoff window.
func (t *Tracker) Claim(key models.JobKey) (*models.ScanJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, exists := t.jobs[key]
	if !exists || t.cancelled[key.ReportID] {
		return nil, false
	}

	switch job.State {
	case types.JobStateQueued:
	case types.JobStateRetryWait:
		if time.Now().Before(job.NotBefore) {
			return nil, false
		}
	default:
		return nil, false
	}

	job.State = types.JobStateRunning
	job.Attempt++
	job.UpdatedAt = time.Now()

	return job.Clone(), true
}

// Complete transitions a RUNNING job to COMPLETED with its result.
// Duplicate terminal writes are no-ops, so a late result arriving after
// cancellation or a duplicate delivery is discarded.
func (t *Tracker) Complete(key models.JobKey, result *types.ScanResult) {
	t.mu.Lock()

	job, exists := t.jobs[key]
	if !exists || job.State.Terminal() {
		t.mu.Unlock()
		return
	}
	if job.State != types.JobStateRunning {
		t.logger.WithFields(map[string]interface{}{
			"reportId": key.ReportID,
			"address":  key.Address,
			"provider": key.ProviderID,
			"state":    job.State,
		}).Warn("Completion for a job that is not running, ignoring")
		t.mu.Unlock()
		return
	}

	job.State = types.JobStateCompleted
	job.Result = result
	job.LastError = ""
	job.LastErrorMessage = ""
	job.UpdatedAt = time.Now()

	clone := job.Clone()
	sink := t.onTerminal
	t.mu.Unlock()

	if sink != nil {
		sink(clone)
	}
}

// Fail records a failed attempt for a RUNNING job. Retry-eligible
// classifications below the attempt budget move the job to RETRY_WAIT and
// schedule re-entry; everything else is terminal FAILED. Duplicate
// terminal writes are no-ops.
func (t *Tracker) Fail(key models.JobKey, class types.ErrorClass, message string) {
	t.mu.Lock()

	job, exists := t.jobs[key]
	if !exists || job.State.Terminal() {
		t.mu.Unlock()
		return
	}

	job.LastError = class
	job.LastErrorMessage = message
	job.UpdatedAt = time.Now()

	if class.Retryable() && job.Attempt < t.cfg.MaxAttempts && !t.cancelled[key.ReportID] {
		delay := backoffDelay(t.cfg.BackoffBase, t.cfg.BackoffCap, t.cfg.JitterFactor, job.Attempt)
		job.State = types.JobStateRetryWait
		job.NotBefore = time.Now().Add(delay)

		// The backoff wait happens off-worker: the job sits in RETRY_WAIT
		// and only re-enters the ready queue when the timer fires.
		t.timers[key] = time.AfterFunc(delay, func() {
			t.requeue(key)
		})

		t.logger.WithFields(map[string]interface{}{
			"reportId": key.ReportID,
			"address":  key.Address,
			"provider": key.ProviderID,
			"attempt":  job.Attempt,
			"class":    class,
			"delay":    delay.String(),
		}).Warn("Scan attempt failed, retrying with backoff")

		t.mu.Unlock()
		return
	}

	job.State = types.JobStateFailed
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}

	clone := job.Clone()
	sink := t.onTerminal
	t.mu.Unlock()

	t.logger.WithFields(map[string]interface{}{
		"reportId": key.ReportID,
		"address":  key.Address,
		"provider": key.ProviderID,
		"attempt":  clone.Attempt,
		"class":    class,
	}).Error("Scan job failed terminally")

	if sink != nil {
		sink(clone)
	}
}

// requeue re-offers a job whose backoff delay elapsed
func (t *Tracker) requeue(key models.JobKey) {
	t.mu.Lock()
	delete(t.timers, key)

	job, exists := t.jobs[key]
	if !exists || job.State != types.JobStateRetryWait || t.cancelled[key.ReportID] {
		t.mu.Unlock()
		return
	}
	enqueue := t.enqueue
	t.mu.Unlock()

	if enqueue != nil {
		enqueue(key)
	}
}

// CancelReport fails every non-terminal job of a report with the
// cancelled classification and blocks further retries. Results of
// in-flight calls arriving later are dropped by the idempotent
// terminal-write rule.
func (t *Tracker) CancelReport(reportID string) {
	t.mu.Lock()

	t.cancelled[reportID] = true

	var terminated []*models.ScanJob
	for _, key := range t.byReport[reportID] {
		job := t.jobs[key]
		if job.State.Terminal() {
			continue
		}

		if timer, ok := t.timers[key]; ok {
			timer.Stop()
			delete(t.timers, key)
		}

		job.State = types.JobStateFailed
		job.LastError = types.ErrorClassCancelled
		job.LastErrorMessage = "report cancelled"
		job.UpdatedAt = time.Now()
		terminated = append(terminated, job.Clone())
	}

	sink := t.onTerminal
	t.mu.Unlock()

	if sink != nil {
		for _, job := range terminated {
			sink(job)
		}
	}

	t.logger.WithFields(map[string]interface{}{
		"reportId":  reportID,
		"cancelled": len(terminated),
	}).Info("Report cancelled")
}

// Job returns a copy of one job
func (t *Tracker) Job(key models.JobKey) (*models.ScanJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, exists := t.jobs[key]
	if !exists {
		return nil, false
	}
	return job.Clone(), true
}

// JobsForReport returns copies of a report's jobs in deterministic order
func (t *Tracker) JobsForReport(reportID string) []*models.ScanJob {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := t.byReport[reportID]
	jobs := make([]*models.ScanJob, 0, len(keys))
	for _, key := range keys {
		jobs = append(jobs, t.jobs[key].Clone())
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Key.Address != jobs[j].Key.Address {
			return jobs[i].Key.Address < jobs[j].Key.Address
		}
		return jobs[i].Key.ProviderID < jobs[j].Key.ProviderID
	})

	return jobs
}

// Stop cancels all pending backoff timers
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}
