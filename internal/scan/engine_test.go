package scan

import (
	"context"
	"testing"
	"time"

	"github.com/ip-report-scanner/internal/models"
	"github.com/ip-report-scanner/internal/provider"
	"github.com/ip-report-scanner/internal/storage"
	"github.com/ip-report-scanner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, adapters ...provider.Adapter) (*Engine, *storage.MemoryStore) {
	t.Helper()

	registry := provider.NewRegistry()
	for _, adapter := range adapters {
		require.NoError(t, registry.Register(adapter))
	}

	store := storage.NewMemoryStore()
	engine := NewEngine(Config{
		Workers:      4,
		MaxAttempts:  3,
		BackoffBase:  time.Millisecond,
		BackoffCap:   5 * time.Millisecond,
		JitterFactor: 0,
		CallTimeout:  time.Second,
	}, Deps{
		Profiles: store,
		Reports:  store,
		Jobs:     store,
		Registry: registry,
		Logger:   testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.Start(ctx))
	t.Cleanup(func() {
		cancel()
		engine.Stop()
	})

	return engine, store
}

// waitForTerminal polls the snapshot until the report leaves PENDING.
func waitForTerminal(t *testing.T, engine *Engine, reportID string) *ReportSnapshot {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snapshot, err := engine.Snapshot(context.Background(), reportID)
		require.NoError(t, err)
		if snapshot.Status != types.ReportStatusPending {
			return snapshot
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("report %s never left PENDING", reportID)
	return nil
}

func TestEngineSubmitDeduplicatesAndSkipsPrivate(t *testing.T) {
	mock := provider.NewMockAdapter("abuseIPDB")
	mock.QueueResult("8.8.8.8", &types.ScanResult{
		ProviderID:  "abuseIPDB",
		Address:     "8.8.8.8",
		AbuseScore:  3,
		CountryCode: "US",
	})

	engine, _ := newTestEngine(t, mock)

	reportID, err := engine.Submit(context.Background(), []string{"8.8.8.8", "8.8.8.8", "10.0.0.5"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, reportID)

	snapshot := waitForTerminal(t, engine, reportID)

	assert.Equal(t, types.ReportStatusComplete, snapshot.Status)
	assert.Equal(t, 2, snapshot.TotalProfiles, "duplicates collapse to one profile")
	assert.Equal(t, "US", snapshot.MostCommonCountry)
	require.Len(t, snapshot.Profiles, 2)

	public := snapshot.Profiles[0]
	assert.Equal(t, "8.8.8.8", public.Address)
	assert.Equal(t, "US", public.CountryCode)
	require.Contains(t, public.ScanStatuses, "abuseIPDB")
	status := public.ScanStatuses["abuseIPDB"]
	assert.Equal(t, types.JobStateCompleted, status.State)
	require.NotNil(t, status.AbuseScore)
	assert.Equal(t, 3, *status.AbuseScore)

	private := snapshot.Profiles[1]
	assert.Equal(t, "10.0.0.5", private.Address)
	assert.True(t, private.IsPrivate)
	assert.Empty(t, private.ScanStatuses, "private addresses get no scan jobs")
	assert.Empty(t, private.CountryCode)

	// The duplicate never triggered a second provider call.
	assert.Equal(t, 1, mock.Calls("8.8.8.8"))
	assert.Equal(t, 0, mock.Calls("10.0.0.5"))
}

func TestEngineSubmitValidation(t *testing.T) {
	mock := provider.NewMockAdapter("abuseIPDB")
	engine, store := newTestEngine(t, mock)

	t.Run("empty batch", func(t *testing.T) {
		_, err := engine.Submit(context.Background(), nil, nil)
		require.Error(t, err)
		serviceErr, ok := err.(*types.ServiceError)
		require.True(t, ok)
		assert.Equal(t, types.ErrCodeInvalidInput, serviceErr.Code)
	})

	t.Run("one malformed address rejects the whole batch", func(t *testing.T) {
		_, err := engine.Submit(context.Background(), []string{"8.8.8.8", "not-an-ip"}, nil)
		require.Error(t, err)
		serviceErr, ok := err.(*types.ServiceError)
		require.True(t, ok)
		assert.Equal(t, types.ErrCodeInvalidInput, serviceErr.Code)

		reports, err := store.ListReports(context.Background())
		require.NoError(t, err)
		assert.Empty(t, reports, "no report may exist for a rejected batch")
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := engine.Submit(context.Background(), []string{"8.8.8.8"}, []string{"nosuch"})
		require.Error(t, err)
		serviceErr, ok := err.(*types.ServiceError)
		require.True(t, ok)
		assert.Equal(t, types.ErrCodeInvalidInput, serviceErr.Code)
	})
}

func TestEngineSubmitNoProvidersRegistered(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Submit(context.Background(), []string{"8.8.8.8"}, nil)
	require.Error(t, err)
	serviceErr, ok := err.(*types.ServiceError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeProviderNotFound, serviceErr.Code)
}

func TestEngineRetriesUntilSuccess(t *testing.T) {
	mock := provider.NewMockAdapter("abuseIPDB")
	mock.QueueError("9.9.9.9", types.ErrorClassRateLimited)
	mock.QueueError("9.9.9.9", types.ErrorClassUnavailable)
	mock.QueueResult("9.9.9.9", &types.ScanResult{
		ProviderID:  "abuseIPDB",
		Address:     "9.9.9.9",
		AbuseScore:  1,
		CountryCode: "CH",
	})

	engine, _ := newTestEngine(t, mock)

	reportID, err := engine.Submit(context.Background(), []string{"9.9.9.9"}, nil)
	require.NoError(t, err)

	snapshot := waitForTerminal(t, engine, reportID)

	assert.Equal(t, types.ReportStatusComplete, snapshot.Status)
	status := snapshot.Profiles[0].ScanStatuses["abuseIPDB"]
	assert.Equal(t, types.JobStateCompleted, status.State)
	assert.Equal(t, 3, status.Attempts)
	assert.Equal(t, 3, mock.Calls("9.9.9.9"))
}

func TestEngineExhaustedRetriesFailTheJob(t *testing.T) {
	mock := provider.NewMockAdapter("abuseIPDB")
	mock.QueueError("9.9.9.9", types.ErrorClassRateLimited)

	engine, _ := newTestEngine(t, mock)

	reportID, err := engine.Submit(context.Background(), []string{"9.9.9.9", "8.8.8.8"}, nil)
	require.NoError(t, err)

	snapshot := waitForTerminal(t, engine, reportID)

	assert.Equal(t, types.ReportStatusCompleteWithErrors, snapshot.Status)

	var failed, completed int
	for _, profile := range snapshot.Profiles {
		status := profile.ScanStatuses["abuseIPDB"]
		switch status.State {
		case types.JobStateFailed:
			failed++
			assert.Equal(t, types.ErrorClassRateLimited, status.Error)
			assert.Equal(t, 3, status.Attempts, "attempt budget fully spent")
		case types.JobStateCompleted:
			completed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, completed, "other jobs are unaffected by a failing peer")
}

func TestEngineNonRetryableFailsImmediately(t *testing.T) {
	mock := provider.NewMockAdapter("abuseIPDB")
	mock.QueueError("9.9.9.9", types.ErrorClassInvalidAddress)

	engine, _ := newTestEngine(t, mock)

	reportID, err := engine.Submit(context.Background(), []string{"9.9.9.9"}, nil)
	require.NoError(t, err)

	snapshot := waitForTerminal(t, engine, reportID)

	assert.Equal(t, types.ReportStatusCompleteWithErrors, snapshot.Status)
	status := snapshot.Profiles[0].ScanStatuses["abuseIPDB"]
	assert.Equal(t, types.JobStateFailed, status.State)
	assert.Equal(t, 1, status.Attempts)
	assert.Equal(t, 1, mock.Calls("9.9.9.9"))
}

func TestEngineMostCommonCountryTieBreak(t *testing.T) {
	mock := provider.NewMockAdapter("abuseIPDB")
	mock.QueueResult("1.1.1.1", &types.ScanResult{ProviderID: "abuseIPDB", Address: "1.1.1.1", CountryCode: "US"})
	mock.QueueResult("2.2.2.2", &types.ScanResult{ProviderID: "abuseIPDB", Address: "2.2.2.2", CountryCode: "US"})
	mock.QueueResult("3.3.3.3", &types.ScanResult{ProviderID: "abuseIPDB", Address: "3.3.3.3", CountryCode: "GB"})
	mock.QueueResult("4.4.4.4", &types.ScanResult{ProviderID: "abuseIPDB", Address: "4.4.4.4", CountryCode: "GB"})

	engine, _ := newTestEngine(t, mock)

	reportID, err := engine.Submit(context.Background(), []string{"1.1.1.1", "2.2.2.2", "3.3.3.3", "4.4.4.4"}, nil)
	require.NoError(t, err)

	snapshot := waitForTerminal(t, engine, reportID)
	assert.Equal(t, "GB", snapshot.MostCommonCountry, "ties break to the lexicographically smallest code")
}

func TestEngineAllPrivateReportIsComplete(t *testing.T) {
	mock := provider.NewMockAdapter("abuseIPDB")
	engine, _ := newTestEngine(t, mock)

	reportID, err := engine.Submit(context.Background(), []string{"10.0.0.1", "192.168.1.1"}, nil)
	require.NoError(t, err)

	// No jobs means the report is complete from the first read.
	snapshot, err := engine.Snapshot(context.Background(), reportID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusComplete, snapshot.Status)
	assert.Equal(t, 2, snapshot.TotalProfiles)
	assert.Empty(t, snapshot.MostCommonCountry)
}

func TestEngineSnapshotWhilePending(t *testing.T) {
	mock := provider.NewMockAdapter("abuseIPDB")
	// An hour-long backoff parks the job in retry_wait for the whole test.
	mock.QueueError("9.9.9.9", types.ErrorClassUnavailable)

	registry := provider.NewRegistry()
	require.NoError(t, registry.Register(mock))

	store := storage.NewMemoryStore()
	engine := NewEngine(Config{
		Workers:     2,
		MaxAttempts: 3,
		BackoffBase: time.Hour,
		BackoffCap:  time.Hour,
		CallTimeout: time.Second,
	}, Deps{
		Profiles: store,
		Reports:  store,
		Jobs:     store,
		Registry: registry,
		Logger:   testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.Start(ctx))
	t.Cleanup(func() {
		cancel()
		engine.Stop()
	})

	reportID, err := engine.Submit(context.Background(), []string{"9.9.9.9"}, nil)
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for {
		snapshot, err := engine.Snapshot(context.Background(), reportID)
		require.NoError(t, err)
		require.Equal(t, types.ReportStatusPending, snapshot.Status, "a report in backoff stays readable and pending")

		status := snapshot.Profiles[0].ScanStatuses["abuseIPDB"]
		if status.State == types.JobStateRetryWait {
			assert.Equal(t, types.ErrorClassUnavailable, status.Error)
			assert.Equal(t, 1, status.Attempts)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never reached retry_wait")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngineCancel(t *testing.T) {
	t.Run("unknown report", func(t *testing.T) {
		engine, _ := newTestEngine(t, provider.NewMockAdapter("abuseIPDB"))

		err := engine.Cancel(context.Background(), "missing")
		require.Error(t, err)
		serviceErr, ok := err.(*types.ServiceError)
		require.True(t, ok)
		assert.Equal(t, types.ErrCodeReportNotFound, serviceErr.Code)
	})

	t.Run("cancels jobs waiting out a backoff", func(t *testing.T) {
		mock := provider.NewMockAdapter("abuseIPDB")
		mock.QueueError("9.9.9.9", types.ErrorClassUnavailable)

		registry := provider.NewRegistry()
		require.NoError(t, registry.Register(mock))

		store := storage.NewMemoryStore()
		engine := NewEngine(Config{
			Workers:     2,
			MaxAttempts: 3,
			BackoffBase: time.Hour,
			BackoffCap:  time.Hour,
			CallTimeout: time.Second,
		}, Deps{
			Profiles: store,
			Reports:  store,
			Jobs:     store,
			Registry: registry,
			Logger:   testLogger(),
		})

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, engine.Start(ctx))
		t.Cleanup(func() {
			cancel()
			engine.Stop()
		})

		reportID, err := engine.Submit(context.Background(), []string{"9.9.9.9"}, nil)
		require.NoError(t, err)

		// Wait for the job to park in retry_wait, then cancel.
		deadline := time.Now().Add(5 * time.Second)
		for {
			snapshot, err := engine.Snapshot(context.Background(), reportID)
			require.NoError(t, err)
			if snapshot.Profiles[0].ScanStatuses["abuseIPDB"].State == types.JobStateRetryWait {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("job never reached retry_wait")
			}
			time.Sleep(5 * time.Millisecond)
		}

		require.NoError(t, engine.Cancel(context.Background(), reportID))

		snapshot, err := engine.Snapshot(context.Background(), reportID)
		require.NoError(t, err)
		assert.Equal(t, types.ReportStatusCompleteWithErrors, snapshot.Status)
		status := snapshot.Profiles[0].ScanStatuses["abuseIPDB"]
		assert.Equal(t, types.JobStateFailed, status.State)
		assert.Equal(t, types.ErrorClassCancelled, status.Error)

		// Only the first attempt ever reached the provider.
		assert.Equal(t, 1, mock.Calls("9.9.9.9"))
	})
}

func TestEngineListReports(t *testing.T) {
	mock := provider.NewMockAdapter("abuseIPDB")
	engine, _ := newTestEngine(t, mock)

	first, err := engine.Submit(context.Background(), []string{"1.1.1.1"}, nil)
	require.NoError(t, err)
	second, err := engine.Submit(context.Background(), []string{"2.2.2.2"}, nil)
	require.NoError(t, err)

	waitForTerminal(t, engine, first)
	waitForTerminal(t, engine, second)

	summaries, err := engine.ListReports(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, second, summaries[0].ReportID, "most recent first")
	assert.Equal(t, first, summaries[1].ReportID)
	for _, summary := range summaries {
		assert.Equal(t, types.ReportStatusComplete, summary.Status)
		assert.Equal(t, 1, summary.TotalProfiles)
	}
}

func TestEnginePersistsTerminalOutcomes(t *testing.T) {
	mock := provider.NewMockAdapter("abuseIPDB")
	mock.QueueResult("8.8.8.8", &types.ScanResult{
		ProviderID:  "abuseIPDB",
		Address:     "8.8.8.8",
		AbuseScore:  5,
		CountryCode: "US",
	})

	engine, store := newTestEngine(t, mock)

	reportID, err := engine.Submit(context.Background(), []string{"8.8.8.8"}, nil)
	require.NoError(t, err)
	waitForTerminal(t, engine, reportID)

	// The terminal outcome and the resolved country reached the store.
	// Persistence trails the tracker transition, so poll briefly.
	var jobs []*models.ScanJob
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		jobs, err = store.ListByReport(context.Background(), reportID)
		require.NoError(t, err)
		if len(jobs) == 1 && jobs[0].State == types.JobStateCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("terminal outcome never persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, jobs[0].Result)
	assert.Equal(t, 5, jobs[0].Result.AbuseScore)

	for {
		profile, err := store.Get(context.Background(), "8.8.8.8")
		require.NoError(t, err)
		if profile.CountryCode == "US" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("profile country never resolved, got %q", profile.CountryCode)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
