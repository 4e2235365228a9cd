package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ip-report-scanner/internal/models"
	"github.com/ip-report-scanner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreProfiles(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("get or create is idempotent", func(t *testing.T) {
		first, created, err := store.GetOrCreate(ctx, &models.IPProfile{Address: "8.8.8.8", CreatedAt: now})
		require.NoError(t, err)
		assert.True(t, created)

		second, created, err := store.GetOrCreate(ctx, &models.IPProfile{Address: "8.8.8.8", CreatedAt: now.Add(time.Hour)})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.CreatedAt, second.CreatedAt, "second create must not overwrite the original")
	})

	t.Run("get missing profile", func(t *testing.T) {
		_, err := store.Get(ctx, "9.9.9.9")
		require.Error(t, err)

		var serviceErr *types.ServiceError
		require.True(t, errors.As(err, &serviceErr))
		assert.Equal(t, types.ErrCodeProfileNotFound, serviceErr.Code)
	})

	t.Run("set country is write-once", func(t *testing.T) {
		require.NoError(t, store.SetCountry(ctx, "8.8.8.8", "US"))
		require.NoError(t, store.SetCountry(ctx, "8.8.8.8", "GB"))

		profile, err := store.Get(ctx, "8.8.8.8")
		require.NoError(t, err)
		assert.Equal(t, "US", profile.CountryCode)
	})

	t.Run("get many preserves request order and skips misses", func(t *testing.T) {
		_, _, err := store.GetOrCreate(ctx, &models.IPProfile{Address: "1.1.1.1", CreatedAt: now})
		require.NoError(t, err)

		profiles, err := store.GetMany(ctx, []string{"1.1.1.1", "unknown", "8.8.8.8"})
		require.NoError(t, err)
		require.Len(t, profiles, 2)
		assert.Equal(t, "1.1.1.1", profiles[0].Address)
		assert.Equal(t, "8.8.8.8", profiles[1].Address)
	})
}

func TestMemoryStoreReports(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &models.Report{ID: "r1", CreatedAt: time.Now(), RequestedAddresses: []string{"1.1.1.1"}}
	second := &models.Report{ID: "r2", CreatedAt: time.Now(), RequestedAddresses: []string{"2.2.2.2", "3.3.3.3"}}

	require.NoError(t, store.CreateReport(ctx, first))
	require.NoError(t, store.CreateReport(ctx, second))
	require.Error(t, store.CreateReport(ctx, first), "duplicate report ID must be rejected")

	got, err := store.GetReport(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, []string{"2.2.2.2", "3.3.3.3"}, got.RequestedAddresses)

	_, err = store.GetReport(ctx, "missing")
	var serviceErr *types.ServiceError
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, types.ErrCodeReportNotFound, serviceErr.Code)

	reports, err := store.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "r2", reports[0].ID, "most recent first")
	assert.Equal(t, "r1", reports[1].ID)
}

func TestMemoryStoreJobs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	job := models.NewScanJob("r1", "8.8.8.8", "abuseIPDB", now)
	require.NoError(t, store.CreateJob(ctx, job))

	t.Run("duplicate triple rejected", func(t *testing.T) {
		err := store.CreateJob(ctx, models.NewScanJob("r1", "8.8.8.8", "abuseIPDB", now))
		require.Error(t, err)

		var serviceErr *types.ServiceError
		require.True(t, errors.As(err, &serviceErr))
		assert.Equal(t, types.ErrCodeDuplicateJob, serviceErr.Code)
	})

	t.Run("terminal rows are never overwritten", func(t *testing.T) {
		completed := job.Clone()
		completed.State = types.JobStateCompleted
		completed.Result = &types.ScanResult{AbuseScore: 42}
		require.NoError(t, store.UpdateJob(ctx, completed))

		stale := job.Clone()
		stale.State = types.JobStateFailed
		stale.LastError = types.ErrorClassUnknown
		require.NoError(t, store.UpdateJob(ctx, stale))

		jobs, err := store.ListByReport(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, types.JobStateCompleted, jobs[0].State)
		require.NotNil(t, jobs[0].Result)
		assert.Equal(t, 42, jobs[0].Result.AbuseScore)
	})

	t.Run("update of a missing job fails", func(t *testing.T) {
		err := store.UpdateJob(ctx, models.NewScanJob("r9", "1.1.1.1", "abuseIPDB", now))
		require.Error(t, err)
	})

	t.Run("list is ordered by address then provider", func(t *testing.T) {
		require.NoError(t, store.CreateJob(ctx, models.NewScanJob("r1", "1.1.1.1", "zeta", now)))
		require.NoError(t, store.CreateJob(ctx, models.NewScanJob("r1", "1.1.1.1", "alpha", now)))

		jobs, err := store.ListByReport(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		assert.Equal(t, "1.1.1.1", jobs[0].Key.Address)
		assert.Equal(t, "alpha", jobs[0].Key.ProviderID)
		assert.Equal(t, "zeta", jobs[1].Key.ProviderID)
		assert.Equal(t, "8.8.8.8", jobs[2].Key.Address)
	})
}
