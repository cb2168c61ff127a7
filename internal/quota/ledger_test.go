package quota_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/docvault/internal/quota"
)

func newTestLedger(t *testing.T) *quota.Ledger {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Exec("DROP TABLE IF EXISTS user_quotas").Error)

	ledger := quota.NewLedger(db, nil)
	require.NoError(t, ledger.Migrate())
	return ledger
}

func TestLimitsFor(t *testing.T) {
	free := quota.LimitsFor(quota.TierFree)
	assert.Equal(t, 50, free.MaxDocuments)
	assert.Equal(t, int64(500*1024*1024), free.MaxStorageBytes)
	assert.Equal(t, 1000, free.MaxQueriesPerDay)

	pro := quota.LimitsFor(quota.TierPro)
	assert.Equal(t, 1000, pro.MaxDocuments)
	assert.Equal(t, int64(10*1024*1024*1024), pro.MaxStorageBytes)
	assert.Equal(t, 50000, pro.MaxQueriesPerDay)

	ent := quota.LimitsFor(quota.TierEnterprise)
	assert.Equal(t, -1, ent.MaxDocuments)
	assert.Equal(t, int64(-1), ent.MaxStorageBytes)
	assert.Equal(t, -1, ent.MaxQueriesPerDay)

	t.Run("unknown tier falls back to free", func(t *testing.T) {
		assert.Equal(t, free, quota.LimitsFor(quota.Tier("platinum")))
	})
}

func TestGetOrCreate(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	q, err := ledger.GetOrCreate(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, quota.TierFree, q.Tier)
	assert.Equal(t, 0, q.DocumentCount)
	assert.Equal(t, int64(0), q.TotalStorageBytes)
	assert.Equal(t, 0, q.QueriesToday)

	// Second call returns the same record, not a duplicate.
	again, err := ledger.GetOrCreate(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, q.TenantID, again.TenantID)
}

func TestReserveDocument(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.ReserveDocument(ctx, "tenant-a", 1024))

	usage, err := ledger.Usage(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.DocumentCount)
	assert.Equal(t, int64(1024), usage.TotalStorageBytes)
}

func TestReserveDocumentCountLimit(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, ledger.ReserveDocument(ctx, "tenant-a", 1))
	}

	err := ledger.ReserveDocument(ctx, "tenant-a", 1)
	require.Error(t, err)
	assert.True(t, quota.IsQuotaExceeded(err))

	var qe *quota.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "documents", qe.Resource)
	assert.Equal(t, int64(50), qe.Current)
	assert.Equal(t, int64(50), qe.Limit)
	assert.Contains(t, qe.Guidance, "upgrade")
}

func TestReserveDocumentStorageLimit(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	limit := int64(500 * 1024 * 1024)
	require.NoError(t, ledger.ReserveDocument(ctx, "tenant-a", limit-10))

	err := ledger.ReserveDocument(ctx, "tenant-a", 11)
	require.Error(t, err)

	var qe *quota.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "storage", qe.Resource)

	// Exactly filling the remaining space is allowed.
	require.NoError(t, ledger.ReserveDocument(ctx, "tenant-a", 10))
}

func TestReserveDocumentConcurrent(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	// 60 concurrent uploads against a 50-document limit: exactly 50 succeed.
	const attempts = 60
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = ledger.ReserveDocument(ctx, "tenant-a", 1)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, quota.IsQuotaExceeded(err))
		}
	}
	assert.Equal(t, 50, succeeded)

	usage, err := ledger.Usage(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 50, usage.DocumentCount)
}

func TestDecrementFloorsAtZero(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.DecrementDocumentCount(ctx, "tenant-a", 1024))

	usage, err := ledger.Usage(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.DocumentCount)
	assert.Equal(t, int64(0), usage.TotalStorageBytes)
}

func TestEnterpriseUnlimited(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.UpgradeTier(ctx, "tenant-a", quota.TierEnterprise))

	for i := 0; i < 60; i++ {
		require.NoError(t, ledger.ReserveDocument(ctx, "tenant-a", 1<<30))
	}

	usage, err := ledger.Usage(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 60, usage.DocumentCount)
	assert.True(t, usage.UnlimitedDocuments())
	assert.True(t, usage.UnlimitedStorage())
	assert.True(t, usage.UnlimitedQueries())
}

func TestConsumeQueryLimit(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, ledger.ConsumeQuery(ctx, "tenant-a"))
	}

	err := ledger.ConsumeQuery(ctx, "tenant-a")
	require.Error(t, err)

	var qe *quota.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "queries", qe.Resource)
	assert.Contains(t, qe.Guidance, "midnight UTC")
}

func TestDailyQueryReset(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	restore := quota.SetTimeNow(func() time.Time { return base })
	defer restore()

	for i := 0; i < 5; i++ {
		require.NoError(t, ledger.ConsumeQuery(ctx, "tenant-a"))
	}
	usage, err := ledger.Usage(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 5, usage.QueriesToday)

	// Advance past midnight UTC.
	quota.SetTimeNow(func() time.Time { return base.Add(10 * time.Hour) })

	require.NoError(t, ledger.ConsumeQuery(ctx, "tenant-a"))
	usage, err = ledger.Usage(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.QueriesToday)
}

func TestDailyQueryResetConcurrent(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	restore := quota.SetTimeNow(func() time.Time { return base })
	defer restore()

	for i := 0; i < 7; i++ {
		require.NoError(t, ledger.ConsumeQuery(ctx, "tenant-a"))
	}

	quota.SetTimeNow(func() time.Time { return base.Add(2 * time.Hour) })

	// Concurrent requests across the rollover must reset at most once:
	// the final counter reflects exactly the post-rollover queries.
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ledger.ConsumeQuery(ctx, "tenant-a"))
		}()
	}
	wg.Wait()

	usage, err := ledger.Usage(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, n, usage.QueriesToday)
}

type staticUsageSource struct {
	count int64
	bytes int64
}

func (s staticUsageSource) CountAndSize(ctx context.Context, tenantID string) (int64, int64, error) {
	return s.count, s.bytes, nil
}

func TestRecalculate(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	// Drift the counters away from reality.
	for i := 0; i < 10; i++ {
		require.NoError(t, ledger.ReserveDocument(ctx, "tenant-a", 100))
	}

	require.NoError(t, ledger.Recalculate(ctx, "tenant-a", staticUsageSource{count: 3, bytes: 300}))

	usage, err := ledger.Usage(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 3, usage.DocumentCount)
	assert.Equal(t, int64(300), usage.TotalStorageBytes)
}

func TestUpgradeTier(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.UpgradeTier(ctx, "tenant-a", quota.TierPro))

	usage, err := ledger.Usage(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, quota.TierPro, usage.Tier)
	assert.Equal(t, 1000, usage.MaxDocuments)

	err = ledger.UpgradeTier(ctx, "tenant-a", quota.Tier("gold"))
	require.ErrorIs(t, err, quota.ErrUnknownTier)
}

func TestResetUsage(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.ReserveDocument(ctx, "tenant-a", 2048))
	require.NoError(t, ledger.ResetUsage(ctx, "tenant-a"))

	usage, err := ledger.Usage(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.DocumentCount)
	assert.Equal(t, int64(0), usage.TotalStorageBytes)
}

func TestTenantsDoNotShareCounters(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.ReserveDocument(ctx, "tenant-a", 100))
	require.NoError(t, ledger.ReserveDocument(ctx, "tenant-b", 200))

	a, err := ledger.Usage(ctx, "tenant-a")
	require.NoError(t, err)
	b, err := ledger.Usage(ctx, "tenant-b")
	require.NoError(t, err)

	assert.Equal(t, int64(100), a.TotalStorageBytes)
	assert.Equal(t, int64(200), b.TotalStorageBytes)
}

func TestQuotaExceededErrorMessage(t *testing.T) {
	err := &quota.QuotaExceededError{
		TenantID: "tenant-a",
		Resource: "documents",
		Current:  50,
		Limit:    50,
		Guidance: "Upgrade to Pro.",
	}
	msg := err.Error()
	assert.Contains(t, msg, "documents limit reached (50/50)")
	assert.Contains(t, msg, "Upgrade to Pro.")

	assert.False(t, quota.IsQuotaExceeded(fmt.Errorf("plain error")))
}
