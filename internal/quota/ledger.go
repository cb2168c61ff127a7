package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// UsageSource supplies the authoritative document counts for Recalculate.
// Implemented by the document repository.
type UsageSource interface {
	// CountAndSize returns the number of non-deleted documents owned by the
	// tenant and their total byte size.
	CountAndSize(ctx context.Context, tenantID string) (count int64, totalBytes int64, err error)
}

// Ledger manages per-tenant quota records.
//
// All check-then-mutate sequences run under a per-tenant mutex. The locks
// live in a sync.Map so tenants never serialize against each other.
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger

	locks sync.Map // tenantID -> *sync.Mutex
}

// NewLedger creates a Ledger backed by the given database.
func NewLedger(db *gorm.DB, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: db, logger: logger}
}

// Migrate creates the user_quotas table.
func (l *Ledger) Migrate() error {
	return l.db.AutoMigrate(&UserQuota{})
}

// lockTenant acquires the tenant's mutex and returns its unlock func.
func (l *Ledger) lockTenant(tenantID string) func() {
	muAny, _ := l.locks.LoadOrStore(tenantID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// GetOrCreate returns the tenant's quota record, creating a zeroed free-tier
// record on first access. Idempotent.
func (l *Ledger) GetOrCreate(ctx context.Context, tenantID string) (*UserQuota, error) {
	unlock := l.lockTenant(tenantID)
	defer unlock()
	return l.getOrCreateLocked(ctx, tenantID)
}

// getOrCreateLocked loads or creates the record. Caller holds the tenant lock.
func (l *Ledger) getOrCreateLocked(ctx context.Context, tenantID string) (*UserQuota, error) {
	var q UserQuota
	err := l.db.WithContext(ctx).First(&q, "tenant_id = ?", tenantID).Error
	if err == nil {
		return &q, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("loading quota for tenant %s: %w", tenantID, err)
	}

	q = UserQuota{
		TenantID:       tenantID,
		Tier:           TierFree,
		LastQueryReset: dateOf(timeNow()),
	}
	if err := l.db.WithContext(ctx).Create(&q).Error; err != nil {
		return nil, fmt.Errorf("creating quota for tenant %s: %w", tenantID, err)
	}

	l.logger.Info("created quota record",
		zap.String("tenant_id", tenantID),
		zap.String("tier", string(q.Tier)),
	)
	return &q, nil
}

// CheckDocumentQuota fails with QuotaExceededError if adding a document of
// incomingBytes would exceed the tenant's document count or storage limits.
// A negative tier limit means unlimited.
func (l *Ledger) CheckDocumentQuota(ctx context.Context, tenantID string, incomingBytes int64) error {
	unlock := l.lockTenant(tenantID)
	defer unlock()

	q, err := l.getOrCreateLocked(ctx, tenantID)
	if err != nil {
		return err
	}
	return l.checkDocumentLocked(q, incomingBytes)
}

// checkDocumentLocked applies the document and storage checks.
// Caller holds the tenant lock.
func (l *Ledger) checkDocumentLocked(q *UserQuota, incomingBytes int64) error {
	limits := LimitsFor(q.Tier)

	if limits.MaxDocuments > 0 && q.DocumentCount >= limits.MaxDocuments {
		return &QuotaExceededError{
			TenantID: q.TenantID,
			Resource: "documents",
			Current:  int64(q.DocumentCount),
			Limit:    int64(limits.MaxDocuments),
			Guidance: "Delete old documents or upgrade your plan. " + limits.UpgradeBenefits,
		}
	}

	if limits.MaxStorageBytes > 0 && q.TotalStorageBytes+incomingBytes > limits.MaxStorageBytes {
		return &QuotaExceededError{
			TenantID: q.TenantID,
			Resource: "storage",
			Current:  q.TotalStorageBytes,
			Limit:    limits.MaxStorageBytes,
			Guidance: "Delete old documents or upgrade your plan. " + limits.UpgradeBenefits,
		}
	}

	return nil
}

// ReserveDocument performs the document quota check and, on success,
// increments the document count and storage usage as one serialized unit.
// This is the only safe gate for concurrent uploads: two requests for the
// same tenant cannot both pass a check that only one can satisfy.
func (l *Ledger) ReserveDocument(ctx context.Context, tenantID string, bytes int64) error {
	unlock := l.lockTenant(tenantID)
	defer unlock()

	q, err := l.getOrCreateLocked(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := l.checkDocumentLocked(q, bytes); err != nil {
		return err
	}

	q.DocumentCount++
	q.TotalStorageBytes += bytes
	if err := l.db.WithContext(ctx).Save(q).Error; err != nil {
		return fmt.Errorf("reserving document quota for tenant %s: %w", tenantID, err)
	}
	return nil
}

// IncrementDocumentCount records a new document without re-checking limits.
// Use ReserveDocument for the check-and-increment path.
func (l *Ledger) IncrementDocumentCount(ctx context.Context, tenantID string, bytes int64) error {
	unlock := l.lockTenant(tenantID)
	defer unlock()

	q, err := l.getOrCreateLocked(ctx, tenantID)
	if err != nil {
		return err
	}
	q.DocumentCount++
	q.TotalStorageBytes += bytes
	if err := l.db.WithContext(ctx).Save(q).Error; err != nil {
		return fmt.Errorf("incrementing document count for tenant %s: %w", tenantID, err)
	}
	return nil
}

// DecrementDocumentCount releases a deleted document's accounting.
// Counters floor at zero.
func (l *Ledger) DecrementDocumentCount(ctx context.Context, tenantID string, bytes int64) error {
	unlock := l.lockTenant(tenantID)
	defer unlock()

	q, err := l.getOrCreateLocked(ctx, tenantID)
	if err != nil {
		return err
	}

	q.DocumentCount--
	if q.DocumentCount < 0 {
		q.DocumentCount = 0
	}
	q.TotalStorageBytes -= bytes
	if q.TotalStorageBytes < 0 {
		q.TotalStorageBytes = 0
	}

	if err := l.db.WithContext(ctx).Save(q).Error; err != nil {
		return fmt.Errorf("decrementing document count for tenant %s: %w", tenantID, err)
	}
	return nil
}

// CheckQueryQuota performs the daily-reset check, then fails with
// QuotaExceededError if the tenant is at its daily query limit.
func (l *Ledger) CheckQueryQuota(ctx context.Context, tenantID string) error {
	unlock := l.lockTenant(tenantID)
	defer unlock()

	q, err := l.getOrCreateLocked(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := l.resetDailyLocked(ctx, q); err != nil {
		return err
	}
	return l.checkQueryLocked(q)
}

// checkQueryLocked applies the daily query limit. Caller holds the tenant
// lock and has already applied the daily reset.
func (l *Ledger) checkQueryLocked(q *UserQuota) error {
	limits := LimitsFor(q.Tier)
	if limits.MaxQueriesPerDay > 0 && q.QueriesToday >= limits.MaxQueriesPerDay {
		return &QuotaExceededError{
			TenantID: q.TenantID,
			Resource: "queries",
			Current:  int64(q.QueriesToday),
			Limit:    int64(limits.MaxQueriesPerDay),
			Guidance: "Limit resets at midnight UTC. " + LimitsFor(q.Tier).UpgradeBenefits,
		}
	}
	return nil
}

// ConsumeQuery performs the daily reset, the query quota check, and the
// increment as one serialized unit.
func (l *Ledger) ConsumeQuery(ctx context.Context, tenantID string) error {
	unlock := l.lockTenant(tenantID)
	defer unlock()

	q, err := l.getOrCreateLocked(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := l.resetDailyLocked(ctx, q); err != nil {
		return err
	}
	if err := l.checkQueryLocked(q); err != nil {
		return err
	}

	q.QueriesToday++
	if err := l.db.WithContext(ctx).Save(q).Error; err != nil {
		return fmt.Errorf("incrementing query count for tenant %s: %w", tenantID, err)
	}
	return nil
}

// IncrementQueryCount bumps the daily query counter (after the daily reset).
func (l *Ledger) IncrementQueryCount(ctx context.Context, tenantID string) error {
	unlock := l.lockTenant(tenantID)
	defer unlock()

	q, err := l.getOrCreateLocked(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := l.resetDailyLocked(ctx, q); err != nil {
		return err
	}

	q.QueriesToday++
	if err := l.db.WithContext(ctx).Save(q).Error; err != nil {
		return fmt.Errorf("incrementing query count for tenant %s: %w", tenantID, err)
	}
	return nil
}

// resetDailyLocked zeroes QueriesToday when the calendar day has advanced
// past LastQueryReset. Caller holds the tenant lock, so concurrent requests
// observing the rollover reset at most once.
func (l *Ledger) resetDailyLocked(ctx context.Context, q *UserQuota) error {
	today := dateOf(timeNow())
	if !q.LastQueryReset.Before(today) {
		return nil
	}

	q.QueriesToday = 0
	q.LastQueryReset = today
	if err := l.db.WithContext(ctx).Save(q).Error; err != nil {
		return fmt.Errorf("resetting daily queries for tenant %s: %w", q.TenantID, err)
	}

	l.logger.Debug("reset daily query counter",
		zap.String("tenant_id", q.TenantID),
	)
	return nil
}

// Recalculate recomputes document count and storage usage from the
// authoritative document set. Used to repair drift.
func (l *Ledger) Recalculate(ctx context.Context, tenantID string, source UsageSource) error {
	unlock := l.lockTenant(tenantID)
	defer unlock()

	count, totalBytes, err := source.CountAndSize(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("counting documents for tenant %s: %w", tenantID, err)
	}

	q, err := l.getOrCreateLocked(ctx, tenantID)
	if err != nil {
		return err
	}

	q.DocumentCount = int(count)
	q.TotalStorageBytes = totalBytes
	if err := l.db.WithContext(ctx).Save(q).Error; err != nil {
		return fmt.Errorf("recalculating quota for tenant %s: %w", tenantID, err)
	}

	l.logger.Info("recalculated quota from document set",
		zap.String("tenant_id", tenantID),
		zap.Int64("document_count", count),
		zap.Int64("total_storage_bytes", totalBytes),
	)
	return nil
}

// Usage returns a snapshot of the tenant's usage and limits, applying the
// daily reset first so QueriesToday is never stale.
func (l *Ledger) Usage(ctx context.Context, tenantID string) (*UsageStats, error) {
	unlock := l.lockTenant(tenantID)
	defer unlock()

	q, err := l.getOrCreateLocked(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := l.resetDailyLocked(ctx, q); err != nil {
		return nil, err
	}

	limits := LimitsFor(q.Tier)
	return &UsageStats{
		Tier:              q.Tier,
		DocumentCount:     q.DocumentCount,
		MaxDocuments:      limits.MaxDocuments,
		TotalStorageBytes: q.TotalStorageBytes,
		MaxStorageBytes:   limits.MaxStorageBytes,
		QueriesToday:      q.QueriesToday,
		MaxQueriesPerDay:  limits.MaxQueriesPerDay,
	}, nil
}

// UpgradeTier moves the tenant to a new tier.
func (l *Ledger) UpgradeTier(ctx context.Context, tenantID string, tier Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	unlock := l.lockTenant(tenantID)
	defer unlock()

	q, err := l.getOrCreateLocked(ctx, tenantID)
	if err != nil {
		return err
	}
	q.Tier = tier
	if err := l.db.WithContext(ctx).Save(q).Error; err != nil {
		return fmt.Errorf("upgrading tier for tenant %s: %w", tenantID, err)
	}

	l.logger.Info("tier changed",
		zap.String("tenant_id", tenantID),
		zap.String("tier", string(tier)),
	)
	return nil
}

// ResetUsage zeroes the document and storage counters. Called when a
// tenant's entire document set is removed.
func (l *Ledger) ResetUsage(ctx context.Context, tenantID string) error {
	unlock := l.lockTenant(tenantID)
	defer unlock()

	q, err := l.getOrCreateLocked(ctx, tenantID)
	if err != nil {
		return err
	}
	q.DocumentCount = 0
	q.TotalStorageBytes = 0
	if err := l.db.WithContext(ctx).Save(q).Error; err != nil {
		return fmt.Errorf("resetting usage for tenant %s: %w", tenantID, err)
	}
	return nil
}

// dateOf truncates a time to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
