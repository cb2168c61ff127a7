// Package quota implements the per-tenant usage ledger.
//
// Every mutating operation in the document lifecycle is gated by the ledger.
// Check-then-increment sequences for the same tenant are serialized behind a
// per-tenant lock so that concurrent requests cannot both pass a check only
// one of them can satisfy. Unrelated tenants never contend on a shared lock.
package quota

import (
	"time"
)

// Tier is a named quota profile.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Valid reports whether the tier is a known profile.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Limits bounds a tier. A negative value means unlimited.
type Limits struct {
	MaxDocuments     int
	MaxStorageBytes  int64
	MaxQueriesPerDay int
	UpgradeBenefits  string
}

// tierLimits holds the built-in tier profiles.
var tierLimits = map[Tier]Limits{
	TierFree: {
		MaxDocuments:     50,
		MaxStorageBytes:  500 * 1024 * 1024,
		MaxQueriesPerDay: 1000,
		UpgradeBenefits:  "Unlimited documents, 10GB storage, unlimited queries",
	},
	TierPro: {
		MaxDocuments:     1000,
		MaxStorageBytes:  10 * 1024 * 1024 * 1024,
		MaxQueriesPerDay: 50000,
		UpgradeBenefits:  "Contact sales for Enterprise unlimited access",
	},
	TierEnterprise: {
		MaxDocuments:     -1,
		MaxStorageBytes:  -1,
		MaxQueriesPerDay: -1,
		UpgradeBenefits:  "Already at highest tier",
	},
}

// LimitsFor returns the limits for a tier, defaulting to free for unknown tiers.
func LimitsFor(tier Tier) Limits {
	if l, ok := tierLimits[tier]; ok {
		return l
	}
	return tierLimits[TierFree]
}

// UserQuota is the per-tenant ledger record. One row per tenant.
//
// QueriesToday is only meaningful for the calendar day in LastQueryReset;
// a stale date means the counter must be zeroed before it is read.
type UserQuota struct {
	TenantID          string    `gorm:"primaryKey;size:255"`
	Tier              Tier      `gorm:"size:20;not null;default:free"`
	DocumentCount     int       `gorm:"not null;default:0"`
	TotalStorageBytes int64     `gorm:"not null;default:0"`
	QueriesToday      int       `gorm:"not null;default:0"`
	LastQueryReset    time.Time `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName sets the gorm table name.
func (UserQuota) TableName() string { return "user_quotas" }

// UsageStats is a point-in-time snapshot of a tenant's usage and limits.
type UsageStats struct {
	Tier              Tier
	DocumentCount     int
	MaxDocuments      int
	TotalStorageBytes int64
	MaxStorageBytes   int64
	QueriesToday      int
	MaxQueriesPerDay  int
}

// UnlimitedDocuments reports whether the document dimension is unbounded.
func (s UsageStats) UnlimitedDocuments() bool { return s.MaxDocuments < 0 }

// UnlimitedStorage reports whether the storage dimension is unbounded.
func (s UsageStats) UnlimitedStorage() bool { return s.MaxStorageBytes < 0 }

// UnlimitedQueries reports whether the query dimension is unbounded.
func (s UsageStats) UnlimitedQueries() bool { return s.MaxQueriesPerDay < 0 }
