// Package types defines core data structures for the salewatch sync engine.
package types

import (
	"time"
)

// Credential is a partner API key held by salewatch. The plaintext key is
// never stored; EncryptedKey carries the AES-GCM blob produced by the secret
// provider, and KeyHash the last four characters of the plaintext for display
// disambiguation only.
type Credential struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	KeyHash      string    `json:"keyHash"`
	EncryptedKey string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SyncState tracks per-credential sync progress. Highwatermark is the
// remote-provided cursor: data through this point has been delivered.
type SyncState struct {
	APIKeyID      string     `json:"apiKeyId"`
	Highwatermark uint64     `json:"highwatermark"`
	LastSyncAt    *time.Time `json:"lastSyncAt,omitempty"`
}

// TaskStatus is the lifecycle state of a SyncTask.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal status.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// SyncTask is one (credential, date) unit of work. At most one row exists per
// (APIKeyID, Date); re-discovery resets an existing row back to pending.
type SyncTask struct {
	ID          int64      `json:"id"`
	APIKeyID    string     `json:"apiKeyId"`
	Date        string     `json:"date"` // YYYY-MM-DD
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TaskCounts summarizes a credential's task queue by status.
type TaskCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Total returns the sum across all statuses.
func (c TaskCounts) Total() int {
	return c.Pending + c.InProgress + c.Completed + c.Failed
}

// ChangedDatesQuery is one append-only audit row recording a discovery call.
type ChangedDatesQuery struct {
	ID               int64     `json:"id"`
	APIKeyID         string    `json:"apiKeyId"`
	HighwatermarkIn  uint64    `json:"highwatermarkIn"`
	HighwatermarkOut uint64    `json:"highwatermarkOut"`
	DatesFound       int       `json:"datesFound"`
	Note             string    `json:"note,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// SalesRecord is the denormalized per-line-item row written by the fetch
// phase. All money fields are signed integer cents; no floating-point money
// is ever stored. Nullable identifier and price fields are pointers so the
// distinction between "absent" and "zero" survives into the store.
type SalesRecord struct {
	ID           int64  `json:"id"`
	APIKeyID     string `json:"apiKeyId"`
	Date         string `json:"date"`
	LineItemType string `json:"lineItemType"`

	AppID      *int64 `json:"appId,omitempty"`
	PackageID  *int64 `json:"packageId,omitempty"`
	BundleID   *int64 `json:"bundleId,omitempty"`
	PartnerID  *int64 `json:"partnerId,omitempty"`
	GameItemID *int64 `json:"gameItemId,omitempty"`

	CountryCode string `json:"countryCode"`
	Platform    string `json:"platform"`
	Currency    string `json:"currency"`

	BasePriceCents  *int64 `json:"basePriceCents,omitempty"`
	SalePriceCents  *int64 `json:"salePriceCents,omitempty"`
	AvgSalePriceUSD int64  `json:"avgSalePriceUsd"`
	GrossSalesUSD   int64  `json:"grossSalesUsd"`
	GrossReturnsUSD int64  `json:"grossReturnsUsd"`
	NetSalesUSD     int64  `json:"netSalesUsd"`
	NetTaxUSD       int64  `json:"netTaxUsd"`

	GrossUnitsSold      int64 `json:"grossUnitsSold"`
	GrossUnitsReturned  int64 `json:"grossUnitsReturned"`
	GrossUnitsActivated int64 `json:"grossUnitsActivated"`
	NetUnitsSold        int64 `json:"netUnitsSold"`

	DiscountID         *int64 `json:"discountId,omitempty"`
	DiscountPercentage *int64 `json:"discountPercentage,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Lookup is a shared reference entity (app, package, bundle, partner or game
// item) denormalized for display. Lookups are global across credentials and
// insert-or-ignore: an existing key keeps its first-seen name.
type Lookup struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Country is the country lookup; keyed by ISO code rather than integer id.
type Country struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

// Discount is the discount lookup; carries the advertised percentage.
type Discount struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Percentage *int64 `json:"percentage,omitempty"`
}

// LookupSet collects every reference entity observed on one sales page,
// already deduped per kind.
type LookupSet struct {
	Apps      map[int64]string
	Packages  map[int64]string
	Bundles   map[int64]string
	Partners  map[int64]string
	GameItems map[int64]string
	Countries map[string]Country
	Discounts map[int64]Discount
}

// NewLookupSet returns an empty LookupSet with all maps allocated.
func NewLookupSet() *LookupSet {
	return &LookupSet{
		Apps:      make(map[int64]string),
		Packages:  make(map[int64]string),
		Bundles:   make(map[int64]string),
		Partners:  make(map[int64]string),
		GameItems: make(map[int64]string),
		Countries: make(map[string]Country),
		Discounts: make(map[int64]Discount),
	}
}

// Empty reports whether the set contains no entries at all.
func (l *LookupSet) Empty() bool {
	return len(l.Apps) == 0 && len(l.Packages) == 0 && len(l.Bundles) == 0 &&
		len(l.Partners) == 0 && len(l.GameItems) == 0 &&
		len(l.Countries) == 0 && len(l.Discounts) == 0
}

// Merge folds other into l, first writer wins per key.
func (l *LookupSet) Merge(other *LookupSet) {
	if other == nil {
		return
	}
	for k, v := range other.Apps {
		if _, ok := l.Apps[k]; !ok {
			l.Apps[k] = v
		}
	}
	for k, v := range other.Packages {
		if _, ok := l.Packages[k]; !ok {
			l.Packages[k] = v
		}
	}
	for k, v := range other.Bundles {
		if _, ok := l.Bundles[k]; !ok {
			l.Bundles[k] = v
		}
	}
	for k, v := range other.Partners {
		if _, ok := l.Partners[k]; !ok {
			l.Partners[k] = v
		}
	}
	for k, v := range other.GameItems {
		if _, ok := l.GameItems[k]; !ok {
			l.GameItems[k] = v
		}
	}
	for k, v := range other.Countries {
		if _, ok := l.Countries[k]; !ok {
			l.Countries[k] = v
		}
	}
	for k, v := range other.Discounts {
		if _, ok := l.Discounts[k]; !ok {
			l.Discounts[k] = v
		}
	}
}

// CredentialStats is the per-credential summary served by the admin API.
type CredentialStats struct {
	APIKeyID      string     `json:"apiKeyId"`
	RecordCount   int64      `json:"recordCount"`
	FirstDate     string     `json:"firstDate,omitempty"`
	LastDate      string     `json:"lastDate,omitempty"`
	Highwatermark uint64     `json:"highwatermark"`
	LastSyncAt    *time.Time `json:"lastSyncAt,omitempty"`
	Tasks         TaskCounts `json:"tasks"`
}
