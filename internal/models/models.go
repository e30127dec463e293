package models

import (
	"time"
)

// Tracked ASIN lifecycle states
const (
	StatusActive        = "active"
	StatusExcluded      = "excluded"
	StatusPendingReview = "pending_review"
)

// Tracked ASIN origins
const (
	SourceInventory = "inventory"
	SourceDiscovery = "discovery"
	SourceManual    = "manual"
)

// Set mapping confidence tiers
const (
	ConfidenceExact    = "exact"
	ConfidenceProbable = "probable"
	ConfidenceManual   = "manual"
)

// TrackedASIN represents one Amazon listing under price observation.
// Rows are never hard-deleted; exclusion is a soft lifecycle state.
type TrackedASIN struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	ASIN            string     `json:"asin" gorm:"uniqueIndex;size:16;not null"`
	Source          string     `json:"source" gorm:"size:16;not null;default:'inventory'"`
	Status          string     `json:"status" gorm:"size:16;not null;default:'active';index"`
	Title           string     `json:"title"`
	ImageURL        string     `json:"image_url"`
	SellerSKU       string     `json:"seller_sku"`
	StockQuantity   int        `json:"stock_quantity"`
	AddedAt         time.Time  `json:"added_at"`
	ExcludedAt      *time.Time `json:"excluded_at"`
	ExclusionReason string     `json:"exclusion_reason"`
	LastSyncedAt    *time.Time `json:"last_synced_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SetMapping links a tracked ASIN to a BrickLink set number.
// At most one mapping per ASIN; several ASINs may share a set number.
type SetMapping struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ASIN        string    `json:"asin" gorm:"uniqueIndex;size:16;not null"`
	SetNumber   string    `json:"set_number" gorm:"size:16;not null;index"`
	Confidence  string    `json:"confidence" gorm:"size:16;not null"`
	MatchMethod string    `json:"match_method"`
	VerifiedAt  time.Time `json:"verified_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AmazonPriceSnapshot is one dated observation of sell-side pricing for an
// ASIN. One row per ASIN per day; a re-run within the day overwrites.
type AmazonPriceSnapshot struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ASIN          string    `json:"asin" gorm:"size:16;not null;uniqueIndex:idx_asin_snapshot_date"`
	SnapshotDate  time.Time `json:"snapshot_date" gorm:"not null;uniqueIndex:idx_asin_snapshot_date"`
	YourPrice     *float64  `json:"your_price"`
	StockQuantity int       `json:"stock_quantity"`
	BuyBoxPrice   *float64  `json:"buy_box_price"`
	BuyBoxWon     bool      `json:"buy_box_won"`
	OfferCount    int       `json:"offer_count"`
	WasPrice      *float64  `json:"was_price"`
	SalesRank     *int      `json:"sales_rank"`
	RankCategory  string    `json:"rank_category"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BricklinkPriceSnapshot is one dated observation of buy-side aggregate
// pricing for a set number. Shared by every ASIN mapped to the set.
// PriceDetail holds the per-listing breakdown as a JSON array
// ([]PriceDetailEntry), kept as text for drill-down display only.
type BricklinkPriceSnapshot struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	SetNumber     string    `json:"set_number" gorm:"size:16;not null;uniqueIndex:idx_set_date_cond_region"`
	SnapshotDate  time.Time `json:"snapshot_date" gorm:"not null;uniqueIndex:idx_set_date_cond_region"`
	Condition     string    `json:"condition" gorm:"size:4;not null;uniqueIndex:idx_set_date_cond_region"`
	Region        string    `json:"region" gorm:"size:4;not null;uniqueIndex:idx_set_date_cond_region"`
	MinPrice      *float64  `json:"min_price"`
	AvgPrice      *float64  `json:"avg_price"`
	MaxPrice      *float64  `json:"max_price"`
	QtyAvgPrice   *float64  `json:"qty_avg_price"`
	LotCount      int       `json:"lot_count"`
	TotalQuantity int       `json:"total_quantity"`
	PriceDetail   string    `json:"price_detail" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PriceDetailEntry is one listing inside BricklinkPriceSnapshot.PriceDetail.
type PriceDetailEntry struct {
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Region    string  `json:"region"`
	Ships     bool    `json:"ships"`
}

// Sync job types and run states
const (
	JobAmazonPricing    = "amazon_pricing"
	JobBricklinkPricing = "bricklink_pricing"
	JobSetMapping       = "set_mapping"
	JobInventoryImport  = "inventory_import"

	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// SyncStatus tracks the most recent run of each job type. One row per job
// type, overwritten every run; not an audit log.
type SyncStatus struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	JobType         string     `json:"job_type" gorm:"uniqueIndex;size:32;not null"`
	Status          string     `json:"status" gorm:"size:16;not null"`
	LastRunAt       time.Time  `json:"last_run_at"`
	LastSuccessAt   *time.Time `json:"last_success_at"`
	DurationSeconds float64    `json:"duration_seconds"`
	ItemsProcessed  int        `json:"items_processed"`
	ItemsFailed     int        `json:"items_failed"`
	ErrorMessage    string     `json:"error_message"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SeedSet is a curated discovery set number that the buy-side sync refreshes
// even when no tracked ASIN maps to it yet.
type SeedSet struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SetNumber string    `json:"set_number" gorm:"uniqueIndex;size:16;not null"`
	Theme     string    `json:"theme"`
	Source    string    `json:"source"`
	AddedAt   time.Time `json:"added_at"`
}

// Purchase is a buy-side purchase whose total cost may need splitting
// across line items.
type Purchase struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Reference   string         `json:"reference"`
	TotalCost   float64        `json:"total_cost"`
	PurchasedAt time.Time      `json:"purchased_at"`
	Items       []PurchaseItem `json:"items" gorm:"foreignKey:PurchaseID"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PurchaseItem is one line of a purchase. UnitCost nil means the item takes
// a proportional share of the purchase total at reporting time.
type PurchaseItem struct {
	ID           uint     `json:"id" gorm:"primaryKey"`
	PurchaseID   uint     `json:"purchase_id" gorm:"index;not null"`
	Description  string   `json:"description"`
	UnitCost     *float64 `json:"unit_cost"`
	ListingPrice *float64 `json:"listing_price"`
	SaleAmount   *float64 `json:"sale_amount"`
	Sold         bool     `json:"sold"`
}

// BulkLot is an aged bulk-upload lot without per-item sale tracking; its
// revenue is recognised linearly over a fixed window for reporting.
type BulkLot struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	Reference        string    `json:"reference"`
	TotalListedValue float64   `json:"total_listed_value"`
	TotalFees        float64   `json:"total_fees"`
	TotalCost        float64   `json:"total_cost"`
	UploadedAt       time.Time `json:"uploaded_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// PlatformCredential stores opaque API credentials per upstream platform.
type PlatformCredential struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Platform  string    `json:"platform" gorm:"uniqueIndex;size:32;not null"`
	Payload   string    `json:"-" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}
