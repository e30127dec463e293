package pricesync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"brick-trader/internal/models"
	"brick-trader/internal/services/bricklink"
	"brick-trader/internal/services/lifecycle"
	"brick-trader/internal/services/upstream"
)

type fakeBricklinkClient struct {
	regional    map[string]*bricklink.PriceGuide // keyed by set number
	global      map[string]*bricklink.PriceGuide
	missing     map[string]bool
	calls       []string // "<set>/<region>" per call, in order
	rateLimitAt int      // 1-based call index that raises RateLimitError, 0 = never
}

func (f *fakeBricklinkClient) GetPriceGuide(_ context.Context, setNumber string, opts bricklink.PriceGuideOptions) (*bricklink.PriceGuide, error) {
	f.calls = append(f.calls, setNumber+"/"+opts.Region)
	if f.rateLimitAt > 0 && len(f.calls) >= f.rateLimitAt {
		return nil, &upstream.RateLimitError{Upstream: "bricklink"}
	}
	if f.missing[setNumber] {
		return nil, upstream.ErrNotFound
	}
	if opts.Region != "" {
		if guide, ok := f.regional[setNumber]; ok {
			return guide, nil
		}
	} else {
		if guide, ok := f.global[setNumber]; ok {
			return guide, nil
		}
	}
	return nil, upstream.ErrNotFound
}

func newBricklinkTestSyncer(db *gorm.DB, client BricklinkClient, includeSeeds bool) *BricklinkSyncer {
	return NewBricklinkSyncer(db, client, time.Millisecond, "UK", "GBP", "N", includeSeeds, zerolog.Nop())
}

func mapActiveASIN(t *testing.T, db *gorm.DB, asin, setNumber string) {
	t.Helper()
	lm := lifecycle.NewManager(db)
	_, err := lm.Track(asin, models.SourceInventory, "LEGO "+setNumber)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.SetMapping{
		ASIN: asin, SetNumber: setNumber, Confidence: models.ConfidenceExact, VerifiedAt: time.Now(),
	}).Error)
}

func TestBricklinkSyncTwoCallMerge(t *testing.T) {
	db := setupTestDB(t)
	mapActiveASIN(t, db, "B0FALCON01", "75192-1")

	client := &fakeBricklinkClient{
		regional: map[string]*bricklink.PriceGuide{
			"75192-1": {SetNumber: "75192-1", MinPrice: 520, AvgPrice: 580.5, MaxPrice: 700, QtyAvgPrice: 575, LotCount: 6, TotalQty: 9},
		},
		global: map[string]*bricklink.PriceGuide{
			"75192-1": {SetNumber: "75192-1", MinPrice: 450, Detail: []bricklink.Listing{
				{Quantity: 1, UnitPrice: 500, SellerCountryCode: "DE", ShippingAvailable: true},
				{Quantity: 2, UnitPrice: 450, SellerCountryCode: "US", ShippingAvailable: false},
				{Quantity: 1, UnitPrice: 500, SellerCountryCode: "UK", ShippingAvailable: true},
			}},
		},
	}

	syncer := newBricklinkTestSyncer(db, client, false)
	summary, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	// Region-filtered call first, then the global detail call.
	require.Equal(t, []string{"75192-1/UK", "75192-1/"}, client.calls)

	var snap models.BricklinkPriceSnapshot
	require.NoError(t, db.Where("set_number = ?", "75192-1").First(&snap).Error)

	// Aggregates come from the region-filtered guide, not the global one.
	require.NotNil(t, snap.MinPrice)
	assert.Equal(t, 520.0, *snap.MinPrice)
	assert.Equal(t, 6, snap.LotCount)
	assert.Equal(t, 9, snap.TotalQuantity)

	// Detail comes from the global guide, ascending by price, UK first on
	// price ties.
	var detail []models.PriceDetailEntry
	require.NoError(t, json.Unmarshal([]byte(snap.PriceDetail), &detail))
	require.Len(t, detail, 3)
	assert.Equal(t, 450.0, detail[0].UnitPrice)
	assert.Equal(t, "UK", detail[1].Region)
	assert.Equal(t, "DE", detail[2].Region)
}

func TestBricklinkSyncNotFoundSkipped(t *testing.T) {
	db := setupTestDB(t)
	mapActiveASIN(t, db, "B0AAA00001", "10001-1")
	mapActiveASIN(t, db, "B0BBB00001", "99999-1")

	client := &fakeBricklinkClient{
		regional: map[string]*bricklink.PriceGuide{"10001-1": {SetNumber: "10001-1", MinPrice: 10}},
		global:   map[string]*bricklink.PriceGuide{"10001-1": {SetNumber: "10001-1", MinPrice: 9}},
		missing:  map[string]bool{"99999-1": true},
	}

	syncer := newBricklinkTestSyncer(db, client, false)
	summary, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	// A withdrawn set is not a failure.
	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Failed)

	var count int64
	require.NoError(t, db.Model(&models.BricklinkPriceSnapshot{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBricklinkSyncRateLimitAbortsRemainingKeys(t *testing.T) {
	db := setupTestDB(t)
	sets := []string{"10001-1", "10002-1", "10003-1", "10004-1", "10005-1"}
	asins := []string{"B0AAA00001", "B0AAA00002", "B0AAA00003", "B0AAA00004", "B0AAA00005"}
	client := &fakeBricklinkClient{
		regional: map[string]*bricklink.PriceGuide{},
		global:   map[string]*bricklink.PriceGuide{},
	}
	for i, set := range sets {
		mapActiveASIN(t, db, asins[i], set)
		client.regional[set] = &bricklink.PriceGuide{SetNumber: set, MinPrice: 10}
		client.global[set] = &bricklink.PriceGuide{SetNumber: set, MinPrice: 9}
	}
	// Keys sync in sorted order, two calls each; the regional call of the
	// third key is call number 5.
	client.rateLimitAt = 5

	syncer := newBricklinkTestSyncer(db, client, false)
	summary, err := syncer.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, upstream.IsRateLimit(err))

	assert.Equal(t, models.RunStatusFailed, summary.Status)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 3, summary.Failed)
	assert.Contains(t, summary.Error, "rate limit")

	// Keys 1 and 2 keep their snapshots.
	var count int64
	require.NoError(t, db.Model(&models.BricklinkPriceSnapshot{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	status, err := NewStatusRepo(db).Get(models.JobBricklinkPricing)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, models.RunStatusFailed, status.Status)
	assert.Contains(t, status.ErrorMessage, "rate limit")
}

func TestBricklinkSyncDeduplicatesSharedSets(t *testing.T) {
	db := setupTestDB(t)
	// Two bundle ASINs map to the same set: one fetch, one snapshot.
	mapActiveASIN(t, db, "B0AAA00001", "75192-1")
	mapActiveASIN(t, db, "B0BBB00001", "75192-1")

	client := &fakeBricklinkClient{
		regional: map[string]*bricklink.PriceGuide{"75192-1": {SetNumber: "75192-1", MinPrice: 500}},
		global:   map[string]*bricklink.PriceGuide{"75192-1": {SetNumber: "75192-1", MinPrice: 480}},
	}

	syncer := newBricklinkTestSyncer(db, client, false)
	summary, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Len(t, client.calls, 2)
}

func TestBricklinkSyncIncludesSeedSets(t *testing.T) {
	db := setupTestDB(t)
	mapActiveASIN(t, db, "B0AAA00001", "10001-1")
	require.NoError(t, db.Create(&models.SeedSet{SetNumber: "76419-1", Source: "curated", AddedAt: time.Now()}).Error)

	client := &fakeBricklinkClient{
		regional: map[string]*bricklink.PriceGuide{
			"10001-1": {SetNumber: "10001-1", MinPrice: 10},
			"76419-1": {SetNumber: "76419-1", MinPrice: 95},
		},
		global: map[string]*bricklink.PriceGuide{
			"10001-1": {SetNumber: "10001-1", MinPrice: 9},
			"76419-1": {SetNumber: "76419-1", MinPrice: 90},
		},
	}

	withSeeds := newBricklinkTestSyncer(db, client, true)
	summary, err := withSeeds.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)

	client.calls = nil
	withoutSeeds := newBricklinkTestSyncer(db, client, false)
	summary, err = withoutSeeds.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
}

func TestBricklinkSyncExcludedASINDoesNotContributeSet(t *testing.T) {
	db := setupTestDB(t)
	mapActiveASIN(t, db, "B0GONE0001", "10001-1")
	require.NoError(t, lifecycle.NewManager(db).Exclude("B0GONE0001", ""))

	client := &fakeBricklinkClient{}
	syncer := newBricklinkTestSyncer(db, client, false)
	summary, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Empty(t, client.calls)
}
