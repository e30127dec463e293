package pricesync

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"brick-trader/internal/models"
	"brick-trader/internal/services/amazon"
	"brick-trader/internal/services/lifecycle"
	"brick-trader/internal/services/upstream"
)

type fakeAmazonClient struct {
	prices        map[string]float64
	pricingCalls  [][]string
	catalogCalls  [][]string
	failuresLeft  int
	rateLimitFrom int // fail with RateLimitError from this pricing call (1-based), 0 = never
}

func (f *fakeAmazonClient) GetCompetitivePricing(_ context.Context, asins []string) ([]amazon.CompetitivePricing, error) {
	f.pricingCalls = append(f.pricingCalls, asins)
	if f.rateLimitFrom > 0 && len(f.pricingCalls) >= f.rateLimitFrom {
		return nil, &upstream.RateLimitError{Upstream: "amazon"}
	}
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, &upstream.TransientError{Upstream: "amazon", Err: assert.AnError}
	}
	var out []amazon.CompetitivePricing
	for _, asin := range asins {
		if price, ok := f.prices[asin]; ok {
			p := price
			out = append(out, amazon.CompetitivePricing{ASIN: asin, YourPrice: &p, OfferCount: 3})
		}
	}
	return out, nil
}

func (f *fakeAmazonClient) GetCatalogDetail(_ context.Context, asins []string) ([]amazon.CatalogDetail, error) {
	f.catalogCalls = append(f.catalogCalls, asins)
	var out []amazon.CatalogDetail
	for _, asin := range asins {
		rank := 1200
		out = append(out, amazon.CatalogDetail{ASIN: asin, Title: "LEGO " + asin, SalesRank: &rank, RankCategory: "Toys & Games"})
	}
	return out, nil
}

func newTestSyncer(db *gorm.DB, client AmazonClient, batchSize int) *AmazonSyncer {
	return NewAmazonSyncer(db, client, lifecycle.NewManager(db), batchSize, time.Millisecond, time.Millisecond, zerolog.Nop())
}

func trackActive(t *testing.T, db *gorm.DB, asins ...string) {
	t.Helper()
	lm := lifecycle.NewManager(db)
	for _, asin := range asins {
		_, err := lm.Track(asin, models.SourceInventory, "LEGO "+asin)
		require.NoError(t, err)
	}
}

func TestAmazonSyncWritesOneSnapshotPerDay(t *testing.T) {
	db := setupTestDB(t)
	trackActive(t, db, "B0AAA00001", "B0AAA00002")
	client := &fakeAmazonClient{prices: map[string]float64{"B0AAA00001": 99.99, "B0AAA00002": 45.50}}

	syncer := newTestSyncer(db, client, 20)
	summary, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.Failed)

	// Re-run the same day: upsert, not duplicate.
	_, err = syncer.Sync(context.Background())
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.AmazonPriceSnapshot{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var snap models.AmazonPriceSnapshot
	require.NoError(t, db.Where("asin = ?", "B0AAA00001").First(&snap).Error)
	require.NotNil(t, snap.YourPrice)
	assert.Equal(t, 99.99, *snap.YourPrice)
	require.NotNil(t, snap.SalesRank)
	assert.Equal(t, 1200, *snap.SalesRank)

	var tracked models.TrackedASIN
	require.NoError(t, db.Where("asin = ?", "B0AAA00001").First(&tracked).Error)
	assert.NotNil(t, tracked.LastSyncedAt)
}

func TestAmazonSyncNeverFetchesExcluded(t *testing.T) {
	db := setupTestDB(t)
	trackActive(t, db, "B0KEEP0001", "B0GONE0001")
	require.NoError(t, lifecycle.NewManager(db).Exclude("B0GONE0001", "clone brand"))

	client := &fakeAmazonClient{prices: map[string]float64{"B0KEEP0001": 10}}
	syncer := newTestSyncer(db, client, 20)
	_, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	for _, call := range client.pricingCalls {
		assert.NotContains(t, call, "B0GONE0001")
	}
	var count int64
	require.NoError(t, db.Model(&models.AmazonPriceSnapshot{}).Where("asin = ?", "B0GONE0001").Count(&count).Error)
	assert.Zero(t, count)
}

func TestAmazonSyncBatchRetriedOnceThenSkipped(t *testing.T) {
	db := setupTestDB(t)
	trackActive(t, db, "B0AAA00001", "B0AAA00002", "B0BBB00001")
	// Batch size 2: first batch fails through both attempts (and all inner
	// retries), second batch succeeds.
	client := &fakeAmazonClient{
		prices:       map[string]float64{"B0BBB00001": 20},
		failuresLeft: 2 * upstream.DefaultAttempts,
	}

	syncer := newTestSyncer(db, client, 2)
	summary, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Processed)
}

func TestAmazonSyncRateLimitAbortsRun(t *testing.T) {
	db := setupTestDB(t)
	trackActive(t, db, "B0AAA00001", "B0AAA00002", "B0BBB00001", "B0BBB00002")
	client := &fakeAmazonClient{
		prices:        map[string]float64{"B0AAA00001": 10, "B0AAA00002": 11},
		rateLimitFrom: 2,
	}

	syncer := newTestSyncer(db, client, 2)
	summary, err := syncer.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, upstream.IsRateLimit(err))

	assert.Equal(t, models.RunStatusFailed, summary.Status)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Failed)
	assert.Contains(t, summary.Error, "rate limit")

	// First batch's snapshots survive the abort.
	var count int64
	require.NoError(t, db.Model(&models.AmazonPriceSnapshot{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	status, err := NewStatusRepo(db).Get(models.JobAmazonPricing)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, models.RunStatusFailed, status.Status)
	assert.Contains(t, status.ErrorMessage, "rate limit")
}

func TestAmazonSyncIdempotentLastSynced(t *testing.T) {
	db := setupTestDB(t)
	trackActive(t, db, "B0AAA00001")
	client := &fakeAmazonClient{prices: map[string]float64{"B0AAA00001": 42}}
	syncer := newTestSyncer(db, client, 20)

	_, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	var first models.TrackedASIN
	require.NoError(t, db.Where("asin = ?", "B0AAA00001").First(&first).Error)

	_, err = syncer.Sync(context.Background())
	require.NoError(t, err)
	var second models.TrackedASIN
	require.NoError(t, db.Where("asin = ?", "B0AAA00001").First(&second).Error)

	require.NotNil(t, first.LastSyncedAt)
	require.NotNil(t, second.LastSyncedAt)
	assert.False(t, second.LastSyncedAt.Before(*first.LastSyncedAt))

	var snaps []models.AmazonPriceSnapshot
	require.NoError(t, db.Find(&snaps).Error)
	require.Len(t, snaps, 1)
	assert.Equal(t, 42.0, *snaps[0].YourPrice)
}
