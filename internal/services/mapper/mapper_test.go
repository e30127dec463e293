package mapper

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"brick-trader/internal/database"
	"brick-trader/internal/models"
	"brick-trader/internal/services/bricklink"
	"brick-trader/internal/services/lifecycle"
	"brick-trader/internal/services/upstream"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

type fakeCatalog struct {
	known   map[string]bool
	lookups []string
	err     error // returned instead of a catalog answer when set
}

func (f *fakeCatalog) GetCatalogItem(_ context.Context, setNumber string) (*bricklink.CatalogItem, error) {
	f.lookups = append(f.lookups, setNumber)
	if f.err != nil {
		return nil, f.err
	}
	if !f.known[setNumber] {
		return nil, upstream.ErrNotFound
	}
	return &bricklink.CatalogItem{SetNumber: setNumber, Name: "Some Set"}, nil
}

func newTestMapper(db *gorm.DB, catalog CatalogVerifier) *Mapper {
	return New(db, catalog, upstream.NewThrottle(time.Millisecond), zerolog.Nop())
}

func track(t *testing.T, db *gorm.DB, asin, title string) {
	t.Helper()
	_, err := lifecycle.NewManager(db).Track(asin, models.SourceInventory, title)
	require.NoError(t, err)
}

func TestMapUnmappedDashSuffixIsExact(t *testing.T) {
	db := setupTestDB(t)
	track(t, db, "B0FALCON01", "LEGO Star Wars Millennium Falcon 75192-1 Building Kit")

	catalog := &fakeCatalog{known: map[string]bool{"75192-1": true}}
	result, err := newTestMapper(db, catalog).MapUnmapped(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"B0FALCON01"}, result.Mapped)

	var mapping models.SetMapping
	require.NoError(t, db.Where("asin = ?", "B0FALCON01").First(&mapping).Error)
	assert.Equal(t, "75192-1", mapping.SetNumber)
	assert.Equal(t, models.ConfidenceExact, mapping.Confidence)
	assert.Equal(t, "title_dash_suffix", mapping.MatchMethod)
	assert.False(t, mapping.VerifiedAt.IsZero())
}

func TestMapUnmappedBareNumberIsProbable(t *testing.T) {
	db := setupTestDB(t)
	track(t, db, "B0HOGWARTS", "LEGO Harry Potter Hogwarts Castle 71043 (6020 Pieces)")

	catalog := &fakeCatalog{known: map[string]bool{"71043-1": true}}
	result, err := newTestMapper(db, catalog).MapUnmapped(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Mapped, 1)

	var mapping models.SetMapping
	require.NoError(t, db.Where("asin = ?", "B0HOGWARTS").First(&mapping).Error)
	assert.Equal(t, "71043-1", mapping.SetNumber)
	assert.Equal(t, models.ConfidenceProbable, mapping.Confidence)
	assert.Equal(t, "title_number", mapping.MatchMethod)
}

func TestMapUnmappedNoCandidateNeedsReview(t *testing.T) {
	db := setupTestDB(t)
	track(t, db, "B0VAGUE001", "Building Blocks Spaceship Toy for Kids")

	catalog := &fakeCatalog{}
	result, err := newTestMapper(db, catalog).MapUnmapped(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"B0VAGUE001"}, result.NeedsReview)
	assert.Empty(t, catalog.lookups)
}

func TestMapUnmappedCatalogMissNeedsReview(t *testing.T) {
	db := setupTestDB(t)
	// Plausible number, but the catalog has never heard of it.
	track(t, db, "B0PHANTOM1", "LEGO City Space Rover 89123")

	catalog := &fakeCatalog{}
	result, err := newTestMapper(db, catalog).MapUnmapped(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"B0PHANTOM1"}, result.NeedsReview)
	assert.Equal(t, []string{"89123-1"}, catalog.lookups)

	var count int64
	require.NoError(t, db.Model(&models.SetMapping{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMapUnmappedSkipsAlreadyMappedAndInactive(t *testing.T) {
	db := setupTestDB(t)
	track(t, db, "B0MAPPED01", "LEGO Technic 42115-1")
	track(t, db, "B0GONE0001", "LEGO Creator 10281-1")
	require.NoError(t, db.Create(&models.SetMapping{
		ASIN: "B0MAPPED01", SetNumber: "42115-1", Confidence: models.ConfidenceExact, VerifiedAt: time.Now(),
	}).Error)
	require.NoError(t, lifecycle.NewManager(db).Exclude("B0GONE0001", "discontinued"))

	catalog := &fakeCatalog{known: map[string]bool{"42115-1": true, "10281-1": true}}
	result, err := newTestMapper(db, catalog).MapUnmapped(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Mapped)
	assert.Empty(t, catalog.lookups)
}

func TestMapUnmappedRateLimitKeepsPartialProgress(t *testing.T) {
	db := setupTestDB(t)
	track(t, db, "B0AAA00001", "LEGO Ideas 21319-1 Central Perk")
	track(t, db, "B0BBB00001", "LEGO Ideas 21327-1 Typewriter")

	// First ASIN maps, then the catalog starts refusing.
	catalog := &fakeCatalog{known: map[string]bool{"21319-1": true}}
	step := &rateLimitAfter{inner: catalog, allow: 1}
	result, err := newTestMapper(db, step).MapUnmapped(context.Background())
	require.Error(t, err)
	assert.True(t, upstream.IsRateLimit(err))
	assert.Equal(t, []string{"B0AAA00001"}, result.Mapped)

	var count int64
	require.NoError(t, db.Model(&models.SetMapping{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

type rateLimitAfter struct {
	inner CatalogVerifier
	allow int
	seen  int
}

func (r *rateLimitAfter) GetCatalogItem(ctx context.Context, setNumber string) (*bricklink.CatalogItem, error) {
	r.seen++
	if r.seen > r.allow {
		return nil, &upstream.RateLimitError{Upstream: "bricklink"}
	}
	return r.inner.GetCatalogItem(ctx, setNumber)
}

func TestSetManualValidatesFormat(t *testing.T) {
	db := setupTestDB(t)
	track(t, db, "B0MANUAL01", "LEGO mystery bundle")
	mapper := newTestMapper(db, &fakeCatalog{})

	for _, bad := range []string{"75192", "75192-", "abc-1", "123-1", "75192-12"} {
		err := mapper.SetManual("B0MANUAL01", bad)
		var verr *upstream.ValidationError
		assert.ErrorAs(t, err, &verr, "set number %q should be rejected", bad)
	}

	require.NoError(t, mapper.SetManual("B0MANUAL01", "75192-1"))

	var mapping models.SetMapping
	require.NoError(t, db.Where("asin = ?", "B0MANUAL01").First(&mapping).Error)
	assert.Equal(t, models.ConfidenceManual, mapping.Confidence)
	assert.Equal(t, "manual_link", mapping.MatchMethod)
}

func TestSetManualOverridesAutoMapping(t *testing.T) {
	db := setupTestDB(t)
	track(t, db, "B0BUNDLE01", "LEGO bundle 10001")
	require.NoError(t, db.Create(&models.SetMapping{
		ASIN: "B0BUNDLE01", SetNumber: "10001-1", Confidence: models.ConfidenceProbable, VerifiedAt: time.Now(),
	}).Error)

	mapper := newTestMapper(db, &fakeCatalog{})
	require.NoError(t, mapper.SetManual("B0BUNDLE01", "10002-1"))

	var mapping models.SetMapping
	require.NoError(t, db.Where("asin = ?", "B0BUNDLE01").First(&mapping).Error)
	assert.Equal(t, "10002-1", mapping.SetNumber)
	assert.Equal(t, models.ConfidenceManual, mapping.Confidence)

	var count int64
	require.NoError(t, db.Model(&models.SetMapping{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSetManualUnknownASIN(t *testing.T) {
	db := setupTestDB(t)
	err := newTestMapper(db, &fakeCatalog{}).SetManual("B0NOWHERE1", "75192-1")
	var verr *upstream.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "asin", verr.Field)
}

func TestUnlink(t *testing.T) {
	db := setupTestDB(t)
	track(t, db, "B0LINKED01", "LEGO 75192-1")
	require.NoError(t, db.Create(&models.SetMapping{
		ASIN: "B0LINKED01", SetNumber: "75192-1", Confidence: models.ConfidenceExact, VerifiedAt: time.Now(),
	}).Error)

	mapper := newTestMapper(db, &fakeCatalog{})
	require.NoError(t, mapper.Unlink("B0LINKED01"))

	var count int64
	require.NoError(t, db.Model(&models.SetMapping{}).Count(&count).Error)
	assert.Zero(t, count)

	err := mapper.Unlink("B0LINKED01")
	var verr *upstream.ValidationError
	assert.ErrorAs(t, err, &verr)
}
