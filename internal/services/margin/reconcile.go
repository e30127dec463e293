package margin

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"brick-trader/internal/models"

	"gorm.io/gorm"
)

// Row is one reconciled entry: an active ASIN joined to its latest
// sell-side snapshot and, through the set mapping, the latest buy-side
// snapshot. Unmapped ASINs appear with nil buy-side fields, not as errors.
type Row struct {
	ASIN          string     `json:"asin"`
	Title         string     `json:"title"`
	ImageURL      string     `json:"image_url"`
	SellerSKU     string     `json:"seller_sku"`
	SetNumber     string     `json:"set_number,omitempty"`
	Confidence    string     `json:"confidence,omitempty"`
	SellPrice     *float64   `json:"sell_price"`
	BuyBoxPrice   *float64   `json:"buy_box_price"`
	StockQuantity int        `json:"stock_quantity"`
	SalesRank     *int       `json:"sales_rank"`
	BuyMinPrice   *float64   `json:"buy_min_price"`
	BuyAvgPrice   *float64   `json:"buy_avg_price"`
	LotCount      int        `json:"lot_count"`
	MarginPercent *float64   `json:"margin_percent"`
	MarginAbs     *float64   `json:"margin_abs"`
	SellSyncedAt  *time.Time `json:"sell_synced_at"`
	BuySyncedAt   *time.Time `json:"buy_synced_at"`
}

// Query narrows and orders the reconciliation output.
type Query struct {
	MinMarginPercent *float64
	InStockOnly      bool
	Search           string
	SortBy           string // margin, sell_price, buy_price, rank, asin
	SortDesc         bool
	Page             int
	PageSize         int
}

// Service builds the reconciliation view. Read-only; it runs whenever the
// UI asks, independent of sync timing, and tolerates a half-finished run's
// data.
type Service struct {
	db        *gorm.DB
	condition string
	region    string
}

func NewService(db *gorm.DB, condition, region string) *Service {
	return &Service{db: db, condition: condition, region: region}
}

// Reconcile returns one row per active ASIN plus the total count before
// pagination.
func (s *Service) Reconcile(q Query) ([]Row, int, error) {
	var tracked []models.TrackedASIN
	err := s.db.Where("status = ?", models.StatusActive).Find(&tracked).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list active asins: %w", err)
	}

	mappings, err := s.loadMappings()
	if err != nil {
		return nil, 0, err
	}
	sellSnaps, err := s.latestAmazonSnapshots()
	if err != nil {
		return nil, 0, err
	}
	buySnaps, err := s.latestBricklinkSnapshots()
	if err != nil {
		return nil, 0, err
	}

	rows := make([]Row, 0, len(tracked))
	for _, t := range tracked {
		row := Row{
			ASIN:          t.ASIN,
			Title:         t.Title,
			ImageURL:      t.ImageURL,
			SellerSKU:     t.SellerSKU,
			StockQuantity: t.StockQuantity,
		}
		if snap, ok := sellSnaps[t.ASIN]; ok {
			row.SellPrice = snap.YourPrice
			if row.SellPrice == nil {
				row.SellPrice = snap.BuyBoxPrice
			}
			row.BuyBoxPrice = snap.BuyBoxPrice
			row.StockQuantity = snap.StockQuantity
			row.SalesRank = snap.SalesRank
			d := snap.SnapshotDate
			row.SellSyncedAt = &d
		}
		if mapping, ok := mappings[t.ASIN]; ok {
			row.SetNumber = mapping.SetNumber
			row.Confidence = mapping.Confidence
			if snap, ok := buySnaps[mapping.SetNumber]; ok {
				row.BuyMinPrice = snap.MinPrice
				row.BuyAvgPrice = snap.AvgPrice
				row.LotCount = snap.LotCount
				d := snap.SnapshotDate
				row.BuySyncedAt = &d
			}
		}
		row.MarginPercent = Percent(row.SellPrice, row.BuyMinPrice)
		row.MarginAbs = Absolute(row.SellPrice, row.BuyMinPrice)
		rows = append(rows, row)
	}

	rows = filterRows(rows, q)
	sortRows(rows, q)
	total := len(rows)

	if q.PageSize > 0 {
		page := q.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * q.PageSize
		if start >= len(rows) {
			rows = nil
		} else {
			end := start + q.PageSize
			if end > len(rows) {
				end = len(rows)
			}
			rows = rows[start:end]
		}
	}
	return rows, total, nil
}

func (s *Service) loadMappings() (map[string]models.SetMapping, error) {
	var all []models.SetMapping
	if err := s.db.Find(&all).Error; err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	byASIN := make(map[string]models.SetMapping, len(all))
	for _, m := range all {
		byASIN[m.ASIN] = m
	}
	return byASIN, nil
}

// latestAmazonSnapshots returns the newest snapshot per ASIN. Ties on
// snapshot date (not expected, one row per day) resolve to the highest id
// so selection stays stable.
func (s *Service) latestAmazonSnapshots() (map[string]models.AmazonPriceSnapshot, error) {
	var snaps []models.AmazonPriceSnapshot
	err := s.db.Raw(`
		SELECT s.* FROM amazon_price_snapshots s
		JOIN (
			SELECT asin, MAX(snapshot_date) AS latest
			FROM amazon_price_snapshots GROUP BY asin
		) m ON s.asin = m.asin AND s.snapshot_date = m.latest`).Scan(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("load latest sell-side snapshots: %w", err)
	}
	byASIN := make(map[string]models.AmazonPriceSnapshot, len(snaps))
	for _, snap := range snaps {
		if existing, ok := byASIN[snap.ASIN]; !ok || snap.ID > existing.ID {
			byASIN[snap.ASIN] = snap
		}
	}
	return byASIN, nil
}

func (s *Service) latestBricklinkSnapshots() (map[string]models.BricklinkPriceSnapshot, error) {
	var snaps []models.BricklinkPriceSnapshot
	err := s.db.Raw(`
		SELECT s.* FROM bricklink_price_snapshots s
		JOIN (
			SELECT set_number, MAX(snapshot_date) AS latest
			FROM bricklink_price_snapshots
			WHERE `+"`condition`"+` = ? AND region = ?
			GROUP BY set_number
		) m ON s.set_number = m.set_number AND s.snapshot_date = m.latest
		WHERE s.`+"`condition`"+` = ? AND s.region = ?`,
		s.condition, s.region, s.condition, s.region).Scan(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("load latest buy-side snapshots: %w", err)
	}
	bySet := make(map[string]models.BricklinkPriceSnapshot, len(snaps))
	for _, snap := range snaps {
		if existing, ok := bySet[snap.SetNumber]; !ok || snap.ID > existing.ID {
			bySet[snap.SetNumber] = snap
		}
	}
	return bySet, nil
}

func filterRows(rows []Row, q Query) []Row {
	out := rows[:0]
	search := strings.ToLower(strings.TrimSpace(q.Search))
	for _, row := range rows {
		if q.MinMarginPercent != nil {
			if row.MarginPercent == nil || *row.MarginPercent < *q.MinMarginPercent {
				continue
			}
		}
		if q.InStockOnly && row.StockQuantity <= 0 {
			continue
		}
		if search != "" {
			haystack := strings.ToLower(row.ASIN + " " + row.Title + " " + row.SellerSKU + " " + row.SetNumber)
			if !strings.Contains(haystack, search) {
				continue
			}
		}
		out = append(out, row)
	}
	return out
}

// sortRows orders by the requested column. Rows without a value for the
// sort column always sink to the end, whichever direction is asked for.
func sortRows(rows []Row, q Query) {
	key := func(row Row) *float64 { return row.MarginPercent }
	switch q.SortBy {
	case "sell_price":
		key = func(row Row) *float64 { return row.SellPrice }
	case "buy_price":
		key = func(row Row) *float64 { return row.BuyMinPrice }
	case "rank":
		key = func(row Row) *float64 {
			if row.SalesRank == nil {
				return nil
			}
			v := float64(*row.SalesRank)
			return &v
		}
	case "asin":
		key = nil
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if key == nil {
			if q.SortDesc {
				return rows[i].ASIN > rows[j].ASIN
			}
			return rows[i].ASIN < rows[j].ASIN
		}
		a, b := key(rows[i]), key(rows[j])
		if (a == nil) != (b == nil) {
			return a != nil
		}
		if a != nil && *a != *b {
			if q.SortDesc {
				return *a > *b
			}
			return *a < *b
		}
		return rows[i].ASIN < rows[j].ASIN
	})
}
