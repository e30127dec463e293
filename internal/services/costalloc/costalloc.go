// Package costalloc distributes purchase costs across line items and
// recognises bulk-lot revenue over time. Both are reporting approximations
// run at evaluation time, never during sync.
package costalloc

import (
	"math"
	"time"

	"brick-trader/internal/models"
)

// realisationWindowDays is the window over which a bulk lot's listed value
// is assumed to be recognised evenly.
const realisationWindowDays = 365.0

// Allocation is the per-item outcome of a cost split.
type Allocation struct {
	ItemID        uint    `json:"item_id"`
	Explicit      bool    `json:"explicit"`
	AllocatedCost float64 `json:"allocated_cost"`
}

// AllocateCosts splits a purchase's total cost across its line items.
// Items with an explicit unit cost keep it; the remaining total is shared
// among the rest in proportion to each item's best value signal: realised
// sale amount if sold, else listing price. An item with neither signal is
// excluded from the pool and allocated zero. Shares are rounded to 2dp;
// the last pooled item takes the remainder minus the earlier shares, so
// the allocated sum equals the remainder instead of drifting past it.
func AllocateCosts(totalCost float64, items []models.PurchaseItem) []Allocation {
	allocations := make([]Allocation, len(items))

	explicitSum := 0.0
	poolValue := 0.0
	lastPooled := -1
	for i, item := range items {
		if item.UnitCost != nil {
			allocations[i] = Allocation{ItemID: item.ID, Explicit: true, AllocatedCost: *item.UnitCost}
			explicitSum += *item.UnitCost
			continue
		}
		if signal := valueSignal(item); signal > 0 {
			poolValue += signal
			lastPooled = i
		}
	}

	remainder := totalCost - explicitSum
	if remainder <= 0 || poolValue <= 0 {
		for i, item := range items {
			if item.UnitCost == nil {
				allocations[i] = Allocation{ItemID: item.ID}
			}
		}
		return allocations
	}

	allocated := 0.0
	for i, item := range items {
		if item.UnitCost != nil {
			continue
		}
		if valueSignal(item) <= 0 {
			allocations[i] = Allocation{ItemID: item.ID}
			continue
		}
		share := round2(remainder * valueSignal(item) / poolValue)
		if i == lastPooled {
			share = round2(remainder - allocated)
		}
		allocated += share
		allocations[i] = Allocation{ItemID: item.ID, AllocatedCost: share}
	}
	return allocations
}

// valueSignal picks the item's best available value: sale amount when sold,
// otherwise listing price, otherwise zero.
func valueSignal(item models.PurchaseItem) float64 {
	if item.Sold && item.SaleAmount != nil && *item.SaleAmount > 0 {
		return *item.SaleAmount
	}
	if item.ListingPrice != nil && *item.ListingPrice > 0 {
		return *item.ListingPrice
	}
	return 0
}

// Realisation splits a bulk lot's totals into realised and unrealised
// bands under the linear time-decay model.
type Realisation struct {
	Fraction          float64 `json:"fraction"`
	RealisedRevenue   float64 `json:"realised_revenue"`
	UnrealisedRevenue float64 `json:"unrealised_revenue"`
	RealisedFees      float64 `json:"realised_fees"`
	RealisedCost      float64 `json:"realised_cost"`
}

// RealiseRevenue applies the linear decay model to a bulk-upload lot: the
// listed value is recognised evenly over 365 days from upload, capped at 1.
// This estimates revenue for aged lots without per-item sale tracking; it
// detects nothing, it only apportions for reporting.
func RealiseRevenue(lot models.BulkLot, asOf time.Time) Realisation {
	days := asOf.Sub(lot.UploadedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	fraction := math.Min(1, days/realisationWindowDays)

	return Realisation{
		Fraction:          fraction,
		RealisedRevenue:   round2(lot.TotalListedValue * fraction),
		UnrealisedRevenue: round2(lot.TotalListedValue * (1 - fraction)),
		RealisedFees:      round2(lot.TotalFees * fraction),
		RealisedCost:      round2(lot.TotalCost * fraction),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
