package margin

import (
	"math"
)

// Percent computes the margin percentage between a sell price and a buy
// price, rounded to one decimal. Nil when either price is missing, zero or
// negative: a margin is never computed against a non-positive denominator.
func Percent(sell, buy *float64) *float64 {
	if sell == nil || buy == nil || *sell <= 0 || *buy <= 0 {
		return nil
	}
	v := math.Round((*sell-*buy)/(*sell)*1000) / 10
	return &v
}

// Absolute computes the absolute margin, rounded to two decimals. Same
// null-propagation rules as Percent.
func Absolute(sell, buy *float64) *float64 {
	if sell == nil || buy == nil || *sell <= 0 || *buy <= 0 {
		return nil
	}
	v := math.Round((*sell-*buy)*100) / 100
	return &v
}
