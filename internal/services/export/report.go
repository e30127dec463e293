package export

import (
	"fmt"
	"io"

	"brick-trader/internal/services/margin"

	"github.com/xuri/excelize/v2"
)

// MarginReport writes the reconciliation rows as an XLSX workbook, one row
// per tracked ASIN, in the column order the review spreadsheet uses.
func MarginReport(w io.Writer, rows []margin.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Margins"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{
		"ASIN", "Title", "SKU", "Set Number", "Confidence",
		"Sell Price", "Buy Box", "Stock", "Sales Rank",
		"BL Min", "BL Avg", "BL Lots", "Margin %", "Margin £",
	}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for i, row := range rows {
		values := []any{
			row.ASIN, row.Title, row.SellerSKU, row.SetNumber, row.Confidence,
			deref(row.SellPrice), deref(row.BuyBoxPrice), row.StockQuantity, derefInt(row.SalesRank),
			deref(row.BuyMinPrice), deref(row.BuyAvgPrice), row.LotCount,
			deref(row.MarginPercent), deref(row.MarginAbs),
		}
		for col, value := range values {
			if value == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("write row %d: %w", i+1, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func deref(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
