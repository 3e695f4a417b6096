package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/crypto-signal-trader/internal/execution"
)

// ExportOrderJournal writes the full order audit trail to an Excel
// workbook at path.
func ExportOrderJournal(path string, orders []execution.OrderRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const sheet = "Orders"
	fx.SetSheetName(fx.GetSheetName(0), sheet)

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	headers := []string{"ID", "Symbol", "Side", "Type", "Quantity", "Price", "Status", "Timestamp", "Exchange Order ID", "Risk Score"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
	}
	lastCol, _ := excelize.CoordinatesToCellName(len(headers), 1)
	fx.SetCellStyle(sheet, "A1", lastCol, headerStyle)

	for i, rec := range orders {
		row := i + 2
		values := []interface{}{
			rec.ID,
			rec.Symbol,
			string(rec.Side),
			string(rec.Type),
			rec.Quantity,
			rec.Price,
			string(rec.Status),
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			rec.ExchangeOrderID,
			rec.RiskScore,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			fx.SetCellValue(sheet, cell, v)
		}
	}

	fx.SetColWidth(sheet, "A", "A", 38)
	fx.SetColWidth(sheet, "H", "I", 22)

	return fx.SaveAs(path)
}
