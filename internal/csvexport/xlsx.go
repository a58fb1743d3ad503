package csvexport

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"cbsent/internal/domain"
)

// SheetName is the worksheet holding the merged rows.
const SheetName = "results"

// scoreColumns are written as numbers rather than text.
var scoreColumns = map[int]bool{4: true, 5: true, 6: true, 7: true, 8: true, 9: true, 10: true, 11: true}

// EncodeXLSX renders the merged rows as a single-sheet workbook.
func EncodeXLSX(rows []domain.ResultRow) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, xlsxRow(&rows[i])); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func xlsxRow(row *domain.ResultRow) *[]interface{} {
	rec := Record(row)
	out := make([]interface{}, len(rec))
	scores := []float64{
		row.HawkishDovishScore,
		row.TopicInflation,
		row.TopicGrowth,
		row.TopicFinancialStability,
		row.TopicLaborMarket,
		row.TopicInternational,
		row.Uncertainty,
		row.ForwardGuidanceStrength,
	}
	for i, v := range rec {
		if scoreColumns[i] {
			out[i] = scores[i-4]
			continue
		}
		out[i] = v
	}
	return &out
}
