package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"nmtc-connect/deal-portal/deal-portal-backend/internal/capitalstack"
)

const stackSheet = "Capital Stack"

var stackColumns = []string{"Source", "Party", "Amount", "Status", "Bucket"}

// ExcelRenderer writes a capital stack summary as an xlsx workbook with a
// sources sheet and a summary block.
type ExcelRenderer struct {
	currencyFormat string
}

// NewExcelRenderer creates an Excel renderer for capital stack exports
func NewExcelRenderer() *ExcelRenderer {
	return &ExcelRenderer{currencyFormat: "$#,##0.00"}
}

// Render writes the workbook for one deal's stack to w
func (r *ExcelRenderer) Render(summary *capitalstack.Summary, w io.Writer) error {
	file := excelize.NewFile()
	defer file.Close()

	file.SetSheetName("Sheet1", stackSheet)

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	currencyStyle, err := file.NewStyle(&excelize.Style{CustomNumFmt: &r.currencyFormat})
	if err != nil {
		return fmt.Errorf("creating currency style: %w", err)
	}

	for i, col := range stackColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		file.SetCellValue(stackSheet, cell, col)
		file.SetCellStyle(stackSheet, cell, cell, headerStyle)
	}
	file.SetPanes(stackSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	for i, source := range summary.Sources {
		row := i + 2
		file.SetCellValue(stackSheet, cellAt(1, row), string(source.SourceType))
		file.SetCellValue(stackSheet, cellAt(2, row), source.PartyLabel)
		file.SetCellValue(stackSheet, cellAt(3, row), source.Amount)
		file.SetCellStyle(stackSheet, cellAt(3, row), cellAt(3, row), currencyStyle)
		file.SetCellValue(stackSheet, cellAt(4, row), source.StatusLabel)
		file.SetCellValue(stackSheet, cellAt(5, row), string(source.Bucket))
	}
	if len(summary.Sources) > 0 {
		lastCol, _ := excelize.CoordinatesToCellName(len(stackColumns), 1)
		file.AutoFilter(stackSheet, "A1:"+lastCol, nil)
	}

	summaryRow := len(summary.Sources) + 3
	boldStyle, _ := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	writeSummaryLine := func(row int, label string, value any, currency bool) {
		file.SetCellValue(stackSheet, cellAt(1, row), label)
		file.SetCellStyle(stackSheet, cellAt(1, row), cellAt(1, row), boldStyle)
		file.SetCellValue(stackSheet, cellAt(3, row), value)
		if currency {
			file.SetCellStyle(stackSheet, cellAt(3, row), cellAt(3, row), currencyStyle)
		}
	}
	writeSummaryLine(summaryRow, "Allocation Needed", summary.AllocationNeeded, true)
	writeSummaryLine(summaryRow+1, "Total Committed", summary.TotalCommitted, true)
	writeSummaryLine(summaryRow+2, "Total Pending", summary.TotalPending, true)
	writeSummaryLine(summaryRow+3, "Funding Gap", summary.FundingGap, true)
	readiness := "No"
	if summary.ReadyForClosing {
		readiness = "Yes"
	}
	writeSummaryLine(summaryRow+4, "Ready for Closing", readiness, false)

	file.SetColWidth(stackSheet, "A", "A", 14)
	file.SetColWidth(stackSheet, "B", "B", 32)
	file.SetColWidth(stackSheet, "C", "C", 18)
	file.SetColWidth(stackSheet, "D", "E", 20)

	return file.Write(w)
}

func cellAt(col, row int) string {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	return cell
}
