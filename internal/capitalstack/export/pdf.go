package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"nmtc-connect/deal-portal/deal-portal-backend/internal/capitalstack"
)

// PDFRenderer writes a capital stack summary as a one-pager: summary
// block on top, sources table below.
type PDFRenderer struct {
	fontFamily string
	now        func() time.Time
}

// NewPDFRenderer creates a PDF renderer for capital stack exports
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{fontFamily: "Arial", now: time.Now}
}

// Render writes the PDF for one deal's stack to w
func (r *PDFRenderer) Render(summary *capitalstack.Summary, w io.Writer) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(r.fontFamily, "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(r.fontFamily, "B", 16)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, "Capital Stack", "", 1, "C", false, 0, "")
	pdf.SetFont(r.fontFamily, "", 12)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, summary.ProjectName, "", 1, "C", false, 0, "")
	pdf.SetFont(r.fontFamily, "", 9)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 6, "Generated: "+r.now().Format("2006-01-02"), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	r.addSummaryLine(pdf, "Allocation Needed", currency(summary.AllocationNeeded))
	r.addSummaryLine(pdf, "Total Committed", currency(summary.TotalCommitted))
	r.addSummaryLine(pdf, "Total Pending", currency(summary.TotalPending))
	r.addSummaryLine(pdf, "Funding Gap", currency(summary.FundingGap))
	readiness := "No"
	if summary.ReadyForClosing {
		readiness = "Yes"
	}
	r.addSummaryLine(pdf, "Ready for Closing", readiness)
	pdf.Ln(8)

	widths := []float64{28, 66, 32, 34, 20}
	labels := []string{"Source", "Party", "Amount", "Status", "Bucket"}

	pdf.SetFont(r.fontFamily, "B", 10)
	pdf.SetFillColor(68, 114, 196)
	pdf.SetTextColor(255, 255, 255)
	for i, label := range labels {
		pdf.CellFormat(widths[i], 8, label, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(r.fontFamily, "", 9)
	pdf.SetTextColor(0, 0, 0)
	for i, source := range summary.Sources {
		if i%2 == 1 {
			pdf.SetFillColor(242, 242, 242)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		pdf.CellFormat(widths[0], 7, string(source.SourceType), "1", 0, "L", true, 0, "")
		pdf.CellFormat(widths[1], 7, truncate(source.PartyLabel, 40), "1", 0, "L", true, 0, "")
		pdf.CellFormat(widths[2], 7, currency(source.Amount), "1", 0, "R", true, 0, "")
		pdf.CellFormat(widths[3], 7, source.StatusLabel, "1", 0, "L", true, 0, "")
		pdf.CellFormat(widths[4], 7, string(source.Bucket), "1", 0, "L", true, 0, "")
		pdf.Ln(-1)
	}
	if len(summary.Sources) == 0 {
		pdf.SetFont(r.fontFamily, "I", 9)
		pdf.CellFormat(0, 7, "No funding sources yet", "1", 1, "C", false, 0, "")
	}

	return pdf.Output(w)
}

func (r *PDFRenderer) addSummaryLine(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont(r.fontFamily, "B", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(60, 6, label+":", "", 0, "L", false, 0, "")
	pdf.SetFont(r.fontFamily, "", 10)
	pdf.CellFormat(0, 6, value, "", 1, "L", false, 0, "")
}

func currency(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
