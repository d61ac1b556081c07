package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth = 277.0
	rowHeight = 6.0
)

// PDFExporter renders datasets as a landscape A4 table.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render prints the title, then the table. When GroupBy is set, each group gets a shaded band
// and the header row is repeated on every page.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)

	widths := columnWidths(data)
	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(220, 220, 220)
		for i, title := range data.Headers {
			pdf.CellFormat(widths[i], rowHeight+1, title, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	pdf.SetHeaderFunc(func() {
		if data.Title != "" {
			pdf.SetFont("Arial", "B", 13)
			pdf.CellFormat(0, 9, strings.ToUpper(data.Title), "", 1, "C", false, 0, "")
		}
		header()
	})
	pdf.AddPage()

	group := data.column(data.GroupBy)
	current := ""
	for _, row := range data.Rows {
		if group >= 0 && row[group] != current {
			current = row[group]
			pdf.SetFont("Arial", "B", 8)
			pdf.SetFillColor(240, 240, 240)
			pdf.CellFormat(pageWidth, rowHeight, current, "1", 1, "L", true, 0, "")
			pdf.SetFont("Arial", "", 8)
		}
		for i, value := range row {
			pdf.CellFormat(widths[i], rowHeight, fit(pdf, value, widths[i]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths shares the page width in proportion to the longest cell of each column.
func columnWidths(data Dataset) []float64 {
	longest := make([]int, len(data.Headers))
	total := 0
	for i, header := range data.Headers {
		longest[i] = max(len(header), 4)
	}
	for _, row := range data.Rows {
		for i, value := range row {
			longest[i] = max(longest[i], min(len(value), 40))
		}
	}
	for _, n := range longest {
		total += n
	}
	widths := make([]float64, len(longest))
	for i, n := range longest {
		widths[i] = pageWidth * float64(n) / float64(total)
	}
	return widths
}

func fit(pdf *gofpdf.Fpdf, value string, width float64) string {
	if pdf.GetStringWidth(value) <= width-2 {
		return value
	}
	runes := []rune(value)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width-2 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
