package export

import (
	"context"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/cardscope/internal/model"
)

const (
	// SheetName is the single worksheet in every export.
	SheetName = "Сравнение"

	// LabelHeader titles the first column.
	LabelHeader = "Характеристика"

	headerFill  = "FF4472C4"
	headerFont  = "FFFFFFFF"
	zebraFill   = "FFF2F2F2"
	missingFill = "FFFFE6E6"

	minColWidth = 15
	maxColWidth = 50
	rowHeight   = 30
)

// XLSX writes tables as timestamped workbooks under Dir.
type XLSX struct {
	Dir string
	Now func() time.Time
}

// NewXLSX creates an exporter writing to dir.
func NewXLSX(dir string) *XLSX {
	return &XLSX{Dir: dir, Now: time.Now}
}

// Export writes t and returns the file path.
func (x *XLSX) Export(ctx context.Context, t *Table) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "export: cancelled")
	}
	if t == nil {
		return "", eris.New("export: nil table")
	}

	now := time.Now
	if x.Now != nil {
		now = x.Now
	}
	if err := os.MkdirAll(x.Dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "export: create dir %s", x.Dir)
	}
	path := filepath.Join(x.Dir, fileName(now()))

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return "", eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	header.SetHeight(rowHeight)
	hs := headerStyle()
	addCell(header, LabelHeader, hs)
	for _, c := range t.Columns {
		addCell(header, c.Header(), hs)
	}

	for i, r := range t.Rows {
		row := sheet.AddRow()
		row.SetHeight(rowHeight)
		addCell(row, r.Label, bodyStyle(fillFor(i, r.Label)))
		for _, v := range r.Cells {
			addCell(row, v, bodyStyle(fillFor(i, v)))
		}
	}

	// Sheet columns are 1-based.
	for i, w := range columnWidths(t) {
		sheet.SetColWidth(i+1, i+1, w)
	}

	if err := f.Save(path); err != nil {
		return "", eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().Info("export: workbook written",
		zap.String("path", path),
		zap.Int("products", len(t.Columns)),
		zap.Int("characteristics", len(t.Rows)),
	)
	return path, nil
}

func fileName(at time.Time) string {
	return "Парсинг_Карт_" + at.Format("20060102_150405") + ".xlsx"
}

func addCell(row *xlsx.Row, value string, style *xlsx.Style) {
	c := row.AddCell()
	c.SetString(value)
	c.SetStyle(style)
}

// fillFor picks the background of a data cell. Missing values win over the
// zebra stripe, which marks every other row starting with the first.
func fillFor(rowIdx int, value string) string {
	switch {
	case value == "" || value == model.Missing:
		return missingFill
	case rowIdx%2 == 0:
		return zebraFill
	default:
		return ""
	}
}

// columnWidths sizes each column to its longest cell plus padding, clamped.
func columnWidths(t *Table) []float64 {
	longest := make([]int, len(t.Columns)+1)
	longest[0] = utf8.RuneCountInString(LabelHeader)
	for i, c := range t.Columns {
		longest[i+1] = utf8.RuneCountInString(c.Header())
	}
	for _, r := range t.Rows {
		longest[0] = max(longest[0], utf8.RuneCountInString(r.Label))
		for i, v := range r.Cells {
			if i+1 < len(longest) {
				longest[i+1] = max(longest[i+1], utf8.RuneCountInString(v))
			}
		}
	}

	widths := make([]float64, len(longest))
	for i, n := range longest {
		widths[i] = float64(min(max(n+2, minColWidth), maxColWidth))
	}
	return widths
}

func headerStyle() *xlsx.Style {
	s := xlsx.NewStyle()
	s.Fill = *xlsx.NewFill("solid", headerFill, headerFill)
	s.Font = *xlsx.NewFont(11, "Calibri")
	s.Font.Bold = true
	s.Font.Color = headerFont
	s.Alignment = xlsx.Alignment{Horizontal: "center", Vertical: "center", WrapText: true}
	s.ApplyFill = true
	s.ApplyFont = true
	s.ApplyAlignment = true
	return s
}

func bodyStyle(fill string) *xlsx.Style {
	s := xlsx.NewStyle()
	s.Alignment = xlsx.Alignment{Horizontal: "left", Vertical: "top", WrapText: true}
	s.ApplyAlignment = true
	if fill != "" {
		s.Fill = *xlsx.NewFill("solid", fill, fill)
		s.ApplyFill = true
	}
	return s
}
