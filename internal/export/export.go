// Package export writes query results to formatted Excel workbooks.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/koopa0/dash/internal/target"
)

// MaxRows caps exported result size; larger results need a LIMIT.
const MaxRows = 100_000

// formatRules map column-name patterns to Excel number formats. First
// match wins; order is most-specific first.
var formatRules = []struct {
	pattern *regexp.Regexp
	format  string
}{
	{regexp.MustCompile(`(?i)price|cost|revenue|amount|total|balance|acctbal|extendedprice|supplycost`), "$#,##0.00"},
	{regexp.MustCompile(`(?i)pct|percent|rate|ratio|share`), "0.00%"},
	{regexp.MustCompile(`(?i)count|cnt|qty|quantity|num_`), "#,##0"},
	{regexp.MustCompile(`(?i)date|_dt$|_at$`), "YYYY-MM-DD"},
}

// detectFormat picks a number format from the column name, falling
// back to the sample value's type.
func detectFormat(column string, sample any) string {
	for _, rule := range formatRules {
		if rule.pattern.MatchString(column) {
			return rule.format
		}
	}
	switch sample.(type) {
	case float64, float32:
		return "#,##0.00"
	case int, int32, int64:
		return "#,##0"
	default:
		return ""
	}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func fileSlug(title string) string {
	if title == "" {
		title = "export"
	}
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(title), "_"), "_")
	if len(slug) > 60 {
		slug = slug[:60]
	}
	if slug == "" {
		slug = "export"
	}
	return slug
}

// Exporter runs validated queries and writes their results as styled
// workbooks under Dir.
type Exporter struct {
	exec   target.Execer
	dir    string
	logger *slog.Logger

	// now is swapped in tests for deterministic file names.
	now func() time.Time
}

// NewExporter creates an Exporter writing into dir.
func NewExporter(exec target.Execer, dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{exec: exec, dir: dir, logger: logger, now: time.Now}
}

// Export executes query and writes the result to a new workbook,
// returning the file path. Only read-only statements are accepted;
// empty and oversized results are errors, not empty files.
func (e *Exporter) Export(ctx context.Context, query, title, sheet string) (string, error) {
	if err := target.CheckReadOnly(query); err != nil {
		return "", fmt.Errorf("rejecting export query: %w", err)
	}
	if sheet == "" {
		sheet = "Data"
	}

	rs, err := e.exec.Execute(ctx, query)
	if err != nil {
		return "", fmt.Errorf("executing export query: %w", err)
	}
	if rs.Empty() {
		return "", fmt.Errorf("query returned no rows")
	}
	if len(rs.Rows) > MaxRows {
		return "", fmt.Errorf("result has %d rows (max %d); add a LIMIT clause", len(rs.Rows), MaxRows)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.xlsx", fileSlug(title), e.now().Format("20060102_150405"))
	path := filepath.Join(e.dir, name)

	if err := e.writeWorkbook(rs, path, title, sheet); err != nil {
		return "", fmt.Errorf("writing workbook: %w", err)
	}

	e.logger.Info("exported query result",
		"rows", len(rs.Rows), "columns", len(rs.Columns), "path", path)
	return path, nil
}

func (e *Exporter) writeWorkbook(rs *target.ResultSet, path, title, sheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headerRow := 1
	if title != "" {
		headerRow = 3
	}
	dataStart := headerRow + 1
	lastCol, err := excelize.ColumnNumberToName(len(rs.Columns))
	if err != nil {
		return err
	}

	if title != "" {
		if err := e.writeTitle(f, sheet, title, lastCol, len(rs.Rows)); err != nil {
			return err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"366092"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Style: 1, Color: "000000"},
			{Type: "right", Style: 1, Color: "000000"},
			{Type: "top", Style: 1, Color: "000000"},
			{Type: "bottom", Style: 1, Color: "000000"},
		},
	})
	if err != nil {
		return err
	}

	for i, col := range rs.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, headerRow)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", headerRow), fmt.Sprintf("%s%d", lastCol, headerRow), headerStyle); err != nil {
		return err
	}

	if err := e.writeData(f, sheet, rs, dataStart); err != nil {
		return err
	}

	// Freeze everything above the data and filter on the header row.
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: fmt.Sprintf("A%d", dataStart),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	filterRange := fmt.Sprintf("A%d:%s%d", headerRow, lastCol, headerRow+len(rs.Rows))
	if err := f.AutoFilter(sheet, filterRange, nil); err != nil {
		return err
	}

	return f.SaveAs(path)
}

func (e *Exporter) writeTitle(f *excelize.File, sheet, title, lastCol string, rows int) error {
	titleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14, Color: "366092"},
		Border: []excelize.Border{
			{Type: "bottom", Style: 2, Color: "366092"},
		},
	})
	if err != nil {
		return err
	}
	subtitleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Italic: true, Size: 9, Color: "808080"},
	})
	if err != nil {
		return err
	}

	if lastCol != "A" {
		if err := f.MergeCell(sheet, "A1", lastCol+"1"); err != nil {
			return err
		}
		if err := f.MergeCell(sheet, "A2", lastCol+"2"); err != nil {
			return err
		}
	}
	if err := f.SetCellValue(sheet, "A1", title); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", titleStyle); err != nil {
		return err
	}

	generated := fmt.Sprintf("Generated %s  |  %d rows", e.now().Format("2006-01-02 15:04"), rows)
	if err := f.SetCellValue(sheet, "A2", generated); err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A2", lastCol+"2", subtitleStyle)
}

func (e *Exporter) writeData(f *excelize.File, sheet string, rs *target.ResultSet, dataStart int) error {
	stripeFill := excelize.Fill{Type: "pattern", Color: []string{"F2F2F2"}, Pattern: 1}

	for colIdx, colName := range rs.Columns {
		format := detectFormat(colName, rs.Rows[0][colIdx])

		plain := excelize.Style{}
		stripe := excelize.Style{Fill: stripeFill}
		if format != "" {
			plain.CustomNumFmt = &format
			stripe.CustomNumFmt = &format
		}
		plainStyle, err := f.NewStyle(&plain)
		if err != nil {
			return err
		}
		stripeStyle, err := f.NewStyle(&stripe)
		if err != nil {
			return err
		}

		width := len(colName) + 2
		for rowIdx, row := range rs.Rows {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, dataStart+rowIdx)
			if err != nil {
				return err
			}
			value := row[colIdx]
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
			style := plainStyle
			if rowIdx%2 == 1 {
				style = stripeStyle
			}
			if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
				return err
			}
			if n := len(fmt.Sprint(value)) + 2; n > width {
				width = n
			}
		}

		colLetter, err := excelize.ColumnNumberToName(colIdx + 1)
		if err != nil {
			return err
		}
		if width > 60 {
			width = 60
		}
		if err := f.SetColWidth(sheet, colLetter, colLetter, float64(width)); err != nil {
			return err
		}
	}
	return nil
}
