package xlsx

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docextract/internal/core/domain"
)

const (
	fieldsSheet  = "Fields"
	summarySheet = "Summary"
)

var fieldHeaders = []string{
	"Field",
	"Value",
	"Raw Value",
	"Confidence",
	"Status",
	"Method",
	"Page",
	"Evidence",
	"Validation Errors",
}

// Export renders one extraction result as a workbook. Fields follow the config order
// when order is given; anything not listed is appended alphabetically.
func Export(result *domain.ExtractionResult, order []string) ([]byte, error) {
	if result == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "export xlsx", fmt.Errorf("result is nil"))
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", fieldsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}

	if err := writeFields(f, result, order); err != nil {
		return nil, err
	}
	if err := writeSummary(f, result); err != nil {
		return nil, err
	}

	index, _ := f.GetSheetIndex(fieldsSheet)
	f.SetActiveSheet(index)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFields(f *excelize.File, result *domain.ExtractionResult, order []string) error {
	for i, h := range fieldHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(fieldsSheet, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	_ = f.SetRowStyle(fieldsSheet, 1, 1, header)

	row := 2
	for _, name := range orderedFieldNames(result.Fields, order) {
		fr := result.Fields[name]
		page := ""
		if fr.SourceLocation != nil {
			page = fmt.Sprint(fr.SourceLocation.Page)
		}
		evidence := ""
		if fr.Evidence != nil {
			evidence = fr.Evidence.Snippet
		}
		values := []any{
			name,
			cellValue(fr.Value),
			fr.RawValue,
			fr.Confidence,
			string(fr.Status),
			string(fr.Method),
			page,
			evidence,
			strings.Join(fr.ValidationErrors, "; "),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(fieldsSheet, cell, v); err != nil {
				return fmt.Errorf("write field %s: %w", name, err)
			}
		}
		row++
	}

	_ = f.SetColWidth(fieldsSheet, "A", "A", 20)
	_ = f.SetColWidth(fieldsSheet, "B", "C", 28)
	_ = f.SetColWidth(fieldsSheet, "D", "G", 12)
	_ = f.SetColWidth(fieldsSheet, "H", "I", 48)
	return nil
}

func writeSummary(f *excelize.File, result *domain.ExtractionResult) error {
	s := result.ValidationSummary
	rows := [][2]any{
		{"Document ID", result.DocumentID},
		{"Job ID", result.JobID},
		{"Document Type", result.DocumentType},
		{"Supplier ID", result.SupplierID},
		{"Required Present", s.RequiredPresent},
		{"Required Missing", strings.Join(s.RequiredMissing, ", ")},
		{"Cross-field Errors", strings.Join(s.CrossFieldErrors, "; ")},
		{"Overall Confidence", s.OverallConfidence},
	}
	for i, r := range rows {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &[]any{r[0], r[1]}); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 22)
	_ = f.SetColWidth(summarySheet, "B", "B", 48)
	return nil
}

func orderedFieldNames(fields map[string]domain.FieldResult, order []string) []string {
	names := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, name := range order {
		if _, ok := fields[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	rest := make([]string, 0)
	for name := range fields {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, float64, int, bool:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Renderer adapts Export to ports.SpreadsheetRenderer.
type Renderer struct{}

func (Renderer) Render(result *domain.ExtractionResult, fieldOrder []string) ([]byte, error) {
	return Export(result, fieldOrder)
}
