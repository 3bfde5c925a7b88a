package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/tjfontaine/formflow/internal/schema"
)

const (
	resultsSheet = "Results"
	fieldsSheet  = "Fields"
)

// WriteXLSX writes rows as a workbook: one Results sheet with a column per
// schema field, and a Fields sheet describing each column.
func WriteXLSX(w io.Writer, s *schema.Schema, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(fieldsSheet); err != nil {
		return err
	}

	fields := s.Fields()
	headers := []any{"line", "utterance", "status"}
	for _, fd := range fields {
		headers = append(headers, fd.Name)
	}
	headers = append(headers, "error_code", "message")
	if err := writeRow(f, resultsSheet, 1, headers); err != nil {
		return err
	}

	for i, r := range rows {
		values := []any{r.Line, r.Utterance, string(r.Result.Status)}
		for _, fd := range fields {
			values = append(values, cellValue(fd, r.Result.Record[fd.Name]))
		}
		values = append(values, string(r.Result.ErrorCode), r.Result.Message)
		if err := writeRow(f, resultsSheet, i+2, values); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(resultsSheet, "B", "B", 48)
	if err := f.SetPanes(resultsSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return err
	}

	if err := writeFieldsSheet(f, fields); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeFieldsSheet(f *excelize.File, fields []schema.Field) error {
	if err := writeRow(f, fieldsSheet, 1, []any{"field", "kind", "required", "description"}); err != nil {
		return err
	}
	for i, fd := range fields {
		row := []any{fd.Name, string(fd.Kind), fd.Required.String(), fd.Description}
		if err := writeRow(f, fieldsSheet, i+2, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(fieldsSheet, "A", "A", 22)
	_ = f.SetColWidth(fieldsSheet, "D", "D", 40)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// cellValue renders enum values with their label, e.g. "7 一般隐患".
func cellValue(fd schema.Field, v any) any {
	if v == nil {
		return ""
	}
	if fd.Kind == schema.KindEnum {
		if label := fd.Label(v); label != "" {
			return fmt.Sprintf("%v %s", v, label)
		}
	}
	return v
}
