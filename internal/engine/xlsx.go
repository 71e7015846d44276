package engine

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

type xlsxExporter struct{}

// Export writes every page onto a single sheet and drops blank rows.
func (xlsxExporter) Export(ctx context.Context, w io.Writer, doc *Document) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(doc.Name)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	line := 0
	for _, row := range doc.Rows() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if row.IsBlank() {
			continue
		}

		line++
		for i, cell := range row.Cells {
			ref, err := excelize.CoordinatesToCellName(i+1, line)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, ref, cellValue(cell.Text)); err != nil {
				return err
			}
			if cell.Bold {
				if err := f.SetCellStyle(sheet, ref, ref, bold); err != nil {
					return err
				}
			}
		}
	}

	return f.Write(w)
}

// cellValue stores numeric text as numbers.
func cellValue(text string) interface{} {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return n
	}

	return text
}

func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))

	if name == "" {
		return "Report"
	}

	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}

	return name
}
