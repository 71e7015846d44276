package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	reporterrors "github.com/conneroisu/reports/internal/errors"
)

// Format is an export format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

// ParseFormat maps a requested format name onto a Format. "excel", "xls" and
// "xlsx" all select the spreadsheet exporter.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pdf":
		return FormatPDF, nil
	case "excel", "xls", "xlsx":
		return FormatXLSX, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", reporterrors.NewValidationError(reporterrors.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported format: %s", name))
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension of the format, dot included.
func (f Format) Extension() string {
	switch f {
	case FormatPDF:
		return ".pdf"
	case FormatXLSX:
		return ".xlsx"
	case FormatHTML:
		return ".html"
	default:
		return ""
	}
}

// Exporter writes a document in one format.
type Exporter interface {
	Export(ctx context.Context, w io.Writer, doc *Document) error
}

var exporters = map[Format]Exporter{
	FormatPDF:  pdfExporter{},
	FormatXLSX: xlsxExporter{},
	FormatHTML: htmlExporter{},
}

// Export renders doc in the given format.
func Export(ctx context.Context, doc *Document, format Format) ([]byte, error) {
	exp, ok := exporters[format]
	if !ok {
		return nil, reporterrors.NewValidationError(reporterrors.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported format: %s", format))
	}

	var buf bytes.Buffer
	if err := exp.Export(ctx, &buf, doc); err != nil {
		return nil, fmt.Errorf("failed to export %s as %s: %w", quoteName(doc.Name), format, err)
	}

	return buf.Bytes(), nil
}

// cellWidths spreads the available width over cells without an explicit
// width.
func cellWidths(cells []Cell, available float64) []float64 {
	widths := make([]float64, len(cells))
	fixed := 0.0
	auto := 0
	for _, c := range cells {
		if c.Width > 0 {
			fixed += c.Width
		} else {
			auto++
		}
	}

	share := 0.0
	if auto > 0 && available > fixed {
		share = (available - fixed) / float64(auto)
	}

	for i, c := range cells {
		if c.Width > 0 {
			widths[i] = c.Width
		} else {
			widths[i] = share
		}
	}

	return widths
}
