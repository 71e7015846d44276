package engine

import (
	"context"
	"io"
	"strconv"
)

//go:generate templ generate -f report.templ

type htmlExporter struct{}

func (htmlExporter) Export(ctx context.Context, w io.Writer, doc *Document) error {
	return documentPage(doc).Render(ctx, w)
}

// cellStyle maps the layout of a cell onto inline CSS properties.
func cellStyle(cell Cell) map[string]string {
	style := make(map[string]string, 3)
	if cell.Align != "" {
		style["text-align"] = cell.Align
	}
	if cell.Bold {
		style["font-weight"] = "bold"
	}
	if cell.Width > 0 {
		style["width"] = strconv.FormatFloat(cell.Width, 'f', 0, 64) + "pt"
	}

	return style
}
