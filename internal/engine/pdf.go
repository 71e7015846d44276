package engine

import (
	"context"
	_ "embed"
	"io"

	"github.com/go-pdf/fpdf"
)

const (
	pdfMargin     = 36.0
	pdfLineHeight = 14.0
	pdfFontSize   = 9.0
)

// pdfFontFamily is a Unicode TrueType face, so text outside Latin-1
// (Cyrillic in particular) renders as written.
const pdfFontFamily = "DejaVuSansCondensed"

var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	pdfFontRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	pdfFontBold []byte
)

type pdfExporter struct{}

func (pdfExporter) Export(ctx context.Context, w io.Writer, doc *Document) error {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: doc.PageWidth, Ht: doc.PageHeight},
	})
	pdf.SetTitle(doc.Name, true)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.AddUTF8FontFromBytes(pdfFontFamily, "", pdfFontRegular)
	pdf.AddUTF8FontFromBytes(pdfFontFamily, "B", pdfFontBold)

	available := doc.PageWidth - 2*pdfMargin

	pages := doc.Pages
	if len(pages) == 0 {
		pages = []Page{{Number: 1}}
	}

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}

		pdf.AddPage()
		for _, row := range page.Rows {
			widths := cellWidths(row.Cells, available)
			for i, cell := range row.Cells {
				style := ""
				if cell.Bold {
					style = "B"
				}
				pdf.SetFont(pdfFontFamily, style, pdfFontSize)
				pdf.CellFormat(widths[i], pdfLineHeight, cell.Text, "", 0, pdfAlign(cell.Align), false, 0, "")
			}
			pdf.Ln(pdfLineHeight)
		}
	}

	if err := pdf.Error(); err != nil {
		return err
	}

	return pdf.Output(w)
}

func pdfAlign(align string) string {
	switch align {
	case "center":
		return "CM"
	case "right":
		return "RM"
	default:
		return "LM"
	}
}
