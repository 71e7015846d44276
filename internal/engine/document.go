package engine

import "strings"

// Document is a filled report ready for export.
type Document struct {
	Name       string
	PageWidth  float64
	PageHeight float64
	Pages      []Page
}

// Page is one output page.
type Page struct {
	Number int
	Rows   []Row
}

// Row is one rendered row of a band.
type Row struct {
	Band  Band
	Cells []Cell
}

// Cell is one rendered cell.
type Cell struct {
	Text  string
	Width float64
	Align string
	Bold  bool
}

// IsBlank reports whether every cell of the row is empty.
func (r Row) IsBlank() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c.Text) != "" {
			return false
		}
	}

	return true
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// FirstPage returns a copy of the document truncated to its first page.
func (d *Document) FirstPage() *Document {
	out := &Document{
		Name:       d.Name,
		PageWidth:  d.PageWidth,
		PageHeight: d.PageHeight,
	}
	if len(d.Pages) > 0 {
		out.Pages = []Page{d.Pages[0]}
	}

	return out
}

// Rows returns every row of every page in order.
func (d *Document) Rows() []Row {
	var rows []Row
	for _, p := range d.Pages {
		rows = append(rows, p.Rows...)
	}

	return rows
}
