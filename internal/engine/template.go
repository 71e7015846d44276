package engine

import (
	"fmt"
	"strings"
	"text/template"

	reporterrors "github.com/conneroisu/reports/internal/errors"
)

// Band identifies a section of a report layout.
type Band string

const (
	BandTitle        Band = "title"
	BandPageHeader   Band = "pageHeader"
	BandColumnHeader Band = "columnHeader"
	BandDetail       Band = "detail"
	BandColumnFooter Band = "columnFooter"
	BandPageFooter   Band = "pageFooter"
	BandSummary      Band = "summary"
)

// Parameter is a declared template parameter.
type Parameter struct {
	Name    string
	Class   string
	Default string
}

// Template is an executable, immutable template. It is safe for concurrent
// fills.
type Template struct {
	def    Definition
	query  *template.Template
	bands  map[Band][]compiledRow
	params []Parameter
}

type compiledRow struct {
	cells []compiledCell
}

type compiledCell struct {
	def  CellDef
	expr *template.Template
}

// Compile parses a YAML template source into an executable template.
func Compile(source []byte) (*Template, error) {
	def, err := ParseDefinition(source)
	if err != nil {
		return nil, err
	}

	return build(def)
}

// build validates def and parses every expression it contains.
func build(def *Definition) (*Template, error) {
	def.normalize()
	if err := def.validate(); err != nil {
		return nil, reporterrors.NewCompileError(reporterrors.CodeTemplateSyntax, "invalid template "+quoteName(def.Name), err)
	}

	t := &Template{
		def:    *def,
		bands:  make(map[Band][]compiledRow),
		params: make([]Parameter, 0, len(def.Parameters)),
	}

	for _, p := range def.Parameters {
		t.params = append(t.params, Parameter(p))
	}

	if strings.TrimSpace(def.Query) != "" {
		q, err := template.New("query").Funcs(queryFuncs()).Parse(def.Query)
		if err != nil {
			return nil, reporterrors.NewCompileError(reporterrors.CodeTemplateSyntax, "invalid query in template "+quoteName(def.Name), err)
		}
		t.query = q
	}

	for _, band := range def.Bands.all() {
		rows := make([]compiledRow, 0, len(band.rows))
		for r, row := range band.rows {
			cr := compiledRow{cells: make([]compiledCell, 0, len(row.Cells))}
			for c, cell := range row.Cells {
				cc := compiledCell{def: cell}
				if cell.Text != "" {
					name := fmt.Sprintf("%s/%d/%d", band.band, r, c)
					expr, err := template.New(name).Funcs(cellFuncs()).Parse(cell.Text)
					if err != nil {
						return nil, reporterrors.NewCompileError(reporterrors.CodeTemplateSyntax,
							fmt.Sprintf("invalid expression in template %s", quoteName(def.Name)), err)
					}
					cc.expr = expr
				}
				cr.cells = append(cr.cells, cc)
			}
			rows = append(rows, cr)
		}
		t.bands[band.band] = rows
	}

	return t, nil
}

// Name returns the declared template name.
func (t *Template) Name() string {
	return t.def.Name
}

// Parameters returns the declared parameters in declaration order.
func (t *Template) Parameters() []Parameter {
	out := make([]Parameter, len(t.params))
	copy(out, t.params)

	return out
}

// ParameterNames returns the declared parameter names in declaration order.
func (t *Template) ParameterNames() []string {
	names := make([]string, len(t.params))
	for i, p := range t.params {
		names[i] = p.Name
	}

	return names
}

// Definition returns a copy of the normalized definition.
func (t *Template) Definition() Definition {
	return t.def
}

// HasQuery reports whether the template reads data from a connection.
func (t *Template) HasQuery() bool {
	return t.query != nil
}

// Subreports returns the names of templates embedded by subreport cells.
func (t *Template) Subreports() []string {
	var names []string
	seen := make(map[string]bool)
	for _, band := range t.def.Bands.all() {
		for _, row := range band.rows {
			for _, cell := range row.Cells {
				if cell.Subreport != "" && !seen[cell.Subreport] {
					seen[cell.Subreport] = true
					names = append(names, cell.Subreport)
				}
			}
		}
	}

	return names
}

func quoteName(name string) string {
	if name == "" {
		return "<unnamed>"
	}

	return fmt.Sprintf("%q", name)
}
