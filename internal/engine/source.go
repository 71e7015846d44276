// Package engine implements the report template engine: parsing template
// sources, compiling them into executable templates, filling them with
// parameters and query results, and exporting the resulting documents.
//
// Template sources (.rpt) are YAML documents. A source declares page
// geometry, typed parameters, an optional SQL query and a set of bands. Each
// band is a list of rows of cells whose text is a text/template expression
// evaluated against the parameters (.P), the current record (.F) and the
// built-in variables (.V).
//
// Precompiled templates (.rptc) store the normalized definition in a msgpack
// envelope so they can be loaded without re-reading the YAML source.
package engine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	reporterrors "github.com/conneroisu/reports/internal/errors"
)

// File extensions recognised by the engine.
const (
	SourceExt   = ".rpt"
	CompiledExt = ".rptc"
)

// Page geometry defaults (A4 portrait, points).
const (
	DefaultPageWidth   = 595
	DefaultPageHeight  = 842
	DefaultRowsPerPage = 40
)

// Definition is the declarative content of a template source.
type Definition struct {
	Name        string         `yaml:"name" msgpack:"name"`
	PageWidth   float64        `yaml:"pageWidth,omitempty" msgpack:"pageWidth"`
	PageHeight  float64        `yaml:"pageHeight,omitempty" msgpack:"pageHeight"`
	RowsPerPage int            `yaml:"rowsPerPage,omitempty" msgpack:"rowsPerPage"`
	Parameters  []ParameterDef `yaml:"parameters,omitempty" msgpack:"parameters"`
	Query       string         `yaml:"query,omitempty" msgpack:"query"`
	Fields      []FieldDef     `yaml:"fields,omitempty" msgpack:"fields"`
	Bands       Bands          `yaml:"bands,omitempty" msgpack:"bands"`
}

// ParameterDef declares a template parameter.
type ParameterDef struct {
	Name    string `yaml:"name" msgpack:"name"`
	Class   string `yaml:"class,omitempty" msgpack:"class"`
	Default string `yaml:"default,omitempty" msgpack:"default"`
}

// FieldDef declares a column produced by the query.
type FieldDef struct {
	Name  string `yaml:"name" msgpack:"name"`
	Class string `yaml:"class,omitempty" msgpack:"class"`
}

// Bands groups the rows of every band.
type Bands struct {
	Title        []RowDef `yaml:"title,omitempty" msgpack:"title"`
	PageHeader   []RowDef `yaml:"pageHeader,omitempty" msgpack:"pageHeader"`
	ColumnHeader []RowDef `yaml:"columnHeader,omitempty" msgpack:"columnHeader"`
	Detail       []RowDef `yaml:"detail,omitempty" msgpack:"detail"`
	ColumnFooter []RowDef `yaml:"columnFooter,omitempty" msgpack:"columnFooter"`
	PageFooter   []RowDef `yaml:"pageFooter,omitempty" msgpack:"pageFooter"`
	Summary      []RowDef `yaml:"summary,omitempty" msgpack:"summary"`
}

// RowDef is one row of cells.
type RowDef struct {
	Cells []CellDef `yaml:"cells" msgpack:"cells"`
}

// CellDef is one cell. A cell either renders Text or embeds the rows of
// another template named by Subreport.
type CellDef struct {
	Text      string  `yaml:"text,omitempty" msgpack:"text"`
	Width     float64 `yaml:"width,omitempty" msgpack:"width"`
	Align     string  `yaml:"align,omitempty" msgpack:"align"`
	Bold      bool    `yaml:"bold,omitempty" msgpack:"bold"`
	Subreport string  `yaml:"subreport,omitempty" msgpack:"subreport"`
}

// ParseDefinition decodes a YAML template source. Unknown keys are rejected.
func ParseDefinition(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, reporterrors.NewCompileError(reporterrors.CodeTemplateSyntax, "invalid template source", err)
	}

	return &def, nil
}

// MarshalDefinition encodes def as a YAML template source.
func MarshalDefinition(def *Definition) ([]byte, error) {
	return yaml.Marshal(def)
}

// ReadDefinition reads a template file, source or precompiled, and returns
// its definition without compiling expressions.
func ReadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, reporterrors.NewIOError(reporterrors.CodeTemplateRead, "failed to read template", err).WithFile(path)
	}

	if IsCompiled(path) {
		return decodeEnvelope(data)
	}

	return ParseDefinition(data)
}

// IsTemplateFile reports whether path has a template extension.
func IsTemplateFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == SourceExt || ext == CompiledExt
}

// IsCompiled reports whether path names a precompiled template.
func IsCompiled(path string) bool {
	return strings.EqualFold(filepath.Ext(path), CompiledExt)
}

// BaseName returns the file name of path without its extension.
func BaseName(path string) string {
	name := filepath.Base(path)
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}

	return name
}

func (d *Definition) normalize() {
	if d.PageWidth <= 0 {
		d.PageWidth = DefaultPageWidth
	}
	if d.PageHeight <= 0 {
		d.PageHeight = DefaultPageHeight
	}
	if d.RowsPerPage <= 0 {
		d.RowsPerPage = DefaultRowsPerPage
	}
	for i := range d.Parameters {
		if d.Parameters[i].Class == "" {
			d.Parameters[i].Class = "string"
		}
	}
}

func (d *Definition) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("template name is required")
	}

	seen := make(map[string]bool, len(d.Parameters))
	for i, p := range d.Parameters {
		if p.Name == "" {
			return fmt.Errorf("parameter %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true

		if !knownClass(p.Class) {
			return fmt.Errorf("parameter %q: unknown class %q", p.Name, p.Class)
		}
		if p.Default != "" {
			if _, err := coerce(p.Class, p.Default); err != nil {
				return fmt.Errorf("parameter %q: invalid default: %w", p.Name, err)
			}
		}
	}

	fields := make(map[string]bool, len(d.Fields))
	for i, f := range d.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if fields[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		fields[f.Name] = true
	}

	for _, band := range d.Bands.all() {
		for r, row := range band.rows {
			for c, cell := range row.Cells {
				if cell.Text != "" && cell.Subreport != "" {
					return fmt.Errorf("%s row %d cell %d: text and subreport are exclusive", band.band, r, c)
				}
				if cell.Width < 0 {
					return fmt.Errorf("%s row %d cell %d: negative width", band.band, r, c)
				}
				switch strings.ToLower(cell.Align) {
				case "", "left", "center", "right":
				default:
					return fmt.Errorf("%s row %d cell %d: unknown alignment %q", band.band, r, c, cell.Align)
				}
			}
		}
	}

	return nil
}

type bandRows struct {
	band Band
	rows []RowDef
}

func (b Bands) all() []bandRows {
	return []bandRows{
		{BandTitle, b.Title},
		{BandPageHeader, b.PageHeader},
		{BandColumnHeader, b.ColumnHeader},
		{BandDetail, b.Detail},
		{BandColumnFooter, b.ColumnFooter},
		{BandPageFooter, b.PageFooter},
		{BandSummary, b.Summary},
	}
}
