package engine

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	reporterrors "github.com/conneroisu/reports/internal/errors"
)

// Built-in parameter and variable names.
const (
	ParamSubreportDir = "SUBREPORT_DIR"
	ParamSchemaName   = "SCHEMA_NAME"

	VarPageNumber  = "PAGE_NUMBER"
	VarTotalPages  = "TOTAL_PAGES"
	VarReportCount = "REPORT_COUNT"
)

const maxSubreportDepth = 8

// Queryer runs the template query. *sqlx.DB and *sqlx.Conn satisfy it.
type Queryer interface {
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	Rebind(query string) string
}

// TemplateLoader resolves subreport templates.
type TemplateLoader interface {
	Compile(path string) (*Template, error)
}

// Filler fills templates into documents.
type Filler struct {
	loader TemplateLoader
}

// NewFiller creates a filler. loader may be nil when no template embeds
// subreports.
func NewFiller(loader TemplateLoader) *Filler {
	return &Filler{loader: loader}
}

type scope struct {
	P map[string]interface{}
	F map[string]interface{}
	V map[string]interface{}
}

// Fill evaluates t against params and the rows returned by q. Templates
// without a query are filled with a single empty record and q may be nil.
func (f *Filler) Fill(ctx context.Context, t *Template, params map[string]interface{}, q Queryer) (*Document, error) {
	return f.fill(ctx, t, params, q, 0)
}

func (f *Filler) fill(ctx context.Context, t *Template, params map[string]interface{}, q Queryer, depth int) (*Document, error) {
	if depth > maxSubreportDepth {
		return nil, fmt.Errorf("subreport nesting deeper than %d in %s", maxSubreportDepth, quoteName(t.def.Name))
	}

	p := t.bindParameters(params)

	records, err := t.records(ctx, p, q)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Name:       t.def.Name,
		PageWidth:  t.def.PageWidth,
		PageHeight: t.def.PageHeight,
	}

	per := t.def.RowsPerPage
	total := (len(records) + per - 1) / per
	if total == 0 {
		total = 1
	}

	count := 0
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := (n - 1) * per
		end := start + per
		if end > len(records) {
			end = len(records)
		}
		if start > end {
			start = end
		}
		pageRecords := records[start:end]

		vars := func() map[string]interface{} {
			return map[string]interface{}{VarPageNumber: n, VarTotalPages: total, VarReportCount: count}
		}
		current := map[string]interface{}{}
		if len(pageRecords) > 0 {
			current = pageRecords[0]
		}

		page := Page{Number: n}
		emit := func(band Band, record map[string]interface{}) error {
			rows, err := f.evalBand(ctx, t, band, scope{P: p, F: record, V: vars()}, q, depth)
			if err != nil {
				return err
			}
			page.Rows = append(page.Rows, rows...)
			return nil
		}

		if n == 1 {
			if err := emit(BandTitle, current); err != nil {
				return nil, err
			}
		}
		if err := emit(BandPageHeader, current); err != nil {
			return nil, err
		}
		if err := emit(BandColumnHeader, current); err != nil {
			return nil, err
		}
		for _, record := range pageRecords {
			count++
			current = record
			if err := emit(BandDetail, record); err != nil {
				return nil, err
			}
		}
		if err := emit(BandColumnFooter, current); err != nil {
			return nil, err
		}
		if n == total {
			if err := emit(BandSummary, current); err != nil {
				return nil, err
			}
		}
		if err := emit(BandPageFooter, current); err != nil {
			return nil, err
		}

		doc.Pages = append(doc.Pages, page)
	}

	return doc, nil
}

// bindParameters merges declared defaults with supplied values, converting
// textual values of typed parameters where possible.
func (t *Template) bindParameters(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+len(t.params))
	for k, v := range params {
		out[k] = v
	}

	for _, p := range t.params {
		v, ok := out[p.Name]
		if !ok || v == nil {
			if p.Default == "" {
				continue
			}
			if conv, err := coerce(p.Class, p.Default); err == nil {
				out[p.Name] = conv
			}
			continue
		}
		if s, isString := v.(string); isString && !strings.EqualFold(p.Class, "string") {
			if conv, err := coerce(p.Class, s); err == nil {
				out[p.Name] = conv
			}
		}
	}

	return out
}

func (t *Template) records(ctx context.Context, params map[string]interface{}, q Queryer) ([]map[string]interface{}, error) {
	if t.query == nil {
		return []map[string]interface{}{{}}, nil
	}

	if q == nil {
		return nil, reporterrors.NewNotConfiguredError(reporterrors.CodeConnectionUnavailable,
			fmt.Sprintf("template %s needs a data connection", quoteName(t.def.Name)))
	}

	query, args, err := t.renderQuery(params)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryxContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query failed for %s: %w", quoteName(t.def.Name), err)
	}
	defer rows.Close()

	var records []map[string]interface{}
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record := make(map[string]interface{})
		if err := rows.MapScan(record); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for k, v := range record {
			if b, ok := v.([]byte); ok {
				record[k] = string(b)
			}
		}
		for _, field := range t.def.Fields {
			if _, ok := record[field.Name]; !ok {
				record[field.Name] = nil
			}
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return records, nil
}

// renderQuery executes the query template. {{param "x"}} emits a bind
// placeholder; {{.P.x}} inlines the value.
func (t *Template) renderQuery(params map[string]interface{}) (string, []interface{}, error) {
	var args []interface{}

	q, err := t.query.Clone()
	if err != nil {
		return "", nil, err
	}
	q.Funcs(map[string]interface{}{
		"param": func(name string) (string, error) {
			v, ok := params[name]
			if !ok {
				return "", fmt.Errorf("unknown parameter %q", name)
			}
			args = append(args, v)
			return "?", nil
		},
	})

	var buf bytes.Buffer
	if err := q.Execute(&buf, scope{P: params}); err != nil {
		return "", nil, fmt.Errorf("failed to render query for %s: %w", quoteName(t.def.Name), err)
	}

	return strings.TrimSpace(buf.String()), args, nil
}

func (f *Filler) evalBand(ctx context.Context, t *Template, band Band, s scope, q Queryer, depth int) ([]Row, error) {
	var out []Row
	for _, row := range t.bands[band] {
		r := Row{Band: band}
		var subreports []string

		for _, cell := range row.cells {
			if cell.def.Subreport != "" {
				subreports = append(subreports, cell.def.Subreport)
				continue
			}

			text := ""
			if cell.expr != nil {
				var buf bytes.Buffer
				if err := cell.expr.Execute(&buf, s); err != nil {
					return nil, fmt.Errorf("failed to evaluate %s: %w", cell.expr.Name(), err)
				}
				text = strings.ReplaceAll(buf.String(), noValue, "")
			}
			r.Cells = append(r.Cells, Cell{
				Text:  text,
				Width: cell.def.Width,
				Align: strings.ToLower(cell.def.Align),
				Bold:  cell.def.Bold,
			})
		}

		if len(r.Cells) > 0 {
			out = append(out, r)
		}

		for _, name := range subreports {
			rows, err := f.subreport(ctx, name, s.P, q, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, rows...)
		}
	}

	return out, nil
}

// subreport fills the named template and returns its rows, page headers and
// footers excluded.
func (f *Filler) subreport(ctx context.Context, name string, params map[string]interface{}, q Queryer, depth int) ([]Row, error) {
	if f.loader == nil {
		return nil, reporterrors.NewNotConfiguredError(reporterrors.CodeTemplateNotFound,
			fmt.Sprintf("no template loader for subreport %q", name))
	}

	dir, _ := params[ParamSubreportDir].(string)
	path := name
	if !filepath.IsAbs(name) {
		path = filepath.Join(dir, name)
	}

	child, err := f.loader.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load subreport %q: %w", name, err)
	}

	doc, err := f.fill(ctx, child, params, q, depth+1)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, r := range doc.Rows() {
		if r.Band == BandPageHeader || r.Band == BandPageFooter {
			continue
		}
		rows = append(rows, r)
	}

	return rows, nil
}
