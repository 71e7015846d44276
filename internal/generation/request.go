package generation

import (
	"time"

	"github.com/conneroisu/reports/internal/engine"
)

// Request asks for one document.
type Request struct {
	ReportID string
	// Parameters are the caller-supplied values. Strings are converted to the
	// declared parameter type where possible.
	Parameters map[string]interface{}
	// Format is one of pdf, excel, xls, xlsx or html.
	Format string
	// Context supplies values for ${name} tokens in default values that are
	// not standard date expressions.
	Context map[string]string
}

// Result is a generated document. Ownership passes to the caller.
type Result struct {
	RequestID   string
	ReportID    string
	Format      engine.Format
	GeneratedAt time.Time
	Content     []byte
	Pages       int
}

// ContentType returns the MIME type of the content.
func (r *Result) ContentType() string {
	return r.Format.ContentType()
}

// FileName suggests a download name, e.g. "sales_20251121_090000.pdf".
func (r *Result) FileName() string {
	return r.ReportID + "_" + r.GeneratedAt.Format("20060102_150405") + r.Format.Extension()
}
