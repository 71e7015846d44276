package generation

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/reports/internal/engine"
	"github.com/conneroisu/reports/internal/types"
)

// DefaultSchemaName is injected as SCHEMA_NAME when no schema is configured.
const DefaultSchemaName = "ags"

// mergeParameters builds the fill parameters: supplied values, then declared
// defaults for the unsupplied ones in declaration order, then SCHEMA_NAME,
// then SUBREPORT_DIR (the local template cache) unless supplied. Dates are
// passed as ISO strings.
func (s *Service) mergeParameters(ctx context.Context, schema []types.ReportParameter, supplied map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(supplied)+len(schema)+2)
	for k, v := range supplied {
		out[k] = v
	}

	for _, p := range schema {
		if _, ok := out[p.Name]; ok || !p.HasDefault() {
			continue
		}
		out[p.Name] = convert(*p.DefaultValue, p.Type.Canonical())
	}

	out[engine.ParamSchemaName] = s.schemaName(ctx)

	for k, v := range out {
		if d, ok := v.(time.Time); ok {
			out[k] = d.Format(engine.DateLayout)
		}
	}

	if _, ok := out[engine.ParamSubreportDir]; !ok {
		out[engine.ParamSubreportDir] = subreportDir(s.cacheDir)
	}

	return out
}

func (s *Service) schemaName(ctx context.Context) string {
	if s.schema == nil {
		return DefaultSchemaName
	}

	name, err := s.schema.Schema(ctx)
	if err != nil || strings.TrimSpace(name) == "" {
		s.logger.Debug(ctx, "using default schema name", "schema", DefaultSchemaName)
		return DefaultSchemaName
	}

	return name
}

func subreportDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	return dir + string(filepath.Separator)
}
