package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reporterrors "github.com/conneroisu/reports/internal/errors"
	"github.com/conneroisu/reports/internal/logging"
	"github.com/conneroisu/reports/internal/types"
)

var fixedNow = time.Date(2025, time.November, 21, 9, 0, 0, 0, time.UTC)

func newTestLoader() *Loader {
	return NewLoader(logging.NewNop(), WithClock(func() time.Time { return fixedNow }))
}

const fullMetadata = `{
  "report": {
    "id": "contractor-summary",
    "name": "Contractor summary",
    "description": "Totals per contractor",
    "category": "finance",
    "author": "reports team",
    "tags": ["finance", 42, "quarterly"],
    "files": {"template": "contractor-summary.rpt", "thumbnail": "thumb.png"},
    "parameters": [
      {"name": "from", "type": "date", "required": true, "defaultValue": "${firstDayOfQuarter}"},
      {"name": "to", "type": "date", "defaultValue": "${lastDayOfQuarter}",
       "validation": {"minDate": "2020-01-01", "maxDate": "2030-12-31"}},
      {"name": "limit", "type": "integer", "label": "Row limit",
       "validation": {"min": 1, "max": "100", "pattern": ""}},
      {"name": "status", "type": "string",
       "options": [{"value": "open", "label": "Open"}, {"value": "closed"}]},
      {"name": "contractor", "type": "long", "defaultValue": "${contractorId}",
       "source": {"type": "api", "endpoint": "/api/contractors", "valueField": "id", "labelField": "name"}},
      {"type": "string"},
      {"name": "orphan"}
    ],
    "uiIntegration": {
      "showInReportsList": false,
      "contextMenus": [
        {"component": "ContractorList", "label": "Summary", "icon": "report",
         "parameterMapping": {"contractor": "row.id"}}
      ]
    }
  }
}`

func TestLoadJSONFull(t *testing.T) {
	md, err := newTestLoader().LoadJSON([]byte(fullMetadata), "test.json")
	require.NoError(t, err)

	assert.Equal(t, "contractor-summary", md.ID)
	assert.Equal(t, "1.0.0", md.Version)
	assert.Equal(t, "user", md.AccessLevel)
	assert.Equal(t, "finance", md.Category)
	assert.Equal(t, []string{"finance", "quarterly"}, md.Tags)
	assert.Equal(t, "contractor-summary.rpt", md.Files.Template)
	assert.Equal(t, "thumb.png", md.Files.Thumbnail)

	require.Len(t, md.Parameters, 5, "parameters without name or type are dropped")

	from := md.Parameters[0]
	assert.Equal(t, "from", from.Label)
	assert.True(t, from.Required)
	require.NotNil(t, from.DefaultValue)
	assert.Equal(t, "2025-10-01", *from.DefaultValue)

	to := md.Parameters[1]
	assert.Equal(t, "2025-12-31", *to.DefaultValue)
	require.NotNil(t, to.Validation)
	assert.Equal(t, "2020-01-01", to.Validation.MinDate)

	limit := md.Parameters[2]
	assert.Equal(t, "Row limit", limit.Label)
	require.NotNil(t, limit.Validation)
	require.NotNil(t, limit.Validation.Min)
	assert.Equal(t, 1.0, *limit.Validation.Min)
	assert.Nil(t, limit.Validation.Max, "non-numeric bounds are ignored")
	assert.False(t, limit.HasDefault())

	status := md.Parameters[3]
	assert.Equal(t, []types.Option{{Value: "open", Label: "Open"}, {Value: "closed", Label: "closed"}}, status.Options)

	contractor := md.Parameters[4]
	assert.Equal(t, "${contractorId}", *contractor.DefaultValue, "context tokens are resolved per request")
	require.NotNil(t, contractor.Source)
	assert.Equal(t, "/api/contractors", contractor.Source.Endpoint)

	assert.False(t, md.UI.ShowInReportsList)
	require.Len(t, md.UI.ContextMenus, 1)
	assert.Equal(t, map[string]string{"contractor": "row.id"}, md.UI.ContextMenus[0].ParameterMapping)
}

func TestLoadJSONFlatRootAndDefaults(t *testing.T) {
	md, err := newTestLoader().LoadJSON([]byte(`{
		"id": "flat", "name": "Flat", "version": "2.1.0", "accessLevel": "admin",
		"files": {"template": "flat.rpt"}
	}`), "flat.json")
	require.NoError(t, err)

	assert.Equal(t, "flat", md.ID)
	assert.Equal(t, "2.1.0", md.Version)
	assert.Equal(t, "admin", md.AccessLevel)
	assert.True(t, md.UI.ShowInReportsList)
	assert.Empty(t, md.Parameters)
	assert.Empty(t, md.Tags)
}

func TestLoadJSONInvalid(t *testing.T) {
	testCases := []struct {
		name string
		json string
	}{
		{"malformed", `{"id": `},
		{"empty report node", `{"report": {}}`},
		{"null", `null`},
		{"missing id", `{"name": "x", "files": {"template": "x.rpt"}}`},
		{"numeric id", `{"id": 7, "name": "x", "files": {"template": "x.rpt"}}`},
		{"missing name", `{"id": "x", "files": {"template": "x.rpt"}}`},
		{"missing files", `{"id": "x", "name": "x"}`},
		{"missing template", `{"id": "x", "name": "x", "files": {}}`},
		{"numeric template", `{"id": "x", "name": "x", "files": {"template": 1}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			md, err := newTestLoader().LoadJSON([]byte(tc.json), tc.name)
			assert.Nil(t, md)
			require.Error(t, err)
			assert.True(t, reporterrors.IsNotFound(err))
		})
	}
}

func TestLoadPrefersSidecar(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "sales.rpt")
	require.NoError(t, os.WriteFile(tmpl, []byte("name: Sales From Template\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.json"),
		[]byte(`{"id": "sales-json", "name": "Sales", "files": {"template": "sales.rpt"}}`), 0o644))

	md, err := newTestLoader().Load(tmpl)
	require.NoError(t, err)
	assert.Equal(t, "sales-json", md.ID)
}

func TestLoadFallsBackToTemplate(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "inventory.rpt")
	require.NoError(t, os.WriteFile(tmpl, []byte("name: Inventory Status\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inventory.json"), []byte(`{"name": "broken"}`), 0o644))

	md, err := newTestLoader().Load(tmpl)
	require.NoError(t, err)
	assert.Equal(t, "inventory", md.ID)
	assert.Equal(t, "Inventory Status", md.Name)
	assert.Equal(t, DerivedDescription, md.Description)
	assert.Equal(t, "inventory.rpt", md.Files.Template)
	assert.Equal(t, "1.0.0", md.Version)
	assert.Empty(t, md.Parameters)
}

func TestLoadMissingAndBrokenTemplate(t *testing.T) {
	dir := t.TempDir()

	_, err := newTestLoader().Load(filepath.Join(dir, "nothing.rpt"))
	assert.True(t, reporterrors.IsNotFound(err))

	broken := filepath.Join(dir, "broken.rpt")
	require.NoError(t, os.WriteFile(broken, []byte("name: [oops"), 0o644))
	_, err = newTestLoader().Load(broken)
	assert.True(t, reporterrors.IsNotFound(err))
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"a.json": {Data: []byte(`{"id": "a", "name": "A", "files": {"template": "a.rpt"}}`)},
	}

	md, err := newTestLoader().LoadFS(fsys, "a.json")
	require.NoError(t, err)
	assert.Equal(t, "a", md.ID)

	_, err = newTestLoader().LoadFS(fsys, "missing.json")
	assert.True(t, reporterrors.IsNotFound(err))
}

func TestParseDynamicValue(t *testing.T) {
	l := newTestLoader()

	assert.Equal(t, "2025-11-21", l.ParseDynamicValue("${today}"))
	assert.Equal(t, "2025-11-20", l.ParseDynamicValue("${yesterday}"))
	assert.Equal(t, "${unknown}", l.ParseDynamicValue("${unknown}"))
	assert.Equal(t, "plain", l.ParseDynamicValue("plain"))
	assert.Equal(t, "from ${today}", l.ParseDynamicValue("from ${today}"))
}

func strPtr(s string) *string { return &s }

func TestResolveDefaults(t *testing.T) {
	l := newTestLoader()
	params := []types.ReportParameter{
		{Name: "contractor", Type: types.ParamLong, DefaultValue: strPtr("${contractorId}")},
		{Name: "range", Type: types.ParamString, DefaultValue: strPtr("${firstDayOfMonth}..${today}")},
		{Name: "shadow", Type: types.ParamString, DefaultValue: strPtr("${today}")},
		{Name: "unknown", Type: types.ParamString, DefaultValue: strPtr("x-${nope}-y")},
		{Name: "none", Type: types.ParamString},
	}

	resolved := l.ResolveDefaults(params, map[string]string{"contractorId": "42", "today": "ignored"})
	require.Len(t, resolved, len(params))

	assert.Equal(t, "42", *resolved[0].DefaultValue)
	assert.Equal(t, "2025-11-01..2025-11-21", *resolved[1].DefaultValue)
	assert.Equal(t, "2025-11-21", *resolved[2].DefaultValue, "standard expressions win over context")
	assert.Equal(t, "x-${nope}-y", *resolved[3].DefaultValue)
	assert.Nil(t, resolved[4].DefaultValue)

	assert.Equal(t, "${contractorId}", *params[0].DefaultValue, "input is not mutated")
	assert.Empty(t, l.ResolveDefaults(nil, nil))
}
