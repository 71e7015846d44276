package generation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reporterrors "github.com/conneroisu/reports/internal/errors"
	"github.com/conneroisu/reports/internal/types"
)

func float(f float64) *float64 { return &f }

func str(s string) *string { return &s }

func TestValidateAggregatesViolations(t *testing.T) {
	schema := []types.ReportParameter{
		{Name: "startDate", Type: types.ParamDate, Required: true},
		{Name: "endDate", Type: types.ParamDate, Required: true},
		{Name: "limit", Type: types.ParamInteger, Validation: &types.Validation{Max: float(100)}},
	}

	_, err := Validate(schema, map[string]interface{}{"limit": "250", "endDate": "  "})
	require.Error(t, err)
	assert.True(t, reporterrors.IsValidation(err))
	assert.Equal(t,
		"[INVALID_PARAMETERS] parameter validation failed: "+
			"required parameter missing: startDate, "+
			"required parameter missing: endDate, "+
			"parameter 'limit' is greater than maximum: 100",
		err.Error())

	var re *reporterrors.ReportError
	require.ErrorAs(t, err, &re)
	assert.Len(t, re.Context["violations"], 3)
}

func TestValidateConversions(t *testing.T) {
	schema := []types.ReportParameter{
		{Name: "count", Type: types.ParamInteger},
		{Name: "fromJSON", Type: types.ParamInteger},
		{Name: "id", Type: types.ParamLong},
		{Name: "ratio", Type: types.ParamDouble},
		{Name: "flag", Type: types.ParamBoolean},
		{Name: "other", Type: types.ParamBoolean},
		{Name: "yes", Type: types.ParamBoolean},
		{Name: "day", Type: types.ParamDate},
		{Name: "free", Type: "uuid"},
	}
	supplied := map[string]interface{}{
		"count":    "42",
		"fromJSON": float64(7),
		"id":       "9000000000",
		"ratio":    3,
		"flag":     "1",
		"other":    "TRUE",
		"yes":      "yes",
		"day":      "2025-11-21",
		"free":     []int{1},
		"extra":    "kept",
	}

	out, err := Validate(schema, supplied)
	require.NoError(t, err)

	assert.Equal(t, 42, out["count"])
	assert.Equal(t, 7, out["fromJSON"])
	assert.Equal(t, int64(9000000000), out["id"])
	assert.Equal(t, float64(3), out["ratio"])
	assert.Equal(t, true, out["flag"])
	assert.Equal(t, true, out["other"])
	assert.Equal(t, false, out["yes"])
	assert.Equal(t, time.Date(2025, 11, 21, 0, 0, 0, 0, time.UTC), out["day"])
	assert.Equal(t, []int{1}, out["free"])
	assert.Equal(t, "kept", out["extra"])

	assert.Equal(t, "42", supplied["count"], "input must not be modified")
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name      string
		param     types.ReportParameter
		value     interface{}
		violation string
	}{
		{
			name:      "integer from fraction",
			param:     types.ReportParameter{Name: "n", Type: types.ParamInteger},
			value:     2.5,
			violation: "invalid type for parameter 'n': expected integer, got double",
		},
		{
			name:      "unparseable integer",
			param:     types.ReportParameter{Name: "n", Type: types.ParamInteger},
			value:     "ten",
			violation: "invalid type for parameter 'n': expected integer, got string",
		},
		{
			name:      "string given a number",
			param:     types.ReportParameter{Name: "s", Type: types.ParamString},
			value:     12,
			violation: "invalid type for parameter 's': expected string, got integer",
		},
		{
			name:      "unparseable date",
			param:     types.ReportParameter{Name: "d", Type: types.ParamDate},
			value:     "21/11/2025",
			violation: "invalid type for parameter 'd': expected date, got string",
		},
		{
			name:      "below minimum",
			param:     types.ReportParameter{Name: "n", Type: types.ParamDouble, Validation: &types.Validation{Min: float(0.5)}},
			value:     "0.25",
			violation: "parameter 'n' is less than minimum: 0.5",
		},
		{
			name:      "pattern is anchored",
			param:     types.ReportParameter{Name: "code", Type: types.ParamString, Validation: &types.Validation{Pattern: "[A-Z]{3}"}},
			value:     "ABCD",
			violation: "parameter 'code' does not match pattern: [A-Z]{3}",
		},
		{
			name:      "before minimum date",
			param:     types.ReportParameter{Name: "d", Type: types.ParamDate, Validation: &types.Validation{MinDate: "2025-01-01"}},
			value:     "2024-12-31",
			violation: "parameter 'd' is before minimum date: 2025-01-01",
		},
		{
			name:      "after maximum date on a string parameter",
			param:     types.ReportParameter{Name: "d", Type: types.ParamString, Validation: &types.Validation{MaxDate: "2025-01-01"}},
			value:     "2025-06-30",
			violation: "parameter 'd' is after maximum date: 2025-01-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate([]types.ReportParameter{tt.param}, map[string]interface{}{tt.param.Name: tt.value})
			require.Error(t, err)

			var re *reporterrors.ReportError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, []string{tt.violation}, re.Context["violations"])
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	schema := []types.ReportParameter{
		{Name: "optional", Type: types.ParamInteger},
		{Name: "nilValue", Type: types.ParamInteger, Required: false},
		{Name: "code", Type: types.ParamString, Validation: &types.Validation{Pattern: "[A-Z]{3}"}},
		{Name: "amount", Type: types.ParamLong, Validation: &types.Validation{Min: float(1), Max: float(10)}},
		{Name: "day", Type: types.ParamDate, Validation: &types.Validation{MinDate: "2025-01-01", MaxDate: "2025-12-31"}},
		{Name: "withDefault", Type: types.ParamString, Required: true, DefaultValue: str("x")},
	}

	_, err := Validate(schema, map[string]interface{}{
		"nilValue":    nil,
		"code":        "ABC",
		"amount":      10,
		"day":         "2025-12-31",
		"withDefault": "given",
	})
	assert.NoError(t, err)
}
