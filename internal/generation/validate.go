package generation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/reports/internal/engine"
	reporterrors "github.com/conneroisu/reports/internal/errors"
	"github.com/conneroisu/reports/internal/types"
)

// Validate checks supplied against the parameter schema and returns a copy
// of supplied with values converted to their declared types. Every violation
// is collected; the error lists all of them.
func Validate(schema []types.ReportParameter, supplied map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(supplied))
	for k, v := range supplied {
		out[k] = v
	}

	collector := reporterrors.NewErrorCollector()

	for _, p := range schema {
		value, present := out[p.Name]

		if p.Required && (!present || isBlank(value)) {
			collector.Add("required parameter missing: " + p.Name)
			continue
		}
		if !present || value == nil {
			continue
		}

		typ := p.Type.Canonical()
		value = convert(value, typ)
		out[p.Name] = value

		if !validType(value, typ) {
			collector.Add(fmt.Sprintf("invalid type for parameter '%s': expected %s, got %s", p.Name, p.Type, typeName(value)))
		}

		if p.Validation != nil {
			checkConstraints(p.Name, p.Validation, value, collector)
		}
	}

	if err := collector.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// convert coerces v towards typ. Values that cannot be converted are
// returned unchanged so the type check reports them.
func convert(v interface{}, typ types.ParameterType) interface{} {
	switch typ {
	case types.ParamInteger:
		switch t := v.(type) {
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return n
			}
		default:
			if n, ok := toInt64(v); ok {
				return int(n)
			}
		}
	case types.ParamLong:
		switch t := v.(type) {
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return n
			}
		default:
			if n, ok := toInt64(v); ok {
				return n
			}
		}
	case types.ParamDouble:
		switch t := v.(type) {
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f
			}
		default:
			if f, ok := toFloat(v); ok {
				return f
			}
		}
	case types.ParamBoolean:
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			return strings.EqualFold(s, "true") || s == "1"
		}
	case types.ParamDate:
		if s, ok := v.(string); ok {
			if d, err := time.Parse(engine.DateLayout, strings.TrimSpace(s)); err == nil {
				return d
			}
		}
	}

	return v
}

func validType(v interface{}, typ types.ParameterType) bool {
	switch typ {
	case types.ParamString:
		_, ok := v.(string)
		return ok
	case types.ParamInteger:
		_, ok := v.(int)
		return ok
	case types.ParamLong:
		switch v.(type) {
		case int, int64:
			return true
		}
		return false
	case types.ParamDouble:
		_, ok := toFloat(v)
		return ok
	case types.ParamBoolean:
		_, ok := v.(bool)
		return ok
	case types.ParamDate:
		_, ok := v.(time.Time)
		return ok
	default:
		return true
	}
}

func checkConstraints(name string, rules *types.Validation, v interface{}, collector *reporterrors.ErrorCollector) {
	if n, ok := toFloat(v); ok {
		if rules.Min != nil && n < *rules.Min {
			collector.Add(fmt.Sprintf("parameter '%s' is less than minimum: %s", name, formatBound(*rules.Min)))
		}
		if rules.Max != nil && n > *rules.Max {
			collector.Add(fmt.Sprintf("parameter '%s' is greater than maximum: %s", name, formatBound(*rules.Max)))
		}
	}

	if s, ok := v.(string); ok && rules.Pattern != "" {
		re, err := regexp.Compile("^(?:" + rules.Pattern + ")$")
		if err != nil {
			collector.Add(fmt.Sprintf("parameter '%s' has an invalid pattern: %s", name, rules.Pattern))
		} else if !re.MatchString(s) {
			collector.Add(fmt.Sprintf("parameter '%s' does not match pattern: %s", name, rules.Pattern))
		}
	}

	var date time.Time
	switch t := v.(type) {
	case time.Time:
		date = t
	case string:
		if d, err := time.Parse(engine.DateLayout, strings.TrimSpace(t)); err == nil {
			date = d
		}
	}
	if date.IsZero() {
		return
	}

	if minDate, err := time.Parse(engine.DateLayout, rules.MinDate); err == nil && date.Before(minDate) {
		collector.Add(fmt.Sprintf("parameter '%s' is before minimum date: %s", name, rules.MinDate))
	}
	if maxDate, err := time.Parse(engine.DateLayout, rules.MaxDate); err == nil && date.After(maxDate) {
		collector.Add(fmt.Sprintf("parameter '%s' is after maximum date: %s", name, rules.MaxDate))
	}
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// toInt64 converts integral numbers. Floats qualify only when they hold a
// whole value, which is how JSON decoding delivers integers.
func toInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case float32:
		return toInt64(float64(t))
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) && math.Abs(t) < 1<<63 {
			return int64(t), true
		}
	}

	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	}

	return 0, false
}

func typeName(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case time.Time:
		return "date"
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return "integer"
	case float32, float64:
		return "double"
	default:
		return fmt.Sprintf("%T", v)
	}
}
