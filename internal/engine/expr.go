package engine

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DateLayout is the ISO date layout used for date parameters and fields.
const DateLayout = "2006-01-02"

// noValue is what text/template prints for absent map entries.
const noValue = "<no value>"

var numberPrinter = message.NewPrinter(language.English)

func knownClass(class string) bool {
	switch strings.ToLower(class) {
	case "string", "integer", "int", "long", "double", "float", "boolean", "date":
		return true
	default:
		return false
	}
}

// coerce converts a textual value to the Go type of class.
func coerce(class, s string) (interface{}, error) {
	switch strings.ToLower(class) {
	case "", "string":
		return s, nil
	case "integer", "int":
		return strconv.Atoi(strings.TrimSpace(s))
	case "long":
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	case "double", "float":
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	case "boolean":
		return strconv.ParseBool(strings.TrimSpace(s))
	case "date":
		return time.Parse(DateLayout, strings.TrimSpace(s))
	default:
		return nil, fmt.Errorf("unknown class %q", class)
	}
}

// cellFuncs are available to every cell expression.
func cellFuncs() template.FuncMap {
	return template.FuncMap{
		"upper":        strings.ToUpper,
		"lower":        strings.ToLower,
		"trim":         strings.TrimSpace,
		"formatDate":   formatDate,
		"formatNumber": formatNumber,
		"default":      defaultValue,
	}
}

// queryFuncs are available to the query template. "param" is replaced per
// execution by a binder that records arguments.
func queryFuncs() template.FuncMap {
	funcs := cellFuncs()
	funcs["param"] = func(string) (string, error) {
		return "", fmt.Errorf("param is only available while filling")
	}

	return funcs
}

func formatDate(layout string, v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format(layout)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(layout)
	case string:
		parsed, err := time.Parse(DateLayout, t)
		if err != nil {
			return t
		}
		return parsed.Format(layout)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func formatNumber(decimals int, v interface{}) string {
	f, ok := toFloat(v)
	if !ok {
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}

	if decimals < 0 {
		decimals = 0
	}

	return numberPrinter.Sprintf(fmt.Sprintf("%%.%df", decimals), f)
}

func defaultValue(def, v interface{}) interface{} {
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok && s == "" {
		return def
	}

	return v
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// render formats a value the way it appears in literal query fragments.
func render(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format(DateLayout)
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}
