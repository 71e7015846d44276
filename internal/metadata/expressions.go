package metadata

import (
	"time"
)

// DateLayout is the ISO layout of resolved date expressions.
const DateLayout = "2006-01-02"

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

// expressions maps every supported ${name} token to the date it denotes.
var expressions = map[string]func(time.Time) time.Time{
	"today": func(d time.Time) time.Time {
		return d
	},
	"yesterday": func(d time.Time) time.Time {
		return d.AddDate(0, 0, -1)
	},
	"firstDayOfMonth": func(d time.Time) time.Time {
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
	},
	"lastDayOfMonth": func(d time.Time) time.Time {
		return time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, d.Location())
	},
	"firstDayOfQuarter": firstDayOfQuarter,
	"lastDayOfQuarter": func(d time.Time) time.Time {
		return firstDayOfQuarter(d).AddDate(0, 3, -1)
	},
	"firstDayOfYear": func(d time.Time) time.Time {
		return time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, d.Location())
	},
	"lastDayOfYear": func(d time.Time) time.Time {
		return time.Date(d.Year(), time.December, 31, 0, 0, 0, 0, d.Location())
	},
}

func firstDayOfQuarter(d time.Time) time.Time {
	month := (int(d.Month())-1)/3*3 + 1
	return time.Date(d.Year(), time.Month(month), 1, 0, 0, 0, 0, d.Location())
}

// Evaluate resolves a bare expression name such as "firstDayOfQuarter"
// against now. The second result is false for unknown names.
func Evaluate(name string, now time.Time) (string, bool) {
	fn, ok := expressions[name]
	if !ok {
		return "", false
	}

	return fn(now).Format(DateLayout), true
}

// Expressions lists the supported expression names.
func Expressions() []string {
	return []string{
		"today", "yesterday",
		"firstDayOfMonth", "lastDayOfMonth",
		"firstDayOfQuarter", "lastDayOfQuarter",
		"firstDayOfYear", "lastDayOfYear",
	}
}
