package detect

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrUnparsable reports that a date or amount string could not be interpreted.
// Rules that hit it are skipped, never surfaced as pipeline failures; keeping
// it a sentinel keeps "no anomaly" and "could not evaluate" distinguishable.
var ErrUnparsable = eris.New("detect: unparsable value")

// ErrMissingField reports that a rule's required field was absent or
// suppressed by the confidence floor.
var ErrMissingField = eris.New("detect: required field missing")

// dateLayouts are tried in order. Extraction output is messy enough that both
// US and day-first orderings plus long-form month names show up.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"01-02-2006",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

var embeddedDateRe = regexp.MustCompile(`(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})`)

var embeddedLayouts = []string{"01/02/2006", "01-02-2006", "02/01/2006", "02-01-2006"}

// ParseDate parses a date string, trying known layouts first and falling back
// to a regex scan for a date embedded in surrounding text.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, eris.Wrap(ErrUnparsable, "empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if m := embeddedDateRe.FindString(s); m != "" {
		for _, layout := range embeddedLayouts {
			if t, err := time.Parse(layout, m); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, eris.Wrapf(ErrUnparsable, "date %q", s)
}

// ParseAmount parses a currency amount, stripping symbols and thousands
// separators.
func ParseAmount(s string) (float64, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "$", ""), ",", ""))
	if cleaned == "" {
		return 0, eris.Wrap(ErrUnparsable, "empty amount")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, eris.Wrapf(ErrUnparsable, "amount %q", s)
	}
	return v, nil
}

var firstIntRe = regexp.MustCompile(`\d+`)

// ParseTermMonths extracts the stated lease term as the first integer in the
// term string ("36 months", "3 years (36 mo)" both yield 36 and 3 resp.).
func ParseTermMonths(s string) (int, error) {
	m := firstIntRe.FindString(s)
	if m == "" {
		return 0, eris.Wrapf(ErrUnparsable, "lease term %q", s)
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, eris.Wrapf(ErrUnparsable, "lease term %q", s)
	}
	return n, nil
}

// MonthsBetween computes calendar months from start to end, ignoring days,
// matching how lease terms are stated.
func MonthsBetween(start, end time.Time) int {
	return (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
}
