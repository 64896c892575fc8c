package constraints

import "time"

// Date layouts used when moving date values in and out of documents.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// ScalarFromValue converts an engine value into its document form.
// Dates become strings; everything else passes through.
func ScalarFromValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return FormatDate(t)
	}
	return v
}

// FormatDate renders a date, keeping the time part only when present.
func FormatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(DateLayout)
	}
	return t.Format(DateTimeLayout)
}

// ParseDateScalar reads a document date scalar back into a time.Time.
func ParseDateScalar(s string) (time.Time, bool) {
	for _, layout := range []string{DateLayout, DateTimeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
