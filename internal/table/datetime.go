package table

import (
	"time"

	"github.com/araddon/dateparse"
)

// Output layouts, chosen per column like pandas does when writing datetimes.
const (
	layoutDate     = "2006-01-02"
	layoutDateTime = "2006-01-02 15:04:05"
	layoutMicros   = "2006-01-02 15:04:05.000000"
)

// Datetime is a parsed timestamp or a missing value.
type Datetime struct {
	Time  time.Time
	Valid bool
}

// ParseDatetimes parses each cell with a generic date-string parser.
// Values without a zone are read as UTC; all results are normalized to UTC.
// Missing or unparsable cells yield an invalid Datetime.
func ParseDatetimes(cells []string) []Datetime {
	out := make([]Datetime, len(cells))
	for i, c := range cells {
		if IsNA(c) {
			continue
		}
		t, err := dateparse.ParseIn(c, time.UTC)
		if err != nil {
			continue
		}
		out[i] = Datetime{Time: t.UTC(), Valid: true}
	}
	return out
}

// FormatDatetimes renders a column of timestamps with a single layout: date
// only when every value is midnight, seconds or microseconds otherwise.
// Missing values render as the empty cell.
func FormatDatetimes(ds []Datetime) []string {
	layout := layoutDate
	for _, d := range ds {
		if !d.Valid {
			continue
		}
		if d.Time.Nanosecond() != 0 {
			layout = layoutMicros
			break
		}
		if h, m, s := d.Time.Clock(); h != 0 || m != 0 || s != 0 {
			layout = layoutDateTime
		}
	}

	out := make([]string, len(ds))
	for i, d := range ds {
		if d.Valid {
			out[i] = d.Time.Format(layout)
		}
	}
	return out
}
