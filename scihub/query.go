package scihub

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SentinelNow is the catalog's open-ended range endpoint. It is matched
// case-sensitively and passed through to the query unrendered.
const SentinelNow = "NOW"

const dateFormat = "2006-01-02T15:04:05Z"

// Hook for deterministic tests.
var timeNow = time.Now

// Date is one endpoint of a beginPosition range: a concrete instant, the
// catalog's open-ended sentinel, or unset. The zero value is unset and makes
// BuildQuery fall back to its defaults.
type Date struct {
	t       time.Time
	literal string
}

// DateOf wraps a concrete instant.
func DateOf(t time.Time) Date { return Date{t: t} }

// OpenEnded returns the sentinel endpoint.
func OpenEnded() Date { return Date{literal: SentinelNow} }

// ParseDate accepts a compact calendar date (20150101), a dashed calendar
// date (2015-01-01), a full timestamp (2015-01-01T00:00:00Z) or the
// open-ended sentinel. Anything else fails with ErrInvalidDate.
func ParseDate(s string) (Date, error) {
	if s == SentinelNow {
		return OpenEnded(), nil
	}
	for _, layout := range []string{"20060102", "2006-01-02", dateFormat, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) IsZero() bool { return d.literal == "" && d.t.IsZero() }

// Render yields the query form of the endpoint: the sentinel verbatim, or a
// zero-padded UTC timestamp with second precision.
func (d Date) Render() string {
	if d.literal != "" {
		return d.literal
	}
	return FormatDate(d.t)
}

// FormatDate renders t the way the catalog grammar expects dates.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateFormat)
}

// ConvertTimestamp parses the catalog's millisecond-epoch date form,
// e.g. /Date(1445588544652)/, dropping the sub-second remainder.
func ConvertTimestamp(s string) (time.Time, error) {
	inner, ok := strings.CutPrefix(s, "/Date(")
	if ok {
		inner, ok = strings.CutSuffix(inner, ")/")
	}
	if !ok {
		return time.Time{}, fmt.Errorf("unsupported timestamp %q", s)
	}
	millis, err := strconv.ParseInt(inner, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported timestamp %q: %v", s, err)
	}
	return time.Unix(millis/1000, 0).UTC(), nil
}

// Attr is one key:value search clause. Attributes are carried as a slice so
// the built query preserves their order.
type Attr struct {
	Key   string
	Value string
}

// BuildQuery translates filters into the catalog's search grammar. The range
// clause always comes first; when begin or end is unset the range defaults to
// the last 24 hours. A non-empty area adds an intersection clause with the
// "lon lat" pairs copied verbatim, and each attribute appends in order.
// Attribute values are substituted untouched, so range fragments like
// [0 TO 10] stay valid.
func BuildQuery(area string, begin, end Date, attrs []Attr) string {
	now := timeNow()
	if begin.IsZero() {
		begin = DateOf(now.Add(-24 * time.Hour))
	}
	if end.IsZero() {
		end = DateOf(now)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "(beginPosition:[%s TO %s])", begin.Render(), end.Render())
	if area != "" {
		fmt.Fprintf(&b, ` AND (footprint:"Intersects(POLYGON((%s)))")`, area)
	}
	for _, a := range attrs {
		fmt.Fprintf(&b, " AND (%s:%s)", a.Key, a.Value)
	}
	return b.String()
}
