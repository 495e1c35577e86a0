package scihub

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2015-01-01T00:00:00Z", FormatDate(time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2015-10-23T08:22:24Z", FormatDate(time.Date(2015, 10, 23, 8, 22, 24, 999e6, time.UTC)))
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"20150101", "2015-01-01T00:00:00Z"},
		{"2015-01-01", "2015-01-01T00:00:00Z"},
		{"2015-01-01T00:00:00Z", "2015-01-01T00:00:00Z"},
		{"2015-10-23T08:22:24Z", "2015-10-23T08:22:24Z"},
		{"NOW", "NOW"},
	}
	for _, tc := range cases {
		d, err := ParseDate(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, d.Render(), tc.in)
	}
}

func TestParseDateInvalid(t *testing.T) {
	for _, in := range []string{"", "now", "Now", "2015", "01-01-2015", "yesterday", "2015131"} {
		_, err := ParseDate(in)
		assert.ErrorIs(t, err, ErrInvalidDate, in)
	}
}

func TestConvertTimestamp(t *testing.T) {
	got, err := ConvertTimestamp("/Date(1445588544652)/")
	require.NoError(t, err)
	assert.Equal(t, "2015-10-23T08:22:24Z", FormatDate(got))

	for _, in := range []string{"", "1445588544652", "/Date()/", "/Date(abc)/"} {
		_, err := ConvertTimestamp(in)
		assert.Error(t, err, in)
	}
}

func TestBuildQuery(t *testing.T) {
	begin, err := ParseDate("2015-01-01")
	require.NoError(t, err)
	end, err := ParseDate("2015-01-02")
	require.NoError(t, err)

	q := BuildQuery("0 0,1 1,0 1,0 0", begin, end, nil)
	assert.Equal(t, `(beginPosition:[2015-01-01T00:00:00Z TO 2015-01-02T00:00:00Z]) `+
		`AND (footprint:"Intersects(POLYGON((0 0,1 1,0 1,0 0)))")`, q)

	q = BuildQuery("0 0,1 1,0 1,0 0", begin, end, []Attr{{Key: "producttype", Value: "SLC"}})
	assert.Equal(t, `(beginPosition:[2015-01-01T00:00:00Z TO 2015-01-02T00:00:00Z]) `+
		`AND (footprint:"Intersects(POLYGON((0 0,1 1,0 1,0 0)))") `+
		`AND (producttype:SLC)`, q)
}

func TestBuildQueryNoArea(t *testing.T) {
	begin := DateOf(time.Date(2015, 12, 19, 0, 0, 0, 0, time.UTC))
	q := BuildQuery("", begin, OpenEnded(), nil)
	assert.Equal(t, "(beginPosition:[2015-12-19T00:00:00Z TO NOW])", q)
}

func TestBuildQueryAttrOrder(t *testing.T) {
	begin := DateOf(time.Date(2015, 12, 19, 0, 0, 0, 0, time.UTC))
	end := DateOf(time.Date(2015, 12, 28, 0, 0, 0, 0, time.UTC))
	attrs := []Attr{
		{Key: "platformname", Value: "Sentinel-2"},
		{Key: "cloudcoverpercentage", Value: "[0 TO 10]"},
	}

	q := BuildQuery("", begin, end, attrs)
	assert.Equal(t, "(beginPosition:[2015-12-19T00:00:00Z TO 2015-12-28T00:00:00Z]) "+
		"AND (platformname:Sentinel-2) AND (cloudcoverpercentage:[0 TO 10])", q)

	// Same inputs, same string.
	assert.Equal(t, q, BuildQuery("", begin, end, attrs))
}

func TestBuildQueryDefaultRange(t *testing.T) {
	fixed := time.Date(2016, 3, 4, 12, 30, 45, 0, time.UTC)
	old := timeNow
	timeNow = func() time.Time { return fixed }
	defer func() { timeNow = old }()

	q := BuildQuery("", Date{}, Date{}, nil)
	assert.Equal(t, "(beginPosition:[2016-03-03T12:30:45Z TO 2016-03-04T12:30:45Z])", q)

	q = BuildQuery("", Date{}, DateOf(fixed), nil)
	assert.Equal(t, "(beginPosition:[2016-03-03T12:30:45Z TO 2016-03-04T12:30:45Z])", q)
}

func TestDateZero(t *testing.T) {
	assert.True(t, Date{}.IsZero())
	assert.False(t, OpenEnded().IsZero())
	assert.False(t, DateOf(time.Now()).IsZero())

	var parseErr error
	_, parseErr = ParseDate("not-a-date")
	assert.True(t, errors.Is(parseErr, ErrInvalidDate))
}
