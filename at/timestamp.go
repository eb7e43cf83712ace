package at

import (
	"fmt"
	"strings"
	"time"
)

// Offsets beyond these bounds (UTC-12:00 and UTC+14:00 in quarter hours)
// are rejected as malformed.
const (
	minOffset = -48
	maxOffset = 56
)

// Timestamp is a service centre timestamp as reported by the modem.
//
// Offset is kept exactly as encoded on the wire, a signed count of quarter
// hours east of UTC, so that String reproduces the original text.
type Timestamp struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
	Offset int
}

// NewTimestamp builds a Timestamp from components, rejecting out of range values.
func NewTimestamp(year, month, day, hour, minute, second, offset int) (Timestamp, error) {
	ts := Timestamp{
		Year:   year,
		Month:  month,
		Day:    day,
		Hour:   hour,
		Minute: minute,
		Second: second,
		Offset: offset,
	}
	if err := ts.validate(); err != nil {
		return Timestamp{}, err
	}
	return ts, nil
}

func (ts Timestamp) validate() error {
	switch {
	case ts.Year < 2000 || ts.Year > 2099:
		return fmt.Errorf("%w: year %d", ErrMalformedTimestamp, ts.Year)
	case ts.Month < 1 || ts.Month > 12:
		return fmt.Errorf("%w: month %d", ErrMalformedTimestamp, ts.Month)
	case ts.Day < 1 || ts.Day > 31:
		return fmt.Errorf("%w: day %d", ErrMalformedTimestamp, ts.Day)
	case ts.Hour < 0 || ts.Hour > 23:
		return fmt.Errorf("%w: hour %d", ErrMalformedTimestamp, ts.Hour)
	case ts.Minute < 0 || ts.Minute > 59:
		return fmt.Errorf("%w: minute %d", ErrMalformedTimestamp, ts.Minute)
	case ts.Second < 0 || ts.Second > 59:
		return fmt.Errorf("%w: second %d", ErrMalformedTimestamp, ts.Second)
	case ts.Offset < minOffset || ts.Offset > maxOffset:
		return fmt.Errorf("%w: offset %d", ErrMalformedTimestamp, ts.Offset)
	}
	return nil
}

// ParseTimestamp parses the compact vendor encoding YY/MM/DD,HH:MM:SS±OO.
// Surrounding quotes and whitespace are ignored. The year has exactly two
// digits and is placed in the 2000s.
func ParseTimestamp(s string) (Timestamp, error) {
	raw := s
	s = strings.Trim(strings.TrimSpace(s), `"`)
	sc := fieldScanner{s: s}

	var ts Timestamp
	var ok bool
	fail := func(field string) (Timestamp, error) {
		return Timestamp{}, fmt.Errorf("%w: %s in %q", ErrMalformedTimestamp, field, raw)
	}

	if ts.Year, ok = sc.number(2, 2); !ok {
		return fail("year")
	}
	ts.Year += 2000
	if !sc.skip('/') {
		return fail("date separator")
	}
	if ts.Month, ok = sc.number(1, 2); !ok {
		return fail("month")
	}
	if !sc.skip('/') {
		return fail("date separator")
	}
	if ts.Day, ok = sc.number(1, 2); !ok {
		return fail("day")
	}
	if !sc.skip(',') {
		return fail("date/time separator")
	}
	if ts.Hour, ok = sc.number(1, 2); !ok {
		return fail("hour")
	}
	if !sc.skip(':') {
		return fail("time separator")
	}
	if ts.Minute, ok = sc.number(1, 2); !ok {
		return fail("minute")
	}
	if !sc.skip(':') {
		return fail("time separator")
	}
	if ts.Second, ok = sc.number(1, 2); !ok {
		return fail("second")
	}

	sign := 1
	switch {
	case sc.skip('+'):
	case sc.skip('-'):
		sign = -1
	default:
		return fail("offset sign")
	}
	if ts.Offset, ok = sc.number(1, 2); !ok {
		return fail("offset")
	}
	ts.Offset *= sign
	if !sc.done() {
		return fail("trailing data")
	}

	if err := ts.validate(); err != nil {
		return Timestamp{}, err
	}
	return ts, nil
}

// String renders the timestamp in the wire encoding.
func (ts Timestamp) String() string {
	return fmt.Sprintf("%02d/%02d/%02d,%02d:%02d:%02d%+03d",
		ts.Year%100, ts.Month, ts.Day, ts.Hour, ts.Minute, ts.Second, ts.Offset)
}

// UTCOffset returns the offset as a duration.
func (ts Timestamp) UTCOffset() time.Duration {
	return time.Duration(ts.Offset) * 15 * time.Minute
}

// Time converts the timestamp into a time.Time in a fixed zone carrying its offset.
func (ts Timestamp) Time() time.Time {
	offset := ts.UTCOffset()
	zone := time.FixedZone("", int(offset/time.Second))
	return time.Date(ts.Year, time.Month(ts.Month), ts.Day, ts.Hour, ts.Minute, ts.Second, 0, zone)
}

// Unix returns the number of seconds since the Unix epoch.
func (ts Timestamp) Unix() int64 {
	return ts.Time().Unix()
}

// ISO8601 renders the timestamp as e.g. 2024-03-05T13:45:30+02:00.
func (ts Timestamp) ISO8601() string {
	return ts.Time().Format("2006-01-02T15:04:05-07:00")
}

// IsZero reports whether ts is the zero value.
func (ts Timestamp) IsZero() bool {
	return ts == Timestamp{}
}
