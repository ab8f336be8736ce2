package sheet

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Spreadsheet serial dates count days since 1899-12-30.
const (
	// SerialUnixEpoch is the serial day number of 1970-01-01.
	SerialUnixEpoch = 25569
	secondsPerDay   = 86400

	// maxSerial is 9999-12-31; larger numbers are not serial dates.
	maxSerial = 2958465
)

// zoneAbbrevOffset matches a trailing "PDT-0700" style suffix.
var zoneAbbrevOffset = regexp.MustCompile(`\s[A-Z]{3}([+-]\d{2}:?\d{2})$`)

// layouts are tried before generic parsing, most common export formats first.
var layouts = []string{
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// SerialToTime converts a spreadsheet serial day count to UTC.
// Fractional days carry the time of day, rounded to the millisecond.
func SerialToTime(serial float64) time.Time {
	ms := math.Round((serial - SerialUnixEpoch) * secondsPerDay * 1000)
	return time.UnixMilli(int64(ms)).UTC()
}

// TimeToSerial converts t to a spreadsheet serial day count.
func TimeToSerial(t time.Time) float64 {
	return float64(t.UnixMilli())/(secondsPerDay*1000) + SerialUnixEpoch
}

// ParseDate parses a date cell. Numeric cells are serial day counts; text cells
// have a trailing zone abbreviation stripped before parsing. Results are UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if serial, ok := parseSerial(s); ok {
		return SerialToTime(serial), true
	}

	s = StripZoneAbbrev(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// StripZoneAbbrev turns "2024-03-20 17:00:00 PDT-0700" into "2024-03-20 17:00:00 -0700".
func StripZoneAbbrev(s string) string {
	return zoneAbbrevOffset.ReplaceAllString(s, " $1")
}

func parseSerial(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f < 1 || f > maxSerial {
		return 0, false
	}
	return f, true
}
