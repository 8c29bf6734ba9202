package entry

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// WriteTimeLayout is the canonical time-of-day format used for new rows.
	WriteTimeLayout = "15:04"
	DateLayout      = "2006-01-02"
	OffsetLayout    = "-07:00"
)

var (
	time12Pattern  = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})\s*(AM|PM)$`)
	time24Pattern  = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	offsetPattern  = regexp.MustCompile(`^([+-])(\d{2}):(\d{2})$`)
	relativeLayout = "Monday, Jan 2"
)

// ParseEntryTimestamp rebuilds the absolute instant of an entry from its date, time and
// UTC offset. Without an offset the wall clock is read in loc, so entries written in a
// different zone than the reader's are misattributed; that limitation is accepted.
func ParseEntryTimestamp(e LogEntry, loc *time.Location) (time.Time, bool) {
	if e.Date == "" || e.Time == "" {
		return time.Time{}, false
	}

	hour, minute, ok := parseClock(strings.TrimSpace(e.Time))
	if !ok {
		return time.Time{}, false
	}

	day, err := time.Parse(DateLayout, e.Date)
	if err != nil {
		return time.Time{}, false
	}

	zone := loc
	if zone == nil {
		zone = time.Local
	}
	if e.UTCOffset != "" {
		zone, ok = parseOffset(e.UTCOffset)
		if !ok {
			return time.Time{}, false
		}
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, zone), true
}

func parseClock(s string) (hour, minute int, ok bool) {
	if m := time12Pattern.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		if hour < 1 || hour > 12 || minute > 59 {
			return 0, 0, false
		}
		pm := strings.EqualFold(m[3], "PM")
		switch {
		case !pm && hour == 12:
			hour = 0
		case pm && hour != 12:
			hour += 12
		}
		return hour, minute, true
	}

	if m := time24Pattern.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return 0, 0, false
		}
		return hour, minute, true
	}

	return 0, 0, false
}

func parseOffset(s string) (*time.Location, bool) {
	m := offsetPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	h, _ := strconv.Atoi(m[2])
	mins, _ := strconv.Atoi(m[3])
	if h > 23 || mins > 59 {
		return nil, false
	}
	secs := h*3600 + mins*60
	if m[1] == "-" {
		secs = -secs
	}
	return time.FixedZone(s, secs), true
}

// FormatLocalTime renders t as "h:mm AM/PM" in loc.
func FormatLocalTime(t time.Time, loc *time.Location) string {
	return t.In(orLocal(loc)).Format("3:04 PM")
}

// FormatLocalDate renders t as "YYYY-MM-DD" in loc.
func FormatLocalDate(t time.Time, loc *time.Location) string {
	return t.In(orLocal(loc)).Format(DateLayout)
}

// FormatRelativeDate labels t relative to now by calendar day in loc: "today",
// "yesterday", a weekday name for 2-6 days back, else "Monday, Jan 2". Future dates
// always use the long form.
func FormatRelativeDate(t, now time.Time, loc *time.Location) string {
	loc = orLocal(loc)
	lt := t.In(loc)

	days := calendarDays(now.In(loc)) - calendarDays(lt)
	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "yesterday"
	case days >= 2 && days <= 6:
		return lt.Weekday().String()
	default:
		return lt.Format(relativeLayout)
	}
}

// calendarDays counts civil days since the epoch for t's wall-clock date, so DST
// transitions never shift the difference between two dates.
func calendarDays(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

func orLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}

// Stamp returns the date, time and offset strings recorded for a write at t in loc.
func Stamp(t time.Time, loc *time.Location) (date, clock, offset string) {
	lt := t.In(orLocal(loc))
	return lt.Format(DateLayout), lt.Format(WriteTimeLayout), lt.Format(OffsetLayout)
}
