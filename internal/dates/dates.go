// Package dates centralizes calendar-date arithmetic for the booking engine.
// All occupancy math works on whole dates normalized to UTC midnight; booking
// ranges are half-open [check-in, check-out) so the check-out date itself is
// never occupied and same-day turnover is legal.
package dates

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical storage and wire format for calendar dates.
const Layout = "2006-01-02"

// Normalize strips the time-of-day component and returns the date at UTC midnight.
// The date components are taken in t's own location; a timestamped iCal event
// with a TZID keeps that zone's notion of the day (no conversion into a
// property-level display timezone).
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Parse parses a YYYY-MM-DD date string.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", s)
	}
	return t, nil
}

// Format renders a date in the canonical YYYY-MM-DD form.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Range expands a half-open range [start, endExclusive) into the list of
// occupied dates. An empty or inverted range yields nil.
func Range(start, endExclusive time.Time) []time.Time {
	start = Normalize(start)
	endExclusive = Normalize(endExclusive)

	var out []time.Time
	for d := start; d.Before(endExclusive); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Nights returns the number of nights in [checkIn, checkOut).
func Nights(checkIn, checkOut time.Time) int {
	in := Normalize(checkIn)
	out := Normalize(checkOut)
	if !out.After(in) {
		return 0
	}
	return int(out.Sub(in).Hours() / 24)
}

// ValidRange reports whether checkOut is strictly after checkIn.
func ValidRange(checkIn, checkOut time.Time) bool {
	return Normalize(checkOut).After(Normalize(checkIn))
}

// FromICalValue converts a raw iCal DTSTART/DTEND value plus its property
// parameters into a normalized date and an all-day flag. Supported forms:
//
//	20240601            (VALUE=DATE, all-day)
//	20240601T150000Z    (UTC date-time)
//	20240601T150000     (floating or TZID-qualified date-time)
func FromICalValue(value string, params map[string][]string) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, fmt.Errorf("empty date value")
	}

	allDay := !strings.Contains(value, "T")
	if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}

	if allDay {
		t, err := time.Parse("20060102", value)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid all-day value %q: %w", value, err)
		}
		return Normalize(t), true, nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid UTC date-time %q: %w", value, err)
		}
		return Normalize(t), false, nil
	}

	loc := time.UTC
	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(tzs[0]); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", value, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date-time %q: %w", value, err)
	}
	return Normalize(t), false, nil
}
