package ical

import (
	"bytes"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"colivero/internal/dates"
)

// Event is a normalized VEVENT reduced to what occupancy needs. Start and
// End are whole dates; End is exclusive per the iCal DTEND rule.
type Event struct {
	UID     string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
}

// ParseResult carries the events of one feed plus the count of malformed
// VEVENTs that were skipped.
type ParseResult struct {
	Events  []Event
	Skipped int
}

// Parse decodes an iCal payload. Line unfolding (continuation lines
// starting with space or tab) and property parameters are handled by the
// underlying library. A VEVENT missing UID, DTSTART or DTEND is skipped
// and counted; it never fails the whole feed.
func Parse(body []byte) (ParseResult, error) {
	var result ParseResult

	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("parse calendar: %w", err)
	}

	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			result.Skipped++
			continue
		}
		result.Events = append(result.Events, ev)
	}
	return result, nil
}

func parseVEvent(ve *ics.VEvent) (Event, error) {
	var out Event

	uid := ve.GetProperty(ics.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, fmt.Errorf("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ics.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	dtStart := ve.GetProperty(ics.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return out, fmt.Errorf("missing DTSTART")
	}
	dtEnd := ve.GetProperty(ics.ComponentPropertyDtEnd)
	if dtEnd == nil || dtEnd.Value == "" {
		return out, fmt.Errorf("missing DTEND")
	}

	start, allDay, err := dates.FromICalValue(dtStart.Value, dtStart.ICalParameters)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	end, _, err := dates.FromICalValue(dtEnd.Value, dtEnd.ICalParameters)
	if err != nil {
		return out, fmt.Errorf("DTEND: %w", err)
	}
	if !end.After(start) {
		return out, fmt.Errorf("DTEND %s not after DTSTART %s", dates.Format(end), dates.Format(start))
	}

	out.Start = start
	out.End = end
	out.AllDay = allDay
	return out, nil
}

// OccupiedDates expands the event into the inclusive list of occupied
// calendar dates [Start, End); DTEND is exclusive.
func (e Event) OccupiedDates() []time.Time {
	return dates.Range(e.Start, e.End)
}
