package ical

import (
	"strings"
	"testing"

	"colivero/internal/dates"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedBody joins iCal content lines with the CRLF terminators the format
// requires.
func feedBody(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

func TestParseAllDayEvent(t *testing.T) {
	body := feedBody(
		"BEGIN:VEVENT",
		"UID:ev-1@example.com",
		"SUMMARY:Reserved",
		"DTSTART;VALUE=DATE:20240601",
		"DTEND;VALUE=DATE:20240605",
		"END:VEVENT",
	)

	result, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Zero(t, result.Skipped)

	ev := result.Events[0]
	assert.Equal(t, "ev-1@example.com", ev.UID)
	assert.Equal(t, "Reserved", ev.Summary)
	assert.True(t, ev.AllDay)

	// DTEND is exclusive: June 1-4 occupied, June 5 free.
	occupied := ev.OccupiedDates()
	require.Len(t, occupied, 4)
	assert.Equal(t, "2024-06-01", dates.Format(occupied[0]))
	assert.Equal(t, "2024-06-04", dates.Format(occupied[3]))
}

func TestParseTimestampedEvent(t *testing.T) {
	body := feedBody(
		"BEGIN:VEVENT",
		"UID:ev-2",
		"DTSTART:20240601T150000Z",
		"DTEND:20240603T110000Z",
		"END:VEVENT",
	)

	result, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)

	ev := result.Events[0]
	assert.False(t, ev.AllDay)
	assert.Equal(t, "2024-06-01", dates.Format(ev.Start))
	assert.Equal(t, "2024-06-03", dates.Format(ev.End))
}

func TestParseFoldedLines(t *testing.T) {
	// A folded SUMMARY continues on the next line after CRLF + space.
	body := feedBody(
		"BEGIN:VEVENT",
		"UID:ev-3",
		"SUMMARY:A very long reservation note that the",
		"  producer folded onto a second line",
		"DTSTART;VALUE=DATE:20240601",
		"DTEND;VALUE=DATE:20240602",
		"END:VEVENT",
	)

	result, err := Parse(body)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t,
		"A very long reservation note that the producer folded onto a second line",
		result.Events[0].Summary)
}

func TestParseSkipsMalformedEvents(t *testing.T) {
	body := feedBody(
		// No UID.
		"BEGIN:VEVENT",
		"DTSTART;VALUE=DATE:20240601",
		"DTEND;VALUE=DATE:20240602",
		"END:VEVENT",
		// No DTEND.
		"BEGIN:VEVENT",
		"UID:ev-5",
		"DTSTART;VALUE=DATE:20240601",
		"END:VEVENT",
		// DTEND not after DTSTART.
		"BEGIN:VEVENT",
		"UID:ev-6",
		"DTSTART;VALUE=DATE:20240603",
		"DTEND;VALUE=DATE:20240603",
		"END:VEVENT",
		// Well-formed.
		"BEGIN:VEVENT",
		"UID:ev-7",
		"DTSTART;VALUE=DATE:20240610",
		"DTEND;VALUE=DATE:20240612",
		"END:VEVENT",
	)

	result, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Skipped)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "ev-7", result.Events[0].UID)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("<html>not a calendar</html>"))
	assert.Error(t, err)
}
