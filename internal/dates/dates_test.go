package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRange(t *testing.T) {
	in := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	out := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	got := Range(in, out)
	assert.Len(t, got, 5)
	assert.Equal(t, "2024-03-10", Format(got[0]))
	// Checkout date itself is excluded (half-open range).
	assert.Equal(t, "2024-03-14", Format(got[len(got)-1]))

	assert.Nil(t, Range(out, in))
	assert.Nil(t, Range(in, in))
}

func TestNights(t *testing.T) {
	in := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 9, Nights(in, in.AddDate(0, 0, 9)))
	assert.Equal(t, 0, Nights(in, in))
	assert.Equal(t, 0, Nights(in, in.AddDate(0, 0, -2)))
}

func TestNormalizeKeepsOwnZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 23:30 local is still the same calendar day even though it is the next
	// day in UTC during winter offsets east of Greenwich.
	local := time.Date(2024, 6, 1, 23, 30, 0, 0, loc)
	assert.Equal(t, "2024-06-01", Format(Normalize(local)))
}

func TestFromICalValue(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		params  map[string][]string
		want    string
		allDay  bool
		wantErr bool
	}{
		{name: "all-day implicit", value: "20240601", want: "2024-06-01", allDay: true},
		{name: "all-day explicit", value: "20240601", params: map[string][]string{"VALUE": {"DATE"}}, want: "2024-06-01", allDay: true},
		{name: "utc date-time", value: "20240601T140000Z", want: "2024-06-01"},
		{name: "floating date-time", value: "20240601T140000", want: "2024-06-01"},
		{name: "tzid date-time", value: "20240601T233000", params: map[string][]string{"TZID": {"Europe/Madrid"}}, want: "2024-06-01"},
		{name: "garbage", value: "not-a-date", wantErr: true},
		{name: "empty", value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, allDay, err := FromICalValue(tt.value, tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, Format(got))
			assert.Equal(t, tt.allDay, allDay)
		})
	}
}
