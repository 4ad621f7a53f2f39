package report

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"colivero/internal/dates"
	"colivero/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	apartments []models.Apartment
	days       map[int64][]models.CalendarDay
}

func (f *fakeReader) ActiveApartments() []models.Apartment { return f.apartments }

func (f *fakeReader) GetCalendar(_ context.Context, apartmentID int64, _, _ time.Time) ([]models.CalendarDay, error) {
	return f.days[apartmentID], nil
}

// recordingWriter captures the sheet/row structure without producing a file.
type recordingWriter struct {
	sheets  []string
	headers [][]string
	rows    map[string][][]interface{}
	current string
	saved   bool
}

func (w *recordingWriter) AddSheet(name string) error {
	w.sheets = append(w.sheets, name)
	w.current = name
	if w.rows == nil {
		w.rows = map[string][][]interface{}{}
	}
	return nil
}

func (w *recordingWriter) WriteHeader(columns []string) error {
	w.headers = append(w.headers, columns)
	return nil
}

func (w *recordingWriter) WriteRow(row []interface{}) error {
	w.rows[w.current] = append(w.rows[w.current], row)
	return nil
}

func (w *recordingWriter) Save(io.Writer) error {
	w.saved = true
	return nil
}

func mustDay(s string) time.Time {
	t, err := dates.Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestGenerate(t *testing.T) {
	reader := &fakeReader{
		apartments: []models.Apartment{
			{ID: 1, Name: "Loft 1", Status: models.ApartmentActive},
			{ID: 2, Name: "Loft 2", Status: models.ApartmentActive},
		},
		days: map[int64][]models.CalendarDay{
			1: {
				{ApartmentID: 1, Date: mustDay("2024-03-10"), Status: models.DayBooked, SourceTag: "airbnb"},
				{ApartmentID: 1, Date: mustDay("2024-03-11"), Status: models.DayBlocked, SourceTag: models.SourceBooking},
			},
		},
	}

	writer := &recordingWriter{}
	svc := NewOccupancyService(reader, func() ExcelWriter { return writer })

	err := svc.Generate(context.Background(), &bytes.Buffer{},
		mustDay("2024-03-01"), mustDay("2024-03-31"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Loft 1", "Loft 2"}, writer.sheets)
	require.Len(t, writer.headers, 2)
	assert.Equal(t, []string{"Date", "Status", "Source", "Notes"}, writer.headers[0])

	require.Len(t, writer.rows["Loft 1"], 2)
	assert.Equal(t, "2024-03-10", writer.rows["Loft 1"][0][0])
	assert.Equal(t, models.DayBooked, writer.rows["Loft 1"][0][1])
	assert.Empty(t, writer.rows["Loft 2"])
	assert.True(t, writer.saved)
}

func TestGenerateEmptyCatalog(t *testing.T) {
	writer := &recordingWriter{}
	svc := NewOccupancyService(&fakeReader{}, func() ExcelWriter { return writer })

	err := svc.Generate(context.Background(), &bytes.Buffer{},
		mustDay("2024-03-01"), mustDay("2024-03-31"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Occupancy"}, writer.sheets)
	assert.True(t, writer.saved)
}

func TestExcelizeWriterRoundTrip(t *testing.T) {
	writer := NewExcelizeWriter()
	require.NoError(t, writer.AddSheet("Loft with a very long apartment name"))
	require.NoError(t, writer.WriteHeader([]string{"Date", "Status"}))
	require.NoError(t, writer.WriteRow([]interface{}{"2024-03-10", "booked"}))

	var buf bytes.Buffer
	require.NoError(t, writer.Save(&buf))
	assert.NotZero(t, buf.Len())
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "occupancy_2024-03.xlsx", Filename(mustDay("2024-03-15")))
}
