// Package report exports occupancy data for back-office use.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"colivero/internal/dates"
	"colivero/internal/models"
)

// CalendarReader provides the data an occupancy report is built from.
type CalendarReader interface {
	ActiveApartments() []models.Apartment
	GetCalendar(ctx context.Context, apartmentID int64, start, end time.Time) ([]models.CalendarDay, error)
}

// ExcelWriter writes tabular data to Excel format.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
}

// OccupancyService builds per-apartment occupancy workbooks.
type OccupancyService struct {
	reader CalendarReader
	writer func() ExcelWriter
}

// NewOccupancyService creates the report service. writerFactory yields a
// fresh writer per report.
func NewOccupancyService(reader CalendarReader, writerFactory func() ExcelWriter) *OccupancyService {
	return &OccupancyService{reader: reader, writer: writerFactory}
}

// Generate writes one sheet per active apartment listing every non-available
// date in [start, end] with its status and owning source.
func (s *OccupancyService) Generate(ctx context.Context, w io.Writer, start, end time.Time) error {
	writer := s.writer()

	apartments := s.reader.ActiveApartments()
	if len(apartments) == 0 {
		if err := writer.AddSheet("Occupancy"); err != nil {
			return err
		}
		return writer.Save(w)
	}

	for _, apt := range apartments {
		if err := writer.AddSheet(apt.Name); err != nil {
			return fmt.Errorf("sheet for %s: %w", apt.Name, err)
		}
		if err := writer.WriteHeader([]string{"Date", "Status", "Source", "Notes"}); err != nil {
			return err
		}

		days, err := s.reader.GetCalendar(ctx, apt.ID, start, end)
		if err != nil {
			return fmt.Errorf("calendar for %s: %w", apt.Name, err)
		}
		for _, day := range days {
			row := []interface{}{dates.Format(day.Date), day.Status, day.SourceTag, day.Notes}
			if err := writer.WriteRow(row); err != nil {
				return err
			}
		}
	}

	return writer.Save(w)
}

// Filename names a report file for the given period start.
func Filename(t time.Time) string {
	return fmt.Sprintf("occupancy_%s.xlsx", t.Format("2006-01"))
}
