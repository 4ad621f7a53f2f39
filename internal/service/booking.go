// Package service implements the booking lifecycle: ledger writes with
// atomic overlap checks, followed by best-effort calendar synchronization.
package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"colivero/internal/dates"
	"colivero/internal/metrics"
	"colivero/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ledger is the authoritative booking store.
type Ledger interface {
	ApartmentByID(id int64) (*models.Apartment, bool)
	CreateBookingWithLock(ctx context.Context, b *models.Booking) error
	CreateBookingWithSegments(ctx context.Context, b *models.Booking) error
	ReplaceBookingSegments(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	UpdateBooking(ctx context.Context, b *models.Booking) error
	DeleteBooking(ctx context.Context, id int64) error
	OccupyingBookings(ctx context.Context, apartmentID int64) ([]models.Booking, error)
}

// Calendar is the per-date occupancy cache written as a side effect of
// ledger mutations.
type Calendar interface {
	SetBulk(ctx context.Context, apartmentID int64, days []time.Time, status, sourceTag string) error
	ReleaseBulk(ctx context.Context, apartmentID int64, days []time.Time, sourceTag string) error
	DeleteBySource(ctx context.Context, apartmentID int64, sourceTag string) (int64, error)
}

// GuestInfo carries the guest fields of a split-stay request.
type GuestInfo struct {
	Name    string
	Email   string
	Phone   string
	Comment string
}

// UpdatePatch is a partial update for a direct booking. Nil fields are left
// unchanged.
type UpdatePatch struct {
	GuestName     *string
	GuestEmail    *string
	Phone         *string
	Comment       *string
	PaymentStatus *string
	Status        *string
	ApartmentID   *int64
	CheckIn       *time.Time
	CheckOut      *time.Time
}

// BookingService keeps the ledger and the calendar consistent.
type BookingService struct {
	ledger   Ledger
	calendar Calendar
	logger   *zerolog.Logger
}

// NewBookingService creates the lifecycle manager.
func NewBookingService(ledger Ledger, calendar Calendar, logger *zerolog.Logger) *BookingService {
	return &BookingService{ledger: ledger, calendar: calendar, logger: logger}
}

// Create validates and persists a direct booking, then occupies its date
// range on the calendar when the status warrants it.
func (s *BookingService) Create(ctx context.Context, b *models.Booking) error {
	if !dates.ValidRange(b.CheckIn, b.CheckOut) {
		return models.ErrInvalidRange
	}
	apt, ok := s.ledger.ApartmentByID(b.ApartmentID)
	if !ok {
		return models.ErrUnknownApartment
	}

	b.CheckIn = dates.Normalize(b.CheckIn)
	b.CheckOut = dates.Normalize(b.CheckOut)
	if b.Reference == "" {
		b.Reference = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = models.BookingConfirmed
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = models.PaymentPending
	}
	if b.TotalPrice == 0 {
		b.TotalPrice = round2(apt.DailyRate() * float64(dates.Nights(b.CheckIn, b.CheckOut)))
	}

	if err := s.ledger.CreateBookingWithLock(ctx, b); err != nil {
		return err
	}
	metrics.IncBookingCreated("direct")

	if b.Occupies() {
		s.occupy(ctx, b.ApartmentID, b.CheckIn, b.CheckOut)
	}
	return nil
}

// Update applies a patch to a direct booking. A metadata-only patch leaves
// the calendar untouched. When dates or status change, the old range is
// released before the new one is occupied: with last-write-wins rows, the
// opposite order would drop overlapping dates of the new range.
func (s *BookingService) Update(ctx context.Context, id int64, patch UpdatePatch) (*models.Booking, error) {
	old, err := s.ledger.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.IsSplitStay {
		return nil, fmt.Errorf("booking %d is a split stay; use UpdateWithSegments", id)
	}

	updated := *old
	applyPatch(&updated, patch)

	if !dates.ValidRange(updated.CheckIn, updated.CheckOut) {
		return nil, models.ErrInvalidRange
	}
	if _, ok := s.ledger.ApartmentByID(updated.ApartmentID); !ok {
		return nil, models.ErrUnknownApartment
	}

	datesChanged := !updated.CheckIn.Equal(old.CheckIn) ||
		!updated.CheckOut.Equal(old.CheckOut) ||
		updated.ApartmentID != old.ApartmentID
	occupancyChanged := datesChanged || updated.Occupies() != old.Occupies()

	if err := s.ledger.UpdateBooking(ctx, &updated); err != nil {
		return nil, err
	}

	if occupancyChanged {
		if old.Occupies() {
			s.release(ctx, old.ApartmentID, old.CheckIn, old.CheckOut)
		}
		if updated.Occupies() {
			s.occupy(ctx, updated.ApartmentID, updated.CheckIn, updated.CheckOut)
		}
	}
	return &updated, nil
}

// Delete removes a booking from the ledger and unconditionally releases
// every date range it held.
func (s *BookingService) Delete(ctx context.Context, id int64) error {
	b, err := s.ledger.GetBooking(ctx, id)
	if err != nil {
		return err
	}

	if err := s.ledger.DeleteBooking(ctx, id); err != nil {
		return err
	}
	metrics.IncBookingDeleted()

	if b.IsSplitStay {
		for _, seg := range b.Segments {
			s.release(ctx, seg.ApartmentID, seg.CheckIn, seg.CheckOut)
		}
	} else {
		s.release(ctx, b.ApartmentID, b.CheckIn, b.CheckOut)
	}
	return nil
}

// CreateWithSegments persists a split-stay booking: at least two contiguous
// back-to-back segments, total price = sum of segment prices, one atomic
// ledger write, then per-segment calendar occupation.
func (s *BookingService) CreateWithSegments(ctx context.Context, guest GuestInfo, segments []models.Segment) (*models.Booking, error) {
	if err := s.validateSegments(segments); err != nil {
		return nil, err
	}

	var total float64
	for _, seg := range segments {
		total += seg.Price
	}

	b := &models.Booking{
		Reference:     uuid.NewString(),
		GuestName:     guest.Name,
		GuestEmail:    guest.Email,
		Phone:         guest.Phone,
		Comment:       guest.Comment,
		CheckIn:       segments[0].CheckIn,
		CheckOut:      segments[len(segments)-1].CheckOut,
		Status:        models.BookingConfirmed,
		PaymentStatus: models.PaymentPending,
		IsSplitStay:   true,
		TotalPrice:    round2(total),
		Segments:      segments,
	}

	if err := s.ledger.CreateBookingWithSegments(ctx, b); err != nil {
		return nil, err
	}
	metrics.IncBookingCreated("split")

	for _, seg := range b.Segments {
		s.occupy(ctx, seg.ApartmentID, seg.CheckIn, seg.CheckOut)
	}
	return b, nil
}

// UpdateWithSegments replaces a split-stay booking's segments wholesale.
// All old ranges are released before any new range is occupied; apartment
// composition can change arbitrarily between edits.
func (s *BookingService) UpdateWithSegments(ctx context.Context, id int64, guest GuestInfo, segments []models.Segment) (*models.Booking, error) {
	old, err := s.ledger.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !old.IsSplitStay {
		return nil, fmt.Errorf("booking %d is not a split stay", id)
	}
	if err := s.validateSegments(segments); err != nil {
		return nil, err
	}

	var total float64
	for _, seg := range segments {
		total += seg.Price
	}

	updated := *old
	updated.GuestName = guest.Name
	updated.GuestEmail = guest.Email
	updated.Phone = guest.Phone
	updated.Comment = guest.Comment
	updated.CheckIn = segments[0].CheckIn
	updated.CheckOut = segments[len(segments)-1].CheckOut
	updated.TotalPrice = round2(total)
	updated.Segments = segments

	if err := s.ledger.ReplaceBookingSegments(ctx, &updated); err != nil {
		return nil, err
	}

	if old.Occupies() {
		for _, seg := range old.Segments {
			s.release(ctx, seg.ApartmentID, seg.CheckIn, seg.CheckOut)
		}
	}
	if updated.Occupies() {
		for _, seg := range updated.Segments {
			s.occupy(ctx, seg.ApartmentID, seg.CheckIn, seg.CheckOut)
		}
	}
	return &updated, nil
}

// ReconcileCalendar re-derives one apartment's booking-owned calendar rows
// from the ledger. Run out-of-band after calendar write failures.
func (s *BookingService) ReconcileCalendar(ctx context.Context, apartmentID int64) error {
	if _, err := s.calendar.DeleteBySource(ctx, apartmentID, models.SourceBooking); err != nil {
		return err
	}

	bookings, err := s.ledger.OccupyingBookings(ctx, apartmentID)
	if err != nil {
		return err
	}
	for _, b := range bookings {
		if b.IsSplitStay {
			for _, seg := range b.Segments {
				if seg.ApartmentID != apartmentID {
					continue
				}
				if err := s.calendar.SetBulk(ctx, apartmentID,
					dates.Range(seg.CheckIn, seg.CheckOut), models.DayBooked, models.SourceBooking); err != nil {
					return err
				}
			}
		} else {
			if err := s.calendar.SetBulk(ctx, apartmentID,
				dates.Range(b.CheckIn, b.CheckOut), models.DayBooked, models.SourceBooking); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateSegments checks count, per-segment ranges, apartment ids and the
// contiguity invariant: segment[i].check_out == segment[i+1].check_in.
func (s *BookingService) validateSegments(segments []models.Segment) error {
	if len(segments) < 2 {
		return models.ErrTooFewSegments
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].Position < segments[j].Position })

	for i := range segments {
		segments[i].CheckIn = dates.Normalize(segments[i].CheckIn)
		segments[i].CheckOut = dates.Normalize(segments[i].CheckOut)

		if !dates.ValidRange(segments[i].CheckIn, segments[i].CheckOut) {
			return models.ErrInvalidRange
		}
		if _, ok := s.ledger.ApartmentByID(segments[i].ApartmentID); !ok {
			return models.ErrUnknownApartment
		}
		if i > 0 && !segments[i].CheckIn.Equal(segments[i-1].CheckOut) {
			return models.ErrSegmentsNotContiguous
		}
	}
	return nil
}

// occupy and release are best-effort: the ledger write already committed,
// so a calendar failure is logged and swallowed. ReconcileCalendar can
// re-derive the rows later.
func (s *BookingService) occupy(ctx context.Context, apartmentID int64, checkIn, checkOut time.Time) {
	err := s.calendar.SetBulk(ctx, apartmentID, dates.Range(checkIn, checkOut),
		models.DayBooked, models.SourceBooking)
	if err != nil {
		metrics.IncCalendarWriteFailure()
		s.logger.Error().Err(err).
			Int64("apartment_id", apartmentID).
			Str("check_in", dates.Format(checkIn)).
			Str("check_out", dates.Format(checkOut)).
			Msg("calendar occupy failed; ledger remains authoritative")
	}
}

func (s *BookingService) release(ctx context.Context, apartmentID int64, checkIn, checkOut time.Time) {
	err := s.calendar.ReleaseBulk(ctx, apartmentID, dates.Range(checkIn, checkOut),
		models.SourceBooking)
	if err != nil {
		metrics.IncCalendarWriteFailure()
		s.logger.Error().Err(err).
			Int64("apartment_id", apartmentID).
			Str("check_in", dates.Format(checkIn)).
			Str("check_out", dates.Format(checkOut)).
			Msg("calendar release failed; ledger remains authoritative")
	}
}

func applyPatch(b *models.Booking, p UpdatePatch) {
	if p.GuestName != nil {
		b.GuestName = *p.GuestName
	}
	if p.GuestEmail != nil {
		b.GuestEmail = *p.GuestEmail
	}
	if p.Phone != nil {
		b.Phone = *p.Phone
	}
	if p.Comment != nil {
		b.Comment = *p.Comment
	}
	if p.PaymentStatus != nil {
		b.PaymentStatus = *p.PaymentStatus
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.ApartmentID != nil {
		b.ApartmentID = *p.ApartmentID
	}
	if p.CheckIn != nil {
		b.CheckIn = dates.Normalize(*p.CheckIn)
	}
	if p.CheckOut != nil {
		b.CheckOut = dates.Normalize(*p.CheckOut)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
