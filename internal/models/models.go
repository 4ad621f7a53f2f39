package models

import "time"

// Calendar day statuses.
const (
	DayAvailable = "available"
	DayBooked    = "booked"
	DayBlocked   = "blocked"
)

// Booking statuses.
const (
	BookingConfirmed  = "confirmed"
	BookingCheckedIn  = "checked_in"
	BookingCheckedOut = "checked_out"
	BookingCancelled  = "cancelled"
)

// Payment statuses.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

// Apartment statuses.
const (
	ApartmentActive   = "active"
	ApartmentInactive = "inactive"
)

// SourceBooking tags calendar rows written by the booking lifecycle,
// as opposed to rows owned by a named iCal feed.
const SourceBooking = "booking"

// daysPerMonth is the fixed proration divisor for daily rates.
// Inherited approximation: ignores actual month length.
const daysPerMonth = 30

// Apartment is a read-mostly catalog entry.
type Apartment struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	MonthlyPrice float64   `json:"monthly_price"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// DailyRate returns the flat prorated nightly price.
func (a *Apartment) DailyRate() float64 {
	return a.MonthlyPrice / daysPerMonth
}

// IsActive reports whether the apartment is bookable.
func (a *Apartment) IsActive() bool {
	return a.Status == ApartmentActive
}

// CalendarDay is one (apartment, date) occupancy cache record.
// Absence of a row means the date is available.
type CalendarDay struct {
	ApartmentID int64     `json:"apartment_id"`
	Date        time.Time `json:"date"`
	Status      string    `json:"status"`
	SourceTag   string    `json:"source_tag,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Booking is the aggregate root of the ledger. A split-stay booking owns
// two or more segments and its ApartmentID is zero; a direct booking has
// no segments and a single apartment.
type Booking struct {
	ID            int64     `json:"id"`
	Reference     string    `json:"reference"`
	GuestName     string    `json:"guest_name"`
	GuestEmail    string    `json:"guest_email"`
	Phone         string    `json:"phone"`
	ApartmentID   int64     `json:"apartment_id,omitempty"`
	CheckIn       time.Time `json:"check_in"`
	CheckOut      time.Time `json:"check_out"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	IsSplitStay   bool      `json:"is_split_stay"`
	TotalPrice    float64   `json:"total_price"`
	Comment       string    `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Segments      []Segment `json:"segments,omitempty"`
}

// Occupies reports whether the booking holds its date range on the calendar.
func (b *Booking) Occupies() bool {
	return b.Status == BookingConfirmed || b.Status == BookingCheckedIn
}

// Segment is one apartment leg of a split-stay booking. Segments are
// contiguous back-to-back half-open ranges ordered by Position.
type Segment struct {
	ID          int64     `json:"id"`
	BookingID   int64     `json:"booking_id"`
	ApartmentID int64     `json:"apartment_id"`
	Position    int       `json:"position"`
	CheckIn     time.Time `json:"check_in"`
	CheckOut    time.Time `json:"check_out"`
	Price       float64   `json:"price"`
}

// ICalFeed is an external calendar subscription for one apartment.
// FeedName is the ownership key tagged onto every calendar row it produces.
type ICalFeed struct {
	ID          int64      `json:"id"`
	ApartmentID int64      `json:"apartment_id"`
	FeedName    string     `json:"feed_name"`
	URL         string     `json:"url"`
	Active      bool       `json:"active"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}
