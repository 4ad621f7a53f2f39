package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"colivero/internal/dates"
	"colivero/internal/models"
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// overlapExists reports whether any confirmed or checked-in booking (direct
// or via a split-stay segment) overlaps the half-open range [in, out) for
// the apartment. Dates are canonical YYYY-MM-DD strings so lexicographic
// comparison matches date order. excludeBookingID skips one booking, used
// when re-checking dates during an update of that same booking.
func (db *DB) overlapExists(ctx context.Context, q queryer, apartmentID int64, in, out string, excludeBookingID int64) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM bookings
			 WHERE apartment_id = ? AND id != ?
			   AND status IN (?, ?)
			   AND check_in < ? AND check_out > ?)
			+
			(SELECT COUNT(*) FROM booking_segments s
			 JOIN bookings b ON b.id = s.booking_id
			 WHERE s.apartment_id = ? AND b.id != ?
			   AND b.status IN (?, ?)
			   AND s.check_in < ? AND s.check_out > ?)`,
		apartmentID, excludeBookingID,
		models.BookingConfirmed, models.BookingCheckedIn,
		out, in,
		apartmentID, excludeBookingID,
		models.BookingConfirmed, models.BookingCheckedIn,
		out, in,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// rangeConflicts reports whether the half-open range [in, out) is taken for
// the apartment: either another occupying booking in the ledger, or a
// booked/blocked calendar row owned by an external source (an iCal feed or a
// manual block). Booking-owned calendar rows are excluded; the ledger check
// already covers those and is the authority for booking-vs-booking conflicts.
func (db *DB) rangeConflicts(ctx context.Context, q queryer, apartmentID int64, in, out string, excludeBookingID int64) (bool, error) {
	overlap, err := db.overlapExists(ctx, q, apartmentID, in, out, excludeBookingID)
	if err != nil {
		return false, err
	}
	if overlap {
		return true, nil
	}

	blocked, err := db.blockedDayCount(ctx, q, apartmentID, in, out, models.SourceBooking)
	if err != nil {
		return false, err
	}
	return blocked > 0, nil
}

// CreateBookingWithLock inserts a direct booking after an atomic conflict
// check against the ledger and the externally owned calendar rows. The
// transaction takes the write lock immediately (_txlock=immediate), so check
// and insert cannot interleave with a concurrent insert.
func (db *DB) CreateBookingWithLock(ctx context.Context, b *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	in, out := dates.Format(b.CheckIn), dates.Format(b.CheckOut)

	if b.Occupies() {
		taken, err := db.rangeConflicts(ctx, tx, b.ApartmentID, in, out, 0)
		if err != nil {
			return err
		}
		if taken {
			return models.ErrConflict
		}
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (reference, guest_name, guest_email, phone, apartment_id,
			check_in, check_out, status, payment_status, is_split_stay, total_price,
			comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		b.Reference, b.GuestName, b.GuestEmail, b.Phone, b.ApartmentID,
		in, out, b.Status, b.PaymentStatus, b.TotalPrice, b.Comment, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	b.CreatedAt, b.UpdatedAt = now, now

	return tx.Commit()
}

// CreateBookingWithSegments inserts a split-stay booking and all of its
// segments as one atomic unit. A failed segment insert or overlap rolls
// back the booking insert.
func (db *DB) CreateBookingWithSegments(ctx context.Context, b *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if b.Occupies() {
		for _, s := range b.Segments {
			taken, err := db.rangeConflicts(ctx, tx,
				s.ApartmentID, dates.Format(s.CheckIn), dates.Format(s.CheckOut), 0)
			if err != nil {
				return err
			}
			if taken {
				return models.ErrConflict
			}
		}
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (reference, guest_name, guest_email, phone, apartment_id,
			check_in, check_out, status, payment_status, is_split_stay, total_price,
			comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		b.Reference, b.GuestName, b.GuestEmail, b.Phone,
		dates.Format(b.CheckIn), dates.Format(b.CheckOut),
		b.Status, b.PaymentStatus, b.TotalPrice, b.Comment, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert split booking: %w", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	b.CreatedAt, b.UpdatedAt = now, now

	if err := insertSegments(ctx, tx, b.ID, b.Segments); err != nil {
		return err
	}
	for i := range b.Segments {
		b.Segments[i].BookingID = b.ID
	}

	return tx.Commit()
}

func insertSegments(ctx context.Context, tx *sql.Tx, bookingID int64, segments []models.Segment) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO booking_segments (booking_id, apartment_id, position, check_in, check_out, price)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, s := range segments {
		res, err := stmt.ExecContext(ctx, bookingID, s.ApartmentID, s.Position,
			dates.Format(s.CheckIn), dates.Format(s.CheckOut), s.Price)
		if err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
		if segments[i].ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceBookingSegments deletes all segments of a booking and inserts the
// new set, updating the booking envelope in the same transaction. Segment
// composition can change arbitrarily between edits, so no diffing.
func (db *DB) ReplaceBookingSegments(ctx context.Context, b *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if b.Occupies() {
		for _, s := range b.Segments {
			taken, err := db.rangeConflicts(ctx, tx,
				s.ApartmentID, dates.Format(s.CheckIn), dates.Format(s.CheckOut), b.ID)
			if err != nil {
				return err
			}
			if taken {
				return models.ErrConflict
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM booking_segments WHERE booking_id = ?", b.ID); err != nil {
		return err
	}
	if err := insertSegments(ctx, tx, b.ID, b.Segments); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bookings SET guest_name = ?, guest_email = ?, phone = ?,
			check_in = ?, check_out = ?, status = ?, payment_status = ?,
			total_price = ?, comment = ?, updated_at = ?
		WHERE id = ?`,
		b.GuestName, b.GuestEmail, b.Phone,
		dates.Format(b.CheckIn), dates.Format(b.CheckOut),
		b.Status, b.PaymentStatus, b.TotalPrice, b.Comment, time.Now(), b.ID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetBooking loads a booking and its segments.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var b models.Booking
	var apartmentID sql.NullInt64
	var in, out string
	err := db.QueryRowContext(ctx, `
		SELECT id, reference, guest_name, guest_email, phone, apartment_id,
			check_in, check_out, status, payment_status, is_split_stay,
			total_price, comment, created_at, updated_at
		FROM bookings WHERE id = ?`, id,
	).Scan(
		&b.ID, &b.Reference, &b.GuestName, &b.GuestEmail, &b.Phone, &apartmentID,
		&in, &out, &b.Status, &b.PaymentStatus, &b.IsSplitStay,
		&b.TotalPrice, &b.Comment, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if apartmentID.Valid {
		b.ApartmentID = apartmentID.Int64
	}
	if b.CheckIn, err = dates.Parse(in); err != nil {
		return nil, err
	}
	if b.CheckOut, err = dates.Parse(out); err != nil {
		return nil, err
	}

	if b.IsSplitStay {
		if b.Segments, err = db.getSegments(ctx, b.ID); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

func (db *DB) getSegments(ctx context.Context, bookingID int64) ([]models.Segment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, booking_id, apartment_id, position, check_in, check_out, price
		FROM booking_segments WHERE booking_id = ? ORDER BY position`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Segment
	for rows.Next() {
		var s models.Segment
		var in, co string
		if err := rows.Scan(&s.ID, &s.BookingID, &s.ApartmentID, &s.Position, &in, &co, &s.Price); err != nil {
			return nil, err
		}
		if s.CheckIn, err = dates.Parse(in); err != nil {
			return nil, err
		}
		if s.CheckOut, err = dates.Parse(co); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateBooking rewrites a direct booking's row. When the new dates or
// status occupy the calendar, the overlap check runs in the same
// transaction, excluding the booking itself.
func (db *DB) UpdateBooking(ctx context.Context, b *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	in, out := dates.Format(b.CheckIn), dates.Format(b.CheckOut)

	if b.Occupies() && !b.IsSplitStay {
		taken, err := db.rangeConflicts(ctx, tx, b.ApartmentID, in, out, b.ID)
		if err != nil {
			return err
		}
		if taken {
			return models.ErrConflict
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE bookings SET guest_name = ?, guest_email = ?, phone = ?,
			apartment_id = ?, check_in = ?, check_out = ?, status = ?,
			payment_status = ?, total_price = ?, comment = ?, updated_at = ?
		WHERE id = ?`,
		b.GuestName, b.GuestEmail, b.Phone,
		b.ApartmentID, in, out, b.Status,
		b.PaymentStatus, b.TotalPrice, b.Comment, time.Now(), b.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}

	return tx.Commit()
}

// DeleteBooking removes a booking and its segments from the ledger.
func (db *DB) DeleteBooking(ctx context.Context, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM booking_segments WHERE booking_id = ?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM bookings WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}

	return tx.Commit()
}

// OccupyingBookings returns confirmed and checked-in bookings touching an
// apartment, either directly or through a split-stay segment. Used by the
// reconciliation pass that re-derives the calendar from the ledger.
func (db *DB) OccupyingBookings(ctx context.Context, apartmentID int64) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT b.id FROM bookings b
		LEFT JOIN booking_segments s ON s.booking_id = b.id
		WHERE b.status IN (?, ?)
		  AND (b.apartment_id = ? OR s.apartment_id = ?)
		ORDER BY b.id`,
		models.BookingConfirmed, models.BookingCheckedIn, apartmentID, apartmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.Booking, 0, len(ids))
	for _, id := range ids {
		b, err := db.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}
