package database

import (
	"context"
	"fmt"
	"time"

	"colivero/internal/dates"
	"colivero/internal/models"
)

// GetCalendar returns calendar rows for an apartment within [start, end]
// inclusive, ordered by date. Dates without a row are available and are
// not returned.
func (db *DB) GetCalendar(ctx context.Context, apartmentID int64, start, end time.Time) ([]models.CalendarDay, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT apartment_id, date, status, source_tag, notes, updated_at
		FROM calendar_days
		WHERE apartment_id = ? AND date >= ? AND date <= ?
		ORDER BY date`,
		apartmentID, dates.Format(start), dates.Format(end),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CalendarDay
	for rows.Next() {
		var d models.CalendarDay
		var date string
		if err := rows.Scan(&d.ApartmentID, &date, &d.Status, &d.SourceTag, &d.Notes, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if d.Date, err = dates.Parse(date); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetBulk upserts one row per date with the given status and source tag.
// The write is idempotent; on conflict the last write wins.
func (db *DB) SetBulk(ctx context.Context, apartmentID int64, days []time.Time, status, sourceTag string) error {
	if len(days) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO calendar_days (apartment_id, date, status, source_tag, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(apartment_id, date) DO UPDATE SET
			status = excluded.status,
			source_tag = excluded.source_tag,
			updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, day := range days {
		if _, err := stmt.ExecContext(ctx, apartmentID, dates.Format(day), status, sourceTag, now); err != nil {
			return fmt.Errorf("upsert calendar day %s: %w", dates.Format(day), err)
		}
	}
	return tx.Commit()
}

// ReleaseBulk removes the given dates for one source tag, returning them to
// available. Rows owned by a different source are left untouched, so a
// booking release never clobbers a feed's row for the same date.
func (db *DB) ReleaseBulk(ctx context.Context, apartmentID int64, days []time.Time, sourceTag string) error {
	if len(days) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"DELETE FROM calendar_days WHERE apartment_id = ? AND date = ? AND source_tag = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, day := range days {
		if _, err := stmt.ExecContext(ctx, apartmentID, dates.Format(day), sourceTag); err != nil {
			return fmt.Errorf("release calendar day %s: %w", dates.Format(day), err)
		}
	}
	return tx.Commit()
}

// blockedDayCount counts booked or blocked calendar rows in the half-open
// range [in, out). excludeSource skips rows owned by that source tag: the
// booking paths pass SourceBooking so the ledger overlap check stays the
// single authority for booking-vs-booking conflicts, while feed-owned and
// manually blocked rows still conflict.
func (db *DB) blockedDayCount(ctx context.Context, q queryer, apartmentID int64, in, out, excludeSource string) (int, error) {
	var blocked int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM calendar_days
		WHERE apartment_id = ? AND date >= ? AND date < ?
		  AND status IN (?, ?) AND source_tag != ?`,
		apartmentID, in, out, models.DayBooked, models.DayBlocked, excludeSource,
	).Scan(&blocked)
	return blocked, err
}

// IsRangeAvailable reports whether every date in the half-open range
// [checkIn, checkOutExclusive) is free. Both the calendar cache and the
// bookings ledger are consulted: the cache alone is never the authority,
// so a stale cache cannot admit a double booking.
func (db *DB) IsRangeAvailable(ctx context.Context, apartmentID int64, checkIn, checkOutExclusive time.Time) (bool, error) {
	if !dates.ValidRange(checkIn, checkOutExclusive) {
		return false, models.ErrInvalidRange
	}

	in, out := dates.Format(checkIn), dates.Format(checkOutExclusive)

	blocked, err := db.blockedDayCount(ctx, db.DB, apartmentID, in, out, "")
	if err != nil {
		return false, err
	}
	if blocked > 0 {
		return false, nil
	}

	overlap, err := db.overlapExists(ctx, db.DB, apartmentID, in, out, 0)
	if err != nil {
		return false, err
	}
	return !overlap, nil
}

// UnavailableDates returns the set of dates in [start, endExclusive) whose
// calendar row is booked or blocked, keyed by YYYY-MM-DD.
func (db *DB) UnavailableDates(ctx context.Context, apartmentID int64, start, endExclusive time.Time) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT date FROM calendar_days
		WHERE apartment_id = ? AND date >= ? AND date < ? AND status IN (?, ?)`,
		apartmentID, dates.Format(start), dates.Format(endExclusive),
		models.DayBooked, models.DayBlocked,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}
		out[date] = true
	}
	return out, rows.Err()
}

// DeleteBySource removes every calendar row an iCal feed (or the booking
// lifecycle) previously wrote for one apartment. Re-sync is replace-not-merge:
// callers delete the old contribution, then bulk-insert the fresh set.
func (db *DB) DeleteBySource(ctx context.Context, apartmentID int64, sourceTag string) (int64, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM calendar_days WHERE apartment_id = ? AND source_tag = ?",
		apartmentID, sourceTag)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOrphanedSources removes calendar rows whose source tag names an iCal
// feed that no longer exists or is inactive. Rows written by the booking
// lifecycle are never touched. A nil apartmentID scans all apartments.
func (db *DB) DeleteOrphanedSources(ctx context.Context, apartmentID *int64) (int64, error) {
	query := `
		DELETE FROM calendar_days
		WHERE source_tag != ?
		  AND NOT EXISTS (
			SELECT 1 FROM ical_feeds f
			WHERE f.apartment_id = calendar_days.apartment_id
			  AND f.feed_name = calendar_days.source_tag
			  AND f.active = 1
		  )`
	args := []interface{}{models.SourceBooking}
	if apartmentID != nil {
		query += " AND apartment_id = ?"
		args = append(args, *apartmentID)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
