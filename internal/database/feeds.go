package database

import (
	"context"
	"database/sql"
	"time"

	"colivero/internal/models"
)

// CreateFeed registers an iCal feed for an apartment.
func (db *DB) CreateFeed(ctx context.Context, f *models.ICalFeed) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO ical_feeds (apartment_id, feed_name, url, active)
		VALUES (?, ?, ?, ?)`,
		f.ApartmentID, f.FeedName, f.URL, f.Active)
	if err != nil {
		return err
	}
	f.ID, err = res.LastInsertId()
	return err
}

// GetFeed loads one feed by id.
func (db *DB) GetFeed(ctx context.Context, id int64) (*models.ICalFeed, error) {
	var f models.ICalFeed
	var lastSync sql.NullTime
	err := db.QueryRowContext(ctx, `
		SELECT id, apartment_id, feed_name, url, active, last_sync, last_error
		FROM ical_feeds WHERE id = ?`, id,
	).Scan(&f.ID, &f.ApartmentID, &f.FeedName, &f.URL, &f.Active, &lastSync, &f.LastError)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastSync.Valid {
		f.LastSync = &lastSync.Time
	}
	return &f, nil
}

// ListActiveFeeds returns active feeds, optionally restricted to one apartment.
func (db *DB) ListActiveFeeds(ctx context.Context, apartmentID *int64) ([]models.ICalFeed, error) {
	query := `
		SELECT id, apartment_id, feed_name, url, active, last_sync, last_error
		FROM ical_feeds WHERE active = 1`
	var args []interface{}
	if apartmentID != nil {
		query += " AND apartment_id = ?"
		args = append(args, *apartmentID)
	}
	query += " ORDER BY id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ICalFeed
	for rows.Next() {
		var f models.ICalFeed
		var lastSync sql.NullTime
		if err := rows.Scan(&f.ID, &f.ApartmentID, &f.FeedName, &f.URL, &f.Active, &lastSync, &f.LastError); err != nil {
			return nil, err
		}
		if lastSync.Valid {
			f.LastSync = &lastSync.Time
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateFeedSyncState records the outcome of a sync attempt.
func (db *DB) UpdateFeedSyncState(ctx context.Context, id int64, syncedAt time.Time, lastError string) error {
	_, err := db.ExecContext(ctx,
		"UPDATE ical_feeds SET last_sync = ?, last_error = ? WHERE id = ?",
		syncedAt, lastError, id)
	return err
}

// DeleteFeed removes a feed record. Calendar rows it produced become
// orphans until DeleteOrphanedSources runs.
func (db *DB) DeleteFeed(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, "DELETE FROM ical_feeds WHERE id = ?", id)
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
	return nil
}
