package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"colivero/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB represents the database connection and the apartment catalog cache.
type DB struct {
	*sql.DB
	apartments map[int64]models.Apartment
	mu         sync.RWMutex
	logger     *zerolog.Logger
}

// NewDB opens the database, creates tables if needed and warms the
// apartment cache.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL + busy timeout for concurrent readers; immediate transactions so
	// overlap checks and inserts run under one write lock.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:         db,
		apartments: make(map[int64]models.Apartment),
		logger:     logger,
	}

	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := instance.LoadApartments(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Failed to load apartments into cache")
		// Not fatal: the catalog may be empty on first start.
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS apartments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		monthly_price REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS calendar_days (
		apartment_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		source_tag TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(apartment_id, date),
		FOREIGN KEY(apartment_id) REFERENCES apartments(id)
	);
	CREATE INDEX IF NOT EXISTS idx_calendar_days_source ON calendar_days(apartment_id, source_tag);

	CREATE TABLE IF NOT EXISTS bookings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reference TEXT NOT NULL UNIQUE,
		guest_name TEXT NOT NULL DEFAULT '',
		guest_email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		apartment_id INTEGER,
		check_in TEXT NOT NULL,
		check_out TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'confirmed',
		payment_status TEXT NOT NULL DEFAULT 'pending',
		is_split_stay INTEGER NOT NULL DEFAULT 0,
		total_price REAL NOT NULL DEFAULT 0,
		comment TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_bookings_apartment ON bookings(apartment_id, check_in);

	CREATE TABLE IF NOT EXISTS booking_segments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		booking_id INTEGER NOT NULL,
		apartment_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		check_in TEXT NOT NULL,
		check_out TEXT NOT NULL,
		price REAL NOT NULL DEFAULT 0,
		FOREIGN KEY(booking_id) REFERENCES bookings(id)
	);
	CREATE INDEX IF NOT EXISTS idx_segments_booking ON booking_segments(booking_id);
	CREATE INDEX IF NOT EXISTS idx_segments_apartment ON booking_segments(apartment_id, check_in);

	CREATE TABLE IF NOT EXISTS ical_feeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		apartment_id INTEGER NOT NULL,
		feed_name TEXT NOT NULL,
		url TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		last_sync TIMESTAMP,
		last_error TEXT NOT NULL DEFAULT '',
		UNIQUE(apartment_id, feed_name),
		FOREIGN KEY(apartment_id) REFERENCES apartments(id)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// LoadApartments refreshes the in-memory apartment catalog cache.
func (db *DB) LoadApartments(ctx context.Context) error {
	rows, err := db.QueryContext(ctx,
		"SELECT id, name, monthly_price, status, created_at FROM apartments")
	if err != nil {
		return err
	}
	defer rows.Close()

	cache := make(map[int64]models.Apartment)
	for rows.Next() {
		var a models.Apartment
		if err := rows.Scan(&a.ID, &a.Name, &a.MonthlyPrice, &a.Status, &a.CreatedAt); err != nil {
			return err
		}
		cache[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	db.apartments = cache
	db.mu.Unlock()
	return nil
}

// ApartmentByID returns a catalog entry from the cache.
func (db *DB) ApartmentByID(id int64) (*models.Apartment, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	a, ok := db.apartments[id]
	if !ok {
		return nil, false
	}
	return &a, true
}

// ActiveApartments returns active catalog entries ordered by id.
func (db *DB) ActiveApartments() []models.Apartment {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]models.Apartment, 0, len(db.apartments))
	for _, a := range db.apartments {
		if a.IsActive() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateApartment inserts a catalog entry and refreshes the cache.
func (db *DB) CreateApartment(ctx context.Context, a *models.Apartment) error {
	if a.Status == "" {
		a.Status = models.ApartmentActive
	}
	res, err := db.ExecContext(ctx,
		"INSERT INTO apartments (name, monthly_price, status) VALUES (?, ?, ?)",
		a.Name, a.MonthlyPrice, a.Status)
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	return db.LoadApartments(ctx)
}
