package ical

import (
	"context"
	"time"

	"colivero/internal/dates"
	"colivero/internal/metrics"
	"colivero/internal/models"
	"colivero/internal/ratelimit"

	"github.com/rs/zerolog"
)

// Store is the slice of the database the sync engine needs.
type Store interface {
	GetFeed(ctx context.Context, id int64) (*models.ICalFeed, error)
	ListActiveFeeds(ctx context.Context, apartmentID *int64) ([]models.ICalFeed, error)
	UpdateFeedSyncState(ctx context.Context, id int64, syncedAt time.Time, lastError string) error
	SetBulk(ctx context.Context, apartmentID int64, days []time.Time, status, sourceTag string) error
	DeleteBySource(ctx context.Context, apartmentID int64, sourceTag string) (int64, error)
	DeleteOrphanedSources(ctx context.Context, apartmentID *int64) (int64, error)
}

// FeedSyncResult is the per-feed outcome of a sync run. Fetch and parse
// failures land in Err and never escape a batch.
type FeedSyncResult struct {
	FeedID        int64     `json:"feed_id"`
	FeedName      string    `json:"feed_name"`
	ApartmentID   int64     `json:"apartment_id"`
	EventsFound   int       `json:"events_found"`
	EventsSkipped int       `json:"events_skipped"`
	DatesWritten  int       `json:"dates_written"`
	RateLimited   bool      `json:"rate_limited,omitempty"`
	SyncedAt      time.Time `json:"synced_at"`
	Err           error     `json:"-"`
	Error         string    `json:"error,omitempty"`
}

// Engine synchronizes external iCal feeds into the calendar under
// feed-scoped ownership.
type Engine struct {
	store   Store
	fetcher *Fetcher
	limiter *ratelimit.Limiter
	logger  *zerolog.Logger
}

// NewEngine creates the sync engine. limiter may be nil.
func NewEngine(store Store, fetcher *Fetcher, limiter *ratelimit.Limiter, logger *zerolog.Logger) *Engine {
	return &Engine{store: store, fetcher: fetcher, limiter: limiter, logger: logger}
}

// SyncFeed fetches, parses and applies one feed. The calendar write is
// replace-not-merge: the feed's previous rows are deleted, then the fresh
// set is bulk-inserted, so re-sync is idempotent and dates of cancelled or
// moved upstream events disappear without touching another feed's rows or
// direct-booking rows.
func (e *Engine) SyncFeed(ctx context.Context, feedID int64) (FeedSyncResult, error) {
	feed, err := e.store.GetFeed(ctx, feedID)
	if err != nil {
		return FeedSyncResult{FeedID: feedID}, err
	}
	return e.syncFeed(ctx, feed), nil
}

func (e *Engine) syncFeed(ctx context.Context, feed *models.ICalFeed) FeedSyncResult {
	result := FeedSyncResult{
		FeedID:      feed.ID,
		FeedName:    feed.FeedName,
		ApartmentID: feed.ApartmentID,
		SyncedAt:    time.Now().UTC(),
	}

	fail := func(err error) FeedSyncResult {
		result.Err = err
		result.Error = err.Error()
		metrics.IncFeedSync("error")
		e.logger.Error().Err(err).
			Int64("feed_id", feed.ID).
			Str("feed_name", feed.FeedName).
			Msg("feed sync failed")
		if dbErr := e.store.UpdateFeedSyncState(ctx, feed.ID, result.SyncedAt, err.Error()); dbErr != nil {
			e.logger.Error().Err(dbErr).Int64("feed_id", feed.ID).Msg("record sync error failed")
		}
		return result
	}

	body, err := e.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		return fail(err)
	}

	parsed, err := Parse(body)
	if err != nil {
		return fail(err)
	}
	result.EventsFound = len(parsed.Events)
	result.EventsSkipped = parsed.Skipped

	// Dedupe dates across events; overlapping upstream events are common.
	seen := make(map[string]bool)
	var days []time.Time
	for _, ev := range parsed.Events {
		for _, day := range ev.OccupiedDates() {
			key := dates.Format(day)
			if seen[key] {
				continue
			}
			seen[key] = true
			days = append(days, day)
		}
	}

	if _, err := e.store.DeleteBySource(ctx, feed.ApartmentID, feed.FeedName); err != nil {
		return fail(err)
	}
	if err := e.store.SetBulk(ctx, feed.ApartmentID, days, models.DayBooked, feed.FeedName); err != nil {
		return fail(err)
	}
	result.DatesWritten = len(days)

	if err := e.store.UpdateFeedSyncState(ctx, feed.ID, result.SyncedAt, ""); err != nil {
		e.logger.Error().Err(err).Int64("feed_id", feed.ID).Msg("record sync success failed")
	}

	metrics.IncFeedSync("ok")
	e.logger.Info().
		Int64("feed_id", feed.ID).
		Str("feed_name", feed.FeedName).
		Int("events", result.EventsFound).
		Int("skipped", result.EventsSkipped).
		Int("dates", result.DatesWritten).
		Msg("feed synced")
	return result
}

// SyncAllFeeds syncs every active feed, optionally restricted to one
// apartment. Feeds sync independently; one feed's failure never aborts its
// siblings, and the batch itself never errors on per-feed problems.
func (e *Engine) SyncAllFeeds(ctx context.Context, apartmentID *int64) ([]FeedSyncResult, error) {
	feeds, err := e.store.ListActiveFeeds(ctx, apartmentID)
	if err != nil {
		return nil, err
	}

	results := make([]FeedSyncResult, 0, len(feeds))
	for i := range feeds {
		feed := feeds[i]

		allowed, rlErr := e.limiter.Allow(ctx, feed.FeedName)
		if rlErr != nil {
			e.logger.Warn().Err(rlErr).Str("feed_name", feed.FeedName).Msg("rate limiter unavailable")
		}
		if !allowed {
			metrics.IncFeedSync("rate_limited")
			results = append(results, FeedSyncResult{
				FeedID:      feed.ID,
				FeedName:    feed.FeedName,
				ApartmentID: feed.ApartmentID,
				RateLimited: true,
				SyncedAt:    time.Now().UTC(),
			})
			continue
		}

		results = append(results, e.syncFeed(ctx, &feed))
	}
	return results, nil
}

// CleanupOrphaned removes calendar rows whose feed record is gone or
// inactive, guarding against stale occupancy when a feed is deleted outside
// the normal sync path. Returns the number of rows removed.
func (e *Engine) CleanupOrphaned(ctx context.Context, apartmentID *int64) (int64, error) {
	n, err := e.store.DeleteOrphanedSources(ctx, apartmentID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info().Int64("rows", n).Msg("orphaned feed rows removed")
	}
	return n, nil
}
