package ical

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"colivero/internal/database"
	"colivero/internal/dates"
	"colivero/internal/models"
	"colivero/internal/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedServer serves a swappable iCal body, plus a /missing path that 404s.
type feedServer struct {
	*httptest.Server
	mu   sync.Mutex
	body []byte
	hits int
}

func newFeedServer(t *testing.T, body []byte) *feedServer {
	t.Helper()
	fs := &feedServer{body: body}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.hits++
		_, _ = w.Write(fs.body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) hitCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits
}

func (fs *feedServer) setBody(body []byte) {
	fs.mu.Lock()
	fs.body = body
	fs.mu.Unlock()
}

func newSyncEnv(t *testing.T) (*database.DB, *Engine) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine := NewEngine(db, NewFetcher(5*time.Second), nil, &logger)
	return db, engine
}

func seedFeed(t *testing.T, db *database.DB, name, url string) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	a := &models.Apartment{Name: "Apt " + name, MonthlyPrice: 900}
	require.NoError(t, db.CreateApartment(ctx, a))

	f := &models.ICalFeed{ApartmentID: a.ID, FeedName: name, URL: url, Active: true}
	require.NoError(t, db.CreateFeed(ctx, f))
	return f.ID, a.ID
}

func allDayEvent(uid, start, end string) []string {
	return []string{
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTART;VALUE=DATE:" + start,
		"DTEND;VALUE=DATE:" + end,
		"END:VEVENT",
	}
}

func calendarRows(t *testing.T, db *database.DB, apartmentID int64) []models.CalendarDay {
	t.Helper()
	out, err := db.GetCalendar(context.Background(), apartmentID,
		mustDay("2024-01-01"), mustDay("2024-12-31"))
	require.NoError(t, err)
	return out
}

func mustDay(s string) time.Time {
	t, err := dates.Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSyncFeedIdempotent(t *testing.T) {
	ctx := context.Background()
	db, engine := newSyncEnv(t)

	var lines []string
	lines = append(lines, allDayEvent("ev-1", "20240601", "20240605")...)
	lines = append(lines, allDayEvent("ev-2", "20240610", "20240612")...)
	server := newFeedServer(t, feedBody(lines...))

	feedID, aptID := seedFeed(t, db, "airbnb", server.URL)

	first, err := engine.SyncFeed(ctx, feedID)
	require.NoError(t, err)
	require.NoError(t, first.Err)
	assert.Equal(t, 2, first.EventsFound)
	assert.Equal(t, 6, first.DatesWritten)

	second, err := engine.SyncFeed(ctx, feedID)
	require.NoError(t, err)
	require.NoError(t, second.Err)
	assert.Equal(t, first.DatesWritten, second.DatesWritten)

	rows := calendarRows(t, db, aptID)
	require.Len(t, rows, 6)
	for _, d := range rows {
		assert.Equal(t, models.DayBooked, d.Status)
		assert.Equal(t, "airbnb", d.SourceTag)
	}

	feed, err := db.GetFeed(ctx, feedID)
	require.NoError(t, err)
	assert.NotNil(t, feed.LastSync)
	assert.Empty(t, feed.LastError)
}

func TestSyncFeedOverlappingEventsDeduped(t *testing.T) {
	ctx := context.Background()
	db, engine := newSyncEnv(t)

	var lines []string
	lines = append(lines, allDayEvent("ev-1", "20240601", "20240605")...)
	lines = append(lines, allDayEvent("ev-2", "20240603", "20240607")...)
	server := newFeedServer(t, feedBody(lines...))

	feedID, aptID := seedFeed(t, db, "airbnb", server.URL)

	result, err := engine.SyncFeed(ctx, feedID)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	// June 1-6 once each, not the per-event sum.
	assert.Equal(t, 6, result.DatesWritten)
	assert.Len(t, calendarRows(t, db, aptID), 6)
}

func TestSyncFeedRemovesUpstreamCancellations(t *testing.T) {
	ctx := context.Background()
	db, engine := newSyncEnv(t)

	server := newFeedServer(t, feedBody(allDayEvent("ev-1", "20240601", "20240605")...))
	feedID, aptID := seedFeed(t, db, "airbnb", server.URL)

	// A direct booking's calendar row must survive every re-sync.
	require.NoError(t, db.SetBulk(ctx, aptID,
		dates.Range(mustDay("2024-07-01"), mustDay("2024-07-03")),
		models.DayBooked, models.SourceBooking))

	first, err := engine.SyncFeed(ctx, feedID)
	require.NoError(t, err)
	require.NoError(t, first.Err)

	// The upstream event moved; its old dates must disappear.
	server.setBody(feedBody(allDayEvent("ev-1", "20240610", "20240612")...))

	second, err := engine.SyncFeed(ctx, feedID)
	require.NoError(t, err)
	require.NoError(t, second.Err)
	assert.Equal(t, 2, second.DatesWritten)

	rows := calendarRows(t, db, aptID)
	require.Len(t, rows, 4)

	byTag := map[string][]string{}
	for _, d := range rows {
		byTag[d.SourceTag] = append(byTag[d.SourceTag], dates.Format(d.Date))
	}
	assert.Equal(t, []string{"2024-06-10", "2024-06-11"}, byTag["airbnb"])
	assert.Equal(t, []string{"2024-07-01", "2024-07-02"}, byTag[models.SourceBooking])
}

func TestSyncFeedRecordsFailure(t *testing.T) {
	ctx := context.Background()
	db, engine := newSyncEnv(t)

	server := newFeedServer(t, nil)
	feedID, aptID := seedFeed(t, db, "airbnb", server.URL+"/missing")

	result, err := engine.SyncFeed(ctx, feedID)
	require.NoError(t, err)
	require.Error(t, result.Err)
	assert.NotEmpty(t, result.Error)

	feed, err := db.GetFeed(ctx, feedID)
	require.NoError(t, err)
	assert.NotEmpty(t, feed.LastError)
	assert.Empty(t, calendarRows(t, db, aptID))
}

func TestSyncFeedUnknown(t *testing.T) {
	_, engine := newSyncEnv(t)
	_, err := engine.SyncFeed(context.Background(), 404)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSyncAllFeedsIsolation(t *testing.T) {
	ctx := context.Background()
	db, engine := newSyncEnv(t)

	server := newFeedServer(t, feedBody(allDayEvent("ev-1", "20240601", "20240603")...))

	_, goodApt := seedFeed(t, db, "airbnb", server.URL)
	seedFeed(t, db, "booking.com", server.URL+"/missing")

	results, err := engine.SyncAllFeeds(ctx, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byName := map[string]FeedSyncResult{}
	for _, r := range results {
		byName[r.FeedName] = r
	}
	assert.NoError(t, byName["airbnb"].Err)
	assert.Equal(t, 2, byName["airbnb"].DatesWritten)
	assert.Error(t, byName["booking.com"].Err)

	assert.Len(t, calendarRows(t, db, goodApt), 2)
}

func TestSyncAllFeedsRateLimited(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	limiter := ratelimit.New(rdb, "test:feedsync", 1, 5*time.Minute)

	engine := NewEngine(db, NewFetcher(5*time.Second), limiter, &logger)

	server := newFeedServer(t, feedBody(allDayEvent("ev-1", "20240601", "20240603")...))
	_, aptID := seedFeed(t, db, "airbnb", server.URL)

	first, err := engine.SyncAllFeeds(ctx, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.False(t, first[0].RateLimited)
	assert.Equal(t, 2, first[0].DatesWritten)

	// A second run inside the window is skipped without touching the feed.
	second, err := engine.SyncAllFeeds(ctx, nil)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.True(t, second[0].RateLimited)
	assert.Equal(t, 0, second[0].DatesWritten)
	assert.Equal(t, 1, server.hitCount())
	assert.Len(t, calendarRows(t, db, aptID), 2)

	// The window expiring admits the feed again.
	mr.FastForward(5*time.Minute + time.Second)

	third, err := engine.SyncAllFeeds(ctx, nil)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.False(t, third[0].RateLimited)
	assert.Equal(t, 2, server.hitCount())
}

func TestCleanupOrphaned(t *testing.T) {
	ctx := context.Background()
	db, engine := newSyncEnv(t)

	server := newFeedServer(t, feedBody(allDayEvent("ev-1", "20240601", "20240603")...))
	feedID, aptID := seedFeed(t, db, "airbnb", server.URL)

	result, err := engine.SyncFeed(ctx, feedID)
	require.NoError(t, err)
	require.NoError(t, result.Err)

	// Deleting the feed strands its calendar rows until cleanup runs.
	require.NoError(t, db.DeleteFeed(ctx, feedID))

	removed, err := engine.CleanupOrphaned(ctx, &aptID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Empty(t, calendarRows(t, db, aptID))
}
