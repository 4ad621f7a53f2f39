// Package ical fetches, parses and reconciles external iCal feeds into the
// occupancy calendar under feed-scoped ownership.
package ical

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// maxFeedBytes caps how much of an untrusted feed body is read.
const maxFeedBytes = 4 << 20

// Fetcher downloads iCal payloads from untrusted URLs with a bounded
// timeout and outbound rate limiting.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewFetcher creates a Fetcher. timeout bounds each fetch; a timed-out
// fetch is reported as a failed sync and retried on the next scheduled run.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		timeout: timeout,
	}
}

// Fetch downloads one feed body and sanity-checks that it is calendar data.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("feed URL is empty")
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("reading calendar: %w", err)
	}
	if !strings.Contains(string(body), "BEGIN:VCALENDAR") {
		return nil, fmt.Errorf("response is not iCalendar data")
	}
	return body, nil
}
