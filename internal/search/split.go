// Package search finds split-stay combinations: sequences of
// (apartment, sub-range) segments that jointly cover a requested date range
// when no single apartment can.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"colivero/internal/dates"
	"colivero/internal/metrics"
	"colivero/internal/models"
)

// DefaultMaxSegments bounds recursion depth when the caller passes zero.
const DefaultMaxSegments = 3

// DefaultMaxResults caps the ranked result list.
const DefaultMaxResults = 10

// AvailabilityReader supplies the per-apartment unavailable-date set the
// windows are derived from.
type AvailabilityReader interface {
	UnavailableDates(ctx context.Context, apartmentID int64, start, endExclusive time.Time) (map[string]bool, error)
}

// OptionSegment is one leg of a proposed split stay.
type OptionSegment struct {
	ApartmentID   int64     `json:"apartment_id"`
	ApartmentName string    `json:"apartment_name"`
	CheckIn       time.Time `json:"check_in"`
	CheckOut      time.Time `json:"check_out"`
	Nights        int       `json:"nights"`
	Price         float64   `json:"price"`
}

// Option is one ranked split-stay combination.
type Option struct {
	Segments   []OptionSegment `json:"segments"`
	TotalPrice float64         `json:"total_price"`
}

// window is a maximal contiguous run of available dates for one apartment,
// half-open [start, end).
type window struct {
	apartment models.Apartment
	start     time.Time
	end       time.Time
}

// Finder runs the split-stay search.
type Finder struct {
	reader     AvailabilityReader
	maxResults int
}

// NewFinder creates a Finder. maxResults <= 0 means DefaultMaxResults.
func NewFinder(reader AvailabilityReader, maxResults int) *Finder {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Finder{reader: reader, maxResults: maxResults}
}

// FindSplitStayOptions searches for segment sequences that are contiguous,
// non-overlapping and jointly cover [start, end). Results are deduplicated,
// ranked by (segment count asc, total price asc) and capped at maxResults.
// No combination is not an error: the result is simply empty.
//
// Branching is bounded by the apartment count per cursor position and by
// maxSegments depth; fine for small catalogs. A DP over windows (interval
// shortest path) would replace the backtracking for large ones.
func (f *Finder) FindSplitStayOptions(ctx context.Context, apartments []models.Apartment, start, end time.Time, maxSegments int) ([]Option, error) {
	if !dates.ValidRange(start, end) {
		return nil, models.ErrInvalidRange
	}
	if maxSegments <= 0 {
		maxSegments = DefaultMaxSegments
	}
	start = dates.Normalize(start)
	end = dates.Normalize(end)
	metrics.IncSplitSearch()

	windows, err := f.collectWindows(ctx, apartments, start, end)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}

	var (
		found []Option
		stack []OptionSegment
		seen  = make(map[string]bool)
	)

	var dfs func(cursor time.Time)
	dfs = func(cursor time.Time) {
		if cursor.Equal(end) {
			// Single-segment coverage is not a split.
			if len(stack) < 2 {
				return
			}
			opt := snapshot(stack)
			key := canonicalKey(opt.Segments)
			if !seen[key] {
				seen[key] = true
				found = append(found, opt)
			}
			return
		}
		if len(stack) >= maxSegments {
			return
		}

		for _, w := range windows {
			if w.start.After(cursor) || !w.end.After(cursor) {
				continue
			}
			segEnd := w.end
			if segEnd.After(end) {
				segEnd = end
			}
			nights := dates.Nights(cursor, segEnd)
			stack = append(stack, OptionSegment{
				ApartmentID:   w.apartment.ID,
				ApartmentName: w.apartment.Name,
				CheckIn:       cursor,
				CheckOut:      segEnd,
				Nights:        nights,
				Price:         round2(w.apartment.DailyRate() * float64(nights)),
			})
			dfs(segEnd)
			stack = stack[:len(stack)-1]
		}
	}
	dfs(start)

	sort.SliceStable(found, func(i, j int) bool {
		if len(found[i].Segments) != len(found[j].Segments) {
			return len(found[i].Segments) < len(found[j].Segments)
		}
		return found[i].TotalPrice < found[j].TotalPrice
	})

	if len(found) > f.maxResults {
		found = found[:f.maxResults]
	}
	return found, nil
}

// collectWindows run-length-encodes each active apartment's available dates
// within [start, end) into maximal windows.
func (f *Finder) collectWindows(ctx context.Context, apartments []models.Apartment, start, end time.Time) ([]window, error) {
	var out []window
	for _, apt := range apartments {
		if !apt.IsActive() {
			continue
		}
		unavailable, err := f.reader.UnavailableDates(ctx, apt.ID, start, end)
		if err != nil {
			return nil, fmt.Errorf("unavailable dates for apartment %d: %w", apt.ID, err)
		}

		var runStart *time.Time
		for _, day := range dates.Range(start, end) {
			if unavailable[dates.Format(day)] {
				if runStart != nil {
					out = append(out, window{apartment: apt, start: *runStart, end: day})
					runStart = nil
				}
				continue
			}
			if runStart == nil {
				d := day
				runStart = &d
			}
		}
		if runStart != nil {
			out = append(out, window{apartment: apt, start: *runStart, end: end})
		}
	}
	return out, nil
}

func snapshot(stack []OptionSegment) Option {
	segs := make([]OptionSegment, len(stack))
	copy(segs, stack)

	var total float64
	for _, s := range segs {
		total += s.Price
	}
	return Option{Segments: segs, TotalPrice: round2(total)}
}

// canonicalKey identifies a combination by its (apartment, check-in,
// check-out) sequence so duplicate window paths collapse to one result.
func canonicalKey(segs []OptionSegment) string {
	var b strings.Builder
	for _, s := range segs {
		fmt.Fprintf(&b, "%d:%s:%s|", s.ApartmentID, dates.Format(s.CheckIn), dates.Format(s.CheckOut))
	}
	return b.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
