package search

import (
	"context"
	"testing"
	"time"

	"colivero/internal/dates"
	"colivero/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves unavailable-date sets from a map keyed by apartment id.
type fakeReader struct {
	unavailable map[int64]map[string]bool
}

func (f *fakeReader) UnavailableDates(_ context.Context, apartmentID int64, _, _ time.Time) (map[string]bool, error) {
	if m, ok := f.unavailable[apartmentID]; ok {
		return m, nil
	}
	return map[string]bool{}, nil
}

func day(s string) time.Time {
	t, err := dates.Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// blockRange marks [start, end) unavailable.
func blockRange(m map[string]bool, start, end string) {
	for _, d := range dates.Range(day(start), day(end)) {
		m[dates.Format(d)] = true
	}
}

func apartment(id int64, name string, monthly float64) models.Apartment {
	return models.Apartment{ID: id, Name: name, MonthlyPrice: monthly, Status: models.ApartmentActive}
}

func TestFindSplitStayOptions_TwoApartmentHandoff(t *testing.T) {
	// A is free 04-01..04-10, B is free 04-10..04-20.
	aBlocked := map[string]bool{}
	blockRange(aBlocked, "2024-04-10", "2024-04-20")
	bBlocked := map[string]bool{}
	blockRange(bBlocked, "2024-04-01", "2024-04-10")

	finder := NewFinder(&fakeReader{unavailable: map[int64]map[string]bool{
		1: aBlocked,
		2: bBlocked,
	}}, 0)

	apartments := []models.Apartment{
		apartment(1, "A", 900), // daily rate 30
		apartment(2, "B", 900),
	}

	options, err := finder.FindSplitStayOptions(context.Background(),
		apartments, day("2024-04-01"), day("2024-04-20"), 3)
	require.NoError(t, err)
	require.Len(t, options, 1)

	opt := options[0]
	require.Len(t, opt.Segments, 2)
	assert.Equal(t, int64(1), opt.Segments[0].ApartmentID)
	assert.Equal(t, "2024-04-01", dates.Format(opt.Segments[0].CheckIn))
	assert.Equal(t, "2024-04-10", dates.Format(opt.Segments[0].CheckOut))
	assert.Equal(t, int64(2), opt.Segments[1].ApartmentID)
	assert.Equal(t, "2024-04-10", dates.Format(opt.Segments[1].CheckIn))
	assert.Equal(t, "2024-04-20", dates.Format(opt.Segments[1].CheckOut))

	// 9 nights in A plus 10 nights in B at 30/night.
	assert.Equal(t, 9, opt.Segments[0].Nights)
	assert.Equal(t, 10, opt.Segments[1].Nights)
	assert.InDelta(t, 9*30+10*30, opt.TotalPrice, 0.01)
}

func TestFindSplitStayOptions_SegmentBoundsAndContiguity(t *testing.T) {
	// Three apartments with staggered gaps produce several combinations.
	aBlocked := map[string]bool{}
	blockRange(aBlocked, "2024-05-08", "2024-05-21")
	bBlocked := map[string]bool{}
	blockRange(bBlocked, "2024-05-01", "2024-05-05")
	cBlocked := map[string]bool{}
	blockRange(cBlocked, "2024-05-01", "2024-05-08")

	finder := NewFinder(&fakeReader{unavailable: map[int64]map[string]bool{
		1: aBlocked,
		2: bBlocked,
		3: cBlocked,
	}}, 0)

	apartments := []models.Apartment{
		apartment(1, "A", 900),
		apartment(2, "B", 1200),
		apartment(3, "C", 600),
	}

	start, end := day("2024-05-01"), day("2024-05-21")
	options, err := finder.FindSplitStayOptions(context.Background(), apartments, start, end, 3)
	require.NoError(t, err)
	require.NotEmpty(t, options)

	for _, opt := range options {
		assert.GreaterOrEqual(t, len(opt.Segments), 2)
		assert.LessOrEqual(t, len(opt.Segments), 3)

		// Full coverage, no gaps, no overlaps.
		assert.True(t, opt.Segments[0].CheckIn.Equal(start))
		assert.True(t, opt.Segments[len(opt.Segments)-1].CheckOut.Equal(end))
		for i := 1; i < len(opt.Segments); i++ {
			assert.True(t, opt.Segments[i].CheckIn.Equal(opt.Segments[i-1].CheckOut))
		}
	}
}

func TestFindSplitStayOptions_Ranking(t *testing.T) {
	aBlocked := map[string]bool{}
	blockRange(aBlocked, "2024-05-08", "2024-05-21")
	bBlocked := map[string]bool{}
	blockRange(bBlocked, "2024-05-01", "2024-05-05")
	cBlocked := map[string]bool{}
	blockRange(cBlocked, "2024-05-01", "2024-05-08")

	finder := NewFinder(&fakeReader{unavailable: map[int64]map[string]bool{
		1: aBlocked,
		2: bBlocked,
		3: cBlocked,
	}}, 0)

	apartments := []models.Apartment{
		apartment(1, "A", 900),
		apartment(2, "B", 1200),
		apartment(3, "C", 600),
	}

	options, err := finder.FindSplitStayOptions(context.Background(),
		apartments, day("2024-05-01"), day("2024-05-21"), 3)
	require.NoError(t, err)

	for i := 1; i < len(options); i++ {
		prev, cur := options[i-1], options[i]
		if len(prev.Segments) == len(cur.Segments) {
			assert.LessOrEqual(t, prev.TotalPrice, cur.TotalPrice)
		} else {
			assert.Less(t, len(prev.Segments), len(cur.Segments))
		}
	}
}

func TestFindSplitStayOptions_NoCombination(t *testing.T) {
	// Nobody is free on 05-03: no combination can cover the range.
	blocked := map[string]bool{"2024-05-03": true}
	finder := NewFinder(&fakeReader{unavailable: map[int64]map[string]bool{
		1: blocked,
		2: blocked,
	}}, 0)

	apartments := []models.Apartment{
		apartment(1, "A", 900),
		apartment(2, "B", 900),
	}

	options, err := finder.FindSplitStayOptions(context.Background(),
		apartments, day("2024-05-01"), day("2024-05-06"), 3)
	require.NoError(t, err)
	assert.Empty(t, options)
}

func TestFindSplitStayOptions_SingleApartmentNotASplit(t *testing.T) {
	// One apartment covers the whole range alone; that is not a split.
	finder := NewFinder(&fakeReader{unavailable: map[int64]map[string]bool{}}, 0)

	apartments := []models.Apartment{apartment(1, "A", 900)}

	options, err := finder.FindSplitStayOptions(context.Background(),
		apartments, day("2024-05-01"), day("2024-05-06"), 3)
	require.NoError(t, err)
	assert.Empty(t, options)
}

func TestFindSplitStayOptions_InactiveApartmentIgnored(t *testing.T) {
	finder := NewFinder(&fakeReader{unavailable: map[int64]map[string]bool{}}, 0)

	inactive := apartment(1, "A", 900)
	inactive.Status = models.ApartmentInactive

	options, err := finder.FindSplitStayOptions(context.Background(),
		[]models.Apartment{inactive}, day("2024-05-01"), day("2024-05-06"), 3)
	require.NoError(t, err)
	assert.Empty(t, options)
}

func TestFindSplitStayOptions_InvalidRange(t *testing.T) {
	finder := NewFinder(&fakeReader{}, 0)

	_, err := finder.FindSplitStayOptions(context.Background(), nil,
		day("2024-05-06"), day("2024-05-01"), 3)
	assert.ErrorIs(t, err, models.ErrInvalidRange)
}
