package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colivero",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colivero",
			Name:      "booking_created_total",
			Help:      "Count of bookings created by kind.",
		},
		[]string{"kind"},
	)

	bookingDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "colivero",
			Name:      "booking_deleted_total",
			Help:      "Count of bookings deleted.",
		},
	)

	calendarWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "colivero",
			Name:      "calendar_write_failures_total",
			Help:      "Count of best-effort calendar writes that failed after a committed ledger write.",
		},
	)

	splitSearches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "colivero",
			Name:      "split_search_total",
			Help:      "Count of split-stay searches executed.",
		},
	)

	feedSync = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colivero",
			Name:      "feed_sync_total",
			Help:      "Count of feed sync attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests, bookingCreated, bookingDeleted,
			calendarWriteFailures, splitSearches, feedSync,
		)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBookingCreated(kind string) {
	bookingCreated.WithLabelValues(kind).Inc()
}

func IncBookingDeleted() {
	bookingDeleted.Inc()
}

func IncCalendarWriteFailure() {
	calendarWriteFailures.Inc()
}

func IncSplitSearch() {
	splitSearches.Inc()
}

func IncFeedSync(outcome string) {
	feedSync.WithLabelValues(outcome).Inc()
}
