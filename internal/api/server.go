// Package api exposes the booking engine over a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"colivero/internal/database"
	"colivero/internal/ical"
	"colivero/internal/report"
	"colivero/internal/search"
	"colivero/internal/service"

	"github.com/rs/zerolog"
)

// HTTPServer wires the engine's services to HTTP handlers.
type HTTPServer struct {
	db          *database.DB
	bookings    *service.BookingService
	finder      *search.Finder
	sync        *ical.Engine
	reports     *report.OccupancyService
	maxSegments int
	logger      *zerolog.Logger
	server      *http.Server
}

// NewHTTPServer creates the API server listening on the given port.
func NewHTTPServer(
	port int,
	db *database.DB,
	bookings *service.BookingService,
	finder *search.Finder,
	syncEngine *ical.Engine,
	reports *report.OccupancyService,
	maxSegments int,
	logger *zerolog.Logger,
) *HTTPServer {
	s := &HTTPServer{
		db:          db,
		bookings:    bookings,
		finder:      finder,
		sync:        syncEngine,
		reports:     reports,
		maxSegments: maxSegments,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/availability", s.handleAvailability)
	mux.HandleFunc("/api/bookings", s.handleBookings)
	mux.HandleFunc("/api/bookings/", s.handleBookingByID)
	mux.HandleFunc("/api/bookings/split", s.handleCreateSplitBooking)
	mux.HandleFunc("/api/search/split", s.handleSplitSearch)
	mux.HandleFunc("/api/feeds/sync", s.handleSyncAllFeeds)
	mux.HandleFunc("/api/feeds/", s.handleFeedByID)
	mux.HandleFunc("/api/feeds/cleanup", s.handleCleanupOrphaned)
	mux.HandleFunc("/api/reports/occupancy.xlsx", s.handleOccupancyReport)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("API server started")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
