package api

import (
	"net/http"
	"strconv"
	"strings"

	"colivero/internal/metrics"
)

// handleFeedByID triggers a sync of one feed.
// POST /api/feeds/{id}/sync
func (s *HTTPServer) handleFeedByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("feed_by_id")

	rest := strings.TrimPrefix(r.URL.Path, "/api/feeds/")
	idStr, tail, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid feed id")
		return
	}

	if tail != "sync" || r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := s.sync.SyncFeed(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSyncAllFeeds syncs every active feed, optionally for one apartment.
// POST /api/feeds/sync?apartment_id=N
func (s *HTTPServer) handleSyncAllFeeds(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("feeds_sync")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	apartmentID, ok, err := optionalApartmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid apartment_id")
		return
	}

	var filter *int64
	if ok {
		filter = &apartmentID
	}
	results, err := s.sync.SyncAllFeeds(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleCleanupOrphaned removes calendar rows owned by deleted feeds.
// POST /api/feeds/cleanup?apartment_id=N
func (s *HTTPServer) handleCleanupOrphaned(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("feeds_cleanup")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	apartmentID, ok, err := optionalApartmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid apartment_id")
		return
	}

	var filter *int64
	if ok {
		filter = &apartmentID
	}
	removed, err := s.sync.CleanupOrphaned(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func optionalApartmentID(r *http.Request) (int64, bool, error) {
	raw := r.URL.Query().Get("apartment_id")
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, strconv.ErrSyntax
	}
	return id, true, nil
}
