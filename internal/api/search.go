package api

import (
	"encoding/json"
	"net/http"

	"colivero/internal/dates"
	"colivero/internal/metrics"
	"colivero/internal/search"
)

// SplitSearchRequest is the request body for POST /api/search/split.
type SplitSearchRequest struct {
	StartDate   string `json:"start_date"` // Format: YYYY-MM-DD
	EndDate     string `json:"end_date"`   // Format: YYYY-MM-DD, exclusive
	MaxSegments int    `json:"max_segments,omitempty"`
}

// SplitSearchResponse is the ranked combination list. An empty list is a
// normal answer, not an error.
type SplitSearchResponse struct {
	Options []search.Option `json:"options"`
}

// handleSplitSearch finds split-stay combinations covering a date range.
// POST /api/search/split
func (s *HTTPServer) handleSplitSearch(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("search_split")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req SplitSearchRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start, err := dates.Parse(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date; expected YYYY-MM-DD")
		return
	}
	end, err := dates.Parse(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date; expected YYYY-MM-DD")
		return
	}
	if !dates.ValidRange(start, end) {
		writeError(w, http.StatusBadRequest, "end_date must be after start_date")
		return
	}

	maxSegments := req.MaxSegments
	if maxSegments <= 0 || maxSegments > s.maxSegments {
		maxSegments = s.maxSegments
	}

	options, err := s.finder.FindSplitStayOptions(r.Context(), s.db.ActiveApartments(), start, end, maxSegments)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if options == nil {
		options = []search.Option{}
	}
	writeJSON(w, http.StatusOK, SplitSearchResponse{Options: options})
}
