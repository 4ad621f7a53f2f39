package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"colivero/internal/dates"
	"colivero/internal/metrics"
	"colivero/internal/models"
)

// MaxAvailabilityDaysRange is the maximum number of days allowed in an
// availability request.
const MaxAvailabilityDaysRange = 90

// AvailabilityRequest is the request body for POST /api/availability.
type AvailabilityRequest struct {
	StartDate    string  `json:"start_date"`              // Format: YYYY-MM-DD
	EndDate      string  `json:"end_date"`                // Format: YYYY-MM-DD
	ApartmentIDs []int64 `json:"apartment_ids,omitempty"` // Optional filter
}

// DateAvailability represents availability for a single date.
type DateAvailability struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"` // "booked", "blocked"
	Source    string `json:"source,omitempty"`
}

// ApartmentAvailability is one apartment with its per-date availability.
type ApartmentAvailability struct {
	ID           int64              `json:"id"`
	Name         string             `json:"name"`
	DailyRate    float64            `json:"daily_rate"`
	Availability []DateAvailability `json:"availability"`
}

// AvailabilityResponse is the response for POST /api/availability.
type AvailabilityResponse struct {
	Apartments []ApartmentAvailability `json:"apartments"`
	Period     struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"period"`
}

// handleAvailability returns the per-date occupancy grid for apartments
// within a date range (inclusive bounds).
// POST /api/availability
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req AvailabilityRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start, end, err := validateAvailabilityRequest(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	wanted := make(map[int64]bool, len(req.ApartmentIDs))
	for _, id := range req.ApartmentIDs {
		wanted[id] = true
	}

	out := make([]ApartmentAvailability, 0)
	for _, apt := range s.db.ActiveApartments() {
		if len(wanted) > 0 && !wanted[apt.ID] {
			continue
		}

		days, err := s.db.GetCalendar(r.Context(), apt.ID, start, end)
		if err != nil {
			s.logger.Error().Err(err).Int64("apartment_id", apt.ID).Msg("calendar read failed")
			writeError(w, http.StatusInternalServerError, "calendar read failed")
			return
		}

		byDate := make(map[string]models.CalendarDay, len(days))
		for _, d := range days {
			byDate[dates.Format(d.Date)] = d
		}

		grid := make([]DateAvailability, 0)
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			key := dates.Format(d)
			if row, ok := byDate[key]; ok && row.Status != models.DayAvailable {
				grid = append(grid, DateAvailability{
					Date: key, Available: false, Reason: row.Status, Source: row.SourceTag,
				})
			} else {
				grid = append(grid, DateAvailability{Date: key, Available: true})
			}
		}

		out = append(out, ApartmentAvailability{
			ID:           apt.ID,
			Name:         apt.Name,
			DailyRate:    apt.DailyRate(),
			Availability: grid,
		})
	}

	resp := AvailabilityResponse{Apartments: out}
	resp.Period.Start = req.StartDate
	resp.Period.End = req.EndDate
	writeJSON(w, http.StatusOK, resp)
}

func validateAvailabilityRequest(req *AvailabilityRequest) (start, end time.Time, err error) {
	if req.StartDate == "" || req.EndDate == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date and end_date are required")
	}

	start, err = dates.Parse(req.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date format; expected YYYY-MM-DD")
	}
	end, err = dates.Parse(req.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date format; expected YYYY-MM-DD")
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date must be before or equal to end_date")
	}
	if dates.Nights(start, end) > MaxAvailabilityDaysRange {
		return time.Time{}, time.Time{}, fmt.Errorf("date range exceeds %d days", MaxAvailabilityDaysRange)
	}
	return start, end, nil
}
