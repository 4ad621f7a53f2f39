package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"colivero/internal/dates"
	"colivero/internal/metrics"
	"colivero/internal/models"
	"colivero/internal/service"
)

// CreateBookingRequest is the request body for POST /api/bookings.
type CreateBookingRequest struct {
	GuestName   string `json:"guest_name"`
	GuestEmail  string `json:"guest_email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	ApartmentID int64  `json:"apartment_id"`
	CheckIn     string `json:"check_in"`  // Format: YYYY-MM-DD
	CheckOut    string `json:"check_out"` // Format: YYYY-MM-DD
	Status      string `json:"status,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// UpdateBookingRequest is the request body for PATCH /api/bookings/{id}.
// Absent fields are left unchanged.
type UpdateBookingRequest struct {
	GuestName     *string `json:"guest_name,omitempty"`
	GuestEmail    *string `json:"guest_email,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Comment       *string `json:"comment,omitempty"`
	PaymentStatus *string `json:"payment_status,omitempty"`
	Status        *string `json:"status,omitempty"`
	ApartmentID   *int64  `json:"apartment_id,omitempty"`
	CheckIn       *string `json:"check_in,omitempty"`
	CheckOut      *string `json:"check_out,omitempty"`
}

// SegmentRequest is one leg of a split-stay request.
type SegmentRequest struct {
	ApartmentID int64   `json:"apartment_id"`
	CheckIn     string  `json:"check_in"`
	CheckOut    string  `json:"check_out"`
	Price       float64 `json:"price"`
}

// CreateSplitBookingRequest is the request body for POST /api/bookings/split.
type CreateSplitBookingRequest struct {
	GuestName  string           `json:"guest_name"`
	GuestEmail string           `json:"guest_email,omitempty"`
	Phone      string           `json:"phone,omitempty"`
	Comment    string           `json:"comment,omitempty"`
	Segments   []SegmentRequest `json:"segments"`
}

// handleBookings creates a direct booking.
// POST /api/bookings
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req CreateBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	checkIn, err := dates.Parse(req.CheckIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid check_in; expected YYYY-MM-DD")
		return
	}
	checkOut, err := dates.Parse(req.CheckOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid check_out; expected YYYY-MM-DD")
		return
	}

	b := &models.Booking{
		GuestName:   req.GuestName,
		GuestEmail:  req.GuestEmail,
		Phone:       req.Phone,
		ApartmentID: req.ApartmentID,
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		Status:      req.Status,
		Comment:     req.Comment,
	}
	if err := s.bookings.Create(r.Context(), b); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleBookingByID updates or deletes one booking.
// PATCH /api/bookings/{id}
// PUT   /api/bookings/{id}/segments
// DELETE /api/bookings/{id}
func (s *HTTPServer) handleBookingByID(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("booking_by_id")

	rest := strings.TrimPrefix(r.URL.Path, "/api/bookings/")
	if rest == "split" {
		s.handleCreateSplitBooking(w, r)
		return
	}

	idStr, tail, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	switch {
	case tail == "segments" && r.Method == http.MethodPut:
		s.updateSplitBooking(w, r, id)
	case tail == "" && r.Method == http.MethodPatch:
		s.updateBooking(w, r, id)
	case tail == "" && r.Method == http.MethodDelete:
		s.deleteBooking(w, r, id)
	case tail == "" && r.Method == http.MethodGet:
		s.getBooking(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) getBooking(w http.ResponseWriter, r *http.Request, id int64) {
	b, err := s.db.GetBooking(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) updateBooking(w http.ResponseWriter, r *http.Request, id int64) {
	var req UpdateBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	patch := service.UpdatePatch{
		GuestName:     req.GuestName,
		GuestEmail:    req.GuestEmail,
		Phone:         req.Phone,
		Comment:       req.Comment,
		PaymentStatus: req.PaymentStatus,
		Status:        req.Status,
		ApartmentID:   req.ApartmentID,
	}
	if req.CheckIn != nil {
		t, err := dates.Parse(*req.CheckIn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid check_in; expected YYYY-MM-DD")
			return
		}
		patch.CheckIn = &t
	}
	if req.CheckOut != nil {
		t, err := dates.Parse(*req.CheckOut)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid check_out; expected YYYY-MM-DD")
			return
		}
		patch.CheckOut = &t
	}

	b, err := s.bookings.Update(r.Context(), id, patch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) deleteBooking(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.bookings.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleCreateSplitBooking creates a split-stay booking.
// POST /api/bookings/split
func (s *HTTPServer) handleCreateSplitBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_split")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req CreateSplitBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	segments, err := parseSegments(req.Segments)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	guest := service.GuestInfo{
		Name:    req.GuestName,
		Email:   req.GuestEmail,
		Phone:   req.Phone,
		Comment: req.Comment,
	}
	b, err := s.bookings.CreateWithSegments(r.Context(), guest, segments)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) updateSplitBooking(w http.ResponseWriter, r *http.Request, id int64) {
	var req CreateSplitBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	segments, err := parseSegments(req.Segments)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	guest := service.GuestInfo{
		Name:    req.GuestName,
		Email:   req.GuestEmail,
		Phone:   req.Phone,
		Comment: req.Comment,
	}
	b, err := s.bookings.UpdateWithSegments(r.Context(), id, guest, segments)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func parseSegments(reqs []SegmentRequest) ([]models.Segment, error) {
	segments := make([]models.Segment, 0, len(reqs))
	for i, sr := range reqs {
		in, err := dates.Parse(sr.CheckIn)
		if err != nil {
			return nil, err
		}
		out, err := dates.Parse(sr.CheckOut)
		if err != nil {
			return nil, err
		}
		segments = append(segments, models.Segment{
			ApartmentID: sr.ApartmentID,
			Position:    i,
			CheckIn:     in,
			CheckOut:    out,
			Price:       sr.Price,
		})
	}
	return segments, nil
}

// writeServiceError maps domain errors onto HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrInvalidRange),
		errors.Is(err, models.ErrUnknownApartment),
		errors.Is(err, models.ErrTooFewSegments),
		errors.Is(err, models.ErrSegmentsNotContiguous):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
