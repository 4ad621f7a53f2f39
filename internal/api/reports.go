package api

import (
	"bytes"
	"fmt"
	"net/http"

	"colivero/internal/dates"
	"colivero/internal/metrics"
	"colivero/internal/report"
)

// handleOccupancyReport streams an Excel occupancy workbook.
// GET /api/reports/occupancy.xlsx?start=YYYY-MM-DD&end=YYYY-MM-DD
func (s *HTTPServer) handleOccupancyReport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reports_occupancy")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	start, err := dates.Parse(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected YYYY-MM-DD")
		return
	}
	end, err := dates.Parse(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end; expected YYYY-MM-DD")
		return
	}
	if start.After(end) {
		writeError(w, http.StatusBadRequest, "start must be before or equal to end")
		return
	}

	var buf bytes.Buffer
	if err := s.reports.Generate(r.Context(), &buf, start, end); err != nil {
		s.logger.Error().Err(err).Msg("occupancy report failed")
		writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", report.Filename(start)))
	_, _ = w.Write(buf.Bytes())
}
