package api

import (
	"net/http"
	"strconv"

	"github.com/dinahmaccodes/pifp-stellar/internal/database"
)

func parseEventFilter(r *http.Request) database.EventFilter {
	q := r.URL.Query()

	f := database.EventFilter{
		Limit: 100,
	}

	if v := q.Get("limit"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 && i <= 1000 {
			f.Limit = i
		}
	}

	if v := q.Get("project_id"); v != "" {
		f.ProjectID = &v
	}

	if v := q.Get("event_type"); v != "" {
		f.EventType = &v
	}

	if v := q.Get("start_ledger"); v != "" {
		if i, err := strconv.ParseUint(v, 10, 32); err == nil {
			val := uint32(i)
			f.StartLedger = &val
		}
	}

	if v := q.Get("end_ledger"); v != "" {
		if i, err := strconv.ParseUint(v, 10, 32); err == nil {
			val := uint32(i)
			f.EndLedger = &val
		}
	}

	return f
}

// listEvents handles GET /api/v1/events
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.db.QueryEvents(parseEventFilter(r))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.eventsResponse(w, events)
}

// projectEvents handles GET /api/v1/projects/{id}/events
func (s *Server) projectEvents(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if projectID == "" {
		s.errorResponse(w, http.StatusBadRequest, "missing project id")
		return
	}

	f := parseEventFilter(r)
	f.ProjectID = &projectID

	events, err := s.db.QueryEvents(f)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.eventsResponse(w, events)
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	total, err := s.db.CountEvents()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := HealthResponse{
		Status:      "ok",
		TotalEvents: total,
	}
	if s.status != nil {
		resp.LastLedger = s.status.LastLedger()
		resp.Ingestion = s.status.Stats()
	}

	s.jsonResponse(w, http.StatusOK, resp)
}
