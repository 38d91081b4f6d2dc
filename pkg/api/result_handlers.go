package api

import (
	"net/http"
)

// handleListResults handles GET /results?appId=&planId=
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	results, err := s.results.List(r.Context(), query.Get("appId"), query.Get("planId"))
	if err != nil {
		s.writeServiceError(w, r, "retrieve results", err)
		return
	}
	writeSuccess(w, "retrieved results", results)
}

// handleGetResult handles GET /result?AppId_PlanId=&ExecutionId=
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	result, err := s.results.Get(r.Context(), query.Get("AppId_PlanId"), query.Get("ExecutionId"))
	if err != nil {
		s.writeServiceError(w, r, "retrieve result", err)
		return
	}
	writeSuccess(w, "result retrieved", result)
}
