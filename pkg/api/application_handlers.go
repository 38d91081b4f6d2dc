package api

import (
	"net/http"

	"github.com/drsolutions/drsplan/pkg/logging"
	"github.com/drsolutions/drsplan/pkg/models"
)

// handleListApplications handles GET /applications
func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.applications.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "load applications", err)
		return
	}
	writeSuccess(w, "application list succeeded", apps)
}

// handlePutApplication handles PUT /applications with body {"application": {...}}
func (s *Server) handlePutApplication(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Application *models.Application `json:"application"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Application == nil {
		writeBadRequest(w, "application to create or update not received")
		return
	}

	app, err := s.applications.Put(r.Context(), *req.Application)
	if err != nil {
		s.writeServiceError(w, r, "save application", err)
		return
	}
	writeSuccess(w, "new application added, AppId: "+app.AppID, app)
}

// handleDeleteApplication handles DELETE /applications with body {"AppId": "..."}
func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppID string `json:"AppId"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.AppID == "" {
		writeBadRequest(w, "error no AppId specified in request")
		return
	}

	if err := s.applications.Delete(r.Context(), req.AppID); err != nil {
		s.writeServiceError(w, r, "delete application", err)
		return
	}
	writeSuccess(w, "deleted application with id:"+req.AppID, nil)
}

// handleExecute handles POST /applications/execute. The body is handed to the workflow
// as its input.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	started, err := s.executions.Start(r.Context(), body, logging.SubjectFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, "start execution", err)
		return
	}
	writeSuccess(w, "Execution succeeded, executionId: "+started.ExecutionArn, started)
}
