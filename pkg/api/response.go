package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/drsolutions/drsplan/pkg/logging"
	"github.com/drsolutions/drsplan/pkg/services"
)

// maxBodySize bounds request bodies
const maxBodySize = 10 << 20

// response is the envelope of every successful reply
type response struct {
	Success string      `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// errorResponse is the envelope of every failed reply
type errorResponse struct {
	Error        string `json:"error"`
	ExecutionArn string `json:"executionArn,omitempty"`
	StartDate    string `json:"startDate,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, response{Success: message, Data: data})
}

// writeServiceError maps a service error to its status code. Store failures are
// logged in full and reported with a generic message naming the operation.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var notRecorded *services.NotRecordedError

	switch {
	case errors.Is(err, services.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrWorkflowStart):
		s.logger.WithContext(r.Context()).Error(operation+" failed", logging.Err(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "error occurred initiating execution: " + err.Error()})
	case errors.As(err, &notRecorded):
		s.logger.WithContext(r.Context()).Error(operation+" failed", logging.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:        "error occurred recording execution: " + notRecorded.ExecutionArn,
			ExecutionArn: notRecorded.ExecutionArn,
			StartDate:    notRecorded.StartDate,
		})
	default:
		s.logger.WithContext(r.Context()).Error(operation+" failed", logging.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not " + operation})
	}
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}

// readBody reads a bounded request body
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return body, nil
}

// decodeBody decodes a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
