package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/me/workprep/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil, nil)
}

// respondList writes a success response with pagination.
func respondList(w http.ResponseWriter, reqID string, data any, pg *model.Pagination) {
	respondJSON(w, http.StatusOK, reqID, data, pg, nil)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	respondJSON(w, status, reqID, nil, nil, apiErr)
}

// respondErr maps an assembly or store error onto an HTTP status and envelope.
func respondErr(w http.ResponseWriter, reqID string, err error) {
	apiErr := model.ToAPIError(err)
	status := http.StatusInternalServerError
	switch apiErr.Code {
	case model.ErrNotFound, model.ErrUnknownGenomeBuild:
		status = http.StatusNotFound
	case model.ErrConfigValidation, model.ErrMissingSampleField, model.ErrIncompleteWorkItem, model.ErrStaleSchema:
		status = http.StatusUnprocessableEntity
	case model.ErrConflict:
		status = http.StatusConflict
	}
	respondError(w, reqID, status, apiErr)
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, pg *model.Pagination, apiErr *model.APIError) {
	resp := model.Response{
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Pagination: pg,
		Error:      apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
