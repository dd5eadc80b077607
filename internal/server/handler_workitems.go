package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/workprep/pkg/model"
)

func (s *Server) requireLedger(w http.ResponseWriter, reqID string) bool {
	if s.ledger == nil {
		respondError(w, reqID, http.StatusNotFound, &model.APIError{
			Code:    model.ErrNotFound,
			Message: "no work-item ledger configured",
		})
		return false
	}
	return true
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireLedger(w, reqID) {
		return
	}
	runs, err := s.ledger.Runs(r.Context())
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if runs == nil {
		runs = []string{}
	}
	respondList(w, reqID, runs, model.NewPagination(len(runs), model.ListOptions{Limit: len(runs)}))
}

func (s *Server) handleListWorkItems(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireLedger(w, reqID) {
		return
	}

	q := r.URL.Query()
	run := q.Get("run")
	if run == "" {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrConfigValidation,
			Message: "query parameter 'run' is required",
			Details: []model.FieldError{{Field: "run", Source: "query", Message: "required"}},
		})
		return
	}

	opts := model.DefaultListOptions()
	opts.Sample = q.Get("sample")
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, &model.APIError{
				Code:    model.ErrConfigValidation,
				Message: "invalid " + name + ": " + raw,
				Details: []model.FieldError{{Field: name, Source: "query", Message: "must be an integer"}},
			})
			return
		}
		*dst = n
	}
	opts.Clamp()

	records, total, err := s.ledger.ListByRun(r.Context(), run, opts)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if records == nil {
		records = []*model.LedgerRecord{}
	}
	respondList(w, reqID, records, model.NewPagination(total, opts))
}

func (s *Server) lookupRecord(w http.ResponseWriter, r *http.Request) (*model.LedgerRecord, bool) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireLedger(w, reqID) {
		return nil, false
	}
	entity := chi.URLParam(r, "entity")
	rec, err := s.ledger.Get(r.Context(), entity)
	if err != nil {
		respondErr(w, reqID, err)
		return nil, false
	}
	if rec == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("work item", entity))
		return nil, false
	}
	return rec, true
}

func (s *Server) handleGetWorkItem(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRecord(w, r)
	if !ok {
		return
	}
	respondOK(w, RequestIDFromContext(r.Context()), rec)
}

func (s *Server) handleGetToolResources(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRecord(w, r)
	if !ok {
		return
	}
	tool := chi.URLParam(r, "tool")
	respondOK(w, RequestIDFromContext(r.Context()),
		s.allocator.Allocate(tool, rec.Item.Config.Resources.Tools, rec.Item.Resources))
}
