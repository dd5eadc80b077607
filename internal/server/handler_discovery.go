package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "workprep API",
		Version:     "v1",
		Description: "Read-only view of the genome catalog and recorded sample work items",
		Endpoints: []endpointInfo{
			{"/api/v1/genomes", []string{"GET"}, "List catalog genome builds"},
			{"/api/v1/genomes/{build}", []string{"GET"}, "Resolved resources and reference of one build"},
			{"/api/v1/runs", []string{"GET"}, "Run ids present in the ledger"},
			{"/api/v1/workitems?run={id}", []string{"GET"}, "Work items recorded for a run. Accepts sample, limit and offset"},
			{"/api/v1/workitems/{entity}", []string{"GET"}, "Single recorded work item"},
			{"/api/v1/workitems/{entity}/resources/{tool}", []string{"GET"}, "Resolved compute allocation of a tool for a work item"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
