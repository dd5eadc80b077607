package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/workprep/pkg/model"
)

type genomeResponse struct {
	Build           string                `json:"build"`
	GenomeResources model.GenomeResources `json:"genome_resources"`
	Reference       model.Reference       `json:"reference"`
}

func (s *Server) handleListGenomes(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	builds := s.catalog.Builds()
	respondList(w, reqID, builds, model.NewPagination(len(builds), model.ListOptions{Limit: len(builds)}))
}

func (s *Server) handleGetGenome(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	build := chi.URLParam(r, "build")

	entry, err := s.catalog.Resolve(build)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, genomeResponse{
		Build:           entry.Build,
		GenomeResources: entry.Resources,
		Reference:       entry.Reference,
	})
}
