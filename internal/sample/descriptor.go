// Package sample builds read-group identity and metadata from sample sheet rows.
package sample

import (
	"maps"
	"strconv"
	"strings"

	"github.com/me/workprep/pkg/model"
)

// DefaultPlatform is the sequencing platform written when a row names none.
const DefaultPlatform = "illumina"

// Row is one parsed sample sheet line. Index is the row's stable position in
// the sheet and supplies the default lane.
type Row struct {
	Index        int
	Description  string
	ReadGroup    string
	Lane         string
	Platform     string
	Library      string
	PlatformUnit string
	Batch        string
	Phenotype    string
	Metadata     map[string]string
}

// Descriptor is the identity of one sample row.
type Descriptor struct {
	RGNames  model.RGNames
	Metadata model.Metadata
	Name     model.Name
}

// Build derives read-group names, metadata and the (run-group, sample) name
// from row. rg and sample are required; every other field has a default.
func Build(row Row) (Descriptor, error) {
	sampleName := strings.TrimSpace(row.Description)
	if sampleName == "" {
		return Descriptor{}, &model.MissingSampleFieldError{Field: "sample", Row: row.Index}
	}
	rg := strings.TrimSpace(row.ReadGroup)
	if rg == "" {
		return Descriptor{}, &model.MissingSampleFieldError{Field: "rg", Row: row.Index}
	}

	lane := strings.TrimSpace(row.Lane)
	if lane == "" {
		lane = strconv.Itoa(row.Index + 1)
	}
	pl := strings.ToLower(strings.TrimSpace(row.Platform))
	if pl == "" {
		pl = DefaultPlatform
	}
	pu := strings.TrimSpace(row.PlatformUnit)
	if pu == "" {
		pu = rg
	}

	batch := strings.TrimSpace(row.Batch)
	extra := maps.Clone(row.Metadata)
	delete(extra, "batch")
	delete(extra, "phenotype")
	if len(extra) == 0 {
		extra = nil
	}

	return Descriptor{
		RGNames: model.RGNames{
			Lane:   lane,
			LB:     model.NullString(strings.TrimSpace(row.Library)),
			PL:     pl,
			PU:     pu,
			RG:     rg,
			Sample: sampleName,
		},
		Metadata: model.Metadata{
			Batch:     model.NullString(batch),
			Phenotype: strings.TrimSpace(row.Phenotype),
			Extra:     extra,
		},
		Name: model.Name{batch, sampleName},
	}, nil
}
