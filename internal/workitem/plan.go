package workitem

import (
	"path/filepath"
	"slices"

	"github.com/me/workprep/internal/config"
	"github.com/me/workprep/internal/provenance"
	"github.com/me/workprep/internal/sample"
	"github.com/me/workprep/pkg/model"
)

// Layout locates a run on disk.
type Layout struct {
	WorkDir   string
	GalaxyDir string
	Stages    []provenance.Stage
}

// DefaultStages is the stage chain of the sample preparation step.
var DefaultStages = []provenance.Stage{
	{Name: "prepare_sample", Index: 0},
	{Name: "trim_sample", Index: 0},
}

// Plan turns a run configuration into one Inputs per sample sheet row, in
// sheet order.
func Plan(rc config.RunConfig, layout Layout) []Inputs {
	stages := layout.Stages
	if len(stages) == 0 {
		stages = DefaultStages
	}
	out := make([]Inputs, 0, len(rc.Details))
	for _, e := range rc.Details {
		fastq := rc.FCDir
		if fastq == "" && len(e.Files) > 0 {
			fastq = filepath.Dir(e.Files[0])
		}
		out = append(out, Inputs{
			Analysis:        model.Analysis(e.Analysis),
			GenomeBuild:     e.GenomeBuild,
			Row:             row(e),
			RunAlgorithm:    rc.Algorithm,
			SampleAlgorithm: e.Algorithm,
			Resources:       e.Resources,
			Dirs: model.Dirs{
				Config:   rc.Dir,
				Fastq:    fastq,
				Flowcell: fastq,
				Galaxy:   layout.GalaxyDir,
				Work:     layout.WorkDir,
			},
			Files:  slices.Clone(e.Files),
			Upload: model.Upload{Dir: rc.UploadDir},
			Stages: slices.Clone(stages),
		})
	}
	return out
}

// row maps a details entry onto a sample sheet row. A missing rg falls back
// to the sample description, as legacy sheets omit it.
func row(e config.SampleEntry) sample.Row {
	rg := e.RGNames.RG
	if rg == "" {
		rg = e.Description
	}
	r := sample.Row{
		Index:        e.Index,
		Description:  e.Description,
		ReadGroup:    rg,
		Lane:         e.Lane,
		Platform:     e.RGNames.PL,
		Library:      e.RGNames.LB,
		PlatformUnit: e.RGNames.PU,
		Batch:        e.Metadata["batch"],
		Phenotype:    e.Metadata["phenotype"],
	}
	if len(e.Metadata) > 0 {
		r.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			r.Metadata[k] = v
		}
	}
	return r
}
