package model

import (
	"maps"
	"slices"
)

// Analysis selects the pipeline type a WorkItem is assembled for.
type Analysis string

const (
	AnalysisRNASeq      Analysis = "RNA-seq"
	AnalysisSmallRNASeq Analysis = "smallRNA-seq"
	AnalysisVariant     Analysis = "variant2"
	AnalysisChIPSeq     Analysis = "chip-seq"
	AnalysisStandard    Analysis = "Standard"
)

// String returns the string representation of the analysis.
func (a Analysis) String() string {
	return string(a)
}

// Valid reports whether a is a known analysis type.
func (a Analysis) Valid() bool {
	switch a {
	case AnalysisRNASeq, AnalysisSmallRNASeq, AnalysisVariant, AnalysisChIPSeq, AnalysisStandard:
		return true
	}
	return false
}

// RequiredResource returns the genome resource group and key the analysis
// cannot run without. ok is false when the analysis needs none.
func (a Analysis) RequiredResource() (group, key string, ok bool) {
	switch a {
	case AnalysisRNASeq:
		return "rnaseq", "transcripts", true
	case AnalysisSmallRNASeq:
		return "srnaseq", "mirbase", true
	}
	return "", "", false
}

// WorkItem is the fully resolved descriptor of one sample at one pipeline stage.
// It is never mutated after assembly; use Clone or WithFiles to derive a new one.
type WorkItem struct {
	Analysis        Analysis            `json:"analysis"`
	Description     string              `json:"description"`
	Config          ItemConfig          `json:"config"`
	Dirs            Dirs                `json:"dirs"`
	Files           []string            `json:"files"`
	GenomeBuild     string              `json:"genome_build"`
	GenomeResources GenomeResources     `json:"genome_resources"`
	Lane            string              `json:"lane"`
	Metadata        Metadata            `json:"metadata"`
	Name            Name                `json:"name"`
	Provenance      Provenance          `json:"provenance"`
	Reference       Reference           `json:"reference"`
	Resources       map[string]ToolSpec `json:"resources"`
	RGNames         RGNames             `json:"rgnames"`
	SamRef          string              `json:"sam_ref"`
	Upload          Upload              `json:"upload"`
}

// ItemConfig carries the merged algorithm options and the system-level settings
// the WorkItem was resolved against.
type ItemConfig struct {
	Algorithm    AlgorithmConfig `json:"algorithm"`
	SystemFile   string          `json:"bcbio_system"`
	GalaxyConfig string          `json:"galaxy_config"`
	LogDir       string          `json:"log_dir"`
	Resources    ResourceTable   `json:"resources"`
}

// Dirs maps logical directory roles to absolute paths.
type Dirs struct {
	Config   string `json:"config"`
	Fastq    string `json:"fastq"`
	Flowcell string `json:"flowcell"`
	Galaxy   string `json:"galaxy"`
	Work     string `json:"work"`
}

// Paths returns the directory roles in a fixed order, for validation.
func (d Dirs) Paths() []NamedPath {
	return []NamedPath{
		{"dirs.config", d.Config},
		{"dirs.fastq", d.Fastq},
		{"dirs.flowcell", d.Flowcell},
		{"dirs.galaxy", d.Galaxy},
		{"dirs.work", d.Work},
	}
}

// NamedPath pairs a dotted field name with a path value.
type NamedPath struct {
	Field string
	Path  string
}

// RGNames holds the read-group identity fields written into alignment headers.
type RGNames struct {
	Lane   string     `json:"lane"`
	LB     NullString `json:"lb"`
	PL     string     `json:"pl"`
	PU     string     `json:"pu"`
	RG     string     `json:"rg"`
	Sample string     `json:"sample"`
}

// Name is the (run-group, sample-name) pair. An empty run-group means no batch grouping.
type Name [2]string

// RunGroup returns the first element of the pair.
func (n Name) RunGroup() string { return n[0] }

// Sample returns the second element of the pair.
func (n Name) Sample() string { return n[1] }

// Provenance identifies a WorkItem for reproducibility audits.
type Provenance struct {
	Data     string     `json:"data"`
	DB       NullString `json:"db"`
	Entity   string     `json:"entity"`
	Programs string     `json:"programs"`
}

// Upload describes where final outputs go. An empty RunID means not yet assigned.
type Upload struct {
	Dir   string `json:"dir"`
	RunID string `json:"run_id"`
}

// Clone returns a deep copy of w.
func (w *WorkItem) Clone() *WorkItem {
	if w == nil {
		return nil
	}
	c := *w
	c.Config = w.Config.Clone()
	c.Files = slices.Clone(w.Files)
	c.GenomeResources = w.GenomeResources.Clone()
	c.Metadata = w.Metadata.Clone()
	c.Reference = w.Reference.Clone()
	c.Resources = CloneToolSpecs(w.Resources)
	return &c
}

// WithFiles returns a copy of w whose input files are replaced, for the next
// stage after a step such as trimming rewrites them.
func (w *WorkItem) WithFiles(files []string) *WorkItem {
	c := w.Clone()
	c.Files = slices.Clone(files)
	return c
}

// Clone returns a deep copy of c.
func (c ItemConfig) Clone() ItemConfig {
	c.Algorithm = c.Algorithm.Clone()
	c.Resources = c.Resources.Clone()
	return c
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	m.Extra = maps.Clone(m.Extra)
	return m
}
