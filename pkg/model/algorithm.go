package model

import "slices"

// AlgorithmConfig is the merged, validated set of per-sample algorithm options.
// Nullable options use pointers so that "unset" serialises as null.
type AlgorithmConfig struct {
	Adapters          []string `json:"adapters"`
	Aligner           string   `json:"aligner"`
	Archive           []string `json:"archive"`
	CoverageInterval  *string  `json:"coverage_interval"`
	FusionMode        bool     `json:"fusion_mode"`
	MarkDuplicates    bool     `json:"mark_duplicates"`
	NomapSplitSize    int      `json:"nomap_split_size"`
	NomapSplitTargets int      `json:"nomap_split_targets"`
	NumCores          int      `json:"num_cores"`
	Platform          string   `json:"platform,omitempty"`
	QC                []string `json:"qc"`
	QualityFormat     string   `json:"quality_format"`
	Realign           bool     `json:"realign"`
	Recalibrate       bool     `json:"recalibrate"`
	Strandedness      string   `json:"strandedness,omitempty"`
	ToolsOff          []string `json:"tools_off"`
	ToolsOn           []string `json:"tools_on"`
	TrimReads         string   `json:"trim_reads"`
	Validate          *string  `json:"validate"`
	ValidateRegions   *string  `json:"validate_regions"`
	VariantCaller     string   `json:"variantcaller,omitempty"`
	VariantRegions    *string  `json:"variant_regions"`
}

// Clone returns a deep copy of c.
func (c AlgorithmConfig) Clone() AlgorithmConfig {
	c.Adapters = cloneList(c.Adapters)
	c.Archive = cloneList(c.Archive)
	c.QC = cloneList(c.QC)
	c.ToolsOff = cloneList(c.ToolsOff)
	c.ToolsOn = cloneList(c.ToolsOn)
	c.CoverageInterval = clonePtr(c.CoverageInterval)
	c.Validate = clonePtr(c.Validate)
	c.ValidateRegions = clonePtr(c.ValidateRegions)
	c.VariantRegions = clonePtr(c.VariantRegions)
	return c
}

// HasTool reports whether tool is switched on and not switched off.
func (c AlgorithmConfig) HasTool(tool string) bool {
	return slices.Contains(c.ToolsOn, tool) && !slices.Contains(c.ToolsOff, tool)
}

// PathOptions returns the path-valued options with their key names.
func (c *AlgorithmConfig) PathOptions() map[string]**string {
	return map[string]**string{
		"validate":         &c.Validate,
		"validate_regions": &c.ValidateRegions,
		"variant_regions":  &c.VariantRegions,
	}
}

// cloneList copies a list option; empty lists stay non-nil so they
// serialise as [] rather than null.
func cloneList(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
