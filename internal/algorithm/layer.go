// Package algorithm merges layered algorithm configuration into a single
// validated model.AlgorithmConfig.
package algorithm

import (
	"fmt"
	"sort"

	"github.com/me/workprep/pkg/model"
	"gopkg.in/yaml.v3"
)

// Layer names used in error messages.
const (
	LayerBuiltin = "builtin"
	LayerGlobal  = "global"
	LayerRun     = "run"
)

// SampleLayer returns the layer name for a sample's overrides.
func SampleLayer(sample string) string {
	return "sample:" + sample
}

// Layer is one configuration source. A nil field means "not set at this layer"
// and falls through to the next layer down.
type Layer struct {
	Source string `yaml:"-"`

	Adapters          *[]string `yaml:"adapters"`
	Aligner           *string   `yaml:"aligner"`
	Archive           *[]string `yaml:"archive"`
	CoverageInterval  *string   `yaml:"coverage_interval"`
	FusionMode        *bool     `yaml:"fusion_mode"`
	MarkDuplicates    *bool     `yaml:"mark_duplicates"`
	NomapSplitSize    *int      `yaml:"nomap_split_size"`
	NomapSplitTargets *int      `yaml:"nomap_split_targets"`
	NumCores          *int      `yaml:"num_cores"`
	Platform          *string   `yaml:"platform"`
	QC                *[]string `yaml:"qc"`
	QualityFormat     *string   `yaml:"quality_format"`
	Realign           *bool     `yaml:"realign"`
	Recalibrate       *bool     `yaml:"recalibrate"`
	Strandedness      *string   `yaml:"strandedness"`
	ToolsOff          *[]string `yaml:"tools_off"`
	ToolsOn           *[]string `yaml:"tools_on"`
	TrimReads         *TrimMode `yaml:"trim_reads"`
	Validate          *string   `yaml:"validate"`
	ValidateRegions   *string   `yaml:"validate_regions"`
	VariantCaller     *string   `yaml:"variantcaller"`
	VariantRegions    *string   `yaml:"variant_regions"`
}

// TrimMode is the trim_reads option. YAML false decodes to "" (no trimming).
type TrimMode string

func (m *TrimMode) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!!bool" {
		var on bool
		if err := n.Decode(&on); err != nil {
			return err
		}
		if on {
			return fmt.Errorf("trim_reads: true does not name a trimming method")
		}
		*m = ""
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	*m = TrimMode(s)
	return nil
}

// registry lists every recognized option key.
var registry = map[string]bool{
	"adapters":            true,
	"aligner":             true,
	"archive":             true,
	"coverage_interval":   true,
	"fusion_mode":         true,
	"mark_duplicates":     true,
	"nomap_split_size":    true,
	"nomap_split_targets": true,
	"num_cores":           true,
	"platform":            true,
	"qc":                  true,
	"quality_format":      true,
	"realign":             true,
	"recalibrate":         true,
	"strandedness":        true,
	"tools_off":           true,
	"tools_on":            true,
	"trim_reads":          true,
	"validate":            true,
	"validate_regions":    true,
	"variantcaller":       true,
	"variant_regions":     true,
}

// Recognized reports whether key is a known algorithm option.
func Recognized(key string) bool {
	return registry[key]
}

// Options returns all recognized option keys, sorted.
func Options() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseLayer decodes a raw option map from the configuration loader.
// Keys are checked against the registry before any value is decoded, and
// each value is decoded on its own so a type error names its key.
func ParseLayer(source string, raw map[string]any) (Layer, error) {
	layer := Layer{Source: source}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !Recognized(k) {
			return Layer{}, &model.ConfigValidationError{Key: k, Layer: source}
		}
	}
	for _, k := range keys {
		var val yaml.Node
		if err := val.Encode(raw[k]); err != nil {
			return Layer{}, &model.ConfigValidationError{Key: k, Layer: source, Reason: "unencodable value"}
		}
		pair := &yaml.Node{
			Kind:    yaml.MappingNode,
			Tag:     "!!map",
			Content: []*yaml.Node{{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, &val},
		}
		if err := pair.Decode(&layer); err != nil {
			return Layer{}, &model.ConfigValidationError{Key: k, Layer: source, Reason: fmt.Sprintf("invalid value: %v", err)}
		}
	}
	return layer, nil
}

// LayerOf converts a merged configuration back into a layer that sets every key.
func LayerOf(source string, cfg model.AlgorithmConfig) Layer {
	cfg = cfg.Clone()
	trim := TrimMode(cfg.TrimReads)
	return Layer{
		Source:            source,
		Adapters:          &cfg.Adapters,
		Aligner:           &cfg.Aligner,
		Archive:           &cfg.Archive,
		CoverageInterval:  cfg.CoverageInterval,
		FusionMode:        &cfg.FusionMode,
		MarkDuplicates:    &cfg.MarkDuplicates,
		NomapSplitSize:    &cfg.NomapSplitSize,
		NomapSplitTargets: &cfg.NomapSplitTargets,
		NumCores:          &cfg.NumCores,
		Platform:          &cfg.Platform,
		QC:                &cfg.QC,
		QualityFormat:     &cfg.QualityFormat,
		Realign:           &cfg.Realign,
		Recalibrate:       &cfg.Recalibrate,
		Strandedness:      &cfg.Strandedness,
		ToolsOff:          &cfg.ToolsOff,
		ToolsOn:           &cfg.ToolsOn,
		TrimReads:         &trim,
		Validate:          cfg.Validate,
		ValidateRegions:   cfg.ValidateRegions,
		VariantCaller:     &cfg.VariantCaller,
		VariantRegions:    cfg.VariantRegions,
	}
}
