package algorithm

import (
	"fmt"
	"path/filepath"

	"github.com/me/workprep/internal/pathutil"
	"github.com/me/workprep/pkg/model"
)

func ptr[T any](v T) *T { return &v }

// builtin is the bottom layer: values used when no configuration source sets a key.
var builtin = Layer{
	Source:            LayerBuiltin,
	Adapters:          ptr([]string{}),
	Aligner:           ptr(""),
	Archive:           ptr([]string{}),
	FusionMode:        ptr(false),
	MarkDuplicates:    ptr(true),
	NomapSplitSize:    ptr(250),
	NomapSplitTargets: ptr(200),
	NumCores:          ptr(1),
	Platform:          ptr(""),
	QC:                ptr([]string{}),
	QualityFormat:     ptr("standard"),
	Realign:           ptr(false),
	Recalibrate:       ptr(false),
	Strandedness:      ptr(""),
	ToolsOff:          ptr([]string{}),
	ToolsOn:           ptr([]string{}),
	TrimReads:         ptr(TrimMode("")),
	VariantCaller:     ptr(""),
}

var (
	qualityFormats = map[string]bool{"standard": true, "illumina": true}
	trimModes      = map[TrimMode]bool{"": true, "read_through": true, "atropos": true, "fastp": true, "skewer": true}
)

// pick returns the value and source of the highest-precedence layer that sets
// the field selected by get. Layers are ordered highest first.
func pick[T any](layers []*Layer, get func(*Layer) *T) (*T, string) {
	for _, l := range layers {
		if v := get(l); v != nil {
			return v, l.Source
		}
	}
	return nil, ""
}

func value[T any](layers []*Layer, get func(*Layer) *T) T {
	v, _ := pick(layers, get)
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// list returns a copy of the highest-precedence list; lists never union across layers.
func list(layers []*Layer, get func(*Layer) *[]string) []string {
	v, _ := pick(layers, get)
	if v == nil {
		return []string{}
	}
	out := make([]string, len(*v))
	copy(out, *v)
	return out
}

func nullable(layers []*Layer, get func(*Layer) *string) *string {
	v, _ := pick(layers, get)
	if v == nil {
		return nil
	}
	return ptr(*v)
}

// stack orders the layers from highest precedence down to the builtin defaults.
func stack(global, run, sample Layer) []*Layer {
	if global.Source == "" {
		global.Source = LayerGlobal
	}
	if run.Source == "" {
		run.Source = LayerRun
	}
	if sample.Source == "" {
		sample.Source = SampleLayer("")
	}
	return []*Layer{&sample, &run, &global, &builtin}
}

// Merge resolves global, run and sample layers into one configuration.
// Precedence is sample > run > global > builtin, key by key.
func Merge(global, run, sample Layer) (model.AlgorithmConfig, error) {
	layers := stack(global, run, sample)

	cfg := model.AlgorithmConfig{
		Adapters:          list(layers, func(l *Layer) *[]string { return l.Adapters }),
		Aligner:           value(layers, func(l *Layer) *string { return l.Aligner }),
		Archive:           list(layers, func(l *Layer) *[]string { return l.Archive }),
		CoverageInterval:  nullable(layers, func(l *Layer) *string { return l.CoverageInterval }),
		FusionMode:        value(layers, func(l *Layer) *bool { return l.FusionMode }),
		MarkDuplicates:    value(layers, func(l *Layer) *bool { return l.MarkDuplicates }),
		NomapSplitSize:    value(layers, func(l *Layer) *int { return l.NomapSplitSize }),
		NomapSplitTargets: value(layers, func(l *Layer) *int { return l.NomapSplitTargets }),
		NumCores:          value(layers, func(l *Layer) *int { return l.NumCores }),
		Platform:          value(layers, func(l *Layer) *string { return l.Platform }),
		QC:                list(layers, func(l *Layer) *[]string { return l.QC }),
		QualityFormat:     value(layers, func(l *Layer) *string { return l.QualityFormat }),
		Realign:           value(layers, func(l *Layer) *bool { return l.Realign }),
		Recalibrate:       value(layers, func(l *Layer) *bool { return l.Recalibrate }),
		Strandedness:      value(layers, func(l *Layer) *string { return l.Strandedness }),
		ToolsOff:          list(layers, func(l *Layer) *[]string { return l.ToolsOff }),
		ToolsOn:           list(layers, func(l *Layer) *[]string { return l.ToolsOn }),
		TrimReads:         string(value(layers, func(l *Layer) *TrimMode { return l.TrimReads })),
		Validate:          nullable(layers, func(l *Layer) *string { return l.Validate }),
		ValidateRegions:   nullable(layers, func(l *Layer) *string { return l.ValidateRegions }),
		VariantCaller:     value(layers, func(l *Layer) *string { return l.VariantCaller }),
		VariantRegions:    nullable(layers, func(l *Layer) *string { return l.VariantRegions }),
	}

	if err := checkValues(layers, cfg); err != nil {
		return model.AlgorithmConfig{}, err
	}
	return cfg, nil
}

func checkValues(layers []*Layer, cfg model.AlgorithmConfig) error {
	invalid := func(key string, get func(*Layer) bool, reason string) error {
		for _, l := range layers {
			if get(l) {
				return &model.ConfigValidationError{Key: key, Layer: l.Source, Reason: reason}
			}
		}
		return &model.ConfigValidationError{Key: key, Layer: LayerBuiltin, Reason: reason}
	}

	if cfg.NumCores < 1 {
		return invalid("num_cores", func(l *Layer) bool { return l.NumCores != nil }, "must be >= 1")
	}
	if cfg.NomapSplitSize < 0 {
		return invalid("nomap_split_size", func(l *Layer) bool { return l.NomapSplitSize != nil }, "must be >= 0")
	}
	if cfg.NomapSplitTargets < 0 {
		return invalid("nomap_split_targets", func(l *Layer) bool { return l.NomapSplitTargets != nil }, "must be >= 0")
	}
	if !qualityFormats[cfg.QualityFormat] {
		return invalid("quality_format", func(l *Layer) bool { return l.QualityFormat != nil },
			fmt.Sprintf("unknown value %q", cfg.QualityFormat))
	}
	if !trimModes[TrimMode(cfg.TrimReads)] {
		return invalid("trim_reads", func(l *Layer) bool { return l.TrimReads != nil },
			fmt.Sprintf("unknown value %q", cfg.TrimReads))
	}
	return nil
}

// CheckRequirements verifies that the genome resources carry what the merged
// options and the analysis need. Options that depend on a missing resource fail.
func CheckRequirements(cfg model.AlgorithmConfig, analysis model.Analysis, gr model.GenomeResources) error {
	if cfg.Recalibrate {
		if _, ok := gr.Lookup("variation", "dbsnp"); !ok {
			return &model.ConfigValidationError{Key: "recalibrate", Layer: "genome_resources",
				Reason: "requires variation.dbsnp"}
		}
	}
	if cfg.Realign {
		if _, ok := gr.Lookup("variation", "train_indels"); !ok {
			return &model.ConfigValidationError{Key: "realign", Layer: "genome_resources",
				Reason: "requires variation.train_indels"}
		}
	}
	if group, key, ok := analysis.RequiredResource(); ok {
		if _, found := gr.Lookup(group, key); !found {
			return &model.ConfigValidationError{Key: "analysis", Layer: "genome_resources",
				Reason: fmt.Sprintf("%s requires %s.%s", analysis, group, key)}
		}
	}
	return nil
}

// pathOptions selects the path-valued options of a layer.
var pathOptions = map[string]func(*Layer) *string{
	"validate":         func(l *Layer) *string { return l.Validate },
	"validate_regions": func(l *Layer) *string { return l.ValidateRegions },
	"variant_regions":  func(l *Layer) *string { return l.VariantRegions },
}

// WithAbsolutePaths returns a copy of cfg whose path-valued options are
// resolved against base, the run configuration directory. The layers cfg was
// merged from name the source of an unresolvable path.
func WithAbsolutePaths(cfg model.AlgorithmConfig, base string, global, run, sample Layer) (model.AlgorithmConfig, error) {
	layers := stack(global, run, sample)
	out := cfg.Clone()
	fields := out.PathOptions()
	for _, key := range Options() {
		field, ok := fields[key]
		if !ok || *field == nil {
			continue
		}
		p, err := pathutil.Absolutize(base, **field)
		if err != nil {
			source := LayerBuiltin
			if get, ok := pathOptions[key]; ok {
				if _, src := pick(layers, get); src != "" {
					source = src
				}
			}
			return model.AlgorithmConfig{}, &model.ConfigValidationError{Key: key, Layer: source,
				Reason: fmt.Sprintf("unresolvable path: %v", err)}
		}
		*field = ptr(filepath.Clean(p))
	}
	return out, nil
}
