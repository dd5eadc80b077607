// Package workitem composes resolved configuration, catalog, resource,
// identity and provenance data into immutable WorkItems.
package workitem

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/me/workprep/internal/algorithm"
	"github.com/me/workprep/internal/catalog"
	"github.com/me/workprep/internal/config"
	"github.com/me/workprep/internal/pathutil"
	"github.com/me/workprep/internal/provenance"
	"github.com/me/workprep/internal/resources"
	"github.com/me/workprep/internal/sample"
	"github.com/me/workprep/pkg/model"
)

// Supported genome_resources schema versions.
const (
	MinResourceVersion = 6
	MaxResourceVersion = 7
)

// System is the process-wide, read-only default configuration.
type System struct {
	File         string
	GalaxyConfig string
	LogDir       string
	Resources    model.ResourceTable
	Algorithm    algorithm.Layer
}

// NewSystem validates loader output into a System.
func NewSystem(cfg config.SystemConfig) (System, error) {
	table, err := resources.ParseTable(cfg.Resources)
	if err != nil {
		return System{}, fmt.Errorf("system resources: %w", err)
	}
	layer, err := algorithm.ParseLayer(algorithm.LayerGlobal, cfg.Algorithm)
	if err != nil {
		return System{}, fmt.Errorf("system algorithm: %w", err)
	}
	return System{
		File:         cfg.Path,
		GalaxyConfig: cfg.GalaxyConfig,
		LogDir:       cfg.LogDir,
		Resources:    table,
		Algorithm:    layer,
	}, nil
}

// Inputs is everything needed to assemble one sample at one stage.
type Inputs struct {
	Analysis        model.Analysis
	GenomeBuild     string
	Row             sample.Row
	RunAlgorithm    map[string]any
	SampleAlgorithm map[string]any
	Resources       map[string]any
	Dirs            model.Dirs
	Files           []string
	Upload          model.Upload
	Stages          []provenance.Stage
}

// Deps are the shared, read-only collaborators of an Assembler.
type Deps struct {
	Catalog   *catalog.Catalog
	Allocator *resources.Allocator
	Tracker   *provenance.Tracker
	System    System
	Logger    *slog.Logger
}

// Assembler builds WorkItems. It holds no mutable state and is safe for
// concurrent use.
type Assembler struct {
	catalog   *catalog.Catalog
	allocator *resources.Allocator
	tracker   *provenance.Tracker
	system    System
	logger    *slog.Logger
}

// NewAssembler creates an Assembler from its dependencies.
func NewAssembler(d Deps) (*Assembler, error) {
	if d.Catalog == nil || d.Tracker == nil || d.Logger == nil {
		return nil, fmt.Errorf("workitem: catalog, tracker and logger are required")
	}
	alloc := d.Allocator
	if alloc == nil {
		alloc = resources.NewAllocator(d.Logger)
	}
	return &Assembler{
		catalog:   d.Catalog,
		allocator: alloc,
		tracker:   d.Tracker,
		system:    d.System,
		logger:    d.Logger.With("component", "assembler"),
	}, nil
}

// Assemble composes one WorkItem. It performs no I/O. Every failure is a
// *model.SampleError naming the sample and lane.
func (a *Assembler) Assemble(in Inputs) (*model.WorkItem, error) {
	desc, err := sample.Build(in.Row)
	if err != nil {
		return nil, a.fail(in.Row.Description, in.Row.Lane, err)
	}
	lane := desc.RGNames.Lane
	fail := func(err error) error { return a.fail(desc.RGNames.Sample, lane, err) }

	if !in.Analysis.Valid() {
		return nil, fail(&model.IncompleteWorkItemError{Field: "analysis", Reason: fmt.Sprintf("unknown analysis %q", in.Analysis)})
	}
	if strings.TrimSpace(in.GenomeBuild) == "" {
		return nil, fail(&model.IncompleteWorkItemError{Field: "genome_build", Reason: "empty"})
	}
	entry, err := a.catalog.Resolve(in.GenomeBuild)
	if err != nil {
		return nil, fail(err)
	}
	if v := entry.Resources.Version; v < MinResourceVersion || v > MaxResourceVersion {
		return nil, fail(&model.StaleSchemaVersionError{
			Build:     in.GenomeBuild,
			Version:   v,
			Supported: [2]int{MinResourceVersion, MaxResourceVersion},
		})
	}

	algo, err := a.mergeAlgorithm(in, desc.RGNames.Sample, entry.Resources)
	if err != nil {
		return nil, fail(err)
	}
	if algo.Aligner != "" {
		if _, ok := entry.Reference.Aligners[algo.Aligner]; !ok {
			return nil, fail(&model.IncompleteWorkItemError{
				Field:  "reference." + algo.Aligner,
				Reason: fmt.Sprintf("genome %s has no %s index", in.GenomeBuild, algo.Aligner),
			})
		}
	}

	overrides, err := itemResources(in.Resources)
	if err != nil {
		return nil, fail(err)
	}

	prov, _, err := a.tracker.Assign(desc.RGNames.Sample, lane, in.Stages...)
	if err != nil {
		return nil, fail(&model.IncompleteWorkItemError{Field: "provenance.entity", Reason: err.Error()})
	}

	table := a.system.Resources.Clone()
	table.ProgramVersions = a.tracker.ProgramsPath()

	upload := in.Upload
	if upload.Dir == "" && in.Dirs.Work != "" {
		upload.Dir = filepath.Join(in.Dirs.Work, "upload")
	}

	item := &model.WorkItem{
		Analysis:    in.Analysis,
		Description: desc.RGNames.Sample,
		Config: model.ItemConfig{
			Algorithm:    algo,
			SystemFile:   a.system.File,
			GalaxyConfig: a.system.GalaxyConfig,
			LogDir:       a.system.LogDir,
			Resources:    table,
		},
		Dirs:            cleanDirs(in.Dirs),
		Files:           slices.Clone(in.Files),
		GenomeBuild:     in.GenomeBuild,
		GenomeResources: entry.Resources,
		Lane:            lane,
		Metadata:        desc.Metadata,
		Name:            desc.Name,
		Provenance:      prov,
		Reference:       entry.Reference,
		Resources:       overrides,
		RGNames:         desc.RGNames,
		SamRef:          entry.Reference.Fasta.Base,
		Upload:          upload,
	}
	if err := Validate(item); err != nil {
		return nil, fail(err)
	}

	a.logger.Debug("assembled", "sample", item.Description, "lane", lane, "entity", prov.Entity, "genome", in.GenomeBuild)
	return item, nil
}

func (a *Assembler) mergeAlgorithm(in Inputs, sampleName string, gr model.GenomeResources) (model.AlgorithmConfig, error) {
	run, err := algorithm.ParseLayer(algorithm.LayerRun, in.RunAlgorithm)
	if err != nil {
		return model.AlgorithmConfig{}, err
	}
	smp, err := algorithm.ParseLayer(algorithm.SampleLayer(sampleName), in.SampleAlgorithm)
	if err != nil {
		return model.AlgorithmConfig{}, err
	}
	cfg, err := algorithm.Merge(a.system.Algorithm, run, smp)
	if err != nil {
		return model.AlgorithmConfig{}, err
	}
	if in.Dirs.Config != "" {
		if cfg, err = algorithm.WithAbsolutePaths(cfg, in.Dirs.Config, a.system.Algorithm, run, smp); err != nil {
			return model.AlgorithmConfig{}, err
		}
	}
	if err := algorithm.CheckRequirements(cfg, in.Analysis, gr); err != nil {
		return model.AlgorithmConfig{}, err
	}
	return cfg, nil
}

// ToolResources returns the compute allocation of tool for item: the system
// table overlaid with the item's own overrides.
func (a *Assembler) ToolResources(item *model.WorkItem, tool string) model.ToolResources {
	return a.allocator.Allocate(tool, item.Config.Resources.Tools, item.Resources)
}

func (a *Assembler) fail(sampleName, lane string, err error) error {
	a.logger.Debug("assembly failed", "sample", sampleName, "lane", lane, "error", err)
	return &model.SampleError{Sample: sampleName, Lane: lane, Err: err}
}

func itemResources(raw map[string]any) (map[string]model.ToolSpec, error) {
	table, err := resources.ParseTable(raw)
	if err != nil {
		return nil, &model.IncompleteWorkItemError{Field: "resources", Reason: err.Error()}
	}
	if table.ProgramVersions != "" {
		return nil, &model.IncompleteWorkItemError{
			Field:  "resources." + model.ProgramVersionsKey,
			Reason: "the program manifest is fixed per run",
		}
	}
	return table.Tools, nil
}

func cleanDirs(d model.Dirs) model.Dirs {
	clean := func(p string) string {
		if p == "" {
			return ""
		}
		return filepath.Clean(p)
	}
	return model.Dirs{
		Config:   clean(d.Config),
		Fastq:    clean(d.Fastq),
		Flowcell: clean(d.Flowcell),
		Galaxy:   clean(d.Galaxy),
		Work:     clean(d.Work),
	}
}

// Validate checks the structural invariants of an assembled WorkItem.
func Validate(item *model.WorkItem) error {
	required := map[string]string{
		"description":       item.Description,
		"genome_build":      item.GenomeBuild,
		"lane":              item.Lane,
		"rgnames.rg":        item.RGNames.RG,
		"rgnames.sample":    item.RGNames.Sample,
		"name[1]":           item.Name.Sample(),
		"provenance.entity": item.Provenance.Entity,
	}
	for _, field := range sortedKeys(required) {
		if strings.TrimSpace(required[field]) == "" {
			return &model.IncompleteWorkItemError{Field: field, Reason: "required value is empty"}
		}
	}
	if len(item.Files) == 0 {
		return &model.IncompleteWorkItemError{Field: "files", Reason: "no input files"}
	}
	if item.SamRef != item.Reference.Fasta.Base {
		return &model.IncompleteWorkItemError{Field: "sam_ref", Reason: "does not match reference.fasta.base"}
	}
	for _, name := range sortedKeys(item.Resources) {
		if name == "" || name == model.ProgramVersionsKey {
			return &model.IncompleteWorkItemError{Field: "resources", Reason: fmt.Sprintf("invalid tool key %q", name)}
		}
	}
	for _, aligner := range sortedKeys(item.Reference.Aligners) {
		if missing := catalog.MissingIndexFiles(aligner, item.Reference.Aligners[aligner].Indexes); len(missing) > 0 {
			return &model.IncompleteWorkItemError{
				Field:  "reference." + aligner,
				Reason: "incomplete index set, missing " + strings.Join(missing, ", "),
			}
		}
	}
	for _, np := range absolutePaths(item) {
		if !pathutil.IsAbsClean(np.Path) {
			return &model.IncompleteWorkItemError{Field: np.Field, Reason: fmt.Sprintf("path %q is not absolute", np.Path)}
		}
	}
	return nil
}

// absolutePaths lists every path the WorkItem carries. Optional paths are
// included only when set.
func absolutePaths(item *model.WorkItem) []model.NamedPath {
	paths := item.Dirs.Paths()
	for i, f := range item.Files {
		paths = append(paths, model.NamedPath{Field: fmt.Sprintf("files[%d]", i), Path: f})
	}
	paths = append(paths, item.Reference.Paths()...)
	paths = append(paths,
		model.NamedPath{Field: "sam_ref", Path: item.SamRef},
		model.NamedPath{Field: "config.bcbio_system", Path: item.Config.SystemFile},
		model.NamedPath{Field: "config.galaxy_config", Path: item.Config.GalaxyConfig},
		model.NamedPath{Field: "config.log_dir", Path: item.Config.LogDir},
		model.NamedPath{Field: "config.resources.program_versions", Path: item.Config.Resources.ProgramVersions},
		model.NamedPath{Field: "provenance.data", Path: item.Provenance.Data},
		model.NamedPath{Field: "provenance.programs", Path: item.Provenance.Programs},
		model.NamedPath{Field: "upload.dir", Path: item.Upload.Dir},
	)
	if item.Provenance.DB != "" {
		paths = append(paths, model.NamedPath{Field: "provenance.db", Path: string(item.Provenance.DB)})
	}
	for _, name := range []string{"rnaseq", "srnaseq", "variation"} {
		group, _ := item.GenomeResources.Group(name)
		for _, key := range group.Keys() {
			paths = append(paths, model.NamedPath{Field: "genome_resources." + name + "." + key, Path: group[key]})
		}
	}
	algo := item.Config.Algorithm
	opts := algo.PathOptions()
	for _, key := range sortedKeys(opts) {
		if p := *opts[key]; p != nil {
			paths = append(paths, model.NamedPath{Field: "config.algorithm." + key, Path: *p})
		}
	}
	return paths
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
