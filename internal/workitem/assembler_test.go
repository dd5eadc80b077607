package workitem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/me/workprep/internal/catalog"
	"github.com/me/workprep/internal/config"
	"github.com/me/workprep/internal/provenance"
	"github.com/me/workprep/internal/resources"
	"github.com/me/workprep/pkg/model"
)

const testWorkDir = "/bcbio-nextgen/tests/test_automated_output"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	asm    *Assembler
	run    config.RunConfig
	inputs []Inputs
	dir    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir, err := filepath.Abs(filepath.Join("..", "..", "testdata", "automated"))
	if err != nil {
		t.Fatal(err)
	}
	sysCfg, err := config.LoadSystem(filepath.Join(dir, "system.yaml"))
	if err != nil {
		t.Fatalf("LoadSystem: %v", err)
	}
	sys, err := NewSystem(sysCfg)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	rc, err := config.LoadRun(filepath.Join(dir, "run-rnaseq.yaml"))
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	cat, err := catalog.LoadFile(filepath.Join("..", "..", "testdata", "genomes.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	runID, err := provenance.RunID(rc.RunUUID, rc.Seed)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := provenance.NewTracker(runID, testWorkDir, "")
	if err != nil {
		t.Fatal(err)
	}
	logger := testLogger()
	asm, err := NewAssembler(Deps{
		Catalog:   cat,
		Allocator: resources.NewAllocator(logger),
		Tracker:   tr,
		System:    sys,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	return fixture{
		asm:    asm,
		run:    rc,
		inputs: Plan(rc, Layout{WorkDir: testWorkDir, GalaxyDir: sysCfg.GalaxyDir()}),
		dir:    dir,
	}
}

func TestAssemble_RNASeqHG19(t *testing.T) {
	f := newFixture(t)
	item, err := f.asm.Assemble(f.inputs[0])
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	fusion := filepath.Join(filepath.Dir(f.dir), "test_fusion")
	wantDirs := model.Dirs{
		Config:   f.dir,
		Fastq:    fusion,
		Flowcell: fusion,
		Galaxy:   f.dir,
		Work:     testWorkDir,
	}
	if diff := cmp.Diff(wantDirs, item.Dirs); diff != "" {
		t.Errorf("dirs mismatch (-want +got):\n%s", diff)
	}
	wantFiles := []string{
		filepath.Join(fusion, "1_1_Test1.trimmed.fq.gz"),
		filepath.Join(fusion, "1_2_Test1.trimmed.fq.gz"),
	}
	if diff := cmp.Diff(wantFiles, item.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	wantRG := model.RGNames{Lane: "1", PL: "illumina", PU: "Test1", RG: "Test1", Sample: "Test1"}
	if diff := cmp.Diff(wantRG, item.RGNames); diff != "" {
		t.Errorf("rgnames mismatch (-want +got):\n%s", diff)
	}
	if item.Name != (model.Name{"", "Test1"}) {
		t.Errorf("name = %v", item.Name)
	}
	if item.Lane != "1" || item.Description != "Test1" || item.Analysis != model.AnalysisRNASeq {
		t.Errorf("identity = (%q, %q, %q)", item.Lane, item.Description, item.Analysis)
	}
	if item.SamRef != "/bcbio-nextgen/tests/data/genomes/hg19/seq/hg19.fa" {
		t.Errorf("sam_ref = %q", item.SamRef)
	}
	if n := len(item.Reference.Aligners["star"].Indexes); n != 10 {
		t.Errorf("star indexes = %d, want 10", n)
	}

	algo := item.Config.Algorithm
	if algo.Aligner != "star" || !algo.FusionMode || algo.TrimReads != "read_through" {
		t.Errorf("sample options not applied: %+v", algo)
	}
	if algo.QualityFormat != "illumina" {
		t.Errorf("quality_format = %q, want run layer value", algo.QualityFormat)
	}
	if algo.NumCores != 1 || !algo.MarkDuplicates || algo.NomapSplitSize != 250 {
		t.Errorf("builtin defaults not applied: %+v", algo)
	}
	if diff := cmp.Diff([]string{"fastqc", "qualimap_rnaseq", "samtools", "gemini"}, algo.QC); diff != "" {
		t.Errorf("qc mismatch (-want +got):\n%s", diff)
	}
	if algo.CoverageInterval != nil || algo.VariantRegions != nil {
		t.Error("null options should stay unset")
	}

	wantProv := model.Provenance{
		Data:     testWorkDir + "/provenance/data_versions.csv",
		Entity:   "8ac97a62-c611-11e6-a323-0242ac110002.Test1.1.prepare_sample.0.trim_sample.0",
		Programs: testWorkDir + "/provenance/programs.txt",
	}
	if diff := cmp.Diff(wantProv, item.Provenance); diff != "" {
		t.Errorf("provenance mismatch (-want +got):\n%s", diff)
	}
	if item.Config.Resources.ProgramVersions != wantProv.Programs {
		t.Errorf("program_versions = %q", item.Config.Resources.ProgramVersions)
	}
	if item.Config.GalaxyConfig != filepath.Join(f.dir, "universe_wsgi.ini") {
		t.Errorf("galaxy_config = %q", item.Config.GalaxyConfig)
	}
	if item.Upload.Dir != filepath.Join(filepath.Dir(filepath.Dir(f.dir)), "test_automated_output", "upload") {
		t.Errorf("upload.dir = %q", item.Upload.Dir)
	}
	if item.Upload.RunID != "" {
		t.Errorf("upload.run_id = %q, want unassigned", item.Upload.RunID)
	}

	got := f.asm.ToolResources(item, "gatk")
	want := model.ToolResources{Cores: 16, Memory: "3G", JVMOpts: []string{"-Xms500m", "-Xmx3500m"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("gatk resources mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemble_WireFormat(t *testing.T) {
	f := newFixture(t)
	item, err := f.asm.Assemble(f.inputs[0])
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	meta := raw["metadata"].(map[string]any)
	if meta["batch"] != nil || meta["phenotype"] != "" {
		t.Errorf("metadata = %v, want batch null and phenotype empty", meta)
	}
	if lb := raw["rgnames"].(map[string]any)["lb"]; lb != nil {
		t.Errorf("rgnames.lb = %v, want null", lb)
	}
	if db := raw["provenance"].(map[string]any)["db"]; db != nil {
		t.Errorf("provenance.db = %v, want null", db)
	}
	ref := raw["reference"].(map[string]any)
	if _, ok := ref["star"]; !ok {
		t.Errorf("reference should carry the star index inline, got keys %v", ref)
	}
	res := raw["config"].(map[string]any)["resources"].(map[string]any)
	if _, ok := res["program_versions"]; !ok {
		t.Error("config.resources.program_versions missing")
	}

	var back model.WorkItem
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(item, &back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	again, err := json.Marshal(&back)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Error("re-encoding is not byte-identical")
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	f := newFixture(t)
	a, err := f.asm.Assemble(f.inputs[1])
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	b, err := f.asm.Assemble(f.inputs[1])
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("assembling twice differs (-first +second):\n%s", diff)
	}
	if a.RGNames.RG != "Test2-rg" || a.RGNames.LB != "lib2" || a.Lane != "2" {
		t.Errorf("rgnames = %+v", a.RGNames)
	}
	if a.Name != (model.Name{"b1", "Test2"}) || a.Metadata.Phenotype != "tumor" {
		t.Errorf("name = %v metadata = %+v", a.Name, a.Metadata)
	}
}

func TestAssemble_UnrecognizedOption(t *testing.T) {
	f := newFixture(t)
	_, err := f.asm.Assemble(f.inputs[2])

	var sampleErr *model.SampleError
	if !errors.As(err, &sampleErr) || sampleErr.Sample != "Broken" || sampleErr.Lane != "3" {
		t.Fatalf("err = %v, want SampleError for Broken lane 3", err)
	}
	var cfgErr *model.ConfigValidationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigValidationError", err)
	}
	if cfgErr.Key != "foo_bar" || cfgErr.Layer != "sample:Broken" {
		t.Errorf("ConfigValidationError = %+v", cfgErr)
	}
}

func TestNewSystem_MiscasedOption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.yaml")
	doc := "galaxy_config: universe_wsgi.ini\nalgorithm:\n  Aligner: bwa\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	sysCfg, err := config.LoadSystem(path)
	if err != nil {
		t.Fatalf("LoadSystem: %v", err)
	}
	_, err = NewSystem(sysCfg)
	var cfgErr *model.ConfigValidationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigValidationError", err)
	}
	if cfgErr.Key != "Aligner" || cfgErr.Layer != "global" {
		t.Errorf("ConfigValidationError = %+v, want key Aligner from layer global", cfgErr)
	}
}

func TestAssemble_Failures(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		mutate func(*Inputs)
		check  func(error) bool
	}{
		{
			name:   "unknown build",
			mutate: func(in *Inputs) { in.GenomeBuild = "hg99" },
			check: func(err error) bool {
				var e *model.UnknownGenomeBuildError
				return errors.As(err, &e) && e.Build == "hg99"
			},
		},
		{
			name:   "missing sample",
			mutate: func(in *Inputs) { in.Row.Description = "" },
			check: func(err error) bool {
				var e *model.MissingSampleFieldError
				return errors.As(err, &e) && e.Field == "sample"
			},
		},
		{
			name:   "missing aligner index",
			mutate: func(in *Inputs) { in.SampleAlgorithm = map[string]any{"aligner": "bwa"} },
			check: func(err error) bool {
				var e *model.IncompleteWorkItemError
				return errors.As(err, &e) && e.Field == "reference.bwa"
			},
		},
		{
			name:   "unknown analysis",
			mutate: func(in *Inputs) { in.Analysis = "ChIP-seq" },
			check: func(err error) bool {
				var e *model.IncompleteWorkItemError
				return errors.As(err, &e) && e.Field == "analysis"
			},
		},
		{
			name:   "no files",
			mutate: func(in *Inputs) { in.Files = nil },
			check: func(err error) bool {
				var e *model.IncompleteWorkItemError
				return errors.As(err, &e) && e.Field == "files"
			},
		},
		{
			name:   "relative work dir",
			mutate: func(in *Inputs) { in.Dirs.Work = "work" },
			check: func(err error) bool {
				var e *model.IncompleteWorkItemError
				return errors.As(err, &e) && e.Field == "dirs.work"
			},
		},
		{
			name:   "per-sample manifest override",
			mutate: func(in *Inputs) { in.Resources = map[string]any{"program_versions": "/x.txt"} },
			check: func(err error) bool {
				var e *model.IncompleteWorkItemError
				return errors.As(err, &e) && e.Field == "resources.program_versions"
			},
		},
		{
			name: "realign without train_indels",
			mutate: func(in *Inputs) {
				in.GenomeBuild = "mm10"
				in.SampleAlgorithm = map[string]any{"aligner": "bwa", "realign": true}
			},
			check: func(err error) bool {
				var e *model.ConfigValidationError
				return errors.As(err, &e) && e.Key == "realign"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.inputs[0]
			in.Files = append([]string(nil), in.Files...)
			tt.mutate(&in)
			item, err := f.asm.Assemble(in)
			if err == nil {
				t.Fatalf("Assemble succeeded: %+v", item)
			}
			var sampleErr *model.SampleError
			if !errors.As(err, &sampleErr) {
				t.Errorf("err %T is not a SampleError", err)
			}
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestAssemble_StaleSchemaVersion(t *testing.T) {
	f := newFixture(t)
	old, err := catalog.New(catalog.Entry{
		Build:     "hg18",
		Resources: model.GenomeResources{Version: 3},
		Reference: model.Reference{Fasta: model.FastaRef{Base: "/genomes/hg18/seq/hg18.fa"}},
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	asm, err := NewAssembler(Deps{Catalog: old, Tracker: f.asm.tracker, System: f.asm.system, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	in := f.inputs[0]
	in.GenomeBuild = "hg18"
	in.SampleAlgorithm = nil

	_, err = asm.Assemble(in)
	var stale *model.StaleSchemaVersionError
	if !errors.As(err, &stale) {
		t.Fatalf("err = %v, want StaleSchemaVersionError", err)
	}
	if stale.Version != 3 || stale.Supported != [2]int{MinResourceVersion, MaxResourceVersion} {
		t.Errorf("stale = %+v", stale)
	}
}

func TestAssemble_PerItemResources(t *testing.T) {
	f := newFixture(t)
	in := f.inputs[0]
	in.Resources = map[string]any{"gatk": map[string]any{"cores": 4}}
	item, err := f.asm.Assemble(in)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	got := f.asm.ToolResources(item, "gatk")
	if got.Cores != 4 || got.Memory != "3G" {
		t.Errorf("gatk = %+v, want item cores over system memory", got)
	}
}

func TestValidate_ReportsFirstFieldInKeyOrder(t *testing.T) {
	f := newFixture(t)
	item, err := f.asm.Assemble(f.inputs[0])
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	aligners := item.Clone()
	for _, name := range []string{"star", "bwa", "hisat2", "bowtie2"} {
		aligners.Reference.Aligners[name] = model.IndexSet{}
	}
	tools := item.Clone()
	if tools.Resources == nil {
		tools.Resources = make(map[string]model.ToolSpec)
	}
	tools.Resources[""] = model.ToolSpec{}
	tools.Resources[model.ProgramVersionsKey] = model.ToolSpec{}

	for i := 0; i < 20; i++ {
		var incomplete *model.IncompleteWorkItemError
		if err := Validate(aligners); !errors.As(err, &incomplete) || incomplete.Field != "reference.bowtie2" {
			t.Fatalf("run %d: aligner err = %v, want reference.bowtie2", i, err)
		}
		if err := Validate(tools); !errors.As(err, &incomplete) || !strings.Contains(incomplete.Reason, `""`) {
			t.Fatalf("run %d: resources err = %v, want the empty tool key", i, err)
		}
	}
}

func TestWithFiles_LeavesOriginal(t *testing.T) {
	f := newFixture(t)
	item, err := f.asm.Assemble(f.inputs[0])
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	before := item.Clone()
	next := item.WithFiles([]string{"/work/trimmed/1_1.fq.gz"})
	if diff := cmp.Diff(before, item); diff != "" {
		t.Errorf("original mutated (-before +after):\n%s", diff)
	}
	if len(next.Files) != 1 || next.Provenance != item.Provenance {
		t.Errorf("next = files %v provenance %+v", next.Files, next.Provenance)
	}
	if err := Validate(next); err != nil {
		t.Errorf("Validate(next): %v", err)
	}
}

func TestSetup_IsolatesFailures(t *testing.T) {
	f := newFixture(t)
	results := f.asm.Setup(context.Background(), f.inputs, 2)
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("results[%d].Index = %d", i, r.Index)
		}
	}
	if results[0].Err != nil || results[1].Err != nil {
		t.Fatalf("valid samples failed: %v, %v", results[0].Err, results[1].Err)
	}
	if results[2].Err == nil {
		t.Fatal("Broken should fail")
	}
	items := Items(results)
	if len(items) != 2 || items[0].Description != "Test1" || items[1].Description != "Test2" {
		t.Errorf("items out of order")
	}
	if items[0].Provenance.Entity == items[1].Provenance.Entity {
		t.Error("entities must differ between samples")
	}
}

func TestSetup_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, r := range f.asm.Setup(ctx, f.inputs, 4) {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("results[%d].Err = %v, want context.Canceled", r.Index, r.Err)
		}
	}
}

func TestNewAssembler_RequiresDeps(t *testing.T) {
	if _, err := NewAssembler(Deps{Logger: testLogger()}); err == nil {
		t.Error("expected error without catalog and tracker")
	}
}
