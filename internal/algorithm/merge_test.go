package algorithm

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/me/workprep/pkg/model"
	"pgregory.net/rapid"
)

func mustLayer(t *testing.T, source string, raw map[string]any) Layer {
	t.Helper()
	l, err := ParseLayer(source, raw)
	if err != nil {
		t.Fatalf("ParseLayer(%s): %v", source, err)
	}
	return l
}

func TestParseLayer_UnrecognizedKey(t *testing.T) {
	_, err := ParseLayer(SampleLayer("Test1"), map[string]any{
		"aligner": "star",
		"foo_bar": true,
	})
	var cfgErr *model.ConfigValidationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigValidationError", err)
	}
	if cfgErr.Key != "foo_bar" {
		t.Errorf("Key = %q, want foo_bar", cfgErr.Key)
	}
	if cfgErr.Layer != "sample:Test1" {
		t.Errorf("Layer = %q, want sample:Test1", cfgErr.Layer)
	}
}

func TestParseLayer_TypeErrorNamesKey(t *testing.T) {
	_, err := ParseLayer(LayerRun, map[string]any{
		"num_cores": "many",
		"qc":        []any{"fastqc"},
	})
	var cfgErr *model.ConfigValidationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigValidationError", err)
	}
	if cfgErr.Key != "num_cores" || cfgErr.Layer != LayerRun {
		t.Errorf("got key %q layer %q", cfgErr.Key, cfgErr.Layer)
	}
}

func TestParseLayer_TrimReadsFalse(t *testing.T) {
	l := mustLayer(t, LayerRun, map[string]any{"trim_reads": false})
	if l.TrimReads == nil || *l.TrimReads != "" {
		t.Fatalf("TrimReads = %v, want empty", l.TrimReads)
	}
	if _, err := ParseLayer(LayerRun, map[string]any{"trim_reads": true}); err == nil {
		t.Error("trim_reads: true should be rejected")
	}
}

func TestParseLayer_NullIsUnset(t *testing.T) {
	l := mustLayer(t, LayerRun, map[string]any{"variant_regions": nil})
	if l.VariantRegions != nil {
		t.Errorf("VariantRegions = %v, want nil", *l.VariantRegions)
	}
}

func TestMerge_Precedence(t *testing.T) {
	global := mustLayer(t, LayerGlobal, map[string]any{
		"aligner":        "bwa",
		"num_cores":      8,
		"quality_format": "illumina",
	})
	run := mustLayer(t, LayerRun, map[string]any{
		"aligner":   "star",
		"num_cores": 4,
	})
	sample := mustLayer(t, SampleLayer("Test1"), map[string]any{
		"num_cores": 1,
	})

	cfg, err := Merge(global, run, sample)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if cfg.Aligner != "star" {
		t.Errorf("Aligner = %q, want star (run beats global)", cfg.Aligner)
	}
	if cfg.NumCores != 1 {
		t.Errorf("NumCores = %d, want 1 (sample beats run)", cfg.NumCores)
	}
	if cfg.QualityFormat != "illumina" {
		t.Errorf("QualityFormat = %q, want illumina (falls through to global)", cfg.QualityFormat)
	}
	if cfg.NomapSplitSize != 250 || cfg.NomapSplitTargets != 200 {
		t.Errorf("builtin defaults not applied: %d/%d", cfg.NomapSplitSize, cfg.NomapSplitTargets)
	}
	if !cfg.MarkDuplicates {
		t.Error("MarkDuplicates should default to true")
	}
}

func TestMerge_ListsReplacedWholesale(t *testing.T) {
	global := mustLayer(t, LayerGlobal, map[string]any{
		"qc":       []any{"fastqc", "samtools"},
		"adapters": []any{"truseq"},
		"tools_on": []any{"gemini"},
	})
	run := mustLayer(t, LayerRun, map[string]any{
		"qc": []any{"qualimap_rnaseq"},
	})
	sample := mustLayer(t, SampleLayer("s"), map[string]any{
		"tools_on": []any{},
	})

	cfg, err := Merge(global, run, sample)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if diff := cmp.Diff([]string{"qualimap_rnaseq"}, cfg.QC); diff != "" {
		t.Errorf("QC mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"truseq"}, cfg.Adapters); diff != "" {
		t.Errorf("Adapters mismatch (-want +got):\n%s", diff)
	}
	if cfg.ToolsOn == nil || len(cfg.ToolsOn) != 0 {
		t.Errorf("ToolsOn = %#v, want empty non-nil (explicit empty list wins)", cfg.ToolsOn)
	}
	if cfg.Archive == nil {
		t.Error("Archive should default to an empty non-nil list")
	}
}

func TestMerge_DoesNotAliasLayers(t *testing.T) {
	run := mustLayer(t, LayerRun, map[string]any{"qc": []any{"fastqc"}})
	cfg, err := Merge(Layer{}, run, Layer{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	cfg.QC[0] = "mutated"
	if (*run.QC)[0] != "fastqc" {
		t.Error("merged config shares backing array with the run layer")
	}
}

func TestMerge_InvalidValueNamesLayer(t *testing.T) {
	run := mustLayer(t, LayerRun, map[string]any{"num_cores": 0})
	_, err := Merge(Layer{}, run, Layer{})
	var cfgErr *model.ConfigValidationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigValidationError", err)
	}
	if cfgErr.Key != "num_cores" || cfgErr.Layer != LayerRun {
		t.Errorf("got key %q layer %q", cfgErr.Key, cfgErr.Layer)
	}

	sample := mustLayer(t, SampleLayer("x"), map[string]any{"quality_format": "phred99"})
	if _, err := Merge(Layer{}, Layer{}, sample); !errors.As(err, &cfgErr) || cfgErr.Layer != "sample:x" {
		t.Errorf("quality_format error = %v", err)
	}
}

func TestCheckRequirements(t *testing.T) {
	full := model.GenomeResources{
		RNASeq:    model.ResourceGroup{"transcripts": "/g/hg19/rnaseq/ref-transcripts.gtf"},
		Variation: model.ResourceGroup{"dbsnp": "/g/dbsnp.vcf.gz", "train_indels": "/g/mills.vcf.gz"},
	}
	tests := []struct {
		name     string
		cfg      model.AlgorithmConfig
		analysis model.Analysis
		gr       model.GenomeResources
		wantKey  string
	}{
		{"ok rnaseq", model.AlgorithmConfig{}, model.AnalysisRNASeq, full, ""},
		{"recalibrate ok", model.AlgorithmConfig{Recalibrate: true, Realign: true}, model.AnalysisVariant, full, ""},
		{"recalibrate no dbsnp", model.AlgorithmConfig{Recalibrate: true}, model.AnalysisVariant, model.GenomeResources{}, "recalibrate"},
		{"realign no indels", model.AlgorithmConfig{Realign: true}, model.AnalysisVariant,
			model.GenomeResources{Variation: model.ResourceGroup{"dbsnp": "/x"}}, "realign"},
		{"rnaseq no transcripts", model.AlgorithmConfig{}, model.AnalysisRNASeq, model.GenomeResources{}, "analysis"},
		{"variant needs nothing", model.AlgorithmConfig{}, model.AnalysisVariant, model.GenomeResources{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRequirements(tt.cfg, tt.analysis, tt.gr)
			if tt.wantKey == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *model.ConfigValidationError
			if !errors.As(err, &cfgErr) || cfgErr.Key != tt.wantKey {
				t.Errorf("err = %v, want ConfigValidationError for %q", err, tt.wantKey)
			}
		})
	}
}

func TestWithAbsolutePaths(t *testing.T) {
	rel := "regions/targets.bed"
	abs := "/data/truth.vcf.gz"
	cfg := model.AlgorithmConfig{VariantRegions: &rel, Validate: &abs}

	got, err := WithAbsolutePaths(cfg, "/runs/r1", Layer{}, Layer{}, Layer{})
	if err != nil {
		t.Fatalf("WithAbsolutePaths: %v", err)
	}
	if *got.VariantRegions != "/runs/r1/regions/targets.bed" {
		t.Errorf("VariantRegions = %q", *got.VariantRegions)
	}
	if *got.Validate != abs {
		t.Errorf("Validate = %q", *got.Validate)
	}
	if got.ValidateRegions != nil {
		t.Error("unset option should stay nil")
	}
	if *cfg.VariantRegions != rel {
		t.Error("input config was mutated")
	}
}

func TestWithAbsolutePaths_NamesSourceLayer(t *testing.T) {
	bad := "s3://bucket/targets.bed"
	tests := []struct {
		name      string
		global    Layer
		run       Layer
		sample    Layer
		wantLayer string
	}{
		{"global", Layer{VariantRegions: &bad}, Layer{}, Layer{}, LayerGlobal},
		{"run", Layer{}, Layer{VariantRegions: &bad}, Layer{}, LayerRun},
		{"sample", Layer{}, Layer{}, Layer{Source: SampleLayer("Test1"), VariantRegions: &bad}, "sample:Test1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Merge(tt.global, tt.run, tt.sample)
			if err != nil {
				t.Fatalf("Merge: %v", err)
			}
			_, err = WithAbsolutePaths(cfg, "/runs/r1", tt.global, tt.run, tt.sample)
			var cfgErr *model.ConfigValidationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err = %v, want ConfigValidationError", err)
			}
			if cfgErr.Key != "variant_regions" || cfgErr.Layer != tt.wantLayer {
				t.Errorf("ConfigValidationError = %+v, want variant_regions from %s", cfgErr, tt.wantLayer)
			}
		})
	}
}

func genLayer(source string) *rapid.Generator[Layer] {
	return rapid.Custom(func(t *rapid.T) Layer {
		l := Layer{Source: source}
		tools := rapid.SliceOfN(rapid.SampledFrom([]string{"fastqc", "samtools", "gemini", "qualimap"}), 0, 3)
		if rapid.Bool().Draw(t, "setAligner") {
			l.Aligner = ptr(rapid.SampledFrom([]string{"star", "bwa", "hisat2"}).Draw(t, "aligner"))
		}
		if rapid.Bool().Draw(t, "setCores") {
			l.NumCores = ptr(rapid.IntRange(1, 64).Draw(t, "cores"))
		}
		if rapid.Bool().Draw(t, "setQC") {
			l.QC = ptr(tools.Draw(t, "qc"))
		}
		if rapid.Bool().Draw(t, "setToolsOn") {
			l.ToolsOn = ptr(tools.Draw(t, "tools_on"))
		}
		if rapid.Bool().Draw(t, "setRealign") {
			l.Realign = ptr(rapid.Bool().Draw(t, "realign"))
		}
		if rapid.Bool().Draw(t, "setRegions") {
			l.VariantRegions = ptr("/regions/" + rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "regions") + ".bed")
		}
		return l
	})
}

// Merging a merged config with itself at every layer reproduces it.
func TestMerge_Idempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		g := genLayer(LayerGlobal).Draw(rt, "global")
		r := genLayer(LayerRun).Draw(rt, "run")
		s := genLayer(SampleLayer("s")).Draw(rt, "sample")

		first, err := Merge(g, r, s)
		if err != nil {
			rt.Fatalf("Merge: %v", err)
		}
		again, err := Merge(LayerOf(LayerGlobal, first), LayerOf(LayerRun, first), LayerOf(SampleLayer("s"), first))
		if err != nil {
			rt.Fatalf("re-merge: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			rt.Fatalf("re-merge changed config (-first +again):\n%s", diff)
		}
		onTop, err := Merge(g, r, LayerOf(SampleLayer("s"), first))
		if err != nil {
			rt.Fatalf("merge with result as sample layer: %v", err)
		}
		if diff := cmp.Diff(first, onTop); diff != "" {
			rt.Fatalf("result as top layer changed config:\n%s", diff)
		}
	})
}

// A key set at a higher layer always wins, and an unset key never clobbers a lower one.
func TestMerge_KeywisePrecedence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		g := genLayer(LayerGlobal).Draw(rt, "global")
		r := genLayer(LayerRun).Draw(rt, "run")
		s := genLayer(SampleLayer("s")).Draw(rt, "sample")

		cfg, err := Merge(g, r, s)
		if err != nil {
			rt.Fatalf("Merge: %v", err)
		}
		want := 1
		for _, l := range []Layer{s, r, g} {
			if l.NumCores != nil {
				want = *l.NumCores
				break
			}
		}
		if cfg.NumCores != want {
			rt.Fatalf("NumCores = %d, want %d", cfg.NumCores, want)
		}
	})
}

func TestOptions_Sorted(t *testing.T) {
	opts := Options()
	for i := 1; i < len(opts); i++ {
		if opts[i-1] >= opts[i] {
			t.Fatalf("Options not sorted at %d: %q >= %q", i, opts[i-1], opts[i])
		}
	}
	if !Recognized("trim_reads") || Recognized("foo_bar") {
		t.Error("registry lookup wrong")
	}
}
