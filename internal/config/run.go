package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/me/workprep/internal/pathutil"
	"gopkg.in/yaml.v3"
)

// RunConfig is a parsed run configuration: run-level settings plus one
// entry per sample sheet row.
type RunConfig struct {
	Path      string
	Dir       string
	FCName    string
	FCDate    string
	FCDir     string
	RunUUID   string
	UploadDir string
	Algorithm map[string]any
	Details   []SampleEntry

	// Seed is the canonical encoding of the document, used to derive a
	// stable run id when none is given.
	Seed []byte
}

// SampleEntry is one row of the run's details list.
type SampleEntry struct {
	Index       int
	Description string
	Analysis    string
	GenomeBuild string
	Lane        string
	Files       []string
	Algorithm   map[string]any
	Metadata    map[string]string
	Resources   map[string]any
	RGNames     ReadGroupFields
}

// ReadGroupFields are explicit read-group values given in the sample sheet.
type ReadGroupFields struct {
	RG string `yaml:"rg"`
	PL string `yaml:"pl"`
	PU string `yaml:"pu"`
	LB string `yaml:"lb"`
}

type runDoc struct {
	FCName    string         `yaml:"fc_name"`
	FCDate    string         `yaml:"fc_date"`
	FCDir     string         `yaml:"fc_dir"`
	RunUUID   string         `yaml:"run_uuid"`
	Upload    uploadDoc      `yaml:"upload"`
	Algorithm map[string]any `yaml:"algorithm"`
	Details   []detailDoc    `yaml:"details"`
}

type uploadDoc struct {
	Dir string `yaml:"dir"`
}

type detailDoc struct {
	Description string          `yaml:"description"`
	Analysis    string          `yaml:"analysis"`
	GenomeBuild string          `yaml:"genome_build"`
	Lane        string          `yaml:"lane"`
	Files       []string        `yaml:"files"`
	Algorithm   map[string]any  `yaml:"algorithm"`
	Metadata    map[string]any  `yaml:"metadata"`
	Resources   map[string]any  `yaml:"resources"`
	RGNames     ReadGroupFields `yaml:"rgnames"`
}

// LoadRun reads the run configuration at path.
func LoadRun(path string) (RunConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("run config path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return RunConfig{}, fmt.Errorf("read run config: %w", err)
	}
	return ParseRun(abs, data)
}

// ParseRun parses run configuration bytes. path must be absolute; relative
// file locations are resolved against its directory.
func ParseRun(path string, data []byte) (RunConfig, error) {
	if !filepath.IsAbs(path) {
		return RunConfig{}, fmt.Errorf("run config path %q is not absolute", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc runDoc
	if err := dec.Decode(&doc); err != nil {
		return RunConfig{}, fmt.Errorf("parse run config %s: %w", path, err)
	}

	seed, err := canonical(data)
	if err != nil {
		return RunConfig{}, fmt.Errorf("canonicalise run config: %w", err)
	}

	dir := filepath.Dir(path)
	rc := RunConfig{
		Path:      path,
		Dir:       dir,
		FCName:    doc.FCName,
		FCDate:    doc.FCDate,
		RunUUID:   doc.RunUUID,
		Algorithm: doc.Algorithm,
		Seed:      seed,
	}
	if rc.FCDir, err = pathutil.Absolutize(dir, doc.FCDir); err != nil {
		return RunConfig{}, fmt.Errorf("fc_dir: %w", err)
	}
	if rc.UploadDir, err = pathutil.Absolutize(dir, doc.Upload.Dir); err != nil {
		return RunConfig{}, fmt.Errorf("upload.dir: %w", err)
	}

	for i, d := range doc.Details {
		entry, err := d.entry(i, dir)
		if err != nil {
			return RunConfig{}, fmt.Errorf("details[%d]: %w", i, err)
		}
		rc.Details = append(rc.Details, entry)
	}
	return rc, nil
}

func (d detailDoc) entry(index int, dir string) (SampleEntry, error) {
	e := SampleEntry{
		Index:       index,
		Description: d.Description,
		Analysis:    d.Analysis,
		GenomeBuild: d.GenomeBuild,
		Lane:        d.Lane,
		Algorithm:   d.Algorithm,
		Resources:   d.Resources,
		RGNames:     d.RGNames,
	}
	for _, f := range d.Files {
		p, err := pathutil.Absolutize(dir, f)
		if err != nil {
			return SampleEntry{}, fmt.Errorf("files: %w", err)
		}
		e.Files = append(e.Files, p)
	}
	if len(d.Metadata) > 0 {
		e.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			switch val := v.(type) {
			case nil:
				e.Metadata[k] = ""
			case string, int, float64, bool:
				e.Metadata[k] = fmt.Sprint(val)
			default:
				return SampleEntry{}, fmt.Errorf("metadata.%s: unsupported value of type %T", k, v)
			}
		}
	}
	return e, nil
}

// canonical re-encodes a YAML document with sorted keys so that formatting
// and key order do not change the run seed.
func canonical(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return yaml.Marshal(v)
}
