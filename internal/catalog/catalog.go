// Package catalog resolves genome build ids to their reference and resource files.
package catalog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/me/workprep/internal/pathutil"
	"github.com/me/workprep/pkg/model"
	"gopkg.in/yaml.v3"
)

// Entry is the resolved catalog record of one genome build.
type Entry struct {
	Build     string
	Resources model.GenomeResources
	Reference model.Reference
}

// MalformedEntryError reports a catalog entry that cannot be served.
type MalformedEntryError struct {
	Build  string
	Field  string
	Reason string
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("catalog entry %s: %s: %s", e.Build, e.Field, e.Reason)
}

// Catalog is the read-only, build-indexed resource table. It is built once
// and safe for concurrent use.
type Catalog struct {
	entries map[string]Entry
}

type fileFormat struct {
	Genomes map[string]genomeDoc `yaml:"genomes"`
}

type genomeDoc struct {
	Version   int               `yaml:"version"`
	Aliases   model.Aliases     `yaml:"aliases"`
	RNASeq    map[string]string `yaml:"rnaseq"`
	SRNASeq   map[string]string `yaml:"srnaseq"`
	Variation map[string]string `yaml:"variation"`
	Reference referenceDoc      `yaml:"reference"`
}

type referenceDoc struct {
	Fasta         string              `yaml:"fasta"`
	GenomeContext []string            `yaml:"genome_context"`
	RTG           string              `yaml:"rtg"`
	Indexes       map[string][]string `yaml:"indexes"`
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a YAML catalog of the form `genomes: {<build>: {...}}`.
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc fileFormat
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	entries := make([]Entry, 0, len(doc.Genomes))
	for build, g := range doc.Genomes {
		e := Entry{
			Build: build,
			Resources: model.GenomeResources{
				Version:   g.Version,
				Aliases:   g.Aliases,
				RNASeq:    g.RNASeq,
				SRNASeq:   g.SRNASeq,
				Variation: g.Variation,
			},
			Reference: model.Reference{
				Fasta:         model.FastaRef{Base: g.Reference.Fasta},
				GenomeContext: g.Reference.GenomeContext,
				RTG:           g.Reference.RTG,
			},
		}
		if len(g.Reference.Indexes) > 0 {
			e.Reference.Aligners = make(map[string]model.IndexSet, len(g.Reference.Indexes))
			for aligner, files := range g.Reference.Indexes {
				e.Reference.Aligners[aligner] = model.IndexSet{Indexes: files}
			}
		}
		entries = append(entries, e)
	}
	return New(entries...)
}

// New validates entries and builds a Catalog. Locations are normalised and
// must be absolute; aligner index sets must be complete.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if strings.TrimSpace(e.Build) == "" {
			return nil, &MalformedEntryError{Build: "<empty>", Field: "build", Reason: "empty build id"}
		}
		if _, dup := c.entries[e.Build]; dup {
			return nil, &MalformedEntryError{Build: e.Build, Field: "build", Reason: "duplicate build id"}
		}
		norm, err := normalize(e)
		if err != nil {
			return nil, err
		}
		c.entries[e.Build] = norm
	}
	return c, nil
}

func normalize(e Entry) (Entry, error) {
	e.Resources = e.Resources.Clone()
	e.Reference = e.Reference.Clone()

	if e.Resources.Version <= 0 {
		return Entry{}, &MalformedEntryError{Build: e.Build, Field: "version", Reason: "missing or non-positive schema version"}
	}

	abs := func(field, loc string) (string, error) {
		p, err := pathutil.RequireAbs(loc)
		if err != nil {
			return "", &MalformedEntryError{Build: e.Build, Field: field, Reason: err.Error()}
		}
		return p, nil
	}

	for _, name := range []string{"rnaseq", "srnaseq", "variation"} {
		group, _ := e.Resources.Group(name)
		for _, key := range group.Keys() {
			p, err := abs(name+"."+key, group[key])
			if err != nil {
				return Entry{}, err
			}
			group[key] = p
		}
	}

	var err error
	if e.Reference.Fasta.Base, err = abs("reference.fasta", e.Reference.Fasta.Base); err != nil {
		return Entry{}, err
	}
	for i, loc := range e.Reference.GenomeContext {
		if e.Reference.GenomeContext[i], err = abs(fmt.Sprintf("reference.genome_context[%d]", i), loc); err != nil {
			return Entry{}, err
		}
	}
	if e.Reference.RTG != "" {
		if e.Reference.RTG, err = abs("reference.rtg", e.Reference.RTG); err != nil {
			return Entry{}, err
		}
	}
	for aligner, set := range e.Reference.Aligners {
		switch aligner {
		case "fasta", "genome_context", "rtg":
			return Entry{}, &MalformedEntryError{Build: e.Build, Field: "reference.indexes." + aligner, Reason: "aligner name is reserved"}
		}
		for i, loc := range set.Indexes {
			if set.Indexes[i], err = abs(fmt.Sprintf("reference.indexes.%s[%d]", aligner, i), loc); err != nil {
				return Entry{}, err
			}
		}
		if missing := MissingIndexFiles(aligner, set.Indexes); len(missing) > 0 {
			return Entry{}, &MalformedEntryError{
				Build:  e.Build,
				Field:  "reference.indexes." + aligner,
				Reason: "incomplete index set, missing " + strings.Join(missing, ", "),
			}
		}
	}
	return e, nil
}

// Resolve returns a private copy of the entry for build.
func (c *Catalog) Resolve(build string) (Entry, error) {
	e, ok := c.entries[build]
	if !ok {
		return Entry{}, &model.UnknownGenomeBuildError{Build: build}
	}
	e.Resources = e.Resources.Clone()
	e.Reference = e.Reference.Clone()
	return e, nil
}

// Builds returns the catalog's build ids, sorted.
func (c *Catalog) Builds() []string {
	builds := make([]string, 0, len(c.entries))
	for b := range c.entries {
		builds = append(builds, b)
	}
	sort.Strings(builds)
	return builds
}

// indexRequirement describes the files an aligner index must contain,
// either as exact base names or as file name suffixes.
type indexRequirement struct {
	names    []string
	suffixes []string
}

var indexRequirements = map[string]indexRequirement{
	"star": {names: []string{
		"Genome", "SA", "SAindex", "chrLength.txt", "chrName.txt",
		"chrNameLength.txt", "chrStart.txt", "genomeParameters.txt",
	}},
	"bwa":     {suffixes: []string{".amb", ".ann", ".bwt", ".pac", ".sa"}},
	"bowtie2": {suffixes: []string{".1.bt2", ".2.bt2", ".3.bt2", ".4.bt2", ".rev.1.bt2", ".rev.2.bt2"}},
	"hisat2":  {suffixes: []string{".1.ht2", ".2.ht2", ".3.ht2", ".4.ht2", ".5.ht2", ".6.ht2", ".7.ht2", ".8.ht2"}},
}

// MissingIndexFiles returns the required index members of aligner that files
// lacks. Aligners without a known layout only need a non-empty set.
func MissingIndexFiles(aligner string, files []string) []string {
	req, known := indexRequirements[aligner]
	if !known {
		if len(files) == 0 {
			return []string{"<any index file>"}
		}
		return nil
	}
	bases := make([]string, len(files))
	for i, f := range files {
		bases[i] = filepath.Base(f)
	}

	var missing []string
	for _, name := range req.names {
		if !slices.Contains(bases, name) {
			missing = append(missing, name)
		}
	}
	for _, suffix := range req.suffixes {
		if !hasSuffixMember(bases, suffix) {
			missing = append(missing, "*"+suffix)
		}
	}
	return missing
}

// hasSuffixMember reports whether a base name ends in suffix. A forward
// suffix such as ".1.bt2" does not match the reverse file ".rev.1.bt2".
func hasSuffixMember(bases []string, suffix string) bool {
	for _, b := range bases {
		if !strings.HasSuffix(b, suffix) {
			continue
		}
		if !strings.HasPrefix(suffix, ".rev.") && strings.HasSuffix(b, ".rev"+suffix) {
			continue
		}
		return true
	}
	return false
}
