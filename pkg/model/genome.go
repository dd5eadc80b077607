package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// GenomeResources is the resolved catalog entry for one genome build.
type GenomeResources struct {
	Aliases   Aliases       `json:"aliases"`
	RNASeq    ResourceGroup `json:"rnaseq,omitempty"`
	SRNASeq   ResourceGroup `json:"srnaseq,omitempty"`
	Variation ResourceGroup `json:"variation,omitempty"`
	Version   int           `json:"version"`
}

// Aliases maps a build onto the naming conventions of annotation tools.
type Aliases struct {
	Ensembl string `json:"ensembl,omitempty" yaml:"ensembl"`
	Human   bool   `json:"human" yaml:"human"`
	SnpEff  string `json:"snpeff,omitempty" yaml:"snpeff"`
}

// ResourceGroup holds the resource files of one analysis family, keyed by role.
type ResourceGroup map[string]string

// Keys returns the group keys sorted.
func (g ResourceGroup) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Group returns the named resource group ("rnaseq", "srnaseq" or "variation").
func (r GenomeResources) Group(name string) (ResourceGroup, bool) {
	switch name {
	case "rnaseq":
		return r.RNASeq, true
	case "srnaseq":
		return r.SRNASeq, true
	case "variation":
		return r.Variation, true
	}
	return nil, false
}

// Lookup returns group[key] when both exist and the value is non-empty.
func (r GenomeResources) Lookup(group, key string) (string, bool) {
	g, ok := r.Group(group)
	if !ok {
		return "", false
	}
	v := g[key]
	return v, v != ""
}

// Clone returns a deep copy of r.
func (r GenomeResources) Clone() GenomeResources {
	r.RNASeq = maps.Clone(r.RNASeq)
	r.SRNASeq = maps.Clone(r.SRNASeq)
	r.Variation = maps.Clone(r.Variation)
	return r
}

// Reference holds the reference sequence and aligner index paths of a build.
// On the wire each aligner appears as its own key next to fasta, rtg and
// genome_context.
type Reference struct {
	Fasta         FastaRef
	GenomeContext []string
	RTG           string
	Aligners      map[string]IndexSet
}

// FastaRef points at the reference fasta.
type FastaRef struct {
	Base string `json:"base"`
}

// IndexSet is the complete file set of one aligner's index.
type IndexSet struct {
	Indexes []string `json:"indexes"`
}

var reservedReferenceKeys = []string{"fasta", "genome_context", "rtg"}

// Clone returns a deep copy of r.
func (r Reference) Clone() Reference {
	r.GenomeContext = slices.Clone(r.GenomeContext)
	if r.Aligners != nil {
		aligners := make(map[string]IndexSet, len(r.Aligners))
		for k, v := range r.Aligners {
			aligners[k] = IndexSet{Indexes: slices.Clone(v.Indexes)}
		}
		r.Aligners = aligners
	}
	return r
}

// Paths lists every path in the reference with its dotted field name, sorted by field.
func (r Reference) Paths() []NamedPath {
	out := []NamedPath{{"reference.fasta.base", r.Fasta.Base}}
	for i, p := range r.GenomeContext {
		out = append(out, NamedPath{fmt.Sprintf("reference.genome_context[%d]", i), p})
	}
	if r.RTG != "" {
		out = append(out, NamedPath{"reference.rtg", r.RTG})
	}
	names := make([]string, 0, len(r.Aligners))
	for name := range r.Aligners {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for i, p := range r.Aligners[name].Indexes {
			out = append(out, NamedPath{fmt.Sprintf("reference.%s.indexes[%d]", name, i), p})
		}
	}
	return out
}

func (r Reference) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Aligners)+3)
	m["fasta"] = r.Fasta
	if len(r.GenomeContext) > 0 {
		m["genome_context"] = r.GenomeContext
	}
	if r.RTG != "" {
		m["rtg"] = r.RTG
	}
	for name, idx := range r.Aligners {
		if slices.Contains(reservedReferenceKeys, name) {
			return nil, fmt.Errorf("aligner name %q collides with a reference key", name)
		}
		m[name] = idx
	}
	return json.Marshal(m)
}

func (r *Reference) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Reference{}
	for key, val := range raw {
		var err error
		switch key {
		case "fasta":
			err = json.Unmarshal(val, &r.Fasta)
		case "genome_context":
			err = json.Unmarshal(val, &r.GenomeContext)
		case "rtg":
			err = json.Unmarshal(val, &r.RTG)
		default:
			var idx IndexSet
			if err = json.Unmarshal(val, &idx); err == nil {
				if r.Aligners == nil {
					r.Aligners = make(map[string]IndexSet)
				}
				r.Aligners[key] = idx
			}
		}
		if err != nil {
			return fmt.Errorf("reference.%s: %w", key, err)
		}
	}
	return nil
}
