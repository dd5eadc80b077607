// Package provenance assigns deterministic entity ids and manifest paths to
// work items.
package provenance

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// runNamespace seeds name-based run UUIDs derived from configuration content.
var runNamespace = uuid.MustParse("6f1d0c6e-3b7a-5c4e-9a52-1f0e8d2b7c41")

// Stage is one step in the chain of pipeline stages that produced a work item.
type Stage struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// EntityID identifies a work item by run, sample, lane and stage chain.
// Its string form is
//
//	<run-uuid>.<sample>.<lane>.<stage>.<index>[.<stage>.<index>...]
//
// with "%" and "." inside sample, lane and stage names percent-escaped.
type EntityID struct {
	Run    uuid.UUID
	Sample string
	Lane   string
	Stages []Stage
}

var (
	escaper   = strings.NewReplacer("%", "%25", ".", "%2E")
	unescaper = strings.NewReplacer("%2E", ".", "%25", "%")
)

// String returns the stable encoding of e.
func (e EntityID) String() string {
	var b strings.Builder
	b.WriteString(e.Run.String())
	b.WriteByte('.')
	b.WriteString(escaper.Replace(e.Sample))
	b.WriteByte('.')
	b.WriteString(escaper.Replace(e.Lane))
	for _, s := range e.Stages {
		b.WriteByte('.')
		b.WriteString(escaper.Replace(s.Name))
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(s.Index))
	}
	return b.String()
}

// Validate checks that e has every component it needs to be unique.
func (e EntityID) Validate() error {
	if e.Run == uuid.Nil {
		return fmt.Errorf("entity: nil run id")
	}
	if e.Sample == "" {
		return fmt.Errorf("entity: empty sample")
	}
	if e.Lane == "" {
		return fmt.Errorf("entity: empty lane")
	}
	if len(e.Stages) == 0 {
		return fmt.Errorf("entity: no stage")
	}
	for i, s := range e.Stages {
		if s.Name == "" {
			return fmt.Errorf("entity: stage %d has no name", i)
		}
		if s.Index < 0 {
			return fmt.Errorf("entity: stage %s has negative index %d", s.Name, s.Index)
		}
	}
	return nil
}

// ParseEntityID decodes the string form produced by EntityID.String.
func ParseEntityID(s string) (EntityID, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 5 || (len(parts)-3)%2 != 0 {
		return EntityID{}, fmt.Errorf("parse entity %q: wrong number of components", s)
	}
	run, err := uuid.Parse(parts[0])
	if err != nil {
		return EntityID{}, fmt.Errorf("parse entity %q: run id: %w", s, err)
	}
	e := EntityID{
		Run:    run,
		Sample: unescaper.Replace(parts[1]),
		Lane:   unescaper.Replace(parts[2]),
	}
	for i := 3; i < len(parts); i += 2 {
		idx, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return EntityID{}, fmt.Errorf("parse entity %q: stage index: %w", s, err)
		}
		e.Stages = append(e.Stages, Stage{Name: unescaper.Replace(parts[i]), Index: idx})
	}
	if err := e.Validate(); err != nil {
		return EntityID{}, fmt.Errorf("parse entity %q: %w", s, err)
	}
	return e, nil
}

// RunID returns the run's UUID. An explicit id is parsed as given; otherwise a
// name-based UUID is derived from seed (the canonical run configuration) so
// that re-running unchanged configuration reproduces the same id.
func RunID(explicit string, seed []byte) (uuid.UUID, error) {
	if explicit != "" {
		id, err := uuid.Parse(explicit)
		if err != nil {
			return uuid.Nil, fmt.Errorf("run id %q: %w", explicit, err)
		}
		return id, nil
	}
	if len(seed) == 0 {
		return uuid.Nil, fmt.Errorf("run id: neither an explicit id nor a configuration seed")
	}
	return uuid.NewSHA1(runNamespace, seed), nil
}
