package provenance

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/me/workprep/internal/pathutil"
	"github.com/me/workprep/pkg/model"
)

// Manifest file names under <work>/provenance.
const (
	ProgramsFile     = "programs.txt"
	DataVersionsFile = "data_versions.csv"
)

// Tracker assigns provenance records for one run. The manifest paths are the
// same for every sample in the run.
type Tracker struct {
	run      uuid.UUID
	programs string
	data     string
	db       string
}

// NewTracker creates a Tracker for run writing manifests under workDir.
// dbPath is optional.
func NewTracker(run uuid.UUID, workDir, dbPath string) (*Tracker, error) {
	if run == uuid.Nil {
		return nil, fmt.Errorf("provenance: nil run id")
	}
	if !filepath.IsAbs(workDir) {
		return nil, fmt.Errorf("provenance: work dir %q is not absolute", workDir)
	}
	if dbPath != "" {
		p, err := pathutil.Absolutize(workDir, dbPath)
		if err != nil {
			return nil, fmt.Errorf("provenance: db path: %w", err)
		}
		dbPath = p
	}
	dir := filepath.Join(filepath.Clean(workDir), "provenance")
	return &Tracker{
		run:      run,
		programs: filepath.Join(dir, ProgramsFile),
		data:     filepath.Join(dir, DataVersionsFile),
		db:       dbPath,
	}, nil
}

// Run returns the tracker's run id.
func (t *Tracker) Run() uuid.UUID { return t.run }

// ProgramsPath returns the program manifest path shared by the run.
func (t *Tracker) ProgramsPath() string { return t.programs }

// Assign builds the provenance record of (sample, lane, stages).
// The stage chain lists ancestors first, ending with the current stage.
func (t *Tracker) Assign(sample, lane string, stages ...Stage) (model.Provenance, EntityID, error) {
	id := EntityID{Run: t.run, Sample: sample, Lane: lane, Stages: slices.Clone(stages)}
	if err := id.Validate(); err != nil {
		return model.Provenance{}, EntityID{}, err
	}
	return model.Provenance{
		Data:     t.data,
		DB:       model.NullString(t.db),
		Entity:   id.String(),
		Programs: t.programs,
	}, id, nil
}

// Program is one entry of the program/version manifest.
type Program struct {
	Name    string
	Version string
}

// Manifest accumulates program versions for the external executor to write.
// It is not safe for concurrent use.
type Manifest struct {
	versions map[string]string
}

// NewManifest returns an empty Manifest.
func NewManifest() *Manifest {
	return &Manifest{versions: make(map[string]string)}
}

// Add records name at version. Re-adding the same version is a no-op; a
// different version for a known program is an error.
func (m *Manifest) Add(name, version string) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, ",\n") {
		return fmt.Errorf("manifest: invalid program name %q", name)
	}
	if strings.ContainsAny(version, ",\n") {
		return fmt.Errorf("manifest: invalid version %q for %s", version, name)
	}
	if prev, ok := m.versions[name]; ok && prev != version {
		return fmt.Errorf("manifest: %s already recorded at version %q, got %q", name, prev, version)
	}
	m.versions[name] = version
	return nil
}

// Programs returns the recorded programs sorted by name.
func (m *Manifest) Programs() []Program {
	out := make([]Program, 0, len(m.versions))
	for name, v := range m.versions {
		out = append(out, Program{Name: name, Version: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Render returns the manifest as "name,version" lines in name order.
func (m *Manifest) Render() []byte {
	var b strings.Builder
	for _, p := range m.Programs() {
		b.WriteString(p.Name)
		b.WriteByte(',')
		b.WriteString(p.Version)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
