package model

import (
	"encoding/json"
	"fmt"
	"slices"
)

// ProgramVersionsKey is the resource table entry holding the program manifest path.
const ProgramVersionsKey = "program_versions"

// ToolSpec is a partial compute allocation for one tool. Unset fields
// (nil Cores, empty Memory, nil JVMOpts) inherit from a lower tier.
type ToolSpec struct {
	Cores   *int     `json:"cores,omitempty"`
	Memory  string   `json:"memory,omitempty"`
	JVMOpts []string `json:"jvm_opts,omitempty"`
}

// Clone returns a deep copy of s.
func (s ToolSpec) Clone() ToolSpec {
	if s.Cores != nil {
		c := *s.Cores
		s.Cores = &c
	}
	s.JVMOpts = slices.Clone(s.JVMOpts)
	return s
}

// ToolResources is a fully resolved compute allocation.
type ToolResources struct {
	Cores   int      `json:"cores"`
	Memory  string   `json:"memory"`
	JVMOpts []string `json:"jvm_opts"`
}

// ResourceTable is the system-wide per-tool allocation table. The "default"
// entry is the tier every tool inherits from.
type ResourceTable struct {
	Tools           map[string]ToolSpec
	ProgramVersions string
}

// CloneToolSpecs returns a deep copy of m.
func CloneToolSpecs(m map[string]ToolSpec) map[string]ToolSpec {
	if m == nil {
		return nil
	}
	out := make(map[string]ToolSpec, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Clone returns a deep copy of t.
func (t ResourceTable) Clone() ResourceTable {
	t.Tools = CloneToolSpecs(t.Tools)
	return t
}

func (t ResourceTable) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(t.Tools)+1)
	for name, spec := range t.Tools {
		m[name] = spec
	}
	if t.ProgramVersions != "" {
		if _, dup := t.Tools[ProgramVersionsKey]; dup {
			return nil, fmt.Errorf("resources: tool named %q collides with the manifest entry", ProgramVersionsKey)
		}
		m[ProgramVersionsKey] = t.ProgramVersions
	}
	return json.Marshal(m)
}

func (t *ResourceTable) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = ResourceTable{Tools: make(map[string]ToolSpec, len(raw))}
	for key, val := range raw {
		if key == ProgramVersionsKey {
			if err := json.Unmarshal(val, &t.ProgramVersions); err != nil {
				return fmt.Errorf("resources.%s: %w", key, err)
			}
			continue
		}
		var spec ToolSpec
		if err := json.Unmarshal(val, &spec); err != nil {
			return fmt.Errorf("resources.%s: %w", key, err)
		}
		t.Tools[key] = spec
	}
	return nil
}
