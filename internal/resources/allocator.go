// Package resources resolves per-tool compute allocations from tiered tables.
package resources

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/me/workprep/pkg/model"
)

// DefaultTier is the table entry every tool inherits from.
const DefaultTier = "default"

// Allocator merges the default tier with tool-specific overrides.
type Allocator struct {
	logger *slog.Logger
}

// NewAllocator creates an Allocator with the given logger.
func NewAllocator(logger *slog.Logger) *Allocator {
	return &Allocator{logger: logger.With("component", "allocator")}
}

// Allocate resolves tool's resources. Tiers apply lowest first: global
// default, run default, global tool entry, run tool entry. Unset fields
// inherit from the tier below; jvm_opts is replaced as a whole sequence and
// memory strings are passed through uninterpreted.
func (a *Allocator) Allocate(tool string, global, run map[string]model.ToolSpec) model.ToolResources {
	var out model.ToolResources
	tiers := []struct {
		name string
		spec model.ToolSpec
		ok   bool
	}{
		{"global." + DefaultTier, global[DefaultTier], hasKey(global, DefaultTier)},
		{"run." + DefaultTier, run[DefaultTier], hasKey(run, DefaultTier)},
		{"global." + tool, global[tool], tool != DefaultTier && hasKey(global, tool)},
		{"run." + tool, run[tool], tool != DefaultTier && hasKey(run, tool)},
	}
	for _, tier := range tiers {
		if !tier.ok {
			continue
		}
		if tier.spec.Cores != nil {
			out.Cores = *tier.spec.Cores
		}
		if tier.spec.Memory != "" {
			out.Memory = tier.spec.Memory
		}
		if tier.spec.JVMOpts != nil {
			out.JVMOpts = slices.Clone(tier.spec.JVMOpts)
		}
	}
	if out.JVMOpts == nil {
		out.JVMOpts = []string{}
	}
	a.logger.Debug("allocate", "tool", tool, "cores", out.Cores, "memory", out.Memory, "jvm_opts", out.JVMOpts)
	return out
}

func hasKey(m map[string]model.ToolSpec, k string) bool {
	_, ok := m[k]
	return ok
}

// ParseTable builds a ResourceTable from loader output: a map of tool name to
// {cores, memory, jvm_opts}, plus the program_versions manifest path.
func ParseTable(raw map[string]any) (model.ResourceTable, error) {
	table := model.ResourceTable{Tools: make(map[string]model.ToolSpec, len(raw))}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		val := raw[name]
		if name == model.ProgramVersionsKey {
			s, ok := val.(string)
			if !ok {
				return model.ResourceTable{}, fmt.Errorf("resources.%s: expected a path, got %T", name, val)
			}
			table.ProgramVersions = s
			continue
		}
		spec, err := ParseSpec(name, val)
		if err != nil {
			return model.ResourceTable{}, err
		}
		table.Tools[name] = spec
	}
	return table, nil
}

// ParseSpec builds one tool's ToolSpec from a raw {cores, memory, jvm_opts} map.
func ParseSpec(tool string, val any) (model.ToolSpec, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return model.ToolSpec{}, fmt.Errorf("resources.%s: expected a mapping, got %T", tool, val)
	}
	var spec model.ToolSpec
	for key, v := range m {
		switch key {
		case "cores":
			n, err := toInt(v)
			if err != nil || n < 1 {
				return model.ToolSpec{}, fmt.Errorf("resources.%s.cores: want a positive integer, got %v", tool, v)
			}
			spec.Cores = &n
		case "memory":
			spec.Memory = fmt.Sprint(v)
		case "jvm_opts":
			list, ok := v.([]any)
			if !ok {
				return model.ToolSpec{}, fmt.Errorf("resources.%s.jvm_opts: want a list, got %T", tool, v)
			}
			spec.JVMOpts = make([]string, 0, len(list))
			for _, opt := range list {
				spec.JVMOpts = append(spec.JVMOpts, fmt.Sprint(opt))
			}
		default:
			// Tool-specific keys such as "options" or "dir" belong to the
			// stage executor and are not part of the allocation.
		}
	}
	return spec, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("not an integer: %T", v)
}
