package cli

import (
	"fmt"

	"github.com/me/workprep/internal/config"
	"github.com/me/workprep/internal/resources"
	"github.com/me/workprep/pkg/model"
	"github.com/spf13/cobra"
)

func newResourcesCmd() *cobra.Command {
	var runPath, sampleName string
	cmd := &cobra.Command{
		Use:   "resources <tool>",
		Short: "Show the compute allocation of a tool",
		Long: "Resolves cores, memory and JVM options of a tool from the system resource\n" +
			"table, optionally overlaid with one sample's resources from a run config.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sys, err := loadSystem()
			if err != nil {
				return err
			}
			var overrides map[string]model.ToolSpec
			if runPath != "" {
				if overrides, err = sampleResources(runPath, sampleName); err != nil {
					return err
				}
			}
			alloc := resources.NewAllocator(logger)
			return writeJSON(cmd.OutOrStdout(), alloc.Allocate(args[0], sys.Resources.Tools, overrides))
		},
	}
	cmd.Flags().StringVar(&runPath, "run", "", "Run configuration holding per-sample overrides")
	cmd.Flags().StringVar(&sampleName, "sample", "", "Sample description within --run")
	return cmd
}

func sampleResources(runPath, sampleName string) (map[string]model.ToolSpec, error) {
	if err := requireFlag("sample", sampleName); err != nil {
		return nil, err
	}
	rc, err := config.LoadRun(runPath)
	if err != nil {
		return nil, err
	}
	for _, e := range rc.Details {
		if e.Description != sampleName {
			continue
		}
		table, err := resources.ParseTable(e.Resources)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", sampleName, err)
		}
		return table.Tools, nil
	}
	return nil, fmt.Errorf("sample %q not found in %s", sampleName, runPath)
}
