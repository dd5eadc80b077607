package cli

import (
	"fmt"

	"github.com/me/workprep/pkg/model"
	"github.com/spf13/cobra"
)

type genomeOutput struct {
	Build           string                `json:"build"`
	GenomeResources model.GenomeResources `json:"genome_resources"`
	Reference       model.Reference       `json:"reference"`
}

func newGenomeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genome [build]",
		Short: "List catalog builds or show one build's resources",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				for _, b := range cat.Builds() {
					fmt.Fprintln(cmd.OutOrStdout(), b)
				}
				return nil
			}
			entry, err := cat.Resolve(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), genomeOutput{
				Build:           entry.Build,
				GenomeResources: entry.Resources,
				Reference:       entry.Reference,
			})
		},
	}
}
