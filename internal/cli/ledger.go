package cli

import (
	"fmt"

	"github.com/me/workprep/pkg/model"
	"github.com/spf13/cobra"
)

func newLedgerCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect recorded work items",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return requireFlag("db", dbPath)
		},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Work-item ledger database")

	runs := &cobra.Command{
		Use:   "runs",
		Short: "List run ids in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer ledger.Close()
			ids, err := ledger.Runs(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	var sampleName string
	var limit, offset int
	list := &cobra.Command{
		Use:   "list <run-id>",
		Short: "List work items recorded for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer ledger.Close()
			recs, total, err := ledger.ListByRun(cmd.Context(), args[0], model.ListOptions{
				Limit: limit, Offset: offset, Sample: sampleName,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No work items found.")
				return nil
			}
			fmt.Fprintf(out, "%-20s  %-6s  %-10s  %-12s  %s\n", "SAMPLE", "LANE", "GENOME", "DIGEST", "ENTITY")
			fmt.Fprintf(out, "%-20s  %-6s  %-10s  %-12s  %s\n", "------", "----", "------", "------", "------")
			for _, r := range recs {
				fmt.Fprintf(out, "%-20s  %-6s  %-10s  %-12s  %s\n", r.Sample, r.Lane, r.GenomeBuild, r.Digest[:12], r.Entity)
			}
			if len(recs) < total {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(recs), total)
			}
			return nil
		},
	}
	list.Flags().StringVar(&sampleName, "sample", "", "Only items of this sample")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum items to show")
	list.Flags().IntVar(&offset, "offset", 0, "Items to skip")

	show := &cobra.Command{
		Use:   "show <entity>",
		Short: "Print one recorded work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer ledger.Close()
			rec, err := ledger.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return model.NewNotFoundError("work item", args[0])
			}
			return writeJSON(cmd.OutOrStdout(), rec.Item)
		},
	}

	cmd.AddCommand(runs, list, show)
	return cmd
}
