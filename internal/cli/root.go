// Package cli implements the workprep command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/me/workprep/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagSystem    string
	flagGenomes   string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// envDefault returns the value of the environment variable key, or def.
func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// NewRootCmd creates the root cobra command for the workprep CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "workprep",
		Short: "workprep resolves sequencing samples into pipeline work items",
		Long: "workprep merges system, run and sample configuration with the genome catalog\n" +
			"and resource tables into one self-contained work item per sample.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			level, err := logging.ParseLevel(flagLogLevel)
			if err != nil {
				return err
			}
			format, err := logging.ParseFormat(flagLogFormat)
			if err != nil {
				return err
			}
			logger = logging.NewLoggerWithWriter(level, format, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagSystem, "system", envDefault("WORKPREP_SYSTEM", ""), "System configuration file (or WORKPREP_SYSTEM env)")
	root.PersistentFlags().StringVar(&flagGenomes, "genomes", envDefault("WORKPREP_GENOMES", ""), "Genome catalog file (or WORKPREP_GENOMES env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newAssembleCmd(),
		newGenomeCmd(),
		newResourcesCmd(),
		newServeCmd(),
		newLedgerCmd(),
	)

	return root
}

func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
