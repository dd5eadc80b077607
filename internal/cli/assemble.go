package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/workprep/internal/config"
	"github.com/me/workprep/internal/provenance"
	"github.com/me/workprep/internal/resources"
	"github.com/me/workprep/internal/workitem"
	"github.com/me/workprep/pkg/model"
	"github.com/spf13/cobra"
)

type sampleFailure struct {
	Sample string          `json:"sample"`
	Lane   string          `json:"lane"`
	Error  *model.APIError `json:"error"`
}

func newAssembleCmd() *cobra.Command {
	var (
		workDir  string
		dbPath   string
		outPath  string
		workers  int
		programs []string
	)
	cmd := &cobra.Command{
		Use:   "assemble <run-config>",
		Short: "Resolve every sample of a run into work items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sysCfg, sys, err := loadSystem()
			if err != nil {
				return err
			}
			cat, err := loadCatalog()
			if err != nil {
				return err
			}
			rc, err := config.LoadRun(args[0])
			if err != nil {
				return err
			}
			if workDir == "" {
				if workDir, err = os.Getwd(); err != nil {
					return err
				}
			}
			if workDir, err = filepath.Abs(workDir); err != nil {
				return err
			}
			if dbPath != "" {
				if dbPath, err = filepath.Abs(dbPath); err != nil {
					return err
				}
			}

			runID, err := provenance.RunID(rc.RunUUID, rc.Seed)
			if err != nil {
				return err
			}
			tracker, err := provenance.NewTracker(runID, workDir, dbPath)
			if err != nil {
				return err
			}
			asm, err := workitem.NewAssembler(workitem.Deps{
				Catalog:   cat,
				Allocator: resources.NewAllocator(logger),
				Tracker:   tracker,
				System:    sys,
				Logger:    logger,
			})
			if err != nil {
				return err
			}

			inputs := workitem.Plan(rc, workitem.Layout{WorkDir: workDir, GalaxyDir: sysCfg.GalaxyDir()})
			logger.Info("assembling run", "run", runID, "samples", len(inputs), "workers", workers)
			results := asm.Setup(cmd.Context(), inputs, workers)
			items := workitem.Items(results)

			if dbPath != "" {
				ledger, err := openLedger(cmd.Context(), dbPath)
				if err != nil {
					return err
				}
				defer ledger.Close()
				for _, item := range items {
					if _, err := ledger.Record(cmd.Context(), item); err != nil {
						return fmt.Errorf("record %s: %w", item.Provenance.Entity, err)
					}
				}
				logger.Info("ledger updated", "path", dbPath, "items", len(items))
			}

			if len(programs) > 0 {
				if err := writeManifest(tracker.ProgramsPath(), programs); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := writeJSON(out, items); err != nil {
				return err
			}

			var failures []sampleFailure
			for i, r := range results {
				if r.Err == nil {
					continue
				}
				failures = append(failures, sampleFailure{
					Sample: inputs[i].Row.Description,
					Lane:   failedLane(r.Err, inputs[i]),
					Error:  model.ToAPIError(r.Err),
				})
			}
			if len(failures) > 0 {
				if err := writeJSON(cmd.ErrOrStderr(), failures); err != nil {
					return err
				}
				return fmt.Errorf("%d of %d samples failed", len(failures), len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workDir, "work", "", "Work directory (default: current directory)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Record assembled items in this ledger database")
	cmd.Flags().StringVarP(&outPath, "output", "o", "-", "Write work items to this file")
	cmd.Flags().IntVar(&workers, "workers", 4, "Samples assembled concurrently")
	cmd.Flags().StringSliceVar(&programs, "program", nil, "Record name=version in the program manifest (repeatable)")
	return cmd
}

func failedLane(err error, in workitem.Inputs) string {
	var se *model.SampleError
	if errors.As(err, &se) {
		return se.Lane
	}
	return in.Row.Lane
}

func writeManifest(path string, programs []string) error {
	m := provenance.NewManifest()
	for _, p := range programs {
		name, version, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("--program %q: want name=version", p)
		}
		if err := m.Add(name, version); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, m.Render(), 0o644); err != nil {
		return fmt.Errorf("write program manifest: %w", err)
	}
	logger.Info("program manifest written", "path", path, "programs", len(m.Programs()))
	return nil
}
