package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tubefront/internal/logging"
	"tubefront/internal/scratch"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var force bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove leaked files from the scratch directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !force {
				if client, err := ctx.apiClient(); err == nil {
					if status, err := client.Status(cmd.Context()); err == nil && status.Running {
						return errors.New("daemon is running and sweeps scratch itself; pass --force to sweep anyway")
					}
				}
			}
			if maxAge <= 0 {
				maxAge = cfg.ScratchMaxAge()
			}
			logger, err := ctx.cliLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			outputs, err := scratch.NewManager(cfg.Paths.ScratchDir, logger)
			if err != nil {
				return err
			}

			result := outputs.Sweep(cmd.Context(), maxAge)
			out := cmd.OutOrStdout()
			for _, path := range result.Removed {
				fmt.Fprintf(out, "removed %s\n", path)
			}
			fmt.Fprintf(out, "Swept %d file(s) older than %s from %s\n", len(result.Removed), maxAge, outputs.Dir())
			if len(result.Errors) > 0 {
				for _, failure := range result.Errors {
					logger.Warn("sweep failure", logging.String("path", failure.Path), logging.Error(failure.Error))
				}
				return fmt.Errorf("%d file(s) could not be removed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Remove files older than this (defaults to scratch.max_age_minutes)")
	cmd.Flags().BoolVar(&force, "force", false, "Sweep even while the daemon is running")
	return cmd
}
