package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"tubefront/internal/api"
)

func newProgressCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var watch bool
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "progress [job-id]",
		Short: "Show download progress from the running daemon",
		Long:  "Show one job's progress snapshot, or the most recently updated one when no id is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := ""
			if len(args) == 1 {
				jobID = args[0]
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for {
				snap, err := client.Progress(cmd.Context(), jobID)
				if err != nil {
					var statusErr *api.StatusError
					if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
						if jobID == "" {
							return errors.New("no progress recorded")
						}
						return fmt.Errorf("no progress recorded for job %s", jobID)
					}
					return wrapClientError(err, client)
				}
				if asJSON {
					if err := writeJSON(cmd, snap); err != nil {
						return err
					}
				} else {
					for _, line := range renderProgress(snap, colorize) {
						fmt.Fprintln(out, line)
					}
				}
				if !watch || snap.Stage == "finished" || snap.Stage == "failed" {
					return nil
				}
				// Follow the job we resolved first, even if another becomes latest.
				jobID = snap.JobID
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(interval):
				}
				if !asJSON {
					fmt.Fprintln(out)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the job finishes or fails")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval for --watch")
	return cmd
}
