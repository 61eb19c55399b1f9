package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tubefront/internal/api"
	"tubefront/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the job ledger",
	}

	var statusFilters []string
	var limit int
	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilters(statusFilters)
			if err != nil {
				return err
			}
			return withLedger(ctx, func(store *jobs.Store) error {
				records, err := store.List(cmd.Context(), limit, statuses...)
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd, api.JobListResponse{Jobs: api.FromJobRecords(records)})
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						rec.ID,
						string(rec.Status),
						rec.Mode,
						formatBytes(rec.Bytes),
						rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
						jobLabel(rec),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Status", "Mode", "Bytes", "Updated", "Title / URL"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	listCmd.Flags().StringSliceVarP(&statusFilters, "status", "s", nil, "Filter by status (repeatable)")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(ctx, func(store *jobs.Store) error {
				rec, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if errors.Is(err, jobs.ErrNotFound) {
					return fmt.Errorf("job %s not found", args[0])
				}
				if err != nil {
					return err
				}
				job := api.FromJobRecord(rec)
				if showJSON {
					return writeJSON(cmd, api.JobResponse{Job: job})
				}
				out := cmd.OutOrStdout()
				for _, field := range [][2]string{
					{"ID", job.ID},
					{"Status", job.Status},
					{"URL", job.URL},
					{"Title", job.Title},
					{"Format", job.FormatID},
					{"Audio only", yesNo(job.AudioOnly)},
					{"Mode", job.Mode},
					{"Directive", job.Directive},
					{"Filename", job.Filename},
					{"Bytes", strconv.FormatInt(job.Bytes, 10)},
					{"Error", strings.TrimSpace(job.ErrorKind + " " + job.ErrorMessage)},
					{"Created", job.CreatedAt},
					{"Updated", job.UpdatedAt},
					{"Finished", job.FinishedAt},
				} {
					if field[1] == "" {
						continue
					}
					fmt.Fprintf(out, "%-12s %s\n", field[0]+":", field[1])
				}
				return nil
			})
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	jobsCmd.AddCommand(listCmd, showCmd)
	return jobsCmd
}

func withLedger(ctx *commandContext, fn func(*jobs.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.Jobs.LedgerEnabled {
		return errors.New("job ledger is disabled (set jobs.ledger_enabled = true)")
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		return fmt.Errorf("open job ledger: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func parseStatusFilters(values []string) ([]jobs.Status, error) {
	statuses := make([]jobs.Status, 0, len(values))
	for _, value := range values {
		status, ok := jobs.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func jobLabel(rec *jobs.Record) string {
	if rec.Title != "" {
		return rec.Title
	}
	return rec.URL
}
