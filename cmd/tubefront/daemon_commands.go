package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tubefront/internal/api"
	"tubefront/internal/daemonctl"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tubefront daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(cmd.Context(), cfg, exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d, listening on %s)\n", result.PID, result.Bind)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the tubefront daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.Stop(ctx.configValue(), 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintf(stdout, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, credential, and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, status)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range systemLines(status, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Credentials", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range credentialLines(status, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range dependencyLines(status.Dependencies, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if len(status.Active) > 0 {
				rows := make([][]string, 0, len(status.Active))
				for _, job := range status.Active {
					rows = append(rows, []string{job.ID, job.Stage, job.StartedAt, job.URL})
				}
				fmt.Fprintln(stdout, renderTable([]string{"Active Job", "Stage", "Started", "URL"}, rows, nil))
			}
			rows := buildJobSummaryRows(status.Jobs)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Job ledger disabled")
				return nil
			}
			fmt.Fprintln(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func systemLines(status *api.DaemonStatus, colorize bool) []string {
	lines := make([]string, 0, 4)
	if status.Running {
		lines = append(lines, renderStatusLine("tubefront", statusOK, fmt.Sprintf("Running (pid %d on %s)", status.PID, status.Bind), colorize))
	} else {
		lines = append(lines, renderStatusLine("tubefront", statusWarn, "Not running (run `tubefront start`)", colorize))
	}
	lines = append(lines, renderStatusLine("Progress backend", statusInfo, status.Progress, colorize))
	lines = append(lines, renderStatusLine("Scratch", statusInfo, fmt.Sprintf("%s (%d files)", status.ScratchDir, status.ScratchFiles), colorize))
	return lines
}

func credentialLines(status *api.DaemonStatus, colorize bool) []string {
	creds := status.Credentials
	if creds.SourcePath == "" {
		if status.Running {
			return []string{renderStatusLine("Cookie bundle", statusInfo, "Not configured", colorize)}
		}
		return []string{renderStatusLine("Cookie bundle", statusInfo, "Unknown (daemon not running)", colorize)}
	}
	if !creds.SourceExists {
		return []string{renderStatusLine("Cookie bundle", statusWarn, creds.SourcePath+" missing; requests run unauthenticated", colorize)}
	}
	lines := []string{renderStatusLine("Cookie bundle", statusOK, fmt.Sprintf("%s (%d bytes)", creds.SourcePath, creds.SourceSize), colorize)}
	lines = append(lines, renderStatusLine("Shared copy", statusInfo, yesNo(creds.SharedCopy), colorize))
	return lines
}

func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	if len(deps) == 0 {
		return []string{renderStatusLine("Summary", statusInfo, "No dependency checks configured", colorize)}
	}
	missingRequired, missingOptional := 0, 0
	body := make([]string, 0, len(deps))
	missing := make([]string, 0)
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Version != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Version)
			} else if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			body = append(body, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
			missingOptional++
		} else {
			missingRequired++
		}
		body = append(body, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}

	available := len(deps) - missingRequired - missingOptional
	summaryKind := statusOK
	detail := fmt.Sprintf("%d/%d available", available, len(deps))
	if missingRequired+missingOptional > 0 {
		detail = fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
		summaryKind = statusWarn
		if missingRequired > 0 {
			summaryKind = statusError
		}
	}

	lines := append([]string{renderStatusLine("Summary", summaryKind, detail, colorize)}, body...)
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func buildJobSummaryRows(summary *api.JobSummary) [][]string {
	if summary == nil {
		return nil
	}
	counts := map[string]int{
		"Pending":   summary.Pending,
		"In flight": summary.InFlight,
		"Completed": summary.Completed,
		"Failed":    summary.Failed,
	}
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	rows := make([][]string, 0, len(labels)+1)
	for _, label := range labels {
		rows = append(rows, []string{label, strconv.Itoa(counts[label])})
	}
	rows = append(rows, []string{"Total", strconv.Itoa(summary.Total)})
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		ConfigPath: ctx.configFlagValue(),
		LogLevel:   ctx.logLevelOverride(),
	}
}
