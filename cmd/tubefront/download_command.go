package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tubefront/internal/config"
	"tubefront/internal/daemon"
	"tubefront/internal/download"
	"tubefront/internal/fileutil"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var formatID string
	var audio bool
	var outDir string
	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Download a URL locally through the negotiation pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveOutDir(outDir)
			if err != nil {
				return err
			}
			req := download.Request{
				URL:       strings.TrimSpace(args[0]),
				FormatID:  strings.TrimSpace(formatID),
				AudioOnly: audio,
			}
			return ctx.withComponents(cmd.Context(), func(comp daemon.Components) error {
				return comp.Downloads.Serve(cmd.Context(), req, func(job *download.Job) error {
					target := uniquePath(filepath.Join(dir, job.Filename()))
					if err := fileutil.CopyFileVerified(job.Path(), target); err != nil {
						return fmt.Errorf("copy %s: %w", job.Filename(), err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s, job %s)\n", target, formatBytes(job.Size), job.ID)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&formatID, "format", "f", "", "Rendition id from `tubefront formats`")
	cmd.Flags().BoolVar(&audio, "audio", false, "Extract audio to MP3")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Destination directory (defaults to the working directory)")
	return cmd
}

func resolveOutDir(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return os.Getwd()
	}
	dir, err := config.ExpandPath(raw)
	if err != nil {
		return "", fmt.Errorf("resolve output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %q: %w", dir, err)
	}
	return dir, nil
}

// uniquePath appends " (n)" before the extension until the name is free.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
