package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tubefront/internal/api"
	"tubefront/internal/daemon"
)

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "formats <url>",
		Short: "List the renditions available for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(args[0])
			return ctx.withComponents(cmd.Context(), func(comp daemon.Components) error {
				lease := comp.Credentials.Provision("formats-cli-" + uuid.NewString())
				defer lease.Release()

				cat, err := comp.Catalog.Fetch(cmd.Context(), url, lease.Path)
				if err != nil {
					return err
				}
				resp := api.FromCatalog(cat)
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Title != "" {
					fmt.Fprintf(out, "%s\n", resp.Title)
				}
				if len(resp.Formats) == 0 {
					fmt.Fprintln(out, "No formats available")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Ext", "Height", "ABR", "Video", "Audio", "Size", "Note"},
					formatRows(resp.Formats),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func formatRows(formats []api.Format) [][]string {
	rows := make([][]string, 0, len(formats))
	for _, f := range formats {
		height := "-"
		if f.Height != nil {
			height = strconv.Itoa(*f.Height) + "p"
		}
		abr := "-"
		if f.ABR != nil {
			abr = strconv.FormatFloat(*f.ABR, 'f', 0, 64) + "k"
		}
		size := "-"
		if f.Filesize != nil {
			size = formatBytes(*f.Filesize)
		}
		rows = append(rows, []string{f.FormatID, f.Ext, height, abr, f.VCodec, f.ACodec, size, f.Note})
	}
	return rows
}
