package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	var testFlag bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List configured remote sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			sources := a.sources.All()
			if len(sources) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sources configured.")
				return nil
			}

			limits := a.cfg.RateLimits()
			headers := []string{"ID", "Name", "Endpoint", "Req/s"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}
			if testFlag {
				headers = append(headers, "Status")
				aligns = append(aligns, alignLeft)
			}

			rows := make([][]string, 0, len(sources))
			failed := 0
			for _, s := range sources {
				row := []string{s.ID, s.Name(), s.Endpoint.URL, strconv.FormatFloat(limits[s.ID], 'g', -1, 64)}
				if testFlag {
					status := "ok"
					if err := a.client.TestConnection(cmd.Context(), s); err != nil {
						status = err.Error()
						failed++
					}
					row = append(row, status)
				}
				rows = append(rows, row)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))

			if failed > 0 {
				return fmt.Errorf("%d of %d sources failed the connection test", failed, len(sources))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&testFlag, "test", false, "Test each source's connection")
	return cmd
}
