package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/stashlink/internal/activity"
	"github.com/sydlexius/stashlink/internal/catalog"
	"github.com/sydlexius/stashlink/internal/event"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var kindValue, typeValue string
	var params activity.ListParams

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent links, skips and batch runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if kindValue != "" {
				kind, err := catalog.ParseKind(kindValue)
				if err != nil {
					return err
				}
				params.Kind = string(kind)
			}
			if typeValue != "" {
				params.Type = event.Type(typeValue)
				if !slices.Contains(event.AllTypes(), params.Type) {
					return fmt.Errorf("unknown event type %q", typeValue)
				}
			}
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}

			entries, err := a.journal.Recent(cmd.Context(), params)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No activity recorded.")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.CreatedAt.Local().Format(time.DateTime),
					string(e.Type), e.Kind, e.EntityID, e.SourceID, e.RemoteID,
					formatDetails(e.Data),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Time", "Event", "Kind", "Entity", "Source", "Remote", "Details"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().IntVarP(&params.Limit, "limit", "n", 20, "Maximum number of entries")
	cmd.Flags().StringVarP(&kindValue, "kind", "k", "", "Only this entity kind")
	cmd.Flags().StringVar(&typeValue, "type", "", "Only this event type (e.g. match.applied)")
	cmd.Flags().StringVarP(&params.EntityID, "entity", "e", "", "Only this local entity ID")
	return cmd
}

// formatDetails renders the payload fields that have no column of their own.
func formatDetails(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		switch k {
		case "kind", "entity_id", "source_id", "remote_id":
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}
