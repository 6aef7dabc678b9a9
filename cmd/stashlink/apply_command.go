package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sydlexius/stashlink/internal/catalog"
	"github.com/sydlexius/stashlink/internal/reconcile"
	"github.com/sydlexius/stashlink/internal/registry"
)

func newApplyCommand(ctx *commandContext) *cobra.Command {
	var kindValue, entityID, sourceID, remoteID string
	var noImage, noAliases, noParent, details bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Link one entity to a chosen remote record",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := catalog.ParseKind(kindValue)
			if err != nil {
				return err
			}
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}

			source, ok := a.sources.Get(sourceID)
			if !ok {
				return fmt.Errorf("unknown source %q", sourceID)
			}
			entity, err := a.catalog.GetEntity(cmd.Context(), kind, entityID)
			if err != nil {
				return err
			}

			match := a.matcher(kind, []registry.Source{source}).FindMatch(cmd.Context(), *entity)
			if match.Status == reconcile.StatusError {
				return fmt.Errorf("matching %q: %s", entity.Name, match.Err)
			}
			var chosen *reconcile.Candidate
			for i := range match.Candidates {
				if match.Candidates[i].Remote.ID == remoteID {
					chosen = &match.Candidates[i]
					break
				}
			}
			if chosen == nil {
				return fmt.Errorf("remote id %s is not among %s results for %q", remoteID, source.Name(), entity.Name)
			}

			opts := a.cfg.Match.Apply
			opts.IncludeImage = opts.IncludeImage && !noImage
			opts.IncludeAliases = opts.IncludeAliases && !noAliases
			opts.IncludeParent = opts.IncludeParent && !noParent
			opts.IncludeDetails = opts.IncludeDetails || details

			if err := a.engine.Apply(cmd.Context(), match, *chosen, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Linked %s %q to %s %s (%s, score %d)\n",
				kind, entity.Name, source.Name(), chosen.Remote.ID, chosen.Remote.Name, chosen.Score)
			return nil
		},
	}

	kindFlag(cmd, &kindValue)
	cmd.Flags().StringVarP(&entityID, "entity", "e", "", "Local entity ID")
	cmd.Flags().StringVarP(&sourceID, "source", "s", "", "Source ID")
	cmd.Flags().StringVarP(&remoteID, "remote", "r", "", "Remote entity ID")
	cmd.Flags().BoolVar(&noImage, "no-image", false, "Do not adopt the remote image")
	cmd.Flags().BoolVar(&noAliases, "no-aliases", false, "Do not merge remote aliases")
	cmd.Flags().BoolVar(&noParent, "no-parent", false, "Do not resolve the parent studio")
	cmd.Flags().BoolVar(&details, "details", false, "Fill empty URL, description and performer details")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("remote")
	return cmd
}
