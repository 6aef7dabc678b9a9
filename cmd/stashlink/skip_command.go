package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sydlexius/stashlink/internal/catalog"
	"github.com/sydlexius/stashlink/internal/reconcile"
)

func newSkipCommand(ctx *commandContext) *cobra.Command {
	var kindValue, entityID string

	cmd := &cobra.Command{
		Use:   "skip",
		Short: "Keep an entity out of the auto and review buckets",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := catalog.ParseKind(kindValue)
			if err != nil {
				return err
			}
			if entityID == "" {
				return fmt.Errorf("--entity is required")
			}
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			entity, err := a.catalog.GetEntity(cmd.Context(), kind, entityID)
			if err != nil {
				return err
			}

			match := &reconcile.EntityMatch{Local: *entity, Status: reconcile.StatusPending}
			if err := a.session(kind, a.sessionConfig()).Skip(cmd.Context(), match); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Skipped %s %q\n", kind, entity.Name)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&kindValue, "kind", "k", "", "Entity kind: studio, performer or tag")
	_ = cmd.MarkPersistentFlagRequired("kind")
	cmd.Flags().StringVarP(&entityID, "entity", "e", "", "Local entity ID")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget every skipped entity of a kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := catalog.ParseKind(kindValue)
			if err != nil {
				return err
			}
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			n, err := a.session(kind, a.sessionConfig()).ClearSkipped(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d skipped %s entities\n", n, kind)
			return nil
		},
	})
	return cmd
}
