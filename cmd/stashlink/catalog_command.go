package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sydlexius/stashlink/internal/catalog"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and edit the local catalog",
	}
	cmd.AddCommand(newCatalogAddCommand(ctx))
	cmd.AddCommand(newCatalogListCommand(ctx))
	return cmd
}

func newCatalogAddCommand(ctx *commandContext) *cobra.Command {
	var kindValue, name, parent, image string
	var aliases []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a studio, performer or tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := catalog.ParseKind(kindValue)
			if err != nil {
				return err
			}
			if parent != "" && kind != catalog.KindStudio {
				return fmt.Errorf("--parent is only valid for studios")
			}
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if parent != "" {
				if _, err := a.catalog.GetEntity(cmd.Context(), catalog.KindStudio, parent); err != nil {
					return fmt.Errorf("parent: %w", err)
				}
			}

			e, err := a.catalog.CreateEntity(cmd.Context(), kind, catalog.Fields{
				Name:     name,
				Aliases:  aliases,
				ParentID: parent,
				ImageURL: image,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s %q (%s)\n", kind, e.Name, e.ID)
			return nil
		},
	}

	kindFlag(cmd, &kindValue)
	cmd.Flags().StringVarP(&name, "name", "n", "", "Entity name")
	cmd.Flags().StringArrayVar(&aliases, "alias", nil, "Alias (repeatable; ignored for tags)")
	cmd.Flags().StringVar(&parent, "parent", "", "Parent studio ID")
	cmd.Flags().StringVar(&image, "image", "", "Image URL")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newCatalogListCommand(ctx *commandContext) *cobra.Command {
	var kindValue string
	var params catalog.ListParams

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities without external links",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := catalog.ParseKind(kindValue)
			if err != nil {
				return err
			}
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}

			entities, total, err := a.catalog.ListUnlinkedEntities(cmd.Context(), kind, params)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(entities))
			for _, e := range entities {
				rows = append(rows, []string{e.ID, e.Name, strings.Join(e.Aliases, ", "), formatLinks(e.Links), e.ParentID})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Aliases", "Links", "Parent"}, rows, nil))
			params.Validate()
			fmt.Fprintf(out, "Page %d: %d of %d %s entities\n", params.Page, len(entities), total, kind)
			return nil
		},
	}

	kindFlag(cmd, &kindValue)
	cmd.Flags().IntVar(&params.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&params.PageSize, "page-size", 50, "Entities per page")
	cmd.Flags().BoolVar(&params.All, "all", false, "Include entities that already have links")
	return cmd
}

func formatLinks(links []catalog.ExternalLink) string {
	parts := make([]string, 0, len(links))
	for _, l := range links {
		parts = append(parts, l.SourceID+":"+l.RemoteID)
	}
	return strings.Join(parts, ", ")
}
