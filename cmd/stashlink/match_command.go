package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sydlexius/stashlink/internal/catalog"
	"github.com/sydlexius/stashlink/internal/reconcile"
)

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var kindValue string
	var params catalog.ListParams
	var threshold int
	var autoApply, noImage, noAliases, noParent, details bool

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Search remote sources for a page of unlinked entities",
		Long: `Match searches every configured source for each unlinked entity on the
requested page, ranks the candidates and sorts the page into auto, review,
no-match and skipped buckets. With --auto-apply the auto bucket is linked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := catalog.ParseKind(kindValue)
			if err != nil {
				return err
			}
			a, err := ctx.ensureApp()
			if err != nil {
				return err
			}

			cfg := a.sessionConfig()
			if cmd.Flags().Changed("threshold") {
				if threshold < 0 || threshold > 100 {
					return fmt.Errorf("--threshold must be between 0 and 100")
				}
				cfg.Threshold = threshold
			}
			if !cmd.Flags().Changed("page-size") {
				params.PageSize = a.cfg.Match.PageSize
			}
			cfg.Apply.IncludeImage = cfg.Apply.IncludeImage && !noImage
			cfg.Apply.IncludeAliases = cfg.Apply.IncludeAliases && !noAliases
			cfg.Apply.IncludeParent = cfg.Apply.IncludeParent && !noParent
			cfg.Apply.IncludeDetails = cfg.Apply.IncludeDetails || details

			sess := a.session(kind, cfg)
			if _, err := sess.Run(cmd.Context(), params); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printMatches(out, sess)

			if autoApply {
				auto := len(sess.Categorize().Auto)
				applied := sess.ApplyAllAuto(cmd.Context())
				fmt.Fprintf(out, "Applied %d of %d auto matches\n", applied, auto)
			}
			printStats(out, sess.Stats(), sess.Total())
			return nil
		},
	}

	kindFlag(cmd, &kindValue)
	cmd.Flags().IntVar(&params.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&params.PageSize, "page-size", 50, "Entities per page (default from config)")
	cmd.Flags().BoolVar(&params.All, "all", false, "Include entities that already have links")
	cmd.Flags().IntVar(&threshold, "threshold", 95, "Minimum top score for the auto bucket (default from config)")
	cmd.Flags().BoolVar(&autoApply, "auto-apply", false, "Link every entity in the auto bucket")
	cmd.Flags().BoolVar(&noImage, "no-image", false, "Do not adopt remote images")
	cmd.Flags().BoolVar(&noAliases, "no-aliases", false, "Do not merge remote aliases")
	cmd.Flags().BoolVar(&noParent, "no-parent", false, "Do not resolve parent studios")
	cmd.Flags().BoolVar(&details, "details", false, "Fill empty URL, description and performer details")
	return cmd
}

func printMatches(out io.Writer, sess *reconcile.Session) {
	buckets := bucketNames(sess.Categorize())
	rows := make([][]string, 0, len(sess.Matches()))
	for _, m := range sess.Matches() {
		row := []string{m.Local.ID, m.Local.Name, buckets[m], "", "", "", ""}
		if top, ok := m.Top(); ok {
			row[3] = top.Remote.Name
			row[4] = top.Source.Name()
			row[5] = strconv.Itoa(top.Score)
			row[6] = string(top.Confidence)
		} else if m.Status == reconcile.StatusError {
			row[3] = m.Err
		}
		rows = append(rows, row)
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Name", "Bucket", "Top candidate", "Source", "Score", "Confidence"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func bucketNames(c reconcile.Categorized) map[*reconcile.EntityMatch]string {
	names := make(map[*reconcile.EntityMatch]string, c.Len())
	for _, m := range c.Auto {
		names[m] = "auto"
	}
	for _, m := range c.Review {
		names[m] = "review"
	}
	for _, m := range c.NoMatch {
		names[m] = "no match"
	}
	for _, m := range c.Skipped {
		names[m] = "skipped"
	}
	return names
}

func printStats(out io.Writer, s reconcile.MatchStats, total int) {
	fmt.Fprintf(out, "Total %d (of %d): matched %d, unmatched %d, skipped %d, auto-eligible %d\n",
		s.Total, total, s.Matched, s.Unmatched, s.Skipped, s.AutoMatchEligible)
}
