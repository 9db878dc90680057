package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/app"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/spf13/cobra"
)

const descriptionPreview = 60

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func batchCommand() *cobra.Command {
	var (
		limit  int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process a batch of unprocessed links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOperator(cmd, func(ctx context.Context, op *app.Operator) error {
				run, preview, err := op.Batch(ctx, limit, dryRun)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if dryRun {
					renderLinks(out, preview)
					return nil
				}

				t := newTable(out, table.Row{"Link", "URL", "Outcome", "Name", "Reason"})
				for _, r := range run.Results {
					t.AppendRow(table.Row{r.LinkID, r.URL, r.Outcome, r.Name, r.Reason})
				}
				t.Render()

				s := run.Summary()
				fmt.Fprintf(out, "batch %s: total=%d added=%d skipped=%d failed=%d not_scholarship=%d\n",
					run.ID, s.Total, s.Added, s.Skipped, s.Failed, s.NotScholarship)
				for _, e := range run.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "links to process (1-50, default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the links the batch would process")
	return cmd
}

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove scholarships whose deadline has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOperator(cmd, func(ctx context.Context, op *app.Operator) error {
				res, err := op.Sweep(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "removed %d expired scholarship(s)\n", res.RemovedCount)
				for _, r := range res.Removed {
					fmt.Fprintf(out, "  %s (deadline %s)\n", r.Name, r.Deadline)
				}
				return nil
			})
		},
	}
}

func submitCommand() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "submit <url>...",
		Short: "Submit scholarship links",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd, func(ctx context.Context, op *app.Operator) error {
				results, err := op.Submit(ctx, args, actor)
				t := newTable(cmd.OutOrStdout(), table.Row{"URL", "Stored", "Link ID", "Reason"})
				for i, r := range results {
					t.AppendRow(table.Row{args[i], r.OK, r.LinkID, r.Reason})
				}
				t.Render()
				return err
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor(), "submitter recorded with each link")
	return cmd
}

func searchCommand() *cobra.Command {
	var (
		name      string
		minAmount string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the scholarship catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOperator(cmd, func(ctx context.Context, op *app.Operator) error {
				recs, err := op.Search(ctx, domain.SearchQuery{Name: name, MinAmount: minAmount, Limit: limit})
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout(), table.Row{"Name", "Amount", "Deadline", "Description", "Link"})
				for _, r := range recs {
					t.AppendRow(table.Row{r.Name, r.Amount, r.Deadline, preview(r.Description), r.SourceLink})
				}
				t.AppendFooter(table.Row{fmt.Sprintf("%d result(s)", len(recs))})
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "case-insensitive name substring")
	cmd.Flags().StringVar(&minAmount, "min-amount", "", "minimum award amount, e.g. 1000 or $5k")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum results (0 = all)")
	return cmd
}

func linksCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "links",
		Short: "List unprocessed links oldest-first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOperator(cmd, func(ctx context.Context, op *app.Operator) error {
				links, err := op.Links(ctx, limit)
				if err != nil {
					return err
				}
				renderLinks(cmd.OutOrStdout(), links)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "maximum links")
	return cmd
}

func discoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Scan the configured listing pages for new links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOperator(cmd, func(ctx context.Context, op *app.Operator) error {
				report, err := op.Discover(ctx)
				t := newTable(cmd.OutOrStdout(), table.Row{"Source", "Found", "Stored", "Duplicates", "Error"})
				for _, s := range report.Sources {
					t.AppendRow(table.Row{s.Source, s.Found, s.Stored, s.Duplicates, s.Error})
				}
				t.AppendFooter(table.Row{"total", report.Found, report.Stored})
				t.Render()
				return err
			})
		},
	}
}

func renderLinks(w io.Writer, links []domain.SubmittedLink) {
	t := newTable(w, table.Row{"ID", "URL", "Source", "Submitted"})
	for _, l := range links {
		t.AppendRow(table.Row{l.ID, l.URL, l.SourceContext, l.CreatedAt.Format("2006-01-02 15:04")})
	}
	t.Render()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= descriptionPreview {
		return s
	}
	return string(r[:descriptionPreview-3]) + "..."
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return "cli"
}
