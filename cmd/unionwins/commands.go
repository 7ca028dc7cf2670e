package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"UnionWins/internal/app"
	"UnionWins/internal/config"
	"UnionWins/internal/domain"
	"UnionWins/internal/logging"
	"UnionWins/internal/usecase"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "unionwins",
		Short:         "Collects union wins from research tasks and scraped union news pages",
		Long:          "unionwins runs the research orchestrator and the scrape scheduler, and offers one-off commands for operators.\nConfiguration is read from the YAML file named by UNIONWINS_CONFIG plus environment overrides.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newScrapeCmd(),
		newSubmitCmd(),
		newEnqueueCmd(),
		newQueueCmd(),
		newMigrateCmd(),
	)
	return root
}

// withApp builds the application for one command and always closes it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) error {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator and scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				return a.Run(ctx)
			})
		},
	}
}

func newScrapeCmd() *cobra.Command {
	var sourceID int64
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape sweep now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if err := a.Migrate(ctx); err != nil {
					return err
				}
				report, err := a.Scrape(ctx, sourceID)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&sourceID, "source", 0, "scrape only this source id")
	return cmd
}

func newSubmitCmd() *cobra.Command {
	var submittedBy string
	cmd := &cobra.Command{
		Use:   "submit URL",
		Short: "Extract one article and add it to the moderation queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				win, err := a.Submit(ctx, args[0], submittedBy)
				if err != nil {
					return errors.New(usecase.DescribeSubmissionError(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued win %d: %s\n", win.ID, win.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&submittedBy, "by", "cli", "identity recorded as the submitter")
	return cmd
}

func newEnqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue",
		Short: "Create a pending search request for the window ending now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				req, err := a.Enqueue(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "search request %d pending for %s\n", req.ID, req.DateRange)
				return nil
			})
		},
	}
}

func newQueueCmd() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List wins by moderation status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := domain.WinStatus(strings.ToLower(status))
			if st != "" && !st.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				wins, err := a.Queue(ctx, st, limit)
				if err != nil {
					return err
				}
				printWins(cmd.OutOrStdout(), wins)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", string(domain.WinPending), "pending, approved, rejected or empty for all")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to print")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and seed configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if err := a.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			})
		},
	}
}

func printReport(w io.Writer, report domain.SweepReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATUS\tRAW\tCHECKED\tCLASSIFIED\tSUBMITTED\tURL")
	for _, r := range report.Results {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.SourceID, r.Status, r.RawCandidates, r.Checked, r.Classified, r.Submitted, r.URL)
	}
	_ = tw.Flush()

	for _, r := range report.Results {
		if r.Error != "" {
			fmt.Fprintf(w, "source %d: %s\n", r.SourceID, r.Error)
		}
	}
	totals := report.Totals()
	fmt.Fprintf(w, "run %s: %d sources, %d failed, %d submitted\n",
		report.RunID, len(report.Results), report.Failed(), totals.Submitted)
}

func printWins(w io.Writer, wins []domain.Win) {
	if len(wins) == 0 {
		fmt.Fprintln(w, "no wins")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDATE\tORGANIZATION\tTITLE\tURL")
	for _, win := range wins {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			win.ID, win.Status, win.Date, win.Organization, win.Title, win.URL)
	}
	_ = tw.Flush()
}
