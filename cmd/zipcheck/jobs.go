package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/api"
	"github.com/pola2025/zipcheck-sub000/id"
)

// withApp builds the application for a one-shot command.
func withApp(ctx context.Context, c *cli, fn func(a *app) error) error {
	logger := newLogger(c.cfg.Log, os.Stderr)
	a, err := build(ctx, c.cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.close(closeCtx)
	}()
	return fn(a)
}

func newSubmitCmd(c *cli) *cobra.Command {
	var (
		model       string
		tokenBudget int
		usdBudget   float64
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "submit [quote.json]",
		Short: "Analyze a quote (reads stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var req analysis.Request
			if err := json.NewDecoder(r).Decode(&req); err != nil {
				return fmt.Errorf("decode quote: %w", err)
			}

			opts := &api.SubmitOptions{Model: model, TokenBudget: tokenBudget, USDBudget: usdBudget}

			return withJobs(cmd.Context(), c, func(j jobs) error {
				sub, err := j.Submit(cmd.Context(), &req, opts)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), sub)
				}
				printSubmission(cmd.OutOrStdout(), sub)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().IntVar(&tokenBudget, "token-budget", 0, "token budget override")
	cmd.Flags().Float64Var(&usdBudget, "usd-budget", 0, "USD budget override")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newGetCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show a job with its usage and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}
			return withJobs(cmd.Context(), c, func(j jobs) error {
				report, err := j.GetJob(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				printReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newCancelCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}
			return withJobs(cmd.Context(), c, func(j jobs) error {
				if err := j.Cancel(cmd.Context(), jobID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s cancel requested for %s\n", warnColor.Sprint("●"), jobID)
				return nil
			})
		},
	}
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), c, func(a *app) error {
				if err := a.store.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s migrations applied (%s)\n", goodColor.Sprint("✓"), c.cfg.Store.Driver)
				return nil
			})
		},
	}
}

func newSweepCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Finalize stale jobs as timed out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), c, func(a *app) error {
				n, err := a.orch.ReapStale(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s reaped %d stale job(s)\n", goodColor.Sprint("✓"), n)
				return nil
			})
		},
	}
}
