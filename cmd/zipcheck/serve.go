package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pola2025/zipcheck-sub000/api"
	"github.com/pola2025/zipcheck-sub000/cron"
	"github.com/pola2025/zipcheck-sub000/session"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the maintenance scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
}

func serve(ctx context.Context, c *cli) error {
	logger := newLogger(c.cfg.Log, os.Stderr)
	a, err := build(ctx, c.cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
		defer cancel()
		a.orch.Extensions().EmitShutdown(shutdownCtx)
		a.close(shutdownCtx)
	}()

	if err := a.store.Migrate(ctx); err != nil {
		return err
	}

	drafts := session.New[*api.Draft](c.cfg.Sessions.TTL)
	handler := api.New(a.orch, api.WithLogger(logger), api.WithDrafts(drafts)).Handler()

	sched := cron.NewScheduler(cron.WithLogger(logger), cron.WithEmitter(a.orch.Extensions()))
	now := time.Now().UTC()
	if err := sched.Add(cron.Task{
		Name:     "session-sweep",
		Schedule: c.cfg.Cron.SessionSweep,
		Run: func(context.Context) error {
			if n := drafts.Sweep(time.Now()); n > 0 {
				logger.Info("swept expired drafts", "count", n)
			}
			return nil
		},
	}, now); err != nil {
		return err
	}
	if err := sched.Add(cron.Task{
		Name:     "stale-job-reaper",
		Schedule: c.cfg.Cron.StaleJobReaper,
		Run: func(ctx context.Context) error {
			_, err := a.orch.ReapStale(ctx)
			return err
		},
	}, now); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return sched.Stop(context.Background())
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
