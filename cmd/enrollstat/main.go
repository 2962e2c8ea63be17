package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/enrollstat/internal/config"
	"github.com/withObsrvr/enrollstat/internal/dashboard"
	"github.com/withObsrvr/enrollstat/internal/logging"
	"github.com/withObsrvr/enrollstat/internal/refresh"
	"github.com/withObsrvr/enrollstat/internal/server"
	"github.com/withObsrvr/enrollstat/internal/storage"
	"github.com/withObsrvr/enrollstat/internal/watcher"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "enrollstat",
		Short:         "Reshape enrollment report snapshots into course-by-date matrices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $"+config.EnvConfigFile+")")

	load := func() (config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		logging.Setup(cfg.LogConfig())
		slog.Info("enrollstat starting", "version", refresh.Version, "git_sha", refresh.GitSHA)
		return cfg, nil
	}

	root.AddCommand(refreshCmd(load), serveCmd(load), versionCmd())
	return root
}

func refreshCmd(load func() (config.Config, error)) *cobra.Command {
	var (
		force      bool
		summaryOut string
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Load both terms, compute the matrices and publish a bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fail(err)
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fail(err)
			}
			defer a.Close()

			job := a.job
			job.Force = force
			out, err := a.refresher.Run(cmd.Context(), job)
			if err != nil {
				return fail(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s build %s (%d courses, %d dates) in %s\n",
				out.Status, job.Pair.Current, job.Pair.Previous, out.Ref.BuildID,
				len(out.Bundle.Result.Enrollment.Courses), len(out.Bundle.Result.Enrollment.Dates), out.Duration)

			if summaryOut != "" && out.Record != nil {
				if err := out.Record.WriteJSON(summaryOut); err != nil {
					return fail(fmt.Errorf("write summary: %w", err))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "publish even when the inputs are unchanged")
	cmd.Flags().StringVar(&summaryOut, "summary-out", "", "write the catalog record of the published build to this JSON file")
	return cmd
}

func serveCmd(load func() (config.Config, error)) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest bundle over HTTP and optionally watch for new snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fail(err)
			}
			if cmd.Flags().Changed("watch") {
				cfg.Watcher.Enabled = watch
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return fail(err)
			}
			defer a.Close()

			srv := server.New(server.Config{
				Address:      cfg.Server.Address,
				Mode:         cfg.Server.Mode,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}, dashboard.New(cfg.DashboardConfig()), a.refresher, a.job, a.metrics)

			b, ref, err := refresh.LoadLatest(ctx, a.store, a.job.Pair)
			switch {
			case err == nil:
				srv.Set(b)
			case errors.Is(err, storage.ErrNotFound):
				slog.Info("no published build yet", "pair", a.job.Pair.String())
			default:
				slog.Warn("failed to load latest build", "build_id", ref.BuildID, "error", err)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.ListenAndServe(gctx) })
			if cfg.Watcher.Enabled {
				w := watcher.New(a.src, a.job.Pair, cfg.Watcher.Interval, func(ctx context.Context) error {
					_, err := srv.Refresh(ctx, false)
					return err
				})
				g.Go(func() error { return w.Run(gctx) })
			}
			if err := g.Wait(); err != nil {
				return fail(err)
			}
			slog.Info("enrollstat stopped cleanly")
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "poll the source for new snapshots and refresh automatically")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "enrollstat %s (%s)\n", refresh.Version, refresh.GitSHA)
		},
	}
}

// fail logs err before cobra returns it, since errors are silenced.
func fail(err error) error {
	slog.Error("command failed", "error", err)
	return err
}
