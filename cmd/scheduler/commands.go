package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/shift-scheduler/api"
	"github.com/warp/shift-scheduler/refresh"
	"github.com/warp/shift-scheduler/scheduler"
)

// ===== serve =====

func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				cfg.Listen = listen
			}
			return serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}

func serve(parent context.Context) error {
	a, err := newApp(cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.svc.LoadReference(ctx); err != nil {
		logger.Warn("reference data unavailable, please refresh", zap.Error(err))
	}

	var periodic *refresh.Periodic
	if cfg.Refresh.Cron != "" {
		periodic, err = refresh.NewPeriodic(a.coord, cfg.Refresh.Cron, a.svc.CurrentView, logger.Named("periodic"))
		if err != nil {
			return err
		}
		periodic.Start()
	}

	handler := api.NewHandler(a.svc, a.coord, logger.Named("api"))
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      api.NewRouter(handler, cfg.Origins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("listen", cfg.Listen))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if periodic != nil {
			periodic.Stop()
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	if periodic != nil {
		periodic.Stop()
	}
	a.svc.StopBatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// ===== one-shot operations =====

func newRefreshCmd() *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Load the week containing --day and print its counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			window, err := a.loadWeek(cmd.Context(), day)
			if err != nil {
				return err
			}
			unpublished, err := a.svc.CountUnpublished()
			if err != nil {
				return err
			}
			toCopy, err := a.svc.CountShiftsToCopy()
			if err != nil {
				return err
			}
			weekly, err := a.svc.WeeklyShiftCounts()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"window":       window.String(),
				"shifts":       len(a.svc.State().Shifts()),
				"availability": len(a.svc.State().Availability()),
				"unpublished":  unpublished,
				"to_copy":      toCopy,
				"weekly":       weekly,
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "any day of the week to load, YYYY-MM-DD (default today)")
	return cmd
}

func newPublishCmd() *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the unpublished shifts of the week containing --day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, day, (*scheduler.Service).PublishView)
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "any day of the week, YYYY-MM-DD (default today)")
	return cmd
}

func newCopyWeekCmd() *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "copy-week",
		Short: "Copy the shifts of the week containing --day to the next week",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, day, (*scheduler.Service).CopyWeek)
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "any day of the source week, YYYY-MM-DD (default today)")
	return cmd
}

func runBatch(cmd *cobra.Command, day string, op func(*scheduler.Service, context.Context) (scheduler.Progress, error)) error {
	a, err := newApp(cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := a.loadWeek(ctx, day); err != nil {
		return err
	}
	progress, err := op(a.svc, ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), progress)
}

// ===== local store =====

func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent publish and copy runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.svc.BatchHistory(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local reference data cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop cached employees and tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			keys, err := a.store.Keys(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.cache.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", len(keys))
			return nil
		},
	})
	return cmd
}

// ===== output =====

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRuns(w io.Writer, runs []scheduler.BatchRun) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tVIEW\tTOTAL\tOK\tFAILED\tSTOPPED\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s..%s\t%d\t%d\t%d\t%t\t%s\n",
			r.ID, r.Kind, r.ViewStart, r.ViewEnd, r.Total, r.Succeeded, r.Failed, r.Stopped,
			r.StartedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
