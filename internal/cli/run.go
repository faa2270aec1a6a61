package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"anchorsync/internal/config"
	"anchorsync/internal/core"
	"anchorsync/internal/scenario"
	"anchorsync/internal/scene"
	"anchorsync/internal/services"
	"anchorsync/src/logger"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		noSeed      bool
	)
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Replay a scripted spatial session against the task store",
		Long: `Replays taps, pinches, rotations and selections from a scenario file.

The scenario's tasks are written to the store first unless --no-seed is given.
Placements are written back to the store like on a device.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Addr
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), args[0], metricsAddr, !noSeed)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "Do not write the scenario's tasks to the store")
	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, path, metricsAddr string, seed bool) error {
	f, err := scenario.Load(path)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		stop := serveMetrics(metricsAddr)
		defer stop()
	}

	repo, err := openRepository(ctx, a.cfg.Repository)
	if err != nil {
		return err
	}
	defer closeRepository(repo)

	if seed {
		if err := scenario.Seed(ctx, repo, f); err != nil {
			return err
		}
	}

	report, err := scenario.Play(ctx, f, repo, engineOptions(a.cfg))
	if errors.Is(err, core.ErrSpatialUnsupported) {
		// the list stays usable without tracking
		fmt.Fprintln(out, errorColor.Sprint(core.UnsupportedNotice))
		return printTaskList(ctx, out, services.NewTaskService(repo))
	}
	if err != nil {
		return err
	}

	printReport(out, report)
	return nil
}

func engineOptions(cfg *config.Config) core.Options {
	s := cfg.Spatial
	return core.Options{
		MinScale:       s.MinScale,
		MaxScale:       s.MaxScale,
		ZoomStep:       s.ZoomStep,
		BoxSize:        s.BoxSize,
		LabelMargin:    s.LabelMargin,
		PlacementDelay: s.PlacementDelay,
		WriteTimeout:   cfg.Repository.WriteTimeout,
		Renderer:       scene.LogRenderer{},
	}
}

func printReport(out io.Writer, r scenario.Report) {
	if r.Name != "" {
		fmt.Fprintln(out, headColor.Sprint(r.Name))
	}
	for _, s := range r.Steps {
		fmt.Fprintf(out, "%3d %-7s %s\n", s.Index, s.Action, s.Detail)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, headColor.Sprintf("%d anchored tasks", len(r.Entities)))
	for _, v := range r.Entities {
		fmt.Fprintln(out, formatEntity(v))
	}
	fmt.Fprintf(out, "display scale %.2f\n", r.Scale)
	if line := formatProgress(r.Progress); line != "" {
		fmt.Fprintln(out, line)
	}
}

func printTaskList(ctx context.Context, out io.Writer, svc *services.TaskService) error {
	tasks, err := svc.List(ctx)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		fmt.Fprintln(out, formatTask(t))
	}
	return nil
}

// serveMetrics exposes /metrics until the returned stop function runs
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
