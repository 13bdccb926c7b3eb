package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dynwatch/dynwatch/internal/api"
	"github.com/dynwatch/dynwatch/internal/check"
	"github.com/dynwatch/dynwatch/internal/checkdef"
	"github.com/dynwatch/dynwatch/internal/config"
	"github.com/dynwatch/dynwatch/internal/dynect"
	"github.com/dynwatch/dynwatch/internal/metrics"
	"github.com/dynwatch/dynwatch/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run checks on a schedule and expose their state over HTTP",
	Long: `Serve loads check definitions from a directory, runs each check on its
configured interval, and exposes the latest verdicts over an HTTP API
together with Prometheus metrics.

When --watch is enabled the definition directory is monitored and edits
are picked up without a restart; a directory that fails validation is
rejected and the previous definitions stay active.

Examples:
  dynwatch serve --defs-dir ./checks
  dynwatch serve --defs-dir /etc/dynwatch/checks --port 9090 --watch=false`,
	Run: runServe,
}

var (
	servePort    int
	serveHost    string
	serveDefsDir string
	serveWatch   bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	defaults := config.DefaultConfig()
	serveCmd.Flags().IntVar(&servePort, "port", defaults.Port, "HTTP server port")
	serveCmd.Flags().StringVar(&serveHost, "host", defaults.Host, "HTTP server host")
	serveCmd.Flags().StringVar(&serveDefsDir, "defs-dir", "", "directory containing check YAML files")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", defaults.Watch, "reload definitions when files change")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := config.DefaultConfig()
	cfg.Port = servePort
	cfg.Host = serveHost
	cfg.DefsDirectory = serveDefsDir
	cfg.Watch = serveWatch

	logger := newLogger()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	validator, err := checkdef.NewValidator()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize validator")
	}

	defs, loadErrs := checkdef.LoadFromDirectory(cfg.DefsDirectory)
	verrs := append(loadErrs, validator.ValidateAll(defs)...)
	if len(verrs) > 0 {
		for _, verr := range verrs {
			logger.Error().Str("file", verr.File).Str("path", verr.Path).Msg(verr.Message)
		}
		logger.Fatal().Int("errors", len(verrs)).Msg("check definition validation failed")
	}
	if len(defs) == 0 {
		logger.Fatal().Str("dir", cfg.DefsDirectory).Msg("no check definitions found")
	}

	entries, err := buildEntries(defs, collector, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build check runners")
	}

	sched := scheduler.NewScheduler(logger)
	sched.SetEntries(entries)
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	apiServer := api.NewServer(sched, registry, addr, logger)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("API server listening")
		serverErrors <- apiServer.Start()
	}()

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if cfg.Watch {
		go watchDefinitions(watchCtx, cfg.DefsDirectory, validator, collector, sched, logger)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal().Err(err).Msg("server error")

	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancelWatch()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
		sched.Stop()

		logger.Info().Msg("shutdown complete")
	}
}

// buildEntries turns validated definitions into scheduled runners, one
// session client per check.
func buildEntries(defs []checkdef.CheckWithFile, collector *metrics.Collector, logger zerolog.Logger) ([]scheduler.Entry, error) {
	entries := make([]scheduler.Entry, 0, len(defs))
	for _, def := range defs {
		cfg, err := check.ClientConfig(def.Check.Spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", def.Check.Metadata.ID, err)
		}
		client := dynect.NewClient(cfg, nil, logger)
		runner := check.NewRunner(client, nil, logger, collector)
		entries = append(entries, scheduler.Entry{Def: def.Check, Runner: runner})
	}
	return entries, nil
}

func watchDefinitions(ctx context.Context, dir string, validator *checkdef.Validator, collector *metrics.Collector, sched *scheduler.Scheduler, logger zerolog.Logger) {
	onChange := func(defs []checkdef.CheckWithFile) {
		entries, err := buildEntries(defs, collector, logger)
		if err != nil {
			collector.IncDefsReloadError()
			logger.Error().Err(err).Msg("reload rejected, keeping previous definitions")
			return
		}
		sched.Reload(entries)
		collector.IncDefsReload()
	}
	onError := func([]checkdef.ValidationError) {
		collector.IncDefsReloadError()
	}

	err := checkdef.Watch(ctx, dir, validator, logger, onChange, onError)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("definition watcher stopped")
	}
}
