package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bilal/regionpulse/internal/config"
	"github.com/bilal/regionpulse/internal/logger"
	"github.com/bilal/regionpulse/internal/metrics"
	"github.com/bilal/regionpulse/internal/publisher"
	"github.com/bilal/regionpulse/internal/server"
	"github.com/bilal/regionpulse/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the dataset and serve region statistics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (defaults and REGIONPULSE_* env apply when empty)")
	return cmd
}

func runServe(configPath string) error {
	// Load config
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// Init logger
	logger.Init(cfg.Logging)
	log.Info().Str("version", version).Str("dataset", cfg.Dataset.Path).Msg("starting regionpulse")

	// The dataset is read once; a missing or corrupt file stops start-up.
	ds, err := telemetry.Load(cfg.Dataset.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load telemetry dataset")
	}
	log.Info().Int("records", ds.Len()).Int("regions", len(ds.Regions())).Msg("telemetry dataset loaded")

	m := metrics.New()
	m.SetDatasetRecords(ds.Len())

	opts := []server.Option{server.WithMetrics(m)}

	var pub *publisher.Publisher
	if cfg.Publisher.Enabled {
		sink, err := publisher.NewSink(cfg.Publisher)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create report sink")
		}
		pub = publisher.New(sink, publisher.OptionsFromConfig(cfg.Publisher), m)
		pub.Start()
		opts = append(opts, server.WithPublisher(pub))
	}

	srv := server.New(cfg, ds, opts...)
	srv.SetRunning(true)

	// OS Signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		log.Warn().Str("signal", sig.String()).Msg("shutdown signal received")
	case runErr = <-serveErr:
		if runErr != nil {
			log.Error().Err(runErr).Msg("http server stopped")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	log.Info().Msg("stopping http server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}

	if pub != nil {
		log.Info().Msg("stopping report publisher...")
		if err := pub.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("report publisher shutdown failed")
		}
	}

	if runErr != nil {
		return runErr
	}
	log.Info().Msg("regionpulse stopped cleanly")
	return nil
}
