// Command raincast runs the rainfall forecast pipeline once: it fetches the
// MET Norway forecast for every grid point, aggregates it over the configured
// boundary levels and writes the raster, CSV and trigger outputs.
//
// Usage:
//
//	go run ./cmd/raincast -settings settings.yml [-remove-temp] [-store-in-cloud]
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/raincast/internal/adapter/blob"
	httpadapter "github.com/couchcryptid/raincast/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/raincast/internal/adapter/kafka"
	"github.com/couchcryptid/raincast/internal/adapter/metno"
	"github.com/couchcryptid/raincast/internal/config"
	"github.com/couchcryptid/raincast/internal/observability"
	"github.com/couchcryptid/raincast/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	settingsPath := flag.String("settings", cfg.SettingsFile, "path to the pipeline settings file")
	removeTemp := flag.Bool("remove-temp", false, "delete the temp directory after the run")
	storeInCloud := flag.Bool("store-in-cloud", false, "download inputs from and upload outputs to cloud storage")
	flag.Parse()

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	settings, err := config.LoadSettings(*settingsPath)
	if err != nil {
		logger.Error("failed to load settings", "path", *settingsPath, "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := pipeline.Options{RemoveTemp: *removeTemp, StoreInCloud: *storeInCloud}

	if *storeInCloud {
		store, err := openStore(ctx, cfg, settings)
		if err != nil {
			logger.Error("failed to open blob store", "provider", settings.Cloud.Provider, "error", err)
			return 1
		}
		defer store.Close()
		opts.Store = store
	}

	if cfg.PublishEnabled() {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		opts.Publisher = writer
		logger.Info("trigger publishing enabled", "topic", cfg.KafkaTriggerTopic)
	}

	client := metno.NewClient(cfg.MetnoBaseURL, settings.MetNo.ForecastType, settings.MetNo.UserAgent,
		cfg.MetnoTimeout, metrics, logger)
	fetcher := metno.NewCachedFetcher(client, settings.CacheDir(), settings.MetNo.DefaultTTL, metrics, logger)

	p, err := pipeline.New(settings, fetcher, opts, logger, metrics)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		return 1
	}

	// The status server is optional for a batch run.
	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	res, runErr := p.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if cfg.PushgatewayURL != "" {
		if err := observability.Push(shutdownCtx, cfg.PushgatewayURL, res.RunID, metrics); err != nil {
			logger.Error("metrics push failed", "error", err)
		}
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("pipeline error", "run_id", res.RunID, "stage", res.FailedStep, "error", runErr)
		return 1
	}
	logger.Info("run complete",
		"run_id", res.RunID,
		"stamp", res.Stamp,
		"points", res.Points,
		"bands", res.Bands,
		"files", len(res.Files),
		"uploaded", len(res.Uploaded),
		"duration", res.Duration,
	)
	return 0
}

func openStore(ctx context.Context, cfg *config.Config, settings *config.Settings) (blob.Store, error) {
	if settings.Cloud.Provider == "local" {
		return blob.NewLocalStore(settings.Cloud.LocalRoot), nil
	}
	creds, err := config.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return blob.NewGCSStore(ctx, creds)
}
