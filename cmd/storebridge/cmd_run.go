package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-storebridge/pkg/bridge"
	"github.com/illmade-knight/go-storebridge/pkg/config"
	"github.com/illmade-knight/go-storebridge/pkg/microservice"
	"github.com/illmade-knight/go-storebridge/pkg/report"
	"github.com/illmade-knight/go-storebridge/pkg/session"
	"github.com/illmade-knight/go-storebridge/pkg/topicpath"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func runBridge(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := bridge.NewMetrics(reg)
	if err != nil {
		return err
	}

	var httpServer *microservice.BaseServer
	if cfg.HTTP.Addr != "" {
		httpServer = microservice.NewBaseServer(logger, cfg.HTTP.Addr, reg)
		if err := httpServer.Start(ctx); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
	}

	factory, closeStorage, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	store, closeStore, err := buildSessionStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer closeStore()

	sessions, err := session.NewCache(session.Config{Key: cfg.Session.Key, Endpoint: storageEndpoint(cfg)}, store, factory, logger)
	if err != nil {
		return err
	}
	reporter := report.NewLogReporter(logger)

	if _, err := bridge.Connect(ctx, sessions, storageCredentials(cfg), reporter, metrics, logger); err != nil {
		reporter.Error(err.Error(), storageEndpoint(cfg))
		return err
	}

	allow := allowList(cfg.Bridge, logger)
	dispatcher, err := bridge.NewDispatcher(bridge.DispatcherConfig{
		AllowList: allow,
		MimeType:  cfg.Bridge.MimeType,
		Timeout:   cfg.Bridge.Timeout,
	}, sessions, reporter, metrics, logger)
	if err != nil {
		return err
	}

	consumer, closeConsumer, err := buildConsumer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeConsumer()

	svc, err := bridge.NewService(bridge.ServiceConfig{MaxPayloadBytes: cfg.Bridge.MaxPayloadBytes}, consumer, dispatcher, metrics, logger)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	if httpServer != nil {
		httpServer.SetReady(true)
	}
	logger.Info().
		Str("transport", cfg.Transport.Kind).
		Str("storage", storageEndpoint(cfg)).
		Int("topic_count", allow.Len()).
		Msg("Bridge is running.")

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received.")
	case <-svc.Done():
		logger.Warn().Msg("Message consumer stopped, shutting down.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Bridge did not stop cleanly.")
	}
	logger.Info().Msg("Bridge stopped.")
	return nil
}

// allowList builds the effective allow-list and logs it. An empty list is
// legal but stores nothing.
func allowList(cfg config.BridgeConfig, logger zerolog.Logger) topicpath.AllowList {
	allow := topicpath.NewAllowList(cfg.Topics...)
	if allow.Len() == 0 {
		logger.Warn().Msg("Topic allow-list is empty, every message will be ignored.")
		return allow
	}
	logger.Info().Strs("topics", allow.Topics()).Msg("Topic allow-list loaded.")
	return allow
}
