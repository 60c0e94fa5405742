package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/config"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/httpserver"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/logging"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/service"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/telemetry"
)

var serveFlags struct {
	addr string
	demo bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "", "Listen address (overrides BED_AGENT_ADDR)")
	f.BoolVar(&serveFlags.demo, "demo", false, "Seed the demo census and patients")
}

func enforceProdGuardrails(cfg config.Config) error {
	if !strings.EqualFold(os.Getenv("NODE_ENV"), "production") {
		return nil
	}
	if cfg.SeedDemo {
		return fmt.Errorf("demo seeding is forbidden in production")
	}
	return nil
}

// serviceWards routes telemetry through the service so updates are also snapshotted.
type serviceWards struct {
	svc *service.Service
}

func (w serviceWards) UpdateWard(ward models.ServiceCensus) ([]models.ServiceCensus, error) {
	return w.svc.UpdateWard(context.Background(), ward)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if serveFlags.addr != "" {
		cfg.Addr = serveFlags.addr
	}
	if serveFlags.demo {
		cfg.SeedDemo = true
	}
	if err := enforceProdGuardrails(cfg); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "bed-agent")
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := service.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	defer rt.Close()

	if cfg.MQTTBroker != "" {
		sub := telemetry.NewSubscriber(telemetry.Config{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
			QoS:      1,
		}, serviceWards{rt.Service}, logger.Named("telemetry"))
		if err := sub.Start(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer sub.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.New(rt.Service, cfg.GenAITimeout, logger.Named("http")).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("bed-agent listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
