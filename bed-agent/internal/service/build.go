package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/assistant"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/audit"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/census"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/cleaning"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/config"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/discharge"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/genai"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/knowledge"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/orchestrator"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/patients"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/snapshot"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/synth"
	"github.com/ILLUVRSE/bedflow/bed-agent/internal/tasks"
)

// NewGenerator returns the configured endpoint client, or genai.Unavailable when no
// endpoint is set so every generative path takes its fallback.
func NewGenerator(cfg config.Config, logger *zap.Logger) (genai.Generator, error) {
	if cfg.GenAIURL == "" {
		logger.Warn("no generative endpoint configured, running in contingency mode")
		return genai.Unavailable{}, nil
	}
	return genai.NewClient(genai.ClientConfig{
		BaseURL: cfg.GenAIURL,
		APIKey:  cfg.GenAIAPIKey,
		Model:   cfg.GenAIModel,
		Timeout: cfg.GenAITimeout,
		Logger:  logger,
	})
}

// Runtime is a built service plus the resources it owns.
type Runtime struct {
	Service *Service
	Census  *census.Store
	closers []func() error
}

func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// Build constructs every component from cfg. Optional backends (Postgres, Kafka, S3,
// Redis) are only connected when configured.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Runtime, error) {
	rt := &Runtime{}

	catalog, err := knowledge.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	template, err := catalog.Lookup(knowledge.DischargeTemplateID)
	if err != nil {
		return nil, fmt.Errorf("catalog: discharge template: %w", err)
	}
	gen, err := NewGenerator(cfg, logger)
	if err != nil {
		return nil, err
	}

	sinks, err := buildSinks(ctx, cfg, logger, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}
	recorder := audit.NewRecorder(sinks, logger.Named("audit"))

	var snaps Snapshots
	var cache *snapshot.Cache
	if cfg.RedisAddr != "" {
		cache = snapshot.New(snapshot.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		rt.closers = append(rt.closers, cache.Close)
		snaps = cache
	}

	initial := []models.ServiceCensus{}
	switch {
	case cfg.SeedDemo:
		initial = census.Demo()
	case cache != nil:
		if restored, err := cache.Census(ctx); err == nil {
			initial = restored
			logger.Info("census restored from snapshot", zap.Int("wards", len(restored)))
		}
	}
	store := census.NewStore(initial)
	rt.Census = store

	registry := patients.NewRegistry()
	if cfg.SeedDemo {
		for _, p := range patients.Demo(time.Now()) {
			if _, err := registry.Add(p); err != nil {
				rt.Close()
				return nil, fmt.Errorf("seed patients: %w", err)
			}
		}
	}

	orch := orchestrator.New(catalog, synth.New(gen), cfg.GenAITimeout, logger.Named("orchestrator"))
	tracker := orchestrator.NewTracker(orch, logger.Named("tracker"))
	var classifier cleaning.Classifier = cleaning.RuleClassifier{}
	if cfg.GenAIURL != "" {
		classifier = cleaning.NewGenerativeClassifier(gen, logger.Named("cleaning"))
	}
	queue := tasks.NewQueue()
	if cache != nil && !cfg.SeedDemo {
		if restored, err := cache.Queue(ctx); err == nil {
			queue.Restore(restored)
			logger.Info("cleaning queue restored from snapshot", zap.Int("tasks", len(restored)))
		}
	}
	preparer := discharge.NewPreparer(discharge.NewGenerativeWriter(gen, template), classifier, logger.Named("discharge"))

	rt.Service = New(Deps{
		Census:       store,
		Catalog:      catalog,
		Tracker:      tracker,
		Classifier:   classifier,
		Registry:     registry,
		Queue:        queue,
		Preparer:     preparer,
		Coordinator:  discharge.NewCoordinator(registry, queue, preparer, recorder, logger.Named("discharge")),
		Assistant:    assistant.New(gen, logger.Named("assistant")),
		Recorder:     recorder,
		Snapshots:    snaps,
		Logger:       logger,
		AutoAnalysis: true,
	})
	return rt, nil
}

func buildSinks(ctx context.Context, cfg config.Config, logger *zap.Logger, rt *Runtime) (audit.Sink, error) {
	var sinks audit.MultiSink
	if cfg.DatabaseURL != "" {
		pg, err := audit.OpenPGSink(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pg.Close)
		sinks = append(sinks, pg)
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := audit.NewKafkaProducer(audit.KafkaProducerConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return nil, err
		}
		k := audit.NewKafkaSink(producer)
		rt.closers = append(rt.closers, k.Close)
		sinks = append(sinks, k)
	}
	if cfg.S3Bucket != "" {
		archiver, err := audit.NewS3Archiver(ctx, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, archiver)
	}
	if len(sinks) == 0 {
		logger.Info("no audit sinks configured")
		return audit.NopSink{}, nil
	}
	return sinks, nil
}
