// Package snapshot mirrors the latest census, analysis and cleaning queue into Redis
// so dashboards and restarted instances can read them.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

var ErrMiss = errors.New("snapshot miss")

const (
	analysisKey = "analysis:latest"
	queueKey    = "cleaning:queue"
	censusKey   = "census:current"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key. Defaults to "bedflow:".
	Prefix string
	// TTL of zero keeps keys until overwritten.
	TTL time.Duration
}

type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func New(opts Options) *Cache {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), opts.Prefix, opts.TTL)
}

func NewWithClient(c *redis.Client, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "bedflow:"
	}
	return &Cache{client: c, prefix: prefix, ttl: ttl}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) SaveAnalysis(ctx context.Context, r models.AnalysisResult) error {
	return c.put(ctx, analysisKey, r)
}

func (c *Cache) LatestAnalysis(ctx context.Context) (models.AnalysisResult, error) {
	var r models.AnalysisResult
	err := c.get(ctx, analysisKey, &r)
	return r, err
}

func (c *Cache) SaveQueue(ctx context.Context, tasks []models.CleaningTask) error {
	return c.put(ctx, queueKey, tasks)
}

func (c *Cache) Queue(ctx context.Context) ([]models.CleaningTask, error) {
	var tasks []models.CleaningTask
	err := c.get(ctx, queueKey, &tasks)
	return tasks, err
}

func (c *Cache) SaveCensus(ctx context.Context, census []models.ServiceCensus) error {
	return c.put(ctx, censusKey, census)
}

func (c *Cache) Census(ctx context.Context) ([]models.ServiceCensus, error) {
	var census []models.ServiceCensus
	err := c.get(ctx, censusKey, &census)
	return census, err
}

func (c *Cache) put(ctx context.Context, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.prefix+key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) get(ctx context.Context, key string, v interface{}) error {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
