package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr      string
	LogLevel  string
	LogFormat string

	GenAIURL     string
	GenAIAPIKey  string
	GenAIModel   string
	GenAITimeout time.Duration

	CatalogPath string

	DatabaseURL  string
	KafkaBrokers []string
	KafkaTopic   string
	S3Bucket     string
	S3Prefix     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	SeedDemo bool
}

const (
	defaultAddr         = ":8071"
	defaultLogLevel     = "info"
	defaultLogFormat    = "json"
	defaultGenAIModel   = "gemini-2.5-flash"
	defaultGenAITimeout = 20 * time.Second
	defaultKafkaTopic   = "bed-agent.events"
	defaultMQTTClientID = "bed-agent"
	defaultMQTTTopic    = "hospital/census/+"
)

func Load() (Config, error) {
	cfg := Config{
		Addr:          getEnv("BED_AGENT_ADDR", defaultAddr),
		LogLevel:      getEnv("BED_AGENT_LOG_LEVEL", defaultLogLevel),
		LogFormat:     getEnv("BED_AGENT_LOG_FORMAT", defaultLogFormat),
		GenAIURL:      os.Getenv("BED_AGENT_GENAI_URL"),
		GenAIAPIKey:   firstNonEmpty(os.Getenv("BED_AGENT_GENAI_API_KEY"), os.Getenv("API_KEY")),
		GenAIModel:    getEnv("BED_AGENT_GENAI_MODEL", defaultGenAIModel),
		GenAITimeout:  getDuration("BED_AGENT_GENAI_TIMEOUT", defaultGenAITimeout),
		CatalogPath:   os.Getenv("BED_AGENT_CATALOG_PATH"),
		DatabaseURL:   firstNonEmpty(os.Getenv("BED_AGENT_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		KafkaBrokers:  getList("BED_AGENT_KAFKA_BROKERS"),
		KafkaTopic:    getEnv("BED_AGENT_KAFKA_TOPIC", defaultKafkaTopic),
		S3Bucket:      os.Getenv("BED_AGENT_S3_BUCKET"),
		S3Prefix:      os.Getenv("BED_AGENT_S3_PREFIX"),
		RedisAddr:     os.Getenv("BED_AGENT_REDIS_ADDR"),
		RedisPassword: os.Getenv("BED_AGENT_REDIS_PASSWORD"),
		RedisDB:       getInt("BED_AGENT_REDIS_DB", 0),
		MQTTBroker:    os.Getenv("BED_AGENT_MQTT_BROKER"),
		MQTTClientID:  getEnv("BED_AGENT_MQTT_CLIENT_ID", defaultMQTTClientID),
		MQTTTopic:     getEnv("BED_AGENT_MQTT_TOPIC", defaultMQTTTopic),
		SeedDemo:      getBool("BED_AGENT_SEED_DEMO", false),
	}
	if cfg.GenAITimeout <= 0 {
		return Config{}, fmt.Errorf("BED_AGENT_GENAI_TIMEOUT must be positive")
	}
	if os.Getenv("NODE_ENV") == "production" && cfg.GenAIURL == "" {
		return Config{}, fmt.Errorf("BED_AGENT_GENAI_URL required in production")
	}
	if cfg.GenAIURL != "" && cfg.GenAIAPIKey == "" {
		return Config{}, fmt.Errorf("BED_AGENT_GENAI_API_KEY required when BED_AGENT_GENAI_URL is set")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
