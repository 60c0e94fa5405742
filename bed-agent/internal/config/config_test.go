package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NODE_ENV", "")
	t.Setenv("BED_AGENT_GENAI_URL", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, defaultGenAIModel, cfg.GenAIModel)
	assert.Equal(t, defaultGenAITimeout, cfg.GenAITimeout)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BED_AGENT_GENAI_URL", "https://genai.example")
	t.Setenv("BED_AGENT_GENAI_API_KEY", "k")
	t.Setenv("BED_AGENT_GENAI_TIMEOUT", "3s")
	t.Setenv("BED_AGENT_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("BED_AGENT_REDIS_DB", "4")
	t.Setenv("BED_AGENT_SEED_DEMO", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.GenAITimeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 4, cfg.RedisDB)
	assert.True(t, cfg.SeedDemo)
}

func TestLoadRequiresEndpointInProduction(t *testing.T) {
	t.Setenv("NODE_ENV", "production")
	t.Setenv("BED_AGENT_GENAI_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresKeyWithEndpoint(t *testing.T) {
	t.Setenv("NODE_ENV", "")
	t.Setenv("BED_AGENT_GENAI_URL", "https://genai.example")
	t.Setenv("BED_AGENT_GENAI_API_KEY", "")
	t.Setenv("API_KEY", "")
	_, err := Load()
	assert.Error(t, err)
}
