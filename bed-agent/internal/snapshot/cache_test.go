package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

func setupCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *Cache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewWithClient(client, "", ttl)
}

func TestAnalysisRoundTrip(t *testing.T) {
	mr, c := setupCache(t, 0)
	ctx := context.Background()

	_, err := c.LatestAnalysis(ctx)
	assert.ErrorIs(t, err, ErrMiss)

	in := models.AnalysisResult{
		ID:             uuid.New(),
		Generation:     4,
		Summary:        "estable",
		RiskAssessment: models.RiskAssessment{Level: models.RiskMedium},
		Provenance:     models.Provenance{ModelUsed: "none", RAGDocuments: []string{}, MLEngineUsed: true, FallbackMode: true},
	}
	require.NoError(t, c.SaveAnalysis(ctx, in))
	assert.True(t, mr.Exists("bedflow:analysis:latest"))

	out, err := c.LatestAnalysis(ctx)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, uint64(4), out.Generation)
	assert.Equal(t, models.RiskMedium, out.RiskAssessment.Level)
}

func TestQueueAndCensusWithTTL(t *testing.T) {
	mr, c := setupCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.SaveQueue(ctx, []models.CleaningTask{{BedID: "URG-01", Protocol: models.ProtocolTerminal}}))
	require.NoError(t, c.SaveCensus(ctx, []models.ServiceCensus{{ID: "urg", WardType: models.WardEmergency, TotalBeds: 45}}))

	tasks, err := c.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.ProtocolTerminal, tasks[0].Protocol)

	census, err := c.Census(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45, census[0].TotalBeds)

	mr.FastForward(2 * time.Minute)
	_, err = c.Queue(ctx)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCorruptValue(t *testing.T) {
	mr, c := setupCache(t, 0)
	require.NoError(t, mr.Set("bedflow:census:current", "{not json"))
	_, err := c.Census(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}
