package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/models"
)

type Analyzer interface {
	Analyze(ctx context.Context, census []models.ServiceCensus, onStage func(Stage)) models.AnalysisResult
}

// Publisher receives every result the tracker accepts as current, in generation order.
type Publisher func(ctx context.Context, result models.AnalysisResult)

// Source lends out a census snapshot that cannot change until fn returns.
type Source interface {
	View(fn func(census []models.ServiceCensus))
}

// Tracker serialises analyses by generation: only the most recently started run
// may publish, and starting a run cancels every older one still in flight.
type Tracker struct {
	analyzer Analyzer
	logger   *zap.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	latest     *models.AnalysisResult
	publishers []Publisher

	// pubMu orders publisher calls; published is the last generation delivered.
	pubMu     sync.Mutex
	published uint64
}

func NewTracker(a Analyzer, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{analyzer: a, logger: logger}
}

func (t *Tracker) OnPublish(p Publisher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publishers = append(t.publishers, p)
}

type ticket struct {
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
}

func (t *Tracker) begin(ctx context.Context) ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	t.generation++
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	return ticket{generation: t.generation, ctx: runCtx, cancel: cancel}
}

// Run analyses census and reports whether the result was published. A result
// overtaken by a newer run is returned with published == false.
func (t *Tracker) Run(ctx context.Context, census []models.ServiceCensus, onStage func(Stage)) (models.AnalysisResult, bool) {
	return t.finish(t.begin(ctx), census, onStage)
}

// RunLatest reads the census from src and claims a generation while src still
// holds it, so no mutation can slip between the read and the claim.
func (t *Tracker) RunLatest(ctx context.Context, src Source, onStage func(Stage)) (models.AnalysisResult, bool) {
	var (
		tk     ticket
		census []models.ServiceCensus
	)
	src.View(func(c []models.ServiceCensus) {
		census = c
		tk = t.begin(ctx)
	})
	return t.finish(tk, census, onStage)
}

// Trigger claims a generation synchronously and runs the analysis in the background.
// Callers that mutate the census in order get generations in the same order.
func (t *Tracker) Trigger(census []models.ServiceCensus) {
	tk := t.begin(context.Background())
	go t.finish(tk, census, nil)
}

func (t *Tracker) finish(tk ticket, census []models.ServiceCensus, onStage func(Stage)) (models.AnalysisResult, bool) {
	defer tk.cancel()
	result := t.analyzer.Analyze(tk.ctx, census, onStage)
	result.Generation = tk.generation

	t.mu.Lock()
	if tk.generation != t.generation {
		current := t.generation
		t.mu.Unlock()
		t.logger.Debug("discarding stale analysis",
			zap.Uint64("generation", tk.generation),
			zap.Uint64("current", current))
		return result, false
	}
	stored := result
	t.latest = &stored
	t.cancel = nil
	publishers := append([]Publisher(nil), t.publishers...)
	t.mu.Unlock()

	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	if tk.generation <= t.published {
		t.logger.Debug("skipping overtaken publish",
			zap.Uint64("generation", tk.generation),
			zap.Uint64("published", t.published))
		return result, false
	}
	t.published = tk.generation
	for _, p := range publishers {
		p(context.Background(), result)
	}
	return result, true
}

// Latest returns the last published result.
func (t *Tracker) Latest() (models.AnalysisResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest == nil {
		return models.AnalysisResult{}, false
	}
	return *t.latest, true
}

func (t *Tracker) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}
