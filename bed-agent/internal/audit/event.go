// Package audit records bed-flow domain events. Every sink is best-effort from the
// domain's point of view: the Recorder logs sink failures and never returns them.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventAnalysisCompleted  = "analysis.completed"
	EventDischargeCompleted = "discharge.completed"
	EventCleaningAdvanced   = "cleaning.advanced"
	EventBedReleased        = "bed.released"
	EventInsightApplied     = "insight.applied"
	EventAlertRaised        = "alert.raised"
)

type Event struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"eventType"`
	Payload  map[string]interface{} `json:"payload"`
	PrevHash string                 `json:"prevHash,omitempty"`
	Hash     string                 `json:"hash,omitempty"`
	Ts       time.Time              `json:"ts"`
}

// Sink stores or forwards one event.
type Sink interface {
	Record(ctx context.Context, ev *Event) error
}

type NopSink struct{}

func (NopSink) Record(context.Context, *Event) error { return nil }

// MultiSink hands the event to every sink in order and joins their errors.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, ev *Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder stamps events and sends them to a sink.
type Recorder struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(sink Sink, logger *zap.Logger) *Recorder {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sink: sink, logger: logger, now: time.Now}
}

// Emit records an event of the given type. A nil Recorder is a no-op.
func (r *Recorder) Emit(ctx context.Context, eventType string, payload map[string]interface{}) {
	if r == nil {
		return
	}
	ev := &Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Payload: payload,
		Ts:      r.now().UTC(),
	}
	if err := r.sink.Record(ctx, ev); err != nil {
		r.logger.Warn("audit sink failed", zap.String("event_type", eventType), zap.String("event_id", ev.ID), zap.Error(err))
	}
}
