package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogPublisher records events in the log when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher { return &LogPublisher{log: log} }

func (p *LogPublisher) Publish(_ context.Context, e Envelope) error {
	p.log.Info("event",
		zap.String("event_id", e.EventID),
		zap.String("event_type", e.EventType),
		zap.String("correlation_id", e.CorrelationID),
		zap.ByteString("payload", e.Payload),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder keeps published envelopes in memory; used by tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Envelope
}

func (r *Recorder) Publish(_ context.Context, e Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Types returns the event types published so far, in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.EventType)
	}
	return out
}
