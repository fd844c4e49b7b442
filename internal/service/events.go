package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/oraculo/protocol/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into services to avoid import cycles
// ──────────────────────────────────────────────────────────────────────────────

// Publisher receives every event after the operation that produced it has
// committed. Publish must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, e domain.Event)
}

// Sink is one destination of the event fan-out.
// Implemented by ws.Hub and redis.EventBus.
type Sink interface {
	Publish(ctx context.Context, e domain.Event) error
}

// Clock returns the current time. Services read it once per operation.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// ──────────────────────────────────────────────────────────────────────────────
// Fanout
// ──────────────────────────────────────────────────────────────────────────────

// Fanout logs every event and forwards it to each sink. A failing sink is
// logged and skipped; it never affects the committed operation.
type Fanout struct {
	log   *slog.Logger
	sinks []Sink
}

// NewFanout creates a Fanout over sinks.
func NewFanout(log *slog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{log: log, sinks: sinks}
}

// Add registers another sink. Not safe for use after Publish has been called.
func (f *Fanout) Add(s Sink) { f.sinks = append(f.sinks, s) }

// Publish implements Publisher.
func (f *Fanout) Publish(ctx context.Context, e domain.Event) {
	f.log.Info("event", "type", e.EventType(), "payload", e)
	for _, s := range f.sinks {
		if err := s.Publish(ctx, e); err != nil {
			f.log.Warn("event sink failed", "type", e.EventType(), "err", err)
		}
	}
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, domain.Event) {}
