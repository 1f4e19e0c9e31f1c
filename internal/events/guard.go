package events

import (
	"context"
	"errors"
	"log/slog"

	"curaledger/pkg/platform/circuit"
)

// ErrPublisherUnavailable is returned while the guard's breaker is open.
var ErrPublisherUnavailable = errors.New("event publisher unavailable")

// Guarded wraps a remote publisher with a circuit breaker. While the breaker
// is open events are dropped without a network call, so a dead broker costs
// requests nothing beyond the periodic probe.
type Guarded struct {
	next    Publisher
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(next Publisher, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Publish(ctx context.Context, event Event) error {
	if !g.breaker.Allow() {
		return ErrPublisherUnavailable
	}
	if err := g.next.Publish(ctx, event); err != nil {
		if g.breaker.RecordFailure().Opened {
			g.logger.WarnContext(ctx, "event publisher circuit opened",
				"breaker", g.breaker.Name(),
				"error", err,
			)
		}
		return err
	}
	if g.breaker.RecordSuccess().Closed {
		g.logger.InfoContext(ctx, "event publisher circuit closed",
			"breaker", g.breaker.Name(),
		)
	}
	return nil
}
