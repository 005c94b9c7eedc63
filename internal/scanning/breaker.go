package scanning

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the circuit breaker placed around an AI backend.
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit. Zero disables the breaker.
	ConsecutiveFailures uint32
	// Cooldown is how long the circuit stays open before a probe call.
	Cooldown time.Duration
}

// Breaker wraps a StructuredParser so a backend that keeps failing is
// reported unavailable until its cooldown expires.
type Breaker struct {
	inner StructuredParser
	cb    *gobreaker.CircuitBreaker[*Candidate]
}

// NewBreaker wraps p. When settings disable the breaker p is returned as is.
func NewBreaker(name string, p StructuredParser, settings BreakerSettings) StructuredParser {
	if settings.ConsecutiveFailures == 0 {
		return p
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = time.Minute
	}
	threshold := settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker[*Candidate](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("AI backend circuit changed state", "backend", name, "from", from.String(), "to", to.String())
		},
	})
	return &Breaker{inner: p, cb: cb}
}

// Available is false while the circuit is open.
func (b *Breaker) Available() bool {
	return b.inner.Available() && b.cb.State() != gobreaker.StateOpen
}

func (b *Breaker) ParseImage(ctx context.Context, data []byte, mimeType string) (*Candidate, error) {
	return b.cb.Execute(func() (*Candidate, error) {
		return b.inner.ParseImage(ctx, data, mimeType)
	})
}

func (b *Breaker) ParseText(ctx context.Context, text string) (*Candidate, error) {
	return b.cb.Execute(func() (*Candidate, error) {
		return b.inner.ParseText(ctx, text)
	})
}

func (b *Breaker) Close() error {
	return b.inner.Close()
}
