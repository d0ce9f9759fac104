package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/smartbots/docdispatch/internal/mail"
)

// GuardConfig tunes the protection around a transport.
type GuardConfig struct {
	// RatePerMinute caps sends per minute. Zero means unlimited.
	RatePerMinute float64

	// Trips is the number of consecutive failures that opens the breaker.
	Trips uint32

	// Timeout is how long the breaker stays open before a trial send is allowed.
	Timeout time.Duration
}

// GuardedSender paces sends with a token bucket and stops calling a transport
// that keeps failing. While the breaker is open every send fails immediately.
type GuardedSender struct {
	next    mail.Sender
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedSender wraps next.
func NewGuardedSender(next mail.Sender, cfg GuardConfig, logger *slog.Logger) *GuardedSender {
	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Limit(cfg.RatePerMinute / 60)
	}
	trips := cfg.Trips
	if trips == 0 {
		trips = 3
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("transport circuit breaker state changed",
				"transport", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &GuardedSender{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
	}
}

// Name returns the wrapped transport name.
func (g *GuardedSender) Name() string {
	return g.next.Name()
}

// State returns the breaker state.
func (g *GuardedSender) State() gobreaker.State {
	return g.breaker.State()
}

// Send waits for a token, then sends through the breaker. Breaker and limiter
// errors are reported as failed results like any transport error.
func (g *GuardedSender) Send(ctx context.Context, msg *mail.Message) mail.Result {
	if err := g.limiter.Wait(ctx); err != nil {
		return mail.Failed(err)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		res := g.next.Send(ctx, msg)
		return res, res.Err()
	})
	if res, ok := out.(mail.Result); ok {
		return res
	}
	return mail.Failed(err)
}
