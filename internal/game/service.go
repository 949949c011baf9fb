// Package game is the reservation allocator and round lifecycle controller.
// It opens rounds, proposes and commits five-number blocks, closes full
// rounds, settles winners and emits notification intents.  Storage, billing
// and delivery are reached only through the interfaces in store.go.
package game

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Options tune the service.  Zero values fall back to defaults.
type Options struct {
	OpTimeout       time.Duration // deadline for one operation's store work
	PublishAttempts int           // sink attempts per settlement
	PublishBackoff  time.Duration // first retry delay, doubled per attempt
	Metrics         *Metrics
	Now             func() time.Time
}

// Service bundles the gate, allocator, lifecycle controller and settlement.
type Service struct {
	store   Store
	views   Views
	gate    *Gate
	sink    NotificationSink
	metrics *Metrics
	opts    Options
	now     func() time.Time
}

// NewService wires the core.  store, views and ents must be non-nil; sink
// may be nil, in which case settlement intents are only logged.
func NewService(store Store, views Views, ents EntitlementSource, sink NotificationSink, opts Options) *Service {
	if store == nil || views == nil || ents == nil {
		panic("nil dependency passed to game.NewService")
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Second
	}
	if opts.PublishAttempts < 1 {
		opts.PublishAttempts = 3
	}
	if opts.PublishBackoff <= 0 {
		opts.PublishBackoff = 200 * time.Millisecond
	}
	m := opts.Metrics
	if m == nil {
		m = MustNewMetrics(prometheus.NewRegistry())
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:   store,
		views:   views,
		gate:    NewGate(ents),
		sink:    sink,
		metrics: m,
		opts:    opts,
		now:     now,
	}
}

// Gate exposes the entitlement gate.
func (s *Service) Gate() *Gate { return s.gate }

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.OpTimeout)
}
