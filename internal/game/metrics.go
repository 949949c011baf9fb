package game

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the reservation core.
type Metrics struct {
	commits         *prometheus.CounterVec
	previews        *prometheus.CounterVec
	releases        prometheus.Counter
	roundsOpened    *prometheus.CounterVec
	roundsCompleted *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

// MustNewMetrics builds the collectors and registers them with reg.  Tests
// pass a fresh prometheus.NewRegistry().  Collectors that are already
// registered are reused.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lottery",
			Subsystem: "allocator",
			Name:      "commits_total",
			Help:      "Commit attempts by outcome status.",
		}, []string{"status"}),
		previews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lottery",
			Subsystem: "allocator",
			Name:      "previews_total",
			Help:      "Previews by source (round or filler).",
		}, []string{"source"}),
		releases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lottery",
			Subsystem: "allocator",
			Name:      "released_numbers_total",
			Help:      "Reservation rows deleted by player releases.",
		}),
		roundsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lottery",
			Subsystem: "lifecycle",
			Name:      "rounds_opened_total",
			Help:      "Rounds created per digit length.",
		}, []string{"digits"}),
		roundsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lottery",
			Subsystem: "lifecycle",
			Name:      "rounds_completed_total",
			Help:      "Rounds closed because every number was reserved.",
		}, []string{"digits"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lottery",
			Subsystem: "settlement",
			Name:      "settlements_total",
			Help:      "Settle calls by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lottery",
			Subsystem: "settlement",
			Name:      "notification_intents_total",
			Help:      "Notification intents handed to the sink by kind and result.",
		}, []string{"kind", "result"}),
	}
	m.commits = registerVec(reg, m.commits)
	m.previews = registerVec(reg, m.previews)
	m.roundsOpened = registerVec(reg, m.roundsOpened)
	m.roundsCompleted = registerVec(reg, m.roundsCompleted)
	m.settlements = registerVec(reg, m.settlements)
	m.notifications = registerVec(reg, m.notifications)
	if err := reg.Register(m.releases); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
		m.releases = already.ExistingCollector.(prometheus.Counter)
	}
	return m
}

func registerVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return c
}

func digitsLabel(d int) string { return strconv.Itoa(d) }
