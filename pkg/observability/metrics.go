package observability

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "switchboard"

// Metrics holds the Prometheus collectors fed by the lifecycle hooks.
type Metrics struct {
	Turns           *prometheus.CounterVec
	TurnDuration    prometheus.Histogram
	NodeInvocations *prometheus.CounterVec
	NodeFailures    *prometheus.CounterVec
	NodeDuration    *prometheus.HistogramVec
	HandoffsDropped *prometheus.CounterVec
	RoutesRejected  *prometheus.CounterVec
	BreakerTrips    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Turns processed, by final status.",
		}, []string{"status"}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a turn from inbound message to reply.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		NodeInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_invocations_total",
			Help:      "Agent node invocations.",
		}, []string{"node"}),
		NodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_failures_total",
			Help:      "Agent node invocations that recorded an error.",
		}, []string{"node"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Duration of agent node invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"node"}),
		HandoffsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_dropped_total",
			Help:      "Handoff entries dropped for a shape mismatch.",
		}, []string{"node"}),
		RoutesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_rejected_total",
			Help:      "Requested successors outside the allow-list.",
		}, []string{"node"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_trips_total",
			Help:      "Turns forced to END by an attempt or loop ceiling.",
		}, []string{"node"}),
	}

	for _, c := range []prometheus.Collector{
		m.Turns, m.TurnDuration, m.NodeInvocations, m.NodeFailures,
		m.NodeDuration, m.HandoffsDropped, m.RoutesRejected, m.BreakerTrips,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that update the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnEnd: func(_ context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(string(e.Status)).Inc()
			m.TurnDuration.Observe(e.Duration.Seconds())
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeInvocations.WithLabelValues(e.Node).Inc()
			m.NodeDuration.WithLabelValues(e.Node).Observe(e.Duration.Seconds())
			if e.Err != "" {
				m.NodeFailures.WithLabelValues(e.Node).Inc()
			}
		},
		OnHandoffDropped: func(_ context.Context, e *domain.AnomalyEvent) {
			m.HandoffsDropped.WithLabelValues(e.Node).Inc()
		},
		OnRouteRejected: func(_ context.Context, e *domain.AnomalyEvent) {
			m.RoutesRejected.WithLabelValues(e.Node).Inc()
		},
		OnBreakerTripped: func(_ context.Context, e *domain.AnomalyEvent) {
			m.BreakerTrips.WithLabelValues(e.Node).Inc()
		},
	}
}
