package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/synx/pkg/domain"
)

// Metrics holds the synx collectors.
type Metrics struct {
	created          *prometheus.CounterVec
	signals          *prometheus.CounterVec
	destroyed        prometheus.Counter
	callbacks        *prometheus.CounterVec
	recoveries       prometheus.Counter
	recoveredObjects prometheus.Counter
	live             prometheus.Gauge
	waits            *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synx_objects_created_total",
			Help: "Objects created, by scope.",
		}, []string{"scope"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synx_signals_total",
			Help: "Terminal transitions, by status.",
		}, []string{"status"}),
		destroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synx_objects_destroyed_total",
			Help: "Objects destroyed after their last reference was dropped.",
		}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synx_callbacks_total",
			Help: "Callback registrations finished, by outcome.",
		}, []string{"outcome"}),
		recoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synx_recoveries_total",
			Help: "Recovery sweeps run for reset domains.",
		}),
		recoveredObjects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synx_recovered_objects_total",
			Help: "Objects and directory entries force-signaled by recovery.",
		}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synx_live_objects",
			Help: "Objects currently alive in this process.",
		}),
		waits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synx_wait_duration_seconds",
			Help:    "Time spent in blocking waits, by outcome.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.created, m.signals, m.destroyed, m.callbacks,
		m.recoveries, m.recoveredObjects, m.live, m.waits,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.Hooks {
	return domain.Hooks{
		OnCreate: func(_ context.Context, e *domain.ObjectEvent) {
			m.created.WithLabelValues(e.Scope.String()).Inc()
			m.live.Inc()
		},
		OnSignal: func(_ context.Context, e *domain.ObjectEvent) {
			m.signals.WithLabelValues(statusLabel(e.Status)).Inc()
		},
		OnDestroy: func(_ context.Context, _ *domain.ObjectEvent) {
			m.destroyed.Inc()
			m.live.Dec()
		},
		OnCallback: func(_ context.Context, e *domain.CallbackEvent) {
			m.callbacks.WithLabelValues(string(e.Outcome)).Inc()
		},
		OnWait: func(_ context.Context, e *domain.WaitEvent) {
			outcome := "signaled"
			if e.TimedOut {
				outcome = "timeout"
			}
			m.waits.WithLabelValues(outcome).Observe(e.Duration.Seconds())
		},
		OnRecover: func(_ context.Context, e *domain.RecoveryEvent) {
			m.recoveries.Inc()
			m.recoveredObjects.Add(float64(e.Local + e.Directory))
		},
	}
}

// statusLabel folds client defined codes into one label value to bound
// cardinality.
func statusLabel(s domain.Status) string {
	if s.IsCustom() {
		return "custom"
	}
	return s.String()
}

// Created returns the creation counter for a scope label.
func (m *Metrics) Created(scope string) prometheus.Counter {
	return m.created.WithLabelValues(scope)
}

// Signals returns the transition counter for a status label.
func (m *Metrics) Signals(status string) prometheus.Counter {
	return m.signals.WithLabelValues(status)
}

// Callbacks returns the callback counter for an outcome.
func (m *Metrics) Callbacks(outcome domain.CallbackOutcome) prometheus.Counter {
	return m.callbacks.WithLabelValues(string(outcome))
}

// Live returns the live object gauge.
func (m *Metrics) Live() prometheus.Gauge {
	return m.live
}

// Waits returns the wait duration histogram.
func (m *Metrics) Waits() prometheus.Collector {
	return m.waits
}
