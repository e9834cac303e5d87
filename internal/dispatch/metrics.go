package dispatch

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the dispatcher's Prometheus collectors. A nil *metrics is
// valid and records nothing.
type metrics struct {
	tasks         prometheus.Counter
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	providerCalls *prometheus.CounterVec // by provider
	retries       prometheus.Counter
	failures      prometheus.Counter
	inFlight      prometheus.Gauge
	latency       prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &metrics{
		tasks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "glyphdeck",
			Subsystem: "dispatch",
			Name:      "tasks_total",
			Help:      "Annotation tasks executed",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "glyphdeck",
			Subsystem: "dispatch",
			Name:      "cache_hits_total",
			Help:      "Tasks answered from the content cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "glyphdeck",
			Subsystem: "dispatch",
			Name:      "cache_misses_total",
			Help:      "Tasks that required a provider call",
		}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "glyphdeck",
			Subsystem: "dispatch",
			Name:      "provider_calls_total",
			Help:      "Provider calls including retried attempts",
		}, []string{"provider"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "glyphdeck",
			Subsystem: "dispatch",
			Name:      "retries_total",
			Help:      "Transient provider failures that were retried",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "glyphdeck",
			Subsystem: "dispatch",
			Name:      "task_failures_total",
			Help:      "Tasks that failed and aborted their run",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "glyphdeck",
			Subsystem: "dispatch",
			Name:      "in_flight",
			Help:      "Tasks holding an in-flight slot",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "glyphdeck",
			Subsystem: "dispatch",
			Name:      "task_duration_seconds",
			Help:      "Task latency including retries",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	var err error
	if m.tasks, err = register(reg, m.tasks); err != nil {
		return nil, err
	}
	if m.cacheHits, err = register(reg, m.cacheHits); err != nil {
		return nil, err
	}
	if m.cacheMisses, err = register(reg, m.cacheMisses); err != nil {
		return nil, err
	}
	if m.providerCalls, err = register(reg, m.providerCalls); err != nil {
		return nil, err
	}
	if m.retries, err = register(reg, m.retries); err != nil {
		return nil, err
	}
	if m.failures, err = register(reg, m.failures); err != nil {
		return nil, err
	}
	if m.inFlight, err = register(reg, m.inFlight); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing the collector already registered by another
// dispatcher on the same registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) task() {
	if m != nil {
		m.tasks.Inc()
	}
}

func (m *metrics) hit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *metrics) miss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *metrics) call(provider string) {
	if m != nil {
		m.providerCalls.WithLabelValues(provider).Inc()
	}
}

func (m *metrics) retry() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *metrics) failure() {
	if m != nil {
		m.failures.Inc()
	}
}

func (m *metrics) enter() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *metrics) leave() {
	if m != nil {
		m.inFlight.Dec()
	}
}

func (m *metrics) observe(seconds float64) {
	if m != nil {
		m.latency.Observe(seconds)
	}
}
