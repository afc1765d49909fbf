package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "pgenv"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the lifecycle collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	queueDepth       prometheus.Gauge
	running          prometheus.Gauge
	deliveryFailures *prometheus.CounterVec
	databasesCreated prometheus.Counter
	databasesDropped prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered. Collectors already registered by an earlier New on the
// same registry are reused, so several systems can share one registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Requests processed by the lifecycle actor",
		}, []string{"op", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from dequeue to completion of a request",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"op"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queue_depth",
			Help:      "Requests waiting in the actor queue",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "instance_running",
			Help:      "Whether the database instance is running (1) or not (0)",
		}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "delivery_failures_total",
			Help:      "Requests that never reached the actor",
		}, []string{"op"}),
		databasesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "databases_created_total",
			Help:      "Logical databases created",
		}),
		databasesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "databases_dropped_total",
			Help:      "Logical databases dropped",
		}),
	}
	if reg == nil {
		return m
	}

	m.requests = register(reg, m.requests)
	m.requestDuration = register(reg, m.requestDuration)
	m.queueDepth = register(reg, m.queueDepth)
	m.running = register(reg, m.running)
	m.deliveryFailures = register(reg, m.deliveryFailures)
	m.databasesCreated = register(reg, m.databasesCreated)
	m.databasesDropped = register(reg, m.databasesDropped)
	return m
}

// register registers c, returning the existing collector when an identical
// one is already registered. Any other registration error is a programmer
// error and panics, as prometheus.MustRegister does.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic("pgenv: register metrics: " + err.Error())
}

// ObserveRequest records one processed request.
func (m *Metrics) ObserveRequest(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SetQueueDepth sets the number of requests waiting in the queue.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetRunning records whether the instance is running.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
}

// DeliveryFailed counts a request of kind op that never reached the actor.
func (m *Metrics) DeliveryFailed(op string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(op).Inc()
}

// DatabaseCreated counts a created logical database.
func (m *Metrics) DatabaseCreated() {
	if m == nil {
		return
	}
	m.databasesCreated.Inc()
}

// DatabaseDropped counts a dropped logical database.
func (m *Metrics) DatabaseDropped() {
	if m == nil {
		return
	}
	m.databasesDropped.Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
