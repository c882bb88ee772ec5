package observability

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts uploads, lifecycle transitions, notifications, and HTTP
// requests. It satisfies upload.Recorder and lifecycle.Recorder.
type Metrics struct {
	uploads       *prometheus.CounterVec
	uploadBytes   prometheus.Counter
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	requests      *prometheus.HistogramVec
	handler       http.Handler
}

// NewMetrics registers the collectors with reg. Collectors that are already
// registered are reused, so tests may build several Metrics against one
// registry.
func NewMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) (*Metrics, error) {
	m := &Metrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clientdesk",
			Name:      "uploads_total",
			Help:      "Settled uploads by final state.",
		}, []string{"state"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clientdesk",
			Name:      "upload_bytes_total",
			Help:      "Bytes transferred by completed uploads.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clientdesk",
			Name:      "lifecycle_transitions_total",
			Help:      "Committed lifecycle transitions by entity and resulting status.",
		}, []string{"entity", "status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clientdesk",
			Name:      "notifications_total",
			Help:      "Notification attempts by result.",
		}, []string{"result"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clientdesk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "code"}),
	}
	var err error
	if m.uploads, err = register(reg, m.uploads); err != nil {
		return nil, err
	}
	if m.uploadBytes, err = register(reg, m.uploadBytes); err != nil {
		return nil, err
	}
	if m.transitions, err = register(reg, m.transitions); err != nil {
		return nil, err
	}
	if m.notifications, err = register(reg, m.notifications); err != nil {
		return nil, err
	}
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	m.handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordUpload implements upload.Recorder.
func (m *Metrics) RecordUpload(state string, bytes int64) {
	m.uploads.WithLabelValues(state).Inc()
	if state == "completed" && bytes > 0 {
		m.uploadBytes.Add(float64(bytes))
	}
}

// RecordTransition implements lifecycle.Recorder.
func (m *Metrics) RecordTransition(entity, status string) {
	m.transitions.WithLabelValues(entity, status).Inc()
}

// RecordNotification implements lifecycle.Recorder.
func (m *Metrics) RecordNotification(result string) {
	m.notifications.WithLabelValues(result).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route, code string, seconds float64) {
	m.requests.WithLabelValues(route, code).Observe(seconds)
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}
