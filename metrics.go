package booth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the booth's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	captures      *prometheus.CounterVec
	renders       *prometheus.CounterVec
	renderSeconds *prometheus.HistogramVec
	sends         *prometheus.CounterVec
	overlays      *prometheus.CounterVec
	sessions      prometheus.Gauge
}

// NewMetrics registers the booth collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booth",
			Name:      "captures_total",
			Help:      "Finished captures by media kind.",
		}, []string{"kind"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booth",
			Name:      "renders_total",
			Help:      "Compositions by media kind and outcome.",
		}, []string{"kind", "outcome"}),
		renderSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booth",
			Name:      "render_duration_seconds",
			Help:      "Time spent compositing an artifact.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booth",
			Name:      "email_sends_total",
			Help:      "Email deliveries by outcome.",
		}, []string{"outcome"}),
		overlays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booth",
			Name:      "overlay_cache_total",
			Help:      "Overlay cache lookups by result.",
		}, []string{"result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "booth",
			Name:      "sessions_active",
			Help:      "Live booth sessions.",
		}),
	}
	m.Registry.MustRegister(
		m.captures, m.renders, m.renderSeconds, m.sends, m.overlays, m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) captured(kind string) {
	if m != nil {
		m.captures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) rendered(kind string, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.renders.WithLabelValues(kind, outcome).Inc()
	m.renderSeconds.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) sent(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.sends.WithLabelValues(outcome).Inc()
}

func (m *Metrics) overlayHit() {
	if m != nil {
		m.overlays.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) overlayMiss() {
	if m != nil {
		m.overlays.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) sessionsActive(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}
