package moderation

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the moderation pipeline.
type Metrics struct {
	IncidentsTotal  *prometheus.CounterVec
	AlertsTotal     *prometheus.CounterVec
	ResolvesTotal   *prometheus.CounterVec
	ActionsTotal    *prometheus.CounterVec
	DetectDuration  *prometheus.HistogramVec
	DetectFailures  *prometheus.CounterVec
	ExpiredTotal    prometheus.Counter
	RateWindowKeys  prometheus.GaugeFunc
	EventsTotal     *prometheus.CounterVec
	DispatchLatency prometheus.Histogram
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
// windowKeys reports the current number of tracked rate-window keys.
func NewMetrics(reg prometheus.Registerer, windowKeys func() float64) *Metrics {
	m := &Metrics{
		IncidentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_incidents_total",
			Help: "Total incidents produced by detectors, by kind.",
		}, []string{"kind"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_alerts_total",
			Help: "Total alert dispatch attempts by result.",
		}, []string{"result"}),
		ResolvesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_resolves_total",
			Help: "Total decision resolutions by stage and effect.",
		}, []string{"stage", "effect"}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_actions_total",
			Help: "Total moderation action executions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		DetectDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guard_detect_duration_seconds",
			Help:    "Duration of detector runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms .. ~16s
		}, []string{"detector"}),
		DetectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_detect_failures_total",
			Help: "Detector runs aborted by collaborator failures.",
		}, []string{"detector"}),
		ExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guard_alerts_expired_total",
			Help: "Pending alerts flipped to expired by the sweeper.",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_events_total",
			Help: "Inbound events handled, by type.",
		}, []string{"type"}),
		DispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "guard_alert_dispatch_duration_seconds",
			Help:    "Time from incident to posted alert with durable record.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms .. ~5s
		}),
	}

	reg.MustRegister(
		m.IncidentsTotal,
		m.AlertsTotal,
		m.ResolvesTotal,
		m.ActionsTotal,
		m.DetectDuration,
		m.DetectFailures,
		m.ExpiredTotal,
		m.EventsTotal,
		m.DispatchLatency,
	)

	if windowKeys != nil {
		m.RateWindowKeys = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "guard_rate_window_keys",
			Help: "Currently tracked (tenant, actor) rate-window keys.",
		}, windowKeys)
		reg.MustRegister(m.RateWindowKeys)
	}

	return m
}
