package triage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	TriagesTotal         *prometheus.CounterVec
	InferenceDuration    *prometheus.HistogramVec
	ContextFetchDuration *prometheus.HistogramVec
	ChatLogTotal         *prometheus.CounterVec
	ModelLoadsTotal      *prometheus.CounterVec
	ModelLoadDuration    prometheus.Histogram
	LaneWaitDuration     prometheus.Histogram
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carepath_triages_total",
			Help: "Total triage runs by final status and model mode.",
		}, []string{"status", "mode"}),
		InferenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carepath_inference_duration_seconds",
			Help:    "Duration of model inference in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms .. ~7m
		}, []string{"mode"}),
		ContextFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carepath_context_fetch_duration_seconds",
			Help:    "Duration of patient summary fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"outcome"}),
		ChatLogTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carepath_chat_logs_total",
			Help: "Total chat log storage attempts by outcome.",
		}, []string{"outcome"}),
		ModelLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carepath_model_loads_total",
			Help: "Total local model load attempts by outcome.",
		}, []string{"outcome"}),
		ModelLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "carepath_model_load_duration_seconds",
			Help:    "Duration of local model loads in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}),
		LaneWaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "carepath_inference_lane_wait_seconds",
			Help:    "Time requests queued for the single inference slot in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms .. ~1.5m
		}),
	}

	reg.MustRegister(
		m.TriagesTotal,
		m.InferenceDuration,
		m.ContextFetchDuration,
		m.ChatLogTotal,
		m.ModelLoadsTotal,
		m.ModelLoadDuration,
		m.LaneWaitDuration,
	)

	return m
}

// OnModelLoad is wired into local backend loaders to observe load attempts.
func (m *Metrics) OnModelLoad(d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ModelLoadsTotal.WithLabelValues(outcome).Inc()
	if err == nil {
		m.ModelLoadDuration.Observe(d.Seconds())
	}
}

// OnLaneWait is wired into the inference lane to observe queueing.
func (m *Metrics) OnLaneWait(d time.Duration) {
	m.LaneWaitDuration.Observe(d.Seconds())
}
