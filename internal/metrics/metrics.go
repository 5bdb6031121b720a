// Package metrics provides Prometheus metrics for the chat client.
package metrics

import (
	"time"

	"github.com/ashureev/ragchat/internal/channel"
	"github.com/ashureev/ragchat/internal/transcript"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client's collectors, registered on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	// Transcript metrics
	TranscriptEventsTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Channel metrics
	ChannelStateChanges *prometheus.CounterVec
	ChannelConnected    prometheus.Gauge
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		TranscriptEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragchat_transcript_events_total",
				Help: "Channel events folded into the transcript, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragchat_api_requests_total",
				Help: "Total number of backend API requests",
			},
			[]string{"op", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragchat_api_request_duration_seconds",
				Help:    "Duration of backend API requests in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),

		ChannelStateChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragchat_channel_state_changes_total",
				Help: "Event channel lifecycle transitions, by new state",
			},
			[]string{"state"},
		),

		ChannelConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ragchat_channel_connected",
				Help: "1 while the event channel is connected",
			},
		),
	}
}

// Observe implements transcript.Recorder.
func (m *Metrics) Observe(kind channel.Kind, out transcript.Outcome) {
	outcome := "applied"
	if !out.Applied {
		outcome = string(out.Reason)
	}
	m.TranscriptEventsTotal.WithLabelValues(string(kind), outcome).Inc()
}

// RecordAPIRequest records one backend call. status is the HTTP status code
// as text, or "error" when no response arrived.
func (m *Metrics) RecordAPIRequest(op, status string, duration time.Duration) {
	m.APIRequestsTotal.WithLabelValues(op, status).Inc()
	m.APIRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordConnState records a channel lifecycle transition.
func (m *Metrics) RecordConnState(s channel.ConnState) {
	m.ChannelStateChanges.WithLabelValues(s.String()).Inc()
	if s == channel.StateConnected {
		m.ChannelConnected.Set(1)
	} else {
		m.ChannelConnected.Set(0)
	}
}
