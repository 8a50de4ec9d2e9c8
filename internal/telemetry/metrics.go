// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OutcomeOK labels a send that finalized.
const OutcomeOK = "ok"

var (
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rigchat_sends_total",
			Help: "Total number of completion sends by outcome",
		},
		[]string{"model", "outcome"},
	)

	fragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rigchat_stream_fragments_total",
			Help: "Total number of content fragments received",
		},
	)

	noiseTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rigchat_stream_noise_total",
			Help: "Total number of stream lines dropped as undecodable",
		},
	)

	streamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rigchat_stream_duration_seconds",
			Help:    "Completion stream duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"model"},
	)

	timeToFirstFragment = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rigchat_stream_ttft_seconds",
			Help:    "Time from request to first content fragment in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rigchat_sends_in_flight",
			Help: "Number of sends currently streaming",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the collectors with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			sendsTotal,
			fragmentsTotal,
			noiseTotal,
			streamDuration,
			timeToFirstFragment,
			inFlight,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordSendMetrics records one finished send.
func RecordSendMetrics(model, outcome string, fragments int, ttft, duration time.Duration) {
	sendsTotal.WithLabelValues(model, outcome).Inc()
	fragmentsTotal.Add(float64(fragments))
	if outcome != OutcomeOK {
		return
	}
	streamDuration.WithLabelValues(model).Observe(duration.Seconds())
	if fragments > 0 {
		timeToFirstFragment.WithLabelValues(model).Observe(ttft.Seconds())
	}
}

// RecordNoise counts one dropped stream line.
func RecordNoise() {
	noiseTotal.Inc()
}

// SendStarted increments the in-flight gauge.
func SendStarted() { inFlight.Inc() }

// SendFinished decrements the in-flight gauge.
func SendFinished() { inFlight.Dec() }
