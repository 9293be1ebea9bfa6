/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry holds Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Playback engine metrics.
	ItemsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storybeam_radio_items_started_total",
		Help: "Queue items the engine started playing, by kind.",
	}, []string{"kind"})

	HostBreaksResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storybeam_radio_host_breaks_resolved_total",
		Help: "Host break segments generated successfully.",
	})

	HostBreaksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storybeam_radio_host_breaks_failed_total",
		Help: "Host break generations that failed and were skipped.",
	})

	CrossfadesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storybeam_radio_crossfades_started_total",
		Help: "Crossfades scheduled.",
	})

	CrossfadesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storybeam_radio_crossfades_completed_total",
		Help: "Crossfades that ran to completion.",
	})

	CrossfadesCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storybeam_radio_crossfades_canceled_total",
		Help: "Crossfades canceled by user actions.",
	})

	QueueRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storybeam_radio_queue_rebuilds_total",
		Help: "Play order rebuilds, including the initial build.",
	})

	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storybeam_radio_queue_length",
		Help: "Items in the current play order.",
	})

	// HTTP API metrics.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storybeam_radio_api_requests_total",
		Help: "API requests by method, endpoint and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storybeam_radio_api_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storybeam_radio_api_active_connections",
		Help: "In-flight API requests.",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storybeam_radio_ws_connections",
		Help: "Connected websocket event clients.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
