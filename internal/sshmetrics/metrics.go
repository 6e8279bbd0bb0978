// Package sshmetrics provides Prometheus metrics for the SSH server.
package sshmetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ssh"

// Metrics contains all Prometheus metrics for the SSH server.
type Metrics struct {
	ConnectionsTotal  prometheus.Counter
	ConnectionsActive prometheus.Gauge
	AuthFailures      *prometheus.CounterVec
	ChannelsOpenTotal prometheus.Counter
	ChannelBytes      *prometheus.CounterVec
	Disconnects       *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance registered against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom
// registry, so tests and multiple server instances don't collide on the
// global default registerer.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of SSH connections accepted",
		}),
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of currently open SSH connections",
		}),
		AuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total authentication failures by method",
		}, []string{"method"}),
		ChannelsOpenTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_open_total",
			Help:      "Total number of channels opened",
		}),
		ChannelBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_bytes_total",
			Help:      "Total bytes transferred over channels by direction",
		}, []string{"direction"}),
		Disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Total connection disconnects by reason",
		}, []string{"reason"}),
	}
}

// RecordConnect records a new SSH connection being accepted.
func (m *Metrics) RecordConnect() {
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

// RecordDisconnect records a connection closing for the given reason
// (an SSH disconnect reason name, e.g. "protocol-error" or "by-application").
func (m *Metrics) RecordDisconnect(reason string) {
	m.ConnectionsActive.Dec()
	m.Disconnects.WithLabelValues(reason).Inc()
}

// RecordAuthFailure records a failed authentication attempt for one method
// ("none", "password", or "publickey").
func (m *Metrics) RecordAuthFailure(method string) {
	m.AuthFailures.WithLabelValues(method).Inc()
}

// RecordChannelOpen records a channel being opened.
func (m *Metrics) RecordChannelOpen() {
	m.ChannelsOpenTotal.Inc()
}

// RecordChannelBytes records bytes transferred over a channel in the given
// direction ("tx" or "rx").
func (m *Metrics) RecordChannelBytes(direction string, n int) {
	m.ChannelBytes.WithLabelValues(direction).Add(float64(n))
}
