// Package metrics exposes a Prometheus registry for the server's runtime
// counters and gauges (§7: "every drop of data ... increments a named
// counter for telemetry").
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter and gauge the core records, registered
// against its own Registry rather than prometheus's global default so a
// process (or a test binary) can safely construct more than one.
type Metrics struct {
	registry *prometheus.Registry

	// DropsTotal counts every discarded unit of data, labeled by reason
	// (queue_overflow, jitter_late, bad_format, unknown_ssrc,
	// spoofed_source, epoch_mismatch, ...). Satisfies the voice engine's
	// DropCounter and the broadcaster's DropCounter.
	DropsTotal *prometheus.CounterVec

	// AuthFailuresTotal tracks failed Login attempts by scope ("ip" or
	// "user") and the offending key, per §4.4's "increment per-IP+per-user
	// counter for rate banning".
	AuthFailuresTotal *prometheus.CounterVec

	SessionsActive prometheus.Gauge
	ChannelsActive prometheus.Gauge

	VoicePacketsForwardedTotal prometheus.Counter
	ChatMessagesTotal          prometheus.Counter
}

// NewMetrics builds a Metrics with its own Registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speakeasy_drops_total",
			Help: "The total number of dropped packets or events, by reason",
		}, []string{"reason"}),
		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speakeasy_auth_failures_total",
			Help: "The total number of failed login attempts, by scope and key",
		}, []string{"scope", "key"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speakeasy_sessions_active",
			Help: "The current number of authenticated, connected sessions",
		}),
		ChannelsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speakeasy_channels_active",
			Help: "The current number of channels with at least one member",
		}),
		VoicePacketsForwardedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speakeasy_voice_packets_forwarded_total",
			Help: "The total number of voice datagrams forwarded to a recipient",
		}),
		ChatMessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speakeasy_chat_messages_total",
			Help: "The total number of chat messages accepted",
		}),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	m.registry.MustRegister(m.DropsTotal)
	m.registry.MustRegister(m.AuthFailuresTotal)
	m.registry.MustRegister(m.SessionsActive)
	m.registry.MustRegister(m.ChannelsActive)
	m.registry.MustRegister(m.VoicePacketsForwardedTotal)
	m.registry.MustRegister(m.ChatMessagesTotal)
}

// Registry exposes the backing Registry for CreateMetricsServer's
// /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// IncDropped implements voice.DropCounter and broadcast.DropCounter.
func (m *Metrics) IncDropped(reason string) {
	m.DropsTotal.WithLabelValues(reason).Inc()
}

// RecordAuthFailure implements the per-IP+per-user failed-login counter.
func (m *Metrics) RecordAuthFailure(scope, key string) {
	m.AuthFailuresTotal.WithLabelValues(scope, key).Inc()
}

func (m *Metrics) SetSessionsActive(n float64) { m.SessionsActive.Set(n) }
func (m *Metrics) SetChannelsActive(n float64) { m.ChannelsActive.Set(n) }
func (m *Metrics) IncVoicePacketForwarded()    { m.VoicePacketsForwardedTotal.Inc() }
func (m *Metrics) IncChatMessage()             { m.ChatMessagesTotal.Inc() }
