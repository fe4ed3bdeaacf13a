package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the protocol metrics.
type Config struct {
	// Namespace is the metrics namespace (default: "sandiwara").
	Namespace string

	// Subsystem is the metrics subsystem (default: "speech").
	Subsystem string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the protocol metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "sandiwara",
		Subsystem: "speech",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics records traffic on speech-synthesis connections. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	serverErrors   prometheus.Counter
	audioBytes     prometheus.Counter
	sessions       *prometheus.CounterVec
	openConns      prometheus.Gauge
}

// New registers the protocol metrics.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "frames_sent_total",
			Help:      "Total number of frames written to the speech service",
		}, []string{"type", "event"}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "frames_received_total",
			Help:      "Total number of frames decoded from the speech service",
		}, []string{"type", "event"}),

		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "decode_errors_total",
			Help:      "Total number of frames that failed to decode",
		}),

		serverErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "server_errors_total",
			Help:      "Total number of error frames reported by the speech service",
		}),

		audioBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "audio_bytes_total",
			Help:      "Total number of synthesized audio bytes received",
		}),

		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "sessions_total",
			Help:      "Total number of synthesis sessions by final state",
		}, []string{"state"}),

		openConns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "open_connections",
			Help:      "Number of open speech service connections",
		}),
	}
}

func (m *Metrics) FrameSent(msgType, event string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(msgType, event).Inc()
}

func (m *Metrics) FrameReceived(msgType, event string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(msgType, event).Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) ServerError() {
	if m == nil {
		return
	}
	m.serverErrors.Inc()
}

func (m *Metrics) AudioReceived(n int) {
	if m == nil {
		return
	}
	m.audioBytes.Add(float64(n))
}

// SessionEnded counts a session by the lifecycle state it ended in.
func (m *Metrics) SessionEnded(state string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(state).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.openConns.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.openConns.Dec()
}
