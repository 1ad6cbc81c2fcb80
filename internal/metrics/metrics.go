package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "facecap"

// Metrics holds the client's Prometheus collectors.
type Metrics struct {
	FramesSent   prometheus.Counter
	TicksSkipped *prometheus.CounterVec
	Inbound      *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	Notices      prometheus.Counter
	DialFailures prometheus.Counter
	Credits      prometheus.Gauge
	RTTMean      prometheus.Gauge
	RTTStdDev    prometheus.Gauge
	Status       *prometheus.GaugeVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the recognition server",
		}),
		TicksSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ticks_skipped_total",
			Help:      "Frame loop ticks that sent nothing, by the first gate that was closed",
		}, []string{"reason"}),
		Inbound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inbound_messages_total",
			Help:      "Messages received from the server, by type",
		}, []string{"type"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inbound_dropped_total",
			Help:      "Inbound messages ignored, by reason",
		}, []string{"reason"}),
		Notices: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notices_total",
			Help:      "User-facing notices emitted",
		}),
		DialFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dial_failures_total",
			Help:      "Failed connection attempts",
		}),
		Credits: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "token_credits",
			Help:      "Frames the client may still send without an acknowledgment",
		}),
		RTTMean: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "rtt_mean_milliseconds",
			Help:      "Mean probe round trip of the last calibration",
		}),
		RTTStdDev: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "rtt_stddev_milliseconds",
			Help:      "Standard deviation of probe round trips of the last calibration",
		}),
		Status: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "session_status",
			Help:      "1 for the current connection status",
		}, []string{"status"}),
	}
}

// SetStatus marks status as the only active one.
func (m *Metrics) SetStatus(status string) {
	m.Status.Reset()
	m.Status.WithLabelValues(status).Set(1)
}
