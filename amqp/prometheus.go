package amqp

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetricsCollector exports client metrics through a Prometheus
// registry. It satisfies MetricsCollector and can be passed via WithMetrics.
type PrometheusMetricsCollector struct {
	channelsOpened prometheus.Counter
	channelsClosed prometheus.Counter
	channelsPooled prometheus.Counter
	channelsReused prometheus.Counter

	framesReceived *prometheus.CounterVec
	framesQueued   prometheus.Counter

	messagesPublished prometheus.Counter
	messagesConsumed  prometheus.Counter
	messagesReturned  prometheus.Counter

	rpcsCompleted prometheus.Counter
	rpcsFailed    prometheus.Counter
}

// NewPrometheusMetricsCollector registers the client metrics with the given
// registerer. Pass prometheus.DefaultRegisterer to use the global registry.
func NewPrometheusMetricsCollector(reg prometheus.Registerer) *PrometheusMetricsCollector {
	factory := promauto.With(reg)

	return &PrometheusMetricsCollector{
		channelsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp",
			Subsystem: "channels",
			Name:      "opened_total",
			Help:      "Number of channels opened on the broker.",
		}),
		channelsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp",
			Subsystem: "channels",
			Name:      "closed_total",
			Help:      "Number of channels closed by the broker.",
		}),
		channelsPooled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp",
			Subsystem: "channels",
			Name:      "pooled_total",
			Help:      "Number of channels returned to the reuse pool.",
		}),
		channelsReused: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp",
			Subsystem: "channels",
			Name:      "reused_total",
			Help:      "Number of channels handed out from the reuse pool.",
		}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amqp",
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Number of frames received, by frame type.",
		}, []string{"type"}),
		framesQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp",
			Subsystem: "frames",
			Name:      "queued_total",
			Help:      "Number of frames parked on per-channel queues.",
		}),
		messagesPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp",
			Subsystem: "messages",
			Name:      "published_total",
			Help:      "Number of messages published.",
		}),
		messagesConsumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp",
			Subsystem: "messages",
			Name:      "consumed_total",
			Help:      "Number of messages delivered to consumers or fetched with get.",
		}),
		messagesReturned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp",
			Subsystem: "messages",
			Name:      "returned_total",
			Help:      "Number of unroutable messages returned by the broker.",
		}),
		rpcsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp",
			Subsystem: "rpc",
			Name:      "completed_total",
			Help:      "Number of synchronous method exchanges that succeeded.",
		}),
		rpcsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amqp",
			Subsystem: "rpc",
			Name:      "failed_total",
			Help:      "Number of synchronous method exchanges that failed.",
		}),
	}
}

func (p *PrometheusMetricsCollector) ChannelOpened() {
	p.channelsOpened.Inc()
}

func (p *PrometheusMetricsCollector) ChannelClosed() {
	p.channelsClosed.Inc()
}

func (p *PrometheusMetricsCollector) ChannelPooled() {
	p.channelsPooled.Inc()
}

func (p *PrometheusMetricsCollector) ChannelReused() {
	p.channelsReused.Inc()
}

func (p *PrometheusMetricsCollector) FrameReceived(frameType uint8) {
	p.framesReceived.WithLabelValues(strconv.Itoa(int(frameType))).Inc()
}

func (p *PrometheusMetricsCollector) FrameQueued(channel uint16) {
	p.framesQueued.Inc()
}

func (p *PrometheusMetricsCollector) MessagePublished() {
	p.messagesPublished.Inc()
}

func (p *PrometheusMetricsCollector) MessageConsumed() {
	p.messagesConsumed.Inc()
}

func (p *PrometheusMetricsCollector) MessageReturned() {
	p.messagesReturned.Inc()
}

func (p *PrometheusMetricsCollector) RPCCompleted() {
	p.rpcsCompleted.Inc()
}

func (p *PrometheusMetricsCollector) RPCFailed() {
	p.rpcsFailed.Inc()
}
