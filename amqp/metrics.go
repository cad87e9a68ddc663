package amqp

import (
	"sync/atomic"
)

// MetricsCollector collects metrics for client operations
type MetricsCollector interface {
	// Channel lifecycle
	ChannelOpened()
	ChannelClosed()
	ChannelPooled()
	ChannelReused()

	// Frame handling
	FrameReceived(frameType uint8)
	FrameQueued(channel uint16)

	// Message metrics
	MessagePublished()
	MessageConsumed()
	MessageReturned()

	// RPC metrics
	RPCCompleted()
	RPCFailed()
}

// StandardMetricsCollector provides a thread-safe in-process metrics collector
type StandardMetricsCollector struct {
	channelsOpened atomic.Int64
	channelsClosed atomic.Int64
	channelsPooled atomic.Int64
	channelsReused atomic.Int64

	framesReceived atomic.Int64
	framesQueued   atomic.Int64

	messagesPublished atomic.Int64
	messagesConsumed  atomic.Int64
	messagesReturned  atomic.Int64

	rpcsCompleted atomic.Int64
	rpcsFailed    atomic.Int64
}

// NewStandardMetricsCollector creates a new standard metrics collector
func NewStandardMetricsCollector() *StandardMetricsCollector {
	return &StandardMetricsCollector{}
}

func (m *StandardMetricsCollector) ChannelOpened() {
	m.channelsOpened.Add(1)
}

func (m *StandardMetricsCollector) ChannelClosed() {
	m.channelsClosed.Add(1)
}

func (m *StandardMetricsCollector) ChannelPooled() {
	m.channelsPooled.Add(1)
}

func (m *StandardMetricsCollector) ChannelReused() {
	m.channelsReused.Add(1)
}

func (m *StandardMetricsCollector) FrameReceived(frameType uint8) {
	m.framesReceived.Add(1)
}

func (m *StandardMetricsCollector) FrameQueued(channel uint16) {
	m.framesQueued.Add(1)
}

func (m *StandardMetricsCollector) MessagePublished() {
	m.messagesPublished.Add(1)
}

func (m *StandardMetricsCollector) MessageConsumed() {
	m.messagesConsumed.Add(1)
}

func (m *StandardMetricsCollector) MessageReturned() {
	m.messagesReturned.Add(1)
}

func (m *StandardMetricsCollector) RPCCompleted() {
	m.rpcsCompleted.Add(1)
}

func (m *StandardMetricsCollector) RPCFailed() {
	m.rpcsFailed.Add(1)
}

// Getters for metrics
func (m *StandardMetricsCollector) GetChannelsOpened() int64 {
	return m.channelsOpened.Load()
}

func (m *StandardMetricsCollector) GetChannelsClosed() int64 {
	return m.channelsClosed.Load()
}

func (m *StandardMetricsCollector) GetChannelsPooled() int64 {
	return m.channelsPooled.Load()
}

func (m *StandardMetricsCollector) GetChannelsReused() int64 {
	return m.channelsReused.Load()
}

func (m *StandardMetricsCollector) GetFramesReceived() int64 {
	return m.framesReceived.Load()
}

func (m *StandardMetricsCollector) GetFramesQueued() int64 {
	return m.framesQueued.Load()
}

func (m *StandardMetricsCollector) GetMessagesPublished() int64 {
	return m.messagesPublished.Load()
}

func (m *StandardMetricsCollector) GetMessagesConsumed() int64 {
	return m.messagesConsumed.Load()
}

func (m *StandardMetricsCollector) GetMessagesReturned() int64 {
	return m.messagesReturned.Load()
}

func (m *StandardMetricsCollector) GetRPCsCompleted() int64 {
	return m.rpcsCompleted.Load()
}

func (m *StandardMetricsCollector) GetRPCsFailed() int64 {
	return m.rpcsFailed.Load()
}

// NoOpMetricsCollector is a metrics collector that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) ChannelOpened()                {}
func (n *NoOpMetricsCollector) ChannelClosed()                {}
func (n *NoOpMetricsCollector) ChannelPooled()                {}
func (n *NoOpMetricsCollector) ChannelReused()                {}
func (n *NoOpMetricsCollector) FrameReceived(frameType uint8) {}
func (n *NoOpMetricsCollector) FrameQueued(channel uint16)    {}
func (n *NoOpMetricsCollector) MessagePublished()             {}
func (n *NoOpMetricsCollector) MessageConsumed()              {}
func (n *NoOpMetricsCollector) MessageReturned()              {}
func (n *NoOpMetricsCollector) RPCCompleted()                 {}
func (n *NoOpMetricsCollector) RPCFailed()                    {}

// NewNoOpMetricsCollector creates a no-op metrics collector
func NewNoOpMetricsCollector() *NoOpMetricsCollector {
	return &NoOpMetricsCollector{}
}
