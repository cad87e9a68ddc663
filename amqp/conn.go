package amqp

import (
	"fmt"
	"sync"
	"time"

	"github.com/electronifie/SimpleAmqpClient/internal/frame"
	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

// Connection is a single AMQP connection multiplexing many channels. Frames
// are pulled from the transport synchronously by whichever caller is waiting
// for one; frames destined for other channels are parked in per-channel FIFO
// queues and handed out in arrival order when those channels ask.
type Connection struct {
	source FrameSource

	mu           sync.Mutex
	openChannels map[uint16][]*frame.Frame
	freeChannels []uint16
	consumers    map[string]uint16
	lastChannel  uint16
	closed       bool

	channelMax uint16
	frameMax   uint32
	heartbeat  time.Duration

	logger  Logger
	metrics MetricsCollector
	factory *ConnectionFactory
}

// newConnection wraps an established, already-handshaken frame source.
// Channel 0 is registered as permanently open so the allocator never hands
// it out.
func newConnection(factory *ConnectionFactory, source FrameSource, channelMax uint16, frameMax uint32) *Connection {
	c := &Connection{
		source:       source,
		openChannels: map[uint16][]*frame.Frame{0: nil},
		consumers:    make(map[string]uint16),
		channelMax:   channelMax,
		frameMax:     frameMax,
	}

	if factory != nil {
		c.factory = factory
		c.heartbeat = factory.Heartbeat
		c.logger = factory.Logger
		c.metrics = factory.Metrics
	}

	if c.logger == nil {
		c.logger = nopLogger{}
	}

	if c.metrics == nil {
		c.metrics = NewNoOpMetricsCollector()
	}

	return c
}

// ChannelMax returns the negotiated channel-max, counting channel 0.
func (c *Connection) ChannelMax() uint16 {
	return c.channelMax
}

// FrameMax returns the negotiated maximum frame size.
func (c *Connection) FrameMax() uint32 {
	return c.frameMax
}

// IsOpen reports whether Close has not yet been called.
func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close performs the connection.close handshake and tears down the
// transport. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	args := frame.NewMethodArgsBuilder()
	args.WriteUint16(protocol.ReplySuccess)
	args.WriteShortString("Goodbye")
	args.WriteUint16(0) // class id
	args.WriteUint16(0) // method id

	sendErr := c.source.Send(0, protocol.ClassConnection, protocol.MethodConnectionClose, args.Bytes())
	if sendErr == nil {
		c.awaitConnectionCloseOk(5 * time.Second)
	}

	if err := c.source.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}

	return sendErr
}

// awaitConnectionCloseOk drains frames until close-ok arrives or the timeout
// expires. Frames still in flight for other channels are discarded; the
// connection is going away.
func (c *Connection) awaitConnectionCloseOk(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}

		f, ok, err := c.source.ReceiveFrame(remaining)
		if err != nil || !ok {
			return
		}

		if f.ChannelID != 0 || f.Type != protocol.FrameMethod {
			continue
		}

		m, err := f.ParseMethod()
		if err != nil {
			return
		}

		if m.Is(protocol.ClassConnection, protocol.MethodConnectionCloseOk) {
			return
		}
	}
}

// popQueuedFrame removes and returns the oldest queued frame for a channel.
// A lookup on an unregistered channel is a coordination bug, not a protocol
// problem.
func (c *Connection) popQueuedFrame(channel uint16) (*frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue, ok := c.openChannels[channel]
	if !ok {
		return nil, &InternalError{Reason: fmt.Sprintf("frame requested for channel %d which is not open", channel)}
	}

	if len(queue) == 0 {
		return nil, nil
	}

	f := queue[0]
	c.openChannels[channel] = queue[1:]
	return f, nil
}

// queueFrame parks a frame on its channel's queue for a later retrieval.
func (c *Connection) queueFrame(f *frame.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue, ok := c.openChannels[f.ChannelID]
	if !ok {
		return &ProtocolError{Reason: fmt.Sprintf("received frame for unknown channel %d", f.ChannelID)}
	}

	c.openChannels[f.ChannelID] = append(queue, f)
	c.metrics.FrameQueued(f.ChannelID)
	return nil
}
