package amqp

import (
	"time"

	"github.com/electronifie/SimpleAmqpClient/internal/frame"
	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

// getNextFrameOnChannel returns the next frame destined for the given
// channel, honoring arrival order: queued frames are served before the
// transport is read. A channel.close found in the queue is finalized
// immediately and surfaced as ServerClosedChannelError. The second return
// value is false when the timeout expired with no frame available.
func (c *Connection) getNextFrameOnChannel(channel uint16, timeout time.Duration) (*frame.Frame, bool, error) {
	f, err := c.popQueuedFrame(channel)
	if err != nil {
		return nil, false, err
	}

	if f == nil {
		return c.getNextFrameFromSource(channel, timeout)
	}

	if f.Type == protocol.FrameMethod {
		m, perr := f.ParseMethod()
		if perr == nil && m.Is(protocol.ClassChannel, protocol.MethodChannelClose) {
			code, reason := parseCloseArgs(m.Args)
			if ferr := c.finishCloseChannel(channel); ferr != nil {
				return nil, false, ferr
			}
			return nil, false, &ServerClosedChannelError{Channel: channel, Code: code, Reason: reason}
		}
	}

	return f, true, nil
}

// getNextFrameFromSource reads frames from the transport until one arrives
// for the wanted channel or the timeout budget is spent. The budget is an
// absolute deadline spanning every read in the loop, so routing frames to
// other channels does not extend the wait. Frames for other open channels
// are queued; channel-0 traffic is ignored except for connection.close,
// which is fatal to the whole connection.
func (c *Connection) getNextFrameFromSource(channel uint16, timeout time.Duration) (*frame.Frame, bool, error) {
	var deadline time.Time
	if timeout != WaitForever {
		deadline = time.Now().Add(timeout)
	}

	remaining := timeout
	for {
		f, ok, err := c.source.ReceiveFrame(remaining)
		if err != nil {
			return nil, false, &TransportError{Context: "receive frame", Err: err}
		}
		if !ok {
			return nil, false, nil
		}

		c.metrics.FrameReceived(f.Type)

		switch {
		case f.ChannelID == channel:
			// Returned as-is, channel.close included: the RPC layer
			// classifies close replies itself and consumers run
			// checkFrameForClose.
			return f, true, nil

		case f.ChannelID == 0:
			if f.Type == protocol.FrameMethod {
				m, perr := f.ParseMethod()
				if perr == nil && m.Is(protocol.ClassConnection, protocol.MethodConnectionClose) {
					code, reason := parseCloseArgs(m.Args)
					c.finishCloseConnection()
					return nil, false, &ServerClosedConnectionError{Code: code, Reason: reason}
				}
			}
			// Heartbeats and other channel-0 traffic are not ours to
			// handle here.

		default:
			if qerr := c.queueFrame(f); qerr != nil {
				return nil, false, qerr
			}
		}

		if timeout != WaitForever {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return nil, false, nil
			}
		}
	}
}

// checkFrameForClose inspects a frame freshly received on a channel and, if
// it is a broker-initiated close, finalizes the close and returns the
// corresponding error. Frames that are not closes return nil.
func (c *Connection) checkFrameForClose(f *frame.Frame, channel uint16) error {
	if f.Type != protocol.FrameMethod {
		return nil
	}

	m, err := f.ParseMethod()
	if err != nil {
		return nil
	}

	switch {
	case m.Is(protocol.ClassChannel, protocol.MethodChannelClose):
		code, reason := parseCloseArgs(m.Args)
		if ferr := c.finishCloseChannel(channel); ferr != nil {
			return ferr
		}
		return &ServerClosedChannelError{Channel: channel, Code: code, Reason: reason}

	case m.Is(protocol.ClassConnection, protocol.MethodConnectionClose):
		code, reason := parseCloseArgs(m.Args)
		c.finishCloseConnection()
		return &ServerClosedConnectionError{Code: code, Reason: reason}
	}

	return nil
}

// parseCloseArgs extracts the reply code and text from channel.close or
// connection.close arguments. Malformed arguments yield zero values rather
// than masking the close itself.
func parseCloseArgs(args []byte) (uint16, string) {
	r := frame.NewMethodArgs(args)

	code, err := r.ReadUint16()
	if err != nil {
		return 0, ""
	}

	reason, err := r.ReadShortString()
	if err != nil {
		return code, ""
	}

	return code, reason
}
