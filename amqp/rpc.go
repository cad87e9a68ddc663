package amqp

import (
	"fmt"

	"github.com/electronifie/SimpleAmqpClient/internal/frame"
	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

// rpcReplyType classifies the outcome of a synchronous method exchange.
type rpcReplyType int

const (
	replyNone rpcReplyType = iota
	replyNormal
	replyLibraryError
	replyServerError
)

// rpcReply carries the classified outcome back to checkRPCReply.
type rpcReply struct {
	kind   rpcReplyType
	method *frame.Method
	err    error
}

// doRPCOnChannel sends a method and waits for one of the expected replies.
// A channel.close or connection.close reply is classified as a server error
// and finalized; any other unexpected method is a protocol violation.
func (c *Connection) doRPCOnChannel(channel uint16, classID, methodID uint16, args []byte, expected ...uint32) (*frame.Method, error) {
	context := fmt.Sprintf("rpc %d.%d on channel %d", classID, methodID, channel)

	if err := c.source.Send(channel, classID, methodID, args); err != nil {
		return nil, c.checkRPCReply(channel, rpcReply{kind: replyLibraryError, err: err}, context)
	}

	f, ok, err := c.getNextFrameOnChannel(channel, WaitForever)
	if err != nil {
		c.metrics.RPCFailed()
		return nil, err
	}
	if !ok {
		c.metrics.RPCFailed()
		return nil, &InternalError{Reason: context + ": unbounded wait returned no frame"}
	}

	if f.Type != protocol.FrameMethod {
		c.metrics.RPCFailed()
		return nil, &ProtocolError{Reason: fmt.Sprintf("%s: expected method frame, got %s", context, f)}
	}

	m, err := f.ParseMethod()
	if err != nil {
		c.metrics.RPCFailed()
		return nil, &ProtocolError{Reason: fmt.Sprintf("%s: %v", context, err)}
	}

	if m.Is(protocol.ClassChannel, protocol.MethodChannelClose) ||
		m.Is(protocol.ClassConnection, protocol.MethodConnectionClose) {
		return nil, c.checkRPCReply(channel, rpcReply{kind: replyServerError, method: m}, context)
	}

	for _, want := range expected {
		if m.Key() == want {
			if err := c.checkRPCReply(channel, rpcReply{kind: replyNormal, method: m}, context); err != nil {
				return nil, err
			}
			return m, nil
		}
	}

	c.metrics.RPCFailed()
	return nil, &ProtocolError{Reason: fmt.Sprintf("%s: unexpected reply %d.%d", context, m.ClassID, m.MethodID)}
}

// checkRPCReply converts a classified reply into the caller-facing error.
// Server-error replies are finalized (close-ok sent, registry updated)
// before the error is constructed, so the caller observes a consistent
// registry.
func (c *Connection) checkRPCReply(channel uint16, reply rpcReply, context string) error {
	switch reply.kind {
	case replyNormal:
		c.metrics.RPCCompleted()
		return nil

	case replyLibraryError:
		c.metrics.RPCFailed()
		return &TransportError{Context: context, Err: reply.err}

	case replyServerError:
		c.metrics.RPCFailed()

		code, text := parseCloseArgs(reply.method.Args)

		// Finalize the close first: send the close-ok and update the
		// registry, then report the rejection.
		if reply.method.Is(protocol.ClassChannel, protocol.MethodChannelClose) {
			if err := c.finishCloseChannel(channel); err != nil {
				c.logf("finalize channel %d close: %v", channel, err)
			}
		} else {
			c.finishCloseConnection()
		}

		// The failing class/method ids follow the reply text in the
		// close arguments.
		r := frame.NewMethodArgs(reply.method.Args)
		r.ReadUint16()      // reply code, already parsed
		r.ReadShortString() // reply text, already parsed
		failingClass, _ := r.ReadUint16()
		failingMethod, _ := r.ReadUint16()

		return &ServerError{
			Code:     code,
			Text:     text,
			Context:  context,
			ClassID:  failingClass,
			MethodID: failingMethod,
		}

	default:
		c.metrics.RPCFailed()
		return &InternalError{Reason: context + ": rpc reply with no reply type"}
	}
}

// finishCloseChannel completes a broker-initiated channel close: the channel
// leaves the registry (dropping queued frames) and the close-ok
// acknowledgement goes out.
func (c *Connection) finishCloseChannel(channel uint16) error {
	c.unregisterChannel(channel)
	c.metrics.ChannelClosed()

	if err := c.source.Send(channel, protocol.ClassChannel, protocol.MethodChannelCloseOk, nil); err != nil {
		return &TransportError{Context: fmt.Sprintf("send channel.close-ok on channel %d", channel), Err: err}
	}

	return nil
}

// finishCloseConnection acknowledges a broker-initiated connection close and
// tears down the transport; a later Close() sees the connection as already
// closed and must not find a live socket behind it. The connection is already
// dead, so failures are only logged.
func (c *Connection) finishCloseConnection() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if err := c.source.Send(0, protocol.ClassConnection, protocol.MethodConnectionCloseOk, nil); err != nil {
		c.logf("send connection.close-ok: %v", err)
	}

	if err := c.source.Close(); err != nil {
		c.logf("close transport: %v", err)
	}
}
