package amqp

import (
	"fmt"

	"github.com/electronifie/SimpleAmqpClient/internal/frame"
	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

// BasicPublish publishes a message to an exchange. The body is split across
// as many body frames as the negotiated frame-max requires. The channel used
// for the publish is drawn from the pool and returned afterwards; channels
// run in confirm mode, so the broker's basic.ack is consumed before the
// channel goes back to the pool. An unroutable mandatory or immediate
// message is reported as a MessageReturnedError.
func (c *Connection) BasicPublish(exchange, routingKey string, msg Publishing, mandatory, immediate bool) error {
	channel, err := c.getChannel()
	if err != nil {
		return err
	}
	defer func() {
		if c.IsChannelOpen(channel) {
			c.returnChannel(channel)
		}
	}()

	propBytes, err := EncodeProperties(msg.Properties)
	if err != nil {
		return fmt.Errorf("encode properties: %w", err)
	}

	args := frame.NewMethodArgsBuilder()
	args.WriteUint16(0) // reserved
	args.WriteShortString(exchange)
	args.WriteShortString(routingKey)
	args.WriteFlags(mandatory, immediate)

	if err := c.source.Send(channel, protocol.ClassBasic, protocol.MethodBasicPublish, args.Bytes()); err != nil {
		return &TransportError{Context: "send basic.publish", Err: err}
	}

	header := frame.NewHeaderFrame(channel, protocol.ClassBasic, uint64(len(msg.Body)), propBytes)
	if err := c.source.SendFrame(header); err != nil {
		return &TransportError{Context: "send content header", Err: err}
	}

	maxPayload := int(c.frameMax) - protocol.FrameHeaderSize - protocol.FrameEndSize
	if maxPayload <= 0 {
		maxPayload = protocol.FrameMinSize - protocol.FrameHeaderSize - protocol.FrameEndSize
	}

	for offset := 0; offset < len(msg.Body); offset += maxPayload {
		end := offset + maxPayload
		if end > len(msg.Body) {
			end = len(msg.Body)
		}

		if err := c.source.SendFrame(frame.NewBodyFrame(channel, msg.Body[offset:end])); err != nil {
			return &TransportError{Context: "send content body", Err: err}
		}
	}

	if err := c.awaitPublishConfirm(channel); err != nil {
		return err
	}

	c.metrics.MessagePublished()
	return nil
}

// awaitPublishConfirm consumes the broker's reply to a publish on a
// confirm-mode channel. The broker answers with basic.ack, or with
// basic.return (plus the returned content) followed by basic.ack when the
// message could not be routed. Leaving the reply unconsumed would poison the
// next RPC on the channel after it is pooled.
func (c *Connection) awaitPublishConfirm(channel uint16) error {
	var returned *MessageReturnedError

	for {
		f, ok, err := c.getNextFrameOnChannel(channel, WaitForever)
		if err != nil {
			return err
		}
		if !ok {
			return &InternalError{Reason: fmt.Sprintf("publish confirm on channel %d: unbounded wait returned no frame", channel)}
		}

		if err := c.checkFrameForClose(f, channel); err != nil {
			return err
		}

		if f.Type != protocol.FrameMethod {
			return &ProtocolError{Reason: fmt.Sprintf("expected method frame on channel %d, got %s", channel, f)}
		}

		m, err := f.ParseMethod()
		if err != nil {
			return &ProtocolError{Reason: err.Error()}
		}

		switch {
		case m.Is(protocol.ClassBasic, protocol.MethodBasicAck):
			if returned != nil {
				return returned
			}
			return nil

		case m.Is(protocol.ClassBasic, protocol.MethodBasicNack):
			return ErrMessageNacked

		case m.Is(protocol.ClassBasic, protocol.MethodBasicReturn):
			returned, err = c.readReturnedMessage(channel, m)
			if err != nil {
				return err
			}
			c.metrics.MessageReturned()

		default:
			return &ProtocolError{Reason: fmt.Sprintf("unexpected method %d.%d while awaiting publish confirm on channel %d", m.ClassID, m.MethodID, channel)}
		}
	}
}
