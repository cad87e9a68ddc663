package amqp

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/electronifie/SimpleAmqpClient/internal/frame"
	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

// ConsumeOptions configures a basic.consume subscription.
type ConsumeOptions struct {
	AutoAck       bool
	Exclusive     bool
	NoLocal       bool
	PrefetchCount uint16
	Args          Table
}

// BasicConsume starts a consumer on a queue and returns its consumer tag.
// The channel backing the consumer stays dedicated to it until BasicCancel.
// An empty consumerTag asks for a generated one.
func (c *Connection) BasicConsume(queue, consumerTag string, opts ConsumeOptions) (string, error) {
	channel, err := c.getChannel()
	if err != nil {
		return "", err
	}

	if opts.PrefetchCount > 0 {
		qosArgs := frame.NewMethodArgsBuilder()
		qosArgs.WriteUint32(0) // prefetch size, unsupported by RabbitMQ
		qosArgs.WriteUint16(opts.PrefetchCount)
		qosArgs.WriteFlags(false) // global

		if _, err := c.doRPCOnChannel(channel, protocol.ClassBasic, protocol.MethodBasicQos, qosArgs.Bytes(),
			protocol.Key(protocol.ClassBasic, protocol.MethodBasicQosOk)); err != nil {
			if c.IsChannelOpen(channel) {
				c.returnChannel(channel)
			}
			return "", fmt.Errorf("set qos: %w", err)
		}
	}

	tag := consumerTag
	if tag == "" {
		tag = "ctag-" + uuid.NewString()
	}

	// Register before the RPC so a delivery racing the consume-ok still
	// resolves; rolled back if the broker refuses.
	if err := c.addConsumer(tag, channel); err != nil {
		c.returnChannel(channel)
		return "", err
	}

	args := frame.NewMethodArgsBuilder()
	args.WriteUint16(0) // reserved
	args.WriteShortString(queue)
	args.WriteShortString(tag)
	args.WriteFlags(opts.NoLocal, opts.AutoAck, opts.Exclusive, false) // no-wait
	args.WriteTable(opts.Args)

	if _, err := c.doRPCOnChannel(channel, protocol.ClassBasic, protocol.MethodBasicConsume, args.Bytes(),
		protocol.Key(protocol.ClassBasic, protocol.MethodBasicConsumeOk)); err != nil {
		c.removeConsumer(tag)
		if c.IsChannelOpen(channel) {
			c.returnChannel(channel)
		}
		return "", fmt.Errorf("start consumer: %w", err)
	}

	return tag, nil
}

// BasicConsumeMessage waits up to timeout for the next delivery on a
// consumer. It returns (nil, false, nil) when the timeout expires with no
// delivery. A basic.return arriving on the consumer's channel is surfaced
// as a MessageReturnedError carrying the returned content.
func (c *Connection) BasicConsumeMessage(consumerTag string, timeout time.Duration) (*Envelope, bool, error) {
	channel, err := c.consumerChannel(consumerTag)
	if err != nil {
		return nil, false, err
	}

	f, ok, err := c.getNextFrameOnChannel(channel, timeout)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	if err := c.checkFrameForClose(f, channel); err != nil {
		return nil, false, err
	}

	if f.Type != protocol.FrameMethod {
		return nil, false, &ProtocolError{Reason: fmt.Sprintf("expected method frame on channel %d, got %s", channel, f)}
	}

	m, err := f.ParseMethod()
	if err != nil {
		return nil, false, &ProtocolError{Reason: err.Error()}
	}

	switch {
	case m.Is(protocol.ClassBasic, protocol.MethodBasicDeliver):
		env, err := c.readDelivery(channel, m)
		if err != nil {
			return nil, false, err
		}
		c.metrics.MessageConsumed()
		return env, true, nil

	case m.Is(protocol.ClassBasic, protocol.MethodBasicReturn):
		retErr, err := c.readReturnedMessage(channel, m)
		if err != nil {
			return nil, false, err
		}
		c.metrics.MessageReturned()
		return nil, false, retErr

	default:
		return nil, false, &ProtocolError{Reason: fmt.Sprintf("unexpected method %d.%d while consuming on channel %d", m.ClassID, m.MethodID, channel)}
	}
}

// readDelivery parses a basic.deliver and reads the content that follows.
func (c *Connection) readDelivery(channel uint16, m *frame.Method) (*Envelope, error) {
	r := frame.NewMethodArgs(m.Args)

	tag, err := r.ReadShortString()
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("parse basic.deliver: %v", err)}
	}
	deliveryTag, err := r.ReadUint64()
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("parse basic.deliver: %v", err)}
	}
	redelivered, err := r.ReadBool()
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("parse basic.deliver: %v", err)}
	}
	exchange, err := r.ReadShortString()
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("parse basic.deliver: %v", err)}
	}
	routingKey, err := r.ReadShortString()
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("parse basic.deliver: %v", err)}
	}

	props, body, err := c.readContent(channel)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ConsumerTag: tag,
		DeliveryTag: deliveryTag,
		Redelivered: redelivered,
		Exchange:    exchange,
		RoutingKey:  routingKey,
		Properties:  props,
		Body:        body,
		conn:        c,
		channel:     channel,
	}, nil
}

// readReturnedMessage parses a basic.return and reads the returned content.
func (c *Connection) readReturnedMessage(channel uint16, m *frame.Method) (*MessageReturnedError, error) {
	r := frame.NewMethodArgs(m.Args)

	replyCode, err := r.ReadUint16()
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("parse basic.return: %v", err)}
	}
	replyText, err := r.ReadShortString()
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("parse basic.return: %v", err)}
	}
	exchange, err := r.ReadShortString()
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("parse basic.return: %v", err)}
	}
	routingKey, err := r.ReadShortString()
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("parse basic.return: %v", err)}
	}

	props, body, err := c.readContent(channel)
	if err != nil {
		return nil, err
	}

	return &MessageReturnedError{
		ReplyCode:  replyCode,
		ReplyText:  replyText,
		Exchange:   exchange,
		RoutingKey: routingKey,
		Properties: props,
		Body:       body,
	}, nil
}

// BasicCancel stops a consumer and returns its channel to the pool.
func (c *Connection) BasicCancel(consumerTag string) error {
	channel, err := c.consumerChannel(consumerTag)
	if err != nil {
		return err
	}

	args := frame.NewMethodArgsBuilder()
	args.WriteShortString(consumerTag)
	args.WriteFlags(false) // no-wait

	_, rpcErr := c.doRPCOnChannel(channel, protocol.ClassBasic, protocol.MethodBasicCancel, args.Bytes(),
		protocol.Key(protocol.ClassBasic, protocol.MethodBasicCancelOk))

	// The tag is gone either way; a broker that closed the channel also
	// forgot the consumer.
	c.removeConsumer(consumerTag)

	if rpcErr != nil {
		if c.IsChannelOpen(channel) {
			c.returnChannel(channel)
		}
		return fmt.Errorf("cancel consumer %q: %w", consumerTag, rpcErr)
	}

	c.returnChannel(channel)
	return nil
}

// BasicGet synchronously fetches a single message from a queue. It returns
// (nil, false, nil) when the queue is empty.
func (c *Connection) BasicGet(queue string, noAck bool) (*GetResponse, bool, error) {
	channel, err := c.getChannel()
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if c.IsChannelOpen(channel) {
			c.returnChannel(channel)
		}
	}()

	args := frame.NewMethodArgsBuilder()
	args.WriteUint16(0) // reserved
	args.WriteShortString(queue)
	args.WriteFlags(noAck)

	m, err := c.doRPCOnChannel(channel, protocol.ClassBasic, protocol.MethodBasicGet, args.Bytes(),
		protocol.Key(protocol.ClassBasic, protocol.MethodBasicGetOk),
		protocol.Key(protocol.ClassBasic, protocol.MethodBasicGetEmpty))
	if err != nil {
		return nil, false, err
	}

	if m.Is(protocol.ClassBasic, protocol.MethodBasicGetEmpty) {
		return nil, false, nil
	}

	r := frame.NewMethodArgs(m.Args)

	deliveryTag, err := r.ReadUint64()
	if err != nil {
		return nil, false, &ProtocolError{Reason: fmt.Sprintf("parse basic.get-ok: %v", err)}
	}
	redelivered, err := r.ReadBool()
	if err != nil {
		return nil, false, &ProtocolError{Reason: fmt.Sprintf("parse basic.get-ok: %v", err)}
	}
	exchange, err := r.ReadShortString()
	if err != nil {
		return nil, false, &ProtocolError{Reason: fmt.Sprintf("parse basic.get-ok: %v", err)}
	}
	routingKey, err := r.ReadShortString()
	if err != nil {
		return nil, false, &ProtocolError{Reason: fmt.Sprintf("parse basic.get-ok: %v", err)}
	}
	messageCount, err := r.ReadUint32()
	if err != nil {
		return nil, false, &ProtocolError{Reason: fmt.Sprintf("parse basic.get-ok: %v", err)}
	}

	props, body, err := c.readContent(channel)
	if err != nil {
		return nil, false, err
	}

	c.metrics.MessageConsumed()

	return &GetResponse{
		DeliveryTag:  deliveryTag,
		Redelivered:  redelivered,
		Exchange:     exchange,
		RoutingKey:   routingKey,
		MessageCount: messageCount,
		Properties:   props,
		Body:         body,
		conn:         c,
		channel:      channel,
	}, true, nil
}

// basicAck sends a basic.ack on the given channel. Acks are asynchronous;
// the broker sends no reply.
func (c *Connection) basicAck(channel uint16, deliveryTag uint64, multiple bool) error {
	args := frame.NewMethodArgsBuilder()
	args.WriteUint64(deliveryTag)
	args.WriteFlags(multiple)

	if err := c.source.Send(channel, protocol.ClassBasic, protocol.MethodBasicAck, args.Bytes()); err != nil {
		return &TransportError{Context: "send basic.ack", Err: err}
	}
	return nil
}

// basicNack sends a basic.nack on the given channel.
func (c *Connection) basicNack(channel uint16, deliveryTag uint64, multiple, requeue bool) error {
	args := frame.NewMethodArgsBuilder()
	args.WriteUint64(deliveryTag)
	args.WriteFlags(multiple, requeue)

	if err := c.source.Send(channel, protocol.ClassBasic, protocol.MethodBasicNack, args.Bytes()); err != nil {
		return &TransportError{Context: "send basic.nack", Err: err}
	}
	return nil
}

// basicReject sends a basic.reject on the given channel.
func (c *Connection) basicReject(channel uint16, deliveryTag uint64, requeue bool) error {
	args := frame.NewMethodArgsBuilder()
	args.WriteUint64(deliveryTag)
	args.WriteFlags(requeue)

	if err := c.source.Send(channel, protocol.ClassBasic, protocol.MethodBasicReject, args.Bytes()); err != nil {
		return &TransportError{Context: "send basic.reject", Err: err}
	}
	return nil
}
