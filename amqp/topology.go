package amqp

import (
	"github.com/electronifie/SimpleAmqpClient/internal/frame"
	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

// ExchangeDeclareOptions configures exchange declaration
type ExchangeDeclareOptions struct {
	Passive    bool
	Durable    bool
	AutoDelete bool
	Internal   bool
	Args       Table
}

// ExchangeDeleteOptions configures exchange deletion
type ExchangeDeleteOptions struct {
	IfUnused bool
}

// QueueDeclareOptions configures queue declaration
type QueueDeclareOptions struct {
	Passive    bool
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Args       Table
}

// QueueDeleteOptions configures queue deletion
type QueueDeleteOptions struct {
	IfUnused bool
	IfEmpty  bool
}

// Queue describes a declared queue.
type Queue struct {
	Name      string
	Messages  int
	Consumers int
}

// topologyRPC runs a single synchronous method exchange on a pooled channel.
// Every topology operation reduces to this shape.
func (c *Connection) topologyRPC(classID, methodID uint16, args []byte, okMethodID uint16) (*frame.Method, error) {
	channel, err := c.getChannel()
	if err != nil {
		return nil, err
	}
	defer func() {
		if c.IsChannelOpen(channel) {
			c.returnChannel(channel)
		}
	}()

	return c.doRPCOnChannel(channel, classID, methodID, args, protocol.Key(classID, okMethodID))
}

// ExchangeDeclare declares an exchange
func (c *Connection) ExchangeDeclare(name, kind string, opts ExchangeDeclareOptions) error {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(0) // ticket (deprecated, always 0)
	builder.WriteShortString(name)
	builder.WriteShortString(kind)
	// Pack flags: passive, durable, auto-delete, internal, no-wait
	builder.WriteFlags(opts.Passive, opts.Durable, opts.AutoDelete, opts.Internal, false)
	builder.WriteTable(opts.Args)

	_, err := c.topologyRPC(protocol.ClassExchange, protocol.MethodExchangeDeclare, builder.Bytes(),
		protocol.MethodExchangeDeclareOk)
	return err
}

// ExchangeDelete deletes an exchange
func (c *Connection) ExchangeDelete(name string, opts ExchangeDeleteOptions) error {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(0) // ticket (deprecated, always 0)
	builder.WriteShortString(name)
	builder.WriteFlags(opts.IfUnused, false) // if-unused, no-wait

	_, err := c.topologyRPC(protocol.ClassExchange, protocol.MethodExchangeDelete, builder.Bytes(),
		protocol.MethodExchangeDeleteOk)
	return err
}

// ExchangeBind binds an exchange to another exchange
func (c *Connection) ExchangeBind(destination, source, routingKey string, args Table) error {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(0) // ticket (deprecated, always 0)
	builder.WriteShortString(destination)
	builder.WriteShortString(source)
	builder.WriteShortString(routingKey)
	builder.WriteFlags(false) // no-wait
	builder.WriteTable(args)

	_, err := c.topologyRPC(protocol.ClassExchange, protocol.MethodExchangeBind, builder.Bytes(),
		protocol.MethodExchangeBindOk)
	return err
}

// ExchangeUnbind unbinds an exchange from another exchange
func (c *Connection) ExchangeUnbind(destination, source, routingKey string, args Table) error {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(0) // ticket (deprecated, always 0)
	builder.WriteShortString(destination)
	builder.WriteShortString(source)
	builder.WriteShortString(routingKey)
	builder.WriteFlags(false) // no-wait
	builder.WriteTable(args)

	_, err := c.topologyRPC(protocol.ClassExchange, protocol.MethodExchangeUnbind, builder.Bytes(),
		protocol.MethodExchangeUnbindOk)
	return err
}

// QueueDeclare declares a queue. An empty name asks the broker to generate
// one; the returned Queue carries the actual name.
func (c *Connection) QueueDeclare(name string, opts QueueDeclareOptions) (Queue, error) {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(0) // ticket (deprecated, always 0)
	builder.WriteShortString(name)
	// Pack flags: passive, durable, exclusive, auto-delete, no-wait
	builder.WriteFlags(opts.Passive, opts.Durable, opts.Exclusive, opts.AutoDelete, false)
	builder.WriteTable(opts.Args)

	method, err := c.topologyRPC(protocol.ClassQueue, protocol.MethodQueueDeclare, builder.Bytes(),
		protocol.MethodQueueDeclareOk)
	if err != nil {
		return Queue{}, err
	}

	args := frame.NewMethodArgs(method.Args)
	queueName, _ := args.ReadShortString()
	messageCount, _ := args.ReadUint32()
	consumerCount, _ := args.ReadUint32()

	return Queue{
		Name:      queueName,
		Messages:  int(messageCount),
		Consumers: int(consumerCount),
	}, nil
}

// QueueDelete deletes a queue and returns the number of messages it held.
func (c *Connection) QueueDelete(name string, opts QueueDeleteOptions) (int, error) {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(0) // ticket (deprecated, always 0)
	builder.WriteShortString(name)
	builder.WriteFlags(opts.IfUnused, opts.IfEmpty, false) // if-unused, if-empty, no-wait

	method, err := c.topologyRPC(protocol.ClassQueue, protocol.MethodQueueDelete, builder.Bytes(),
		protocol.MethodQueueDeleteOk)
	if err != nil {
		return 0, err
	}

	args := frame.NewMethodArgs(method.Args)
	messageCount, _ := args.ReadUint32()

	return int(messageCount), nil
}

// QueueBind binds a queue to an exchange
func (c *Connection) QueueBind(name, exchange, routingKey string, args Table) error {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(0) // ticket (deprecated, always 0)
	builder.WriteShortString(name)
	builder.WriteShortString(exchange)
	builder.WriteShortString(routingKey)
	builder.WriteFlags(false) // no-wait
	builder.WriteTable(args)

	_, err := c.topologyRPC(protocol.ClassQueue, protocol.MethodQueueBind, builder.Bytes(),
		protocol.MethodQueueBindOk)
	return err
}

// QueueUnbind unbinds a queue from an exchange
func (c *Connection) QueueUnbind(name, exchange, routingKey string, args Table) error {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(0) // ticket (deprecated, always 0)
	builder.WriteShortString(name)
	builder.WriteShortString(exchange)
	builder.WriteShortString(routingKey)
	builder.WriteTable(args)

	_, err := c.topologyRPC(protocol.ClassQueue, protocol.MethodQueueUnbind, builder.Bytes(),
		protocol.MethodQueueUnbindOk)
	return err
}

// QueuePurge purges all messages from a queue and returns how many were
// dropped.
func (c *Connection) QueuePurge(name string) (int, error) {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(0) // ticket (deprecated, always 0)
	builder.WriteShortString(name)
	builder.WriteFlags(false) // no-wait

	method, err := c.topologyRPC(protocol.ClassQueue, protocol.MethodQueuePurge, builder.Bytes(),
		protocol.MethodQueuePurgeOk)
	if err != nil {
		return 0, err
	}

	args := frame.NewMethodArgs(method.Args)
	messageCount, _ := args.ReadUint32()

	return int(messageCount), nil
}
