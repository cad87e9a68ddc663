package amqp

// Envelope is a message delivered to a consumer, together with the identity
// needed to acknowledge it.
type Envelope struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
	Properties  Properties
	Body        []byte

	conn    *Connection
	channel uint16
}

// Ack acknowledges this delivery. With multiple set, every unacknowledged
// delivery up to and including this one is acknowledged.
func (e *Envelope) Ack(multiple bool) error {
	return e.conn.basicAck(e.channel, e.DeliveryTag, multiple)
}

// Nack negatively acknowledges this delivery, optionally requeueing it.
func (e *Envelope) Nack(multiple, requeue bool) error {
	return e.conn.basicNack(e.channel, e.DeliveryTag, multiple, requeue)
}

// Reject rejects this delivery, optionally requeueing it.
func (e *Envelope) Reject(requeue bool) error {
	return e.conn.basicReject(e.channel, e.DeliveryTag, requeue)
}

// GetResponse is a message retrieved with a synchronous basic.get.
type GetResponse struct {
	DeliveryTag  uint64
	Redelivered  bool
	Exchange     string
	RoutingKey   string
	MessageCount uint32
	Properties   Properties
	Body         []byte

	conn    *Connection
	channel uint16
}

// Ack acknowledges this message.
func (g *GetResponse) Ack(multiple bool) error {
	return g.conn.basicAck(g.channel, g.DeliveryTag, multiple)
}

// Nack negatively acknowledges this message, optionally requeueing it.
func (g *GetResponse) Nack(multiple, requeue bool) error {
	return g.conn.basicNack(g.channel, g.DeliveryTag, multiple, requeue)
}

// Reject rejects this message, optionally requeueing it.
func (g *GetResponse) Reject(requeue bool) error {
	return g.conn.basicReject(g.channel, g.DeliveryTag, requeue)
}
