package amqp

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrChannelsExhausted is returned when a new channel cannot be opened
	// because the negotiated channel-max has been reached.
	ErrChannelsExhausted = errors.New("too many channels open")

	// ErrUnknownConsumerTag is returned when a consumer tag is not registered.
	ErrUnknownConsumerTag = errors.New("unknown consumer tag")

	// ErrConsumerTagInUse is returned when registering a consumer tag that is
	// already registered and tag reuse has not been enabled.
	ErrConsumerTagInUse = errors.New("consumer tag already registered")

	// ErrConnectionClosed is returned for operations on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrMessageNacked is returned when the broker answers a publish on a
	// confirm-mode channel with basic.nack.
	ErrMessageNacked = errors.New("message nacked by broker")
)

// ProtocolError reports an unexpected frame type or method sequence. It is
// fatal to the operation that observed it.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Reason
}

// InternalError reports a state that indicates a coordination bug in this
// library rather than misuse or a broker failure.
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Reason
}

// TransportError reports a failure of the underlying frame transport, most
// commonly a socket that is already closed.
type TransportError struct {
	Context string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Context, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerClosedChannelError reports that the broker closed a channel with
// channel.close. The close has already been finalized (close-ok sent, channel
// removed from the registry) when this error is observed.
type ServerClosedChannelError struct {
	Channel uint16
	Code    uint16
	Reason  string
}

func (e *ServerClosedChannelError) Error() string {
	return fmt.Sprintf("server closed channel %d: %d (%s)", e.Channel, e.Code, e.Reason)
}

// ServerClosedConnectionError reports that the broker closed the connection
// with connection.close. The close-ok acknowledgement has already been sent
// when this error is observed; every channel on the connection is dead.
type ServerClosedConnectionError struct {
	Code   uint16
	Reason string
}

func (e *ServerClosedConnectionError) Error() string {
	return fmt.Sprintf("server closed connection: %d (%s)", e.Code, e.Reason)
}

// ServerError reports that the broker rejected an RPC with a channel.close or
// connection.close reply. Close finalization has already happened when this
// error is constructed.
type ServerError struct {
	Code     uint16
	Text     string
	Context  string
	ClassID  uint16
	MethodID uint16
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server rejected %s: %d (%s)", e.Context, e.Code, e.Text)
}

// MessageReturnedError reports a mandatory or immediate publish that the
// broker could not route. It carries the returned message content.
type MessageReturnedError struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
	Properties Properties
	Body       []byte
}

func (e *MessageReturnedError) Error() string {
	return fmt.Sprintf("message returned from %s (key %q): %d (%s)",
		e.Exchange, e.RoutingKey, e.ReplyCode, e.ReplyText)
}
