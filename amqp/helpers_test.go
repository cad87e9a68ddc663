package amqp

import (
	"errors"
	"sync"
	"time"

	"github.com/electronifie/SimpleAmqpClient/internal/frame"
	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

// scriptedSource is a FrameSource fed from a scripted list of incoming
// frames. Sends are recorded for inspection; an optional respond hook can
// synthesize broker replies to sent methods. An unbounded wait on an empty
// script fails instead of hanging the test.
type scriptedSource struct {
	mu       sync.Mutex
	incoming []*frame.Frame
	sent     []*frame.Frame
	respond  func(channel, classID, methodID uint16) []*frame.Frame
	closed   bool
}

func (s *scriptedSource) enqueue(frames ...*frame.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incoming = append(s.incoming, frames...)
}

func (s *scriptedSource) ReceiveFrame(timeout time.Duration) (*frame.Frame, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.incoming) == 0 {
		if timeout == WaitForever {
			return nil, false, errors.New("scripted source exhausted during unbounded wait")
		}
		return nil, false, nil
	}

	f := s.incoming[0]
	s.incoming = s.incoming[1:]
	return f, true, nil
}

func (s *scriptedSource) Send(channel, classID, methodID uint16, args []byte) error {
	s.mu.Lock()
	s.sent = append(s.sent, frame.NewMethodFrame(channel, classID, methodID, args))
	respond := s.respond
	s.mu.Unlock()

	if respond != nil {
		if replies := respond(channel, classID, methodID); len(replies) > 0 {
			s.enqueue(replies...)
		}
	}
	return nil
}

func (s *scriptedSource) SendFrame(f *frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, f)
	return nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// sentMethods decodes every recorded method frame, skipping header and body
// frames.
func (s *scriptedSource) sentMethods() []*frame.Method {
	s.mu.Lock()
	defer s.mu.Unlock()

	var methods []*frame.Method
	for _, f := range s.sent {
		if f.Type != protocol.FrameMethod {
			continue
		}
		if m, err := f.ParseMethod(); err == nil {
			methods = append(methods, m)
		}
	}
	return methods
}

// openChannelResponder replies to channel.open and confirm.select the way a
// broker would, so tests can open channels without scripting each reply.
func openChannelResponder(channel, classID, methodID uint16) []*frame.Frame {
	switch {
	case classID == protocol.ClassChannel && methodID == protocol.MethodChannelOpen:
		args := frame.NewMethodArgsBuilder()
		args.WriteLongString(nil) // reserved
		return []*frame.Frame{frame.NewMethodFrame(channel, protocol.ClassChannel, protocol.MethodChannelOpenOk, args.Bytes())}

	case classID == protocol.ClassConfirm && methodID == protocol.MethodConfirmSelect:
		return []*frame.Frame{frame.NewMethodFrame(channel, protocol.ClassConfirm, protocol.MethodConfirmSelectOk, nil)}
	}
	return nil
}

func newTestConnection(src FrameSource, channelMax uint16) *Connection {
	return newConnection(nil, src, channelMax, 4096)
}

// closeArgs builds the argument block of a channel.close or
// connection.close method.
func closeArgs(code uint16, reason string, failingClass, failingMethod uint16) []byte {
	args := frame.NewMethodArgsBuilder()
	args.WriteUint16(code)
	args.WriteShortString(reason)
	args.WriteUint16(failingClass)
	args.WriteUint16(failingMethod)
	return args.Bytes()
}

// deliverFrames builds the method, header and body frames of a
// basic.deliver with a single-frame body.
func deliverFrames(channel uint16, consumerTag string, deliveryTag uint64, exchange, routingKey string, props Properties, body []byte) []*frame.Frame {
	args := frame.NewMethodArgsBuilder()
	args.WriteShortString(consumerTag)
	args.WriteUint64(deliveryTag)
	args.WriteBool(false) // redelivered
	args.WriteShortString(exchange)
	args.WriteShortString(routingKey)

	propBytes, _ := EncodeProperties(props)

	return []*frame.Frame{
		frame.NewMethodFrame(channel, protocol.ClassBasic, protocol.MethodBasicDeliver, args.Bytes()),
		frame.NewHeaderFrame(channel, protocol.ClassBasic, uint64(len(body)), propBytes),
		frame.NewBodyFrame(channel, body),
	}
}
