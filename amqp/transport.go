package amqp

import (
	"errors"
	"fmt"
	"math"
	"net"
	"syscall"
	"time"

	"github.com/electronifie/SimpleAmqpClient/internal/frame"
)

// WaitForever makes a timeout-bounded receive block indefinitely.
const WaitForever = time.Duration(math.MaxInt64)

// FrameSource is the transport a Connection reads frames from and writes
// frames to. ReceiveFrame returns (frame, true, nil) when a frame arrived
// within the timeout, (nil, false, nil) when the timeout expired with no
// frame available, and a non-nil error on transport failure.
type FrameSource interface {
	ReceiveFrame(timeout time.Duration) (*frame.Frame, bool, error)
	Send(channel, classID, methodID uint16, args []byte) error
	SendFrame(f *frame.Frame) error
	Close() error
}

// tcpFrameSource reads and writes frames over a TCP (or TLS) connection.
type tcpFrameSource struct {
	conn net.Conn
	r    *frame.Reader
	w    *frame.Writer
}

func newTCPFrameSource(conn net.Conn, r *frame.Reader, w *frame.Writer) *tcpFrameSource {
	return &tcpFrameSource{conn: conn, r: r, w: w}
}

// ReceiveFrame waits up to timeout for the start of the next frame, then
// reads the whole frame. The readiness probe is a one-byte peek under a read
// deadline; once the first byte is buffered the deadline is cleared so a
// frame is never abandoned half-read when the timeout expires mid-frame.
func (s *tcpFrameSource) ReceiveFrame(timeout time.Duration) (*frame.Frame, bool, error) {
	if timeout != WaitForever {
		deadline := time.Now().Add(timeout)
		for {
			if err := s.conn.SetReadDeadline(deadline); err != nil {
				return nil, false, fmt.Errorf("set read deadline: %w", err)
			}

			_, err := s.r.Peek(1)
			if err == nil {
				break
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, false, nil
			}

			// Interrupted syscalls retry against the same absolute
			// deadline rather than restarting the wait.
			if errors.Is(err, syscall.EINTR) {
				continue
			}

			return nil, false, fmt.Errorf("wait for frame: %w", err)
		}

		if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, false, fmt.Errorf("clear read deadline: %w", err)
		}
	}

	f, err := s.r.ReadFrame()
	if err != nil {
		return nil, false, err
	}

	return f, true, nil
}

// Send encodes and writes a single method frame.
func (s *tcpFrameSource) Send(channel, classID, methodID uint16, args []byte) error {
	return s.w.WriteFrame(frame.NewMethodFrame(channel, classID, methodID, args))
}

// SendFrame writes an already-built frame.
func (s *tcpFrameSource) SendFrame(f *frame.Frame) error {
	return s.w.WriteFrame(f)
}

// Close closes the underlying socket.
func (s *tcpFrameSource) Close() error {
	return s.conn.Close()
}

// setMaxFrameSize propagates the negotiated frame-max to the codec layers.
func (s *tcpFrameSource) setMaxFrameSize(size uint32) {
	s.r.SetMaxFrameSize(size)
	s.w.SetMaxFrameSize(size)
}
