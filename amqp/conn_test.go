package amqp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electronifie/SimpleAmqpClient/internal/frame"
	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

func closeResponder(channel, classID, methodID uint16) []*frame.Frame {
	if classID == protocol.ClassConnection && methodID == protocol.MethodConnectionClose {
		return []*frame.Frame{frame.NewMethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionCloseOk, nil)}
	}
	return nil
}

func TestCloseHandshake(t *testing.T) {
	src := &scriptedSource{respond: closeResponder}
	conn := newTestConnection(src, 0)

	require.True(t, conn.IsOpen())
	require.NoError(t, conn.Close())

	assert.False(t, conn.IsOpen())
	assert.True(t, src.closed)

	methods := src.sentMethods()
	require.Len(t, methods, 1)
	require.True(t, methods[0].Is(protocol.ClassConnection, protocol.MethodConnectionClose))

	// Orderly close announces success.
	args := frame.NewMethodArgs(methods[0].Args)
	code, err := args.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(protocol.ReplySuccess), code)
}

func TestCloseIsIdempotent(t *testing.T) {
	src := &scriptedSource{respond: closeResponder}
	conn := newTestConnection(src, 0)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	// Only one close handshake went out.
	assert.Len(t, src.sentMethods(), 1)
}

func TestServerClosedConnectionTearsDownTransport(t *testing.T) {
	src := &scriptedSource{}
	conn := newTestConnection(src, 0)
	ch := registerChannel(t, conn)

	src.enqueue(frame.NewMethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionClose,
		closeArgs(protocol.ReplyConnectionForced, "shutting down", 0, 0)))

	_, _, err := conn.getNextFrameOnChannel(ch, time.Second)
	var closedErr *ServerClosedConnectionError
	require.True(t, errors.As(err, &closedErr))

	assert.False(t, conn.IsOpen())
	assert.True(t, src.closed)

	// A later Close has nothing left to do; in particular it must not
	// leave a live socket behind its early return.
	require.NoError(t, conn.Close())

	methods := src.sentMethods()
	require.Len(t, methods, 1)
	assert.True(t, methods[0].Is(protocol.ClassConnection, protocol.MethodConnectionCloseOk))
}

func TestNegotiatedLimitsExposed(t *testing.T) {
	conn := newConnection(nil, &scriptedSource{}, 2047, 131072)
	assert.Equal(t, uint16(2047), conn.ChannelMax())
	assert.Equal(t, uint32(131072), conn.FrameMax())
}

func TestConnectionDefaultsToDiscardingLogger(t *testing.T) {
	conn := newConnection(nil, &scriptedSource{}, 0, 4096)
	require.NotNil(t, conn.logger)
	conn.logf("dropped %d", 1)
}
