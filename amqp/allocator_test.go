package amqp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electronifie/SimpleAmqpClient/internal/frame"
	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

func TestCreateNewChannelOpensAndEnablesConfirms(t *testing.T) {
	src := &scriptedSource{respond: openChannelResponder}
	conn := newTestConnection(src, 0)

	id, err := conn.createNewChannel()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id)
	assert.True(t, conn.IsChannelOpen(id))

	methods := src.sentMethods()
	require.Len(t, methods, 2)
	assert.True(t, methods[0].Is(protocol.ClassChannel, protocol.MethodChannelOpen))
	assert.True(t, methods[1].Is(protocol.ClassConfirm, protocol.MethodConfirmSelect))
}

func TestCreateNewChannelAssignsUniqueIDs(t *testing.T) {
	src := &scriptedSource{respond: openChannelResponder}
	conn := newTestConnection(src, 0)

	seen := make(map[uint16]bool)
	for i := 0; i < 5; i++ {
		id, err := conn.createNewChannel()
		require.NoError(t, err)
		assert.False(t, seen[id], "channel id %d assigned twice", id)
		seen[id] = true
	}
}

func TestChannelMaxIncludesControlChannel(t *testing.T) {
	src := &scriptedSource{respond: openChannelResponder}
	conn := newTestConnection(src, 4)

	// Channel 0 counts against the limit, leaving room for three.
	for i := 0; i < 3; i++ {
		_, err := conn.createNewChannel()
		require.NoError(t, err)
	}

	_, err := conn.createNewChannel()
	assert.ErrorIs(t, err, ErrChannelsExhausted)
}

func TestGetChannelReusesPooledChannelWithoutRPC(t *testing.T) {
	src := &scriptedSource{respond: openChannelResponder}
	conn := newTestConnection(src, 0)

	id, err := conn.getChannel()
	require.NoError(t, err)
	conn.returnChannel(id)

	sentBefore := len(src.sentMethods())

	reused, err := conn.getChannel()
	require.NoError(t, err)
	assert.Equal(t, id, reused)
	assert.Len(t, src.sentMethods(), sentBefore, "pooled channel reuse must not touch the wire")
}

func TestGetChannelSkipsPooledChannelClosedByServer(t *testing.T) {
	src := &scriptedSource{respond: openChannelResponder}
	conn := newTestConnection(src, 0)

	id, err := conn.getChannel()
	require.NoError(t, err)
	conn.returnChannel(id)

	// Broker closes the pooled channel behind our back.
	require.NoError(t, conn.finishCloseChannel(id))

	fresh, err := conn.getChannel()
	require.NoError(t, err)
	assert.NotEqual(t, id, fresh)
	assert.True(t, conn.IsChannelOpen(fresh))
}

func TestCreateNewChannelUnregistersOnOpenFailure(t *testing.T) {
	src := &scriptedSource{}
	conn := newTestConnection(src, 0)

	// Broker refuses the open with channel.close.
	src.enqueue(frame.NewMethodFrame(1, protocol.ClassChannel, protocol.MethodChannelClose,
		closeArgs(protocol.ReplyAccessRefused, "access refused", protocol.ClassChannel, protocol.MethodChannelOpen)))

	_, err := conn.createNewChannel()
	require.Error(t, err)

	var serverErr *ServerError
	assert.True(t, errors.As(err, &serverErr))
	assert.False(t, conn.IsChannelOpen(1))
}

func TestNextFreeChannelIDSkipsOpenIDs(t *testing.T) {
	src := &scriptedSource{respond: openChannelResponder}
	conn := newTestConnection(src, 0)

	id1, err := conn.createNewChannel()
	require.NoError(t, err)
	id2, err := conn.createNewChannel()
	require.NoError(t, err)
	require.Equal(t, id1+1, id2)

	// A fresh allocation scans past both open ids.
	id3, err := conn.nextFreeChannelID()
	require.NoError(t, err)
	assert.Equal(t, id2+1, id3)
}
