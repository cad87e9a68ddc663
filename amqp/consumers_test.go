package amqp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddConsumerRejectsDuplicateTag(t *testing.T) {
	conn := newTestConnection(&scriptedSource{}, 0)

	require.NoError(t, conn.addConsumer("tag-1", 1))
	assert.ErrorIs(t, conn.addConsumer("tag-1", 2), ErrConsumerTagInUse)

	// The original binding survives the failed registration.
	ch, err := conn.consumerChannel("tag-1")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), ch)
}

func TestAddConsumerRebindsWithTagReuseEnabled(t *testing.T) {
	factory := NewConnectionFactory(WithConsumerTagReuse())
	conn := newConnection(factory, &scriptedSource{}, 0, 4096)

	require.NoError(t, conn.addConsumer("tag-1", 1))
	require.NoError(t, conn.addConsumer("tag-1", 7))

	ch, err := conn.consumerChannel("tag-1")
	require.NoError(t, err)
	assert.Equal(t, uint16(7), ch)
}

func TestRemoveConsumerReturnsBoundChannel(t *testing.T) {
	conn := newTestConnection(&scriptedSource{}, 0)

	require.NoError(t, conn.addConsumer("tag-1", 3))

	ch, err := conn.removeConsumer("tag-1")
	require.NoError(t, err)
	assert.Equal(t, uint16(3), ch)

	_, err = conn.consumerChannel("tag-1")
	assert.ErrorIs(t, err, ErrUnknownConsumerTag)
}

func TestRemoveConsumerUnknownTag(t *testing.T) {
	conn := newTestConnection(&scriptedSource{}, 0)

	_, err := conn.removeConsumer("never-registered")
	assert.ErrorIs(t, err, ErrUnknownConsumerTag)
}
