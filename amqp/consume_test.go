package amqp

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electronifie/SimpleAmqpClient/internal/frame"
	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

// consumerResponder extends the channel-open responder with replies for the
// basic-class RPCs used by consumers.
func consumerResponder(channel, classID, methodID uint16) []*frame.Frame {
	if replies := openChannelResponder(channel, classID, methodID); replies != nil {
		return replies
	}

	if classID != protocol.ClassBasic {
		return nil
	}

	switch methodID {
	case protocol.MethodBasicQos:
		return []*frame.Frame{frame.NewMethodFrame(channel, protocol.ClassBasic, protocol.MethodBasicQosOk, nil)}

	case protocol.MethodBasicConsume:
		args := frame.NewMethodArgsBuilder()
		args.WriteShortString("srv-tag")
		return []*frame.Frame{frame.NewMethodFrame(channel, protocol.ClassBasic, protocol.MethodBasicConsumeOk, args.Bytes())}

	case protocol.MethodBasicCancel:
		args := frame.NewMethodArgsBuilder()
		args.WriteShortString("srv-tag")
		return []*frame.Frame{frame.NewMethodFrame(channel, protocol.ClassBasic, protocol.MethodBasicCancelOk, args.Bytes())}
	}
	return nil
}

func TestBasicConsumeRegistersTag(t *testing.T) {
	src := &scriptedSource{respond: consumerResponder}
	conn := newTestConnection(src, 0)

	tag, err := conn.BasicConsume("work", "my-tag", ConsumeOptions{AutoAck: true})
	require.NoError(t, err)
	assert.Equal(t, "my-tag", tag)

	ch, err := conn.consumerChannel(tag)
	require.NoError(t, err)
	assert.True(t, conn.IsChannelOpen(ch))
}

func TestBasicConsumeGeneratesTag(t *testing.T) {
	src := &scriptedSource{respond: consumerResponder}
	conn := newTestConnection(src, 0)

	tag, err := conn.BasicConsume("work", "", ConsumeOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tag, "ctag-"))
	assert.Greater(t, len(tag), len("ctag-"))
}

func TestBasicConsumeSendsQosForPrefetch(t *testing.T) {
	src := &scriptedSource{respond: consumerResponder}
	conn := newTestConnection(src, 0)

	_, err := conn.BasicConsume("work", "my-tag", ConsumeOptions{PrefetchCount: 50})
	require.NoError(t, err)

	var sawQos bool
	for _, m := range src.sentMethods() {
		if m.Is(protocol.ClassBasic, protocol.MethodBasicQos) {
			sawQos = true
		}
	}
	assert.True(t, sawQos)
}

func TestBasicConsumeDuplicateTag(t *testing.T) {
	src := &scriptedSource{respond: consumerResponder}
	conn := newTestConnection(src, 0)

	_, err := conn.BasicConsume("work", "my-tag", ConsumeOptions{})
	require.NoError(t, err)

	_, err = conn.BasicConsume("work", "my-tag", ConsumeOptions{})
	assert.ErrorIs(t, err, ErrConsumerTagInUse)
}

func TestBasicConsumeMessageDelivery(t *testing.T) {
	src := &scriptedSource{respond: consumerResponder}
	conn := newTestConnection(src, 0)

	tag, err := conn.BasicConsume("work", "my-tag", ConsumeOptions{})
	require.NoError(t, err)

	ch, err := conn.consumerChannel(tag)
	require.NoError(t, err)

	src.enqueue(deliverFrames(ch, tag, 42, "events", "user.created", TextPlain, []byte("hello"))...)

	env, ok, err := conn.BasicConsumeMessage(tag, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, tag, env.ConsumerTag)
	assert.Equal(t, uint64(42), env.DeliveryTag)
	assert.Equal(t, "events", env.Exchange)
	assert.Equal(t, "user.created", env.RoutingKey)
	assert.Equal(t, "text/plain", env.Properties.ContentType)
	assert.Equal(t, "hello", string(env.Body))
}

func TestBasicConsumeMessageTimeout(t *testing.T) {
	src := &scriptedSource{respond: consumerResponder}
	conn := newTestConnection(src, 0)

	tag, err := conn.BasicConsume("work", "my-tag", ConsumeOptions{})
	require.NoError(t, err)

	env, ok, err := conn.BasicConsumeMessage(tag, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, env)
}

func TestBasicConsumeMessageUnknownTag(t *testing.T) {
	conn := newTestConnection(&scriptedSource{}, 0)

	_, _, err := conn.BasicConsumeMessage("no-such-tag", time.Second)
	assert.ErrorIs(t, err, ErrUnknownConsumerTag)
}

func TestBasicConsumeMessageSurfacesReturnedMessage(t *testing.T) {
	src := &scriptedSource{respond: consumerResponder}
	conn := newTestConnection(src, 0)

	tag, err := conn.BasicConsume("work", "my-tag", ConsumeOptions{})
	require.NoError(t, err)

	ch, err := conn.consumerChannel(tag)
	require.NoError(t, err)

	retArgs := frame.NewMethodArgsBuilder()
	retArgs.WriteUint16(protocol.ReplyNoRoute)
	retArgs.WriteShortString("NO_ROUTE")
	retArgs.WriteShortString("events")
	retArgs.WriteShortString("nobody.home")

	propBytes, err := EncodeProperties(Properties{})
	require.NoError(t, err)

	src.enqueue(
		frame.NewMethodFrame(ch, protocol.ClassBasic, protocol.MethodBasicReturn, retArgs.Bytes()),
		frame.NewHeaderFrame(ch, protocol.ClassBasic, 4, propBytes),
		frame.NewBodyFrame(ch, []byte("lost")),
	)

	_, _, err = conn.BasicConsumeMessage(tag, time.Second)
	require.Error(t, err)

	var returned *MessageReturnedError
	require.True(t, errors.As(err, &returned))
	assert.Equal(t, uint16(protocol.ReplyNoRoute), returned.ReplyCode)
	assert.Equal(t, "NO_ROUTE", returned.ReplyText)
	assert.Equal(t, "nobody.home", returned.RoutingKey)
	assert.Equal(t, "lost", string(returned.Body))
}

func TestBasicConsumeMessageServerClosedChannel(t *testing.T) {
	src := &scriptedSource{respond: consumerResponder}
	conn := newTestConnection(src, 0)

	tag, err := conn.BasicConsume("work", "my-tag", ConsumeOptions{})
	require.NoError(t, err)

	ch, err := conn.consumerChannel(tag)
	require.NoError(t, err)

	src.enqueue(frame.NewMethodFrame(ch, protocol.ClassChannel, protocol.MethodChannelClose,
		closeArgs(protocol.ReplyResourceError, "resource error", 0, 0)))

	_, _, err = conn.BasicConsumeMessage(tag, time.Second)
	require.Error(t, err)

	var closed *ServerClosedChannelError
	require.True(t, errors.As(err, &closed))
	assert.False(t, conn.IsChannelOpen(ch))
}

func TestBasicCancelReleasesTagAndChannel(t *testing.T) {
	src := &scriptedSource{respond: consumerResponder}
	conn := newTestConnection(src, 0)

	tag, err := conn.BasicConsume("work", "my-tag", ConsumeOptions{})
	require.NoError(t, err)

	ch, err := conn.consumerChannel(tag)
	require.NoError(t, err)

	require.NoError(t, conn.BasicCancel(tag))

	_, err = conn.consumerChannel(tag)
	assert.ErrorIs(t, err, ErrUnknownConsumerTag)

	// The channel went back to the pool; the next checkout reuses it.
	next, err := conn.getChannel()
	require.NoError(t, err)
	assert.Equal(t, ch, next)
}

func TestBasicCancelUnknownTag(t *testing.T) {
	conn := newTestConnection(&scriptedSource{}, 0)
	assert.ErrorIs(t, conn.BasicCancel("no-such-tag"), ErrUnknownConsumerTag)
}

func TestBasicCancelFailurePoolsOpenChannel(t *testing.T) {
	src := &scriptedSource{respond: func(channel, classID, methodID uint16) []*frame.Frame {
		// Answer basic.cancel with the wrong method; the channel itself
		// stays open.
		if classID == protocol.ClassBasic && methodID == protocol.MethodBasicCancel {
			return []*frame.Frame{frame.NewMethodFrame(channel, protocol.ClassBasic, protocol.MethodBasicQosOk, nil)}
		}
		return consumerResponder(channel, classID, methodID)
	}}
	conn := newTestConnection(src, 0)

	tag, err := conn.BasicConsume("work", "my-tag", ConsumeOptions{})
	require.NoError(t, err)

	ch, err := conn.consumerChannel(tag)
	require.NoError(t, err)

	err = conn.BasicCancel(tag)
	require.Error(t, err)

	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))

	// The tag is gone but the still-open channel went back to the pool
	// instead of leaking.
	_, err = conn.consumerChannel(tag)
	assert.ErrorIs(t, err, ErrUnknownConsumerTag)

	next, err := conn.getChannel()
	require.NoError(t, err)
	assert.Equal(t, ch, next)
}

func TestBasicGetFetchesMessage(t *testing.T) {
	src := &scriptedSource{}
	src.respond = func(channel, classID, methodID uint16) []*frame.Frame {
		if replies := openChannelResponder(channel, classID, methodID); replies != nil {
			return replies
		}
		if classID == protocol.ClassBasic && methodID == protocol.MethodBasicGet {
			args := frame.NewMethodArgsBuilder()
			args.WriteUint64(7)    // delivery tag
			args.WriteBool(true)   // redelivered
			args.WriteShortString("events")
			args.WriteShortString("user.created")
			args.WriteUint32(3) // messages remaining

			propBytes, _ := EncodeProperties(TextPlain)
			return []*frame.Frame{
				frame.NewMethodFrame(channel, protocol.ClassBasic, protocol.MethodBasicGetOk, args.Bytes()),
				frame.NewHeaderFrame(channel, protocol.ClassBasic, 5, propBytes),
				frame.NewBodyFrame(channel, []byte("hello")),
			}
		}
		return nil
	}
	conn := newTestConnection(src, 0)

	resp, ok, err := conn.BasicGet("work", false)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, uint64(7), resp.DeliveryTag)
	assert.True(t, resp.Redelivered)
	assert.Equal(t, uint32(3), resp.MessageCount)
	assert.Equal(t, "hello", string(resp.Body))
}

func TestBasicGetEmptyQueue(t *testing.T) {
	src := &scriptedSource{}
	src.respond = func(channel, classID, methodID uint16) []*frame.Frame {
		if replies := openChannelResponder(channel, classID, methodID); replies != nil {
			return replies
		}
		if classID == protocol.ClassBasic && methodID == protocol.MethodBasicGet {
			args := frame.NewMethodArgsBuilder()
			args.WriteShortString("") // cluster-id, deprecated
			return []*frame.Frame{frame.NewMethodFrame(channel, protocol.ClassBasic, protocol.MethodBasicGetEmpty, args.Bytes())}
		}
		return nil
	}
	conn := newTestConnection(src, 0)

	resp, ok, err := conn.BasicGet("work", true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, resp)
}

func TestEnvelopeAckSendsOnConsumerChannel(t *testing.T) {
	src := &scriptedSource{respond: consumerResponder}
	conn := newTestConnection(src, 0)

	tag, err := conn.BasicConsume("work", "my-tag", ConsumeOptions{})
	require.NoError(t, err)

	ch, err := conn.consumerChannel(tag)
	require.NoError(t, err)

	src.enqueue(deliverFrames(ch, tag, 9, "events", "k", Properties{}, []byte("x"))...)

	env, ok, err := conn.BasicConsumeMessage(tag, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, env.Ack(false))

	methods := src.sentMethods()
	last := methods[len(methods)-1]
	assert.True(t, last.Is(protocol.ClassBasic, protocol.MethodBasicAck))
}
