package amqp

import (
	"fmt"

	"github.com/electronifie/SimpleAmqpClient/internal/frame"
	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

// nextFreeChannelID reserves the next unused channel id and registers it with
// an empty frame queue. Ids are scanned forward from the last allocation so
// recently closed ids are not reused immediately; the uint16 increment wraps
// naturally and channel 0, always present in the registry, is skipped by the
// scan itself.
func (c *Connection) nextFreeChannelID() (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	limit := int(c.channelMax)
	if limit == 0 {
		limit = 65535
	}
	if len(c.openChannels) >= limit {
		return 0, ErrChannelsExhausted
	}

	id := c.lastChannel
	for {
		id++
		if _, inUse := c.openChannels[id]; !inUse {
			break
		}
	}

	c.lastChannel = id
	c.openChannels[id] = nil
	return id, nil
}

// unregisterChannel drops a channel from the registry, discarding any frames
// still queued for it.
func (c *Connection) unregisterChannel(channel uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.openChannels, channel)
}

// IsChannelOpen reports whether the given channel id is currently registered.
func (c *Connection) IsChannelOpen(channel uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.openChannels[channel]
	return ok
}

// createNewChannel opens a fresh channel on the broker and puts it into
// confirm mode. The id is registered before the channel.open RPC so reply
// frames have a queue to land in.
func (c *Connection) createNewChannel() (uint16, error) {
	id, err := c.nextFreeChannelID()
	if err != nil {
		return 0, err
	}

	openArgs := frame.NewMethodArgsBuilder()
	openArgs.WriteShortString("") // out-of-band, deprecated

	_, err = c.doRPCOnChannel(id, protocol.ClassChannel, protocol.MethodChannelOpen, openArgs.Bytes(),
		protocol.Key(protocol.ClassChannel, protocol.MethodChannelOpenOk))
	if err != nil {
		c.unregisterChannel(id)
		return 0, fmt.Errorf("open channel %d: %w", id, err)
	}

	selectArgs := frame.NewMethodArgsBuilder()
	selectArgs.WriteFlags(false) // nowait

	_, err = c.doRPCOnChannel(id, protocol.ClassConfirm, protocol.MethodConfirmSelect, selectArgs.Bytes(),
		protocol.Key(protocol.ClassConfirm, protocol.MethodConfirmSelectOk))
	if err != nil {
		c.unregisterChannel(id)
		return 0, fmt.Errorf("enable confirms on channel %d: %w", id, err)
	}

	c.metrics.ChannelOpened()
	return id, nil
}

// getChannel returns a pooled channel id, opening a new channel only when
// the pool is empty. Pooled ids whose channel was closed by the broker in
// the meantime are skipped.
func (c *Connection) getChannel() (uint16, error) {
	for {
		c.mu.Lock()
		if len(c.freeChannels) == 0 {
			c.mu.Unlock()
			break
		}

		id := c.freeChannels[0]
		c.freeChannels = c.freeChannels[1:]
		_, stillOpen := c.openChannels[id]
		c.mu.Unlock()

		if stillOpen {
			c.metrics.ChannelReused()
			return id, nil
		}
	}

	return c.createNewChannel()
}

// returnChannel puts a channel id back into the pool for reuse.
func (c *Connection) returnChannel(channel uint16) {
	c.mu.Lock()
	c.freeChannels = append(c.freeChannels, channel)
	c.mu.Unlock()

	c.metrics.ChannelPooled()
}
