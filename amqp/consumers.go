package amqp

// addConsumer registers a consumer tag against the channel its deliveries
// arrive on. Duplicate tags are rejected unless tag reuse was enabled on the
// factory, in which case the registration is rebound to the new channel.
func (c *Connection) addConsumer(tag string, channel uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.consumers[tag]; exists {
		if c.factory == nil || !c.factory.ConsumerTagReuse {
			return ErrConsumerTagInUse
		}
	}

	c.consumers[tag] = channel
	return nil
}

// removeConsumer unregisters a consumer tag and returns the channel it was
// bound to.
func (c *Connection) removeConsumer(tag string) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel, ok := c.consumers[tag]
	if !ok {
		return 0, ErrUnknownConsumerTag
	}

	delete(c.consumers, tag)
	return channel, nil
}

// consumerChannel resolves a consumer tag to its channel.
func (c *Connection) consumerChannel(tag string) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel, ok := c.consumers[tag]
	if !ok {
		return 0, ErrUnknownConsumerTag
	}

	return channel, nil
}
