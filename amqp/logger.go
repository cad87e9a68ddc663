package amqp

// Logger interface for custom logging
type Logger interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Printf(format string, v ...interface{}) {}
func (nopLogger) Println(v ...interface{})               {}

// logf logs through the configured logger.
func (c *Connection) logf(format string, v ...interface{}) {
	c.logger.Printf(format, v...)
}
