package amqp

import (
	"fmt"

	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

// readContent reads a content header frame and the body frames that follow
// it, reassembling the body until the announced size is reached. The caller
// must have just consumed the method frame (basic.deliver, basic.get-ok or
// basic.return) that announces the content.
func (c *Connection) readContent(channel uint16) (Properties, []byte, error) {
	f, ok, err := c.getNextFrameOnChannel(channel, WaitForever)
	if err != nil {
		return Properties{}, nil, err
	}
	if !ok {
		return Properties{}, nil, &InternalError{Reason: "unbounded content wait returned no frame"}
	}

	if f.Type != protocol.FrameHeader {
		return Properties{}, nil, &ProtocolError{Reason: fmt.Sprintf("expected content header on channel %d, got %s", channel, f)}
	}

	header, err := f.ParseHeader()
	if err != nil {
		return Properties{}, nil, &ProtocolError{Reason: err.Error()}
	}

	props, err := DecodeProperties(header.Properties)
	if err != nil {
		return Properties{}, nil, &ProtocolError{Reason: fmt.Sprintf("decode content properties: %v", err)}
	}

	body := make([]byte, 0, header.BodySize)
	for uint64(len(body)) < header.BodySize {
		f, ok, err := c.getNextFrameOnChannel(channel, WaitForever)
		if err != nil {
			return Properties{}, nil, err
		}
		if !ok {
			return Properties{}, nil, &InternalError{Reason: "unbounded content wait returned no frame"}
		}

		if f.Type != protocol.FrameBody {
			return Properties{}, nil, &ProtocolError{Reason: fmt.Sprintf("expected content body on channel %d, got %s", channel, f)}
		}

		body = append(body, f.Payload...)
	}

	return props, body, nil
}
