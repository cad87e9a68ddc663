package amqp

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

// Table is an alias for AMQP field table
type Table = protocol.Table

// Properties represents the basic-class content properties of a message.
// Decoded properties own their memory; they never alias frame buffers.
type Properties struct {
	ContentType     string
	ContentEncoding string
	Headers         Table
	DeliveryMode    uint8
	Priority        uint8
	CorrelationID   string
	ReplyTo         string
	Expiration      string
	MessageID       string
	Timestamp       time.Time
	Type            string
	UserID          string
	AppID           string
}

// Publishing represents a message to publish
type Publishing struct {
	Properties
	Body []byte
}

// Property presence flags, high bit first per the basic-properties layout.
const (
	flagContentType     = 0x8000
	flagContentEncoding = 0x4000
	flagHeaders         = 0x2000
	flagDeliveryMode    = 0x1000
	flagPriority        = 0x0800
	flagCorrelationID   = 0x0400
	flagReplyTo         = 0x0200
	flagExpiration      = 0x0100
	flagMessageID       = 0x0080
	flagTimestamp       = 0x0040
	flagType            = 0x0020
	flagUserID          = 0x0010
	flagAppID           = 0x0008
)

// EncodeProperties encodes properties to wire format. Zero-valued fields are
// omitted from the flag word and the payload.
func EncodeProperties(props Properties) ([]byte, error) {
	flags := uint16(0)
	if props.ContentType != "" {
		flags |= flagContentType
	}
	if props.ContentEncoding != "" {
		flags |= flagContentEncoding
	}
	if len(props.Headers) > 0 {
		flags |= flagHeaders
	}
	if props.DeliveryMode != 0 {
		flags |= flagDeliveryMode
	}
	if props.Priority != 0 {
		flags |= flagPriority
	}
	if props.CorrelationID != "" {
		flags |= flagCorrelationID
	}
	if props.ReplyTo != "" {
		flags |= flagReplyTo
	}
	if props.Expiration != "" {
		flags |= flagExpiration
	}
	if props.MessageID != "" {
		flags |= flagMessageID
	}
	if !props.Timestamp.IsZero() {
		flags |= flagTimestamp
	}
	if props.Type != "" {
		flags |= flagType
	}
	if props.UserID != "" {
		flags |= flagUserID
	}
	if props.AppID != "" {
		flags |= flagAppID
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, flags); err != nil {
		return nil, err
	}

	writeShort := func(flag uint16, s string) error {
		if flags&flag == 0 {
			return nil
		}
		return protocol.WriteShortString(buf, s)
	}

	if err := writeShort(flagContentType, props.ContentType); err != nil {
		return nil, err
	}
	if err := writeShort(flagContentEncoding, props.ContentEncoding); err != nil {
		return nil, err
	}
	if flags&flagHeaders != 0 {
		if err := protocol.WriteTable(buf, props.Headers); err != nil {
			return nil, err
		}
	}
	if flags&flagDeliveryMode != 0 {
		buf.WriteByte(props.DeliveryMode)
	}
	if flags&flagPriority != 0 {
		buf.WriteByte(props.Priority)
	}
	if err := writeShort(flagCorrelationID, props.CorrelationID); err != nil {
		return nil, err
	}
	if err := writeShort(flagReplyTo, props.ReplyTo); err != nil {
		return nil, err
	}
	if err := writeShort(flagExpiration, props.Expiration); err != nil {
		return nil, err
	}
	if err := writeShort(flagMessageID, props.MessageID); err != nil {
		return nil, err
	}
	if flags&flagTimestamp != 0 {
		if err := binary.Write(buf, binary.BigEndian, uint64(props.Timestamp.Unix())); err != nil {
			return nil, err
		}
	}
	if err := writeShort(flagType, props.Type); err != nil {
		return nil, err
	}
	if err := writeShort(flagUserID, props.UserID); err != nil {
		return nil, err
	}
	if err := writeShort(flagAppID, props.AppID); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeProperties decodes properties from wire format. The result holds
// copies of every field, so the input buffer may be reused afterwards.
func DecodeProperties(data []byte) (Properties, error) {
	props := Properties{}
	buf := bytes.NewReader(data)

	var flags uint16
	if err := binary.Read(buf, binary.BigEndian, &flags); err != nil {
		return props, err
	}

	readShort := func(flag uint16, dst *string) error {
		if flags&flag == 0 {
			return nil
		}
		s, err := protocol.ReadShortString(buf)
		if err != nil {
			return err
		}
		*dst = s
		return nil
	}

	if err := readShort(flagContentType, &props.ContentType); err != nil {
		return props, err
	}
	if err := readShort(flagContentEncoding, &props.ContentEncoding); err != nil {
		return props, err
	}
	if flags&flagHeaders != 0 {
		headers, err := protocol.ReadTable(buf)
		if err != nil {
			return props, err
		}
		props.Headers = headers
	}
	if flags&flagDeliveryMode != 0 {
		if err := binary.Read(buf, binary.BigEndian, &props.DeliveryMode); err != nil {
			return props, err
		}
	}
	if flags&flagPriority != 0 {
		if err := binary.Read(buf, binary.BigEndian, &props.Priority); err != nil {
			return props, err
		}
	}
	if err := readShort(flagCorrelationID, &props.CorrelationID); err != nil {
		return props, err
	}
	if err := readShort(flagReplyTo, &props.ReplyTo); err != nil {
		return props, err
	}
	if err := readShort(flagExpiration, &props.Expiration); err != nil {
		return props, err
	}
	if err := readShort(flagMessageID, &props.MessageID); err != nil {
		return props, err
	}
	if flags&flagTimestamp != 0 {
		var timestamp uint64
		if err := binary.Read(buf, binary.BigEndian, &timestamp); err != nil {
			return props, err
		}
		props.Timestamp = time.Unix(int64(timestamp), 0)
	}
	if err := readShort(flagType, &props.Type); err != nil {
		return props, err
	}
	if err := readShort(flagUserID, &props.UserID); err != nil {
		return props, err
	}
	if err := readShort(flagAppID, &props.AppID); err != nil {
		return props, err
	}

	return props, nil
}

// Predefined property sets for common publishing styles.
var (
	// MinimalBasic is an empty set of properties
	MinimalBasic = Properties{}

	// MinimalPersistentBasic has only persistent delivery mode
	MinimalPersistentBasic = Properties{
		DeliveryMode: protocol.DeliveryModePersistent,
	}

	// Basic is basic properties with default content type
	Basic = Properties{
		ContentType:  "application/octet-stream",
		DeliveryMode: protocol.DeliveryModeNonPersistent,
	}

	// PersistentBasic is basic properties with persistent delivery
	PersistentBasic = Properties{
		ContentType:  "application/octet-stream",
		DeliveryMode: protocol.DeliveryModePersistent,
	}

	// TextPlain is properties for text messages
	TextPlain = Properties{
		ContentType:  "text/plain",
		DeliveryMode: protocol.DeliveryModeNonPersistent,
	}

	// PersistentTextPlain is properties for persistent text messages
	PersistentTextPlain = Properties{
		ContentType:  "text/plain",
		DeliveryMode: protocol.DeliveryModePersistent,
	}
)
