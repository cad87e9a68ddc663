package amqp

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/electronifie/SimpleAmqpClient/internal/frame"
	"github.com/electronifie/SimpleAmqpClient/internal/protocol"
)

// ConnectionFactory creates and configures AMQP connections
type ConnectionFactory struct {
	// Connection settings
	Host     string
	Port     int
	VHost    string
	Username string
	Password string

	// TLS configuration
	TLS *tls.Config

	// Timeouts
	ConnectionTimeout time.Duration
	HandshakeTimeout  time.Duration

	// AMQP parameters
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  time.Duration

	// Consumer tag policy: when set, registering a tag that already
	// exists rebinds it instead of failing.
	ConsumerTagReuse bool

	// Client properties sent to server
	ClientProperties map[string]interface{}

	// Logger
	Logger Logger

	// Metrics
	Metrics MetricsCollector
}

// NewConnectionFactory creates a new ConnectionFactory with sensible defaults
func NewConnectionFactory(opts ...FactoryOption) *ConnectionFactory {
	cf := &ConnectionFactory{
		Host:              "localhost",
		Port:              5672,
		VHost:             "/",
		Username:          "guest",
		Password:          "guest",
		ConnectionTimeout: 60 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		Heartbeat:         0, // disabled: nothing pumps heartbeats between calls
		ChannelMax:        0, // 0 = server decides
		FrameMax:          0, // 0 = server decides
		ClientProperties:  defaultClientProperties(),
	}

	for _, opt := range opts {
		opt(cf)
	}

	return cf
}

// Validate validates the ConnectionFactory configuration
func (cf *ConnectionFactory) Validate() error {
	if cf.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if cf.Port <= 0 || cf.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cf.Port)
	}

	if cf.VHost == "" {
		return fmt.Errorf("vhost cannot be empty")
	}

	if cf.Username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if cf.ConnectionTimeout < 0 {
		return fmt.Errorf("connection timeout cannot be negative, got %v", cf.ConnectionTimeout)
	}
	if cf.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake timeout cannot be negative, got %v", cf.HandshakeTimeout)
	}

	if cf.Heartbeat < 0 {
		return fmt.Errorf("heartbeat cannot be negative, got %v", cf.Heartbeat)
	}

	// 0 means server decides; 4096 is the protocol minimum otherwise
	if cf.FrameMax != 0 && cf.FrameMax < protocol.FrameMinSize {
		return fmt.Errorf("frame max must be 0 or >= %d, got %d", protocol.FrameMinSize, cf.FrameMax)
	}

	return nil
}

// NewConnection dials the broker, performs the AMQP handshake and returns a
// ready-to-use connection.
func (cf *ConnectionFactory) NewConnection() (*Connection, error) {
	if err := cf.Validate(); err != nil {
		return nil, err
	}

	netConn, err := cf.dial()
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	reader := frame.NewReader(netConn, protocol.FrameMinSize)
	writer := frame.NewWriter(netConn, protocol.FrameMinSize)

	if cf.HandshakeTimeout > 0 {
		netConn.SetDeadline(time.Now().Add(cf.HandshakeTimeout))
	}

	channelMax, frameMax, err := cf.handshake(reader, writer)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	netConn.SetDeadline(time.Time{})

	reader.SetMaxFrameSize(frameMax)
	writer.SetMaxFrameSize(frameMax)

	return newConnection(cf, newTCPFrameSource(netConn, reader, writer), channelMax, frameMax), nil
}

// dial establishes a network connection (TCP or TLS)
func (cf *ConnectionFactory) dial() (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cf.Host, cf.Port)

	dialer := &net.Dialer{
		Timeout: cf.ConnectionTimeout,
	}

	if cf.TLS != nil {
		return tls.DialWithDialer(dialer, "tcp", addr, cf.TLS)
	}

	return dialer.Dial("tcp", addr)
}

// handshake runs the start/tune/open exchange on channel 0 and returns the
// negotiated channel-max and frame-max.
func (cf *ConnectionFactory) handshake(reader *frame.Reader, writer *frame.Writer) (uint16, uint32, error) {
	if err := writer.WriteProtocolHeader(); err != nil {
		return 0, 0, fmt.Errorf("write protocol header: %w", err)
	}

	startFrame, err := reader.ReadFrame()
	if err != nil {
		return 0, 0, fmt.Errorf("read start frame: %w", err)
	}

	if err := cf.handleConnectionStart(startFrame); err != nil {
		return 0, 0, fmt.Errorf("handle start: %w", err)
	}

	if err := cf.sendConnectionStartOk(writer); err != nil {
		return 0, 0, fmt.Errorf("send start-ok: %w", err)
	}

	tuneFrame, err := reader.ReadFrame()
	if err != nil {
		return 0, 0, fmt.Errorf("read tune frame: %w", err)
	}

	channelMax, frameMax, heartbeat, err := cf.handleConnectionTune(tuneFrame)
	if err != nil {
		return 0, 0, fmt.Errorf("handle tune: %w", err)
	}

	if err := cf.sendConnectionTuneOk(writer, channelMax, frameMax, heartbeat); err != nil {
		return 0, 0, fmt.Errorf("send tune-ok: %w", err)
	}

	if err := cf.sendConnectionOpen(writer); err != nil {
		return 0, 0, fmt.Errorf("send open: %w", err)
	}

	openOkFrame, err := reader.ReadFrame()
	if err != nil {
		return 0, 0, fmt.Errorf("read open-ok frame: %w", err)
	}

	method, err := openOkFrame.ParseMethod()
	if err != nil {
		return 0, 0, fmt.Errorf("handle open-ok: %w", err)
	}

	if !method.Is(protocol.ClassConnection, protocol.MethodConnectionOpenOk) {
		return 0, 0, fmt.Errorf("expected Connection.OpenOk, got %d.%d", method.ClassID, method.MethodID)
	}

	return channelMax, frameMax, nil
}

// handleConnectionStart validates the Connection.Start method
func (cf *ConnectionFactory) handleConnectionStart(f *frame.Frame) error {
	method, err := f.ParseMethod()
	if err != nil {
		return err
	}

	if !method.Is(protocol.ClassConnection, protocol.MethodConnectionStart) {
		return fmt.Errorf("expected Connection.Start, got %d.%d", method.ClassID, method.MethodID)
	}

	args := frame.NewMethodArgs(method.Args)
	versionMajor, _ := args.ReadUint8()
	versionMinor, _ := args.ReadUint8()
	_, _ = args.ReadTable()      // server-properties
	_, _ = args.ReadLongString() // mechanisms
	_, _ = args.ReadLongString() // locales

	if versionMajor != 0 || versionMinor != 9 {
		return fmt.Errorf("unsupported AMQP version: %d.%d", versionMajor, versionMinor)
	}

	return nil
}

// sendConnectionStartOk sends Connection.StartOk with PLAIN credentials
func (cf *ConnectionFactory) sendConnectionStartOk(writer *frame.Writer) error {
	builder := frame.NewMethodArgsBuilder()

	if err := builder.WriteTable(cf.ClientProperties); err != nil {
		return err
	}

	if err := builder.WriteShortString("PLAIN"); err != nil {
		return err
	}

	response := fmt.Sprintf("\x00%s\x00%s", cf.Username, cf.Password)
	if err := builder.WriteLongString([]byte(response)); err != nil {
		return err
	}

	if err := builder.WriteShortString("en_US"); err != nil {
		return err
	}

	f := frame.NewMethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionStartOk, builder.Bytes())
	return writer.WriteFrame(f)
}

// handleConnectionTune negotiates channel-max, frame-max and heartbeat
// against the server's Connection.Tune parameters.
func (cf *ConnectionFactory) handleConnectionTune(f *frame.Frame) (uint16, uint32, uint16, error) {
	method, err := f.ParseMethod()
	if err != nil {
		return 0, 0, 0, err
	}

	if !method.Is(protocol.ClassConnection, protocol.MethodConnectionTune) {
		return 0, 0, 0, fmt.Errorf("expected Connection.Tune, got %d.%d", method.ClassID, method.MethodID)
	}

	args := frame.NewMethodArgs(method.Args)
	serverChannelMax, _ := args.ReadUint16()
	serverFrameMax, _ := args.ReadUint32()
	serverHeartbeat, _ := args.ReadUint16()

	channelMax := serverChannelMax
	if cf.ChannelMax > 0 && cf.ChannelMax < serverChannelMax {
		channelMax = cf.ChannelMax
	}
	if channelMax == 0 {
		channelMax = 65535
	}

	frameMax := serverFrameMax
	if cf.FrameMax > 0 && cf.FrameMax < serverFrameMax {
		frameMax = cf.FrameMax
	}
	if frameMax == 0 {
		frameMax = 131072
	}

	heartbeat := uint16(cf.Heartbeat.Seconds())
	if heartbeat > serverHeartbeat {
		heartbeat = serverHeartbeat
	}

	return channelMax, frameMax, heartbeat, nil
}

// sendConnectionTuneOk acknowledges the negotiated tune parameters
func (cf *ConnectionFactory) sendConnectionTuneOk(writer *frame.Writer, channelMax uint16, frameMax uint32, heartbeat uint16) error {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteUint16(channelMax)
	builder.WriteUint32(frameMax)
	builder.WriteUint16(heartbeat)

	f := frame.NewMethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionTuneOk, builder.Bytes())
	return writer.WriteFrame(f)
}

// sendConnectionOpen sends Connection.Open for the configured vhost
func (cf *ConnectionFactory) sendConnectionOpen(writer *frame.Writer) error {
	builder := frame.NewMethodArgsBuilder()
	builder.WriteShortString(cf.VHost)
	builder.WriteShortString("") // capabilities (deprecated, empty)
	builder.WriteFlags(false)    // insist flag (deprecated, always false)

	f := frame.NewMethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionOpen, builder.Bytes())
	return writer.WriteFrame(f)
}

// defaultClientProperties returns default client properties
func defaultClientProperties() map[string]interface{} {
	// Flat structure to avoid nested map encoding issues
	return map[string]interface{}{
		"product":  "SimpleAmqpClient",
		"version":  "1.0.0",
		"platform": "Go",
		"capabilities.publisher_confirms":         true,
		"capabilities.exchange_exchange_bindings": true,
		"capabilities.basic.nack":                 true,
	}
}
