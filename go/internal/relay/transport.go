package relay

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/brickrelay/go/internal/relay/protocol"
)

// Transport is one framed, bidirectional client connection
type Transport interface {
	// ReadMessage blocks for the next client frame. A *protocol.DecodeError
	// means the frame was unusable but the stream is still healthy.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
	RemoteAddr() string
	Kind() string
}

// TransportConfig holds per-connection I/O limits
type TransportConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	// Zero disables the deadline. Idle readers are not reaped by default.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultTransportConfig returns default connection limits
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxMessageSize: 64 * 1024,
		WriteTimeout:   10 * time.Second,
	}
}

type tcpTransport struct {
	conn   net.Conn
	frames *protocol.FrameReader
	cfg    TransportConfig
}

// NewTCPTransport frames a raw stream connection as newline-delimited JSON
func NewTCPTransport(conn net.Conn, cfg TransportConfig) Transport {
	return &tcpTransport{
		conn:   conn,
		frames: protocol.NewFrameReader(conn, cfg.MaxMessageSize),
		cfg:    cfg,
	}
}

func (t *tcpTransport) ReadMessage() ([]byte, error) {
	if t.cfg.ReadTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}
	return t.frames.Next()
}

func (t *tcpTransport) WriteMessage(data []byte) error {
	if t.cfg.WriteTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	frame := make([]byte, len(data)+1)
	copy(frame, data)
	frame[len(data)] = '\n'

	if _, err := t.conn.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *tcpTransport) Kind() string {
	return "tcp"
}

type wsTransport struct {
	conn *websocket.Conn
	cfg  TransportConfig
}

// wsReadLimitFactor bounds how much of an oversized frame is drained before
// the connection is given up on
const wsReadLimitFactor = 16

// NewWebSocketTransport uses one WebSocket text frame per message
func NewWebSocketTransport(conn *websocket.Conn, cfg TransportConfig) Transport {
	conn.SetReadLimit(int64(cfg.MaxMessageSize) * wsReadLimitFactor)
	return &wsTransport{conn: conn, cfg: cfg}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	if t.cfg.ReadTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}

	_, r, err := t.conn.NextReader()
	if err != nil {
		return nil, wsReadError(err)
	}

	limit := t.cfg.MaxMessageSize
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, wsReadError(err)
	}
	if len(data) > limit {
		// Drain the rest of the frame so the next one starts clean
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, wsReadError(err)
		}
		return nil, &protocol.DecodeError{Reason: fmt.Sprintf("message exceeds %d bytes", limit)}
	}
	return data, nil
}

func wsReadError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	if t.cfg.WriteTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	deadline := time.Now().Add(time.Second)
	// Best effort; the peer may already be gone
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *wsTransport) Kind() string {
	return "websocket"
}

// isClosedConnError reports errors that only mean the peer or we hung up
func isClosedConnError(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
