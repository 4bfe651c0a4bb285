package session

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// ErrLineTooLong is returned when an inbound line exceeds the configured limit.
var ErrLineTooLong = errors.New("inbound line exceeds limit")

// Transport moves whole envelopes. ReadLine is only called from the session's
// reader goroutine and WriteLine only from its writer goroutine.
type Transport interface {
	ReadLine() ([]byte, error)
	WriteLine(line []byte) error
	Close() error
	RemoteAddr() string
	Name() string
}

type lineTransport struct {
	conn         net.Conn
	scanner      *bufio.Scanner
	writer       *bufio.Writer
	writeTimeout time.Duration
	closeOnce    sync.Once
}

// NewLineTransport frames envelopes as newline-terminated lines over a stream.
func NewLineTransport(conn net.Conn, maxLine int, writeTimeout time.Duration) Transport {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLine)
	return &lineTransport{
		conn:         conn,
		scanner:      scanner,
		writer:       bufio.NewWriter(conn),
		writeTimeout: writeTimeout,
	}
}

func (t *lineTransport) ReadLine() ([]byte, error) {
	if !t.scanner.Scan() {
		err := t.scanner.Err()
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrLineTooLong
		}
		if err == nil {
			return nil, io.EOF
		}
		return nil, err
	}
	return t.scanner.Bytes(), nil
}

func (t *lineTransport) WriteLine(line []byte) error {
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	if _, err := t.writer.Write(line); err != nil {
		return err
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return err
	}
	return t.writer.Flush()
}

func (t *lineTransport) Close() error {
	var err error
	t.closeOnce.Do(func() { err = t.conn.Close() })
	return err
}

func (t *lineTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

func (t *lineTransport) Name() string { return TransportTCP }

type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
}

// NewWebSocketTransport carries one envelope per text frame.
func NewWebSocketTransport(conn *websocket.Conn, maxLine int, writeTimeout time.Duration) Transport {
	conn.SetReadLimit(int64(maxLine))
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *wsTransport) ReadLine() ([]byte, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, ErrLineTooLong
			}
			return nil, err
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) WriteLine(line []byte) error {
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return t.conn.WriteMessage(websocket.TextMessage, line)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

func (t *wsTransport) Name() string { return TransportWebSocket }
