// ABOUTME: Frame transports for shell connections
// ABOUTME: WebSocket messages or newline-delimited JSON over TCP, picked by scheme

package rpc

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// framer reads and writes whole frames. ReadFrame returns one frame without
// its delimiter; implementations must return retainable slices.
type framer interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

// dialFramer connects to addr and returns the transport matching its scheme.
// Bare host:port addresses dial plain TCP.
func dialFramer(ctx context.Context, addr string, writeTimeout time.Duration) (framer, error) {
	if !strings.Contains(addr, "://") {
		return dialTCP(ctx, addr, writeTimeout)
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", addr, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
		if err != nil {
			return nil, err
		}
		return &wsFramer{conn: conn, writeTimeout: writeTimeout}, nil
	case "tcp":
		return dialTCP(ctx, u.Host, writeTimeout)
	default:
		return nil, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, addr)
	}
}

func dialTCP(ctx context.Context, hostport string, writeTimeout time.Duration) (framer, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, err
	}
	return newLineFramer(conn, writeTimeout), nil
}

// wsFramer carries one frame per WebSocket message.
type wsFramer struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (f *wsFramer) ReadFrame() ([]byte, error) {
	_, data, err := f.conn.ReadMessage()
	return data, err
}

func (f *wsFramer) WriteFrame(data []byte) error {
	if f.writeTimeout > 0 {
		if err := f.conn.SetWriteDeadline(time.Now().Add(f.writeTimeout)); err != nil {
			return err
		}
	}
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

func (f *wsFramer) Close() error {
	return f.conn.Close()
}

// lineFramer carries one frame per newline-terminated line.
type lineFramer struct {
	conn         net.Conn
	reader       *bufio.Reader
	writeTimeout time.Duration
}

func newLineFramer(conn net.Conn, writeTimeout time.Duration) *lineFramer {
	return &lineFramer{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writeTimeout: writeTimeout,
	}
}

func (f *lineFramer) ReadFrame() ([]byte, error) {
	for {
		line, err := f.reader.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if err != nil {
			// A final unterminated line still counts as a frame.
			if err == io.EOF && len(line) > 0 {
				return line, nil
			}
			return nil, err
		}
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

func (f *lineFramer) WriteFrame(data []byte) error {
	if f.writeTimeout > 0 {
		if err := f.conn.SetWriteDeadline(time.Now().Add(f.writeTimeout)); err != nil {
			return err
		}
	}
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	_, err := f.conn.Write(buf)
	return err
}

func (f *lineFramer) Close() error {
	return f.conn.Close()
}
