// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/pusgate/internal/config"
	"github.com/Thermoquad/pusgate/pkg/pus"
)

// Connection provides a common interface for reading/writing bytes from serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection carries packets in binary WebSocket messages. Reads
// return message bytes in order, so a packet may span several reads.
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool // set once a read fails, the socket is not reused
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	// Fail fast once the socket has failed
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// Drain the rest of the current message first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	// Read the next message, looping over non-binary ones
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			// Remember the failure so later reads do not block on a dead socket
			w.closed = true
			return 0, err
		}
		// space packets only travel in binary messages
		if messageType != websocket.BinaryMessage {
			continue
		}

		// Keep the message and hand out as much as fits
		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	// Parse the URL before dialing
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Only plain and TLS WebSocket schemes are supported
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	// Dialer with a handshake timeout
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	// TLS settings for wss://, optionally skipping certificate checks
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	// HTTP Basic auth header for the bridge
	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	// Dial with an overall deadline
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// Environment variable takes precedence
	if pw := os.Getenv("PUSGATE_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt on stderr so stdout stays clean for packet output
	fmt.Fprint(os.Stderr, "Password: ")

	// Read without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// not a terminal, read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket connection from the
// link configuration
func OpenConnection(link config.LinkConfig) (Connection, string, error) {
	if link.URL != "" {
		// WebSocket mode, asking for a password only when a user is set
		password := ""
		if link.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(link.URL, link.Username, password, link.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", link.URL), nil
	}

	if link.Port != "" {
		// Serial mode
		conn, err := OpenSerialConnection(link.Port, link.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", link.Port, link.Baud), nil
	}

	return nil, "", errors.New("either --port or --url must be specified")
}

// linkEvent is one decoded packet or decode error read from a link
type linkEvent struct {
	packet *pus.Packet
	err    error
}

// readPackets decodes packets from r until ctx is done or the link fails.
// r is closed when ctx is done to unblock a pending read. The returned
// channel is closed when reading stops.
func readPackets(ctx context.Context, r io.ReadCloser, opts pus.DecodeOptions) <-chan linkEvent {
	events := make(chan linkEvent, 16)
	go func() {
		defer close(events)
		stop := context.AfterFunc(ctx, func() { r.Close() })
		defer stop()

		decoder := pus.NewStreamDecoder(opts)
		buf := make([]byte, 512)
		for {
			n, err := r.Read(buf)
			if err != nil {
				// closed links are not retried
				if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) || ctx.Err() != nil {
					slog.Info("Connection closed")
					return
				}
				slog.Warn("Read error", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
				}
				continue
			}
			decoder.Write(buf[:n])
			for {
				packet, err := decoder.Next()
				if packet == nil && err == nil {
					break
				}
				select {
				case events <- linkEvent{packet: packet, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events
}
