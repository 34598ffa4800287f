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
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/feeflash/pkg/bootloader"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Connection is an open link to the servo bus, either a local serial port or
// a WebSocket serial bridge
type Connection interface {
	bootloader.Port
	io.Closer
}

// defaultReadTimeout applies until a command sets its own
const defaultReadTimeout = bootloader.DefaultNormalTimeout

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
	mode *serial.Mode
}

// Read returns os.ErrDeadlineExceeded when the read timeout expires with no data
func (s *SerialConnection) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		// go.bug.st/serial reports a timeout as an empty read
		return 0, os.ErrDeadlineExceeded
	}
	return n, nil
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Flush blocks until written bytes have left the UART
func (s *SerialConnection) Flush() error {
	return s.port.Drain()
}

func (s *SerialConnection) SetReadTimeout(d time.Duration) error {
	return s.port.SetReadTimeout(d)
}

// SetBaudRate reconfigures the open port. The stored mode only changes once
// the port has accepted it.
func (s *SerialConnection) SetBaudRate(baud int) error {
	mode := *s.mode
	mode.BaudRate = baud
	if err := s.port.SetMode(&mode); err != nil {
		return err
	}
	*s.mode = mode

	// drop anything received at the old rate
	return s.port.ResetInputBuffer()
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

var (
	// ErrConnectionClosed is returned when reading from a closed WebSocket connection
	ErrConnectionClosed = errors.New("websocket connection closed")

	// ErrBaudRateUnsupported is returned when the bridge cannot change its baud rate
	ErrBaudRateUnsupported = errors.New("baud rate cannot be changed over the websocket bridge")
)

type wsMessage struct {
	data []byte
	err  error
}

// WebSocketConnection wraps a WebSocket serial bridge. Binary messages carry
// raw bus bytes in both directions.
//
// gorilla/websocket connections are unusable after a read deadline expires,
// so a single reader goroutine owns ReadMessage and Read waits on its channel
// with the configured timeout instead.
type WebSocketConnection struct {
	conn      *websocket.Conn
	messages  chan wsMessage
	done      chan struct{}
	closeOnce sync.Once

	buf       []byte
	bufOffset int
	closed    bool // Track if connection has failed/closed
	timeout   time.Duration
}

func newWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	w := &WebSocketConnection{
		conn:     conn,
		messages: make(chan wsMessage, 16),
		done:     make(chan struct{}),
		timeout:  defaultReadTimeout,
	}
	go w.readLoop()
	return w
}

func (w *WebSocketConnection) readLoop() {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case w.messages <- wsMessage{err: err}:
			case <-w.done:
			}
			return
		}

		// Only binary messages carry bus data
		if messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case w.messages <- wsMessage{data: data}:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	// Return immediately if connection is known to be closed
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// If we have buffered data, return it first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case msg := <-w.messages:
		if msg.err != nil {
			w.closed = true
			return 0, msg.err
		}
		w.buf = msg.data
		w.bufOffset = copy(p, w.buf)
		return w.bufOffset, nil
	case <-timer.C:
		return 0, os.ErrDeadlineExceeded
	case <-w.done:
		w.closed = true
		return 0, ErrConnectionClosed
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush is a no-op; every Write is sent as a complete message
func (w *WebSocketConnection) Flush() error {
	return nil
}

func (w *WebSocketConnection) SetReadTimeout(d time.Duration) error {
	w.timeout = d
	return nil
}

// SetBaudRate always fails; the bridge owns the UART settings
func (w *WebSocketConnection) SetBaudRate(baud int) error {
	return fmt.Errorf("%w (requested %d)", ErrBaudRateUnsupported, baud)
}

func (w *WebSocketConnection) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (*SerialConnection, error) {
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

	if err := port.SetReadTimeout(defaultReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	return &SerialConnection{port: port, mode: mode}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (*WebSocketConnection, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Validate scheme
	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	// Create dialer with timeout
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	// Configure TLS for wss://
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	// Build HTTP headers with Basic auth
	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	// Connect
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketConnection(conn), nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(envPrefix + "_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
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

// OpenConnection opens either a serial or WebSocket connection based on flags
func OpenConnection() (Connection, string, error) {
	if wsURL != "" {
		// WebSocket mode
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		logger.Debug().Str("url", wsURL).Msg("websocket connected")
		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		// Serial mode
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, "", err
		}

		logger.Debug().Str("port", portName).Int("baud", baudRate).Msg("serial port opened")
		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// mustOpenConnection opens the connection or exits with code 2
func mustOpenConnection() (Connection, string) {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	return conn, connInfo
}
