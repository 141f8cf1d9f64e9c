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
	"time"

	"github.com/Thermoquad/gaugelink/internal/link"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Connection is the receive side of a bridge dongle. gaugelink only listens;
// nothing is ever written back to the bridge.
type Connection = io.ReadCloser

// maxBridgeMessage bounds a single WebSocket message from the bridge
const maxBridgeMessage = 64 * 1024

// SerialConnection reads envelopes from a bridge on a serial port
type SerialConnection struct {
	name string
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

func (s *SerialConnection) String() string {
	return s.name
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// WebSocketConnection flattens binary WebSocket messages into a byte stream.
// Text messages are bridge status lines and are logged, not decoded.
type WebSocketConnection struct {
	conn *websocket.Conn
	buf  []byte

	mu     sync.Mutex
	closed bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.isClosed() {
		return 0, ErrConnectionClosed
	}

	for len(w.buf) == 0 {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.markClosed()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}

		switch messageType {
		case websocket.BinaryMessage:
			w.buf = data
		case websocket.TextMessage:
			log.WithField("status", strings.TrimSpace(string(data))).Debug("bridge status")
		}
	}

	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

// Close sends a close frame and drops the connection
func (w *WebSocketConnection) Close() error {
	if !w.markClosed() {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return w.conn.Close()
}

func (w *WebSocketConnection) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// markClosed reports whether this call did the closing
func (w *WebSocketConnection) markClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.closed = true
	return true
}

// OpenSerialConnection opens the bridge dongle's serial port. Bytes the
// dongle queued before we attached are discarded so decoding starts clean.
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		log.WithFields(log.Fields{
			"port": portName,
			"err":  err,
		}).Warn("unable to flush serial input")
	}

	return &SerialConnection{
		name: fmt.Sprintf("%s @ %d baud", portName, baudRate),
		port: port,
	}, nil
}

// OpenWebSocketConnection dials a WebSocket bridge, with HTTP Basic auth when
// a username is given
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	headers := http.Header{}
	if username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+auth)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("bridge rejected credentials for %q: %w", username, err)
		}
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	conn.SetReadLimit(maxBridgeMessage)

	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword returns GAUGELINK_PASSWORD, or asks for the bridge password on
// the terminal. Piped input is read as a single line.
func GetPassword() (string, error) {
	if pw := os.Getenv("GAUGELINK_PASSWORD"); pw != "" {
		return pw, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(os.Stderr, "Bridge password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// bridgeDialer returns a dialer for the configured serial or WebSocket
// bridge. The password is asked for once, up front.
func bridgeDialer() (link.Dialer, string, error) {
	if cfg.Link.URL != "" {
		password := ""
		if cfg.Link.Username != "" {
			var err error
			if password, err = GetPassword(); err != nil {
				return nil, "", err
			}
		}
		dial := func() (io.ReadCloser, error) {
			return OpenWebSocketConnection(cfg.Link.URL, cfg.Link.Username, password, cfg.Link.NoSSLVerify)
		}
		return dial, fmt.Sprintf("WebSocket: %s", cfg.Link.URL), nil
	}

	if cfg.Link.Port != "" {
		dial := func() (io.ReadCloser, error) {
			return OpenSerialConnection(cfg.Link.Port, cfg.Link.Baud)
		}
		return dial, fmt.Sprintf("Serial: %s @ %d baud", cfg.Link.Port, cfg.Link.Baud), nil
	}

	return nil, "", nil
}

// OpenSources builds a link source for every configured connection
func OpenSources(handler link.EnvelopeHandler) ([]link.Retryable, []string, error) {
	var sources []link.Retryable
	var infos []string

	dial, info, err := bridgeDialer()
	if err != nil {
		return nil, nil, err
	}
	if dial != nil {
		sources = append(sources, link.NewStreamSource(info, dial, handler))
		infos = append(infos, info)
	}

	if cfg.Link.UDP != "" {
		sources = append(sources, link.NewUDPSource(cfg.Link.UDP, handler))
		infos = append(infos, fmt.Sprintf("UDP: %s", cfg.Link.UDP))
	}

	if cfg.MQTT.Broker != "" {
		sources = append(sources, link.NewMQTTSource(mqttConfig(), handler))
		infos = append(infos, fmt.Sprintf("MQTT: %s (%s/+/+)", cfg.MQTT.Broker, cfg.MQTT.Prefix))
	}

	if len(sources) == 0 {
		return nil, nil, fmt.Errorf("one of --port, --url, --udp or --mqtt must be specified")
	}
	return sources, infos, nil
}

func mqttConfig() link.MQTTConfig {
	return link.MQTTConfig{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.Prefix,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
	}
}
