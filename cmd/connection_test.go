// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/gaugelink/internal/link"
	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu        sync.Mutex
	envelopes []*espnow.Envelope
	errors    int
}

func (h *recordingHandler) Deliver(e *espnow.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.envelopes = append(h.envelopes, e)
}

func (h *recordingHandler) DecodeError(string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors++
}

// newBridgeServer serves one WebSocket session that sends messages and closes
func newBridgeServer(t *testing.T, messages func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		messages(conn)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testWSURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketConnection_StreamsBinaryMessages(t *testing.T) {
	sender := espnow.MAC{0x02, 0x10, 0x20, 0x30, 0x40, 0x50}
	first := espnow.MustEncodeEnvelope(sender, espnow.BroadcastMAC, []byte{0x01})
	second := espnow.MustEncodeEnvelope(sender, espnow.BroadcastMAC, []byte{0x02, 0x03})
	split := len(second) / 2

	srv := newBridgeServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("bridge ready"))
		_ = conn.WriteMessage(websocket.BinaryMessage, append(append([]byte{}, first...), second[:split]...))
		_ = conn.WriteMessage(websocket.BinaryMessage, second[split:])
	})

	conn, err := OpenWebSocketConnection(testWSURL(srv), "admin", "secret", false)
	require.NoError(t, err)
	defer conn.Close()

	handler := &recordingHandler{}
	err = link.ReadEnvelopes(conn, "ws", handler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")

	require.Len(t, handler.envelopes, 2)
	assert.Equal(t, []byte{0x01}, handler.envelopes[0].Payload())
	assert.Equal(t, []byte{0x02, 0x03}, handler.envelopes[1].Payload())
	assert.Zero(t, handler.errors)

	_, err = conn.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.NoError(t, conn.Close(), "closing twice is harmless")
}

func TestOpenWebSocketConnection_Errors(t *testing.T) {
	srv := newBridgeServer(t, func(*websocket.Conn) {})

	_, err := OpenWebSocketConnection(testWSURL(srv), "admin", "wrong", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected credentials")

	_, err = OpenWebSocketConnection(srv.URL, "admin", "secret", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported URL scheme")
}
