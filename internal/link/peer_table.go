// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link is the transport boundary between the bridge and the receiver.
//
// It owns the bounded link-layer peer table, routes incoming envelopes to
// admission or to the telemetry channel, and provides frame sources for the
// serial/WebSocket bridge, UDP relays and MQTT relays.
package link

import (
	"sync"

	"github.com/Thermoquad/gaugelink/internal/peer"
	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/pkg/errors"
)

// Peer table errors
var (
	ErrPeerExists      = errors.New("peer already exists")
	ErrPeerTableFull   = errors.New("peer table full")
	ErrInvalidPeerAddr = errors.New("invalid peer address")
	ErrInvalidChannel  = errors.New("invalid channel")
	ErrInvalidKey      = errors.New("invalid key length")
)

// PeerTable is the link-layer peer list with a fixed capacity
type PeerTable struct {
	capacity int

	mu    sync.RWMutex
	peers map[espnow.MAC]peer.Record
}

// NewPeerTable creates a table holding at most capacity peers.
// A capacity <= 0 selects espnow.MaxPeers.
func NewPeerTable(capacity int) *PeerTable {
	if capacity <= 0 {
		capacity = espnow.MaxPeers
	}
	return &PeerTable{
		capacity: capacity,
		peers:    make(map[espnow.MAC]peer.Record),
	}
}

// RegisterPeer installs a peer, enforcing the same rules as the radio stack
func (t *PeerTable) RegisterPeer(r peer.Record) error {
	if r.Address.IsBroadcast() || r.Address.IsMulticast() || r.Address.IsZero() {
		return errors.Wrapf(ErrInvalidPeerAddr, "%s", r.Address)
	}
	if r.Channel > espnow.MaxChannel {
		return errors.Wrapf(ErrInvalidChannel, "%d (max %d)", r.Channel, espnow.MaxChannel)
	}
	if n := len(r.Key); n != 0 && n != espnow.KeySize {
		return errors.Wrapf(ErrInvalidKey, "%d bytes (expected %d)", n, espnow.KeySize)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.peers[r.Address]; ok {
		return errors.Wrapf(ErrPeerExists, "%s", r.Address)
	}
	if len(t.peers) >= t.capacity {
		return errors.Wrapf(ErrPeerTableFull, "%d peers", t.capacity)
	}

	if r.Key != nil {
		r.Key = append([]byte(nil), r.Key...)
	}
	t.peers[r.Address] = r
	return nil
}

// Contains reports whether addr is installed
func (t *PeerTable) Contains(addr espnow.MAC) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.peers[addr]
	return ok
}

// Len returns the number of installed peers
func (t *PeerTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// Capacity returns the maximum number of peers
func (t *PeerTable) Capacity() int {
	return t.capacity
}
