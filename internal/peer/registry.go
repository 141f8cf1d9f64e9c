// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package peer

import (
	"sync"
	"time"

	"github.com/Thermoquad/gaugelink/pkg/espnow"
	log "github.com/sirupsen/logrus"
)

// Stats counts admission outcomes
type Stats struct {
	Admitted        uint64
	Rejected        uint64
	RejectedSenders int
	Duplicates      uint64
}

// Registry keeps the append-only list of admitted peers
type Registry struct {
	registrar Registrar
	now       func() time.Time

	mu       sync.RWMutex
	peers    []Record
	rejected map[espnow.MAC]uint64
	stats    Stats
}

// NewRegistry creates a registry that installs peers through registrar
func NewRegistry(registrar Registrar) *Registry {
	return &Registry{
		registrar: registrar,
		now:       time.Now,
		rejected:  make(map[espnow.MAC]uint64),
	}
}

// OnAdmissionRequest handles a broadcast announce from a not yet known sender.
// An address that is already admitted is accepted again without touching the
// link layer. On failure the candidate is discarded and an *AdmissionError is
// returned; there is no retry.
func (r *Registry) OnAdmissionRequest(addr espnow.MAC, channel uint8, iface espnow.Interface, key []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(addr) >= 0 {
		r.stats.Duplicates++
		log.WithField("peer", addr).Debug("peer already registered")
		return nil
	}

	record := Record{
		Address:   addr,
		Channel:   channel,
		Interface: iface,
	}
	if len(key) > 0 {
		record.Key = append([]byte(nil), key...)
	}

	if err := r.registrar.RegisterPeer(record); err != nil {
		r.stats.Rejected++
		r.rejected[addr]++
		r.stats.RejectedSenders = len(r.rejected)

		// A rejected sender keeps announcing at its frame rate.
		entry := log.WithFields(log.Fields{
			"peer":     addr,
			"attempts": r.rejected[addr],
			"err":      err,
		})
		if r.rejected[addr] == 1 {
			entry.Warn("peer registration failed")
		} else {
			entry.Debug("peer registration failed")
		}
		return &AdmissionError{Address: addr, Err: err}
	}

	record.RegisteredAt = r.now()
	r.peers = append(r.peers, record)
	r.stats.Admitted++

	log.WithFields(log.Fields{
		"peer":      addr,
		"channel":   channel,
		"interface": iface,
		"encrypted": record.Encrypted(),
		"peers":     len(r.peers),
	}).Info("peer registered")

	return nil
}

// Peers returns a copy of the admitted peers in admission order
func (r *Registry) Peers() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, len(r.peers))
	for i, p := range r.peers {
		if p.Key != nil {
			p.Key = append([]byte(nil), p.Key...)
		}
		out[i] = p
	}
	return out
}

// Len returns the number of admitted peers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Known reports whether addr has been admitted
func (r *Registry) Known(addr espnow.MAC) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(addr) >= 0
}

// Stats returns the admission counters
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func (r *Registry) indexOf(addr espnow.MAC) int {
	for i := range r.peers {
		if r.peers[i].Address == addr {
			return i
		}
	}
	return -1
}
