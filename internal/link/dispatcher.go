// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"sync"

	"github.com/Thermoquad/gaugelink/pkg/espnow"
	log "github.com/sirupsen/logrus"
)

// FrameSink receives payloads from admitted senders
type FrameSink interface {
	OnFrame(sender espnow.MAC, payload []byte, isBroadcast bool)
}

// Admitter handles announces from unknown senders
type Admitter interface {
	OnAdmissionRequest(addr espnow.MAC, channel uint8, iface espnow.Interface, key []byte) error
	Known(addr espnow.MAC) bool
}

// DispatchStats counts envelope routing outcomes
type DispatchStats struct {
	Envelopes       uint64
	Delivered       uint64
	Admissions      uint64
	AdmissionErrors uint64
	UnknownDropped  uint64
	DecodeErrors    uint64
}

// Dispatcher routes envelopes from every source to admission or the frame sink
type Dispatcher struct {
	admitter   Admitter
	sink       FrameSink
	channel    uint8
	iface      espnow.Interface
	key        []byte
	onEnvelope func(*espnow.Envelope)

	mu    sync.Mutex
	stats DispatchStats
}

// DispatcherConfig holds the parameters new peers are registered with
type DispatcherConfig struct {
	Channel   uint8
	Interface espnow.Interface
	Key       []byte

	// OnEnvelope, if set, sees every envelope before routing
	OnEnvelope func(*espnow.Envelope)
}

// NewDispatcher creates a dispatcher
func NewDispatcher(admitter Admitter, sink FrameSink, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		admitter:   admitter,
		sink:       sink,
		channel:    cfg.Channel,
		iface:      cfg.Interface,
		key:        cfg.Key,
		onEnvelope: cfg.OnEnvelope,
	}
}

// Deliver routes one envelope. A broadcast from an unknown sender is an
// admission request and is consumed by it; only later frames reach the sink.
// A directed frame from an unknown sender is dropped.
func (d *Dispatcher) Deliver(e *espnow.Envelope) {
	d.count(func(s *DispatchStats) { s.Envelopes++ })
	if d.onEnvelope != nil {
		d.onEnvelope(e)
	}

	source := e.Source()
	broadcast := e.IsBroadcast()

	if !d.admitter.Known(source) {
		if !broadcast {
			d.count(func(s *DispatchStats) { s.UnknownDropped++ })
			log.WithField("peer", source).Debug("dropping frame from unknown sender")
			return
		}

		if err := d.admitter.OnAdmissionRequest(source, d.channel, d.iface, d.key); err != nil {
			d.count(func(s *DispatchStats) { s.AdmissionErrors++ })
			return
		}
		d.count(func(s *DispatchStats) { s.Admissions++ })
		return
	}

	d.sink.OnFrame(source, e.Payload(), broadcast)
	d.count(func(s *DispatchStats) { s.Delivered++ })
}

// DecodeError records an envelope that failed to decode on a source
func (d *Dispatcher) DecodeError(source string, err error) {
	d.count(func(s *DispatchStats) { s.DecodeErrors++ })
	log.WithFields(log.Fields{
		"source": source,
		"err":    err,
	}).Debug("envelope decode error")
}

// Stats returns the routing counters
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) count(f func(*DispatchStats)) {
	d.mu.Lock()
	f(&d.stats)
	d.mu.Unlock()
}
