// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package forward repeats the receiver's current telemetry to other systems.
package forward

import (
	"context"
	"time"

	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Forwarder publishes snapshots somewhere
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, s telemetry.Snapshot, live bool) error
	Close() error
}

// SnapshotReader is the channel side the pump polls
type SnapshotReader interface {
	Read() (telemetry.Snapshot, bool)
}

// DefaultKeepalive is how often an unchanged live snapshot is sent again.
// Receivers downstream time out on silence, so it must stay well under their
// timeout.
const DefaultKeepalive = time.Second

// Pump polls a reader and hands changed snapshots to forwarders
type Pump struct {
	reader     SnapshotReader
	interval   time.Duration
	keepalive  time.Duration
	forwarders []Forwarder
	now        func() time.Time

	last     telemetry.Snapshot
	lastLive bool
	lastSent time.Time
	primed   bool
}

// NewPump creates a pump that polls reader every interval
func NewPump(reader SnapshotReader, interval time.Duration, forwarders ...Forwarder) *Pump {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Pump{
		reader:     reader,
		interval:   interval,
		keepalive:  DefaultKeepalive,
		forwarders: forwarders,
		now:        time.Now,
	}
}

// SetKeepalive changes the resend period for unchanged live snapshots
func (p *Pump) SetKeepalive(d time.Duration) {
	if d > 0 {
		p.keepalive = d
	}
}

// Run polls until ctx is done, then closes every forwarder
func (p *Pump) Run(ctx context.Context) error {
	defer p.close()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll reads once and forwards if the snapshot or its liveness changed, or if
// a live snapshot has gone unsent for the keepalive period.
// It returns true if anything was forwarded.
func (p *Pump) Poll(ctx context.Context) bool {
	s, live := p.reader.Read()
	now := p.now()
	if p.primed && s == p.last && live == p.lastLive {
		if !live || now.Sub(p.lastSent) < p.keepalive {
			return false
		}
	}
	p.last, p.lastLive, p.lastSent, p.primed = s, live, now, true

	for _, f := range p.forwarders {
		fctx, cancel := context.WithTimeout(ctx, p.interval*5)
		err := f.Forward(fctx, s, live)
		cancel()
		if err != nil {
			log.WithFields(log.Fields{
				"forwarder": f.Name(),
				"err":       err,
			}).Error("unable to forward telemetry")
		}
	}
	return true
}

func (p *Pump) close() {
	for _, f := range p.forwarders {
		if err := f.Close(); err != nil {
			log.WithField("err", errors.Wrap(err, f.Name())).Warn("unable to close forwarder")
		}
	}
}
