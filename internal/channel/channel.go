// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package channel holds the latest telemetry received from the link and
// decides when it has gone stale.
//
// Frames arrive on the link receive goroutine through OnFrame. The UI tick
// reads through Snapshot or Read, which first apply the timeout. There is no
// background timer: staleness is evaluated lazily on read.
package channel

import (
	"sync"
	"time"

	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	log "github.com/sirupsen/logrus"
)

// DefaultTimeout is how long a snapshot stays live without a new frame
const DefaultTimeout = 5000 * time.Millisecond

// Option configures a Channel
type Option func(*Channel)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.timeout = d
	}
}

// WithClock overrides the system clock
func WithClock(clock Clock) Option {
	return func(c *Channel) {
		c.clock = clock
	}
}

// WithValidation counts implausible values in accepted frames
func WithValidation(enabled bool) Option {
	return func(c *Channel) {
		c.validate = enabled
	}
}

// Channel is the shared telemetry state between the receive context and the UI
type Channel struct {
	format   telemetry.Format
	timeout  time.Duration
	clock    Clock
	validate bool

	mu          sync.Mutex
	latest      telemetry.Snapshot
	lastArrival time.Time // zero means never received
	lastSender  espnow.MAC
	hasData     bool
	stats       *telemetry.Statistics
}

// New creates a channel accepting frames of the given format
func New(format telemetry.Format, opts ...Option) *Channel {
	c := &Channel{
		format:  format,
		timeout: DefaultTimeout,
		clock:   SystemClock{},
		stats:   telemetry.NewStatistics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Format returns the accepted frame format
func (c *Channel) Format() telemetry.Format {
	return c.format
}

// Timeout returns the staleness timeout
func (c *Channel) Timeout() time.Duration {
	return c.timeout
}

// OnFrame accepts a payload from an admitted sender. A payload whose length
// is not exactly the format size is dropped without touching the snapshot.
// An accepted frame replaces the snapshot entirely.
func (c *Channel) OnFrame(sender espnow.MAC, payload []byte, isBroadcast bool) {
	snapshot, err := telemetry.Decode(c.format, payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.stats.RecordFrame(false)
		log.WithFields(log.Fields{
			"peer":   sender,
			"length": len(payload),
		}).Debug("telemetry frame dropped")
		return
	}

	c.stats.RecordFrame(true)
	if c.validate {
		c.stats.RecordAnomalies(telemetry.ValidateSnapshot(snapshot))
	}

	if !c.hasData {
		log.WithFields(log.Fields{
			"peer":      sender,
			"broadcast": isBroadcast,
		}).Info("telemetry link up")
	}

	c.latest = snapshot
	c.hasData = true
	c.lastArrival = c.clock.Now()
	c.lastSender = sender
}

// CheckTimeout resets the snapshot to zero when nothing was ever received or
// the last frame is older than the timeout. The arrival time is never changed.
func (c *Channel) CheckTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkTimeoutLocked()
}

func (c *Channel) checkTimeoutLocked() {
	if !c.lastArrival.IsZero() && c.clock.Now().Sub(c.lastArrival) <= c.timeout {
		return
	}

	if c.hasData {
		c.stats.RecordStale()
		log.WithFields(log.Fields{
			"peer":         c.lastSender,
			"last_arrival": c.lastArrival,
		}).Warn("telemetry link stale")
	}
	c.latest = telemetry.Snapshot{}
	c.hasData = false
}

// Snapshot applies the timeout and returns a copy of the latest telemetry
func (c *Channel) Snapshot() telemetry.Snapshot {
	s, _ := c.Read()
	return s
}

// Read applies the timeout and returns the latest telemetry and whether it is live
func (c *Channel) Read() (telemetry.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkTimeoutLocked()
	return c.latest, c.hasData
}

// HasData reports whether the last read found live data. It does not apply the timeout.
func (c *Channel) HasData() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasData
}

// LastArrival returns the time of the last accepted frame (zero if none)
func (c *Channel) LastArrival() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastArrival
}

// LastSender returns the sender of the last accepted frame
func (c *Channel) LastSender() espnow.MAC {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSender
}

// Stats returns a copy of the frame statistics with rates calculated
func (c *Channel) Stats() telemetry.Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.CalculateRates()
	return *c.stats
}
