// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espnow

import "time"

// Envelope is one link frame as handed over by the bridge
type Envelope struct {
	source      MAC
	destination MAC
	payload     []byte
	crc         uint16
	timestamp   time.Time
}

// NewEnvelope creates an envelope for the given addresses and payload
func NewEnvelope(source, destination MAC, payload []byte) *Envelope {
	return &Envelope{
		source:      source,
		destination: destination,
		payload:     payload,
		timestamp:   time.Now(),
	}
}

// Source returns the sender MAC
func (e *Envelope) Source() MAC {
	return e.source
}

// Destination returns the destination MAC
func (e *Envelope) Destination() MAC {
	return e.destination
}

// Payload returns the raw link payload
func (e *Envelope) Payload() []byte {
	return e.payload
}

// Length returns the payload length
func (e *Envelope) Length() int {
	return len(e.payload)
}

// CRC returns the envelope CRC (zero for locally built envelopes)
func (e *Envelope) CRC() uint16 {
	return e.crc
}

// Timestamp returns the decode timestamp
func (e *Envelope) Timestamp() time.Time {
	return e.timestamp
}

// IsBroadcast returns true if the frame was sent to the broadcast address
func (e *Envelope) IsBroadcast() bool {
	return e.destination.IsBroadcast()
}
