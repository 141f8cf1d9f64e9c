// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espnow

import (
	"errors"
	"fmt"
	"time"
)

// Decoder errors
var (
	ErrCRC           = errors.New("CRC mismatch")
	ErrLength        = errors.New("invalid length")
	ErrOverflow      = errors.New("buffer overflow")
	ErrUnexpectedEnd = errors.New("unexpected END byte")
)

// Decoder implements the bridge envelope decoder state machine
type Decoder struct {
	state       int
	buffer      []byte
	bufferIndex int
	escapeNext  bool
	macBytes    int
	length      int
	envelope    *Envelope
	rawBuffer   []byte
}

// NewDecoder creates a new envelope decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, MaxEnvelopeSize),
		rawBuffer: make([]byte, 0, MaxEnvelopeSize*2),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferIndex = 0
	d.macBytes = 0
	d.length = 0
	d.escapeNext = false
	d.envelope = nil
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the raw bytes of the envelope in progress, starting at
// its START byte
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed envelope, or nil if the envelope is incomplete.
// Returns an error wrapping one of the decoder errors if decoding fails.
func (d *Decoder) DecodeByte(b byte) (*Envelope, error) {
	// Bytes between envelopes are line noise; capture starts at START.
	if d.state == stateIdle && b != StartByte {
		return nil, nil
	}
	d.rawBuffer = append(d.rawBuffer, b)

	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}

	escaped := d.escapeNext
	if escaped {
		b ^= EscXor
		d.escapeNext = false
	}

	if !escaped && b == StartByte {
		d.Reset()
		d.rawBuffer = append(d.rawBuffer[:0], b)
		d.state = stateLength
		return nil, nil
	}

	if !escaped && b == EndByte {
		state := d.state
		if state != stateEnd {
			d.Reset()
			return nil, fmt.Errorf("%w in state %d", ErrUnexpectedEnd, state)
		}

		envelope := d.envelope
		calculated := CalculateCRC(d.buffer[:d.bufferIndex])
		d.Reset()
		if envelope.crc != calculated {
			return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRC, calculated, envelope.crc)
		}
		envelope.timestamp = time.Now()
		return envelope, nil
	}

	switch d.state {
	case stateLength:
		if int(b) > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("%w: %d (max %d)", ErrLength, b, MaxPayloadSize)
		}
		d.length = int(b)
		d.envelope = &Envelope{payload: make([]byte, 0, d.length)}
		d.push(b)
		d.macBytes = 0
		d.state = stateSource
		return nil, nil

	case stateSource:
		d.envelope.source[d.macBytes] = b
		d.push(b)
		d.macBytes++
		if d.macBytes >= MACSize {
			d.macBytes = 0
			d.state = stateDestination
		}
		return nil, nil

	case stateDestination:
		d.envelope.destination[d.macBytes] = b
		d.push(b)
		d.macBytes++
		if d.macBytes >= MACSize {
			if d.length == 0 {
				d.state = stateCRC1
			} else {
				d.state = statePayload
			}
		}
		return nil, nil

	case statePayload:
		if d.bufferIndex >= len(d.buffer) {
			d.Reset()
			return nil, fmt.Errorf("%w: envelope exceeds max size", ErrOverflow)
		}
		d.envelope.payload = append(d.envelope.payload, b)
		d.push(b)
		if len(d.envelope.payload) >= d.length {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.envelope.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.envelope.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		d.Reset()
		return nil, fmt.Errorf("%w: data after CRC", ErrOverflow)

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

// push appends a pre-CRC byte to the checksum buffer
func (d *Decoder) push(b byte) {
	d.buffer[d.bufferIndex] = b
	d.bufferIndex++
}

// Decode decodes a single complete framed envelope
func Decode(frame []byte) (*Envelope, error) {
	d := NewDecoder()
	for _, b := range frame {
		envelope, err := d.DecodeByte(b)
		if err != nil {
			return nil, err
		}
		if envelope != nil {
			return envelope, nil
		}
	}
	return nil, fmt.Errorf("%w: incomplete envelope", ErrLength)
}
