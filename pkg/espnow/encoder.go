// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espnow

import "fmt"

// Encode encodes an envelope to wire format
func Encode(e *Envelope) ([]byte, error) {
	return EncodeEnvelope(e.source, e.destination, e.payload)
}

// EncodeEnvelope creates a complete wire-formatted bridge envelope.
// Returns the bytes ready for transmission, including framing and byte stuffing.
func EncodeEnvelope(source, destination MAC, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload too large: %d bytes (max %d)", ErrLength, len(payload), MaxPayloadSize)
	}

	// length + src + dst + payload is what gets CRC'd and byte-stuffed
	data := make([]byte, 0, HeaderSize+len(payload)+2)
	data = append(data, uint8(len(payload)))
	data = append(data, source[:]...)
	data = append(data, destination[:]...)
	data = append(data, payload...)

	crc := CalculateCRC(data)

	// CRC is big-endian on the wire
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)

	return frame, nil
}

// MustEncodeEnvelope is like EncodeEnvelope but panics on error
func MustEncodeEnvelope(source, destination MAC, payload []byte) []byte {
	frame, err := EncodeEnvelope(source, destination, payload)
	if err != nil {
		panic(fmt.Sprintf("espnow: encode error: %v", err))
	}
	return frame
}

// stuffBytes escapes START, END and ESC as ESC + (byte XOR EscXor)
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)

	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}

	return result
}

// UnstuffBytes removes byte stuffing from escaped data
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscXor)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}

	return result, nil
}
