// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package espnow provides the host side of an ESP-NOW bridge link.
//
// An ESP-NOW bridge dongle receives link frames over the air and hands each one
// to the host wrapped in a small envelope carrying the sender MAC, the
// destination MAC and the raw payload. This package provides the MAC address
// type, link constants, and the byte-stuffed envelope encoder and decoder.
package espnow

import "strings"

// Envelope framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Envelope size limits
const (
	MACSize         = 6
	MaxPayloadSize  = 250 // ESP-NOW v1 payload limit
	HeaderSize      = 1 + 2*MACSize
	MaxEnvelopeSize = HeaderSize + MaxPayloadSize + 2
)

// Link limits
const (
	// Total peer limit of the ESP-NOW stack
	MaxPeers       = 20
	MaxChannel     = 14
	DefaultChannel = 6
	// Local master key length
	KeySize        = 16
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	stateSource
	stateDestination
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

// Interface selects the WiFi interface a peer is bound to
type Interface uint8

// Interface values
const (
	InterfaceStation Interface = iota
	InterfaceAccessPoint
)

// String returns the interface name
func (i Interface) String() string {
	switch i {
	case InterfaceStation:
		return "STA"
	case InterfaceAccessPoint:
		return "AP"
	default:
		return "UNKNOWN"
	}
}

// ParseInterface converts "sta" or "ap" (any case) to an Interface
func ParseInterface(s string) (Interface, bool) {
	switch strings.ToLower(s) {
	case "sta", "station":
		return InterfaceStation, true
	case "ap", "softap":
		return InterfaceAccessPoint, true
	}
	return 0, false
}
