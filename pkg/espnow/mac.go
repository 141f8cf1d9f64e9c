// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espnow

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MAC is a 6-byte IEEE 802 hardware address
type MAC [MACSize]byte

// BroadcastMAC is the ESP-NOW broadcast destination
var BroadcastMAC = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ParseMAC parses "aa:bb:cc:dd:ee:ff", "aa-bb-cc-dd-ee-ff" or "aabbccddeeff"
func ParseMAC(s string) (MAC, error) {
	var mac MAC

	clean := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(clean) != MACSize*2 {
		return mac, fmt.Errorf("invalid MAC address %q", s)
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return mac, fmt.Errorf("invalid MAC address %q: %w", s, err)
	}
	copy(mac[:], raw)
	return mac, nil
}

// MACFromBytes copies a 6-byte slice into a MAC
func MACFromBytes(b []byte) (MAC, error) {
	var mac MAC
	if len(b) != MACSize {
		return mac, fmt.Errorf("invalid MAC length: %d (expected %d)", len(b), MACSize)
	}
	copy(mac[:], b)
	return mac, nil
}

// String returns the colon-separated lowercase form
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// Hex returns the address as 12 lowercase hex digits with no separators
func (m MAC) Hex() string {
	return hex.EncodeToString(m[:])
}

// IsBroadcast returns true for FF:FF:FF:FF:FF:FF
func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// IsMulticast returns true if the group bit of the first octet is set
func (m MAC) IsMulticast() bool {
	return m[0]&0x01 != 0
}

// IsZero returns true for the all-zero address
func (m MAC) IsZero() bool {
	return m == MAC{}
}
