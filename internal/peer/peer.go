// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package peer admits senders that announce themselves on the link.
package peer

import (
	"fmt"
	"time"

	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/pkg/errors"
)

// ErrRegistrationFailed is matched by every admission failure
var ErrRegistrationFailed = errors.New("peer registration failed")

// Record describes one admitted sender
type Record struct {
	Address      espnow.MAC
	Channel      uint8
	Interface    espnow.Interface
	Key          []byte
	RegisteredAt time.Time
}

// Encrypted reports whether the peer was registered with a local master key
func (r Record) Encrypted() bool {
	return len(r.Key) > 0
}

// String returns a short description of the record
func (r Record) String() string {
	return fmt.Sprintf("%s ch=%d if=%s encrypted=%t", r.Address, r.Channel, r.Interface, r.Encrypted())
}

// Registrar installs a peer in the link layer
type Registrar interface {
	RegisterPeer(Record) error
}

// AdmissionError is returned when the link layer refuses a peer
type AdmissionError struct {
	Address espnow.MAC
	Err     error
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrRegistrationFailed, e.Address, e.Err)
}

// Unwrap returns the link layer cause
func (e *AdmissionError) Unwrap() error {
	return e.Err
}

// Is matches ErrRegistrationFailed
func (e *AdmissionError) Is(target error) bool {
	return target == ErrRegistrationFailed
}
