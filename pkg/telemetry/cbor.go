// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MarshalCBOR encodes a snapshot as a CBOR map with integer keys
func MarshalCBOR(s Snapshot) ([]byte, error) {
	data, err := cbor.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalCBOR decodes a snapshot produced by MarshalCBOR
func UnmarshalCBOR(data []byte) (Snapshot, error) {
	var s Snapshot
	if len(data) == 0 {
		return s, fmt.Errorf("empty CBOR payload")
	}
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return s, nil
}
