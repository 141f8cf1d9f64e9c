// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espnow

import (
	"bytes"
	"errors"
	"testing"
)

var (
	testSource = MAC{0x24, 0x6F, 0x28, 0x01, 0x02, 0x03}
	testDest   = BroadcastMAC
)

// buildFrame frames data with the given CRC, applying byte stuffing
func buildFrame(data []byte, crc uint16) []byte {
	body := append(append([]byte{}, data...), byte(crc>>8), byte(crc))
	frame := []byte{StartByte}
	frame = append(frame, stuffBytes(body)...)
	return append(frame, EndByte)
}

// decodeAll feeds every byte and returns the envelopes and first error seen
func decodeAll(d *Decoder, frame []byte) ([]*Envelope, error) {
	var envelopes []*Envelope
	var firstErr error
	for _, b := range frame {
		envelope, err := d.DecodeByte(b)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if envelope != nil {
			envelopes = append(envelopes, envelope)
		}
	}
	return envelopes, firstErr
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	if crc := CalculateCRC([]byte{}); crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_CheckValue(t *testing.T) {
	if crc := CalculateCRC([]byte("123456789")); crc != 0x29B1 {
		t.Errorf("CRC mismatch: expected 0x29B1, got 0x%04X", crc)
	}
}

// ============================================================
// MAC Tests
// ============================================================

func TestParseMAC(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MAC
		wantErr bool
	}{
		{"colons", "24:6f:28:01:02:03", testSource, false},
		{"dashes upper", "24-6F-28-01-02-03", testSource, false},
		{"bare hex", "246f28010203", testSource, false},
		{"broadcast", "ff:ff:ff:ff:ff:ff", BroadcastMAC, false},
		{"too short", "24:6f:28:01:02", MAC{}, true},
		{"not hex", "zz:6f:28:01:02:03", MAC{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMAC(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMAC_Classification(t *testing.T) {
	if !BroadcastMAC.IsBroadcast() {
		t.Error("broadcast address not recognised")
	}
	if testSource.IsBroadcast() {
		t.Error("unicast address reported as broadcast")
	}
	if testSource.IsMulticast() {
		t.Error("unicast address reported as multicast")
	}
	if !(MAC{0x01, 0x00, 0x5E, 0x00, 0x00, 0x01}).IsMulticast() {
		t.Error("multicast address not recognised")
	}
	if !(MAC{}).IsZero() {
		t.Error("zero address not recognised")
	}
}

func TestMAC_String(t *testing.T) {
	if got := testSource.String(); got != "24:6f:28:01:02:03" {
		t.Errorf("String() = %q", got)
	}
	if got := testSource.Hex(); got != "246f28010203" {
		t.Errorf("Hex() = %q", got)
	}
}

// ============================================================
// Encode / Decode Tests
// ============================================================

func TestEncodeDecode_RoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty":         {},
		"telemetry":     bytes.Repeat([]byte{0x11}, 36),
		"special bytes": {StartByte, EndByte, EscByte, 0x00, EscXor},
		"max size":      bytes.Repeat([]byte{0x7E}, MaxPayloadSize),
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			frame, err := EncodeEnvelope(testSource, testDest, payload)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}

			envelope, err := Decode(frame)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if envelope.Source() != testSource {
				t.Errorf("source: got %s, want %s", envelope.Source(), testSource)
			}
			if envelope.Destination() != testDest {
				t.Errorf("destination: got %s, want %s", envelope.Destination(), testDest)
			}
			if !bytes.Equal(envelope.Payload(), payload) {
				t.Errorf("payload mismatch: got %X, want %X", envelope.Payload(), payload)
			}
			if !envelope.IsBroadcast() {
				t.Error("broadcast destination not reported")
			}
		})
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	_, err := EncodeEnvelope(testSource, testDest, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrLength) {
		t.Errorf("expected ErrLength, got %v", err)
	}
}

func TestEncode_NoUnescapedFramingInBody(t *testing.T) {
	frame := MustEncodeEnvelope(testSource, testDest, []byte{StartByte, EndByte, EscByte})
	for i, b := range frame[1 : len(frame)-1] {
		if b == StartByte || b == EndByte {
			t.Errorf("framing byte 0x%02X at body offset %d", b, i)
		}
	}
}

func TestDecoder_CRCMismatch(t *testing.T) {
	data := []byte{2}
	data = append(data, testSource[:]...)
	data = append(data, testDest[:]...)
	data = append(data, 0xAA, 0xBB)

	frame := buildFrame(data, CalculateCRC(data)^0x0101)
	_, err := decodeAll(NewDecoder(), frame)
	if !errors.Is(err, ErrCRC) {
		t.Errorf("expected ErrCRC, got %v", err)
	}
}

func TestDecoder_UnexpectedEnd(t *testing.T) {
	_, err := decodeAll(NewDecoder(), []byte{StartByte, 0x01, 0x24, EndByte})
	if !errors.Is(err, ErrUnexpectedEnd) {
		t.Errorf("expected ErrUnexpectedEnd, got %v", err)
	}
}

func TestDecoder_LengthTooLarge(t *testing.T) {
	_, err := decodeAll(NewDecoder(), []byte{StartByte, MaxPayloadSize + 1})
	if !errors.Is(err, ErrLength) {
		t.Errorf("expected ErrLength, got %v", err)
	}
}

func TestDecoder_DataAfterCRC(t *testing.T) {
	frame := MustEncodeEnvelope(testSource, testDest, []byte{0x01})
	frame = append(frame[:len(frame)-1], 0x00, EndByte)

	_, err := decodeAll(NewDecoder(), frame)
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestDecoder_ResyncAfterGarbage(t *testing.T) {
	frame := MustEncodeEnvelope(testSource, testDest, []byte{0x42})
	stream := append([]byte{0x01, 0x02, 0x55, StartByte, 0x03}, frame...)

	envelopes, _ := decodeAll(NewDecoder(), stream)
	if len(envelopes) != 1 {
		t.Fatalf("expected 1 envelope after resync, got %d", len(envelopes))
	}
	if envelopes[0].Payload()[0] != 0x42 {
		t.Errorf("wrong payload after resync: %X", envelopes[0].Payload())
	}
}

func TestDecoder_BackToBack(t *testing.T) {
	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, MustEncodeEnvelope(testSource, testDest, []byte{byte(i)})...)
	}

	envelopes, err := decodeAll(NewDecoder(), stream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(envelopes) != 5 {
		t.Fatalf("expected 5 envelopes, got %d", len(envelopes))
	}
	for i, e := range envelopes {
		if e.Payload()[0] != byte(i) {
			t.Errorf("envelope %d: payload %X", i, e.Payload())
		}
	}
}

func TestDecoder_RawBytesTrackCurrentFrame(t *testing.T) {
	d := NewDecoder()
	frame := MustEncodeEnvelope(testSource, testDest, []byte{0x01})
	for _, b := range frame[:len(frame)-1] {
		d.DecodeByte(b)
	}
	if !bytes.Equal(d.GetRawBytes(), frame[:len(frame)-1]) {
		t.Errorf("raw bytes mismatch: %X", d.GetRawBytes())
	}
}

func TestDecoder_IdleNoiseIsNotCaptured(t *testing.T) {
	d := NewDecoder()
	noise := bytes.Repeat([]byte{0x00, 0x55, EndByte, EscByte, 0xFF}, 200*1024)
	for _, b := range noise {
		if _, err := d.DecodeByte(b); err != nil {
			t.Fatalf("unexpected error on idle noise: %v", err)
		}
	}
	if n := len(d.GetRawBytes()); n != 0 {
		t.Fatalf("raw buffer grew to %d bytes on idle noise", n)
	}

	frame := MustEncodeEnvelope(testSource, testDest, []byte{0x42})
	envelopes, err := decodeAll(d, frame)
	if err != nil {
		t.Fatalf("unexpected error after noise: %v", err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("expected 1 envelope after noise, got %d", len(envelopes))
	}
	if cap(d.GetRawBytes()) > MaxEnvelopeSize*2 {
		t.Errorf("raw buffer capacity grew to %d", cap(d.GetRawBytes()))
	}
}

func TestUnstuffBytes(t *testing.T) {
	data := []byte{0x01, StartByte, EndByte, EscByte, 0x02}
	got, err := UnstuffBytes(stuffBytes(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %X, want %X", got, data)
	}

	if _, err := UnstuffBytes([]byte{0x01, EscByte}); err == nil {
		t.Error("expected error for dangling escape")
	}
}
