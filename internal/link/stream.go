// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"io"
	"sync"

	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/pkg/errors"
)

// EnvelopeHandler consumes envelopes decoded by a source
type EnvelopeHandler interface {
	Deliver(*espnow.Envelope)
	DecodeError(source string, err error)
}

// Dialer opens the byte stream to a bridge
type Dialer func() (io.ReadCloser, error)

// StreamSource reads byte-stuffed envelopes from a serial or WebSocket bridge
type StreamSource struct {
	name    string
	dial    Dialer
	handler EnvelopeHandler

	mu   sync.Mutex
	conn io.ReadCloser
}

// NewStreamSource creates a source that reads from connections made by dial
func NewStreamSource(name string, dial Dialer, handler EnvelopeHandler) *StreamSource {
	return &StreamSource{
		name:    name,
		dial:    dial,
		handler: handler,
	}
}

// Name returns the source description
func (s *StreamSource) Name() string {
	return s.name
}

// Open dials the bridge
func (s *StreamSource) Open() error {
	conn, err := s.dial()
	if err != nil {
		return errors.Wrapf(err, "%s: unable to open", s.name)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// Close closes the current connection, if any
func (s *StreamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Start decodes envelopes until the connection fails or ctx is done
func (s *StreamSource) Start(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.Errorf("%s: not open", s.name)
	}

	// Unblock the read when the context ends
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-stop:
		}
	}()

	return ReadEnvelopes(conn, s.name, s.handler)
}

// ReadEnvelopes decodes envelopes from r until it returns an error
func ReadEnvelopes(r io.Reader, name string, handler EnvelopeHandler) error {
	decoder := espnow.NewDecoder()
	buf := make([]byte, 512)

	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			envelope, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				handler.DecodeError(name, decodeErr)
				continue
			}
			if envelope != nil {
				handler.Deliver(envelope)
			}
		}
		if err != nil {
			if err == io.EOF {
				return errors.Errorf("%s: connection closed", name)
			}
			return errors.Wrapf(err, "%s: read failed", name)
		}
	}
}
