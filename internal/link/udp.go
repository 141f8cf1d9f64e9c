// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"net"
	"sync"

	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/pkg/errors"
)

// UDPSource receives one framed envelope per datagram from a relay
type UDPSource struct {
	addr    string
	handler EnvelopeHandler

	mu   sync.Mutex
	conn net.PacketConn
}

// NewUDPSource creates a source listening on addr (host:port)
func NewUDPSource(addr string, handler EnvelopeHandler) *UDPSource {
	return &UDPSource{
		addr:    addr,
		handler: handler,
	}
}

// Name returns the source description
func (u *UDPSource) Name() string {
	return "udp " + u.addr
}

// Open binds the listening socket
func (u *UDPSource) Open() error {
	conn, err := net.ListenPacket("udp", u.addr)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", u.addr)
	}
	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()
	return nil
}

// LocalAddr returns the bound address, or nil before Open
func (u *UDPSource) LocalAddr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Close closes the socket
func (u *UDPSource) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}

// Start reads datagrams until the socket fails or ctx is done
func (u *UDPSource) Start(ctx context.Context) error {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return errors.New("udp source not open")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = u.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, espnow.MaxEnvelopeSize*2+2)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			return errors.Wrap(err, "udp read failed")
		}

		envelope, err := espnow.Decode(buf[:n])
		if err != nil {
			u.handler.DecodeError(from.String(), err)
			continue
		}
		u.handler.Deliver(envelope)
	}
}
