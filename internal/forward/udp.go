// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forward

import (
	"context"
	"fmt"
	"net"

	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	"github.com/pkg/errors"
)

// UDPConfig configures the UDP repeater
type UDPConfig struct {
	Server string
	Port   int
	// Source is the MAC the repeated frames claim to come from
	Source espnow.MAC
	Format telemetry.Format
}

// UDPForwarder sends each live snapshot as a bridge envelope datagram, so a
// second receiver can take it in with its UDP source
type UDPForwarder struct {
	Config UDPConfig

	conn      net.Conn
	announced bool
}

// NewUDPForwarder dials the configured server
func NewUDPForwarder(cfg UDPConfig) (*UDPForwarder, error) {
	udp := &UDPForwarder{Config: cfg}
	if err := udp.connect(); err != nil {
		return nil, err
	}
	return udp, nil
}

// Name returns the forwarder description
func (udp *UDPForwarder) Name() string {
	return fmt.Sprintf("udp %s:%d", udp.Config.Server, udp.Config.Port)
}

// Forward sends s. The first datagram is also the admission announce for
// the downstream receiver. Stale snapshots are not repeated.
func (udp *UDPForwarder) Forward(_ context.Context, s telemetry.Snapshot, live bool) error {
	if !live {
		return nil
	}

	frame, err := espnow.EncodeEnvelope(udp.Config.Source, espnow.BroadcastMAC, telemetry.Encode(s, udp.Config.Format))
	if err != nil {
		return errors.Wrap(err, "unable to encode envelope")
	}

	if !udp.announced {
		if _, err := udp.conn.Write(frame); err != nil {
			return errors.Wrap(err, "unable to send announce")
		}
		udp.announced = true
	}

	if _, err := udp.conn.Write(frame); err != nil {
		return errors.Wrap(err, "unable to write telemetry datagram")
	}
	return nil
}

// Close closes the socket
func (udp *UDPForwarder) Close() error {
	return udp.conn.Close()
}

func (udp *UDPForwarder) connect() error {
	writeBufSize := espnow.MaxEnvelopeSize * 4

	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d", udp.Config.Server, udp.Config.Port))
	if err != nil {
		return errors.Wrapf(err, "unable to dial %s:%d", udp.Config.Server, udp.Config.Port)
	}
	if udpConn, ok := conn.(*net.UDPConn); ok {
		if err = udpConn.SetWriteBuffer(writeBufSize); err != nil {
			conn.Close()
			return errors.Wrapf(err, "unable to set OS write buffer to %v", writeBufSize)
		}
	}

	udp.conn = conn
	return nil
}
