// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"time"

	"github.com/Thermoquad/gaugelink/internal/channel"
	"github.com/Thermoquad/gaugelink/internal/link"
	"github.com/Thermoquad/gaugelink/internal/peer"
	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"golang.org/x/sync/errgroup"
)

// receiver owns the receive pipeline: sources feed the dispatcher, which
// admits peers into the registry and hands their frames to the channel
type receiver struct {
	table      *link.PeerTable
	registry   *peer.Registry
	channel    *channel.Channel
	dispatcher *link.Dispatcher
	sources    []link.Retryable
	infos      []string
	started    time.Time
}

// newReceiver builds the pipeline from cfg. onEnvelope, if set, sees every
// envelope before it is routed.
func newReceiver(onEnvelope func(*espnow.Envelope)) (*receiver, error) {
	key, err := cfg.Receiver.KeyBytes()
	if err != nil {
		return nil, err
	}

	r := &receiver{
		table: link.NewPeerTable(cfg.Receiver.MaxPeers),
		channel: channel.New(cfg.Receiver.TelemetryFormat(),
			channel.WithTimeout(cfg.Receiver.Timeout.Duration),
			channel.WithValidation(cfg.Receiver.Validate),
		),
		started: time.Now(),
	}
	r.registry = peer.NewRegistry(r.table)
	r.dispatcher = link.NewDispatcher(r.registry, r.channel, link.DispatcherConfig{
		Channel:    cfg.Receiver.Channel,
		Interface:  cfg.Receiver.PeerInterface(),
		Key:        key,
		OnEnvelope: onEnvelope,
	})

	r.sources, r.infos, err = OpenSources(r.dispatcher)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// run keeps every source connected until ctx is done
func (r *receiver) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, source := range r.sources {
		source := source
		g.Go(func() error {
			if err := link.Retry(ctx, source); !isContextErr(err) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// open opens every source once, for one-shot commands that should fail fast rather
// than retry
func (r *receiver) open() error {
	for i, source := range r.sources {
		if err := source.Open(); err != nil {
			for _, opened := range r.sources[:i] {
				_ = opened.Close()
			}
			return err
		}
	}
	return nil
}

// serve reads from sources opened by open until ctx is done or one fails
func (r *receiver) serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, source := range r.sources {
		source := source
		g.Go(func() error {
			err := source.Start(gctx)
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}
	err := g.Wait()
	for _, source := range r.sources {
		_ = source.Close()
	}
	return err
}
