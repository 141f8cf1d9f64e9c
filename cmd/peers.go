// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/spf13/cobra"
)

var peersTimeout int

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Listen for sender announces and list admitted peers",
	Long: `Listen for broadcast announces and register each new sender as a peer.

Every sender that announces itself within the timeout is admitted (up to the
peer limit) and listed with the channel, interface and encryption it was
registered with. Senders that send directed frames without announcing first
are reported but not admitted.

Examples:
  # Serial bridge dongle
  gaugelink peers --port /dev/ttyUSB0

  # Relay over MQTT, longer listen
  gaugelink peers --mqtt tcp://broker:1883 --timeout 30

Exit codes:
  0 - At least one peer admitted
  1 - No peers admitted before timeout
  2 - Connection error`,
	RunE: runPeers,
}

func init() {
	rootCmd.AddCommand(peersCmd)
	peersCmd.Flags().IntVar(&peersTimeout, "timeout", 5, "Timeout in seconds to listen for announces")
}

func runPeers(cmd *cobra.Command, args []string) error {
	var rx *receiver
	var mu sync.Mutex
	unknown := make(map[espnow.MAC]int)

	rx, err := newReceiver(func(e *espnow.Envelope) {
		if rx.registry.Known(e.Source()) {
			return
		}
		if e.IsBroadcast() {
			fmt.Printf("Announce from %s\n", e.Source())
			return
		}
		mu.Lock()
		unknown[e.Source()]++
		mu.Unlock()
	})
	if err == nil {
		err = rx.open()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Gaugelink - Peer Discovery\n")
	for _, info := range rx.infos {
		fmt.Printf("Connection: %s\n", info)
	}
	fmt.Printf("Peer limit: %d\n", rx.table.Capacity())
	fmt.Printf("Timeout: %d seconds\n\n", peersTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(peersTimeout)*time.Second)
	defer cancel()

	if err := rx.serve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "READ FAILED: %v\n", err)
		os.Exit(2)
	}

	peers := rx.registry.Peers()
	stats := rx.registry.Stats()

	fmt.Printf("\n--- Peer summary ---\n")
	fmt.Printf("Peers admitted: %d\n", len(peers))
	for i, p := range peers {
		fmt.Printf("  %2d. %s (registered %s)\n", i+1, p, p.RegisteredAt.Format("15:04:05.000"))
	}
	if stats.Rejected > 0 {
		fmt.Printf("Rejected announces: %d from %d senders\n", stats.Rejected, stats.RejectedSenders)
	}
	for mac, count := range unknown {
		fmt.Printf("Directed frames from unannounced %s: %d\n", mac, count)
	}

	if len(peers) == 0 {
		fmt.Printf("No peers admitted. Check the senders are powered and on channel %d.\n", cfg.Receiver.Channel)
		os.Exit(1)
	}
	return nil
}
