// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	"github.com/spf13/cobra"
)

var frameTestTimeout int

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test the link by waiting for an accepted telemetry frame",
	Long: `Wait for an accepted telemetry frame on the connection until timeout.

The sender must first announce itself with a broadcast so it is admitted as a
peer; the first correctly sized frame after that ends the test. Bytes that do
not form a valid envelope and frames of the wrong size are ignored.

Exit codes:
  0 - Frame accepted before timeout
  1 - Timeout reached without an accepted frame
  2 - Connection error

Useful for checking a bridge dongle or relay before starting the dashboard.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	rx, err := newReceiver(nil)
	if err == nil {
		err = rx.open()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Gaugelink - Frame Test\n")
	for _, info := range rx.infos {
		fmt.Printf("Connection: %s\n", info)
	}
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for a %s telemetry frame...\n\n", rx.channel.Format())

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(frameTestTimeout)*time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- rx.serve(ctx)
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s, live := rx.channel.Read()
			if !live {
				continue
			}
			stats := rx.channel.Stats()
			fmt.Printf("SUCCESS: Accepted telemetry frame\n")
			fmt.Printf("  Sender: %s\n", rx.channel.LastSender())
			fmt.Printf("  Peers: %d\n", rx.registry.Len())
			if stats.SizeMismatches > 0 {
				fmt.Printf("  (skipped %d frames of the wrong size)\n", stats.SizeMismatches)
			}
			fmt.Print(telemetry.FormatSnapshot(s))
			cancel()
			<-errChan
			os.Exit(0)

		case err := <-errChan:
			if ctx.Err() == nil && err != nil {
				fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
				os.Exit(2)
			}
			fmt.Fprintf(os.Stderr, "TIMEOUT: No telemetry frame accepted within %d seconds\n", frameTestTimeout)
			if rx.registry.Len() == 0 {
				fmt.Fprintf(os.Stderr, "No sender announced itself. Check the sender is powered and on channel %d.\n", cfg.Receiver.Channel)
			}
			os.Exit(1)
		}
	}
}
