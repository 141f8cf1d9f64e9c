// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/gaugelink/pkg/espnow"
	"github.com/Thermoquad/gaugelink/pkg/telemetry"
	"github.com/spf13/cobra"
)

var rawLogStatsInterval int

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display every bridge envelope and decoded frame",
	Long: `Continuously decode and display envelopes as the bridge hands them over.

Each envelope is shown with timestamp, sender, destination and CRC, followed by
the decoded telemetry frame and any implausible values. Announces from unknown
senders are marked; they register the sender and carry no displayed data.

Statistics are printed every --stats-interval seconds and on exit.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().IntVar(&rawLogStatsInterval, "stats-interval", 10, "Statistics interval in seconds (0 to disable)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	var rx *receiver
	format := cfg.Receiver.TelemetryFormat()

	rx, err := newReceiver(func(e *espnow.Envelope) {
		printEnvelope(e, format, !rx.registry.Known(e.Source()))
	})
	if err != nil {
		return err
	}

	fmt.Printf("Gaugelink - Raw Envelope Log\n")
	for _, info := range rx.infos {
		fmt.Printf("Connection: %s\n", info)
	}
	fmt.Printf("Format: %s (%d bytes)\n", format, format.Size())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if rawLogStatsInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(rawLogStatsInterval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					printReceiverStats(rx)
				}
			}
		}()
	}

	err = rx.run(ctx)
	printReceiverStats(rx)
	return err
}

func printEnvelope(e *espnow.Envelope, format telemetry.Format, unknown bool) {
	kind := "frame"
	switch {
	case unknown && e.IsBroadcast():
		kind = "announce"
	case unknown:
		kind = "unknown sender, dropped"
	}

	fmt.Printf("[%s] %s -> %s len=%d crc=0x%04X (%s)\n",
		e.Timestamp().Format("15:04:05.000"), e.Source(), e.Destination(), e.Length(), e.CRC(), kind)
	if unknown {
		fmt.Println()
		return
	}

	s, err := telemetry.Decode(format, e.Payload())
	if err != nil {
		fmt.Printf("  \033[1;31mSKIPPED:\033[0m %v\n\n", err)
		return
	}
	fmt.Print(telemetry.FormatSnapshot(s))
	for _, issue := range telemetry.ValidateSnapshot(s) {
		fmt.Printf("  \033[1;33m%s:\033[0m %s\n", issue.Type, issue.Message)
	}
	fmt.Println()
}

func printReceiverStats(rx *receiver) {
	stats := rx.channel.Stats()
	dispatch := rx.dispatcher.Stats()

	fmt.Print(stats.String())
	fmt.Printf("Envelopes:       %8d\n", dispatch.Envelopes)
	fmt.Printf("Admissions:      %8d (%d failed)\n", dispatch.Admissions, dispatch.AdmissionErrors)
	fmt.Printf("Unknown Dropped: %8d\n", dispatch.UnknownDropped)
	fmt.Printf("Decode Errors:   %8d\n", dispatch.DecodeErrors)
	fmt.Printf("Peers:           %8d/%d\n\n", rx.registry.Len(), rx.table.Capacity())
}
