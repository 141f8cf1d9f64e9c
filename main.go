// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Gaugelink - ESP-NOW dashboard telemetry receiver
//
// Receives telemetry frames from dashboard senders through an ESP-NOW bridge
// and shows them on a terminal gauge dashboard.

package main

import (
	"os"

	"github.com/Thermoquad/gaugelink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
