// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"
)

// formatUptime formats a duration as a human-friendly string such as
// "1 hour, 2 minutes, and 5 seconds"
func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	for _, unit := range []struct {
		count int64
		name  string
	}{
		{days, "day"},
		{hours, "hour"},
		{minutes, "minute"},
	} {
		switch {
		case unit.count == 1:
			parts = append(parts, "1 "+unit.name)
		case unit.count > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", unit.count, unit.name))
		}
	}
	if seconds > 0 || len(parts) == 0 {
		if seconds == 1 {
			parts = append(parts, "1 second")
		} else {
			parts = append(parts, fmt.Sprintf("%d seconds", seconds))
		}
	}

	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

// formatAge formats the time since a frame arrived
func formatAge(d time.Duration) string {
	if d < 10*time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return formatUptime(d)
}
