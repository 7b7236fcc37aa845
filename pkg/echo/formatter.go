// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package echo

import "fmt"

// FormatEvent formats an observer notification as a single log line.
func FormatEvent(ev Event) string {
	timestamp := ev.Time.Format("15:04:05.000")

	switch ev.Kind {
	case EventBanner:
		return fmt.Sprintf("[%s] BANNER sent, ready to receive", timestamp)
	case EventCycleStart:
		return fmt.Sprintf("[%s] CYCLE_START first byte received", timestamp)
	case EventReport:
		return fmt.Sprintf("[%s] REPORT %d bps", timestamp, ev.Speed)
	case EventFlush:
		result := fmt.Sprintf("[%s] FLUSH captured=%d echoed=%d", timestamp, ev.Captured, ev.Echoed)
		if ev.Dropped > 0 {
			result += fmt.Sprintf(" dropped=%d", ev.Dropped)
		}
		if !ev.Terminated {
			result += " (buffer full, no end marker)"
		} else if ev.Echoed < ev.Captured {
			result += fmt.Sprintf(" (truncated at byte %d)", ev.Echoed)
		}
		return result
	case EventTransmitError:
		return fmt.Sprintf("[%s] TRANSMIT_ERROR %v", timestamp, ev.Err)
	default:
		return fmt.Sprintf("[%s] %s", timestamp, ev.Kind)
	}
}
