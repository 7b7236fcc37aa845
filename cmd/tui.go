// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/echometer/pkg/echo"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// TUI model
type model struct {
	connInfo      string
	dev           *echo.Device
	snapshot      echo.Snapshot
	fill          progress.Model
	eventLog      []eventLogEntry
	maxLogEntries int
	linkDown      bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type deviceEventMsg echo.Event
type logLineMsg string
type linkDownMsg struct {
	err error
}

const refreshInterval = 100 * time.Millisecond

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
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

func initialModel(connInfo string, dev *echo.Device) model {
	return model{
		connInfo:      connInfo,
		dev:           dev,
		snapshot:      dev.Snapshot(),
		fill:          progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.fill.Width = max(msg.Width-24, 10)

	case tickMsg:
		m.snapshot = m.dev.Snapshot()
		return m, tickCmd()

	case deviceEventMsg:
		ev := echo.Event(msg)
		m.addLogEntry(ev.Time, describeEvent(ev), ev.Kind == echo.EventTransmitError)

	case logLineMsg:
		m.addLogEntry(time.Now(), string(msg), true)

	case linkDownMsg:
		m.linkDown = true
		if msg.err != nil {
			m.addLogEntry(time.Now(), fmt.Sprintf("Link down: %v", msg.err), true)
		}
	}

	return m, nil
}

// describeEvent is the event log wording for a device event
func describeEvent(ev echo.Event) string {
	switch ev.Kind {
	case echo.EventBanner:
		return "Banner sent, ready to receive"
	case echo.EventCycleStart:
		return "Receiving"
	case echo.EventReport:
		return fmt.Sprintf("Speed: %d bps", ev.Speed)
	case echo.EventFlush:
		msg := fmt.Sprintf("Echoed %d of %d captured bytes", ev.Echoed, ev.Captured)
		if ev.Dropped > 0 {
			msg += fmt.Sprintf(", %d dropped", ev.Dropped)
		}
		return msg
	case echo.EventTransmitError:
		return fmt.Sprintf("Transmit error: %v", ev.Err)
	default:
		return ev.Kind.String()
	}
}

func (m *model) addLogEntry(ts time.Time, message string, isError bool) {
	entry := eventLogEntry{
		timestamp: ts,
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("ECHOMETER - LOOP-BACK DEVICE"))
	s.WriteString("\n")
	cfg := m.dev.Config()
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Replay: %s | Press 'q' to quit", m.connInfo, cfg.Replay)))
	s.WriteString("\n\n")

	// Cycle state
	snap := m.snapshot
	switch {
	case m.linkDown:
		s.WriteString(errorStyle.Render("✗ Link down"))
	case snap.State == echo.StateReceiving:
		s.WriteString(valueStyle.Render("● Receiving"))
	case snap.DataProduced:
		s.WriteString(infoStyle.Render(fmt.Sprintf("◌ Quiet for %v (flush after %v)",
			snap.Quiet.Round(10*time.Millisecond), cfg.QuietThreshold)))
	default:
		s.WriteString(headerStyle.Render("○ Idle, buffer empty"))
	}
	s.WriteString("\n\n")

	// Buffer fill
	fraction := 0.0
	if snap.Capacity > 0 {
		fraction = float64(snap.Cursor) / float64(snap.Capacity)
	}
	bufContent := strings.Builder{}
	bufContent.WriteString(fmt.Sprintf("%s %s %s\n",
		labelStyle.Render("Buffer:"),
		m.fill.ViewAs(fraction),
		valueStyle.Render(fmt.Sprintf("%d/%d", snap.Cursor, snap.Capacity)),
	))
	bufContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Window bytes:"), valueStyle.Render(fmt.Sprintf("%d", snap.WindowBytes)),
		labelStyle.Render("Elapsed:"), valueStyle.Render(fmt.Sprintf("%d ms", snap.ElapsedMs)),
	))
	s.WriteString(boxStyle.Render(bufContent.String()))
	s.WriteString("\n\n")

	// Statistics
	stats := m.dev.Stats()
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Cycles:"), valueStyle.Render(fmt.Sprintf("%d", stats.Cycles.Load())),
		labelStyle.Render("Received:"), valueStyle.Render(fmt.Sprintf("%d", stats.BytesReceived.Load())),
		labelStyle.Render("Echoed:"), valueStyle.Render(fmt.Sprintf("%d", stats.BytesEchoed.Load())),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("Last Speed:"), valueStyle.Render(fmt.Sprintf("%d bps", stats.LastSpeed.Load())),
		labelStyle.Render("Peak Speed:"), valueStyle.Render(fmt.Sprintf("%d bps", stats.PeakSpeed.Load())),
	))
	if dropped := stats.BytesDropped.Load(); dropped > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render("Dropped:"), errorStyle.Render(fmt.Sprintf("%d (buffer full)", dropped)),
		))
	}
	if errs := stats.TransmitErrors.Load(); errs > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render("Transmit Errors:"), errorStyle.Render(fmt.Sprintf("%d", errs)),
		))
	}
	uptime := uint64(time.Since(stats.StartTime).Milliseconds())
	statsContent.WriteString(fmt.Sprintf("%s %s",
		labelStyle.Render("Uptime:"), valueStyle.Render(formatUptime(uptime)),
	))
	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 18 // Reserve space for header, buffer and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					infoStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
