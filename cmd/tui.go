// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/pusgate/pkg/pus"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// TUI model
type model struct {
	connInfo      string
	showAll       bool
	monitor       *linkMonitor
	services      table.Model
	errorLog      []errorLogEntry
	maxLogEntries int
	linkClosed    bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type linkEventMsg linkEvent
type linkClosedMsg struct{}

// formatElapsed formats a duration as a human-friendly string
func formatElapsed(d time.Duration) string {
	seconds := uint64(d / time.Second)
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

func newServiceTable() table.Model {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = lipgloss.NewStyle()

	return table.New(
		table.WithColumns([]table.Column{
			{Title: "Type", Width: 5},
			{Title: "Service", Width: 28},
			{Title: "Packets", Width: 10},
		}),
		table.WithHeight(8),
		table.WithStyles(styles),
	)
}

func initialModel(connInfo string, monitor *linkMonitor, showAll bool) model {
	return model{
		connInfo:      connInfo,
		showAll:       showAll,
		monitor:       monitor,
		services:      newServiceTable(),
		errorLog:      make([]errorLogEntry, 0),
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
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
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

	case tickMsg:
		m.monitor.stats.CalculateRates()
		return m, tickCmd()

	case linkClosedMsg:
		m.linkClosed = true
		m.addLogEntry("Connection closed", true)

	case linkEventMsg:
		m.handleEvent(linkEvent(msg))
	}

	return m, nil
}

func (m *model) handleEvent(event linkEvent) {
	wasSynchronized := m.monitor.synchronized
	anomalies, counted := m.monitor.observe(event)
	if !counted {
		return
	}
	if !wasSynchronized && m.monitor.synchronized {
		if m.monitor.skipped > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", m.monitor.skipped), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}
	}

	if event.err != nil {
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", event.err), true)
		return
	}

	msgType := pus.FormatMessageType(event.packet.Service(), event.packet.Subservice())
	if len(anomalies) > 0 {
		for _, anomaly := range anomalies {
			m.addLogEntry(fmt.Sprintf("%s: %s", msgType, anomaly.Message), true)
		}
	} else if m.showAll {
		m.addLogEntry(fmt.Sprintf("%s apid=%d seq=%d (valid)", msgType, event.packet.APID(), event.packet.SeqCount()), false)
	}
	m.refreshServices()
}

func (m *model) refreshServices() {
	stats := m.monitor.stats
	rows := make([]table.Row, 0, len(stats.PerService))
	for _, t := range stats.ServiceTypes() {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", t),
			pus.FormatServiceType(t),
			fmt.Sprintf("%d", stats.PerService[t]),
		})
	}
	m.services.SetRows(rows)
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	stats := m.monitor.stats

	var s strings.Builder
	s.WriteString(titleStyle.Render("PUSGATE - LINK MONITOR"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All packets"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Up %s | Press 'q' to quit",
		m.connInfo, mode, formatElapsed(time.Since(stats.StartTime)))))
	s.WriteString("\n\n")

	switch {
	case m.linkClosed:
		s.WriteString(errorStyle.Render("✗ Connection closed"))
	case !m.monitor.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.monitor.skipped > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.monitor.skipped)))
		}
	}
	s.WriteString("\n\n")

	stats.CalculateRates()
	var validPercent, errorPercent float64
	if stats.TotalPackets > 0 {
		validPercent = float64(stats.ValidPackets) * 100.0 / float64(stats.TotalPackets)
		errorPercent = float64(stats.Errors()) * 100.0 / float64(stats.TotalPackets)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d (TC %d, TM %d)", stats.TotalPackets, stats.TCPackets, stats.TMPackets)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.ValidPackets, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.Errors(), errorPercent)),
	))

	if stats.CRCErrors > 0 || stats.DecodeErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("CRC Errors:"), errorStyle.Render(fmt.Sprintf("%d", stats.CRCErrors)),
			statsLabelStyle.Render("Decode Errors:"), errorStyle.Render(fmt.Sprintf("%d", stats.DecodeErrors)),
		))
	}

	if stats.Anomalies > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalies:"), warningStyle.Render(fmt.Sprintf("%d", stats.Anomalies)),
			headerStyle.Render("version"), stats.VersionErrors,
			headerStyle.Render("gaps"), stats.SequenceGaps,
			headerStyle.Render("unknown service"), stats.UnknownServices,
			headerStyle.Render("idle"), stats.IdlePackets,
		))
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	if stats.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", stats.PacketRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	if len(stats.PerService) > 0 {
		s.WriteString(statsLabelStyle.Render("Services:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(m.services.View()))
		s.WriteString("\n\n")
	}

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 15
	if len(stats.PerService) > 0 {
		logHeight -= 12
	}
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
