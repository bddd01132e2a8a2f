// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/policy"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor a link for malformed packets and anomalies",
	Long: `Track packet errors and protocol anomalies on a link with statistics.

This command validates each packet and detects:
  - CRC errors and decode failures
  - Unexpected PUS versions and unknown service types
  - Sequence count gaps per APID
  - Idle packets and telecommands without a secondary header

By default, only errors are displayed. Use --show-all to display valid packets too.

Packets are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all packets (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pol, err := cfg.BuildPolicy()
	if err != nil {
		return err
	}
	if statsInterval <= 0 {
		return fmt.Errorf("invalid statistics interval %d", statsInterval)
	}

	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	events := readPackets(ctx, conn, pol.DecodeOptions())

	if useTUI {
		return runTUIMode(ctx, connInfo, pol, events)
	}
	return runTextMode(ctx, connInfo, pol, events)
}

// linkMonitor validates packets and ignores decode errors until the stream
// first synchronises
type linkMonitor struct {
	expectations pus.Expectations
	stats        *pus.Statistics
	tracker      *pus.SequenceTracker
	synchronized bool
	skipped      int
}

func newLinkMonitor(pol *policy.Policy) *linkMonitor {
	return &linkMonitor{
		expectations: pol.Expectations(),
		stats:        pus.NewStatistics(),
		tracker:      pus.NewSequenceTracker(),
	}
}

// observe updates the statistics. It returns the anomalies of a packet and
// whether the event counts, which decode errors before sync do not.
func (m *linkMonitor) observe(event linkEvent) ([]pus.ValidationError, bool) {
	if event.err != nil {
		if !m.synchronized {
			m.skipped++
			return nil, false
		}
		m.stats.Update(nil, event.err, nil)
		return nil, true
	}

	m.synchronized = true
	anomalies := pus.ValidatePacket(event.packet, m.expectations)
	if gap := m.tracker.Check(event.packet); gap != nil {
		anomalies = append(anomalies, *gap)
	}
	m.stats.Update(event.packet, nil, anomalies)
	return anomalies, true
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> DECODE FAILED <<<\n\n")
}

// printValidationErrors prints the anomalies of a packet
func printValidationErrors(packet *pus.Packet, anomalies []pus.ValidationError) {
	timestamp := packet.Timestamp().Format("15:04:05.000")
	msgType := pus.FormatMessageType(packet.Service(), packet.Subservice())

	fmt.Printf("[%s] \033[1;33mANOMALY:\033[0m %s apid=%d seq=%d\n", timestamp, msgType, packet.APID(), packet.SeqCount())
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")
	for i, anomaly := range anomalies {
		switch anomaly.Type {
		case pus.AnomalyPusVersion, pus.AnomalyMissingSecondaryHeader:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, anomaly.Message)
		case pus.AnomalySequenceGap:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, anomaly.Message)
			if missing, ok := anomaly.Details["missing"].(int); ok {
				fmt.Printf("    %d packets missing\n", missing)
			}
		default:
			fmt.Printf("  Issue %d: %s\n", i+1, anomaly.Message)
		}
	}
	fmt.Println()
}

// runTUIMode runs the monitor in the terminal UI
func runTUIMode(ctx context.Context, connInfo string, pol *policy.Policy, events <-chan linkEvent) error {
	m := initialModel(connInfo, newLinkMonitor(pol), showAll)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	go func() {
		for event := range events {
			p.Send(linkEventMsg(event))
		}
		p.Send(linkClosedMsg{})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs the monitor with plain output
func runTextMode(ctx context.Context, connInfo string, pol *policy.Policy, events <-chan linkEvent) error {
	fmt.Printf("pusgate - Link Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All packets\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	monitor := newLinkMonitor(pol)
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Print(monitor.stats.String())
			return nil

		case event, ok := <-events:
			if !ok {
				fmt.Print(monitor.stats.String())
				return nil
			}
			wasSynchronized := monitor.synchronized
			anomalies, counted := monitor.observe(event)
			if !counted {
				continue
			}
			if !wasSynchronized && monitor.synchronized {
				if monitor.skipped > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", monitor.skipped)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			switch {
			case event.err != nil:
				printDecodeError(event.err)
			case len(anomalies) > 0:
				printValidationErrors(event.packet, anomalies)
			case showAll:
				fmt.Print(pus.FormatPacket(event.packet))
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(monitor.stats.String())
			fmt.Println()
		}
	}
}
