// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/services"
	"github.com/Thermoquad/pusgate/pkg/pus/streams"
)

var (
	discoveryTimeout int
	discoveryProbe   []uint
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover application processes on a link",
	Long: `Listen to a link and list the application processes heard on it.

Every APID that sends telemetry is listed with its packet count and the
services it reported. With --probe, a TC[17,1] connection test is sent to
each given APID first so that quiet processes answer too.

Examples:
  # Passive discovery
  pusgate discovery --port /dev/ttyUSB0

  # Probe APIDs 16 and 17 over a WebSocket bridge
  pusgate discovery --url ws://bridge.local/pus --probe 16,17

Exit codes:
  0 - Discovery successful (at least one process found)
  1 - Discovery failed (no process heard before timeout)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 5, "Listening time in seconds")
	discoveryCmd.Flags().UintSliceVar(&discoveryProbe, "probe", nil, "APIDs to send a connection test to")
}

// discoveredProcess is what was heard from one APID
type discoveredProcess struct {
	apid     uint16
	packets  int
	services map[uint8]int
	answered bool
}

// discoverySet collects telemetry sources
type discoverySet map[uint16]*discoveredProcess

func (d discoverySet) observe(p *pus.Packet) (*discoveredProcess, bool) {
	if p.IsTC() || p.APID() == pus.IdleAPID {
		return nil, false
	}
	proc, seen := d[p.APID()]
	if !seen {
		proc = &discoveredProcess{apid: p.APID(), services: make(map[uint8]int)}
		d[p.APID()] = proc
	}
	proc.packets++
	if p.Header.SecHeaderFlag {
		proc.services[p.Service()]++
		if p.Service() == pus.ServiceTest && p.Subservice() == services.ConnectionTestReport {
			proc.answered = true
		}
	}
	return proc, !seen
}

func (d discoverySet) print(out io.Writer) {
	for _, apid := range slices.Sorted(maps.Keys(d)) {
		proc := d[apid]
		names := make([]string, 0, len(proc.services))
		for _, t := range slices.Sorted(maps.Keys(proc.services)) {
			names = append(names, fmt.Sprintf("%s=%d", pus.FormatServiceType(t), proc.services[t]))
		}
		answered := ""
		if proc.answered {
			answered = " (answered connection test)"
		}
		fmt.Fprintf(out, "  APID %4d: %d packets%s\n", apid, proc.packets, answered)
		if len(names) > 0 {
			fmt.Fprintf(out, "             %s\n", strings.Join(names, ", "))
		}
	}
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pol, err := cfg.BuildPolicy()
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("pusgate - Process Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n\n", discoveryTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(discoveryTimeout)*time.Second)
	defer cancel()
	events := readPackets(ctx, conn, pol.DecodeOptions())

	link := streams.NewLinkWriter(conn)
	for i, apid := range discoveryProbe {
		if apid > pus.MaxAPID {
			return fmt.Errorf("APID %d exceeds %d", apid, pus.MaxAPID)
		}
		tc, err := pol.NewTcPacket(uint16(apid), uint16(i)%pus.SeqCountRange, pus.ServiceTest, services.ConnectionTest, nil)
		if err != nil {
			return err
		}
		fmt.Printf("Sending TC[17,1] to APID %d...\n", apid)
		if err := link.Write(tc); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			os.Exit(2)
		}
	}

	found := make(discoverySet)
	for event := range events {
		if event.err != nil {
			continue
		}
		if proc, isNew := found.observe(event.packet); isNew {
			fmt.Printf("Process found: APID %d\n", proc.apid)
		}
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Processes found: %d\n", len(found))
	found.print(os.Stdout)

	if len(found) == 0 {
		fmt.Printf("No telemetry heard. Check connection and mission policy.\n")
		os.Exit(1)
	}
	return nil
}
