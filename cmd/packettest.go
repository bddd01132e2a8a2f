// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/pusgate/pkg/pus"
)

var packetTestTimeout int

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid space packet",
	Long: `Wait for a valid space packet on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any TC or
TM packet that decodes under the mission policy, PEC included. Bytes that
cannot start a packet are skipped.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a packet")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("pusgate - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid space packet...\n\n")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(packetTestTimeout)*time.Second)
	defer cancel()

	skipped := 0
	for event := range readPackets(ctx, conn, pol.DecodeOptions()) {
		if event.err != nil {
			skipped++
			continue
		}
		if skipped > 0 {
			fmt.Printf("(%d decode errors before sync)\n", skipped)
		}
		p := event.packet
		fmt.Printf("SUCCESS: Received valid packet\n")
		fmt.Printf("  Kind: %s\n", kindName(p))
		if p.Header.SecHeaderFlag {
			fmt.Printf("  Type: %s [%d,%d]\n", pus.FormatMessageType(p.Service(), p.Subservice()), p.Service(), p.Subservice())
		}
		fmt.Printf("  APID: %d\n", p.APID())
		fmt.Printf("  Sequence: %d\n", p.SeqCount())
		fmt.Printf("  Length: %d bytes\n", p.Size())
		os.Exit(0)
	}

	if ctx.Err() != nil {
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Read error: connection closed\n")
	os.Exit(2)
	return nil
}

func kindName(p *pus.Packet) string {
	if p.IsTC() {
		return "telecommand"
	}
	return "telemetry"
}
