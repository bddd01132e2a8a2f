// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/streams"
)

var rawLogCBOR string

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously decode and display TC and TM packets as they arrive.

Each packet is printed on one line with its timestamp, service and subservice,
message name, APID, sequence count, secondary header fields and application
data. Decoding follows the mission policy of the --config file.

With --cbor the packets are also exported as CBOR records.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogCBOR, "cbor", "", "Also export packets as CBOR records to this file")
}

func runRawLog(cmd *cobra.Command, args []string) error {
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
		return err
	}
	defer conn.Close()

	var sink streams.Sink
	if rawLogCBOR != "" {
		exporter, closeExport, err := createCBORExport(rawLogCBOR)
		if err != nil {
			return err
		}
		defer closeExport()
		sink = exporter
	}

	fmt.Printf("pusgate - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for event := range readPackets(ctx, conn, pol.DecodeOptions()) {
		if event.err != nil {
			fmt.Printf("[ERROR] %v\n", event.err)
			continue
		}
		fmt.Print(pus.FormatPacket(event.packet))
		if sink != nil {
			if err := sink.Write(event.packet); err != nil {
				return err
			}
		}
	}
	return nil
}
