// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/streams"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Host a PUS application process on a link",
	Long: `Run the application process described by the --config file.

Telecommands received on the link for the process APID are routed to their
service and answered with request verification reports. Enabled
housekeeping reports are generated every housekeeping tick. All telemetry
is written back to the link and, when configured, appended to the packet
archive and the CBOR export.

Example configuration:

  process:
    apid: 0x42
    services: [3, 5, 8, 17, 20]
    parameters:
      - {id: 1, type: uint16, value: 0}
    housekeeping:
      - {sid: 1, interval: 10, params: [1], enabled: true}
  link:
    port: /dev/ttyUSB0
  archive:
    path: tm.bin
    compress: true`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer closeLog()

	pol, err := cfg.BuildPolicy()
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	output := streams.NewDistributor(streams.NewLinkWriter(conn))
	if cfg.Archive.Path != "" {
		archive, err := streams.CreateFileOutput(cfg.Archive.Path, cfg.Archive.OtherHeaderSize, cfg.Archive.Compress)
		if err != nil {
			return err
		}
		defer func() {
			if err := archive.Close(); err != nil {
				slog.Error("Failed to close archive", "path", cfg.Archive.Path, "error", err)
			}
		}()
		output.Add(archive)
	}
	if cfg.Archive.CBOR != "" {
		exporter, closeExport, err := createCBORExport(cfg.Archive.CBOR)
		if err != nil {
			return err
		}
		defer closeExport()
		output.Add(exporter)
	}

	p, err := cfg.NewProcess(output, slog.Default())
	if err != nil {
		return err
	}
	slog.Info("Starting application process", "apid", p.APID(), "connection", connInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tcs := make(chan *pus.Packet, 16)
	go func() {
		defer close(tcs)
		for event := range readPackets(ctx, conn, pol.DecodeOptions()) {
			if event.err != nil {
				slog.Debug("Dropping undecodable bytes", "error", event.err)
				continue
			}
			if !event.packet.IsTC() {
				continue
			}
			select {
			case tcs <- event.packet:
			case <-ctx.Done():
				return
			}
		}
	}()

	err = p.Run(ctx, tcs)
	if errors.Is(err, context.Canceled) {
		slog.Info("Application process stopped")
		return nil
	}
	return err
}
