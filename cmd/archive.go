// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/policy"
	"github.com/Thermoquad/pusgate/pkg/pus/streams"
)

var (
	archiveOtherHeader int
	archiveCBOR        string
	archiveLimit       int
)

var archiveCmd = &cobra.Command{
	Use:   "archive FILE",
	Short: "List the packets stored in an archive file",
	Long: `Read a packet archive and print every packet with its offset.

Archives are concatenated space packets, each optionally preceded by a fixed
size header from another layer (--other-header). Archives compressed with
zstd are detected automatically. With --cbor the packets are exported as
CBOR records as well.

A statistics summary follows the listing.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().IntVar(&archiveOtherHeader, "other-header", -1, "Size of the header preceding each packet (default from config)")
	archiveCmd.Flags().StringVar(&archiveCBOR, "cbor", "", "Export packets as CBOR records to this file")
	archiveCmd.Flags().IntVar(&archiveLimit, "limit", 0, "Stop after this many packets (0 for all)")
}

func runArchive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pol, err := cfg.BuildPolicy()
	if err != nil {
		return err
	}
	otherHeader := cfg.Archive.OtherHeaderSize
	if archiveOtherHeader >= 0 {
		otherHeader = archiveOtherHeader
	}

	var sink streams.Sink
	if archiveCBOR != "" {
		exporter, closeExport, err := createCBORExport(archiveCBOR)
		if err != nil {
			return err
		}
		defer closeExport()
		sink = exporter
	}

	input := streams.NewFileInput(args[0], pol.DecodeOptions(), otherHeader)
	return listArchive(cmd.OutOrStdout(), input, pol, sink, archiveLimit)
}

func listArchive(out io.Writer, input *streams.FileInput, pol *policy.Policy, sink streams.Sink, limit int) error {
	stats := pus.NewStatistics()
	tracker := pus.NewSequenceTracker()
	count := 0
	for entry, err := range input.All() {
		if err != nil {
			stats.Update(nil, err, nil)
			fmt.Fprint(out, stats.String())
			return err
		}

		anomalies := pus.ValidatePacket(entry.Packet, pol.Expectations())
		if gap := tracker.Check(entry.Packet); gap != nil {
			anomalies = append(anomalies, *gap)
		}
		stats.Update(entry.Packet, nil, anomalies)

		fmt.Fprintf(out, "%08d ", entry.Offset)
		if len(entry.OtherHeader) > 0 {
			fmt.Fprintf(out, "<%s> ", hex.EncodeToString(entry.OtherHeader))
		}
		fmt.Fprint(out, pus.FormatPacket(entry.Packet))
		for _, anomaly := range anomalies {
			fmt.Fprintf(out, "  anomaly: %s\n", anomaly.Message)
		}

		if sink != nil {
			if err := sink.Write(entry.Packet); err != nil {
				return err
			}
		}
		count++
		if limit > 0 && count >= limit {
			break
		}
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, stats.String())
	return nil
}

// createCBORExport opens a CBOR export file. The returned function flushes
// and closes it.
func createCBORExport(path string) (*streams.CBORWriter, func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CBOR export: %w", err)
	}
	buf := bufio.NewWriter(f)
	closeExport := func() {
		if err := buf.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", path, err)
		}
		f.Close()
	}
	return streams.NewCBORWriter(buf), closeExport, nil
}
