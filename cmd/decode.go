// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/policy"
)

var decodeCmd = &cobra.Command{
	Use:   "decode HEX",
	Short: "Decode one TC or TM packet given as hex",
	Long: `Decode a single space packet and print its fields.

The packet bytes may be separated by spaces or colons and may carry a 0x
prefix. The optional fields, PEC and time code follow the mission policy of
the --config file. Anomalies such as an unexpected PUS version or an
unknown service are listed after the packet.`,
	Example: "  pusgate decode '18 10 c0 01 00 04 21 11 01 37 16'",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		pol, err := cfg.BuildPolicy()
		if err != nil {
			return err
		}
		data, err := parseHex(strings.Join(args, " "))
		if err != nil {
			return err
		}
		return decodePacket(cmd.OutOrStdout(), data, pol)
	},
}

var crcCmd = &cobra.Command{
	Use:   "crc HEX",
	Short: "Print the CRC-16/CCITT checksum of hex bytes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseHex(strings.Join(args, " "))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "CRC: 0x%04X\n", pus.Checksum(data))
		if len(data) >= pus.PECSize {
			status := "no"
			if pus.ChecksumValid(data) {
				status = "yes"
			}
			fmt.Fprintf(out, "Ends with valid PEC: %s\n", status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(crcCmd)
}

// parseHex accepts hex digits separated by whitespace or colons, with or
// without 0x prefixes
func parseHex(s string) ([]byte, error) {
	var b strings.Builder
	for _, field := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ':' || r == ',' || r == '\t' || r == '\n'
	}) {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		b.WriteString(field)
	}
	data, err := hex.DecodeString(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no bytes given")
	}
	return data, nil
}

func decodePacket(out io.Writer, data []byte, pol *policy.Policy) error {
	opts := pol.DecodeOptions()
	opts.ValidateFields = false
	packet, n, err := pus.Deserialize(data, opts)
	if err != nil {
		return err
	}

	fmt.Fprint(out, pus.FormatPacket(packet))
	fmt.Fprintf(out, "  length=%d", n)
	if packet.IsTC() {
		id := packet.RequestID()
		fmt.Fprintf(out, " request_id=%s", hex.EncodeToString(id[:]))
	}
	fmt.Fprintln(out)
	if n < len(data) {
		fmt.Fprintf(out, "  %d trailing bytes ignored\n", len(data)-n)
	}
	if err := packet.Validate(); err != nil {
		fmt.Fprintf(out, "  invalid: %v\n", err)
	}
	for _, anomaly := range pus.ValidatePacket(packet, pol.Expectations()) {
		fmt.Fprintf(out, "  anomaly: %s\n", anomaly.Message)
	}
	return nil
}
