// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/pusgate/internal/config"
	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/streams"
)

var (
	sendAPID       int
	sendService    uint8
	sendSubservice uint8
	sendAck        []string
	sendTimeout    int
)

var sendCmd = &cobra.Command{
	Use:   "send [HEX]",
	Short: "Send a telecommand and follow its verification",
	Long: `Send one telecommand and print the telemetry it causes.

The application data is given as hex bytes. After sending, every TM packet
from the target APID is printed until the completion report arrives, a
failure report arrives or the timeout expires.

Examples:
  # Enable housekeeping structure 1
  pusgate send --service 3 --subservice 5 --ack acceptance,completion "00 01 00 01"

  # Set parameter 7 to 0x2A
  pusgate send --apid 16 --service 20 --subservice 3 "00 01 00 07 2a"

Exit codes:
  0 - Command completed, or no completion report was requested
  1 - Failure report received or timeout
  2 - Connection error`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVar(&sendAPID, "apid", -1, "Target APID (default from config)")
	sendCmd.Flags().Uint8Var(&sendService, "service", 17, "Service type")
	sendCmd.Flags().Uint8Var(&sendSubservice, "subservice", 1, "Message subtype")
	sendCmd.Flags().StringSliceVar(&sendAck, "ack", []string{"acceptance", "completion"}, "Acknowledgement flags")
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 5, "Seconds to wait for reports")
}

// verificationOutcome tracks the service 1 reports for one request
type verificationOutcome struct {
	requestID [4]byte
	ack       pus.AckFlags
	failed    bool
	completed bool
}

// observe inspects a TM packet and reports whether the request is settled
func (v *verificationOutcome) observe(p *pus.Packet) bool {
	if p.Service() != pus.ServiceRequestVerification || !bytes.HasPrefix(p.AppData(), v.requestID[:]) {
		return false
	}
	if p.Subservice()%2 == 0 {
		v.failed = true
		return true
	}
	if p.Subservice() == 7 {
		v.completed = true
	}
	return p.Subservice() == v.finalReport()
}

// finalReport is the success subtype of the last stage the request asked for
func (v *verificationOutcome) finalReport() uint8 {
	switch {
	case v.ack&pus.AckCompletion != 0:
		return 7
	case v.ack&pus.AckProgress != 0:
		return 5
	case v.ack&pus.AckStart != 0:
		return 3
	case v.ack&pus.AckAcceptance != 0:
		return 1
	}
	return 0
}

func (v *verificationOutcome) expectsReports() bool {
	return v.ack != pus.AckNone
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pol, err := cfg.BuildPolicy()
	if err != nil {
		return err
	}
	ack, err := config.ParseAckFlags(sendAck)
	if err != nil {
		return fmt.Errorf("--ack: %w", err)
	}
	var data []byte
	if len(args) == 1 {
		if data, err = parseHex(args[0]); err != nil {
			return err
		}
	}

	apid := cfg.Process.APID
	if sendAPID >= 0 {
		if sendAPID > pus.MaxAPID {
			return fmt.Errorf("APID %d exceeds %d", sendAPID, pus.MaxAPID)
		}
		apid = uint16(sendAPID)
	}

	opts := pol.TcOptions(apid, 0, sendService, sendSubservice, data)
	opts.AckFlags = ack
	tc, err := pus.NewTcPacket(opts)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Sending: %s\n", pus.FormatPacket(tc))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(sendTimeout)*time.Second)
	defer cancel()
	events := readPackets(ctx, conn, pol.DecodeOptions())

	if err := streams.NewLinkWriter(conn).Write(tc); err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		os.Exit(2)
	}

	outcome := &verificationOutcome{requestID: tc.RequestID(), ack: ack}
	if followReports(os.Stdout, events, apid, outcome) {
		if outcome.failed {
			fmt.Fprintf(os.Stderr, "FAILED: request rejected\n")
			os.Exit(1)
		}
		if outcome.completed {
			fmt.Printf("Command completed\n")
		}
		return nil
	}
	if !outcome.expectsReports() {
		return nil
	}
	fmt.Fprintf(os.Stderr, "TIMEOUT: request not settled within %d seconds\n", sendTimeout)
	os.Exit(1)
	return nil
}

// followReports prints telemetry from apid until the request settles or the
// event stream ends
func followReports(out io.Writer, events <-chan linkEvent, apid uint16, outcome *verificationOutcome) bool {
	for event := range events {
		if event.err != nil || event.packet.IsTC() || event.packet.APID() != apid {
			continue
		}
		p := event.packet
		fmt.Fprintf(out, "%s\n", strings.TrimRight(pus.FormatPacket(p), "\n"))
		if outcome.observe(p) {
			return true
		}
	}
	return false
}
