// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/pusgate/pkg/pus"
	"github.com/Thermoquad/pusgate/pkg/pus/services"
	"github.com/Thermoquad/pusgate/pkg/pus/streams"
)

var (
	pingAPID    int
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send TC[17,1] connection tests and wait for TM[17,2]",
	Long: `Send PUS connection test requests to an application process and wait for
the connection test report.

Request verification reports for the test are printed as they arrive. This
is useful for verifying:
  - the link is established in both directions
  - the process routes telecommands addressed to its APID
  - the mission policy of both ends agrees

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingAPID, "apid", -1, "Target APID (default from config)")
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pol, err := cfg.BuildPolicy()
	if err != nil {
		return err
	}
	if pingCount <= 0 {
		return fmt.Errorf("invalid ping count %d", pingCount)
	}
	apid := cfg.Process.APID
	if pingAPID >= 0 {
		if pingAPID > pus.MaxAPID {
			return fmt.Errorf("APID %d exceeds %d", pingAPID, pus.MaxAPID)
		}
		apid = uint16(pingAPID)
	}

	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("pusgate - Connection Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Target APID: %d\n", apid)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := readPackets(ctx, conn, pol.DecodeOptions())
	link := streams.NewLinkWriter(conn)

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		opts := pol.TcOptions(apid, uint16(i)%pus.SeqCountRange, pus.ServiceTest, services.ConnectionTest, nil)
		opts.AckFlags = pus.AckAcceptance | pus.AckCompletion
		tc, err := pus.NewTcPacket(opts)
		if err != nil {
			return err
		}
		requestID := tc.RequestID()

		startTime := time.Now()
		if err := link.Write(tc); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		timeout := time.After(time.Duration(pingTimeout) * time.Second)
		var verifications []string
	wait:
		for {
			select {
			case event, ok := <-events:
				if !ok {
					fmt.Printf("READ FAILED: connection closed\n")
					failCount++
					break wait
				}
				if event.err != nil || event.packet.IsTC() || event.packet.APID() != apid {
					continue
				}
				p := event.packet
				switch {
				case p.Service() == pus.ServiceTest && p.Subservice() == services.ConnectionTestReport:
					rtt := time.Since(startTime)
					fmt.Printf("TM[17,2] from APID %d, seq=%d, rtt=%v", apid, p.SeqCount(), rtt.Round(time.Millisecond))
					for _, v := range verifications {
						fmt.Printf(" %s", v)
					}
					fmt.Println()
					successCount++
					break wait
				case p.Service() == pus.ServiceRequestVerification && bytes.HasPrefix(p.AppData(), requestID[:]):
					name := pus.FormatMessageType(p.Service(), p.Subservice())
					if p.Subservice()%2 == 0 {
						fmt.Printf("%s code=%x\n", name, p.AppData()[len(requestID):])
						failCount++
						break wait
					}
					verifications = append(verifications, name)
				}

			case <-timeout:
				fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
				failCount++
				break wait
			}
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
