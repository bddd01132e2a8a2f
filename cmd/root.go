// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/pusgate/internal/config"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "pusgate",
	Short: "ECSS PUS gateway and packet analyzer",
	Long: `pusgate - A CLI tool for hosting and monitoring ECSS PUS application processes
over CCSDS space packets.

Decodes TC and TM packets from serial or WebSocket links, reports link
statistics and anomalies, reads packet archives and runs an application
process with request verification, housekeeping, event reporting, function
management, test and parameter management services.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the PUSGATE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "0.3.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads --config when given and lets the connection flags
// override its link section
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Link.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Link.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Link.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Link.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Link.NoSSLVerify = wsNoSSLVerify
	}
	if cfg.Link.Baud <= 0 {
		return cfg, fmt.Errorf("invalid baud rate %d", cfg.Link.Baud)
	}
	return cfg, nil
}

// setupLogging installs the configured logger as the default and returns a
// function releasing the log file
func setupLogging(cfg config.Config, stdout io.Writer) (func(), error) {
	logger, closer, err := config.SetupLogging(cfg.Log, stdout)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return func() {
		if err := closer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}, nil
}
