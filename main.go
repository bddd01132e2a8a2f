// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// pusgate - ECSS PUS Application Process Gateway
//
// A CLI tool that runs PUS application processes over CCSDS space packet
// links and inspects, archives and commands those links.

package main

import (
	"os"

	"github.com/Thermoquad/pusgate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
