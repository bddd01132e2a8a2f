// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package streams

import (
	"fmt"
	"io"
	"sync"

	"github.com/Thermoquad/pusgate/pkg/pus"
)

// LinkWriter serialises packets onto a byte link such as a serial port or
// websocket connection
type LinkWriter struct {
	mu      sync.Mutex
	w       io.Writer
	buf     [pus.MaxPacketSize]byte
	packets uint64
	bytes   uint64
}

// NewLinkWriter creates a writer on w
func NewLinkWriter(w io.Writer) *LinkWriter {
	return &LinkWriter{w: w}
}

// Write encodes packet and writes it in a single call to the link
func (l *LinkWriter) Write(packet *pus.Packet) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := packet.SerializeTo(l.buf[:])
	if err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}
	if _, err := l.w.Write(l.buf[:n]); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	l.packets++
	l.bytes += uint64(n)
	return nil
}

// Counters returns the number of packets and bytes written
func (l *LinkWriter) Counters() (packets, bytes uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.packets, l.bytes
}
