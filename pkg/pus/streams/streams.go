// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package streams provides packet sinks and sources for application
// processes: an in-memory queue, a fan-out distributor, a link writer, a
// CBOR exporter and archive files.
package streams

import (
	"errors"
	"sync"

	"github.com/Thermoquad/pusgate/pkg/pus"
)

// Sink accepts outbound packets
type Sink interface {
	Write(packet *pus.Packet) error
}

// QueuedOutput buffers packets in FIFO order. It is safe for concurrent use.
type QueuedOutput struct {
	mu      sync.Mutex
	packets []*pus.Packet
}

// NewQueuedOutput creates an empty queue
func NewQueuedOutput() *QueuedOutput {
	return &QueuedOutput{}
}

// Write appends a packet to the queue
func (q *QueuedOutput) Write(packet *pus.Packet) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.packets = append(q.packets, packet)
	return nil
}

// Size returns the number of queued packets
func (q *QueuedOutput) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets)
}

// Empty reports whether the queue holds no packets
func (q *QueuedOutput) Empty() bool {
	return q.Size() == 0
}

// Get removes and returns the oldest packet, or nil when the queue is empty
func (q *QueuedOutput) Get() *pus.Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.packets) == 0 {
		return nil
	}
	packet := q.packets[0]
	q.packets[0] = nil
	q.packets = q.packets[1:]
	return packet
}

// Distributor writes every packet to each of its sinks
type Distributor struct {
	mu    sync.Mutex
	sinks []Sink
}

// NewDistributor creates a distributor over sinks
func NewDistributor(sinks ...Sink) *Distributor {
	return &Distributor{sinks: sinks}
}

// Add attaches another sink
func (d *Distributor) Add(sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, sink)
}

// Write passes packet to every sink. A failing sink does not stop delivery
// to the others; all failures are returned joined.
func (d *Distributor) Write(packet *pus.Packet) error {
	d.mu.Lock()
	sinks := append([]Sink(nil), d.sinks...)
	d.mu.Unlock()

	var errs []error
	for _, sink := range sinks {
		if err := sink.Write(packet); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
