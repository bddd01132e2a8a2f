// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package process

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/pusgate/pkg/pus"
)

// periodic is an action run by Run at a fixed interval
type periodic struct {
	interval time.Duration
	action   func() error
}

func (a *periodic) run(ctx context.Context, due chan<- *periodic) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case due <- a:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Every schedules action to run every interval while Run is active. It must
// be called before Run.
func (p *Process) Every(interval time.Duration, action func() error) {
	if interval <= 0 {
		p.log.Warn("Ignoring periodic action with non-positive interval", "interval", interval)
		return
	}
	p.actions = append(p.actions, &periodic{interval: interval, action: action})
}

// Run forwards and processes telecommands from tcs and runs the periodic
// actions until ctx is done or tcs is closed. Everything runs on the calling
// goroutine, so handlers and parameters need no locking.
func (p *Process) Run(ctx context.Context, tcs <-chan *pus.Packet) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	due := make(chan *periodic)
	for _, a := range p.actions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.run(ctx, due)
		}()
	}

	p.log.Info("Application process running", "services", len(p.services), "actions", len(p.actions))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tc, ok := <-tcs:
			if !ok {
				return nil
			}
			if err := p.Forward(tc); err != nil {
				p.log.Warn("Telecommand not routed", "error", err)
				continue
			}
			if err := p.Process(); err != nil {
				p.log.Warn("Telecommand processing reported errors", "error", err)
			}
		case a := <-due:
			if err := a.action(); err != nil {
				p.log.Warn("Periodic action failed", "error", err)
			}
		}
	}
}
