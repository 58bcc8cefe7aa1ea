package pool

import (
	"context"
	"log"
	"time"
)

// healthCheckTimeout is the hard-coded per-probe timeout for health-cycle
// probes. It intentionally ignores proxy.test_timeout — the health loop
// trades rigor for a light, cheap recurring cost (spec §4.3 step 3).
const healthCheckTimeout = 3 * time.Second

// StartHealthLoop launches the background health-check task. It is
// idempotent per process thanks to healthOnce, but callers must still only
// invoke it once per intended lifetime — see spec §9 "Health loop
// re-entry": a second call from e.g. a repeated ping is a no-op here rather
// than a second competing loop.
func (p *Pool) StartHealthLoop(ctx context.Context, showErrorLog bool) {
	if !p.cfg.HealthCheckSwitch {
		return
	}
	p.healthOnce.Do(func() {
		go p.healthLoop(ctx, showErrorLog)
	})
}

func (p *Pool) healthLoop(ctx context.Context, showErrorLog bool) {
	interval := p.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.runHealthCycle(ctx, showErrorLog)
		case <-ctx.Done():
			return
		}
	}
}

// runHealthCycle performs one health-check pass: snapshot entries under a
// read lock, release it, re-probe in fast mode, then atomically swap the
// result back in under a write lock.
func (p *Pool) runHealthCycle(ctx context.Context, showErrorLog bool) {
	p.mu.RLock()
	snapshot := make([]Entry, len(p.entries))
	copy(snapshot, p.entries)
	p.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	items := make([]candidate, len(snapshot))
	for i := range snapshot {
		e := snapshot[i]
		items[i] = candidate{address: e.Address, prior: &e}
	}

	refreshed := p.tester.testAll(ctx, items, healthCheckTimeout, true, nil)

	p.mu.Lock()
	p.entries = refreshed
	size := len(p.entries)
	switch {
	case size == 0:
		p.currentIndex = 0
	case p.currentIndex >= size:
		p.currentIndex = size - 1
	}
	p.mu.Unlock()

	if p.onSwap != nil {
		p.onSwap(len(refreshed))
	}

	if len(refreshed) > 0 {
		if err := writeAddresses(p.path, refreshed); err != nil && showErrorLog {
			log.Printf("[pool] health cycle: rewrite proxy file: %v", err)
		}
	}
}
