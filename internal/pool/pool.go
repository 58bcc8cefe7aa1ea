// Package pool owns the live set of validated upstream SOCKS5 proxies. It
// runs bulk validation, keeps the set sorted by latency, exposes selection
// and rotation, and persists the surviving address list back to its backing
// file.
package pool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrEmptyInput is returned by LoadFromFile when the backing file contains
// no non-blank address lines.
var ErrEmptyInput = errors.New("pool: proxy file contains no candidates")

// Config is the pool-relevant slice of the application configuration,
// held as an immutable snapshot for the pool's lifetime.
type Config struct {
	TestTimeout         time.Duration
	HealthCheckInterval time.Duration
	HealthCheckSwitch   bool
	RetryTimes          uint32
	MaxConcurrency      int64
}

// Pool is the mutable live set of upstream proxies.
//
// entries and currentIndex are both guarded by mu: the spec's reference
// design keeps them behind independent locks with currentIndex writes taken
// under the pool's exclusive lock. A single sync.RWMutex covering both
// achieves the same linearizability with less ceremony in Go — see
// DESIGN.md for the rationale.
type Pool struct {
	mu           sync.RWMutex
	entries      []Entry
	currentIndex int

	cfg    Config
	path   string
	tester *tester

	healthOnce sync.Once

	onSwap func(n int) // optional hook, e.g. metrics; nil-safe
}

// New creates an empty pool bound to the given backing file path.
func New(cfg Config, path string, prober Prober) *Pool {
	return &Pool{
		cfg:    cfg,
		path:   path,
		tester: &tester{prober: prober, concurrency: cfg.MaxConcurrency},
	}
}

// OnSwap registers a callback invoked with the new entry count every time
// the in-memory set is replaced (load or health cycle). Used by the metrics
// component; safe to leave unset.
func (p *Pool) OnSwap(fn func(n int)) {
	p.onSwap = fn
}

// LoadFromFile reads addresses from path, deduplicates them, runs the Bulk
// Tester in full mode, replaces the pool's entries, resets current_index to
// 0, and rewrites path with exactly the surviving addresses.
func (p *Pool) LoadFromFile(path string) error {
	addrs, err := readAddresses(path)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return ErrEmptyInput
	}

	items := make([]candidate, len(addrs))
	for i, a := range addrs {
		items[i] = candidate{address: a}
	}

	timeout := p.cfg.TestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout*time.Duration(len(addrs)+1))
	defer cancel()
	entries := p.tester.testAll(ctx, items, timeout, false, nil)

	p.mu.Lock()
	p.entries = entries
	p.currentIndex = 0
	p.mu.Unlock()

	if p.onSwap != nil {
		p.onSwap(len(entries))
	}

	return writeAddresses(path, entries)
}

// GetCurrent returns a copy of the currently selected entry, or false when
// the pool is empty.
func (p *Pool) GetCurrent() (Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.entries) == 0 {
		return Entry{}, false
	}
	return p.entries[p.currentIndex], true
}

// Advance moves current_index to the next entry, wrapping around, and
// returns the newly selected entry.
func (p *Pool) Advance() (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return Entry{}, false
	}
	p.currentIndex = (p.currentIndex + 1) % len(p.entries)
	return p.entries[p.currentIndex], true
}

// Select sets current_index to the entry at 1-based position n and returns
// it. n is taken modulo the pool size using non-negative integer
// arithmetic, so Select(0) wraps to the last entry — see SPEC_FULL.md §9.
func (p *Pool) Select(n int) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return Entry{}, false
	}
	size := len(p.entries)
	idx := ((n-1)%size + size) % size
	p.currentIndex = idx
	return p.entries[p.currentIndex], true
}

// List returns a deep snapshot of the current entries, in selection order.
func (p *Pool) List() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Len returns the number of entries currently in the pool.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Path returns the backing file path.
func (p *Pool) Path() string {
	return p.path
}

// -----------------------------------------------------------------------
// File I/O
// -----------------------------------------------------------------------

func readAddresses(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pool: open proxy file: %w", err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var addrs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		addrs = append(addrs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("pool: read proxy file: %w", err)
	}
	return addrs, nil
}

func writeAddresses(path string, entries []Entry) error {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Address
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("pool: rewrite proxy file: %w", err)
	}
	return nil
}
