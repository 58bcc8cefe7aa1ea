package pool

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Prober measures the reachability and latency of one upstream. Implemented
// by internal/probe.Prober; accepted here as an interface so the pool
// package never imports net/http directly.
type Prober interface {
	Probe(ctx context.Context, address string, timeout time.Duration, fast bool) (time.Duration, error)
}

// candidate is one unit of work for the bulk tester: either a fresh address
// (prior is nil, identity is created on success) or an existing entry being
// re-probed by the health loop (prior is non-nil, identity is preserved).
type candidate struct {
	address string
	prior   *Entry
}

// tester runs Prober.Probe over a batch of candidates with bounded
// concurrency and collects only the successes, sorted by ascending latency.
type tester struct {
	prober      Prober
	concurrency int64
}

// testAll is the Bulk Tester operation (spec C2). onProgress, when non-nil,
// is invoked once per completed probe (success or failure) — it must be
// safe to call concurrently.
func (t *tester) testAll(ctx context.Context, items []candidate, timeout time.Duration, fast bool, onProgress func()) []Entry {
	if len(items) == 0 {
		return nil
	}

	concurrency := t.concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(concurrency)

	var (
		mu      sync.Mutex
		results []Entry
		wg      sync.WaitGroup
	)

	for _, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled — stop launching new probes, let the
			// in-flight ones finish below.
			break
		}
		wg.Add(1)
		go func(item candidate) {
			defer wg.Done()
			defer sem.Release(1)

			latency, err := t.prober.Probe(ctx, item.address, timeout, fast)
			if onProgress != nil {
				onProgress()
			}
			if err != nil {
				return
			}

			entry := Entry{Address: item.address, Latency: latency, LastCheck: time.Now(), FailCount: 0}
			if item.prior != nil {
				entry.Address = item.prior.Address
			}

			mu.Lock()
			results = append(results, entry)
			mu.Unlock()
		}(item)
	}
	wg.Wait()

	// Stable sort by ascending latency; ties keep the order results were
	// appended in, i.e. the order the collector observed completions.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Latency < results[j].Latency
	})
	return results
}
