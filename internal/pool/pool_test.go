package pool

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeProber is a deterministic, in-memory stand-in for internal/probe.Prober.
// Addresses not present in latencies fail; an address in failOnCallAt fails
// on every call from the given 1-based call index onward (used to simulate
// a health cycle dropping an upstream that was reachable at load time).
type fakeProber struct {
	mu           sync.Mutex
	latencies    map[string]time.Duration
	calls        map[string]int
	failOnCallAt map[string]int // address -> call index (1-based) that starts failing
}

func newFakeProber(latencies map[string]time.Duration) *fakeProber {
	return &fakeProber{
		latencies:    latencies,
		calls:        make(map[string]int),
		failOnCallAt: make(map[string]int),
	}
}

func (f *fakeProber) Probe(_ context.Context, address string, _ time.Duration, _ bool) (time.Duration, error) {
	f.mu.Lock()
	f.calls[address]++
	call := f.calls[address]
	failAt, hasFailAt := f.failOnCallAt[address]
	f.mu.Unlock()

	if hasFailAt && call >= failAt {
		return 0, errProbeFailed
	}
	lat, ok := f.latencies[address]
	if !ok {
		return 0, errProbeFailed
	}
	return lat, nil
}

var errProbeFailed = &probeError{"probe failed"}

type probeError struct{ msg string }

func (e *probeError) Error() string { return e.msg }

func writeProxyFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "proxies*.txt")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func testConfig() Config {
	return Config{
		TestTimeout:         time.Second,
		HealthCheckInterval: time.Hour,
		HealthCheckSwitch:   true,
		MaxConcurrency:      4,
	}
}

func TestLoadFromFile_DedupesAndSortsByLatency(t *testing.T) {
	content := "10.0.0.1:1080\n10.0.0.2:1080\n10.0.0.1:1080\n10.0.0.3:1080\n"
	path := writeProxyFile(t, content)

	prober := newFakeProber(map[string]time.Duration{
		"10.0.0.1:1080": 100 * time.Millisecond,
		"10.0.0.2:1080": 50 * time.Millisecond,
		"10.0.0.3:1080": 150 * time.Millisecond,
	})

	p := New(testConfig(), path, prober)
	require.NoError(t, p.LoadFromFile(path))

	entries := p.List()
	require.Len(t, entries, 3)
	require.Equal(t, "10.0.0.2:1080", entries[0].Address)
	require.Equal(t, "10.0.0.1:1080", entries[1].Address)
	require.Equal(t, "10.0.0.3:1080", entries[2].Address)
}

func TestLoadFromFile_EmptyInput(t *testing.T) {
	path := writeProxyFile(t, "\n\n   \n")
	p := New(testConfig(), path, newFakeProber(nil))
	err := p.LoadFromFile(path)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	p := New(testConfig(), "", newFakeProber(nil))
	err := p.LoadFromFile(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
}

func TestLoadFromFile_DropsUnreachable(t *testing.T) {
	content := "10.0.0.1:1080\n10.0.0.2:1080\n"
	path := writeProxyFile(t, content)

	prober := newFakeProber(map[string]time.Duration{
		"10.0.0.1:1080": 10 * time.Millisecond,
		// 10.0.0.2:1080 has no entry => fails
	})

	p := New(testConfig(), path, prober)
	require.NoError(t, p.LoadFromFile(path))
	require.Equal(t, 1, p.Len())
}

func TestLoadFromFile_FileMirror(t *testing.T) {
	content := "10.0.0.1:1080\n10.0.0.2:1080\n10.0.0.3:1080\n"
	path := writeProxyFile(t, content)

	prober := newFakeProber(map[string]time.Duration{
		"10.0.0.1:1080": 80 * time.Millisecond,
		"10.0.0.3:1080": 40 * time.Millisecond,
		// 10.0.0.2 unreachable
	})

	p := New(testConfig(), path, prober)
	require.NoError(t, p.LoadFromFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.3:1080\n10.0.0.1:1080", string(raw))
}

func TestRotationLaw_AdvanceWrapsModN(t *testing.T) {
	path := writeProxyFile(t, "a:1\nb:1\nc:1\n")
	prober := newFakeProber(map[string]time.Duration{
		"a:1": 10 * time.Millisecond,
		"b:1": 20 * time.Millisecond,
		"c:1": 30 * time.Millisecond,
	})
	p := New(testConfig(), path, prober)
	require.NoError(t, p.LoadFromFile(path))

	entries := p.List()
	n := len(entries)
	for k := 0; k < 2*n; k++ {
		entry, ok := p.Advance()
		require.True(t, ok)
		want := entries[(k+1)%n]
		require.Equal(t, want.Address, entry.Address)
	}
}

func TestSelectionLaw(t *testing.T) {
	path := writeProxyFile(t, "a:1\nb:1\nc:1\n")
	prober := newFakeProber(map[string]time.Duration{
		"a:1": 10 * time.Millisecond,
		"b:1": 20 * time.Millisecond,
		"c:1": 30 * time.Millisecond,
	})
	p := New(testConfig(), path, prober)
	require.NoError(t, p.LoadFromFile(path))
	entries := p.List()

	for n := -2; n <= 5; n++ {
		entry, ok := p.Select(n)
		require.True(t, ok)
		size := len(entries)
		want := entries[((n-1)%size+size)%size]
		require.Equal(t, want.Address, entry.Address)
	}
}

func TestSelectZero_WrapsToLastEntry(t *testing.T) {
	path := writeProxyFile(t, "a:1\nb:1\n")
	prober := newFakeProber(map[string]time.Duration{
		"a:1": 10 * time.Millisecond,
		"b:1": 20 * time.Millisecond,
	})
	p := New(testConfig(), path, prober)
	require.NoError(t, p.LoadFromFile(path))

	entry, ok := p.Select(0)
	require.True(t, ok)
	require.Equal(t, "b:1", entry.Address)
}

func TestEmptyPool_SafeNoFault(t *testing.T) {
	p := New(testConfig(), "", newFakeProber(nil))

	_, ok := p.GetCurrent()
	require.False(t, ok)
	_, ok = p.Advance()
	require.False(t, ok)
	_, ok = p.Select(3)
	require.False(t, ok)
}

func TestHealthCycle_ClampsCurrentIndexAndRewritesFile(t *testing.T) {
	path := writeProxyFile(t, "a:1\nb:1\nc:1\n")
	prober := newFakeProber(map[string]time.Duration{
		"a:1": 50 * time.Millisecond,
		"b:1": 100 * time.Millisecond,
		"c:1": 150 * time.Millisecond,
	})
	p := New(testConfig(), path, prober)
	require.NoError(t, p.LoadFromFile(path))

	// Move current to the last entry (c), then drop b and c from the
	// health cycle so only "a" survives.
	_, ok := p.Select(3)
	require.True(t, ok)

	prober.mu.Lock()
	prober.failOnCallAt["b:1"] = 1
	prober.failOnCallAt["c:1"] = 1
	prober.mu.Unlock()

	p.runHealthCycle(context.Background(), false)

	entries := p.List()
	require.Len(t, entries, 1)
	require.Equal(t, "a:1", entries[0].Address)

	cur, ok := p.GetCurrent()
	require.True(t, ok)
	require.Equal(t, "a:1", cur.Address)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a:1", string(raw))
}

func TestHealthCycle_PoolBecomesEmpty(t *testing.T) {
	path := writeProxyFile(t, "a:1\n")
	prober := newFakeProber(map[string]time.Duration{"a:1": time.Millisecond})
	p := New(testConfig(), path, prober)
	require.NoError(t, p.LoadFromFile(path))

	prober.mu.Lock()
	prober.failOnCallAt["a:1"] = 1
	prober.mu.Unlock()

	p.runHealthCycle(context.Background(), false)

	require.Equal(t, 0, p.Len())
	_, ok := p.GetCurrent()
	require.False(t, ok)
}
