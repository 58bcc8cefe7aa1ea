package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTester_OnlyReturnsSuccesses(t *testing.T) {
	prober := newFakeProber(map[string]time.Duration{
		"ok1:1": 10 * time.Millisecond,
		"ok2:1": 5 * time.Millisecond,
	})
	tt := &tester{prober: prober, concurrency: 2}
	items := []candidate{{address: "ok1:1"}, {address: "ok2:1"}, {address: "dead:1"}}

	got := tt.testAll(context.Background(), items, time.Second, false, nil)
	require.Len(t, got, 2)
	require.Equal(t, "ok2:1", got[0].Address)
	require.Equal(t, "ok1:1", got[1].Address)
}

func TestTester_ProgressCalledPerCompletion(t *testing.T) {
	prober := newFakeProber(map[string]time.Duration{"ok:1": time.Millisecond})
	tt := &tester{prober: prober, concurrency: 2}
	items := []candidate{{address: "ok:1"}, {address: "dead:1"}, {address: "dead2:1"}}

	var n int32
	tt.testAll(context.Background(), items, time.Second, true, func() { atomic.AddInt32(&n, 1) })
	require.EqualValues(t, 3, n)
}

func TestTester_PreservesIdentityOnRefresh(t *testing.T) {
	prober := newFakeProber(map[string]time.Duration{"a:1": 20 * time.Millisecond})
	tt := &tester{prober: prober, concurrency: 1}
	prior := Entry{Address: "a:1", FailCount: 2}
	items := []candidate{{address: "a:1", prior: &prior}}

	got := tt.testAll(context.Background(), items, time.Second, true, nil)
	require.Len(t, got, 1)
	require.Equal(t, "a:1", got[0].Address)
	require.Equal(t, uint32(0), got[0].FailCount)
	require.Equal(t, 20*time.Millisecond, got[0].Latency)
}

func TestTester_EmptyInput(t *testing.T) {
	tt := &tester{prober: newFakeProber(nil), concurrency: 2}
	got := tt.testAll(context.Background(), nil, time.Second, false, nil)
	require.Nil(t, got)
}
