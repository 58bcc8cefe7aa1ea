package pool

import "time"

// Entry is one upstream SOCKS5 candidate tracked by the pool.
type Entry struct {
	// Address is the upstream's host:port.
	Address string

	// Latency is the round-trip duration of the last successful probe.
	Latency time.Duration

	// LastCheck is the wall-clock time of the last probe.
	LastCheck time.Time

	// FailCount is the number of consecutive probe failures. Reserved for
	// a future retry/eviction policy; the current policy drops an entry on
	// its first failed probe instead of consulting this field.
	FailCount uint32
}

// String returns the entry's address, satisfying fmt.Stringer for logging.
func (e Entry) String() string {
	return e.Address
}
