// Package probe measures the reachability and latency of a single upstream
// SOCKS5 proxy by tunnelling an HTTP request through it.
package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// URL is the fixed probe target: a plain-HTTP origin chosen because it
// answers quickly, tolerates HEAD, and needs no TLS through the upstream.
const URL = "http://www.baidu.com/"

// probeURL is what headOnce/getAndDrain actually hit. It is a variable
// (initialized to URL) solely so tests can point it at a local fixture
// without a synthetic upstream having to reach the real internet; the
// production entry point never reassigns it.
var probeURL = URL

// Kind classifies why a probe failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindConnect
	KindSOCKSNegotiation
	KindHTTPStatus
	KindBodyRead
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnect:
		return "connect"
	case KindSOCKSNegotiation:
		return "socks-negotiation"
	case KindHTTPStatus:
		return "http-status"
	case KindBodyRead:
		return "body-read"
	default:
		return "unknown"
	}
}

// Error wraps a probe failure with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("probe: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Prober probes upstreams by tunnelling HTTP through them.
type Prober struct{}

// New creates a Prober.
func New() *Prober { return &Prober{} }

// Probe tests address in fast or full mode, bounded by timeout. Fast mode
// sends one HEAD and requires a 2xx response — used by the recurring
// health check to keep background load light. Full mode additionally sends
// a GET and drains the response body, proving real reachability through the
// upstream — used for initial ingestion.
func (p *Prober) Probe(ctx context.Context, address string, timeout time.Duration, fast bool) (time.Duration, error) {
	client, err := newSOCKS5Client(address, timeout)
	if err != nil {
		return 0, &Error{Kind: KindConnect, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := headOnce(ctx, client); err != nil {
		return 0, err
	}
	if !fast {
		if err := getAndDrain(ctx, client); err != nil {
			return 0, err
		}
	}
	return time.Since(start), nil
}

func headOnce(ctx context.Context, client *http.Client) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		return &Error{Kind: KindUnknown, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return classifyDoErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Kind: KindHTTPStatus, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

func getAndDrain(ctx context.Context, client *http.Client) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return &Error{Kind: KindUnknown, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return classifyDoErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Kind: KindHTTPStatus, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return &Error{Kind: KindBodyRead, Err: err}
	}
	return nil
}

func classifyDoErr(err error) error {
	var netErr net.Error
	if ne, ok := err.(net.Error); ok {
		netErr = ne
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, Err: err}
		}
	}
	return &Error{Kind: KindConnect, Err: err}
}

// newSOCKS5Client builds an *http.Client whose Transport dials every
// connection through the SOCKS5 upstream at address. Specialized to the
// no-auth upstream case this pool always produces.
func newSOCKS5Client(address string, timeout time.Duration) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("create socks5 dialer: %w", err)
	}

	type contextDialer interface {
		DialContext(ctx context.Context, network, addr string) (net.Conn, error)
	}

	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if cd, ok := dialer.(contextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}

	transport := &http.Transport{
		DialContext: dial,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
