// Package app wires the pool, prober, metrics, and relay server together
// behind a small Control Surface a host program (CLI, console, or an
// embedding application) can drive without reaching into internal
// packages directly.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaypool/socks5pool/internal/config"
	"github.com/relaypool/socks5pool/internal/httpapi"
	"github.com/relaypool/socks5pool/internal/metrics"
	"github.com/relaypool/socks5pool/internal/pool"
	"github.com/relaypool/socks5pool/internal/probe"
	"github.com/relaypool/socks5pool/internal/socks"
)

const defaultPingTimeout = 5 * time.Second

// App is the Control Surface: it owns the pool and the relay server and
// exposes the operations a host program needs.
type App struct {
	cfg     config.Config
	pool    *pool.Pool
	server  *socks.Server
	metrics *metrics.Metrics
}

// New constructs the pool and relay server from cfg but does not start
// anything; call LoadPool then Run.
func New(cfg config.Config) *App {
	m := metrics.New(prometheus.DefaultRegisterer)

	p := pool.New(pool.Config{
		TestTimeout:         cfg.Proxy.TestTimeoutDuration(),
		HealthCheckInterval: cfg.Proxy.HealthCheckIntervalDuration(),
		HealthCheckSwitch:   cfg.Proxy.HealthCheckSwitch,
		RetryTimes:          cfg.Proxy.RetryTimes,
		MaxConcurrency:      cfg.Proxy.MaxConcurrency,
	}, cfg.Proxy.ProxyFile, probe.New())

	p.OnSwap(func(n int) {
		m.PoolSize.Set(float64(n))
		m.PoolSwaps.Inc()
	})

	dialer := socks.DialerFunc(func() (string, bool) {
		e, ok := p.GetCurrent()
		if !ok {
			return "", false
		}
		return e.Address, true
	})
	advancer := socks.AdvancerFunc(func() (string, bool) {
		e, ok := p.Advance()
		if !ok {
			return "", false
		}
		m.AutoSwitches.Inc()
		return e.Address, true
	})

	srv := socks.New(socks.Config{
		BindHost:          cfg.Server.BindHost,
		BindPort:          cfg.Server.BindPort,
		UseAuth:           cfg.Proxy.UseAuth,
		Username:          cfg.Proxy.Username,
		Password:          cfg.Proxy.Password,
		DialTimeout:       cfg.Proxy.DialTimeoutDuration(),
		AutoSwitch:        cfg.Proxy.AutoSwitch,
		SwitchInterval:    cfg.Proxy.SwitchIntervalDuration(),
		ShowConnectionLog: cfg.Log.ShowConnectionLog,
		ShowErrorLog:      cfg.Log.ShowErrorLog,
	}, dialer, advancer)
	srv.SetObserver(sessionMetricsObserver{m: m})

	return &App{cfg: cfg, pool: p, server: srv, metrics: m}
}

// sessionMetricsObserver adapts *metrics.Metrics to socks.SessionObserver.
type sessionMetricsObserver struct {
	m *metrics.Metrics
}

func (o sessionMetricsObserver) SessionStarted() {
	o.m.SessionsTotal.Inc()
	o.m.SessionsActive.Inc()
}

func (o sessionMetricsObserver) SessionEnded(err error, duration time.Duration) {
	o.m.SessionsActive.Dec()
	o.m.SessionDuration.Observe(duration.Seconds())
	if err != nil {
		o.m.SessionErrors.Inc()
	}
}

// Pool exposes the proxy pool for callers that need direct rotation,
// selection, or listing operations (e.g. an interactive console or the
// admin HTTP API).
func (a *App) Pool() *pool.Pool { return a.pool }

// BindInfo returns the host and port the relay server will bind to.
func (a *App) BindInfo() (string, int) { return a.server.BindInfo() }

// LoadPool loads and bulk-tests the initial proxy list from the
// configured proxy file.
func (a *App) LoadPool() error {
	log.Printf("[app] loading proxy list from %s", a.cfg.Proxy.ProxyFile)
	if err := a.pool.LoadFromFile(a.cfg.Proxy.ProxyFile); err != nil {
		return fmt.Errorf("load proxy file: %w", err)
	}
	log.Printf("[app] loaded %d proxies", a.pool.Len())
	return nil
}

// Run starts the background health loop and the optional metrics endpoint,
// then blocks serving client connections until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.pool.StartHealthLoop(ctx, a.cfg.Log.ShowErrorLog)

	if a.cfg.Metrics.Enabled {
		a.startMetricsServer(ctx)
	}

	return a.server.Run(ctx)
}

func (a *App) startMetricsServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		log.Printf("[app] metrics listening on http://%s/metrics", a.cfg.Metrics.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[app] metrics server stopped: %v", err)
		}
	}()
}

// NewHTTPAPI builds the admin HTTP control API bound to addr, for a host
// program that wants remote pool control in addition to the in-process
// Control Surface.
func (a *App) NewHTTPAPI(addr string) *httpapi.Server {
	return httpapi.New(addr, a.pool)
}

// Ping probes a single upstream address in full mode and reports its
// latency, without needing the address to already be in the pool.
func (a *App) Ping(ctx context.Context, address string) (latencyMillis int64, err error) {
	timeout := a.cfg.Proxy.TestTimeoutDuration()
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	d, err := probe.New().Probe(ctx, address, timeout, false)
	if err != nil {
		return 0, err
	}
	return d.Milliseconds(), nil
}
