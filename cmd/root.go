// Package cmd implements the socks5pool CLI using Cobra.
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relaypool/socks5pool/internal/app"
	"github.com/relaypool/socks5pool/internal/config"
)

// version is injected at build time via ldflags.
var version = "dev"

var (
	flagConfig  string
	flagConsole bool
	flagAPIPort string
)

var rootCmd = &cobra.Command{
	Use:   "socks5pool",
	Short: "Local SOCKS5 relay backed by a rotating pool of upstream SOCKS5 proxies",
	Long: `socks5pool — a local SOCKS5 server that forwards client traffic through a
dynamically managed pool of upstream SOCKS5 proxies.

On startup it bulk-tests every candidate in the configured proxy file,
keeps the survivors sorted by latency, and exposes rotation either through
a fixed interval (auto_switch) or the admin HTTP API. A background health
loop periodically re-probes the pool, drops upstreams that stop
responding, and rewrites the proxy file to match.
`,
	Version:      version,
	SilenceUsage: true,
	RunE:         run,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flagConfig, "config", "c", "config.toml", "Path to the TOML config file (created with defaults if missing)")
	f.BoolVar(&flagConsole, "console", false, "Run the interactive console (the relay server keeps running in the background)")
	f.StringVar(&flagAPIPort, "api-port", "", "Port for the admin HTTP API (empty disables it)")
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a := app.New(cfg)
	if err := a.LoadPool(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if flagAPIPort != "" {
		apiAddr := "127.0.0.1:" + flagAPIPort
		apiSrv := a.NewHTTPAPI(apiAddr)
		go func() {
			log.Printf("[init] admin API listening on http://%s", apiAddr)
			if err := apiSrv.Start(); err != nil {
				log.Printf("[api] server stopped: %v", err)
			}
		}()
		defer apiSrv.Stop()
	}

	if flagConsole {
		return runConsole(ctx, a)
	}

	printBanner(a, cfg)

	srvErr := make(chan error, 1)
	go func() { srvErr <- a.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[init] received %s — shutting down", sig)
		cancel()
	case err := <-srvErr:
		if err != nil {
			return fmt.Errorf("relay server: %w", err)
		}
	}
	return nil
}

func printBanner(a *app.App, cfg config.Config) {
	host, port := a.BindInfo()
	cur, ok := a.Pool().GetCurrent()
	curStr := "<none>"
	if ok {
		curStr = cur.String()
	}

	authStr := "disabled"
	if cfg.Proxy.UseAuth {
		authStr = "enabled"
	}

	switchStr := "disabled"
	if cfg.Proxy.AutoSwitch {
		switchStr = cfg.Proxy.SwitchIntervalDuration().String()
	}

	fmt.Printf(`
╔══════════════════════════════════════════════════════════════╗
║                     socks5pool %s
╠══════════════════════════════════════════════════════════════╣
║  Listen       : %s:%d
║  Auth         : %s
║  Auto-switch  : %s
║  Proxy file   : %s
║  Pool         : %d proxies
║  Active proxy : %s
╚══════════════════════════════════════════════════════════════╝

`, padRight(version, 44),
		host, port,
		padRight(authStr, 46),
		padRight(switchStr, 46),
		padRight(a.Pool().Path(), 46),
		a.Pool().Len(),
		padRight(curStr, 46),
	)
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
