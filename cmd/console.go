package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/relaypool/socks5pool/internal/app"
)

// runConsole runs the interactive REPL in place of the relay server. The
// relay server itself still runs in the background so a console session
// can be driven against a live pool.
func runConsole(ctx context.Context, a *app.App) error {
	host, port := a.BindInfo()
	fmt.Printf("proxy server started on %s:%d\n", host, port)
	printHelp()

	srvErr := make(chan error, 1)
	go func() { srvErr <- a.Run(ctx) }()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}

		switch fields[0] {
		case "help":
			printHelp()
		case "list":
			printList(a)
		case "next":
			doNext(a)
		case "show":
			doShow(a)
		case "ping":
			doPing(ctx, a, fields)
		case "goto":
			doGoto(a, fields)
		case "quit":
			return nil
		default:
			fmt.Println("unknown command, type `help` for a list of commands")
		}
		fmt.Print("> ")
	}

	select {
	case err := <-srvErr:
		return err
	default:
		return nil
	}
}

func printHelp() {
	fmt.Println(`
available commands:
  help         - show this help
  list         - list every proxy in the pool
  next         - advance to the next proxy
  goto <n>     - select proxy number n (1-based)
  show         - show the currently selected proxy
  ping         - re-test every proxy and refresh latencies
  ping <addr>  - probe a single address (e.g. 1.2.3.4:1080) without adding it to the pool
  quit         - exit
`)
}

func doPing(ctx context.Context, a *app.App, fields []string) {
	if len(fields) < 2 {
		if err := a.LoadPool(); err != nil {
			fmt.Printf("reload failed: %v\n", err)
		}
		return
	}

	address := fields[1]
	latencyMillis, err := a.Ping(ctx, address)
	if err != nil {
		fmt.Printf("ping %s failed: %v\n", address, err)
		return
	}
	fmt.Printf("ping %s: %dms\n", address, latencyMillis)
}

func printList(a *app.App) {
	entries := a.Pool().List()
	fmt.Println("\ncurrent proxy list:")
	for i, e := range entries {
		fmt.Printf("%3d. %s - %dms\n", i+1, e.Address, e.Latency.Milliseconds())
	}
	fmt.Println()
}

func doNext(a *app.App) {
	e, ok := a.Pool().Advance()
	if !ok {
		fmt.Println("no proxy available")
		return
	}
	fmt.Printf("switched to proxy: %s (latency: %dms)\n", e.Address, e.Latency.Milliseconds())
}

func doShow(a *app.App) {
	e, ok := a.Pool().GetCurrent()
	if !ok {
		fmt.Println("no proxy available")
		return
	}
	fmt.Printf("current proxy: %s (latency: %dms)\n", e.Address, e.Latency.Milliseconds())
}

func doGoto(a *app.App, fields []string) {
	if len(fields) < 2 {
		fmt.Println("usage: goto <n>")
		return
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		fmt.Printf("invalid argument, type `help` for usage: %s\n", fields[1])
		return
	}
	e, ok := a.Pool().Select(n)
	if !ok {
		fmt.Println("no proxy available")
		return
	}
	fmt.Printf("switched to proxy: %s (latency: %dms)\n", e.Address, e.Latency.Milliseconds())
}
