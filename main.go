// Command socks5pool runs a local SOCKS5 relay backed by a rotating pool
// of upstream SOCKS5 proxies.
package main

import "github.com/relaypool/socks5pool/cmd"

func main() {
	cmd.Execute()
}
