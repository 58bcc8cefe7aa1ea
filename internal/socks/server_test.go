package socks

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServer_AcceptsAndRelays(t *testing.T) {
	upstreamAddr := fakeUpstream(t, replySucceeded, true)

	dialer := DialerFunc(func() (string, bool) { return upstreamAddr, true })
	advancer := AdvancerFunc(func() (string, bool) { return "", false })

	srv := New(Config{BindHost: "127.0.0.1", BindPort: 0, DialTimeout: time.Second}, dialer, advancer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handle(conn)
		}
	}()
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	client.Write([]byte{socksVersion5, 0x01, methodNoAuth})
	resp := make([]byte, 2)
	_, err = io.ReadFull(client, resp)
	require.NoError(t, err)
	require.Equal(t, byte(methodNoAuth), resp[1])

	req := []byte{socksVersion5, cmdConnect, 0x00, atypDomainName, byte(len("example.com"))}
	req = append(req, []byte("example.com")...)
	portBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(portBuf, 80)
	req = append(req, portBuf...)
	client.Write(req)

	reply := make([]byte, 10)
	_, err = io.ReadFull(client, reply)
	require.NoError(t, err)
	require.Equal(t, byte(replySucceeded), reply[1])

	client.Write([]byte("hello"))
	echo := make([]byte, 5)
	_, err = io.ReadFull(client, echo)
	require.NoError(t, err)
	require.Equal(t, "hello", string(echo))
}

func TestAutoSwitchLoop_AdvancesOnTick(t *testing.T) {
	var calls int32
	advancer := AdvancerFunc(func() (string, bool) {
		atomic.AddInt32(&calls, 1)
		return "proxy:1", true
	})
	srv := New(Config{AutoSwitch: true, SwitchInterval: 10 * time.Millisecond}, DialerFunc(func() (string, bool) { return "", false }), advancer)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.autoSwitchLoop(ctx)
	time.Sleep(55 * time.Millisecond)
	cancel()

	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}
