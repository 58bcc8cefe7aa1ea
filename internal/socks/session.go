// Package socks implements the client-facing SOCKS5 protocol and chains
// accepted connections onto whichever upstream proxy the pool currently
// selects.
package socks

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	socksVersion5  = 0x05
	cmdConnect     = 0x01
	atypIPv4       = 0x01
	atypDomainName = 0x03
	atypIPv6       = 0x04

	methodNoAuth       = 0x00
	methodUserPass     = 0x02
	methodNoAcceptable = 0xFF

	userPassAuthVersion = 0x01
	authSuccess         = 0x00
	authFailure         = 0x01

	replySucceeded           = 0x00
	replyGeneralFailure      = 0x01
	replyNetworkUnreachable  = 0x03
	replyHostUnreachable     = 0x04
	replyConnectionRefused   = 0x05
	replyCommandNotSupported = 0x07
	replyAddrTypeNotSupport  = 0x08
)

// ErrUnsupportedVersion means the client did not speak SOCKS5.
var ErrUnsupportedVersion = errors.New("socks: unsupported protocol version")

// ErrUnsupportedCommand means the client asked for something other than
// CONNECT (BIND and UDP ASSOCIATE are not implemented).
var ErrUnsupportedCommand = errors.New("socks: unsupported command")

// ErrUnsupportedAddressType means the client asked to connect to an IPv6
// literal, which this proxy does not forward, or sent an unknown address
// type.
var ErrUnsupportedAddressType = errors.New("socks: unsupported address type")

// ErrAuthFailed means the client failed username/password authentication.
var ErrAuthFailed = errors.New("socks: authentication failed")

// ErrNoUpstream means the pool had no healthy upstream to chain through.
var ErrNoUpstream = errors.New("socks: no available upstream proxy")

// Dialer supplies the address of the upstream the pool currently selects.
// It does not open a connection itself; the Upstreamer does. internal/app
// satisfies it with a DialerFunc wrapping *pool.Pool's GetCurrent.
type Dialer interface {
	// Pick returns the address of the upstream to use for this connection.
	Pick() (string, bool)
}

// session represents one accepted client connection and its negotiated
// state through to the point data starts flowing.
type session struct {
	conn       net.Conn
	cfg        Config
	dialer     Dialer
	upstreamer Upstreamer
}

// Upstreamer dials and speaks the client side of SOCKS5 against an upstream
// proxy. Implemented by upstreamDialer in upstream.go; extracted as an
// interface so tests can substitute a fake without a real socket.
type Upstreamer interface {
	Connect(upstreamAddr string, atyp byte, targetAddr []byte, port uint16, timeout time.Duration) (net.Conn, error)
}

func newSession(conn net.Conn, cfg Config, dialer Dialer, upstreamer Upstreamer) *session {
	return &session{conn: conn, cfg: cfg, dialer: dialer, upstreamer: upstreamer}
}

// serve drives one client connection end to end: method negotiation,
// optional username/password auth, the CONNECT request, upstream dial and
// handshake, the success/failure reply, then bidirectional relay.
func (s *session) serve() error {
	defer s.conn.Close()

	if err := s.negotiateMethod(); err != nil {
		return err
	}

	atyp, targetAddr, port, err := s.readRequest()
	if err != nil {
		if errors.Is(err, ErrUnsupportedAddressType) {
			// original_source closes on an IPv6 target without any reply
			// at all; match that rather than inventing a reply the spec
			// never asks for.
			return err
		}
		s.writeReply(replyCommandNotSupported)
		return err
	}

	upstreamAddr, ok := s.dialer.Pick()
	if !ok {
		s.writeReply(replyGeneralFailure)
		return ErrNoUpstream
	}

	upstreamConn, err := s.upstreamer.Connect(upstreamAddr, atyp, targetAddr, port, s.cfg.DialTimeout)
	if err != nil {
		if !errors.Is(err, ErrUpstreamNegotiationFailed) {
			s.writeReply(replyHostUnreachable)
		}
		return fmt.Errorf("socks: upstream %s: %w", upstreamAddr, err)
	}
	defer upstreamConn.Close()

	if err := s.writeReply(replySucceeded); err != nil {
		return err
	}

	return relay(s.conn, upstreamConn)
}

// negotiateMethod reads the client's method-selection message and replies
// with the chosen authentication method, running the username/password
// sub-negotiation (RFC 1929) when Config.UseAuth is set.
func (s *session) negotiateMethod() error {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(s.conn, hdr); err != nil {
		return fmt.Errorf("socks: read method header: %w", err)
	}
	if hdr[0] != socksVersion5 {
		return ErrUnsupportedVersion
	}

	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(s.conn, methods); err != nil {
		return fmt.Errorf("socks: read methods: %w", err)
	}

	if !s.cfg.UseAuth {
		_, err := s.conn.Write([]byte{socksVersion5, methodNoAuth})
		return err
	}

	if !containsByte(methods, methodUserPass) {
		s.conn.Write([]byte{socksVersion5, methodNoAcceptable})
		return errors.New("socks: client does not support required auth method")
	}
	if _, err := s.conn.Write([]byte{socksVersion5, methodUserPass}); err != nil {
		return err
	}
	return s.handleUserPassAuth()
}

func (s *session) handleUserPassAuth() error {
	verBuf := make([]byte, 1)
	if _, err := io.ReadFull(s.conn, verBuf); err != nil {
		return fmt.Errorf("socks: read auth version: %w", err)
	}
	if verBuf[0] != userPassAuthVersion {
		return errors.New("socks: unsupported auth sub-negotiation version")
	}

	username, err := readLenPrefixed(s.conn)
	if err != nil {
		return fmt.Errorf("socks: read username: %w", err)
	}
	password, err := readLenPrefixed(s.conn)
	if err != nil {
		return fmt.Errorf("socks: read password: %w", err)
	}

	if string(username) != s.cfg.Username || string(password) != s.cfg.Password {
		s.conn.Write([]byte{userPassAuthVersion, authFailure})
		return ErrAuthFailed
	}
	_, err = s.conn.Write([]byte{userPassAuthVersion, authSuccess})
	return err
}

// readRequest parses the SOCKS5 request header and returns the raw address
// type and encoded target, ready to be re-encoded onto the upstream
// connection unchanged.
func (s *session) readRequest() (atyp byte, targetAddr []byte, port uint16, err error) {
	hdr := make([]byte, 4)
	if _, err = io.ReadFull(s.conn, hdr); err != nil {
		return 0, nil, 0, fmt.Errorf("socks: read request header: %w", err)
	}
	if hdr[0] != socksVersion5 {
		return 0, nil, 0, ErrUnsupportedVersion
	}
	if hdr[1] != cmdConnect {
		return 0, nil, 0, ErrUnsupportedCommand
	}

	atyp = hdr[3]
	switch atyp {
	case atypIPv4:
		targetAddr = make([]byte, 4)
		if _, err = io.ReadFull(s.conn, targetAddr); err != nil {
			return 0, nil, 0, fmt.Errorf("socks: read ipv4 address: %w", err)
		}
	case atypDomainName:
		lenBuf := make([]byte, 1)
		if _, err = io.ReadFull(s.conn, lenBuf); err != nil {
			return 0, nil, 0, fmt.Errorf("socks: read domain length: %w", err)
		}
		targetAddr = make([]byte, lenBuf[0])
		if _, err = io.ReadFull(s.conn, targetAddr); err != nil {
			return 0, nil, 0, fmt.Errorf("socks: read domain: %w", err)
		}
	case atypIPv6:
		// Drain the 16-byte address and the 2-byte port so the wire stays
		// in sync, but never reply — like the original implementation,
		// which neither supports nor acknowledges IPv6 targets.
		drain := make([]byte, 16+2)
		io.ReadFull(s.conn, drain)
		return 0, nil, 0, ErrUnsupportedAddressType
	default:
		return 0, nil, 0, ErrUnsupportedAddressType
	}

	portBuf := make([]byte, 2)
	if _, err = io.ReadFull(s.conn, portBuf); err != nil {
		return 0, nil, 0, fmt.Errorf("socks: read port: %w", err)
	}
	port = binary.BigEndian.Uint16(portBuf)
	return atyp, targetAddr, port, nil
}

// writeReply sends a SOCKS5 reply with a fixed IPv4 0.0.0.0:0 bound
// address, matching what the original implementation always reports
// regardless of the real bind address.
func (s *session) writeReply(code byte) error {
	reply := []byte{socksVersion5, code, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}
	_, err := s.conn.Write(reply)
	return err
}

func containsByte(b []byte, v byte) bool {
	for _, x := range b {
		if x == v {
			return true
		}
	}
	return false
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	buf := make([]byte, lenBuf[0])
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// relay pipes bytes bidirectionally between client and upstream. The
// session ends the moment either direction's copy finishes; closing both
// conns at that point unblocks whichever copy is still blocked on a read,
// rather than waiting for it to also reach EOF on its own.
func relay(client, upstream net.Conn) error {
	done := make(chan error, 2)
	go func() {
		_, err := io.Copy(upstream, client)
		done <- err
	}()
	go func() {
		_, err := io.Copy(client, upstream)
		done <- err
	}()

	err := <-done
	client.Close()
	upstream.Close()

	if err != nil && !isClosedErr(err) {
		return err
	}
	return nil
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
