// Package loopback owns the local test-harness connector pair.
//
// Ownership boundary:
// - Client: retrying dialer against the loopback address
// - Server: single-accept listener on the loopback address
//
// Both produce one connected socket, suitable for wrapping in a
// messenger, without any broadcast discovery. They exist so transport
// behavior can be exercised on one machine.
package loopback

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const flagPoll = 250 * time.Millisecond

var ErrTimedOut = errors.New("loopback: timed out")

// OnConnect is invoked once when a connection is made.
type OnConnect func(conn net.Conn)

// Options configures a loopback endpoint.
type Options struct {
	// TCPPort to connect to or listen on.
	TCPPort int
	// ConnectTimeout bounds each client connect attempt.
	ConnectTimeout time.Duration
	// Timeout gives up after a fixed duration. Zero waits forever.
	Timeout time.Duration
}

// DefaultOptions returns the stock loopback configuration.
func DefaultOptions() Options {
	return Options{
		TCPPort:        8223,
		ConnectTimeout: 2 * time.Second,
		Timeout:        0,
	}
}

// Client dials the loopback address until a connection is made or the
// timeout expires.
type Client struct {
	opts      Options
	onConnect OnConnect
	enabled   atomic.Bool
	conn      net.Conn
}

// NewClient creates a loopback client. onConnect may be nil.
func NewClient(opts Options, onConnect OnConnect) *Client {
	return &Client{opts: opts, onConnect: onConnect}
}

// Connect blocks until a connection is made or the timeout expires.
func (c *Client) Connect() error {
	c.enabled.Store(true)
	stopTimeout := startTimeout(&c.enabled, c.opts.Timeout)
	defer stopTimeout()

	target := net.JoinHostPort("127.0.0.1", strconv.Itoa(c.opts.TCPPort))
	for c.enabled.Load() {
		conn, err := net.DialTimeout("tcp4", target, c.opts.ConnectTimeout)
		if err != nil {
			log.Debug().Err(err).Str("target", target).Msg("loopback client retrying")
			time.Sleep(flagPoll)
			continue
		}
		log.Debug().Str("target", target).Msg("loopback client connected")
		c.conn = conn
		if c.onConnect != nil {
			c.onConnect(conn)
		}
		c.enabled.Store(false)
		return nil
	}
	return fmt.Errorf("%w: no server on %s", ErrTimedOut, target)
}

// Conn returns the connected socket, nil before Connect succeeds.
func (c *Client) Conn() net.Conn { return c.conn }

// Stop abandons the connect loop.
func (c *Client) Stop() { c.enabled.Store(false) }

// Server accepts exactly one connection on the loopback address.
type Server struct {
	opts      Options
	onConnect OnConnect
	enabled   atomic.Bool
	conn      net.Conn
}

// NewServer creates a loopback server. onConnect may be nil.
func NewServer(opts Options, onConnect OnConnect) *Server {
	return &Server{opts: opts, onConnect: onConnect}
}

// Connect listens on the loopback address and blocks until one
// connection is accepted or the timeout expires.
func (s *Server) Connect() error {
	s.enabled.Store(true)
	stopTimeout := startTimeout(&s.enabled, s.opts.Timeout)
	defer stopTimeout()

	listener, err := net.ListenTCP("tcp4", &net.TCPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: s.opts.TCPPort,
	})
	if err != nil {
		return fmt.Errorf("loopback: listen: %w", err)
	}
	defer listener.Close()

	log.Debug().Int("port", s.opts.TCPPort).Msg("loopback server listening")
	for s.enabled.Load() {
		if err := listener.SetDeadline(time.Now().Add(flagPoll)); err != nil {
			return fmt.Errorf("loopback: accept: %w", err)
		}
		conn, err := listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("loopback: accept: %w", err)
		}
		log.Debug().Stringer("peer", conn.RemoteAddr()).Msg("loopback server accepted")
		s.conn = conn
		if s.onConnect != nil {
			s.onConnect(conn)
		}
		s.enabled.Store(false)
		return nil
	}
	return fmt.Errorf("%w: no client arrived", ErrTimedOut)
}

// Conn returns the accepted socket, nil before Connect succeeds.
func (s *Server) Conn() net.Conn { return s.conn }

// Stop abandons the accept loop.
func (s *Server) Stop() { s.enabled.Store(false) }

// startTimeout flips enabled after d and returns a stop function. A zero
// duration installs nothing.
func startTimeout(enabled *atomic.Bool, d time.Duration) func() {
	if d <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		deadline := time.Now().Add(d)
		for enabled.Load() {
			if !time.Now().Before(deadline) {
				log.Debug().Msg("loopback timed out")
				break
			}
			select {
			case <-done:
				return
			case <-time.After(flagPoll):
			}
		}
		enabled.Store(false)
	}()
	return func() { close(done) }
}
