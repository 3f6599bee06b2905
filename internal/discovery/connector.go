package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cablecast/cablecast/internal/observability"
)

// markerPayload is the fixed announce datagram. Receivers only care that
// a datagram arrived; the content is never interpreted.
var markerPayload = []byte("BROADCAST")

const (
	// flagPoll is the cadence at which workers observe the enabled flag,
	// and therefore the upper bound on shutdown latency.
	flagPoll = 250 * time.Millisecond
	// initialBroadcastDelay lets the listeners come up before the first
	// announce goes out.
	initialBroadcastDelay = 100 * time.Millisecond
)

var ErrNoLocalAddress = errors.New("discovery: cannot resolve local address")

// OnConnect is invoked for every connection adopted into the peer table,
// from whichever worker goroutine made it.
type OnConnect func(conn net.Conn)

// Connector announces presence over UDP broadcast and turns answering
// hosts into connected TCP sockets. One Connector runs one session.
type Connector struct {
	opts      Options
	onConnect OnConnect

	session string
	localIP string
	peers   *PeerTable

	enabled atomic.Bool
	clk     clock.Clock
	wg      sync.WaitGroup

	udpListener *net.UDPConn
	tcpListener *net.TCPListener

	log zerolog.Logger
}

// New creates a Connector for one session. onConnect may be nil.
func New(opts Options, onConnect OnConnect) *Connector {
	session := uuid.NewString()
	return &Connector{
		opts:      opts,
		onConnect: onConnect,
		session:   session,
		peers:     NewPeerTable(),
		clk:       clock.New(),
		log: log.With().
			Str("comp", "discovery").
			Str("session", session).
			Logger(),
	}
}

// LocalIP resolves the local outbound address by "connecting" a UDP
// socket to a well-known external endpoint and reading the local end. No
// packet needs to be delivered. Used only to filter self-connections.
func LocalIP() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:7")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoLocalAddress, err)
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", ErrNoLocalAddress
	}
	return addr.IP.String(), nil
}

// Connect starts the session and blocks until every worker has exited,
// whether by Stop, timeout, or listener failure.
func (c *Connector) Connect() error {
	if err := c.Start(); err != nil {
		return err
	}
	c.Wait()
	return nil
}

// Start binds both listening sockets and spawns the workers, returning
// immediately. A bind failure leaves the session stopped.
func (c *Connector) Start() error {
	localIP, err := LocalIP()
	switch {
	case err == nil:
		c.localIP = localIP
	case c.opts.AllowLoopback:
		// Self-filtering is moot when loopback is allowed.
		c.log.Debug().Err(err).Msg("local address unresolved")
	default:
		return err
	}

	udpListener, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: c.opts.UDPPort})
	if err != nil {
		return fmt.Errorf("discovery: bind udp port %d: %w", c.opts.UDPPort, err)
	}
	tcpListener, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4zero, Port: c.opts.TCPPort})
	if err != nil {
		udpListener.Close()
		return fmt.Errorf("discovery: bind tcp port %d: %w", c.opts.TCPPort, err)
	}
	c.udpListener = udpListener
	c.tcpListener = tcpListener

	c.enabled.Store(true)
	c.log.Info().
		Str("local_ip", c.localIP).
		Int("udp_port", c.opts.UDPPort).
		Int("tcp_port", c.opts.TCPPort).
		Msg("session started")

	c.wg.Add(3)
	go c.broadcastLoop()
	go c.listenLoop()
	go c.acceptLoop()
	if c.opts.Timeout > 0 {
		c.wg.Add(1)
		go c.timeoutLoop()
	}
	return nil
}

// Wait blocks until all workers have exited.
func (c *Connector) Wait() {
	c.wg.Wait()
}

// Stop flips the enabled flag. Workers observe it on their next poll, so
// shutdown completes within one poll interval. Safe from any goroutine,
// including an OnConnect callback. Voluntary stop, timeout, and listener
// failure all route through this same flag.
func (c *Connector) Stop() {
	c.enabled.Store(false)
}

// Enabled reports whether the session is still running.
func (c *Connector) Enabled() bool {
	return c.enabled.Load()
}

// Peers returns a snapshot of connected peer addresses; settled only
// once the session has ended.
func (c *Connector) Peers() []string {
	return c.peers.Addresses()
}

// PeerTable exposes the session's table so callers can wrap the
// connected sockets after the session ends.
func (c *Connector) PeerTable() *PeerTable {
	return c.peers
}

// broadcastLoop announces presence on the subnet broadcast address every
// BroadcastInterval until the session stops.
func (c *Connector) broadcastLoop() {
	defer c.wg.Done()
	sender, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		// The session can still accept inbound connections without a
		// broadcaster, so this is not fatal.
		c.log.Error().Err(err).Msg("broadcaster socket unavailable")
		return
	}
	defer sender.Close()

	dest := &net.UDPAddr{IP: net.IPv4bcast, Port: c.opts.UDPPort}
	next := c.clk.Now().Add(initialBroadcastDelay)
	c.log.Debug().Msg("broadcaster running")
	for c.enabled.Load() {
		if !c.clk.Now().Before(next) {
			if _, err := sender.WriteTo(markerPayload, dest); err != nil {
				// Broadcast sends fail routinely on some networks.
				c.log.Debug().Err(err).Msg("broadcast failed")
			} else {
				observability.RecordBroadcast(c.session)
			}
			next = c.clk.Now().Add(c.opts.BroadcastInterval)
		}
		c.clk.Sleep(broadcastWait(c.clk.Now(), next))
	}
	c.log.Debug().Msg("broadcaster exiting")
}

// broadcastWait returns how long the broadcaster may sleep before its
// next wake: the flag poll cadence, shortened when the next announce is
// due sooner. This is what lets the short initial delay take effect.
func broadcastWait(now, next time.Time) time.Duration {
	wait := flagPoll
	if until := next.Sub(now); until > 0 && until < wait {
		wait = until
	}
	return wait
}

// listenLoop receives announce datagrams and opens outbound connections
// to senders not yet in the peer table.
func (c *Connector) listenLoop() {
	defer c.wg.Done()
	defer c.udpListener.Close()
	buf := make([]byte, 1024)
	c.log.Debug().Msg("udp listener running")
	for c.enabled.Load() {
		if err := c.udpListener.SetReadDeadline(time.Now().Add(flagPoll)); err != nil {
			c.disable("udp listener", err)
			return
		}
		_, sender, err := c.udpListener.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			c.disable("udp listener", err)
			return
		}
		observability.RecordDatagram(c.session)
		if addr := sender.IP.String(); c.shouldDial(addr) {
			c.dialPeer(addr)
		}
	}
	c.log.Debug().Msg("udp listener exiting")
}

// shouldDial filters announce senders: peers already connected are
// skipped, and so is the local machine unless loopback is allowed.
func (c *Connector) shouldDial(addr string) bool {
	if c.peers.Has(addr) {
		return false
	}
	if !c.opts.AllowLoopback && addr == c.localIP {
		return false
	}
	return true
}

// dialPeer makes one bounded outbound connection attempt. Failure
// abandons only this attempt; the session keeps running.
func (c *Connector) dialPeer(addr string) {
	target := net.JoinHostPort(addr, strconv.Itoa(c.opts.TCPPort))
	c.log.Debug().Str("peer", target).Msg("connecting")
	conn, err := net.DialTimeout("tcp4", target, c.opts.ConnectTimeout)
	if err != nil {
		observability.RecordConnectFailure(c.session)
		c.log.Warn().Err(err).Str("peer", target).Msg("connect failed")
		return
	}
	c.adopt(addr, conn, "outbound")
}

// acceptLoop accepts inbound connections on the connection port.
func (c *Connector) acceptLoop() {
	defer c.wg.Done()
	defer c.tcpListener.Close()
	c.log.Debug().Msg("tcp listener running")
	for c.enabled.Load() {
		if err := c.tcpListener.SetDeadline(time.Now().Add(flagPoll)); err != nil {
			c.disable("tcp listener", err)
			return
		}
		conn, err := c.tcpListener.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			c.disable("tcp listener", err)
			return
		}
		addr := conn.RemoteAddr().(*net.TCPAddr).IP.String()
		c.log.Debug().Str("peer", addr).Msg("accepted")
		c.adopt(addr, conn, "inbound")
	}
	c.log.Debug().Msg("tcp listener exiting")
}

// adopt records a connection under first-entry-wins. The loser of a
// simultaneous mutual connect is closed, not left dangling, and the
// callback only fires for the adopted socket.
func (c *Connector) adopt(addr string, conn net.Conn, direction string) {
	if !c.peers.Add(addr, conn) {
		c.log.Debug().Str("peer", addr).Str("direction", direction).Msg("duplicate discarded")
		_ = conn.Close()
		return
	}
	observability.RecordPeerConnected(c.session, direction)
	c.log.Info().Str("peer", addr).Str("direction", direction).Msg("peer connected")
	if c.onConnect != nil {
		c.onConnect(conn)
	}
}

// timeoutLoop disables the session once the configured deadline passes.
func (c *Connector) timeoutLoop() {
	defer c.wg.Done()
	deadline := c.clk.Now().Add(c.opts.Timeout)
	for c.enabled.Load() {
		if !c.clk.Now().Before(deadline) {
			c.log.Debug().Msg("timed out")
			break
		}
		c.clk.Sleep(flagPoll)
	}
	c.enabled.Store(false)
}

// disable routes a fatal listener fault through the shared flag: without
// its listening socket the session cannot fulfill its purpose.
func (c *Connector) disable(worker string, err error) {
	c.log.Error().Err(err).Str("worker", worker).Msg("listener failed")
	c.enabled.Store(false)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
