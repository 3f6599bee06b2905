package messenger

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cablecast/cablecast/internal/observability"
	"github.com/cablecast/cablecast/internal/protocol"
)

const (
	// ReadChunkSize bounds one receive attempt per Pump.
	ReadChunkSize = 1024
	// DefaultDrainAttempts caps how many pump passes Drain will make.
	DefaultDrainAttempts = 100
	// pollWindow bounds how long one socket operation may wait inside
	// Pump. Deadline-based polling is the portable stand-in for a
	// zero-timeout readiness check.
	pollWindow = time.Millisecond
)

var (
	ErrClosed       = errors.New("messenger: closed")
	ErrNotConnected = errors.New("messenger: socket not connected")
)

var instanceCount atomic.Uint64

// Messenger sends and receives encoded messages across one connected
// stream socket. All I/O happens inside Pump; Send only queues and
// Receive only drains the read buffer.
type Messenger struct {
	conn  net.Conn
	codec protocol.Codec

	id         uint64
	localAddr  net.Addr
	remoteAddr net.Addr

	readBuf  []byte
	writeBuf []byte
	chunk    []byte

	closed bool
	log    zerolog.Logger
}

// New wraps an already-connected socket with the given codec. Fails when
// the socket carries no peer address, i.e. was never connected.
func New(conn net.Conn, codec protocol.Codec) (*Messenger, error) {
	if conn == nil {
		return nil, ErrNotConnected
	}
	remote := conn.RemoteAddr()
	if remote == nil {
		return nil, ErrNotConnected
	}
	id := instanceCount.Add(1)
	m := &Messenger{
		conn:       conn,
		codec:      codec,
		id:         id,
		localAddr:  conn.LocalAddr(),
		remoteAddr: remote,
		chunk:      make([]byte, ReadChunkSize),
		log: log.With().
			Str("comp", "messenger").
			Uint64("messenger", id).
			Str("codec", codec.Name()).
			Logger(),
	}
	m.log.Debug().
		Stringer("local", m.localAddr).
		Stringer("remote", m.remoteAddr).
		Msg("instantiated")
	return m, nil
}

// ID returns the process-wide instance number, used in log correlation.
func (m *Messenger) ID() uint64 { return m.id }

// LocalAddr returns the local endpoint recorded at construction.
func (m *Messenger) LocalAddr() net.Addr { return m.localAddr }

// RemoteAddr returns the peer endpoint recorded at construction.
func (m *Messenger) RemoteAddr() net.Addr { return m.remoteAddr }

// Closed reports whether the messenger has shut down, voluntarily or
// because the socket failed.
func (m *Messenger) Closed() bool { return m.closed }

// Pending returns the number of buffered outbound bytes.
func (m *Messenger) Pending() int { return len(m.writeBuf) }

// Pump performs one non-blocking service pass: at most one receive
// attempt and, when outbound bytes are pending, one send attempt. Socket
// faults never escape; they degrade the messenger to the closed state,
// reported as ErrClosed on this and every later call.
func (m *Messenger) Pump() error {
	if m.closed {
		return ErrClosed
	}
	m.readPass()
	if !m.closed {
		m.writePass()
	}
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Messenger) readPass() {
	if err := m.conn.SetReadDeadline(time.Now().Add(pollWindow)); err != nil {
		m.fail("arm read deadline", err)
		return
	}
	n, err := m.conn.Read(m.chunk)
	if n > 0 {
		m.readBuf = append(m.readBuf, m.chunk[:n]...)
		observability.RecordBytesReceived(m.codec.Name(), n)
		m.log.Debug().Int("bytes", n).Msg("read")
	}
	if err == nil || wouldBlock(err) {
		return
	}
	if peerGone(err) {
		m.log.Debug().Err(err).Msg("peer gone")
		m.markClosed()
		return
	}
	m.fail("read", err)
}

func (m *Messenger) writePass() {
	if len(m.writeBuf) == 0 {
		return
	}
	if err := m.conn.SetWriteDeadline(time.Now().Add(pollWindow)); err != nil {
		m.fail("arm write deadline", err)
		return
	}
	n, err := m.conn.Write(m.writeBuf)
	if n > 0 {
		// Partial sends are expected; only the accepted prefix leaves
		// the buffer.
		m.writeBuf = m.writeBuf[n:]
		observability.RecordBytesSent(m.codec.Name(), n)
		m.log.Debug().Int("bytes", n).Msg("wrote")
	}
	if err == nil || wouldBlock(err) {
		return
	}
	if peerGone(err) {
		m.log.Debug().Err(err).Msg("peer gone")
		m.markClosed()
		return
	}
	m.fail("write", err)
}

// Receive returns the next complete message from the read buffer, or nil
// when none is ready. Never blocks. Codec decode faults are logged and
// swallowed, with one exception: an unknown message type propagates,
// because it means the peer speaks a different protocol version.
func (m *Messenger) Receive() (protocol.Message, error) {
	msg, consumed, err := m.codec.ExtractOne(m.readBuf)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownMessageType) {
			return nil, err
		}
		m.log.Warn().Err(err).Msg("discarding undecodable message")
		return nil, nil
	}
	if msg == nil {
		return nil, nil
	}
	m.readBuf = m.readBuf[consumed+m.codec.Trailer():]
	observability.RecordMessageReceived(m.codec.Name())
	return msg, nil
}

// Send encodes msg and appends it to the write buffer. Transmission
// happens on later Pump calls, so Send never fails for network reasons;
// only encoding itself can error.
func (m *Messenger) Send(msg protocol.Message) error {
	data, err := m.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("messenger %d: %w", m.id, err)
	}
	m.writeBuf = append(m.writeBuf, data...)
	observability.RecordMessageSent(m.codec.Name())
	return nil
}

// Drain pumps until the write buffer empties or maxAttempts passes run
// out, then closes. Use for graceful shutdown without losing queued
// outbound data. maxAttempts <= 0 uses DefaultDrainAttempts.
func (m *Messenger) Drain(maxAttempts int) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultDrainAttempts
	}
	for i := 0; i < maxAttempts && !m.closed && len(m.writeBuf) > 0; i++ {
		_ = m.Pump()
	}
	m.Close()
}

// Close shuts the socket down and marks the messenger closed. Idempotent.
func (m *Messenger) Close() {
	if m.closed {
		return
	}
	m.log.Debug().Msg("closing")
	m.markClosed()
}

func (m *Messenger) markClosed() {
	m.closed = true
	if tcp, ok := m.conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	_ = m.conn.Close()
}

func (m *Messenger) fail(op string, err error) {
	m.log.Error().Err(err).Str("op", op).Msg("socket fault")
	m.markClosed()
}

// wouldBlock reports the no-data/no-space condition of a deadline poll.
func wouldBlock(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// peerGone reports conditions where the remote side went away; these
// close the messenger quietly rather than as faults.
func peerGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
