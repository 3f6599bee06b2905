package discovery

import (
	"net"
	"sort"
	"sync"
)

// PeerTable maps peer address -> connected stream socket for one
// discovery session. The first connection recorded for an address wins;
// later arrivals are rejected so both sides of a simultaneous mutual
// connect settle on one live socket each.
type PeerTable struct {
	mu    sync.Mutex
	conns map[string]net.Conn
}

// NewPeerTable creates an empty peer table.
func NewPeerTable() *PeerTable {
	return &PeerTable{conns: make(map[string]net.Conn)}
}

// Add records conn under addr if no entry exists yet and reports whether
// the entry was inserted. Callers own closing a rejected conn.
func (t *PeerTable) Add(addr string, conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.conns[addr]; ok {
		return false
	}
	t.conns[addr] = conn
	return true
}

// Has reports whether addr already has a connection.
func (t *PeerTable) Has(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.conns[addr]
	return ok
}

// Get returns the connection recorded for addr.
func (t *PeerTable) Get(addr string) (net.Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn, ok := t.conns[addr]
	return conn, ok
}

// Addresses returns a sorted snapshot of the recorded peer addresses.
// Entries may still be appearing while workers run; the snapshot is only
// settled once the session has ended.
func (t *PeerTable) Addresses() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	addrs := make([]string, 0, len(t.conns))
	for addr := range t.conns {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// Len returns the number of recorded peers.
func (t *PeerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// CloseAll closes every recorded connection and empties the table.
func (t *PeerTable) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, conn := range t.conns {
		_ = conn.Close()
		delete(t.conns, addr)
	}
}
