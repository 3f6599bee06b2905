package discovery

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a
}

func TestPeerTableFirstEntryWins(t *testing.T) {
	table := NewPeerTable()
	first := pipeConn(t)
	second := pipeConn(t)

	require.True(t, table.Add("10.0.0.5", first))
	require.False(t, table.Add("10.0.0.5", second))

	kept, ok := table.Get("10.0.0.5")
	require.True(t, ok)
	require.Same(t, first, kept)
	require.Equal(t, 1, table.Len())
}

func TestPeerTableFirstEntryWinsUnderConcurrency(t *testing.T) {
	table := NewPeerTable()
	const writers = 32

	var wg sync.WaitGroup
	inserted := make(chan net.Conn, writers)
	for i := 0; i < writers; i++ {
		conn := pipeConn(t)
		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			if table.Add("10.0.0.9", conn) {
				inserted <- conn
			}
		}(conn)
	}
	wg.Wait()
	close(inserted)

	var winners []net.Conn
	for conn := range inserted {
		winners = append(winners, conn)
	}
	require.Len(t, winners, 1)
	require.Equal(t, 1, table.Len())

	kept, ok := table.Get("10.0.0.9")
	require.True(t, ok)
	require.Same(t, winners[0], kept)
}

func TestPeerTableSnapshotSorted(t *testing.T) {
	table := NewPeerTable()
	for _, addr := range []string{"10.0.0.3", "10.0.0.1", "10.0.0.2"} {
		require.True(t, table.Add(addr, pipeConn(t)))
	}
	require.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, table.Addresses())
}

func TestPeerTableCloseAllEmpties(t *testing.T) {
	table := NewPeerTable()
	require.True(t, table.Add("10.0.0.1", pipeConn(t)))
	require.True(t, table.Add("10.0.0.2", pipeConn(t)))
	table.CloseAll()
	require.Equal(t, 0, table.Len())
	require.Empty(t, table.Addresses())
}
