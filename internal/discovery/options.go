package discovery

import "time"

// Options configures one discovery session.
type Options struct {
	// UDPPort carries the announce datagrams.
	UDPPort int
	// TCPPort accepts and receives peer connections.
	TCPPort int
	// BroadcastInterval is the announce cadence.
	BroadcastInterval time.Duration
	// AllowLoopback permits connections to/from the local address.
	AllowLoopback bool
	// ConnectTimeout bounds each outbound TCP connect attempt.
	ConnectTimeout time.Duration
	// Timeout ends the session after a fixed duration. Zero disables it.
	Timeout time.Duration
}

// DefaultOptions returns the stock session configuration.
func DefaultOptions() Options {
	return Options{
		UDPPort:           8222,
		TCPPort:           8223,
		BroadcastInterval: time.Second,
		AllowLoopback:     false,
		ConnectTimeout:    2 * time.Second,
		Timeout:           0,
	}
}
