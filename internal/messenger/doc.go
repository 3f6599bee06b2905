// Package messenger owns the non-blocking message transport over one
// connected stream socket.
//
// Ownership boundary:
// - read/write byte buffers and the single-pass Pump
// - Send/Receive framing through a protocol.Codec
// - closed-state degradation for all socket faults
//
// A Messenger is poll-driven and single-threaded: the owning loop calls
// Pump repeatedly, and no call ever blocks for longer than the poll
// window. Concurrent use from multiple goroutines is not supported.
package messenger
