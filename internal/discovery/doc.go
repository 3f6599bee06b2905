// Package discovery owns the UDP-broadcast peer discovery session.
//
// Ownership boundary:
// - broadcaster / UDP listener / TCP listener / timeout workers
// - the shared enabled flag that coordinates cooperative shutdown
// - the PeerTable of adopted connections
//
// A session turns "who else is on this subnet" into connected TCP
// sockets, each suitable for wrapping in a messenger. Shutdown is purely
// cooperative: any caller flips the enabled flag and every worker exits
// on its next poll, so stop latency is bounded by the poll cadence.
package discovery
