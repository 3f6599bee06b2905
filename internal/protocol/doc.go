// Package protocol owns the message contract and registry primitives.
//
// Ownership boundary:
// - Message interface and payload/attribute hooks
// - Registry (wire key -> constructor)
// - Codec contract shared by the wire formats
package protocol
