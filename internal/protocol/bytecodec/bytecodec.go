// Package bytecodec implements the compact byte wire format.
//
// Each message is framed as:
//
//	+--------+--------+----------------------+
//	| length |  code  |  payload (optional)  |
//	+--------+--------+----------------------+
//	(bytes)
//	length   1   total frame length, header included
//	code     1   registered message code
//	payload  length-2
//
// The single-byte length field caps a frame at 255 bytes. A payload-less
// message is exactly 2 bytes.
package bytecodec

import (
	"fmt"

	"github.com/cablecast/cablecast/internal/protocol"
)

const (
	// HeaderLen covers the length and code bytes.
	HeaderLen = 2
	// MaxFrameLen is the hard format limit imposed by the length byte.
	MaxFrameLen = 255
	// MaxPayloadLen is the largest payload a single frame can carry.
	MaxPayloadLen = MaxFrameLen - HeaderLen
)

// Codec frames messages in the byte wire format against one registry.
type Codec struct {
	reg *protocol.Registry
}

// New creates a byte codec resolving message codes through reg.
func New(reg *protocol.Registry) *Codec {
	return &Codec{reg: reg}
}

// Name implements protocol.Codec.
func (c *Codec) Name() string { return "byte" }

// Trailer implements protocol.Codec. The reported consumed length already
// covers the whole frame.
func (c *Codec) Trailer() int { return 0 }

// Encode renders msg as one frame: the message's own payload prefixed by
// the length and code bytes.
func (c *Codec) Encode(msg protocol.Message) ([]byte, error) {
	payload, err := msg.EncodePayload()
	if err != nil {
		return nil, fmt.Errorf("bytecodec: encode %s: %w", msg.Name(), err)
	}
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %s payload is %d bytes, limit %d",
			protocol.ErrMessageTooLarge, msg.Name(), len(payload), MaxPayloadLen)
	}
	frame := make([]byte, HeaderLen+len(payload))
	frame[0] = byte(HeaderLen + len(payload))
	frame[1] = msg.Code()
	copy(frame[HeaderLen:], payload)
	return frame, nil
}

// ExtractOne peels one complete frame off the front of buf. It returns
// (nil, 0, nil) until buf holds at least one whole frame, never mutating
// buf. On success, consumed is the full frame length; the caller drops
// exactly that many bytes. An unregistered code is reported as
// protocol.ErrUnknownMessageType and must reach the caller: it means the
// peer speaks a different message set.
func (c *Codec) ExtractOne(buf []byte) (protocol.Message, int, error) {
	if len(buf) < 1 || int(buf[0]) > len(buf) {
		return nil, 0, nil
	}
	total := int(buf[0])
	if total < HeaderLen {
		return nil, 0, fmt.Errorf("%w: frame length %d below header", protocol.ErrMalformedEnvelope, total)
	}
	ctor, err := c.reg.ResolveCode(buf[1])
	if err != nil {
		return nil, 0, err
	}
	msg := ctor()
	if total > HeaderLen {
		if err := msg.DecodePayload(buf[HeaderLen:total]); err != nil {
			return nil, 0, fmt.Errorf("bytecodec: decode %s: %w", msg.Name(), err)
		}
	}
	return msg, total, nil
}
