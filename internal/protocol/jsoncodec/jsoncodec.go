// Package jsoncodec implements the line-delimited json wire format.
//
// Each message is a UTF-8 line holding a 2-element array,
//
//	["TypeName", {"attr": value, ...}]
//
// followed by a single newline terminator. Frames are unbounded; the
// format trades bandwidth for not needing per-type payload encoders.
package jsoncodec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/cablecast/cablecast/internal/protocol"
)

// Terminator ends every encoded message.
const Terminator = '\n'

// Codec frames messages in the json wire format against one registry.
type Codec struct {
	reg *protocol.Registry
}

// New creates a json codec resolving type names through reg.
func New(reg *protocol.Registry) *Codec {
	return &Codec{reg: reg}
}

// Name implements protocol.Codec.
func (c *Codec) Name() string { return "json" }

// Trailer implements protocol.Codec. ExtractOne reports the offset of the
// terminator, so callers skip one extra byte per message. The asymmetry
// with the byte format is part of each codec's caller contract; the
// messenger normalizes it through this hook.
func (c *Codec) Trailer() int { return 1 }

// Encode renders msg as ["Name", attributes] plus the terminator.
func (c *Codec) Encode(msg protocol.Message) ([]byte, error) {
	attrs := msg.Attributes()
	if attrs == nil {
		attrs = map[string]any{}
	}
	line, err := json.Marshal([2]any{msg.Name(), attrs})
	if err != nil {
		return nil, fmt.Errorf("jsoncodec: encode %s: %w", msg.Name(), err)
	}
	return append(line, Terminator), nil
}

// ExtractOne scans buf for the terminator and decodes the line before it.
// Without a terminator it returns (nil, 0, nil); buf is never mutated.
// On success, consumed is the offset of the terminator, not counting the
// terminator itself (see Trailer).
//
// A malformed line is logged and reported as no-message-yet: there is no
// resynchronization, so a persistently bad line stalls extraction. An
// unregistered type name is the exception and propagates as
// protocol.ErrUnknownMessageType.
func (c *Codec) ExtractOne(buf []byte) (protocol.Message, int, error) {
	pos := bytes.IndexByte(buf, Terminator)
	if pos < 0 {
		return nil, 0, nil
	}
	line := buf[:pos]

	var envelope []json.RawMessage
	if err := json.Unmarshal(line, &envelope); err != nil || len(envelope) != 2 {
		c.reject(line, err)
		return nil, 0, nil
	}
	var name string
	if err := json.Unmarshal(envelope[0], &name); err != nil {
		c.reject(line, err)
		return nil, 0, nil
	}
	ctor, err := c.reg.ResolveName(name)
	if err != nil {
		return nil, 0, err
	}
	var attrs map[string]any
	if err := json.Unmarshal(envelope[1], &attrs); err != nil {
		c.reject(line, err)
		return nil, 0, nil
	}
	msg := ctor()
	if err := msg.ApplyAttributes(attrs); err != nil {
		c.reject(line, err)
		return nil, 0, nil
	}
	return msg, pos, nil
}

func (c *Codec) reject(line []byte, err error) {
	log.Warn().Err(err).Bytes("line", line).Msg("jsoncodec: malformed envelope")
}
