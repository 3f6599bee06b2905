package protocol

import "errors"

var (
	ErrUnknownMessageType = errors.New("protocol: unknown message type")
	ErrMalformedEnvelope  = errors.New("protocol: malformed envelope")
	ErrMessageTooLarge    = errors.New("protocol: message too large")
	ErrNilConstructor     = errors.New("protocol: nil constructor")
)
