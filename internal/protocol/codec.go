package protocol

// Codec frames messages onto a byte stream and peels them back off an
// accumulating read buffer.
type Codec interface {
	// Name identifies the codec ("byte" or "json"); used for config
	// selection and metric labels.
	Name() string

	// Encode renders one message, framing included.
	Encode(msg Message) ([]byte, error)

	// ExtractOne attempts to peel one complete message off the front of
	// buf without mutating it. It returns (nil, 0, nil) when buf does not
	// yet hold a complete message. On success, consumed is the codec's
	// native advance: the byte format reports the full frame length, the
	// json format reports the offset of the terminator. Callers advance
	// by consumed + Trailer().
	//
	// An unregistered wire key surfaces as ErrUnknownMessageType; other
	// decode faults are reported for logging and carry zero consumption.
	ExtractOne(buf []byte) (msg Message, consumed int, err error)

	// Trailer is the fixed number of framing bytes that follow each
	// extracted message and are not included in consumed.
	Trailer() int
}
