package protocol

// Message is one typed unit passed across the wire. A concrete message is
// identified by a one-byte code (byte format) and a type name (json format)
// and supplies the hooks both codecs use to move its data.
//
// Constructors handed to the Registry must return a decodable zero value;
// the codecs construct an empty instance first and then apply the payload
// or attribute map to it.
type Message interface {
	// Code is the one-byte wire identifier used by the byte format.
	Code() byte
	// Name is the type name used by the json format.
	Name() string

	// EncodePayload returns the byte-format payload. Empty is valid.
	EncodePayload() ([]byte, error)
	// DecodePayload populates the message from a byte-format payload.
	// The slice is only valid for the duration of the call.
	DecodePayload(data []byte) error

	// Attributes returns the flattened, wire-safe attribute view used by
	// the json format. Non-primitive attributes must be flattened here.
	Attributes() map[string]any
	// ApplyAttributes populates the message from a decoded attribute map.
	ApplyAttributes(attrs map[string]any) error
}

// NoPayload provides the codec hooks for messages that carry no data
// beyond their identity. Embed it and define Code/Name.
type NoPayload struct{}

func (NoPayload) EncodePayload() ([]byte, error) { return nil, nil }

func (NoPayload) DecodePayload([]byte) error { return nil }

func (NoPayload) Attributes() map[string]any { return map[string]any{} }

func (NoPayload) ApplyAttributes(map[string]any) error { return nil }
