package protocol

import (
	"fmt"
	"sort"
)

// Constructor builds an empty, decodable instance of one message type.
type Constructor func() Message

// Registry maps wire identifiers to message constructors. Both key spaces
// (byte code and type name) are populated by every registration so either
// codec can resolve the same message set. A Registry belongs to one
// session; it is not safe for concurrent mutation and is expected to be
// fully populated at startup, before any decoding happens.
type Registry struct {
	byCode map[byte]Constructor
	byName map[string]Constructor
}

// NewRegistry creates an empty message registry.
func NewRegistry() *Registry {
	return &Registry{
		byCode: make(map[byte]Constructor),
		byName: make(map[string]Constructor),
	}
}

// Register adds a mapping under both key spaces. Re-registering a key
// overwrites the previous entry; the last registration wins.
func (r *Registry) Register(code byte, name string, ctor Constructor) error {
	if ctor == nil {
		return fmt.Errorf("%w: %q", ErrNilConstructor, name)
	}
	r.byCode[code] = ctor
	r.byName[name] = ctor
	return nil
}

// ResolveCode returns the constructor registered under a byte code.
func (r *Registry) ResolveCode(code byte) (Constructor, error) {
	ctor, ok := r.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: code 0x%02x", ErrUnknownMessageType, code)
	}
	return ctor, nil
}

// ResolveName returns the constructor registered under a type name.
func (r *Registry) ResolveName(name string) (Constructor, error) {
	ctor, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: name %q", ErrUnknownMessageType, name)
	}
	return ctor, nil
}

// Registered reports whether a type name has a constructor.
func (r *Registry) Registered(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Names returns the registered type names in deterministic order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
