// Package messages owns the built-in message set.
//
// Ownership boundary:
// - Identify/Join/Retry/Quit message types
// - default registration of the built-in set
package messages

import (
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/google/uuid"

	"github.com/cablecast/cablecast/internal/protocol"
)

// Byte-format codes for the built-in message set.
const (
	CodeIdentify byte = 0x1
	CodeJoin     byte = 0x2
	CodeRetry    byte = 0x3
	CodeQuit     byte = 0x4
)

// RegisterDefaults registers every built-in message type under both key
// spaces. Idempotent: re-running it re-registers the same mappings.
func RegisterDefaults(reg *protocol.Registry) error {
	entries := []struct {
		code byte
		name string
		ctor protocol.Constructor
	}{
		{CodeIdentify, "Identify", func() protocol.Message { return &Identify{} }},
		{CodeJoin, "Join", func() protocol.Message { return &Join{} }},
		{CodeRetry, "Retry", func() protocol.Message { return &Retry{} }},
		{CodeQuit, "Quit", func() protocol.Message { return &Quit{} }},
	}
	for _, e := range entries {
		if err := reg.Register(e.code, e.name, e.ctor); err != nil {
			return err
		}
	}
	return nil
}

// Identify announces who is on the other end of a connection.
type Identify struct {
	Username string
	Hostname string
	Instance string
}

// NewIdentify builds an Identify describing the current process: user and
// host from the environment, plus a fresh instance id.
func NewIdentify() *Identify {
	username := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	return &Identify{
		Username: username,
		Hostname: hostname,
		Instance: uuid.NewString(),
	}
}

func (m *Identify) Code() byte   { return CodeIdentify }
func (m *Identify) Name() string { return "Identify" }

// EncodePayload renders "username@hostname". The instance id rides only
// on the json format; the byte format keeps the compact legacy payload.
func (m *Identify) EncodePayload() ([]byte, error) {
	return []byte(m.Username + "@" + m.Hostname), nil
}

func (m *Identify) DecodePayload(data []byte) error {
	parts := strings.SplitN(string(data), "@", 2)
	if len(parts) != 2 {
		return fmt.Errorf("identify payload %q missing separator", string(data))
	}
	m.Username = parts[0]
	m.Hostname = parts[1]
	return nil
}

func (m *Identify) Attributes() map[string]any {
	return map[string]any{
		"username": m.Username,
		"hostname": m.Hostname,
		"instance": m.Instance,
	}
}

func (m *Identify) ApplyAttributes(attrs map[string]any) error {
	var err error
	if m.Username, err = stringAttr(attrs, "username"); err != nil {
		return err
	}
	if m.Hostname, err = stringAttr(attrs, "hostname"); err != nil {
		return err
	}
	if m.Instance, err = stringAttr(attrs, "instance"); err != nil {
		return err
	}
	return nil
}

func stringAttr(attrs map[string]any, key string) (string, error) {
	raw, ok := attrs[key]
	if !ok {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("attribute %q is %T, want string", key, raw)
	}
	return s, nil
}

// Join asks to join the session in progress.
type Join struct{ protocol.NoPayload }

func (m *Join) Code() byte   { return CodeJoin }
func (m *Join) Name() string { return "Join" }

// Retry asks the peer to repeat its last request.
type Retry struct{ protocol.NoPayload }

func (m *Retry) Code() byte   { return CodeRetry }
func (m *Retry) Name() string { return "Retry" }

// Quit announces an orderly departure.
type Quit struct{ protocol.NoPayload }

func (m *Quit) Code() byte   { return CodeQuit }
func (m *Quit) Name() string { return "Quit" }
