package commands

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/cablecast/cablecast/internal/config"
	"github.com/cablecast/cablecast/internal/loopback"
	"github.com/cablecast/cablecast/internal/messages"
	"github.com/cablecast/cablecast/internal/messenger"
	"github.com/cablecast/cablecast/internal/protocol"
	"github.com/cablecast/cablecast/internal/protocol/bytecodec"
	"github.com/cablecast/cablecast/internal/protocol/jsoncodec"
)

var errExchangeTimeout = errors.New("identify exchange timed out")

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept one loopback connection and exchange identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		server := loopback.NewServer(loopbackOptions(cfg), nil)
		if err := server.Connect(); err != nil {
			return err
		}
		return exchangeIdentify(server.Conn(), cfg.Transport)
	},
}

var dialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Connect to a loopback server and exchange identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client := loopback.NewClient(loopbackOptions(cfg), nil)
		if err := client.Connect(); err != nil {
			return err
		}
		return exchangeIdentify(client.Conn(), cfg.Transport)
	},
}

func loopbackOptions(cfg config.Config) loopback.Options {
	opts := loopback.DefaultOptions()
	opts.TCPPort = cfg.TCPPort
	opts.ConnectTimeout = cfg.ConnectTimeout.Duration
	opts.Timeout = cfg.Timeout.Duration
	return opts
}

func buildCodec(transport string, reg *protocol.Registry) protocol.Codec {
	if transport == "byte" {
		return bytecodec.New(reg)
	}
	return jsoncodec.New(reg)
}

// exchangeIdentify pumps the messenger until both sides have sent and
// received an Identify, then drains and closes.
func exchangeIdentify(conn net.Conn, transport string) error {
	reg := protocol.NewRegistry()
	if err := messages.RegisterDefaults(reg); err != nil {
		return err
	}
	m, err := messenger.New(conn, buildCodec(transport, reg))
	if err != nil {
		return err
	}
	defer m.Close()

	sent, received := false, false
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if err := m.Pump(); err != nil {
			return err
		}
		msg, err := m.Receive()
		if err != nil {
			return err
		}
		if identify, ok := msg.(*messages.Identify); ok {
			fmt.Printf("peer is %s@%s\n", identify.Username, identify.Hostname)
			received = true
		}
		if !sent {
			if err := m.Send(messages.NewIdentify()); err != nil {
				return err
			}
			sent = true
		}
		if sent && received {
			m.Drain(messenger.DefaultDrainAttempts)
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errExchangeTimeout
}
