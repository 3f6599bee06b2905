package messenger

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/cablecast/cablecast/internal/messages"
	"github.com/cablecast/cablecast/internal/protocol"
	"github.com/cablecast/cablecast/internal/protocol/bytecodec"
	"github.com/cablecast/cablecast/internal/protocol/jsoncodec"
	"github.com/cablecast/cablecast/internal/testutil/testlog"
)

func defaultRegistry(t *testing.T) *protocol.Registry {
	t.Helper()
	reg := protocol.NewRegistry()
	if err := messages.RegisterDefaults(reg); err != nil {
		t.Fatalf("register defaults: %v", err)
	}
	return reg
}

// tcpPair returns two ends of a real localhost TCP connection. net.Pipe
// is unsuitable here: it is synchronous and has no kernel buffer, so the
// non-blocking pump would never make progress.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	type accepted struct {
		conn net.Conn
		err  error
	}
	ch := make(chan accepted, 1)
	go func() {
		conn, err := listener.Accept()
		ch <- accepted{conn, err}
	}()

	client, err := net.Dial("tcp4", listener.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server := <-ch
	if server.err != nil {
		client.Close()
		t.Fatalf("accept: %v", server.err)
	}
	t.Cleanup(func() {
		client.Close()
		server.conn.Close()
	})
	return client, server.conn
}

func pumpUntilMessage(t *testing.T, sender, receiver *Messenger) protocol.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = sender.Pump()
		_ = receiver.Pump()
		msg, err := receiver.Receive()
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if msg != nil {
			return msg
		}
	}
	t.Fatal("no message before deadline")
	return nil
}

func TestRoundTripBothCodecs(t *testing.T) {
	testlog.Start(t)
	codecs := map[string]func(*protocol.Registry) protocol.Codec{
		"json": func(reg *protocol.Registry) protocol.Codec { return jsoncodec.New(reg) },
		"byte": func(reg *protocol.Registry) protocol.Codec { return bytecodec.New(reg) },
	}
	for name, build := range codecs {
		t.Run(name, func(t *testing.T) {
			clientConn, serverConn := tcpPair(t)
			reg := defaultRegistry(t)

			client, err := New(clientConn, build(reg))
			if err != nil {
				t.Fatalf("client: %v", err)
			}
			server, err := New(serverConn, build(reg))
			if err != nil {
				t.Fatalf("server: %v", err)
			}

			if err := client.Send(&messages.Identify{Username: "kim", Hostname: "deck"}); err != nil {
				t.Fatalf("send: %v", err)
			}
			msg := pumpUntilMessage(t, client, server)
			identify, ok := msg.(*messages.Identify)
			if !ok {
				t.Fatalf("received %T", msg)
			}
			if identify.Username != "kim" || identify.Hostname != "deck" {
				t.Fatalf("mismatch: %+v", identify)
			}
		})
	}
}

func TestNewRequiresConnectedSocket(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendQueuesWithoutWriting(t *testing.T) {
	testlog.Start(t)
	clientConn, _ := tcpPair(t)
	client, err := New(clientConn, jsoncodec.New(defaultRegistry(t)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if client.Pending() != 0 {
		t.Fatalf("fresh messenger has %d pending bytes", client.Pending())
	}
	if err := client.Send(&messages.Join{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if client.Pending() == 0 {
		t.Fatal("send did not queue")
	}
}

func TestDrainDeliversAllQueuedMessagesInOrder(t *testing.T) {
	testlog.Start(t)
	clientConn, serverConn := tcpPair(t)
	reg := defaultRegistry(t)

	client, err := New(clientConn, jsoncodec.New(reg))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	server, err := New(serverConn, jsoncodec.New(reg))
	if err != nil {
		t.Fatalf("server: %v", err)
	}

	// Queue well past 10KB so the pump has to work through partial
	// sends across many passes.
	const count = 200
	for i := 0; i < count; i++ {
		msg := &messages.Identify{
			Username: fmt.Sprintf("user-%03d", i),
			Hostname: "drain-test-host-with-some-padding-to-grow-the-frame",
		}
		if err := client.Send(msg); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if client.Pending() < 10*1024 {
		t.Fatalf("queued only %d bytes", client.Pending())
	}

	done := make(chan struct{})
	go func() {
		client.Drain(0)
		close(done)
	}()

	received := 0
	deadline := time.Now().Add(10 * time.Second)
	for received < count && time.Now().Before(deadline) {
		_ = server.Pump()
		for {
			msg, err := server.Receive()
			if err != nil {
				t.Errorf("receive: %v", err)
				return
			}
			if msg == nil {
				break
			}
			identify, ok := msg.(*messages.Identify)
			if !ok {
				t.Errorf("received %T", msg)
				return
			}
			want := fmt.Sprintf("user-%03d", received)
			if identify.Username != want {
				t.Errorf("message %d out of order: got %q", received, identify.Username)
				return
			}
			received++
		}
	}
	<-done
	if received != count {
		t.Fatalf("received %d of %d messages", received, count)
	}
	if !client.Closed() {
		t.Fatal("drain did not close")
	}
}

func TestPumpReportsClosedAfterPeerDisconnect(t *testing.T) {
	testlog.Start(t)
	clientConn, serverConn := tcpPair(t)
	reg := defaultRegistry(t)

	server, err := New(serverConn, jsoncodec.New(reg))
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	clientConn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := server.Pump(); errors.Is(err, ErrClosed) {
			if !server.Closed() {
				t.Fatal("closed state not recorded")
			}
			return
		}
	}
	t.Fatal("pump never observed the disconnect")
}

func TestCloseIsIdempotentAndPumpBecomesNoOp(t *testing.T) {
	testlog.Start(t)
	clientConn, _ := tcpPair(t)
	client, err := New(clientConn, jsoncodec.New(defaultRegistry(t)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	client.Close()
	client.Close()
	if !client.Closed() {
		t.Fatal("not closed")
	}
	if err := client.Pump(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestReceivePropagatesUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	clientConn, serverConn := tcpPair(t)

	// The receiving side registers nothing, so every inbound message is
	// a protocol mismatch.
	sender, err := New(clientConn, jsoncodec.New(defaultRegistry(t)))
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	receiver, err := New(serverConn, jsoncodec.New(protocol.NewRegistry()))
	if err != nil {
		t.Fatalf("receiver: %v", err)
	}
	if err := sender.Send(&messages.Join{}); err != nil {
		t.Fatalf("send: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = sender.Pump()
		_ = receiver.Pump()
		_, err := receiver.Receive()
		if err != nil {
			if !errors.Is(err, protocol.ErrUnknownMessageType) {
				t.Fatalf("expected ErrUnknownMessageType, got %v", err)
			}
			return
		}
	}
	t.Fatal("unknown message type never surfaced")
}
