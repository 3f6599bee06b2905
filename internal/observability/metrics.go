package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	broadcastsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cablecast",
			Subsystem: "discovery",
			Name:      "broadcasts_total",
			Help:      "UDP announce datagrams sent.",
		},
		[]string{"session"},
	)
	datagramsSeen = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cablecast",
			Subsystem: "discovery",
			Name:      "datagrams_total",
			Help:      "UDP announce datagrams received.",
		},
		[]string{"session"},
	)
	peersConnected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cablecast",
			Subsystem: "discovery",
			Name:      "peers_connected_total",
			Help:      "Peer connections adopted into the peer table.",
		},
		[]string{"session", "direction"},
	)
	connectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cablecast",
			Subsystem: "discovery",
			Name:      "connect_failures_total",
			Help:      "Outbound TCP connection attempts that failed.",
		},
		[]string{"session"},
	)
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cablecast",
			Subsystem: "transport",
			Name:      "messages_sent_total",
			Help:      "Messages queued for send, by codec.",
		},
		[]string{"codec"},
	)
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cablecast",
			Subsystem: "transport",
			Name:      "messages_received_total",
			Help:      "Messages decoded off the wire, by codec.",
		},
		[]string{"codec"},
	)
	bytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cablecast",
			Subsystem: "transport",
			Name:      "bytes_sent_total",
			Help:      "Bytes accepted by the socket, by codec.",
		},
		[]string{"codec"},
	)
	bytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cablecast",
			Subsystem: "transport",
			Name:      "bytes_received_total",
			Help:      "Bytes appended to read buffers, by codec.",
		},
		[]string{"codec"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			broadcastsSent, datagramsSeen, peersConnected, connectFailures,
			messagesSent, messagesReceived, bytesSent, bytesReceived,
		)
	})
}

func RecordBroadcast(session string) {
	RegisterMetrics()
	broadcastsSent.WithLabelValues(session).Inc()
}

func RecordDatagram(session string) {
	RegisterMetrics()
	datagramsSeen.WithLabelValues(session).Inc()
}

func RecordPeerConnected(session, direction string) {
	RegisterMetrics()
	peersConnected.WithLabelValues(session, direction).Inc()
}

func RecordConnectFailure(session string) {
	RegisterMetrics()
	connectFailures.WithLabelValues(session).Inc()
}

func RecordMessageSent(codec string) {
	RegisterMetrics()
	messagesSent.WithLabelValues(codec).Inc()
}

func RecordMessageReceived(codec string) {
	RegisterMetrics()
	messagesReceived.WithLabelValues(codec).Inc()
}

func RecordBytesSent(codec string, n int) {
	RegisterMetrics()
	bytesSent.WithLabelValues(codec).Add(float64(n))
}

func RecordBytesReceived(codec string, n int) {
	RegisterMetrics()
	bytesReceived.WithLabelValues(codec).Add(float64(n))
}
