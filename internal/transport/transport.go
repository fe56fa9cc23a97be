// Package transport defines the interface for pluggable query transports.
//
// Each transport (HTTP, MQTT, gRPC) implements this interface and hands
// incoming queries to the dispatch handler. The dispatcher doesn't care how
// queries arrive — it only works with the Transport contract. Answers always
// travel back over the transport that carried the query in.
package transport

import (
	"context"

	"github.com/nadzzz/turnout/internal/gateway"
	"github.com/nadzzz/turnout/internal/message"
)

// Handler is a function that answers one incoming query. The dispatcher
// provides this handler to each transport.
type Handler func(ctx context.Context, q *message.Query) (*message.Answer, error)

// StatsProvider exposes the gateway's statistics surface to transports that
// serve it.
type StatsProvider interface {
	// Statistics returns a snapshot of the routing counters.
	Statistics() gateway.Snapshot

	// ResetStatistics clears counters, latency windows and the cache.
	ResetStatistics()
}

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "http", "mqtt").
	Name() string

	// Listen starts accepting incoming queries and dispatches them to the
	// handler. It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
