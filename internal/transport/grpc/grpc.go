// Package grpc implements the gRPC transport for turnout.
//
// Intended for low-latency, strongly-typed integrations (robots and edge
// satellites). It ships disabled by default: until the service proto is
// compiled the server accepts connections but registers no services.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"

	"github.com/nadzzz/turnout/internal/transport"
)

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	server *grpc.Server
}

// New creates a new gRPC transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen serves gRPC until the context is cancelled.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	addr := fmt.Sprintf(":%d", t.port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen on %s: %w", addr, err)
	}

	t.server = grpc.NewServer()

	// TODO: register the generated TurnoutService server here once the proto
	// is compiled, wiring handler into its Ask RPC.

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.server.GracefulStop()
	}()

	slog.Info("grpc transport listening", "port", t.port)
	return t.server.Serve(lis)
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	t.server.GracefulStop()
	return nil
}
