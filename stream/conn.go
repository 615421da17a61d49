// Package stream owns the transport layer: connections to upstream
// telemetry sources and the supervisor that keeps them alive. A stream
// unit is one goroutine owning one connection; units never share
// connections and a failure in one unit never propagates to another.
package stream

import (
	"context"
	"fmt"

	"github.com/c360/tidewatch/config"
	"github.com/c360/tidewatch/errors"
)

// Conn is one transport connection. Implementations are owned by a single
// stream unit goroutine and need not be safe for concurrent use.
type Conn interface {
	// Connect establishes the connection, bounded by the descriptor's
	// connect timeout.
	Connect(ctx context.Context) error

	// Next blocks for the next payload, bounded by the descriptor's read
	// timeout (or poll interval for polled sources). Transport faults are
	// returned as *ConnError.
	Next(ctx context.Context) ([]byte, error)

	// Close releases the connection. Safe to call after a failed Connect.
	Close() error
}

// ConnError is a transport fault on one stream.
type ConnError struct {
	Stream string
	Op     string
	Err    error

	// Terminal marks the connection as unusable: the owning unit must
	// close it and reconnect. Non-terminal faults (a failed poll tick)
	// leave the connection in place.
	Terminal bool
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("stream %s: %s: %v", e.Stream, e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// connErr builds a terminal ConnError classified as transient.
func connErr(stream, op string, err error) *ConnError {
	return &ConnError{
		Stream:   stream,
		Op:       op,
		Err:      errors.WrapTransient(err, "stream", op, "transport"),
		Terminal: true,
	}
}

// ConnFactory builds a connection for a descriptor. The supervisor never
// branches on transport kind; all variant selection happens here.
type ConnFactory func(desc config.StreamDescriptor, limiter *RateLimiter) (Conn, error)

// NewConn is the default factory covering the built-in transports.
func NewConn(desc config.StreamDescriptor, limiter *RateLimiter) (Conn, error) {
	switch desc.Transport {
	case config.TransportWebsocket:
		return newWebsocketConn(desc), nil
	case config.TransportNATS:
		return newNATSConn(desc), nil
	case config.TransportHTTPPoll:
		return newPolledConn(desc, limiter), nil
	default:
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: transport %q", errors.ErrInvalidConfig, desc.Transport),
			"stream", "NewConn", "select transport")
	}
}
