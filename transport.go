// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package peerhub

import (
	"context"
	"fmt"
)

// A Transport opens endpoints on a peer network.
//
// The memnet and wsnet packages provide implementations.
type Transport interface {
	// Open creates an endpoint for localID. The opts value is passed through
	// verbatim from the session config and is interpreted by the transport.
	//
	// Open does not wait for the endpoint to become usable: the endpoint
	// reports EventOpen on its events channel when it is ready.
	Open(ctx context.Context, localID string, opts any) (Endpoint, error)
}

// An Endpoint is the local attachment point of one peer on the network.
//
// Endpoints deliver events from their own goroutines; a session never
// receives an event synchronously from within a call to an Endpoint method.
type Endpoint interface {
	// Events reports lifecycle events of the endpoint in order. The channel
	// is closed when the endpoint is destroyed.
	Events() <-chan Event

	// Dial opens a connection to the remote peer and blocks until it is
	// usable or has failed.
	Dial(ctx context.Context, remoteID string) (Conn, error)

	// Reconnect asks the endpoint to restore its network attachment after a
	// disconnect. Success is reported by a later EventOpen.
	Reconnect() error

	// Disconnect detaches the endpoint from the network without closing
	// established connections. No further inbound connections are accepted
	// until Reconnect.
	Disconnect() error

	// Destroy closes the endpoint and all its connections, and closes the
	// events channel. Destroy is idempotent.
	Destroy() error

	// Destroyed reports whether Destroy has been called.
	Destroyed() bool
}

// A Conn is a reliable ordered message link with one remote peer.
//
// The methods of an implementation must be safe for concurrent use by one
// receiver and any number of senders.
type Conn interface {
	// Peer reports the ID of the remote peer.
	Peer() string

	// Send transmits one payload to the remote peer.
	Send(data []byte) error

	// Recv blocks until the next payload arrives from the remote peer. It
	// reports an error once the connection has closed.
	Recv() ([]byte, error)

	// Close closes the connection, causing pending and future operations on
	// both ends to report an error.
	Close() error
}

// EventKind enumerates the types of endpoint events.
type EventKind byte

const (
	EventOpen         EventKind = 1 + iota // the endpoint is attached and usable
	EventConnection                        // a remote peer connected to this endpoint
	EventDisconnected                      // the endpoint lost its network attachment
	EventClose                             // the endpoint was closed
	EventError                             // the endpoint reported an error
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventConnection:
		return "connection"
	case EventDisconnected:
		return "disconnected"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event:%d", byte(k))
	}
}

// An Event is a notification from an Endpoint.
type Event struct {
	Kind EventKind
	Conn Conn  // for EventConnection
	Err  error // for EventError, and optionally EventDisconnected
}

func (e Event) String() string {
	switch {
	case e.Conn != nil:
		return fmt.Sprintf("%v(%s)", e.Kind, e.Conn.Peer())
	case e.Err != nil:
		return fmt.Sprintf("%v(%v)", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}
