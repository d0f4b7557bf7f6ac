// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package peerhub

import (
	"errors"
	"fmt"
)

var (
	// ErrNotStarted is reported by operations that require a session when
	// none has been started.
	ErrNotStarted = errors.New("peerhub: session not started")

	// ErrInvalidConfig is reported when a session configuration is unusable.
	ErrInvalidConfig = errors.New("peerhub: invalid session config")

	// ErrNoSuchPeer is reported when a send names a peer that is not
	// currently connected.
	ErrNoSuchPeer = errors.New("peerhub: peer not connected")

	// ErrQueueOverflow is the diagnostic recorded when the delivery queue
	// drops its oldest message to admit a new one.
	ErrQueueOverflow = errors.New("peerhub: message queue overflow")

	// ErrReplayTargetAbsent is reported by ReplayTo when the target peer is
	// not connected. Nothing is sent.
	ErrReplayTargetAbsent = errors.New("peerhub: replay target not connected")

	// ErrReconnectExhausted is recorded as the last error when the session
	// gives up reconnecting. It persists until Retry, Restart, or a new
	// session clears it.
	ErrReconnectExhausted = errors.New("peerhub: reconnect attempts exhausted")
)

// TransportError reports a failure of the session endpoint as a whole, such
// as a failed open or a lost connection to the signaling service.
type TransportError struct {
	Op  string // the operation or event that failed
	Err error  // the underlying error
}

// Error satisfies the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap reports the underlying error of e.
func (e *TransportError) Unwrap() error { return e.Err }

// ConnError reports a failure scoped to the link with a single peer.
type ConnError struct {
	Peer string // the remote peer ID
	Op   string // the operation that failed
	Err  error  // the underlying error
}

// Error satisfies the error interface.
func (e *ConnError) Error() string {
	return fmt.Sprintf("conn %q %s: %v", e.Peer, e.Op, e.Err)
}

// Unwrap reports the underlying error of e.
func (e *ConnError) Unwrap() error { return e.Err }
