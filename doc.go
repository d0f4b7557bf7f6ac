// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package peerhub orchestrates peer sessions in a star topology.
//
// One peer of the star is the host. Every other peer is a client that keeps
// exactly one connection, to the host. A client that wants to reach all the
// other clients sends a payload carrying a relay marker, and the host forwards
// it to every connected client except the sender.
//
// # Sessions
//
// The core type defined by this package is the [Session]. A session runs one
// peer of the star over a [Transport], which supplies the endpoints and
// connections that carry payloads. To start a host:
//
//	s := peerhub.NewSession(t, nil)
//	if err := s.StartHost(ctx, "room-42", nil); err != nil {
//	   log.Fatalf("Start: %v", err)
//	}
//
// and a client:
//
//	c := peerhub.NewSession(t, nil)
//	if err := c.StartClient(ctx, "alice", "room-42", nil); err != nil {
//	   log.Fatalf("Start: %v", err)
//	}
//
// The session runs until [Session.Disconnect] is called. It connects in the
// background; use [Session.Status] to observe its progress.
//
// # Messages
//
// Each payload a session receives is wrapped as a [Message] with a sequence
// number and a timestamp, recorded in a bounded history, and added to a
// bounded delivery queue. When either is full, its oldest entry is dropped.
// Consume the queue with [Session.Receive], or step through it with
// [Session.Latest] and [Session.Next].
//
// A host may replay its history to a client with [Session.ReplayTo].
//
// # Reconnection
//
// When an endpoint or the host link fails, the session records the error and
// retries with exponential backoff (see [Backoff]). When the attempts of an
// episode are used up, the error wraps [ErrReconnectExhausted] until
// [Session.Retry] or [Session.Restart] is called.
//
// # Transports
//
// The memnet package provides an in-memory transport for tests, and the
// wsnet package provides a transport over WebSockets.
//
// # Metrics
//
// Sessions maintain a collection of metrics while running. Use the
// [Session.Metrics] method to obtain an [expvar.Map] containing the metrics
// exported by the session. By default, metrics are shared globally among all
// sessions; [Session.Detach] gives a session its own.
//
// The metrics currently exported by sessions include:
//
//   - messages_received: counter of payloads received from peers
//   - messages_sent: counter of payloads handed to a connection
//   - messages_relayed: counter of payloads forwarded by a host
//   - send_failures: counter of sends that failed
//   - queue_overflows: counter of undelivered messages dropped
//   - history_evictions: counter of history entries dropped
//   - replays_sent: counter of history entries replayed
//   - replay_target_absent: counter of replays to a peer not connected
//   - reconnect_attempts: counter of reconnect attempts scheduled
//   - reconnect_exhausted: counter of backoff episodes that gave up
//   - sessions_started: counter of sessions started
//   - connections_active: gauge of connected peers
package peerhub
