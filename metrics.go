// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package peerhub

import "expvar"

// sessionMetrics record session activity counters.
type sessionMetrics struct {
	msgRecv       expvar.Int // payloads received from peers
	msgSent       expvar.Int // payloads handed to a connection
	msgRelayed    expvar.Int // payloads forwarded by a host relay
	sendFailed    expvar.Int // sends that failed softly
	queueOverflow expvar.Int // queued messages dropped for space
	histEvicted   expvar.Int // history entries evicted for space
	replaySent    expvar.Int // history entries replayed to a peer
	replayAbsent  expvar.Int // replays whose target was not connected
	reconnects    expvar.Int // reconnect attempts scheduled
	exhausted     expvar.Int // backoff episodes that gave up
	started       expvar.Int // sessions started
	connActive    expvar.Int // gauge

	emap *expvar.Map
}

var metrics = newSessionMetrics()

func newSessionMetrics() *sessionMetrics {
	sm := &sessionMetrics{emap: new(expvar.Map)}
	sm.emap.Set("messages_received", &sm.msgRecv)
	sm.emap.Set("messages_sent", &sm.msgSent)
	sm.emap.Set("messages_relayed", &sm.msgRelayed)
	sm.emap.Set("send_failures", &sm.sendFailed)
	sm.emap.Set("queue_overflows", &sm.queueOverflow)
	sm.emap.Set("history_evictions", &sm.histEvicted)
	sm.emap.Set("replays_sent", &sm.replaySent)
	sm.emap.Set("replay_target_absent", &sm.replayAbsent)
	sm.emap.Set("reconnect_attempts", &sm.reconnects)
	sm.emap.Set("reconnect_exhausted", &sm.exhausted)
	sm.emap.Set("sessions_started", &sm.started)
	sm.emap.Set("connections_active", &sm.connActive)
	return sm
}
