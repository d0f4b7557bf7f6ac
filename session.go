// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package peerhub

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"sync"
	"time"

	"github.com/creachadair/peerhub/codec"
	"github.com/creachadair/taskgroup"
	"go.uber.org/zap"
)

// State is the lifecycle state of a session.
type State byte

const (
	StateIdle       State = iota // no session has been started
	StateConnecting              // the endpoint is being opened
	StateOpen                    // the endpoint is usable, no peers are connected
	StateConnected               // at least one peer is connected
	StateClosed                  // the session was disconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state:%d", byte(s))
	}
}

// Status is a point-in-time summary of a session.
type Status struct {
	Role    Role
	LocalID string
	HostID  string
	State   State

	Open         bool // the endpoint is usable
	Connected    bool // at least one peer is connected
	Reconnecting bool // a retry is scheduled
	Exhausted    bool // the current backoff episode gave up
	FoundHost    bool // a client has reached its host at least once
	Attempts     int  // retry attempts in the current episode
	Err          error

	Peers    []string // connected peer IDs, in order
	Queued   int      // messages awaiting delivery
	Recorded int      // messages in the history
}

// Errored reports whether st carries an uncleared error.
func (st Status) Errored() bool { return st.Err != nil }

var errEndpointClosed = errors.New("endpoint closed")

// A Session orchestrates one peer of a star topology over a Transport.
//
// A host accepts connections from any number of clients and relays marked
// payloads among them. A client dials exactly one host and reconnects with
// exponential backoff when the link fails.
//
// Call Start to begin a session, and Disconnect to end it. A Session may be
// started again after Disconnect, and Restart recreates the current session
// from its retained Config. The methods of a Session are safe for concurrent
// use by multiple goroutines.
type Session struct {
	transport  Transport
	codec      codec.Codec
	recordSent bool
	log        *zap.Logger

	ctl sync.Mutex // serializes Start, Restart, and Disconnect

	μ sync.Mutex

	cfg       *Config // retained across Disconnect, nil if never started
	gen       uint64  // incremented when a session ends
	state     State
	ep        Endpoint
	attached  bool // ep has reported EventOpen since it last detached
	opening   bool // an Open is in progress
	dialing   Endpoint // the endpoint with a dial to the host in progress
	foundHost bool
	lastErr   error
	reg       Registry
	pipe      *Pipeline
	rc        reconnector
	m         *sessionMetrics
	slog      *zap.Logger // log, with session fields

	tasks  *taskgroup.Group
	ctx    context.Context // governs the goroutines of the current session
	cancel context.CancelFunc
}

// NewSession constructs an idle session that opens endpoints on t.
// A nil opts provides default settings (see Options).
func NewSession(t Transport, opts *Options) *Session {
	log := opts.logger().Named("peerhub.session")
	return &Session{
		transport:  t,
		codec:      opts.codec(),
		recordSent: opts.recordSent(),
		log:        log,
		pipe:       NewPipeline(opts.queueSize(), opts.historySize(), nil),
		rc:         reconnector{policy: opts.backoff()},
		m:          metrics,
		slog:       log,
	}
}

// Metrics returns the metrics map for the session. Unless Detach has been
// called, the map is shared by all sessions in the process. It is safe for
// the caller to add additional metrics to the map.
func (s *Session) Metrics() *expvar.Map {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.m.emap
}

// Detach gives s its own metrics map, separate from the shared one. The
// connections_active gauge for any connections s currently holds moves to the
// new map; counters start over. It returns s to permit chaining.
func (s *Session) Detach() *Session {
	s.μ.Lock()
	defer s.μ.Unlock()
	n := int64(s.reg.Len())
	s.m.connActive.Add(-n)
	s.m = newSessionMetrics()
	s.m.connActive.Add(n)
	return s
}

// StartHost starts a host session with the given ID.
func (s *Session) StartHost(ctx context.Context, hostID string, opts any) error {
	return s.Start(ctx, Config{LocalID: hostID, HostID: hostID, Role: RoleHost, TransportOptions: opts})
}

// StartClient starts a client session with the given ID that dials hostID.
func (s *Session) StartClient(ctx context.Context, localID, hostID string, opts any) error {
	return s.Start(ctx, Config{LocalID: localID, HostID: hostID, Role: RoleClient, TransportOptions: opts})
}

// Start begins a new session described by cfg, ending the current session if
// there is one. Start reports an error only if cfg is invalid: failure to
// open the endpoint is recorded as the session error and retried.
func (s *Session) Start(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Role == RoleHost {
		cfg.HostID = cfg.LocalID
	}
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.teardown(StateIdle)
	s.start(ctx, cfg)
	return nil
}

// Restart ends the current session and starts a new one with the same
// Config. It reports ErrNotStarted if no session was ever started.
func (s *Session) Restart(ctx context.Context) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.μ.Lock()
	cfg := s.cfg
	s.μ.Unlock()
	if cfg == nil {
		return ErrNotStarted
	}
	s.teardown(StateIdle)
	s.start(ctx, *cfg)
	return nil
}

// Disconnect ends the current session, closing its endpoint and all its
// connections, and discards its queued and recorded messages and its error.
// The Config is retained, so that Restart can recreate the session. Disconnect blocks until
// the goroutines of the session have exited. It is safe to call Disconnect
// when no session is active.
func (s *Session) Disconnect() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.teardown(StateClosed)
	return nil
}

// start initializes a fresh session for cfg. The caller must hold s.ctl, and
// the previous session must have been torn down.
func (s *Session) start(ctx context.Context, cfg Config) {
	s.μ.Lock()
	s.cfg = &cfg
	s.state = StateConnecting
	s.attached, s.opening, s.foundHost = false, false, false
	s.dialing = nil
	s.lastErr = nil
	s.pipe.Reset()
	s.rc.reset()
	s.tasks = taskgroup.New(nil)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.slog = s.log.With(
		zap.Stringer("role", cfg.Role),
		zap.String("local", cfg.LocalID),
		zap.String("host", cfg.HostID),
	)
	s.m.started.Add(1)
	s.opening = true
	gen := s.gen
	s.slog.Info("session starting")
	s.μ.Unlock()

	s.open(ctx, gen)
}

// teardown ends the current session, if any, and leaves s in state final.
// The caller must hold s.ctl.
func (s *Session) teardown(final State) {
	s.μ.Lock()
	if s.tasks == nil {
		if s.cfg != nil {
			s.state = final
		}
		s.μ.Unlock()
		return
	}
	s.gen++
	s.rc.reset()
	ep := s.ep
	s.ep = nil
	snap := s.reg.Clear()
	s.m.connActive.Add(-int64(snap.Len()))
	tasks, cancel := s.tasks, s.cancel
	s.tasks, s.cancel = nil, nil
	s.pipe.Reset()
	s.state = final
	s.lastErr = nil
	s.attached, s.opening = false, false
	s.dialing = nil
	log := s.slog
	s.μ.Unlock()

	cancel()
	if ep != nil {
		ep.Destroy()
	}
	for _, rec := range snap.recs {
		rec.Conn.Close()
	}
	tasks.Wait()
	log.Info("session closed", zap.Stringer("state", final))
}

// open opens a new endpoint for generation gen. The caller must have set
// s.opening.
func (s *Session) open(ctx context.Context, gen uint64) {
	s.μ.Lock()
	if s.gen != gen {
		s.μ.Unlock()
		return
	}
	cfg := *s.cfg
	s.μ.Unlock()

	ep, err := s.transport.Open(ctx, cfg.LocalID, cfg.TransportOptions)

	s.μ.Lock()
	if s.gen != gen {
		s.μ.Unlock()
		if ep != nil {
			ep.Destroy()
		}
		return
	}
	defer s.μ.Unlock()
	s.opening = false
	if err != nil {
		s.failLocked(&TransportError{Op: "open", Err: err})
		return
	}
	s.ep = ep
	s.slog.Debug("endpoint created")
	done := s.ctx.Done()
	s.tasks.Go(func() error {
		s.runEvents(gen, ep, done)
		return nil
	})
}

// runEvents dispatches the events of ep until it is destroyed or the session
// for gen ends.
func (s *Session) runEvents(gen uint64, ep Endpoint, done <-chan struct{}) {
	for {
		select {
		case ev, ok := <-ep.Events():
			if !ok {
				return
			}
			s.handleEvent(gen, ep, ev)
		case <-done:
			return
		}
	}
}

func (s *Session) handleEvent(gen uint64, ep Endpoint, ev Event) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.gen != gen || s.ep != ep {
		if ev.Conn != nil {
			ev.Conn.Close()
		}
		return
	}
	s.slog.Debug("endpoint event", zap.Stringer("event", ev))

	switch ev.Kind {
	case EventOpen:
		s.attached = true
		s.rc.reset()
		if s.state == StateConnecting {
			s.state = StateOpen
		}
		s.settleLocked()
		s.slog.Info("endpoint open")
		if s.cfg.Role == RoleClient {
			s.dialHostLocked()
		}

	case EventConnection:
		if s.cfg.Role != RoleHost {
			s.slog.Warn("rejected inbound connection", zap.String("peer", ev.Conn.Peer()))
			ev.Conn.Close()
			return
		}
		s.attachLocked(ev.Conn)

	case EventDisconnected:
		s.attached = false
		err := ev.Err
		if err == nil {
			err = errors.New("lost network attachment")
		}
		s.failLocked(&TransportError{Op: "disconnected", Err: err})

	case EventClose:
		// The endpoint is no longer usable; the next attempt opens a new one.
		s.attached = false
		s.ep = nil
		s.state = StateConnecting
		s.tasks.Go(func() error { ep.Destroy(); return nil })
		s.failLocked(&TransportError{Op: "close", Err: errEndpointClosed})

	case EventError:
		s.failLocked(&TransportError{Op: "error", Err: ev.Err})
	}
}

// failLocked records err as the session error and schedules a reconnect.
func (s *Session) failLocked(err error) {
	s.lastErr = err
	s.slog.Warn("session error", zap.Error(err))
	s.scheduleLocked()
}

func (s *Session) scheduleLocked() {
	gen := s.gen
	delay, ok := s.rc.schedule(func(tok uint64) { s.fire(gen, tok) })
	if !ok {
		s.lastErr = fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, s.rc.attempts, s.lastErr)
		s.m.exhausted.Add(1)
		s.slog.Error("giving up on reconnect", zap.Int("attempts", s.rc.attempts), zap.Error(s.lastErr))
		return
	}
	s.m.reconnects.Add(1)
	s.slog.Info("reconnect scheduled", zap.Int("attempt", s.rc.attempts), zap.Duration("delay", delay))
}

// fire is called by the reconnect timer with the token it was scheduled with.
func (s *Session) fire(gen, tok uint64) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.gen != gen || !s.rc.current(tok) {
		return
	}
	s.slog.Debug("reconnect attempt", zap.Int("attempt", s.rc.attempts))
	s.attemptLocked()
}

// attemptLocked makes one reconnect attempt: it restores the endpoint, or
// opens a new one if it is unusable, and redials the host if the session is
// a client without a live host link. If nothing needs repair, the episode
// ends.
func (s *Session) attemptLocked() {
	if s.ep != nil && s.ep.Destroyed() {
		s.ep = nil
		s.attached = false
	}
	switch {
	case s.ep == nil:
		if !s.opening {
			s.opening = true
			gen, ctx := s.gen, s.ctx
			s.tasks.Go(func() error {
				s.open(ctx, gen)
				return nil
			})
		}
	case !s.attached:
		ep, gen := s.ep, s.gen
		s.tasks.Go(func() error {
			if err := ep.Reconnect(); err != nil {
				s.endpointFailed(gen, ep, &TransportError{Op: "reconnect", Err: err})
			}
			return nil
		})
	case s.cfg.Role == RoleClient && !s.hostLinkedLocked():
		s.dialHostLocked()
	default:
		s.rc.reset()
		s.slog.Info("endpoint healthy, reconnect ended")
	}
}

// hostLinkedLocked reports whether a client has a live link to its host.
func (s *Session) hostLinkedLocked() bool {
	_, ok := s.reg.Get(s.cfg.HostID)
	return ok
}

// endpointFailed records an asynchronous endpoint failure for generation gen.
func (s *Session) endpointFailed(gen uint64, ep Endpoint, err error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.gen != gen || s.ep != ep {
		return
	}
	s.failLocked(err)
}

// dialHostLocked starts a dial to the host unless one is in progress or the
// host link is already live.
func (s *Session) dialHostLocked() {
	host := s.cfg.HostID
	if s.ep == nil || s.dialing == s.ep || s.hostLinkedLocked() {
		return
	}
	s.dialing = s.ep
	ep, gen, ctx := s.ep, s.gen, s.ctx
	s.tasks.Go(func() error {
		conn, err := ep.Dial(ctx, host)

		s.μ.Lock()
		defer s.μ.Unlock()
		if s.gen == gen && s.dialing == ep {
			s.dialing = nil
		}
		if s.gen != gen || s.ep != ep {
			if conn != nil {
				conn.Close()
			}
			return nil
		}
		if err != nil {
			s.failLocked(&ConnError{Peer: host, Op: "dial", Err: err})
			return nil
		}
		s.foundHost = true
		s.rc.reset()
		s.attachLocked(conn)
		return nil
	})
}

// attachLocked registers conn and starts its receive loop. A connection from
// a peer that is already registered replaces the previous one.
func (s *Session) attachLocked(conn Conn) {
	peer := conn.Peer()
	if old, ok := s.reg.Get(peer); ok && old.Conn == conn {
		return
	}
	old, replaced := s.reg.Put(ConnRecord{Peer: peer, Conn: conn, Attached: true})
	if replaced {
		old.Conn.Close()
		s.slog.Info("peer reconnected", zap.String("peer", peer))
	} else {
		s.m.connActive.Add(1)
		s.slog.Info("peer connected", zap.String("peer", peer))
	}
	s.state = StateConnected

	gen := s.gen
	s.tasks.Go(func() error {
		for {
			data, err := conn.Recv()
			if err != nil {
				s.detach(gen, conn, err)
				return nil
			}
			s.receive(gen, peer, data)
		}
	})
}

// detach removes conn from the registry after its receive loop ends.
func (s *Session) detach(gen uint64, conn Conn, err error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.gen != gen {
		return
	}
	peer := conn.Peer()
	if !s.reg.Remove(peer, conn) {
		return // replaced or already removed
	}
	conn.Close()
	s.m.connActive.Add(-1)
	s.settleLocked()
	s.slog.Info("peer disconnected", zap.String("peer", peer), zap.Error(err))

	if s.cfg.Role == RoleClient && peer == s.cfg.HostID {
		s.failLocked(&ConnError{Peer: peer, Op: "recv", Err: err})
	}
}

// settleLocked moves between the Open and Connected states to match the
// registry.
func (s *Session) settleLocked() {
	switch s.state {
	case StateOpen, StateConnected:
		if s.reg.Len() > 0 {
			s.state = StateConnected
		} else {
			s.state = StateOpen
		}
	}
}

// receive handles one payload from peer.
func (s *Session) receive(gen uint64, from string, data []byte) {
	s.μ.Lock()
	if s.gen != gen {
		s.μ.Unlock()
		return
	}
	s.m.msgRecv.Add(1)
	msg := s.pipe.Wrap(from, data)
	s.recordLocked(msg)
	s.enqueueLocked(msg)

	var snap *Snapshot
	relay := shouldRelay(s.cfg.Role, s.codec, data)
	if relay {
		snap = s.reg.Snapshot()
	}
	log, m := s.slog, s.m
	s.μ.Unlock()

	if relay {
		n := forward(log, m, snap, data, from)
		m.msgRelayed.Add(int64(n))
		log.Debug("relayed", zap.String("from", from), zap.Uint64("seq", msg.Seq), zap.Int("peers", n))
	}
}

func (s *Session) recordLocked(msg Message) {
	if s.pipe.Record(msg) {
		s.m.histEvicted.Add(1)
	}
}

func (s *Session) enqueueLocked(msg Message) {
	if dropped, ok := s.pipe.Enqueue(msg); ok {
		s.m.queueOverflow.Add(1)
		s.slog.Warn("dropped undelivered message", zap.Uint64("seq", dropped.Seq), zap.Error(ErrQueueOverflow))
	}
}

// Retry abandons the current backoff episode and makes a reconnect attempt
// immediately. It clears the session error. Retry reports ErrNotStarted if
// no session is active.
func (s *Session) Retry() error {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.tasks == nil {
		return ErrNotStarted
	}
	s.rc.reset()
	s.lastErr = nil
	s.slog.Info("manual retry")
	s.attemptLocked()
	return nil
}

// snapshot returns the registry snapshot and logger of the active session.
func (s *Session) snapshot() (*Snapshot, *zap.Logger, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.tasks == nil {
		return nil, nil, ErrNotStarted
	}
	return s.reg.Snapshot(), s.slog, nil
}

// noteSent records an outbound payload if the session records sends.
func (s *Session) noteSent(data []byte) {
	if !s.recordSent {
		return
	}
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.tasks != nil {
		s.recordLocked(s.pipe.Wrap("", data))
	}
}

// Record wraps a locally originated payload and adds it to the history, so
// that it is included in later replays. It does not send data.
func (s *Session) Record(data []byte) (Message, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.tasks == nil {
		return Message{}, ErrNotStarted
	}
	msg := s.pipe.Wrap("", data)
	s.recordLocked(msg)
	return msg, nil
}

// SendAll sends data to every connected peer, and reports the number of
// peers it was delivered to. Failures to individual peers are logged and do
// not stop the rest.
func (s *Session) SendAll(data []byte) (int, error) { return s.SendAllExcept("", data) }

// SendAllExcept is as SendAll, but skips the peer with the given ID.
func (s *Session) SendAllExcept(peer string, data []byte) (int, error) {
	snap, log, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	s.noteSent(data)
	return forward(log, s.metrics(), snap, data, peer), nil
}

// SendTo sends data to the connected peer with the given ID. It reports an
// error wrapping ErrNoSuchPeer if that peer is not connected.
func (s *Session) SendTo(peer string, data []byte) error {
	snap, _, err := s.snapshot()
	if err != nil {
		return err
	}
	rec, ok := snap.Get(peer)
	if !ok {
		return fmt.Errorf("send to %q: %w", peer, ErrNoSuchPeer)
	}
	s.noteSent(data)
	m := s.metrics()
	if err := rec.Conn.Send(data); err != nil {
		m.sendFailed.Add(1)
		return &ConnError{Peer: peer, Op: "send", Err: err}
	}
	m.msgSent.Add(1)
	return nil
}

// SendHost sends data toward the host. For a client this is the host link;
// a host has no host, so it sends to all its clients.
func (s *Session) SendHost(data []byte) (int, error) { return s.SendAll(data) }

// Broadcast sends data to every other peer of the star. A client marks the
// payload for relay and sends it to its host, which forwards it to the other
// clients. A host sends it to all clients directly.
func (s *Session) Broadcast(data []byte) (int, error) {
	if s.Role() == RoleClient {
		marked, err := s.codec.MarkRelay(data)
		if err != nil {
			return 0, fmt.Errorf("broadcast: %w", err)
		}
		data = marked
	}
	return s.SendAll(data)
}

func (s *Session) metrics() *sessionMetrics {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.m
}

// Receive removes and returns the next delivered message, blocking until one
// is available or ctx ends.
func (s *Session) Receive(ctx context.Context) (Message, error) {
	for {
		s.μ.Lock()
		msg, ok := s.pipe.Advance()
		ready := s.pipe.Ready()
		s.μ.Unlock()
		if ok {
			return msg, nil
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Latest reports the message at the head of the delivery queue without
// consuming it.
func (s *Session) Latest() (Message, bool) {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.pipe.Head()
}

// Next acknowledges the message at the head of the delivery queue, and
// reports the message that follows it, if any.
func (s *Session) Next() (Message, bool) {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.pipe.Advance()
	return s.pipe.Head()
}

// Pending returns the messages awaiting delivery, oldest first.
func (s *Session) Pending() []Message {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.pipe.Pending()
}

// ClearQueue discards all messages awaiting delivery. The history is not
// affected.
func (s *Session) ClearQueue() {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.pipe.ClearQueue()
}

// History returns the recorded messages, oldest first.
func (s *Session) History() []Message {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.pipe.History()
}

// HistorySince returns the recorded messages wrapped at or after t.
func (s *Session) HistorySince(t time.Time) []Message {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.pipe.HistorySince(t)
}

// ReplayTo sends the recorded messages selected by opts to the connected peer
// with the given ID, oldest first, and reports how many were sent. If the
// peer is not connected, nothing is sent and ReplayTo reports an error
// wrapping ErrReplayTargetAbsent.
func (s *Session) ReplayTo(peer string, opts ReplayOptions) (int, error) {
	s.μ.Lock()
	if s.tasks == nil {
		s.μ.Unlock()
		return 0, ErrNotStarted
	}
	rec, ok := s.reg.Get(peer)
	if !ok {
		s.m.replayAbsent.Add(1)
		s.slog.Warn("replay target not connected", zap.String("peer", peer))
		s.μ.Unlock()
		return 0, fmt.Errorf("replay to %q: %w", peer, ErrReplayTargetAbsent)
	}
	msgs := s.pipe.SelectReplay(opts)
	log, m := s.slog, s.m
	s.μ.Unlock()

	var nsent int
	for _, msg := range msgs {
		if err := rec.Conn.Send(msg.Data); err != nil {
			m.sendFailed.Add(1)
			log.Debug("replay send failed", zap.String("peer", peer), zap.Error(err))
			return nsent, &ConnError{Peer: peer, Op: "replay", Err: err}
		}
		nsent++
	}
	m.msgSent.Add(int64(nsent))
	m.replaySent.Add(int64(nsent))
	log.Info("replayed history", zap.String("peer", peer), zap.Int("count", nsent))
	return nsent, nil
}

// Status reports a summary of the current state of s.
func (s *Session) Status() Status {
	s.μ.Lock()
	defer s.μ.Unlock()
	st := Status{
		State:        s.state,
		Open:         s.attached && (s.state == StateOpen || s.state == StateConnected),
		Connected:    s.reg.Len() > 0,
		Reconnecting: s.rc.reconnecting,
		Exhausted:    s.rc.exhausted,
		FoundHost:    s.foundHost,
		Attempts:     s.rc.attempts,
		Err:          s.lastErr,
		Peers:        s.reg.Snapshot().Peers(),
		Queued:       s.pipe.QueueLen(),
		Recorded:     s.pipe.HistoryLen(),
	}
	if s.cfg != nil {
		st.Role, st.LocalID, st.HostID = s.cfg.Role, s.cfg.LocalID, s.cfg.HostID
	}
	return st
}

// State reports the lifecycle state of s.
func (s *Session) State() State {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.state
}

// Role reports the role of the current or most recent session, or 0 if no
// session was ever started.
func (s *Session) Role() Role {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.cfg == nil {
		return 0
	}
	return s.cfg.Role
}

// LocalID reports the ID of this peer in the current or most recent session.
func (s *Session) LocalID() string {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.cfg == nil {
		return ""
	}
	return s.cfg.LocalID
}

// HostID reports the ID of the host in the current or most recent session.
func (s *Session) HostID() string {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.cfg == nil {
		return ""
	}
	return s.cfg.HostID
}

// Peers returns the IDs of the connected peers, in order.
func (s *Session) Peers() []string { return s.Registry().Peers() }

// Registry returns the current snapshot of the connection registry.
func (s *Session) Registry() *Snapshot {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.reg.Snapshot()
}

// LastError reports the most recent session error, or nil.
func (s *Session) LastError() error {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.lastErr
}

// ClearError discards the session error.
func (s *Session) ClearError() {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.lastErr = nil
}
