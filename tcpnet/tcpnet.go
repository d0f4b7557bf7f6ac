// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package tcpnet provides an implementation of the [peerhub.Transport]
// interface over plain TCP connections.
//
// Payloads are carried in length-prefixed frames. A connection begins with a
// handshake: the dialing peer sends a hello frame carrying its ID, and the
// accepting peer answers with a hello frame carrying its own. The dialer
// checks that it reached the peer it meant to.
package tcpnet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/creachadair/peerhub"
	"github.com/creachadair/taskgroup"
	"go.uber.org/zap"
)

var (
	// ErrUnknownPeer is reported when dialing a peer whose address cannot be
	// resolved.
	ErrUnknownPeer = errors.New("tcpnet: unknown peer")

	// ErrWrongPeer is reported by Dial when the remote end of a connection
	// identifies itself as a different peer than the one dialed.
	ErrWrongPeer = errors.New("tcpnet: wrong peer")

	// ErrHandshake is reported when a connection does not begin with a
	// valid hello frame.
	ErrHandshake = errors.New("tcpnet: invalid handshake")
)

// DefaultHandshakeTimeout bounds the handshake of a connection when the
// Transport does not specify a timeout.
const DefaultHandshakeTimeout = 10 * time.Second

// Transport opens TCP endpoints. A zero Transport is ready for use and opens
// endpoints that only dial out, and resolve no peers.
type Transport struct {
	// If set, endpoints listen for peer connections at this address.
	Listen string

	// If set, Resolve maps a peer ID to its "host:port" address. It is
	// consulted after the Peers of the Options given to Open.
	Resolve func(peerID string) (string, error)

	// If set, used to dial outbound connections.
	Dialer *net.Dialer

	// The time allowed for the handshake of a new connection. If zero,
	// DefaultHandshakeTimeout is used.
	HandshakeTimeout time.Duration

	// If set, the transport logs to this logger.
	Logger *zap.Logger
}

// Options are per-session settings accepted by Open as the transport
// options of a session config. Open accepts Options, *Options, or nil.
type Options struct {
	// If set, overrides the Listen address of the Transport.
	Listen string

	// Peers maps peer IDs to "host:port" addresses.
	Peers map[string]string
}

func (t *Transport) dialer() *net.Dialer {
	if t.Dialer == nil {
		return new(net.Dialer)
	}
	return t.Dialer
}

func (t *Transport) handshakeTimeout() time.Duration {
	if t.HandshakeTimeout <= 0 {
		return DefaultHandshakeTimeout
	}
	return t.HandshakeTimeout
}

// Open implements the [peerhub.Transport] interface. If the endpoint listens,
// Open binds its address before returning.
func (t *Transport) Open(ctx context.Context, localID string, opts any) (peerhub.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var o Options
	switch v := opts.(type) {
	case nil:
	case Options:
		o = v
	case *Options:
		if v != nil {
			o = *v
		}
	default:
		return nil, fmt.Errorf("tcpnet: invalid options type %T", opts)
	}
	if o.Listen == "" {
		o.Listen = t.Listen
	}
	log := t.Logger
	if log == nil {
		log = zap.NewNop()
	}

	e := &Endpoint{
		t:      t,
		id:     localID,
		opts:   o,
		log:    log.Named("tcpnet").With(zap.String("local", localID)),
		events: make(chan peerhub.Event, 64),
		tasks:  taskgroup.New(nil),
		conns:  make(map[*Conn]struct{}),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.μ.Lock()
	err := e.listenLocked()
	e.μ.Unlock()
	if err != nil {
		e.cancel()
		return nil, err
	}
	e.emit(peerhub.Event{Kind: peerhub.EventOpen})
	return e, nil
}

// An Endpoint is an attachment of one peer to a TCP network. It implements
// the [peerhub.Endpoint] interface.
type Endpoint struct {
	t    *Transport
	id   string
	opts Options
	log  *zap.Logger

	sendμ  sync.RWMutex
	events chan peerhub.Event
	ctx    context.Context // ends when the endpoint is destroyed
	cancel context.CancelFunc
	once   sync.Once
	tasks  *taskgroup.Group

	μ         sync.Mutex
	lst       net.Listener
	addr      string // the bound listen address, once known
	attached  bool
	destroyed bool
	conns     map[*Conn]struct{}
}

// listenLocked starts the listener of e, if it listens, and marks it
// attached. The caller must hold e.μ.
func (e *Endpoint) listenLocked() error {
	if e.opts.Listen != "" {
		addr := e.addr
		if addr == "" {
			addr = e.opts.Listen
		}
		lst, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("tcpnet: listen: %w", err)
		}
		e.addr = lst.Addr().String()
		e.lst = lst
		e.tasks.Go(func() error { e.acceptLoop(lst); return nil })
		e.log.Info("listening", zap.String("addr", e.addr))
	}
	e.attached = true
	return nil
}

// acceptLoop accepts connections from lst until it is closed.
func (e *Endpoint) acceptLoop(lst net.Listener) {
	for {
		nc, err := lst.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				e.log.Warn("accept failed", zap.Error(err))
				e.emit(peerhub.Event{Kind: peerhub.EventError, Err: err})
			}
			return
		}
		e.tasks.Go(func() error { e.accept(nc); return nil })
	}
}

// accept completes the handshake of an inbound connection.
func (e *Endpoint) accept(nc net.Conn) {
	stop := context.AfterFunc(e.ctx, func() { nc.Close() })
	defer stop()

	r := bufio.NewReader(nc)
	nc.SetDeadline(time.Now().Add(e.t.handshakeTimeout()))
	var hello frame
	if _, err := hello.ReadFrom(r); err != nil || hello.Type != frameHello || len(hello.Payload) == 0 {
		e.log.Debug("handshake failed", zap.Stringer("remote", nc.RemoteAddr()), zap.Error(err))
		nc.Close()
		return
	}

	// The reply is written under the write lock after the connection is
	// reported, so no payload precedes it.
	peer := string(hello.Payload)
	c := newConn(peer, nc, r, e)
	c.wμ.Lock()
	if !e.track(c) || !e.emit(peerhub.Event{Kind: peerhub.EventConnection, Conn: c}) {
		c.wμ.Unlock()
		c.Close()
		return
	}
	reply := frame{Type: frameHello, Payload: []byte(e.id)}
	_, err := reply.WriteTo(c.w)
	if err == nil {
		err = c.w.Flush()
	}
	nc.SetDeadline(time.Time{})
	c.wμ.Unlock()
	if err != nil {
		e.log.Debug("handshake reply failed", zap.String("peer", peer), zap.Error(err))
		c.Close()
		return
	}
	e.log.Debug("accepted", zap.String("peer", peer))
}

// Addr reports the address e listens on, or "" if it does not listen.
func (e *Endpoint) Addr() string {
	e.μ.Lock()
	defer e.μ.Unlock()
	return e.addr
}

// Events implements a method of the [peerhub.Endpoint] interface.
func (e *Endpoint) Events() <-chan peerhub.Event { return e.events }

func (e *Endpoint) emit(ev peerhub.Event) bool {
	e.sendμ.RLock()
	defer e.sendμ.RUnlock()
	done := e.ctx.Done()
	select {
	case <-done:
		return false
	default:
	}
	select {
	case e.events <- ev:
		return true
	case <-done:
		return false
	}
}

func (e *Endpoint) resolve(peer string) (string, error) {
	if addr, ok := e.opts.Peers[peer]; ok {
		return addr, nil
	}
	if e.t.Resolve != nil {
		return e.t.Resolve(peer)
	}
	return "", fmt.Errorf("resolve %q: %w", peer, ErrUnknownPeer)
}

// Dial implements a method of the [peerhub.Endpoint] interface.
func (e *Endpoint) Dial(ctx context.Context, remoteID string) (peerhub.Conn, error) {
	if e.Destroyed() {
		return nil, net.ErrClosed
	}
	addr, err := e.resolve(remoteID)
	if err != nil {
		return nil, err
	}
	nc, err := e.t.dialer().DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcpnet: dial %q: %w", remoteID, err)
	}
	r, err := e.handshake(ctx, nc, remoteID)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("tcpnet: dial %q: %w", remoteID, err)
	}
	c := newConn(remoteID, nc, r, e)
	if !e.track(c) {
		c.Close()
		return nil, net.ErrClosed
	}
	return c, nil
}

// handshake performs the dialing side of the handshake on nc, and returns
// the reader to use for the rest of the connection.
func (e *Endpoint) handshake(ctx context.Context, nc net.Conn, remoteID string) (*bufio.Reader, error) {
	stop := context.AfterFunc(ctx, func() { nc.SetDeadline(time.Now()) })
	defer stop()
	nc.SetDeadline(time.Now().Add(e.t.handshakeTimeout()))

	hello := frame{Type: frameHello, Payload: []byte(e.id)}
	if _, err := hello.WriteTo(nc); err != nil {
		return nil, err
	}
	r := bufio.NewReader(nc)
	var reply frame
	if _, err := reply.ReadFrom(r); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	} else if reply.Type != frameHello {
		return nil, fmt.Errorf("%w: got %v frame", ErrHandshake, reply.Type)
	} else if got := string(reply.Payload); got != remoteID {
		return nil, fmt.Errorf("%w: reached %q", ErrWrongPeer, got)
	}
	if !stop() {
		return nil, ctx.Err()
	}
	nc.SetDeadline(time.Time{})
	return r, nil
}

// Reconnect implements a method of the [peerhub.Endpoint] interface. If e is
// attached, Reconnect does nothing. Otherwise it listens again at the address
// it had before.
func (e *Endpoint) Reconnect() error {
	e.μ.Lock()
	if e.destroyed {
		e.μ.Unlock()
		return net.ErrClosed
	} else if e.attached {
		e.μ.Unlock()
		return nil
	}
	err := e.listenLocked()
	e.μ.Unlock()
	if err != nil {
		return err
	}
	e.emit(peerhub.Event{Kind: peerhub.EventOpen})
	return nil
}

// Disconnect implements a method of the [peerhub.Endpoint] interface. It
// closes the listener; established connections are not affected.
func (e *Endpoint) Disconnect() error {
	e.μ.Lock()
	if !e.attached || e.destroyed {
		e.μ.Unlock()
		return nil
	}
	e.attached = false
	lst := e.lst
	e.lst = nil
	e.μ.Unlock()

	var err error
	if lst != nil {
		err = lst.Close()
	}
	e.emit(peerhub.Event{Kind: peerhub.EventDisconnected})
	return err
}

// Destroy implements a method of the [peerhub.Endpoint] interface.
func (e *Endpoint) Destroy() error {
	var err error
	e.once.Do(func() {
		e.μ.Lock()
		e.destroyed = true
		e.attached = false
		lst := e.lst
		e.lst = nil
		conns := make([]*Conn, 0, len(e.conns))
		for c := range e.conns {
			conns = append(conns, c)
		}
		clear(e.conns)
		e.μ.Unlock()

		e.cancel()
		if lst != nil {
			err = lst.Close()
		}
		for _, c := range conns {
			c.Close()
		}
		e.tasks.Wait()
		e.sendμ.Lock()
		close(e.events)
		e.sendμ.Unlock()
		e.log.Debug("endpoint destroyed")
	})
	return err
}

// Destroyed implements a method of the [peerhub.Endpoint] interface.
func (e *Endpoint) Destroyed() bool {
	e.μ.Lock()
	defer e.μ.Unlock()
	return e.destroyed
}

func (e *Endpoint) track(c *Conn) bool {
	e.μ.Lock()
	defer e.μ.Unlock()
	if e.destroyed {
		return false
	}
	e.conns[c] = struct{}{}
	return true
}

func (e *Endpoint) untrack(c *Conn) {
	e.μ.Lock()
	defer e.μ.Unlock()
	delete(e.conns, c)
}

// A Conn is a TCP connection to one peer. It implements the [peerhub.Conn]
// interface.
type Conn struct {
	peer  string
	nc    net.Conn
	r     *bufio.Reader
	owner *Endpoint

	wμ     sync.Mutex // serializes writes
	w      *bufio.Writer
	once   sync.Once
	closed chan struct{}
}

func newConn(peer string, nc net.Conn, r *bufio.Reader, owner *Endpoint) *Conn {
	return &Conn{
		peer:   peer,
		nc:     nc,
		r:      r,
		owner:  owner,
		w:      bufio.NewWriter(nc),
		closed: make(chan struct{}),
	}
}

// Peer implements a method of the [peerhub.Conn] interface.
func (c *Conn) Peer() string { return c.peer }

// Send implements a method of the [peerhub.Conn] interface.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.wμ.Lock()
	defer c.wμ.Unlock()
	f := frame{Type: frameData, Payload: data}
	if _, err := f.WriteTo(c.w); err != nil {
		return err
	}
	return c.w.Flush()
}

// Recv implements a method of the [peerhub.Conn] interface. A close by
// either side is reported as [net.ErrClosed].
func (c *Conn) Recv() ([]byte, error) {
	for {
		var f frame
		if _, err := f.ReadFrom(c.r); err != nil {
			select {
			case <-c.closed:
				return nil, net.ErrClosed
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil, net.ErrClosed
			}
			c.owner.log.Debug("read failed", zap.String("peer", c.peer), zap.Error(err))
			return nil, err
		}
		switch f.Type {
		case frameData:
			return f.Payload, nil
		case frameBye:
			return nil, net.ErrClosed
		default:
			c.owner.log.Debug("ignored frame", zap.String("peer", c.peer), zap.Stringer("type", f.Type))
		}
	}
}

// Close implements a method of the [peerhub.Conn] interface.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.nc.SetWriteDeadline(time.Now().Add(time.Second))
		c.wμ.Lock()
		bye := frame{Type: frameBye}
		if _, err := bye.WriteTo(c.w); err == nil {
			c.w.Flush()
		}
		c.wμ.Unlock()
		err = c.nc.Close()
		c.owner.untrack(c)
	})
	return err
}
