// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package wsnet provides an implementation of the [peerhub.Transport]
// interface over WebSocket connections.
//
// An endpoint that listens accepts connections at a single path of its HTTP
// server. The dialing peer identifies itself with the "peer" query parameter,
// for example:
//
//	ws://host.example:8080/peer?peer=alice
//
// Each payload is carried in one binary WebSocket message.
package wsnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/creachadair/peerhub"
	"github.com/creachadair/taskgroup"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultPath is the HTTP path at which endpoints accept peer connections
// when the Transport does not specify one.
const DefaultPath = "/peer"

// ErrUnknownPeer is reported when dialing a peer whose address cannot be
// resolved.
var ErrUnknownPeer = errors.New("wsnet: unknown peer")

// PeerParam is the query parameter that carries the ID of the dialing peer.
const PeerParam = "peer"

// Transport opens WebSocket endpoints. A zero Transport is ready for use and
// opens endpoints that only dial out, and resolve no peers.
type Transport struct {
	// If set, endpoints listen for peer connections at this address.
	Listen string

	// The HTTP path of the peer handler. If empty, DefaultPath is used.
	Path string

	// If set, Resolve maps a peer ID to its WebSocket URL. It is consulted
	// after the Peers of the Options given to Open.
	Resolve func(peerID string) (string, error)

	// If set, requests to any path other than Path are served by Handler.
	Handler http.Handler

	// Dialer and Upgrader, if set, are used for outbound and inbound
	// connections; otherwise the websocket package defaults are used.
	Dialer   *websocket.Dialer
	Upgrader *websocket.Upgrader

	// If set, the transport logs to this logger.
	Logger *zap.Logger
}

// Options are per-session settings accepted by Open as the transport
// options of a session config. Open accepts Options, *Options, or nil.
type Options struct {
	// If set, overrides the Listen address of the Transport.
	Listen string

	// Peers maps peer IDs to WebSocket URLs.
	Peers map[string]string
}

func (t *Transport) path() string {
	if t.Path == "" {
		return DefaultPath
	}
	return t.Path
}

func (t *Transport) dialer() *websocket.Dialer {
	if t.Dialer == nil {
		return websocket.DefaultDialer
	}
	return t.Dialer
}

func (t *Transport) upgrader() *websocket.Upgrader {
	if t.Upgrader == nil {
		return &websocket.Upgrader{}
	}
	return t.Upgrader
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
		return nil, fmt.Errorf("wsnet: invalid options type %T", opts)
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
		log:    log.Named("wsnet").With(zap.String("local", localID)),
		events: make(chan peerhub.Event, 64),
		done:   make(chan struct{}),
		tasks:  taskgroup.New(nil),
		conns:  make(map[*Conn]struct{}),
	}
	e.mux = http.NewServeMux()
	e.mux.HandleFunc(t.path(), e.accept)
	if t.Handler != nil {
		e.mux.Handle("/", t.Handler)
	}

	e.μ.Lock()
	err := e.listenLocked()
	e.μ.Unlock()
	if err != nil {
		return nil, err
	}
	e.emit(peerhub.Event{Kind: peerhub.EventOpen})
	return e, nil
}

// An Endpoint is an attachment of one peer to a WebSocket network. It
// implements the [peerhub.Endpoint] interface.
type Endpoint struct {
	t    *Transport
	id   string
	opts Options
	log  *zap.Logger
	mux  *http.ServeMux

	sendμ  sync.RWMutex
	events chan peerhub.Event
	done   chan struct{}
	once   sync.Once
	tasks  *taskgroup.Group

	μ         sync.Mutex
	srv       *http.Server
	addr      string // the bound listen address, once known
	attached  bool
	destroyed bool
	conns     map[*Conn]struct{}
}

// listenLocked starts the HTTP server of e, if it listens, and marks it
// attached. The caller must hold e.μ.
func (e *Endpoint) listenLocked() error {
	if e.opts.Listen != "" {
		addr := e.addr
		if addr == "" {
			addr = e.opts.Listen
		}
		lst, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("wsnet: listen: %w", err)
		}
		e.addr = lst.Addr().String()
		srv := &http.Server{Handler: e.mux, ReadHeaderTimeout: 10 * time.Second}
		e.srv = srv
		e.tasks.Go(func() error {
			if err := srv.Serve(lst); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.log.Warn("serve failed", zap.Error(err))
				e.emit(peerhub.Event{Kind: peerhub.EventError, Err: err})
			}
			return nil
		})
		e.log.Info("listening", zap.String("addr", e.addr))
	}
	e.attached = true
	return nil
}

// Addr reports the address e listens on, or "" if it does not listen.
func (e *Endpoint) Addr() string {
	e.μ.Lock()
	defer e.μ.Unlock()
	return e.addr
}

// URL reports the WebSocket URL at which e accepts peer connections, or ""
// if it does not listen.
func (e *Endpoint) URL() string {
	addr := e.Addr()
	if addr == "" {
		return ""
	}
	return (&url.URL{Scheme: "ws", Host: addr, Path: e.t.path()}).String()
}

// Events implements a method of the [peerhub.Endpoint] interface.
func (e *Endpoint) Events() <-chan peerhub.Event { return e.events }

func (e *Endpoint) emit(ev peerhub.Event) bool {
	e.sendμ.RLock()
	defer e.sendμ.RUnlock()
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.events <- ev:
		return true
	case <-e.done:
		return false
	}
}

// accept handles an inbound peer connection.
func (e *Endpoint) accept(w http.ResponseWriter, r *http.Request) {
	peer := r.URL.Query().Get(PeerParam)
	if peer == "" {
		http.Error(w, "missing peer ID", http.StatusBadRequest)
		return
	}
	ws, err := e.t.upgrader().Upgrade(w, r, nil)
	if err != nil {
		e.log.Debug("upgrade failed", zap.String("peer", peer), zap.Error(err))
		return // the upgrader has already replied
	}
	c := newConn(peer, ws, e)
	if !e.track(c) || !e.emit(peerhub.Event{Kind: peerhub.EventConnection, Conn: c}) {
		c.Close()
		return
	}
	e.log.Debug("accepted", zap.String("peer", peer))
}

func (e *Endpoint) resolve(peer string) (string, error) {
	if u, ok := e.opts.Peers[peer]; ok {
		return u, nil
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
	target, err := e.resolve(remoteID)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("wsnet: invalid URL for %q: %w", remoteID, err)
	}
	q := u.Query()
	q.Set(PeerParam, e.id)
	u.RawQuery = q.Encode()

	ws, rsp, err := e.t.dialer().DialContext(ctx, u.String(), nil)
	if rsp != nil && rsp.Body != nil {
		rsp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("wsnet: dial %q: %w", remoteID, err)
	}
	c := newConn(remoteID, ws, e)
	if !e.track(c) {
		c.Close()
		return nil, net.ErrClosed
	}
	return c, nil
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
// stops the listener; established connections are not affected.
func (e *Endpoint) Disconnect() error {
	e.μ.Lock()
	if !e.attached || e.destroyed {
		e.μ.Unlock()
		return nil
	}
	e.attached = false
	srv := e.srv
	e.srv = nil
	e.μ.Unlock()

	var err error
	if srv != nil {
		err = srv.Close()
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
		srv := e.srv
		e.srv = nil
		conns := make([]*Conn, 0, len(e.conns))
		for c := range e.conns {
			conns = append(conns, c)
		}
		clear(e.conns)
		e.μ.Unlock()

		close(e.done)
		if srv != nil {
			err = srv.Close()
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

// A Conn is a WebSocket connection to one peer. It implements the
// [peerhub.Conn] interface.
type Conn struct {
	peer  string
	ws    *websocket.Conn
	owner *Endpoint

	wμ     sync.Mutex // serializes writes
	once   sync.Once
	closed chan struct{}
}

func newConn(peer string, ws *websocket.Conn, owner *Endpoint) *Conn {
	return &Conn{peer: peer, ws: ws, owner: owner, closed: make(chan struct{})}
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
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Recv implements a method of the [peerhub.Conn] interface. A normal close
// by either side is reported as [net.ErrClosed].
func (c *Conn) Recv() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return nil, net.ErrClosed
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, net.ErrClosed
			}
			c.owner.log.Debug("read failed", zap.String("peer", c.peer), zap.Error(err))
			return nil, err
		}
		if mt == websocket.BinaryMessage || mt == websocket.TextMessage {
			return data, nil
		}
	}
}

// Close implements a method of the [peerhub.Conn] interface.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.wμ.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wμ.Unlock()
		err = c.ws.Close()
		c.owner.untrack(c)
	})
	return err
}
