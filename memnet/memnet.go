// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package memnet provides an in-memory implementation of the
// [peerhub.Transport] interface.
//
// A [Network] connects endpoints in the same process by ID. Connections pass
// payloads over buffered channels without encoding. The Network also exposes
// fault injection hooks (Drop, Fail, Sever, Kill, and SetOpenError) so that
// tests can exercise the reconnect behavior of a session.
//
// A Network starts no goroutines of its own, so it is safe to use inside a
// [testing/synctest] bubble.
package memnet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/creachadair/peerhub"
)

var (
	// ErrUnreachable is reported when dialing a peer that is not attached to
	// the network.
	ErrUnreachable = errors.New("memnet: peer unreachable")

	// ErrDetached is reported when dialing from an endpoint that is not
	// attached to the network.
	ErrDetached = errors.New("memnet: endpoint detached")

	// ErrDuplicateID is reported by Open when an endpoint with the same ID is
	// already open on the network.
	ErrDuplicateID = errors.New("memnet: duplicate endpoint ID")

	// ErrDropped is the error carried by EventDisconnected when the network
	// drops an endpoint with Drop.
	ErrDropped = errors.New("memnet: dropped by network")
)

const (
	eventBuffer = 64
	connBuffer  = 64
)

// A Network is a set of in-memory endpoints that can dial one another by ID.
// A zero Network is ready for use, but must not be copied after first use.
type Network struct {
	μ       sync.Mutex
	eps     map[string]*Endpoint
	openErr map[string]error
}

// New constructs a new empty network.
func New() *Network { return new(Network) }

// Open implements the [peerhub.Transport] interface. The opts are ignored.
// The new endpoint is attached immediately and reports EventOpen.
func (n *Network) Open(ctx context.Context, localID string, _ any) (peerhub.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.μ.Lock()
	defer n.μ.Unlock()
	if err := n.openErr[localID]; err != nil {
		return nil, err
	}
	if _, ok := n.eps[localID]; ok {
		return nil, fmt.Errorf("open %q: %w", localID, ErrDuplicateID)
	}
	if n.eps == nil {
		n.eps = make(map[string]*Endpoint)
	}
	e := &Endpoint{
		net:      n,
		id:       localID,
		events:   make(chan peerhub.Event, eventBuffer),
		done:     make(chan struct{}),
		attached: true,
		conns:    make(map[*Conn]struct{}),
	}
	n.eps[localID] = e
	e.emit(peerhub.Event{Kind: peerhub.EventOpen})
	return e, nil
}

// SetOpenError causes subsequent calls to Open for id to fail with err.
// If err == nil, Open for id is permitted again.
func (n *Network) SetOpenError(id string, err error) {
	n.μ.Lock()
	defer n.μ.Unlock()
	if err == nil {
		delete(n.openErr, id)
		return
	}
	if n.openErr == nil {
		n.openErr = make(map[string]error)
	}
	n.openErr[id] = err
}

// Endpoint returns the open endpoint with the given ID, or nil.
func (n *Network) Endpoint(id string) *Endpoint {
	n.μ.Lock()
	defer n.μ.Unlock()
	return n.eps[id]
}

// IDs returns the IDs of the open endpoints, in order.
func (n *Network) IDs() []string {
	n.μ.Lock()
	defer n.μ.Unlock()
	ids := make([]string, 0, len(n.eps))
	for id := range n.eps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Drop detaches the endpoint with the given ID from the network, as if it had
// lost its network attachment. Its established connections are not affected.
// It reports false if no such endpoint is open.
func (n *Network) Drop(id string) bool {
	e := n.Endpoint(id)
	if e == nil {
		return false
	}
	e.detach(ErrDropped)
	return true
}

// Fail reports err as an EventError on the endpoint with the given ID.
// It reports false if no such endpoint is open.
func (n *Network) Fail(id string, err error) bool {
	e := n.Endpoint(id)
	if e == nil {
		return false
	}
	return e.emit(peerhub.Event{Kind: peerhub.EventError, Err: err})
}

// Sever closes every connection between the endpoints a and b, and reports
// the number of connections closed.
func (n *Network) Sever(a, b string) int {
	var nc int
	if e := n.Endpoint(a); e != nil {
		nc += e.closeConns(b)
	}
	if e := n.Endpoint(b); e != nil {
		nc += e.closeConns(a)
	}
	return nc
}

// Kill closes the endpoint with the given ID and all its connections, as if
// it had failed. The endpoint reports EventClose, and its ID becomes free for
// a new Open. It reports false if no such endpoint is open.
func (n *Network) Kill(id string) bool {
	e := n.Endpoint(id)
	if e == nil {
		return false
	}
	e.kill()
	return true
}

func (n *Network) remove(e *Endpoint) {
	n.μ.Lock()
	defer n.μ.Unlock()
	if n.eps[e.id] == e {
		delete(n.eps, e.id)
	}
}

func (n *Network) lookup(id string) *Endpoint {
	n.μ.Lock()
	defer n.μ.Unlock()
	return n.eps[id]
}

// An Endpoint is the attachment of one peer to a Network. It implements the
// [peerhub.Endpoint] interface.
type Endpoint struct {
	net *Network
	id  string

	// Senders hold sendμ shared; Destroy holds it exclusively to close events.
	sendμ  sync.RWMutex
	events chan peerhub.Event
	done   chan struct{}
	once   sync.Once

	μ         sync.Mutex
	attached  bool
	closed    bool // killed by the network
	destroyed bool
	conns     map[*Conn]struct{}
}

// ID reports the ID of the endpoint.
func (e *Endpoint) ID() string { return e.id }

// Events implements a method of the [peerhub.Endpoint] interface.
func (e *Endpoint) Events() <-chan peerhub.Event { return e.events }

// Attached reports whether e is attached to the network.
func (e *Endpoint) Attached() bool {
	e.μ.Lock()
	defer e.μ.Unlock()
	return e.attached
}

// emit delivers ev, blocking until it is buffered or e is destroyed. It
// reports whether ev was delivered.
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

// Dial implements a method of the [peerhub.Endpoint] interface.
func (e *Endpoint) Dial(ctx context.Context, remoteID string) (peerhub.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.μ.Lock()
	switch {
	case e.destroyed || e.closed:
		e.μ.Unlock()
		return nil, net.ErrClosed
	case !e.attached:
		e.μ.Unlock()
		return nil, ErrDetached
	}
	e.μ.Unlock()

	r := e.net.lookup(remoteID)
	if r == nil || r == e || !r.Attached() {
		return nil, fmt.Errorf("dial %q: %w", remoteID, ErrUnreachable)
	}

	lk := &link{done: make(chan struct{})}
	a2b := make(chan []byte, connBuffer)
	b2a := make(chan []byte, connBuffer)
	local := &Conn{peer: remoteID, in: b2a, out: a2b, link: lk, owner: e}
	remote := &Conn{peer: e.id, in: a2b, out: b2a, link: lk, owner: r}
	if !e.track(local) || !r.track(remote) {
		local.Close()
		return nil, fmt.Errorf("dial %q: %w", remoteID, ErrUnreachable)
	}
	if !r.emit(peerhub.Event{Kind: peerhub.EventConnection, Conn: remote}) {
		local.Close()
		return nil, fmt.Errorf("dial %q: %w", remoteID, ErrUnreachable)
	}
	return local, nil
}

// Reconnect implements a method of the [peerhub.Endpoint] interface.
// If e is already attached, Reconnect does nothing.
func (e *Endpoint) Reconnect() error {
	e.μ.Lock()
	if e.destroyed || e.closed {
		e.μ.Unlock()
		return net.ErrClosed
	} else if e.attached {
		e.μ.Unlock()
		return nil
	}
	e.attached = true
	e.μ.Unlock()
	e.emit(peerhub.Event{Kind: peerhub.EventOpen})
	return nil
}

// Disconnect implements a method of the [peerhub.Endpoint] interface.
func (e *Endpoint) Disconnect() error { e.detach(nil); return nil }

func (e *Endpoint) detach(err error) {
	e.μ.Lock()
	if !e.attached || e.destroyed {
		e.μ.Unlock()
		return
	}
	e.attached = false
	e.μ.Unlock()
	e.emit(peerhub.Event{Kind: peerhub.EventDisconnected, Err: err})
}

func (e *Endpoint) kill() {
	e.μ.Lock()
	if e.closed || e.destroyed {
		e.μ.Unlock()
		return
	}
	e.closed = true
	e.attached = false
	conns := e.takeConnsLocked()
	e.μ.Unlock()

	e.net.remove(e)
	for _, c := range conns {
		c.Close()
	}
	e.emit(peerhub.Event{Kind: peerhub.EventClose})
}

// Destroy implements a method of the [peerhub.Endpoint] interface.
func (e *Endpoint) Destroy() error {
	e.once.Do(func() {
		e.μ.Lock()
		e.destroyed = true
		e.attached = false
		conns := e.takeConnsLocked()
		e.μ.Unlock()

		e.net.remove(e)
		for _, c := range conns {
			c.Close()
		}
		close(e.done)
		e.sendμ.Lock()
		close(e.events)
		e.sendμ.Unlock()
	})
	return nil
}

// Destroyed implements a method of the [peerhub.Endpoint] interface. An
// endpoint killed by the network also reports true.
func (e *Endpoint) Destroyed() bool {
	e.μ.Lock()
	defer e.μ.Unlock()
	return e.destroyed || e.closed
}

func (e *Endpoint) track(c *Conn) bool {
	e.μ.Lock()
	defer e.μ.Unlock()
	if e.destroyed || e.closed {
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

func (e *Endpoint) takeConnsLocked() []*Conn {
	out := make([]*Conn, 0, len(e.conns))
	for c := range e.conns {
		out = append(out, c)
	}
	clear(e.conns)
	return out
}

// closeConns closes the connections of e to peer, and reports how many.
func (e *Endpoint) closeConns(peer string) int {
	e.μ.Lock()
	var cs []*Conn
	for c := range e.conns {
		if c.peer == peer {
			cs = append(cs, c)
		}
	}
	e.μ.Unlock()
	for _, c := range cs {
		c.Close()
	}
	return len(cs)
}

// link is the state shared by both ends of a connection.
type link struct {
	done chan struct{}
	once sync.Once
}

// A Conn is one end of an in-memory connection. It implements the
// [peerhub.Conn] interface.
type Conn struct {
	peer  string
	in    <-chan []byte
	out   chan<- []byte
	link  *link
	owner *Endpoint
}

// Peer implements a method of the [peerhub.Conn] interface.
func (c *Conn) Peer() string { return c.peer }

// Send implements a method of the [peerhub.Conn] interface.
// The receiver gets its own copy of data.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.link.done:
		return net.ErrClosed
	default:
	}
	select {
	case c.out <- bytes.Clone(data):
		return nil
	case <-c.link.done:
		return net.ErrClosed
	}
}

// Recv implements a method of the [peerhub.Conn] interface. Payloads sent
// before the connection closed are still delivered.
func (c *Conn) Recv() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	default:
	}
	select {
	case data := <-c.in:
		return data, nil
	case <-c.link.done:
		select {
		case data := <-c.in:
			return data, nil
		default:
			return nil, net.ErrClosed
		}
	}
}

// Close implements a method of the [peerhub.Conn] interface. Closing either
// end closes both.
func (c *Conn) Close() error {
	c.link.once.Do(func() { close(c.link.done) })
	c.owner.untrack(c)
	return nil
}
