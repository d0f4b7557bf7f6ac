// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package tcpnet_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/creachadair/peerhub"
	"github.com/creachadair/peerhub/codec"
	"github.com/creachadair/peerhub/tcpnet"
	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

func nextEvent(t *testing.T, ep peerhub.Endpoint, want peerhub.EventKind) peerhub.Event {
	t.Helper()
	select {
	case ev, ok := <-ep.Events():
		if !ok {
			t.Fatalf("Events closed, want %v", want)
		}
		if ev.Kind != want {
			t.Fatalf("Event: got %v, want %v", ev, want)
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("Timed out waiting for %v", want)
	}
	panic("unreachable")
}

func openHost(t *testing.T, id string) (peerhub.Endpoint, string) {
	t.Helper()
	tr := &tcpnet.Transport{Listen: "127.0.0.1:0", Logger: zaptest.NewLogger(t)}
	ep, err := tr.Open(t.Context(), id, nil)
	if err != nil {
		t.Fatalf("Open %q: %v", id, err)
	}
	nextEvent(t, ep, peerhub.EventOpen)
	return ep, ep.(*tcpnet.Endpoint).Addr()
}

func TestEndpoint(t *testing.T) {
	defer leaktest.Check(t)()

	host, addr := openHost(t, "hub")
	defer host.Destroy()

	ct := &tcpnet.Transport{Logger: zaptest.NewLogger(t)}
	client, err := ct.Open(t.Context(), "alice", tcpnet.Options{
		Peers: map[string]string{"hub": addr, "impostor": addr},
	})
	if err != nil {
		t.Fatalf("Open client: %v", err)
	}
	defer client.Destroy()
	nextEvent(t, client, peerhub.EventOpen)

	if _, err := client.Dial(t.Context(), "nobody"); !errors.Is(err, tcpnet.ErrUnknownPeer) {
		t.Errorf("Dial unknown: got %v, want %v", err, tcpnet.ErrUnknownPeer)
	}

	// The host reports its own ID, which does not match.
	if _, err := client.Dial(t.Context(), "impostor"); !errors.Is(err, tcpnet.ErrWrongPeer) {
		t.Errorf("Dial impostor: got %v, want %v", err, tcpnet.ErrWrongPeer)
	}
	if c := nextEvent(t, host, peerhub.EventConnection).Conn; c != nil {
		if _, err := c.Recv(); !errors.Is(err, net.ErrClosed) {
			t.Errorf("Recv on abandoned conn: got %v, want %v", err, net.ErrClosed)
		}
		c.Close()
	}

	c, err := client.Dial(t.Context(), "hub")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	s := nextEvent(t, host, peerhub.EventConnection).Conn
	if got := s.Peer(); got != "alice" {
		t.Errorf("Server peer: got %q, want alice", got)
	}

	for _, msg := range []string{`{"type":"ping"}`, "", "third"} {
		if err := c.Send([]byte(msg)); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	var got []string
	for range 3 {
		data, err := s.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		got = append(got, string(data))
	}
	if diff := cmp.Diff([]string{`{"type":"ping"}`, "", "third"}, got); diff != "" {
		t.Errorf("Received (-want, +got):\n%s", diff)
	}
	if err := s.Send([]byte("pong")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got, err := c.Recv(); err != nil || string(got) != "pong" {
		t.Errorf("Recv: got (%q, %v), want pong", got, err)
	}

	// A close is reported as net.ErrClosed on both sides.
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if got, err := s.Recv(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Recv after remote close: got (%q, %v), want %v", got, err, net.ErrClosed)
	}
	if err := c.Send([]byte("late")); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Send after close: got %v, want %v", err, net.ErrClosed)
	}
	s.Close()
}

func TestHandshakeRejected(t *testing.T) {
	defer leaktest.Check(t)()

	host, addr := openHost(t, "hub")
	defer host.Destroy()

	// A connection that does not say hello is dropped without an event.
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer nc.Close()
	if _, err := nc.Write([]byte("GET / HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	nc.SetReadDeadline(time.Now().Add(5 * time.Second))
	var buf [1]byte
	if _, err := nc.Read(buf[:]); err == nil {
		t.Error("Read: got data, want the connection to be closed")
	}
	select {
	case ev := <-host.Events():
		t.Errorf("Unexpected event: %v", ev)
	default:
	}
}

func TestDisconnect(t *testing.T) {
	defer leaktest.Check(t)()

	ep, addr := openHost(t, "hub")
	defer ep.Destroy()

	if err := ep.Disconnect(); err != nil {
		t.Errorf("Disconnect: %v", err)
	}
	nextEvent(t, ep, peerhub.EventDisconnected)
	if c, err := net.Dial("tcp", addr); err == nil {
		c.Close()
		t.Error("Listener is still accepting after Disconnect")
	}

	if err := ep.Reconnect(); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	nextEvent(t, ep, peerhub.EventOpen)
	if got := ep.(*tcpnet.Endpoint).Addr(); got != addr {
		t.Errorf("Addr after reconnect: got %q, want %q", got, addr)
	}

	if err := ep.Destroy(); err != nil {
		t.Errorf("Destroy: %v", err)
	}
	if !ep.Destroyed() {
		t.Error("Destroyed: got false")
	}
	if _, ok := <-ep.Events(); ok {
		t.Error("Events still open after Destroy")
	}
	if err := ep.Reconnect(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Reconnect after destroy: got %v, want %v", err, net.ErrClosed)
	}
}

func TestSessions(t *testing.T) {
	defer leaktest.Check(t)()

	log := zaptest.NewLogger(t)
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := lst.Addr().String()
	lst.Close()

	host := peerhub.NewSession(&tcpnet.Transport{Listen: addr, Logger: log}, &peerhub.Options{Logger: log}).Detach()
	if err := host.StartHost(t.Context(), "hub", nil); err != nil {
		t.Fatalf("StartHost: %v", err)
	}
	defer host.Disconnect()

	ct := &tcpnet.Transport{Logger: log}
	var clients []*peerhub.Session
	for _, id := range []string{"alice", "bob"} {
		c := peerhub.NewSession(ct, &peerhub.Options{Logger: log})
		if err := c.StartClient(t.Context(), id, "hub", tcpnet.Options{
			Peers: map[string]string{"hub": addr},
		}); err != nil {
			t.Fatalf("StartClient %q: %v", id, err)
		}
		defer c.Disconnect()
		clients = append(clients, c)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(host.Peers()) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for clients; host has %q", host.Peers())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := clients[0].Broadcast([]byte(`{"type":"chat","text":"hi"}`)); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	msg, err := clients[1].Receive(t.Context())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg.From != "hub" || msg.Seq != 1 {
		t.Errorf("Received %v, want #1 from hub", msg)
	}
	if !codec.JSON().IsRelay(msg.Data) {
		t.Errorf("Relayed payload is not marked: %q", msg.Data)
	}
}
