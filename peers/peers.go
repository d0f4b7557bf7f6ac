// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package peers provides support code for running and testing sessions.
package peers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/creachadair/peerhub"
	"github.com/creachadair/peerhub/memnet"
)

// Star is a host and a set of clients connected over an in-memory network,
// suitable for testing.
type Star struct {
	Net     *memnet.Network
	Host    *peerhub.Session
	Clients map[string]*peerhub.Session

	hostID string
	ids    []string // client IDs, in order
}

// NewStar starts a host session with the given ID and a client session for
// each of clientIDs, on a new in-memory network. The sessions connect in the
// background; use WaitConnected to wait for them.
// All the sessions share opts.
func NewStar(ctx context.Context, hostID string, clientIDs []string, opts *peerhub.Options) (*Star, error) {
	s := &Star{
		Net:     memnet.New(),
		Clients: make(map[string]*peerhub.Session),
		hostID:  hostID,
		ids:     slices.Sorted(slices.Values(clientIDs)),
	}
	s.Host = peerhub.NewSession(s.Net, opts)
	if err := s.Host.StartHost(ctx, hostID, nil); err != nil {
		return nil, err
	}
	for _, id := range s.ids {
		if _, ok := s.Clients[id]; ok {
			s.Stop()
			return nil, fmt.Errorf("duplicate client ID %q", id)
		}
		c := peerhub.NewSession(s.Net, opts)
		s.Clients[id] = c
		if err := c.StartClient(ctx, id, hostID, nil); err != nil {
			s.Stop()
			return nil, err
		}
	}
	return s, nil
}

// Client returns the client session with the given ID, or nil.
func (s *Star) Client(id string) *peerhub.Session { return s.Clients[id] }

// ClientIDs returns the IDs of the clients, in order.
func (s *Star) ClientIDs() []string { return slices.Clone(s.ids) }

// Connected reports whether every client is connected to the host.
func (s *Star) Connected() bool {
	if !slices.Equal(s.Host.Peers(), s.ids) {
		return false
	}
	for _, c := range s.Clients {
		if !slices.Equal(c.Peers(), []string{s.hostID}) {
			return false
		}
	}
	return true
}

// WaitConnected blocks until every client is connected to the host, or ctx
// ends.
func (s *Star) WaitConnected(ctx context.Context) error {
	for !s.Connected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return nil
}

// Stop disconnects the clients and the host, and blocks until all of them
// have exited.
func (s *Star) Stop() error {
	var errs []error
	for _, id := range s.ids {
		if c, ok := s.Clients[id]; ok {
			errs = append(errs, c.Disconnect())
		}
	}
	errs = append(errs, s.Host.Disconnect())
	return errors.Join(errs...)
}
