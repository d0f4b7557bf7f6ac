// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package peerhub

import (
	"slices"
	"strings"
	"sync/atomic"
)

// A ConnRecord is the registry entry for one live connection.
type ConnRecord struct {
	Peer string // remote peer ID
	Conn Conn   // the connection handle

	// Attached is set once the session has started the receive loop for
	// Conn, so that registering the same connection again does not start a
	// second one.
	Attached bool
}

// A Snapshot is an immutable view of the registry at one version.
// The zero value is an empty snapshot at version 0.
type Snapshot struct {
	version uint64
	recs    []ConnRecord // sorted by Peer, unique
}

// Version reports the registry version captured by s. Each mutation of the
// registry increments its version.
func (s *Snapshot) Version() uint64 { return s.version }

// Len reports the number of connections in s.
func (s *Snapshot) Len() int { return len(s.recs) }

// Get returns the record for peer, if it is present in s.
func (s *Snapshot) Get(peer string) (ConnRecord, bool) {
	i, ok := s.find(peer)
	if !ok {
		return ConnRecord{}, false
	}
	return s.recs[i], true
}

// Records returns a copy of the records in s, ordered by peer ID.
func (s *Snapshot) Records() []ConnRecord { return slices.Clone(s.recs) }

// Peers returns the peer IDs in s in order.
func (s *Snapshot) Peers() []string {
	out := make([]string, len(s.recs))
	for i, r := range s.recs {
		out[i] = r.Peer
	}
	return out
}

func (s *Snapshot) find(peer string) (int, bool) {
	return slices.BinarySearchFunc(s.recs, peer, func(r ConnRecord, p string) int {
		return strings.Compare(r.Peer, p)
	})
}

// A Registry maps peer IDs to live connections. Readers may use a Registry
// concurrently with one writer; every mutation installs a new [Snapshot] and
// readers only ever observe complete snapshots.
//
// Mutations must be serialized by the caller.
type Registry struct {
	cur atomic.Pointer[Snapshot]
}

var emptySnapshot = new(Snapshot)

// Snapshot returns the current snapshot of r.
func (r *Registry) Snapshot() *Snapshot {
	if s := r.cur.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

// Get returns the current record for peer, if any.
func (r *Registry) Get(peer string) (ConnRecord, bool) { return r.Snapshot().Get(peer) }

// All returns the records currently in r.
func (r *Registry) All() []ConnRecord { return r.Snapshot().Records() }

// Len reports the number of connections currently in r.
func (r *Registry) Len() int { return r.Snapshot().Len() }

// Put adds or replaces the record for rec.Peer, and returns the record it
// replaced, if any.
func (r *Registry) Put(rec ConnRecord) (old ConnRecord, replaced bool) {
	cur := r.Snapshot()
	next := &Snapshot{version: cur.version + 1}
	i, ok := cur.find(rec.Peer)
	if ok {
		old, replaced = cur.recs[i], true
		next.recs = slices.Clone(cur.recs)
		next.recs[i] = rec
	} else {
		next.recs = slices.Insert(slices.Clone(cur.recs), i, rec)
	}
	r.cur.Store(next)
	return old, replaced
}

// Remove removes the record for peer if it refers to conn, and reports
// whether it did so. If conn == nil, any record for peer is removed.
func (r *Registry) Remove(peer string, conn Conn) bool {
	cur := r.Snapshot()
	i, ok := cur.find(peer)
	if !ok || (conn != nil && cur.recs[i].Conn != conn) {
		return false
	}
	r.cur.Store(&Snapshot{
		version: cur.version + 1,
		recs:    slices.Delete(slices.Clone(cur.recs), i, i+1),
	})
	return true
}

// Clear removes all records from r and returns the snapshot that was current
// before the reset.
func (r *Registry) Clear() *Snapshot {
	cur := r.Snapshot()
	r.cur.Store(&Snapshot{version: cur.version + 1})
	return cur
}
