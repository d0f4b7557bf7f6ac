// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package peerhub

import (
	"github.com/creachadair/peerhub/codec"
	"go.uber.org/zap"
)

// shouldRelay reports whether a payload received by a session in the given
// role must be forwarded to the other peers. Only a host relays, and only
// payloads carrying the relay marker. Forwarded payloads keep the marker, so
// a client that receives one does not forward it again.
func shouldRelay(role Role, c codec.Codec, data []byte) bool {
	return role == RoleHost && c.IsRelay(data)
}

// forward sends data to every peer in snap except the one named by except,
// and reports the number of peers it reached. A failed send is logged and
// counted, but does not prevent delivery to the rest.
func forward(log *zap.Logger, m *sessionMetrics, snap *Snapshot, data []byte, except string) int {
	var nsent int
	for _, rec := range snap.recs {
		if rec.Peer == except {
			continue
		}
		if err := rec.Conn.Send(data); err != nil {
			m.sendFailed.Add(1)
			log.Debug("send failed", zap.String("peer", rec.Peer), zap.Error(err))
			continue
		}
		nsent++
	}
	m.msgSent.Add(int64(nsent))
	return nsent
}
