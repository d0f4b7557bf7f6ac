// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package peerhub

import (
	"fmt"
	"strings"

	"github.com/creachadair/mds/value"
	"github.com/creachadair/peerhub/codec"
	"go.uber.org/zap"
)

const (
	// DefaultQueueSize is the default capacity of the delivery queue.
	DefaultQueueSize = 100

	// DefaultHistorySize is the default capacity of the message history.
	DefaultHistorySize = 500
)

// Role is the part a session plays in the star topology.
type Role byte

const (
	RoleHost   Role = 1 + iota // accepts clients and relays between them
	RoleClient                 // dials exactly one host
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return fmt.Sprintf("role:%d", byte(r))
	}
}

// Config describes one session. A session retains its Config verbatim, so
// that Restart recreates the same session.
type Config struct {
	LocalID string // the ID of this peer
	HostID  string // the ID of the host; for a host, the same as LocalID
	Role    Role

	// TransportOptions are passed unchanged to Transport.Open.
	TransportOptions any
}

// Validate reports an error if c cannot be used to start a session.
func (c Config) Validate() error {
	if strings.TrimSpace(c.LocalID) == "" {
		return fmt.Errorf("%w: missing local ID", ErrInvalidConfig)
	}
	switch c.Role {
	case RoleHost:
		if c.HostID != "" && c.HostID != c.LocalID {
			return fmt.Errorf("%w: host ID %q differs from local ID %q", ErrInvalidConfig, c.HostID, c.LocalID)
		}
	case RoleClient:
		if strings.TrimSpace(c.HostID) == "" {
			return fmt.Errorf("%w: missing host ID", ErrInvalidConfig)
		} else if c.HostID == c.LocalID {
			return fmt.Errorf("%w: client cannot be its own host", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown role %v", ErrInvalidConfig, c.Role)
	}
	return nil
}

// Options are the settings for a Session. A nil *Options is ready for use
// and provides default values as described.
type Options struct {
	// The capacity of the delivery queue. If ≤ 0, DefaultQueueSize is used.
	QueueSize int

	// The capacity of the message history. If ≤ 0, DefaultHistorySize is used.
	HistorySize int

	// The reconnect policy. Zero fields take their values from DefaultBackoff.
	Backoff Backoff

	// If true, payloads sent by this session are wrapped and recorded in its
	// history, sharing the sequence counter with received messages.
	RecordSent bool

	// The codec used to detect and apply the relay marker. If nil,
	// codec.JSON is used.
	Codec codec.Codec

	// If set, the session logs to this logger; otherwise logs are discarded.
	Logger *zap.Logger
}

func (o *Options) queueSize() int {
	if o == nil {
		return DefaultQueueSize
	}
	return value.Cond(o.QueueSize > 0, o.QueueSize, DefaultQueueSize)
}

func (o *Options) historySize() int {
	if o == nil {
		return DefaultHistorySize
	}
	return value.Cond(o.HistorySize > 0, o.HistorySize, DefaultHistorySize)
}

func (o *Options) backoff() Backoff {
	if o == nil {
		return DefaultBackoff
	}
	b := o.Backoff
	return Backoff{
		BaseDelay:   value.Cond(b.BaseDelay > 0, b.BaseDelay, DefaultBackoff.BaseDelay),
		MaxDelay:    value.Cond(b.MaxDelay > 0, b.MaxDelay, DefaultBackoff.MaxDelay),
		MaxAttempts: value.Cond(b.MaxAttempts > 0, b.MaxAttempts, DefaultBackoff.MaxAttempts),
	}
}

func (o *Options) recordSent() bool { return o != nil && o.RecordSent }

func (o *Options) codec() codec.Codec {
	if o == nil || o.Codec == nil {
		return codec.JSON()
	}
	return o.Codec
}

func (o *Options) logger() *zap.Logger {
	if o == nil || o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
