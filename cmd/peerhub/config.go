// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creachadair/peerhub"
	"github.com/creachadair/peerhub/codec"
)

// config is the contents of a configuration file. Flags given on the command
// line take precedence over the file.
type config struct {
	ID        string `toml:"id"`
	Host      string `toml:"host"`
	Transport string `toml:"transport"` // "ws" (default) or "tcp"
	Listen    string `toml:"listen"`
	Addr      string `toml:"addr"`

	// Peers maps peer IDs to addresses, for a client whose host is not given
	// by Addr. For the ws transport an address is a WebSocket URL; for tcp it
	// is "host:port".
	Peers map[string]string `toml:"peers"`

	Codec       string `toml:"codec"` // "json" (default) or "cbor"
	QueueSize   int    `toml:"queue_size"`
	HistorySize int    `toml:"history_size"`
	RecordSent  bool   `toml:"record_sent"`

	Backoff struct {
		Base        time.Duration `toml:"base"`
		Max         time.Duration `toml:"max"`
		MaxAttempts int           `toml:"max_attempts"`
	} `toml:"backoff"`

	Metrics string    `toml:"metrics"` // address for a standalone /metrics listener
	Log     logConfig `toml:"log"`
}

// loadConfig reads a TOML configuration from path. An empty path yields an
// empty configuration. Keys the file sets that config does not define are
// reported as errors.
func loadConfig(path string) (*config, error) {
	cfg := new(config)
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if keys := md.Undecoded(); len(keys) != 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		return nil, fmt.Errorf("load config %q: unknown keys: %s", path, strings.Join(names, ", "))
	}
	return cfg, nil
}

// overlay replaces fields of c with the non-empty values of the flags.
func (c *config) overlay(f *peerFlags) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.ID, f.ID)
	set(&c.Host, f.Host)
	set(&c.Transport, f.Transport)
	set(&c.Listen, f.Listen)
	set(&c.Addr, f.Addr)
	set(&c.Codec, f.Codec)
	set(&c.Metrics, f.Metrics)
	if f.RecordSent {
		c.RecordSent = true
	}
	if f.History > 0 {
		c.HistorySize = f.History
	}
}

func (c *config) codec() (codec.Codec, error) {
	switch strings.ToLower(c.Codec) {
	case "", "json":
		return codec.JSON(), nil
	case "cbor":
		return codec.CBOR()
	default:
		return nil, fmt.Errorf("unknown codec %q", c.Codec)
	}
}

// sessionOptions returns the session options described by c.
func (c *config) sessionOptions() (*peerhub.Options, error) {
	cc, err := c.codec()
	if err != nil {
		return nil, err
	}
	if c.QueueSize < 0 || c.HistorySize < 0 {
		return nil, errors.New("queue and history sizes must not be negative")
	}
	return &peerhub.Options{
		QueueSize:   c.QueueSize,
		HistorySize: c.HistorySize,
		RecordSent:  c.RecordSent,
		Codec:       cc,
		Backoff: peerhub.Backoff{
			BaseDelay:   c.Backoff.Base,
			MaxDelay:    c.Backoff.Max,
			MaxAttempts: c.Backoff.MaxAttempts,
		},
	}, nil
}
