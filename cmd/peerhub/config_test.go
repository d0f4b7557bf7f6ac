// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/creachadair/peerhub"
	"github.com/creachadair/peerhub/tcpnet"
	"github.com/creachadair/peerhub/wsnet"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(text), 0600); err != nil {
		t.Fatalf("Write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "peer.toml", `
id = "alice"
host = "room-42"
codec = "cbor"
history_size = 50

[peers]
room-42 = "ws://localhost:8765/peer"

[backoff]
base = "500ms"
max = "4s"
max_attempts = 3

[log]
level = "debug"
format = "json"
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ID != "alice" || cfg.Host != "room-42" || cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Config: got %+v", cfg)
	}
	if got := cfg.Peers["room-42"]; got != "ws://localhost:8765/peer" {
		t.Errorf("Peer URL: got %q", got)
	}

	// Flags override the file.
	cfg.overlay(&peerFlags{ID: "bob", Codec: "json", RecordSent: true})
	if cfg.ID != "bob" || cfg.Host != "room-42" {
		t.Errorf("Overlay: got id %q host %q", cfg.ID, cfg.Host)
	}

	opts, err := cfg.sessionOptions()
	if err != nil {
		t.Fatalf("sessionOptions: %v", err)
	}
	want := &peerhub.Options{
		HistorySize: 50,
		RecordSent:  true,
		Backoff:     peerhub.Backoff{BaseDelay: 500 * time.Millisecond, MaxDelay: 4 * time.Second, MaxAttempts: 3},
	}
	if diff := cmp.Diff(want, opts, cmpopts.IgnoreFields(peerhub.Options{}, "Codec")); diff != "" {
		t.Errorf("Options (-want, +got):\n%s", diff)
	}
	if got := opts.Codec.ContentType(); got != "application/json" {
		t.Errorf("Codec: got %q, want JSON", got)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if cfg, err := loadConfig(""); err != nil || cfg.ID != "" {
		t.Errorf("Empty path: got (%+v, %v), want empty config", cfg, err)
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Missing file: got nil error")
	}
	path := writeFile(t, "bad.toml", "id = \"x\"\ncolour = \"blue\"\n")
	if _, err := loadConfig(path); err == nil || !strings.Contains(err.Error(), "colour") {
		t.Errorf("Unknown key: got %v, want error naming colour", err)
	}

	cfg := &config{Codec: "xml"}
	if _, err := cfg.sessionOptions(); err == nil {
		t.Error("Unknown codec: got nil error")
	}
	cfg = &config{QueueSize: -3}
	if _, err := cfg.sessionOptions(); err == nil {
		t.Error("Negative queue size: got nil error")
	}
}

func TestLogConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peerhub.log")
	log, closer, err := logConfig{Level: "info", Format: "json", File: path}.build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	log.Debug("not logged")
	log.Info("session starting")
	if err := closer.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Read log: %v", err)
	}
	if got := string(data); !strings.Contains(got, `"msg":"session starting"`) || strings.Contains(got, "not logged") {
		t.Errorf("Log contents: got %q", got)
	}

	if _, _, err := (logConfig{Level: "loud"}).build(); err == nil {
		t.Error("Bad level: got nil error")
	}
	if _, _, err := (logConfig{Format: "xml"}).build(); err == nil {
		t.Error("Bad format: got nil error")
	}
}

func TestTransport(t *testing.T) {
	log := zaptest.NewLogger(t)
	for _, name := range []string{"", "ws", "tcp"} {
		cfg := &config{Transport: name, Listen: "localhost:0"}
		tr, err := cfg.transport(log)
		if err != nil {
			t.Fatalf("transport %q: %v", name, err)
		}
		switch tr.(type) {
		case *wsnet.Transport:
			if name == "tcp" {
				t.Errorf("transport %q: got WebSocket", name)
			}
			if _, ok := cfg.transportOptions(nil).(wsnet.Options); !ok {
				t.Errorf("transportOptions %q: got %T", name, cfg.transportOptions(nil))
			}
		case *tcpnet.Transport:
			if name != "tcp" {
				t.Errorf("transport %q: got TCP", name)
			}
			if _, ok := cfg.transportOptions(nil).(tcpnet.Options); !ok {
				t.Errorf("transportOptions %q: got %T", name, cfg.transportOptions(nil))
			}
		default:
			t.Errorf("transport %q: unexpected %T", name, tr)
		}
	}
	if _, err := (&config{Transport: "carrier-pigeon"}).transport(log); err == nil {
		t.Error("Unknown transport: got nil error")
	}
}
