// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Program peerhub runs one peer of a star-topology chat session over
// WebSockets, or a self-contained demonstration of one in memory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/peerhub"
	"github.com/creachadair/peerhub/peers"
	"github.com/creachadair/peerhub/tcpnet"
	"github.com/creachadair/peerhub/wsnet"
	"github.com/creachadair/taskgroup"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// peerFlags are the flags shared by the host and client commands. Values
// given here override those of the configuration file.
type peerFlags struct {
	Config     string `flag:"config,Configuration file (TOML)"`
	ID         string `flag:"id,The ID of this peer"`
	Host       string `flag:"host,The ID of the host peer (client)"`
	Transport  string `flag:"transport,Transport to use (ws or tcp)"`
	Listen     string `flag:"listen,Listen address (host)"`
	Addr       string `flag:"addr,Address of the host (client)"`
	Codec      string `flag:"codec,Payload encoding (json or cbor)"`
	Metrics    string `flag:"metrics,Serve Prometheus metrics at this address"`
	RecordSent bool   `flag:"record-sent,Record sent messages in the history"`
	History    int    `flag:"history,Capacity of the message history"`
	LogLevel   string `flag:"log-level,Log level (debug, info, warn, error)"`
	LogFormat  string `flag:"log-format,Log format (console or json)"`
	LogFile    string `flag:"log-file,Write logs to this file, with rotation"`
}

var flags peerFlags

var demoFlags struct {
	Clients int           `flag:"clients,default=3,Number of clients"`
	Wait    time.Duration `flag:"wait,default=5s,How long to wait for delivery"`
}

const defaultListen = "localhost:8765"

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: `Run a peer of a star-topology chat session.

A host accepts WebSocket connections from clients and relays broadcast
messages among them. A client connects to one host and reconnects with
exponential backoff when the connection fails.

Lines read from stdin are sent as chat messages. Lines beginning with "/"
are commands:

  /status          : print the session status
  /peers           : list connected peers
  /history         : print the message history
  /replay PEER [N] : replay the history (or the last N messages) to PEER
  /retry           : retry a failed connection now
  /restart         : restart the session
  /quit            : exit

Received messages are printed as "#seq from: text".`,
		SetFlags: func(_ *command.Env, fs *flag.FlagSet) { flax.MustBind(fs, &flags) },
		Commands: []*command.C{
			{
				Name:  "host",
				Usage: "--id ID [--listen ADDR]",
				Help:  "Run a host peer.",
				Run:   runHost,
			},
			{
				Name:  "client",
				Usage: "[--id ID] --host ID --addr URL",
				Help: `Run a client peer.

If --id is omitted, a random ID is chosen. The host is found at --addr, or
else by its entry in the [peers] table of the configuration file.`,
				Run: runClient,
			},
			{
				Name:     "demo",
				Help:     "Run a host and clients in memory, and exchange broadcasts among them.",
				SetFlags: func(_ *command.Env, fs *flag.FlagSet) { flax.MustBind(fs, &demoFlags) },
				Run:      runDemo,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

// setup loads the configuration and builds the logger for a command.
func setup() (*config, *zap.Logger, io.Closer, error) {
	cfg, err := loadConfig(flags.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.overlay(&flags)
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if flags.LogFormat != "" {
		cfg.Log.Format = flags.LogFormat
	}
	if flags.LogFile != "" {
		cfg.Log.File = flags.LogFile
	}
	log, closer, err := cfg.Log.build()
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, closer, nil
}

func runHost(env *command.Env) error {
	cfg, log, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()
	if cfg.ID == "" {
		return env.Usagef("missing host --id")
	}
	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}
	opts, err := cfg.sessionOptions()
	if err != nil {
		return err
	}
	opts.Logger = log

	tr, err := cfg.transport(log)
	if err != nil {
		return err
	}
	s := peerhub.NewSession(tr, opts)
	if ws, ok := tr.(*wsnet.Transport); ok {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler(s.Metrics()))
		ws.Handler = mux
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := s.StartHost(ctx, cfg.ID, nil); err != nil {
		return err
	}
	fmt.Printf("* host %q listening at %s (%s)\n", cfg.ID, cfg.Listen, cfg.transportName())
	return runConsole(ctx, s, newConsole(s, opts.Codec, cfg.ID, os.Stdout), cfg, log)
}

func runClient(env *command.Env) error {
	cfg, log, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()
	if cfg.Host == "" {
		return env.Usagef("missing --host")
	}
	if cfg.ID == "" {
		cfg.ID = "client-" + uuid.NewString()[:8]
	}
	peerURLs := maps.Clone(cfg.Peers)
	if cfg.Addr != "" {
		if peerURLs == nil {
			peerURLs = make(map[string]string)
		}
		peerURLs[cfg.Host] = cfg.Addr
	}
	if _, ok := peerURLs[cfg.Host]; !ok {
		return env.Usagef("no address for host %q (use --addr)", cfg.Host)
	}
	opts, err := cfg.sessionOptions()
	if err != nil {
		return err
	}
	opts.Logger = log

	tr, err := cfg.transport(log)
	if err != nil {
		return err
	}
	s := peerhub.NewSession(tr, opts)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := s.StartClient(ctx, cfg.ID, cfg.Host, cfg.transportOptions(peerURLs)); err != nil {
		return err
	}
	fmt.Printf("* client %q connecting to %q\n", cfg.ID, cfg.Host)
	return runConsole(ctx, s, newConsole(s, opts.Codec, cfg.ID, os.Stdout), cfg, log)
}

// transport returns the transport selected by c. A host listens at c.Listen.
func (c *config) transport(log *zap.Logger) (peerhub.Transport, error) {
	switch c.transportName() {
	case "ws":
		return &wsnet.Transport{Listen: c.Listen, Logger: log}, nil
	case "tcp":
		return &tcpnet.Transport{Listen: c.Listen, Logger: log}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", c.Transport)
	}
}

// transportOptions returns session transport options that resolve peers
// with the given addresses.
func (c *config) transportOptions(peers map[string]string) any {
	if c.transportName() == "tcp" {
		return tcpnet.Options{Peers: peers}
	}
	return wsnet.Options{Peers: peers}
}

func (c *config) transportName() string {
	if c.Transport == "" {
		return "ws"
	}
	return c.Transport
}

// runConsole runs con on stdin until it exits or ctx ends, then disconnects
// the session.
func runConsole(ctx context.Context, s *peerhub.Session, con *console, cfg *config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	g := taskgroup.New(nil)
	if cfg.Metrics != "" {
		if err := serveMetrics(ctx, g, cfg.Metrics, metricsHandler(s.Metrics()), log); err != nil {
			cancel()
			s.Disconnect()
			return err
		}
	}
	g.Go(func() error { return con.receive(ctx) })

	// The console reader blocks in stdin and is not waited for.
	done := make(chan error, 1)
	go func() { done <- con.run(ctx, os.Stdin) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
	}
	cancel()
	s.Disconnect()
	return errors.Join(err, g.Wait())
}

func runDemo(env *command.Env) error {
	cfg, log, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()
	if demoFlags.Clients < 2 {
		return env.Usagef("--clients must be at least 2")
	}
	opts, err := cfg.sessionOptions()
	if err != nil {
		return err
	}
	opts.Logger = log

	ids := make([]string, demoFlags.Clients)
	for i := range ids {
		ids[i] = fmt.Sprintf("client-%d", i+1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), demoFlags.Wait)
	defer cancel()

	star, err := peers.NewStar(ctx, "hub", ids, opts)
	if err != nil {
		return err
	}
	defer star.Stop()
	if err := star.WaitConnected(ctx); err != nil {
		return fmt.Errorf("waiting for clients: %w", err)
	}
	fmt.Printf("* %d clients connected to hub\n", len(ids))

	// Each client broadcasts once, and so receives a message from every
	// other client by way of the host.
	for _, id := range ids {
		con := newConsole(star.Client(id), opts.Codec, id, os.Stdout)
		if err := con.say("hello from " + id); err != nil {
			return err
		}
	}
	for _, id := range ids {
		con := newConsole(star.Client(id), opts.Codec, id, os.Stdout)
		for range len(ids) - 1 {
			msg, err := star.Client(id).Receive(ctx)
			if err != nil {
				return fmt.Errorf("client %q: %w", id, err)
			}
			con.printf("%s <- %s\n", id, con.format(msg))
		}
	}
	host := newConsole(star.Host, opts.Codec, "hub", os.Stdout)
	return host.exec(ctx, "/status")
}
