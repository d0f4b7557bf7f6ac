// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/peerhub"
	"github.com/creachadair/peerhub/codec"
)

// chatMessage is the payload exchanged by the chat console.
type chatMessage struct {
	Type  string `json:"type" cbor:"type"`
	From  string `json:"from" cbor:"from"`
	Text  string `json:"text" cbor:"text"`
	TS    int64  `json:"ts" cbor:"ts"`
	Relay bool   `json:"_relay,omitempty" cbor:"_relay,omitempty"`
}

// errQuit is reported by a console command that ends the console.
var errQuit = errors.New("quit")

// A console connects a line-oriented terminal to a session. Plain lines are
// sent as chat messages; lines beginning with "/" are commands.
type console struct {
	s     *peerhub.Session
	codec codec.Codec
	id    string
	now   func() time.Time

	μ   sync.Mutex // serializes writes to out
	out io.Writer
}

func newConsole(s *peerhub.Session, c codec.Codec, id string, out io.Writer) *console {
	return &console{s: s, codec: c, id: id, now: time.Now, out: out}
}

func (c *console) printf(msg string, args ...any) {
	c.μ.Lock()
	defer c.μ.Unlock()
	fmt.Fprintf(c.out, msg, args...)
}

// run reads lines from in and executes them until in is exhausted, ctx ends,
// or a /quit command is read.
func (c *console) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := c.exec(ctx, sc.Text()); errors.Is(err, errQuit) {
			return nil
		} else if err != nil {
			c.printf("! %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return sc.Err()
}

// exec executes one input line.
func (c *console) exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return c.say(line)
	}
	args := strings.Fields(line)
	switch cmd := args[0]; cmd {
	case "/quit":
		return errQuit

	case "/status":
		st := c.s.Status()
		c.printf("* %s %s (host %s): %s, %d peers, %d queued, %d recorded\n",
			st.Role, st.LocalID, st.HostID, st.State, len(st.Peers), st.Queued, st.Recorded)
		if st.Reconnecting {
			c.printf("* reconnecting, attempt %d\n", st.Attempts)
		}
		if st.Err != nil {
			c.printf("* error: %v\n", st.Err)
		}

	case "/peers":
		for _, rec := range c.s.Registry().Records() {
			c.printf("* %s\n", rec.Peer)
		}

	case "/history":
		for _, msg := range c.s.History() {
			c.printf("%s\n", c.format(msg))
		}

	case "/replay":
		if len(args) < 2 || len(args) > 3 {
			return errors.New("usage: /replay PEER [N]")
		}
		var opts peerhub.ReplayOptions
		if len(args) == 3 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid count: %w", err)
			}
			opts.Limit = n
		}
		n, err := c.s.ReplayTo(args[1], opts)
		if err != nil {
			return err
		}
		c.printf("* replayed %d messages to %s\n", n, args[1])

	case "/retry":
		return c.s.Retry()

	case "/restart":
		return c.s.Restart(ctx)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// say sends text as a chat message. A host sends it to all its clients; a
// client broadcasts it through the host.
func (c *console) say(text string) error {
	data, err := c.codec.Marshal(chatMessage{
		Type: "chat",
		From: c.id,
		Text: text,
		TS:   c.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	if c.s.Role() == peerhub.RoleClient {
		_, err = c.s.Broadcast(data)
	} else {
		_, err = c.s.SendAll(data)
	}
	return err
}

// receive prints messages delivered to the session until ctx ends.
func (c *console) receive(ctx context.Context) error {
	for {
		msg, err := c.s.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.printf("%s\n", c.format(msg))
	}
}

// format renders msg as "#seq from: text". Chat messages report their
// original sender; other payloads are shown verbatim.
func (c *console) format(msg peerhub.Message) string {
	from, text := msg.From, string(msg.Data)
	if cm, err := codec.Decode[chatMessage](c.codec, msg.Data); err == nil && cm.Type == "chat" {
		from, text = cm.From, cm.Text
	}
	if from == "" {
		from = c.id
	}
	return fmt.Sprintf("#%d %s: %s", msg.Seq, from, text)
}
