// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package peerhub

import (
	"fmt"
	"time"

	"github.com/creachadair/mds/queue"
)

// A Message is a payload wrapped with its session-local sequence number and
// arrival (or origination) time.
type Message struct {
	Seq  uint64    // sequence number, starting at 1 in each session
	Time time.Time // when the message was wrapped
	From string    // the peer it arrived from; "" if originated locally
	Data []byte    // the payload, as received
}

// Millis reports the timestamp of m in milliseconds since the Unix epoch.
func (m Message) Millis() int64 { return m.Time.UnixMilli() }

func (m Message) String() string {
	from := m.From
	if from == "" {
		from = "local"
	}
	return fmt.Sprintf("Message(#%d, %s, %d bytes)", m.Seq, from, len(m.Data))
}

// ReplayOptions select the history entries sent by a replay.
type ReplayOptions struct {
	// Only entries at or after Since are replayed. The zero time selects all.
	Since time.Time

	// At most Limit entries are replayed, the most recent ones. If Limit ≤ 0
	// all matching entries are replayed.
	Limit int
}

// A Pipeline assigns sequence numbers to messages and holds the bounded
// delivery queue and history of a session.
//
// A Pipeline is not safe for concurrent use; the session serializes access.
type Pipeline struct {
	queueSize   int
	historySize int
	now         func() time.Time

	seq     uint64
	queue   *queue.Queue[Message]
	history *queue.Queue[Message]
	ready   chan struct{} // has a value when the queue may be non-empty
}

// NewPipeline constructs an empty pipeline with the given capacities. A
// capacity ≤ 0 selects the default. If now == nil, time.Now is used.
func NewPipeline(queueSize, historySize int, now func() time.Time) *Pipeline {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		queueSize:   queueSize,
		historySize: historySize,
		now:         now,
		queue:       queue.New[Message](),
		history:     queue.New[Message](),
		ready:       make(chan struct{}, 1),
	}
}

// Wrap assigns the next sequence number and the current time to data.
func (p *Pipeline) Wrap(from string, data []byte) Message {
	p.seq++
	return Message{Seq: p.seq, Time: p.now(), From: from, Data: data}
}

// Record appends m to the history. If the history is full, the oldest entry
// is evicted and Record reports true.
func (p *Pipeline) Record(m Message) (evicted bool) {
	p.history.Add(m)
	for p.history.Len() > p.historySize {
		p.history.Pop()
		evicted = true
	}
	return evicted
}

// Enqueue adds m to the delivery queue. If the queue is full, the oldest
// pending message is dropped and returned.
func (p *Pipeline) Enqueue(m Message) (dropped Message, overflow bool) {
	p.queue.Add(m)
	for p.queue.Len() > p.queueSize {
		dropped, overflow = p.queue.Pop()
	}
	p.signal()
	return dropped, overflow
}

func (p *Pipeline) signal() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

// Head reports the message at the front of the delivery queue.
func (p *Pipeline) Head() (Message, bool) { return p.queue.Peek(0) }

// Advance removes and returns the message at the front of the queue.
func (p *Pipeline) Advance() (Message, bool) {
	m, ok := p.queue.Pop()
	if ok && p.queue.Len() != 0 {
		p.signal()
	}
	return m, ok
}

// Pending returns the messages waiting in the delivery queue, oldest first.
func (p *Pipeline) Pending() []Message { return contents(p.queue) }

// QueueLen reports the number of messages waiting for delivery.
func (p *Pipeline) QueueLen() int { return p.queue.Len() }

// ClearQueue discards all pending messages.
func (p *Pipeline) ClearQueue() { p.queue.Clear() }

// History returns the recorded messages, oldest first.
func (p *Pipeline) History() []Message { return contents(p.history) }

// HistoryLen reports the number of recorded messages.
func (p *Pipeline) HistoryLen() int { return p.history.Len() }

// HistorySince returns the recorded messages with timestamps at or after t,
// oldest first.
func (p *Pipeline) HistorySince(t time.Time) []Message {
	var out []Message
	for i := range p.history.Len() {
		m, _ := p.history.Peek(i)
		if !m.Time.Before(t) {
			out = append(out, m)
		}
	}
	return out
}

// SelectReplay returns the history entries matching opts, oldest first.
func (p *Pipeline) SelectReplay(opts ReplayOptions) []Message {
	ms := p.HistorySince(opts.Since)
	if opts.Limit > 0 && len(ms) > opts.Limit {
		ms = ms[len(ms)-opts.Limit:]
	}
	return ms
}

// Reset discards all queued and recorded messages and restarts the sequence
// counter.
func (p *Pipeline) Reset() {
	p.seq = 0
	p.queue.Clear()
	p.history.Clear()
}

// Ready returns a channel that receives a value when a message may be
// available in the queue. Consumers must check the queue after a wakeup.
func (p *Pipeline) Ready() <-chan struct{} { return p.ready }

func contents(q *queue.Queue[Message]) []Message {
	out := make([]Message, q.Len())
	for i := range out {
		out[i], _ = q.Peek(i)
	}
	return out
}
