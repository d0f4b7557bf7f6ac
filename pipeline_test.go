// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package peerhub_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/creachadair/peerhub"
	"github.com/google/go-cmp/cmp"
)

// fakeClock returns a clock that advances by step on each reading.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	cur := start.Add(-step)
	return func() time.Time { cur = cur.Add(step); return cur }
}

func seqs(ms []peerhub.Message) []uint64 {
	out := make([]uint64, len(ms))
	for i, m := range ms {
		out[i] = m.Seq
	}
	return out
}

func TestPipelineSequence(t *testing.T) {
	p := peerhub.NewPipeline(0, 0, nil)

	const N = 250
	var want []uint64
	for i := range N {
		m := p.Wrap("x", []byte{byte(i)})
		p.Record(m)
		p.Enqueue(m)
		want = append(want, uint64(i+1))
	}
	if diff := cmp.Diff(want, seqs(p.History())); diff != "" {
		t.Errorf("History sequence (-want, +got):\n%s", diff)
	}
	if got := p.QueueLen(); got != peerhub.DefaultQueueSize {
		t.Errorf("Queue length: got %d, want %d", got, peerhub.DefaultQueueSize)
	}

	p.Reset()
	if got := p.Wrap("", nil).Seq; got != 1 {
		t.Errorf("Seq after reset: got %d, want 1", got)
	}
	if p.QueueLen() != 0 || p.HistoryLen() != 0 {
		t.Errorf("After reset: queue %d, history %d, want empty", p.QueueLen(), p.HistoryLen())
	}
}

func TestPipelineOverflow(t *testing.T) {
	const capQ, capH = 10, 12
	p := peerhub.NewPipeline(capQ, capH, nil)

	var drops, evicts int
	for i := range capQ + 5 {
		m := p.Wrap("peer", fmt.Appendf(nil, "%d", i+1))
		if p.Record(m) {
			evicts++
		}
		if dropped, ok := p.Enqueue(m); ok {
			drops++
			if want := uint64(drops); dropped.Seq != want {
				t.Errorf("Dropped: got #%d, want #%d", dropped.Seq, want)
			}
		}
	}
	if drops != 5 || evicts != 3 {
		t.Errorf("Overflow: got %d drops, %d evictions; want 5, 3", drops, evicts)
	}
	if diff := cmp.Diff([]uint64{6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, seqs(p.Pending())); diff != "" {
		t.Errorf("Queue (-want, +got):\n%s", diff)
	}
	if got := p.HistoryLen(); got != capH {
		t.Errorf("History length: got %d, want %d", got, capH)
	}
	if m, ok := p.Head(); !ok || m.Seq != 6 {
		t.Errorf("Head: got (%v, %v), want #6", m, ok)
	}

	p.ClearQueue()
	if _, ok := p.Head(); ok {
		t.Error("Head after ClearQueue: got a message")
	}
	if got := p.HistoryLen(); got != capH {
		t.Errorf("History after ClearQueue: got %d, want %d", got, capH)
	}
}

func TestPipelineReady(t *testing.T) {
	p := peerhub.NewPipeline(0, 0, nil)
	select {
	case <-p.Ready():
		t.Fatal("Ready on an empty pipeline")
	default:
	}

	p.Enqueue(p.Wrap("a", nil))
	p.Enqueue(p.Wrap("a", nil))
	<-p.Ready()
	if m, ok := p.Advance(); !ok || m.Seq != 1 {
		t.Errorf("Advance: got (%v, %v), want #1", m, ok)
	}

	// The second message is still waiting, so the signal is restored.
	select {
	case <-p.Ready():
	default:
		t.Fatal("Not ready with a message pending")
	}
	if m, ok := p.Advance(); !ok || m.Seq != 2 {
		t.Errorf("Advance: got (%v, %v), want #2", m, ok)
	}
	if m, ok := p.Advance(); ok {
		t.Errorf("Advance empty: got %v", m)
	}
}

func TestPipelineReplay(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := peerhub.NewPipeline(0, 0, fakeClock(start, time.Second))
	for i := range 10 {
		p.Record(p.Wrap("a", fmt.Appendf(nil, "m%d", i)))
	}

	tests := []struct {
		name string
		opts peerhub.ReplayOptions
		want []uint64
	}{
		{"All", peerhub.ReplayOptions{}, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{"Limit", peerhub.ReplayOptions{Limit: 3}, []uint64{8, 9, 10}},
		{"LimitExceeds", peerhub.ReplayOptions{Limit: 50}, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{"Since", peerhub.ReplayOptions{Since: start.Add(6 * time.Second)}, []uint64{7, 8, 9, 10}},
		{"SinceLimit", peerhub.ReplayOptions{Since: start.Add(6 * time.Second), Limit: 2}, []uint64{9, 10}},
		{"SinceBetween", peerhub.ReplayOptions{Since: start.Add(8500 * time.Millisecond)}, []uint64{10}},
		{"Future", peerhub.ReplayOptions{Since: start.Add(time.Hour)}, []uint64{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := seqs(p.SelectReplay(tc.opts))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("SelectReplay(%+v) (-want, +got):\n%s", tc.opts, diff)
			}
		})
	}

	if got := p.HistorySince(start.Add(9 * time.Second)); len(got) != 1 || got[0].Seq != 10 {
		t.Errorf("HistorySince boundary: got %v, want #10", got)
	}
	if got := p.HistorySince(time.Time{}); len(got) != 10 {
		t.Errorf("HistorySince zero: got %d, want 10", len(got))
	}
}

func TestMessage(t *testing.T) {
	m := peerhub.Message{Seq: 5, Time: time.UnixMilli(1700000000123), Data: []byte("abc")}
	if got, want := m.Millis(), int64(1700000000123); got != want {
		t.Errorf("Millis: got %d, want %d", got, want)
	}
	if got, want := m.String(), "Message(#5, local, 3 bytes)"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
	m.From = "bob"
	if got, want := m.String(), "Message(#5, bob, 3 bytes)"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
}
