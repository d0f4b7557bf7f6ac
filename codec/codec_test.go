// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package codec_test

import (
	"errors"
	"testing"

	"github.com/creachadair/peerhub/codec"
	"github.com/google/go-cmp/cmp"
)

type chat struct {
	Type  string `json:"type" cbor:"type"`
	Text  string `json:"text,omitempty" cbor:"text,omitempty"`
	Relay bool   `json:"_relay,omitempty" cbor:"_relay,omitempty"`
}

func TestJSONRelay(t *testing.T) {
	c := codec.JSON()

	tests := []struct {
		input string
		want  bool
	}{
		{``, false},
		{`"_relay"`, false},
		{`[true]`, false},
		{`{}`, false},
		{`{"type":"ping"}`, false},
		{`{"_relay":false}`, false},
		{`{"_relay":"true"}`, false},
		{`{"inner":{"_relay":true}}`, false},
		{`{"_relay":true}`, true},
		{` {"type":"ping", "_relay": true} `, true},
	}
	for _, tc := range tests {
		if got := c.IsRelay([]byte(tc.input)); got != tc.want {
			t.Errorf("IsRelay(%q): got %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestJSONMarkRelay(t *testing.T) {
	c := codec.JSON()

	t.Run("Object", func(t *testing.T) {
		in := []byte(`{"type":"ping","text":"hello"}`)
		orig := string(in)
		out, err := c.MarkRelay(in)
		if err != nil {
			t.Fatalf("MarkRelay: unexpected error: %v", err)
		}
		if string(in) != orig {
			t.Errorf("MarkRelay modified its input: got %q, want %q", in, orig)
		}
		if !c.IsRelay(out) {
			t.Errorf("IsRelay(%q): got false, want true", out)
		}
		got, err := codec.Decode[chat](c, out)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if diff := cmp.Diff(chat{Type: "ping", Text: "hello", Relay: true}, got); diff != "" {
			t.Errorf("Decoded (-want, +got):\n%s", diff)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		out, err := c.MarkRelay([]byte(` { } `))
		if err != nil {
			t.Fatalf("MarkRelay: unexpected error: %v", err)
		}
		if got, want := string(out), `{"_relay":true}`; got != want {
			t.Errorf("MarkRelay: got %q, want %q", got, want)
		}
	})

	t.Run("Replace", func(t *testing.T) {
		out, err := c.MarkRelay([]byte(`{"_relay":false}`))
		if err != nil {
			t.Fatalf("MarkRelay: unexpected error: %v", err)
		}
		if !c.IsRelay(out) {
			t.Errorf("IsRelay(%q): got false, want true", out)
		}
	})

	t.Run("NotObject", func(t *testing.T) {
		out, err := c.MarkRelay([]byte(`"hello"`))
		if !errors.Is(err, codec.ErrNotObject) {
			t.Errorf("MarkRelay: got (%q, %v), want %v", out, err, codec.ErrNotObject)
		}
	})
}

func TestCBORRelay(t *testing.T) {
	c := codec.MustCBOR()

	plain, err := c.Marshal(chat{Type: "pong"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if c.IsRelay(plain) {
		t.Errorf("IsRelay(plain): got true, want false")
	}

	marked, err := c.MarkRelay(plain)
	if err != nil {
		t.Fatalf("MarkRelay: %v", err)
	}
	if !c.IsRelay(marked) {
		t.Errorf("IsRelay(marked): got false, want true")
	}
	got, err := codec.Decode[chat](c, marked)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(chat{Type: "pong", Relay: true}, got); diff != "" {
		t.Errorf("Decoded (-want, +got):\n%s", diff)
	}

	list, err := c.Marshal([]string{"a", "b"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := c.MarkRelay(list); !errors.Is(err, codec.ErrNotObject) {
		t.Errorf("MarkRelay(list): got %v, want %v", err, codec.ErrNotObject)
	}
	if c.IsRelay([]byte("garbage")) {
		t.Error("IsRelay(garbage): got true, want false")
	}
}

func TestEncode(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON(), codec.MustCBOR()} {
		t.Run(c.ContentType(), func(t *testing.T) {
			data, err := codec.Encode(c, chat{Type: "join"}, true)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !c.IsRelay(data) {
				t.Errorf("Encode(relay=true): marker missing from %q", data)
			}
			data, err = codec.Encode(c, chat{Type: "join"}, false)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if c.IsRelay(data) {
				t.Errorf("Encode(relay=false): unexpected marker in %q", data)
			}
		})
	}
}
