// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package tcpnet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFrame(t *testing.T) {
	var buf bytes.Buffer
	in := []frame{
		{Type: frameHello, Payload: []byte("alice")},
		{Type: frameData, Payload: []byte(`{"type":"ping"}`)},
		{Type: frameBye},
	}
	for _, f := range in {
		if _, err := f.WriteTo(&buf); err != nil {
			t.Fatalf("WriteTo %v: %v", f.Type, err)
		}
	}
	if got, want := buf.Bytes()[:8], []byte{'P', 'H', 0, 1, 0, 0, 0, 5}; !bytes.Equal(got, want) {
		t.Errorf("Header: got %q, want %q", got, want)
	}

	var out []frame
	for {
		var f frame
		if _, err := f.ReadFrom(&buf); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			t.Fatalf("ReadFrom: %v", err)
		}
		out = append(out, f)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("Frames (-want, +got):\n%s", diff)
	}
}

func TestFrameErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"Empty", nil, io.EOF},
		{"ShortHeader", []byte("PH\x00\x02"), io.ErrUnexpectedEOF},
		{"ShortPayload", []byte("PH\x00\x02\x00\x00\x00\x09abc"), io.ErrUnexpectedEOF},
		{"TooLarge", binary.BigEndian.AppendUint32([]byte("PH\x00\x02"), MaxPayload+1), ErrFrameTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var f frame
			if _, err := f.ReadFrom(bytes.NewReader(tc.input)); !errors.Is(err, tc.want) {
				t.Errorf("ReadFrom: got %v, want %v", err, tc.want)
			}
		})
	}

	var f frame
	if _, err := f.ReadFrom(bytes.NewReader([]byte("CP\x00\x02\x00\x00\x00\x00"))); err == nil {
		t.Error("ReadFrom with bad magic: got nil error")
	}
	big := frame{Type: frameData, Payload: make([]byte, MaxPayload+1)}
	if _, err := big.WriteTo(io.Discard); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("WriteTo large: got %v, want %v", err, ErrFrameTooLarge)
	}
}
