// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package tcpnet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxPayload is the largest payload a frame may carry.
const MaxPayload = 16 << 20

// ErrFrameTooLarge is reported when a frame header announces a payload
// larger than MaxPayload, or a send exceeds it.
var ErrFrameTooLarge = errors.New("tcpnet: frame too large")

// frameType identifies the purpose of a frame.
type frameType byte

const (
	frameHello frameType = 1 + iota // payload: the ID of the sender
	frameData                       // payload: an application payload
	frameBye                        // the sender is closing; no payload
)

func (t frameType) String() string {
	switch t {
	case frameHello:
		return "hello"
	case frameData:
		return "data"
	case frameBye:
		return "bye"
	default:
		return fmt.Sprintf("frame:%d", byte(t))
	}
}

const protocolVersion = 0

// A frame is the unit of transmission on a connection. Its binary format is
// an 8-byte header followed by the payload:
//
//	'P' 'H' <version> <type> <length:4, big-endian>
type frame struct {
	Type    frameType
	Payload []byte
}

// WriteTo writes f to w in binary format. It satisfies io.WriterTo.
func (f *frame) WriteTo(w io.Writer) (int64, error) {
	if len(f.Payload) > MaxPayload {
		return 0, ErrFrameTooLarge
	}
	buf := [8]byte{'P', 'H', protocolVersion, byte(f.Type)}
	binary.BigEndian.PutUint32(buf[4:], uint32(len(f.Payload)))
	nw, err := w.Write(buf[:])
	if err == nil && len(f.Payload) != 0 {
		var np int
		np, err = w.Write(f.Payload)
		nw += np
	}
	return int64(nw), err
}

// ReadFrom reads a frame from r in binary format. It satisfies io.ReaderFrom.
// If r is exhausted before the header begins, the error wraps io.EOF.
func (f *frame) ReadFrom(r io.Reader) (int64, error) {
	var buf [8]byte
	nr, err := io.ReadFull(r, buf[:])
	if err != nil {
		return int64(nr), fmt.Errorf("short frame header: %w", err)
	}
	if p := string(buf[:3]); p != "PH\x00" {
		return int64(nr), fmt.Errorf("invalid protocol version %q", p)
	}
	f.Type = frameType(buf[3])

	f.Payload = nil
	psize := binary.BigEndian.Uint32(buf[4:])
	if psize > MaxPayload {
		return int64(nr), fmt.Errorf("payload of %d bytes: %w", psize, ErrFrameTooLarge)
	} else if psize > 0 {
		f.Payload = make([]byte, int(psize))
		var np int
		np, err = io.ReadFull(r, f.Payload)
		nr += np
		if err != nil {
			err = fmt.Errorf("short payload: %w", err)
		}
	}
	return int64(nr), err
}
