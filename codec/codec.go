// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package codec defines payload encodings for peerhub sessions.
//
// A session treats payloads as opaque bytes. The only structure it relies on
// is the relay marker, a top-level field named [RelayField] whose value is
// true. A [Codec] knows how to detect and apply that marker for its encoding
// without disturbing the rest of the payload.
//
// Two codecs are provided:
//
//   - [JSON] encodes values as JSON objects. The marker is read and written in
//     place, so the remaining bytes of a payload are preserved exactly.
//   - [CBOR] encodes values as canonical CBOR maps.
//
// Use [Decode] to recover a typed value from a payload:
//
//	msg, err := codec.Decode[Chat](codec.JSON(), data)
package codec

import (
	"errors"
	"fmt"
)

// RelayField is the name of the top-level field carrying the relay marker.
const RelayField = "_relay"

// ErrNotObject is reported by MarkRelay when a payload is not an object or
// map, and so cannot carry a marker field.
var ErrNotObject = errors.New("codec: payload is not an object")

// A Codec marshals values to payloads and recognizes the relay marker.
// Implementations must be safe for concurrent use.
type Codec interface {
	// ContentType reports a MIME type for the encoding.
	ContentType() string

	// Marshal encodes v as a payload.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes a payload into v.
	Unmarshal(data []byte, v any) error

	// IsRelay reports whether data carries the relay marker. Malformed
	// payloads are not relay payloads.
	IsRelay(data []byte) bool

	// MarkRelay returns a copy of data with the relay marker set.
	MarkRelay(data []byte) ([]byte, error)
}

// Decode decodes data into a new value of type T using c.
func Decode[T any](c Codec, data []byte) (T, error) {
	var v T
	if err := c.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

// Encode marshals v with c, and adds the relay marker if relay is true.
func Encode(c Codec, v any, relay bool) ([]byte, error) {
	data, err := c.Marshal(v)
	if err != nil {
		return nil, err
	}
	if relay {
		return c.MarkRelay(data)
	}
	return data, nil
}
