// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// cborTrue is the encoding of the CBOR simple value true.
var cborTrue = cbor.RawMessage{0xf5}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a codec for CBOR map payloads using canonical encoding. A
// payload marked for relay is re-encoded canonically.
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

// MustCBOR is as CBOR, but panics if the codec cannot be constructed.
func MustCBOR() Codec {
	c, err := CBOR()
	if err != nil {
		panic(err)
	}
	return c
}

func (c cborCodec) ContentType() string { return "application/cbor" }

func (c cborCodec) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }

func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

func (c cborCodec) IsRelay(data []byte) bool {
	var m map[string]cbor.RawMessage
	if err := c.dec.Unmarshal(data, &m); err != nil {
		return false
	}
	raw, ok := m[RelayField]
	if !ok {
		return false
	}
	var v bool
	return c.dec.Unmarshal(raw, &v) == nil && v
}

func (c cborCodec) MarkRelay(data []byte) ([]byte, error) {
	var m map[string]cbor.RawMessage
	if err := c.dec.Unmarshal(data, &m); err != nil || m == nil {
		return nil, ErrNotObject
	}
	m[RelayField] = cborTrue
	return c.enc.Marshal(m)
}
