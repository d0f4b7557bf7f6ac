// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"bytes"
	"encoding/json"

	"github.com/buger/jsonparser"
)

type jsonCodec struct{}

// JSON returns a codec for JSON object payloads. The relay marker is checked
// and set without re-encoding the payload.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) IsRelay(data []byte) bool {
	if !isObject(data) {
		return false
	}
	ok, err := jsonparser.GetBoolean(data, RelayField)
	return err == nil && ok
}

func (jsonCodec) MarkRelay(data []byte) ([]byte, error) {
	if !isObject(data) {
		return nil, ErrNotObject
	}
	if bytes.Equal(bytes.Join(bytes.Fields(data), nil), []byte("{}")) {
		return []byte(`{"` + RelayField + `":true}`), nil
	}
	return jsonparser.Set(bytes.Clone(data), []byte("true"), RelayField)
}

// isObject reports whether data looks like a JSON object.
func isObject(data []byte) bool {
	t := bytes.TrimSpace(data)
	return len(t) >= 2 && t[0] == '{' && t[len(t)-1] == '}'
}
