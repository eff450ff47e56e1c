// Package codec provides the canonical binary encoding used for every
// persisted record in the vault engine. All collection modules pass their
// domain values through Marshal/Unmarshal before touching a region; no
// in-memory structure is ever written to the backing store in any other
// form.
package codec

import (
	"bytes"
	"fmt"

	msgpack "github.com/hashicorp/go-msgpack/v2/codec"
)

// handle is shared across all Marshal/Unmarshal calls so that encoding
// decisions (struct field order, map key ordering) stay identical for the
// lifetime of the process. A MessagePack handle is self-describing and
// canonical for Go struct values: fields are written in declaration order
// and there is no ambiguity in decoding, which is what gives the engine
// its "encode then decode equals the original" round-trip law (see
// SPEC_FULL.md §8).
var handle = func() *msgpack.MsgpackHandle {
	h := &msgpack.MsgpackHandle{}
	h.Canonical = true
	h.WriteExt = true
	return h
}()

// Marshal encodes v into its canonical binary form.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf, handle)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data produced by Marshal into v, which must be a
// pointer to the original record type.
func Unmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data), handle)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("codec: unmarshal: %w", err)
	}
	return nil
}
