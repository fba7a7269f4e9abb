package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/klauspost/compress/s2"
)

// payloadKind records the concrete type behind an encoded payload so it can
// be converted back to V, including when V is an interface type.
type payloadKind uint8

const (
	kindPlain payloadKind = iota
	kindString
	kindBytes
)

// fixedScalarSize is the constant estimate for fixed-width scalars.
const fixedScalarSize = 8

// estimateSize approximates the in-memory footprint of v.
// Strings and byte slices count their length, fixed-width scalars a
// constant 8 bytes, anything else its JSON encoding length.
func estimateSize(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return int64(len(x))
	case []byte:
		return int64(len(x))
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64, complex64, complex128:
		return fixedScalarSize
	}
	if b, err := json.Marshal(v); err == nil {
		return int64(len(b))
	}
	return int64(len(fmt.Sprint(v)))
}

// stored is the prepared form of a value. Once stored, packed and byte
// slice values are never mutated, so a copy of this struct can be decoded
// outside the manager lock.
type stored[V any] struct {
	// val holds the value unless it is stored encoded in packed.
	val    V
	packed []byte
	kind   payloadKind
	// Estimated size of the stored form in bytes.
	size int64
	meta map[string]string
}

// encoder turns caller values into their stored form and back.
type encoder[V any] struct {
	compress  bool
	threshold int64
	sizer     func(V) int64
}

// encode copies byte slices so the tier owns them, compresses large
// string/[]byte payloads when that shrinks them, and sizes the result.
func (c encoder[V]) encode(v V) stored[V] {
	var raw []byte
	kind := kindPlain
	switch x := any(v).(type) {
	case string:
		kind = kindString
		if c.compress && int64(len(x)) > c.threshold {
			raw = []byte(x)
		}
	case []byte:
		kind = kindBytes
		raw = x
	}

	if raw != nil && c.compress && int64(len(raw)) > c.threshold {
		if enc := s2.Encode(nil, raw); len(enc) < len(raw) {
			return stored[V]{
				packed: enc,
				kind:   kind,
				size:   int64(len(enc)),
				meta: map[string]string{
					"codec":    "s2",
					"raw_size": strconv.Itoa(len(raw)),
				},
			}
		}
	}

	if kind == kindBytes {
		v = any(bytes.Clone(raw)).(V)
	}
	s := stored[V]{val: v, kind: kind}
	if c.sizer != nil {
		s.size = max(c.sizer(v), 0)
	} else {
		s.size = estimateSize(any(v))
	}
	return s
}

// decode returns a caller-owned copy of the stored value.
func (c encoder[V]) decode(s stored[V]) (V, error) {
	if s.packed == nil {
		if s.kind == kindBytes {
			return any(bytes.Clone(any(s.val).([]byte))).(V), nil
		}
		return s.val, nil
	}
	raw, err := s2.Decode(nil, s.packed)
	if err != nil {
		var zero V
		return zero, fmt.Errorf("cache: decode s2 payload: %w", err)
	}
	if s.kind == kindString {
		return any(string(raw)).(V), nil
	}
	return any(raw).(V), nil
}
