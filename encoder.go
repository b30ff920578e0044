// Copyright [2019] LinkedIn Corp. Licensed under the Apache License, Version
// 2.0 (the "License"); you may not use this file except in compliance with the
// License.  You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.

package avrofast

import (
	"encoding/binary"
	"math"
	"reflect"
)

// Symbol is a string that prefers enum variants when a union could accept
// either an enum symbol or a plain string.
type Symbol string

// EncoderConfig carries encoding options and the pooled scratch buffers used
// for record field reordering. Reusing one EncoderConfig across successive
// top-level encodes avoids allocator churn; keep it as a long-lived value
// rather than constructing one per call.
type EncoderConfig struct {
	schema *Schema

	// allowSlowSequenceToBytes permits encoding a sequence of byte-sized
	// integers into a Bytes or Fixed node, one element at a time.
	allowSlowSequenceToBytes bool

	fieldBuffers      [][]byte
	fieldSuperBuffers [][][]byte
}

// NewEncoderConfig builds an EncoderConfig for the given schema with default
// options and empty buffer pools.
func NewEncoderConfig(schema *Schema) *EncoderConfig {
	return &EncoderConfig{schema: schema}
}

// AllowSlowSequenceToBytes enables the element-at-a-time encoding of
// sequences into Bytes/Fixed nodes. It is off by default because providing a
// []byte directly is much faster.
func (c *EncoderConfig) AllowSlowSequenceToBytes() *EncoderConfig {
	c.allowSlowSequenceToBytes = true
	return c
}

func (c *EncoderConfig) getBuffer() []byte {
	if n := len(c.fieldBuffers); n > 0 {
		buf := c.fieldBuffers[n-1]
		c.fieldBuffers = c.fieldBuffers[:n-1]
		return buf
	}
	return nil
}

func (c *EncoderConfig) putBuffer(buf []byte) {
	if cap(buf) > 0 {
		c.fieldBuffers = append(c.fieldBuffers, buf[:0])
	}
}

func (c *EncoderConfig) getSuperBuffer(n int) [][]byte {
	if l := len(c.fieldSuperBuffers); l > 0 {
		super := c.fieldSuperBuffers[l-1]
		c.fieldSuperBuffers = c.fieldSuperBuffers[:l-1]
		if cap(super) >= n {
			super = super[:n]
			for i := range super {
				super[i] = nil
			}
			return super
		}
	}
	return make([][]byte, n)
}

func (c *EncoderConfig) putSuperBuffer(super [][]byte) {
	c.fieldSuperBuffers = append(c.fieldSuperBuffers, super[:0])
}

// Encoder writes native Go values as binary Avro datums conforming to a
// frozen Schema. An Encoder borrows its Schema for its whole lifetime and is
// not safe for concurrent use.
type Encoder struct {
	cfg *EncoderConfig
}

// NewEncoder builds an Encoder with a fresh default configuration.
func NewEncoder(schema *Schema) *Encoder {
	return &Encoder{cfg: NewEncoderConfig(schema)}
}

// NewEncoderWithConfig builds an Encoder sharing the given configuration
// (and therefore its buffer pools).
func NewEncoderWithConfig(cfg *EncoderConfig) *Encoder {
	return &Encoder{cfg: cfg}
}

// BinaryFromNative appends the binary encoding of datum to buf and returns
// the result.
func (e *Encoder) BinaryFromNative(buf []byte, datum interface{}) ([]byte, error) {
	return e.encodeAny(buf, e.cfg.schema.root(), datum)
}

func (e *Encoder) encodeAny(buf []byte, n *node, datum interface{}) ([]byte, error) {
	switch n.t {
	case nodeNull:
		if datum != nil {
			return nil, encodeErrorf("cannot encode binary null: expected: Go nil; received: %s", describeDatum(datum))
		}
		return buf, nil

	case nodeBoolean:
		v, ok := datum.(bool)
		if !ok {
			return nil, encodeErrorf("cannot encode binary boolean: expected: Go bool; received: %s", describeDatum(datum))
		}
		if v {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil

	case nodeInt, nodeDate, nodeTimeMillis:
		v, err := coerceInt64(datum, "int")
		if err != nil {
			return nil, err
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, encodeErrorf("cannot encode binary int: value does not fit in 32 bits: %d", v)
		}
		return appendVarint(buf, int32(v)), nil

	case nodeLong, nodeTimeMicros, nodeTimestampMillis, nodeTimestampMicros:
		v, err := coerceInt64(datum, "long")
		if err != nil {
			return nil, err
		}
		return appendVarint(buf, v), nil

	case nodeFloat:
		switch v := datum.(type) {
		case float32:
			return appendFloat32(buf, v), nil
		case float64:
			return nil, encodeErrorf("cannot encode binary float: provided Go float64 would lose precision; please provide a float32")
		default:
			i, err := coerceInt64(datum, "float")
			if err != nil {
				return nil, encodeErrorf("cannot encode binary float: expected: Go float32; received: %s", describeDatum(datum))
			}
			return appendFloat32(buf, float32(i)), nil
		}

	case nodeDouble:
		switch v := datum.(type) {
		case float64:
			return appendFloat64(buf, v), nil
		case float32:
			return appendFloat64(buf, float64(v)), nil
		default:
			i, err := coerceInt64(datum, "double")
			if err != nil {
				return nil, encodeErrorf("cannot encode binary double: expected: Go float64; received: %s", describeDatum(datum))
			}
			return appendFloat64(buf, float64(i)), nil
		}

	case nodeBytes:
		switch v := datum.(type) {
		case []byte:
			return appendLengthDelimited(buf, v), nil
		case string:
			return appendLengthDelimited(buf, []byte(v)), nil
		default:
			return e.encodeSequenceAsBytes(buf, n, datum)
		}

	case nodeString, nodeUUID:
		switch v := datum.(type) {
		case string:
			return appendLengthDelimited(buf, []byte(v)), nil
		case Symbol:
			return appendLengthDelimited(buf, []byte(v)), nil
		case []byte:
			// Accepted as a courtesy; no UTF-8 validation is performed.
			return appendLengthDelimited(buf, v), nil
		default:
			return nil, encodeErrorf("cannot encode binary string: expected: Go string; received: %s", describeDatum(datum))
		}

	case nodeFixed:
		var raw []byte
		switch v := datum.(type) {
		case []byte:
			raw = v
		case string:
			raw = []byte(v)
		default:
			return e.encodeSequenceAsBytes(buf, n, datum)
		}
		if len(raw) != n.size {
			return nil, encodeErrorf("cannot encode binary fixed %q: datum length ought to equal size: %d != %d",
				n.name.FullName(), len(raw), n.size)
		}
		return append(buf, raw...), nil

	case nodeArray:
		items, ok := asSequence(datum)
		if !ok {
			return nil, encodeErrorf("cannot encode binary array: expected: Go slice; received: %s", describeDatum(datum))
		}
		if len(items) > 0 {
			buf = appendVarint(buf, int64(len(items)))
			for _, item := range items {
				var err error
				buf, err = e.encodeAny(buf, n.child, item)
				if err != nil {
					return nil, err
				}
			}
		}
		return appendVarint(buf, int64(0)), nil

	case nodeMap:
		m, ok := datum.(map[string]interface{})
		if !ok {
			return nil, encodeErrorf("cannot encode binary map: expected: Go map[string]interface{}; received: %s", describeDatum(datum))
		}
		if len(m) > 0 {
			buf = appendVarint(buf, int64(len(m)))
			for key, value := range m {
				buf = appendLengthDelimited(buf, []byte(key))
				var err error
				buf, err = e.encodeAny(buf, n.child, value)
				if err != nil {
					return nil, err
				}
			}
		}
		return appendVarint(buf, int64(0)), nil

	case nodeRecord:
		m, ok := datum.(map[string]interface{})
		if !ok {
			return nil, encodeErrorf("cannot encode binary record %q: expected: Go map[string]interface{}; received: %s",
				n.name.FullName(), describeDatum(datum))
		}
		return e.encodeRecord(buf, n, m)

	case nodeEnum:
		switch v := datum.(type) {
		case string:
			return e.appendEnumSymbol(buf, n, v)
		case Symbol:
			return e.appendEnumSymbol(buf, n, string(v))
		default:
			i, err := coerceInt64(datum, "enum")
			if err != nil {
				return nil, encodeErrorf("cannot encode binary enum %q: expected: Go string or integer; received: %s",
					n.name.FullName(), describeDatum(datum))
			}
			if i < 0 || i >= int64(len(n.symbols)) {
				return nil, encodeErrorf("cannot encode binary enum %q: index ought to be between 0 and %d; received: %d",
					n.name.FullName(), len(n.symbols)-1, i)
			}
			return appendVarint(buf, i), nil
		}

	case nodeUnion:
		return e.encodeUnion(buf, n, datum)

	case nodeDecimal:
		dec, err := decimalFromDatum(datum)
		if err != nil {
			return nil, err
		}
		return appendDecimal(buf, n, dec)

	case nodeDuration:
		return appendDuration(buf, datum)

	default:
		return nil, encodeErrorf("cannot encode: unknown schema node type %d", n.t)
	}
}

// encodeUnion chooses a discriminant for the union. A tagged single-entry
// map is an explicit named hint; otherwise the value's broad category drives
// the pre-computed per-union table.
func (e *Encoder) encodeUnion(buf []byte, n *node, datum interface{}) ([]byte, error) {
	if m, ok := datum.(map[string]interface{}); ok && len(m) == 1 {
		for name, value := range m {
			if target, ok := n.lookupNamed(name); ok {
				buf = appendVarint(buf, target.discriminant)
				return e.encodeAny(buf, target.schema, value)
			}
		}
	}

	category, err := categoryOf(datum)
	if err != nil {
		return nil, err
	}
	target, err := n.lookupUnnamed(category)
	if err != nil {
		return nil, err
	}
	buf = appendVarint(buf, target.discriminant)
	return e.encodeAny(buf, target.schema, datum)
}

// categoryOf classifies a native value into the broad category the union
// lookup tables are keyed by.
func categoryOf(datum interface{}) (unionCategory, error) {
	switch v := datum.(type) {
	case nil:
		return catNull, nil
	case bool:
		return catBoolean, nil
	case int8, int16, int32, uint8, uint16, uint32:
		return catInteger4, nil
	case int, int64, uint, uint64:
		return catInteger8, nil
	case float32:
		return catFloat4, nil
	case float64:
		return catFloat8, nil
	case string:
		return catStr, nil
	case Symbol:
		return catUnitVariant, nil
	case []byte:
		return catSliceU8, nil
	case map[string]interface{}:
		return catStructOrMap, nil
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			return catSeqOrTuple, nil
		case reflect.Map:
			return catStructOrMap, nil
		}
		return 0, encodeErrorf("cannot encode binary union: unsupported type %s", describeDatum(datum))
	}
}

// encodeRecord streams fields arriving in declared order directly and
// serializes out-of-order arrivals into per-field scratch buffers which are
// flushed once the in-order cursor reaches them. Missing fields are
// tolerated only for always-null fields and unions whose null category
// resolves to a Null variant.
func (e *Encoder) encodeRecord(buf []byte, n *node, m map[string]interface{}) ([]byte, error) {
	scratch := e.cfg.getSuperBuffer(len(n.fields))
	defer func() {
		for i := range scratch {
			if scratch[i] != nil {
				e.cfg.putBuffer(scratch[i])
				scratch[i] = nil
			}
		}
		e.cfg.putSuperBuffer(scratch)
	}()

	seen := make([]bool, len(n.fields))
	cursor := 0

	for name, value := range m {
		idx, ok := n.fieldIndex[name]
		if !ok {
			return nil, encodeErrorf("cannot encode binary record %q: no such field: %q", n.name.FullName(), name)
		}
		if seen[idx] {
			return nil, encodeErrorf("cannot encode binary record %q: field %q specified more than once",
				n.name.FullName(), name)
		}
		seen[idx] = true

		if idx == cursor {
			var err error
			buf, err = e.encodeAny(buf, n.fields[idx].schema, value)
			if err != nil {
				return nil, err
			}
			cursor++
			// Drain any buffered fields the cursor has now reached.
			for cursor < len(n.fields) && scratch[cursor] != nil {
				buf = append(buf, scratch[cursor]...)
				e.cfg.putBuffer(scratch[cursor])
				scratch[cursor] = nil
				cursor++
			}
			continue
		}

		fieldBuf, err := e.encodeAny(e.cfg.getBuffer(), n.fields[idx].schema, value)
		if err != nil {
			return nil, err
		}
		scratch[idx] = fieldBuf
	}

	// Remaining fields were either buffered out-of-order or missing.
	for cursor < len(n.fields) {
		if scratch[cursor] != nil {
			buf = append(buf, scratch[cursor]...)
			e.cfg.putBuffer(scratch[cursor])
			scratch[cursor] = nil
			cursor++
			continue
		}
		field := &n.fields[cursor]
		switch field.schema.t {
		case nodeNull:
			// Always-null fields may be omitted.
		case nodeUnion:
			discriminant, ok := field.schema.nullVariant()
			if !ok {
				return nil, encodeErrorf("cannot encode binary record %q: missing required field %q",
					n.name.FullName(), field.name)
			}
			buf = appendVarint(buf, discriminant)
		default:
			return nil, encodeErrorf("cannot encode binary record %q: missing required field %q",
				n.name.FullName(), field.name)
		}
		cursor++
	}
	return buf, nil
}

func (e *Encoder) appendEnumSymbol(buf []byte, n *node, symbol string) ([]byte, error) {
	idx, ok := n.symbolIndex[symbol]
	if !ok {
		return nil, encodeErrorf("cannot encode binary enum %q: value ought to be member of symbols: %v; received: %q",
			n.name.FullName(), n.symbols, symbol)
	}
	return appendVarint(buf, int64(idx)), nil
}

// encodeSequenceAsBytes serializes a sequence of byte-sized integers into a
// Bytes or Fixed node, one element at a time. Opt-in because it is slow.
func (e *Encoder) encodeSequenceAsBytes(buf []byte, n *node, datum interface{}) ([]byte, error) {
	items, ok := asSequence(datum)
	if !ok {
		return nil, encodeErrorf("cannot encode binary %s: expected: Go []byte; received: %s",
			n.t, describeDatum(datum))
	}
	if !e.cfg.allowSlowSequenceToBytes {
		return nil, encodeErrorf(
			"cannot encode binary %s: sequence-to-bytes conversion is not allowed by default because it is slow; "+
				"provide a []byte, or enable it with AllowSlowSequenceToBytes on the EncoderConfig", n.t)
	}
	raw := make([]byte, len(items))
	for i, item := range items {
		v, err := coerceInt64(item, "bytes")
		if err != nil || v < 0 || v > 255 {
			return nil, encodeErrorf("cannot encode binary %s: sequence element %d is not a byte-sized integer", n.t, i)
		}
		raw[i] = byte(v)
	}
	if n.t == nodeFixed {
		if len(raw) != n.size {
			return nil, encodeErrorf("cannot encode binary fixed %q: datum length ought to equal size: %d != %d",
				n.name.FullName(), len(raw), n.size)
		}
		return append(buf, raw...), nil
	}
	return appendLengthDelimited(buf, raw), nil
}

// appendDuration encodes the duration logical type: three little-endian
// uint32 (months, days, milliseconds). Accepted inputs are a map with those
// keys, a 3-element sequence, or a pre-encoded 12-byte blob.
func appendDuration(buf []byte, datum interface{}) ([]byte, error) {
	var parts [3]uint32
	switch v := datum.(type) {
	case []byte:
		if len(v) != 12 {
			return nil, encodeErrorf("cannot encode binary duration: []byte ought to have length 12; received length %d", len(v))
		}
		return append(buf, v...), nil
	case map[string]interface{}:
		if len(v) != 3 {
			return nil, encodeErrorf("cannot encode binary duration: map fields ought to be exactly months/days/milliseconds")
		}
		for _, part := range []struct {
			key string
			idx int
		}{{"months", 0}, {"days", 1}, {"milliseconds", 2}} {
			raw, ok := v[part.key]
			if !ok {
				return nil, encodeErrorf("cannot encode binary duration: missing field %q", part.key)
			}
			u, err := coerceUint32(raw, part.key)
			if err != nil {
				return nil, err
			}
			parts[part.idx] = u
		}
	default:
		items, ok := asSequence(datum)
		if !ok || len(items) != 3 {
			return nil, encodeErrorf("cannot encode binary duration: expected: map with months/days/milliseconds, 3-element sequence, or 12-byte blob; received: %s",
				describeDatum(datum))
		}
		for i, item := range items {
			u, err := coerceUint32(item, "duration element")
			if err != nil {
				return nil, err
			}
			parts[i] = u
		}
	}
	for _, part := range parts {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], part)
		buf = append(buf, b[:]...)
	}
	return buf, nil
}

func appendLengthDelimited(buf, data []byte) []byte {
	buf = appendVarint(buf, int64(len(data)))
	return append(buf, data...)
}

func appendFloat32(buf []byte, v float32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	return append(buf, b[:]...)
}

func appendFloat64(buf []byte, v float64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	return append(buf, b[:]...)
}

// asInt64 reports datum as an int64 when it is any Go integer that fits.
func asInt64(datum interface{}) (int64, bool) {
	switch v := datum.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

// coerceInt64 accepts any Go integer, and floats with no fractional part.
func coerceInt64(datum interface{}, target string) (int64, error) {
	if v, ok := asInt64(datum); ok {
		return v, nil
	}
	switch v := datum.(type) {
	case uint, uint64:
		return 0, encodeErrorf("cannot encode binary %s: uint would overflow", target)
	case float64:
		if v != math.Trunc(v) {
			return 0, encodeErrorf("cannot encode binary %s: provided Go float64 would lose precision: %f", target, v)
		}
		return int64(v), nil
	case float32:
		if float64(v) != math.Trunc(float64(v)) {
			return 0, encodeErrorf("cannot encode binary %s: provided Go float32 would lose precision: %f", target, v)
		}
		return int64(v), nil
	}
	return 0, encodeErrorf("cannot encode binary %s: expected: Go integer; received: %s", target, describeDatum(datum))
}

func coerceUint32(datum interface{}, what string) (uint32, error) {
	if v, ok := datum.(uint32); ok {
		return v, nil
	}
	i, ok := asInt64(datum)
	if !ok || i < 0 || i > math.MaxUint32 {
		return 0, encodeErrorf("cannot encode binary duration: %s ought to be a uint32; received: %v", what, datum)
	}
	return uint32(i), nil
}

// asSequence views datum as a generic item sequence: a native
// []interface{}, or any other slice or array through reflection.
func asSequence(datum interface{}) ([]interface{}, bool) {
	if items, ok := datum.([]interface{}); ok {
		return items, true
	}
	rv := reflect.ValueOf(datum)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
