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
	"unicode/utf8"
)

// DefaultMaxSeqSize caps the cumulative element count across all blocks of
// one array or map, to prevent a malformed stream from driving a runaway
// loop.
const DefaultMaxSeqSize = 1_000_000_000

// DefaultAllowedDepth is the recursion budget for one datum; it is
// decremented on each descent into an array, map, union, or record, and
// reaching zero is a decode error rather than a stack overflow.
const DefaultAllowedDepth = 64

// DecoderConfig carries the resource bounds for decoding. The zero value
// selects all defaults.
type DecoderConfig struct {
	// MaxSeqSize caps the total element count of one array or map across
	// all of its blocks. Default DefaultMaxSeqSize.
	MaxSeqSize int
	// AllowedDepth is the recursion budget. Default DefaultAllowedDepth.
	AllowedDepth int
}

func (c DecoderConfig) withDefaults() DecoderConfig {
	if c.MaxSeqSize == 0 {
		c.MaxSeqSize = DefaultMaxSeqSize
	}
	if c.AllowedDepth == 0 {
		c.AllowedDepth = DefaultAllowedDepth
	}
	return c
}

// Decoder decodes binary Avro datums conforming to a frozen Schema into
// native Go values. A Decoder borrows its Schema for its whole lifetime and
// is not safe for concurrent use.
//
// The datum must have been written with the same schema it is being read
// with; this library performs no reader-vs-writer schema resolution.
type Decoder struct {
	schema *Schema
	cfg    DecoderConfig
}

// NewDecoder builds a Decoder with default configuration.
func NewDecoder(schema *Schema) *Decoder {
	return NewDecoderWithConfig(schema, DecoderConfig{})
}

// NewDecoderWithConfig builds a Decoder with explicit resource bounds.
func NewDecoderWithConfig(schema *Schema, cfg DecoderConfig) *Decoder {
	return &Decoder{schema: schema, cfg: cfg.withDefaults()}
}

// NativeFromBinary decodes one datum from buf, returning the decoded value
// and the unconsumed remainder of buf. Byte-typed values in the result may
// borrow from buf.
//
// On error the returned byte slice is the original buf; the amount actually
// consumed is indeterminate.
func (d *Decoder) NativeFromBinary(buf []byte) (interface{}, []byte, error) {
	r := NewSliceReader(buf)
	value, err := d.decodeAny(r, d.schema.root(), d.cfg.AllowedDepth, false)
	if err != nil {
		return nil, buf, err
	}
	return value, r.Rest(), nil
}

// NativeFromReader decodes one datum from a streaming reader. All values in
// the result are owned.
func (d *Decoder) NativeFromReader(r *BufReader) (interface{}, error) {
	return d.decodeAny(r, d.schema.root(), d.cfg.AllowedDepth, false)
}

// SkipFromBinary consumes one datum from buf without materializing it,
// returning the unconsumed remainder. String contents are not UTF-8
// validated and array/map blocks with byte-size hints are skipped wholesale.
func (d *Decoder) SkipFromBinary(buf []byte) ([]byte, error) {
	r := NewSliceReader(buf)
	if _, err := d.decodeAny(r, d.schema.root(), d.cfg.AllowedDepth, true); err != nil {
		return buf, err
	}
	return r.Rest(), nil
}

func (d *Decoder) decodeAny(r sourceReader, n *node, depth int, skip bool) (interface{}, error) {
	switch n.t {
	case nodeNull:
		return nil, nil
	case nodeBoolean:
		var b [1]byte
		if err := r.readFull(b[:]); err != nil {
			return nil, err
		}
		switch b[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, decodeErrorf("cannot decode binary boolean: expected byte 0 or 1; received: %d", b[0])
		}
	case nodeInt, nodeDate, nodeTimeMillis:
		v, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, decodeErrorf("cannot decode binary int: value does not fit in 32 bits: %d", v)
		}
		return int32(v), nil
	case nodeLong, nodeTimeMicros, nodeTimestampMillis, nodeTimestampMicros:
		return r.readVarint()
	case nodeFloat:
		var b [4]byte
		if err := r.readFull(b[:]); err != nil {
			return nil, err
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(b[:])), nil
	case nodeDouble:
		var b [8]byte
		if err := r.readFull(b[:]); err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), nil
	case nodeBytes:
		b, err := d.readLengthDelimited(r)
		if err != nil {
			return nil, err
		}
		if skip {
			return nil, nil
		}
		if r.borrowed() {
			return b, nil
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case nodeString, nodeUUID:
		b, err := d.readLengthDelimited(r)
		if err != nil {
			return nil, err
		}
		if skip {
			return nil, nil
		}
		if !utf8.Valid(b) {
			return nil, decodeErrorf("cannot decode binary string: invalid UTF-8")
		}
		return string(b), nil
	case nodeArray:
		if depth <= 0 {
			return nil, decodeErrorf("cannot decode: recursion limit reached")
		}
		var items []interface{}
		err := d.decodeBlocks(r, skip, func() error {
			item, err := d.decodeAny(r, n.child, depth-1, skip)
			if err != nil {
				return err
			}
			if !skip {
				items = append(items, item)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if skip {
			return nil, nil
		}
		if items == nil {
			items = []interface{}{}
		}
		return items, nil
	case nodeMap:
		if depth <= 0 {
			return nil, decodeErrorf("cannot decode: recursion limit reached")
		}
		var m map[string]interface{}
		if !skip {
			m = make(map[string]interface{})
		}
		err := d.decodeBlocks(r, skip, func() error {
			keyBytes, err := d.readLengthDelimited(r)
			if err != nil {
				return err
			}
			if !skip && !utf8.Valid(keyBytes) {
				return decodeErrorf("cannot decode binary map key: invalid UTF-8")
			}
			key := string(keyBytes)
			value, err := d.decodeAny(r, n.child, depth-1, skip)
			if err != nil {
				return err
			}
			if !skip {
				m[key] = value
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case nodeUnion:
		if depth <= 0 {
			return nil, decodeErrorf("cannot decode: recursion limit reached")
		}
		discriminant, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		if discriminant < 0 || discriminant >= int64(len(n.variants)) {
			return nil, decodeErrorf("cannot decode binary union: index ought to be between 0 and %d; read index: %d",
				len(n.variants)-1, discriminant)
		}
		variant := n.variants[discriminant]
		value, err := d.decodeAny(r, variant, depth-1, skip)
		if err != nil {
			return nil, err
		}
		if skip || variant.t == nodeNull {
			return nil, nil
		}
		// A binary [null, X] union decodes to the bare value; anything else
		// gets the tagged single-entry-map form so the variant survives a
		// round trip.
		if len(n.variants) == 2 {
			other := n.variants[1-discriminant]
			if other.t == nodeNull {
				return value, nil
			}
		}
		return taggedUnionValue(n.variantNames[discriminant], value), nil
	case nodeRecord:
		if depth <= 0 {
			return nil, decodeErrorf("cannot decode: recursion limit reached")
		}
		var m map[string]interface{}
		if !skip {
			m = make(map[string]interface{}, len(n.fields))
		}
		for i := range n.fields {
			field := &n.fields[i]
			value, err := d.decodeAny(r, field.schema, depth-1, skip)
			if err != nil {
				return nil, err
			}
			if !skip {
				m[field.name] = value
			}
		}
		return m, nil
	case nodeEnum:
		discriminant, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		if discriminant < 0 || discriminant >= int64(len(n.symbols)) {
			return nil, decodeErrorf("cannot decode binary enum %q: index ought to be between 0 and %d; read index: %d",
				n.name.FullName(), len(n.symbols)-1, discriminant)
		}
		return n.symbols[discriminant], nil
	case nodeFixed:
		b, err := r.readSlice(n.size)
		if err != nil {
			return nil, err
		}
		if skip {
			return nil, nil
		}
		if r.borrowed() {
			return b, nil
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case nodeDecimal:
		return d.decodeDecimal(r, n, skip)
	case nodeDuration:
		var b [12]byte
		if err := r.readFull(b[:]); err != nil {
			return nil, err
		}
		if skip {
			return nil, nil
		}
		return map[string]interface{}{
			"months":       binary.LittleEndian.Uint32(b[0:4]),
			"days":         binary.LittleEndian.Uint32(b[4:8]),
			"milliseconds": binary.LittleEndian.Uint32(b[8:12]),
		}, nil
	default:
		return nil, decodeErrorf("cannot decode: unknown schema node type %d", n.t)
	}
}

// readLengthDelimited reads a zig-zag length prefix then that many bytes.
// Negative lengths are forbidden at this layer.
func (d *Decoder) readLengthDelimited(r sourceReader) ([]byte, error) {
	length, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, decodeErrorf("cannot decode binary data: negative length: %d", length)
	}
	if length > int64(math.MaxInt32) {
		return nil, decodeErrorf("cannot decode binary data: length overflows: %d", length)
	}
	return r.readSlice(int(length))
}

// decodeBlocks drives the array/map block protocol: a zig-zag count N per
// block, zero terminating the sequence, negative meaning |N| items preceded
// by a byte-size hint. The cumulative element count is checked against
// MaxSeqSize. In skip mode, blocks carrying a byte-size hint are skipped
// wholesale without decoding items.
func (d *Decoder) decodeBlocks(r sourceReader, skip bool, each func() error) error {
	total := 0
	for {
		count, err := r.readVarint()
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		var blockSize int64 = -1
		if count < 0 {
			if count == math.MinInt64 {
				return decodeErrorf("cannot decode binary block count: overflows: %d", count)
			}
			count = -count
			blockSize, err = r.readVarint()
			if err != nil {
				return err
			}
			if blockSize < 0 {
				return decodeErrorf("cannot decode binary block size: negative size: %d", blockSize)
			}
		}
		if count > int64(d.cfg.MaxSeqSize)-int64(total) {
			return decodeErrorf("cannot decode binary data: block count exceeds maximum sequence size: %d", count)
		}
		total += int(count)
		if skip && blockSize >= 0 {
			if blockSize > int64(math.MaxInt32) {
				return decodeErrorf("cannot decode binary block size: overflows: %d", blockSize)
			}
			if _, err := r.readSlice(int(blockSize)); err != nil {
				return err
			}
			continue
		}
		for i := int64(0); i < count; i++ {
			if err := each(); err != nil {
				return err
			}
		}
	}
}
