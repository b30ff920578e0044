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
	"io"

	"golang.org/x/exp/constraints"
)

// maxVarintBytes is the longest legal zig-zag varint for a 64-bit value.
const maxVarintBytes = 10

// DefaultMaxAllocSize caps the scratch allocation a BufReader will make for
// a single field (string, bytes, fixed); a safeguard against malformed data
// advertising absurd lengths.
const DefaultMaxAllocSize = 512 * 1024 * 1024

// sourceReader abstracts reading a datum from a slice (zero-copy) or from a
// buffered stream behind one interface. The decoder is written against it.
//
// Slices returned by readSlice are only valid until the next read unless
// borrowed reports true.
type sourceReader interface {
	readVarint() (int64, error)
	readSlice(n int) ([]byte, error)
	readFull(p []byte) error
	borrowed() bool
}

// zigzag decodes the unsigned varint accumulation into a signed value.
func zigzag(ux uint64) int64 {
	return int64(ux>>1) ^ -int64(ux&1)
}

// appendVarint appends the zig-zag varint encoding of v; every integer the
// encoder emits (longs, lengths, discriminants, block counts) goes through
// here.
func appendVarint[T constraints.Signed](buf []byte, v T) []byte {
	ux := uint64(int64(v)) << 1
	if v < 0 {
		ux = ^ux
	}
	for ux >= 0x80 {
		buf = append(buf, byte(ux)|0x80)
		ux >>= 7
	}
	return append(buf, byte(ux))
}

// SliceReader reads a datum from an in-memory byte slice. Byte-typed values
// decoded through it may borrow from the input.
type SliceReader struct {
	buf []byte
	pos int
	// forceCopy marks the backing slice as transient (e.g. a reused
	// decompression buffer), so decoded byte values must not alias it.
	forceCopy bool
}

// NewSliceReader wraps buf for decoding.
func NewSliceReader(buf []byte) *SliceReader {
	return &SliceReader{buf: buf}
}

// Rest returns the input bytes not yet consumed.
func (r *SliceReader) Rest() []byte { return r.buf[r.pos:] }

func (r *SliceReader) borrowed() bool { return !r.forceCopy }

func (r *SliceReader) readVarint() (int64, error) {
	var ux uint64
	var shift uint
	for i := 0; ; i++ {
		if r.pos >= len(r.buf) {
			return 0, decodeErrorf("cannot decode binary varint: all bytes have MSB set (reached EOF)")
		}
		if i >= maxVarintBytes {
			return 0, decodeErrorf("cannot decode binary varint: value overflows 64 bits")
		}
		b := r.buf[r.pos]
		r.pos++
		ux |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return zigzag(ux), nil
		}
		shift += 7
	}
}

func (r *SliceReader) readSlice(n int) ([]byte, error) {
	if n > len(r.buf)-r.pos {
		return nil, decodeErrorf("cannot decode binary data: short buffer")
	}
	out := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *SliceReader) readFull(p []byte) error {
	b, err := r.readSlice(len(p))
	if err != nil {
		return err
	}
	copy(p, b)
	return nil
}

// take splits off a reader confined to the next n bytes; the parent must not
// be used until finishTake.
func (r *SliceReader) take(n int) (*SliceReader, error) {
	if n > len(r.buf)-r.pos {
		return nil, decodeErrorf("cannot decode block: read block size larger than remaining input")
	}
	return NewSliceReader(r.buf[r.pos : r.pos+n : r.pos+n]), nil
}

// finishTake asserts the taken reader consumed its whole span, then advances
// past it.
func (r *SliceReader) finishTake(taken *SliceReader) error {
	if taken.pos != len(taken.buf) {
		return decodeErrorf("cannot decode block: there's data left in the block after decoding it entirely")
	}
	r.pos += len(taken.buf)
	return nil
}

// BufReader reads a datum from an arbitrary streaming source through an
// internal buffer. Values decoded through it never borrow from the input.
//
// An optional byte limit bounds consumption, which is how the object
// container file confines decoding to one block.
type BufReader struct {
	r       io.Reader
	buf     []byte
	pos     int
	end     int
	scratch []byte
	err     error

	// MaxAllocSize caps the scratch allocation for a single field. Default
	// DefaultMaxAllocSize.
	MaxAllocSize int

	// limit is the number of bytes still allowed to be consumed, or -1 for
	// unlimited. Buffered bytes beyond the limit stay available once the
	// limit is lifted.
	limit int64
}

// NewBufReader wraps a streaming source for decoding.
func NewBufReader(r io.Reader) *BufReader {
	return &BufReader{
		r:            r,
		buf:          make([]byte, 8*1024),
		MaxAllocSize: DefaultMaxAllocSize,
		limit:        -1,
	}
}

func (r *BufReader) borrowed() bool { return false }

func (r *BufReader) buffered() int { return r.end - r.pos }

// fill reads more data from the underlying source into the buffer. It
// returns io.EOF only when no data at all is buffered.
func (r *BufReader) fill() error {
	if r.buffered() > 0 {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	r.pos, r.end = 0, 0
	for {
		n, err := r.r.Read(r.buf)
		if n > 0 {
			r.end = n
			return nil
		}
		if err != nil {
			r.err = err
			return err
		}
	}
}

// hasMore reports whether at least one more byte can be read; used by the
// OCF reader to peek for end-of-file between blocks.
func (r *BufReader) hasMore() (bool, error) {
	if r.buffered() > 0 {
		return true, nil
	}
	err := r.fill()
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, decodeErrorf("cannot read: %s", err)
	}
	return true, nil
}

func (r *BufReader) readByte() (byte, error) {
	if r.limit == 0 {
		return 0, decodeErrorf("cannot decode binary data: short buffer")
	}
	if r.buffered() == 0 {
		if err := r.fill(); err != nil {
			if err == io.EOF {
				return 0, decodeErrorf("cannot decode binary data: short buffer")
			}
			return 0, decodeErrorf("cannot read: %s", err)
		}
	}
	b := r.buf[r.pos]
	r.pos++
	if r.limit > 0 {
		r.limit--
	}
	return b, nil
}

func (r *BufReader) readVarint() (int64, error) {
	// Fast path: decode directly from the buffered chunk.
	if n := r.buffered(); n > 0 {
		max := n
		if max > maxVarintBytes {
			max = maxVarintBytes
		}
		var ux uint64
		var shift uint
		for i := 0; i < max; i++ {
			b := r.buf[r.pos+i]
			ux |= uint64(b&0x7f) << shift
			if b&0x80 == 0 {
				if r.limit >= 0 {
					if int64(i+1) > r.limit {
						return 0, decodeErrorf("cannot decode binary data: short buffer")
					}
					r.limit -= int64(i + 1)
				}
				r.pos += i + 1
				return zigzag(ux), nil
			}
			shift += 7
		}
		if n >= maxVarintBytes {
			return 0, decodeErrorf("cannot decode binary varint: value overflows 64 bits")
		}
	}
	// The varint straddles a buffer boundary: read byte by byte.
	var ux uint64
	var shift uint
	for i := 0; ; i++ {
		if i >= maxVarintBytes {
			return 0, decodeErrorf("cannot decode binary varint: value overflows 64 bits")
		}
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		ux |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return zigzag(ux), nil
		}
		shift += 7
	}
}

func (r *BufReader) readSlice(n int) ([]byte, error) {
	if r.limit >= 0 && int64(n) > r.limit {
		return nil, decodeErrorf("cannot decode binary data: short buffer")
	}
	if r.buffered() == 0 && n <= len(r.buf) {
		// Top up so small reads stay on the no-copy path.
		_ = r.fill()
	}
	if n <= r.buffered() {
		out := r.buf[r.pos : r.pos+n]
		r.pos += n
		if r.limit > 0 {
			r.limit -= int64(n)
		}
		return out, nil
	}
	// The requested span straddles the buffer boundary: copy into scratch.
	if n > r.MaxAllocSize {
		return nil, decodeErrorf(
			"cannot decode binary data: allocation size that would be required (%d) is larger than allowed (%d); this is probably due to malformed data",
			n, r.MaxAllocSize)
	}
	if cap(r.scratch) < n {
		r.scratch = make([]byte, n)
	}
	scratch := r.scratch[:n]
	have := copy(scratch, r.buf[r.pos:r.end])
	r.pos = r.end
	if _, err := io.ReadFull(r.r, scratch[have:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, decodeErrorf("cannot decode binary data: short buffer")
		}
		return nil, decodeErrorf("cannot read: %s", err)
	}
	if r.limit > 0 {
		r.limit -= int64(n)
	}
	return scratch, nil
}

func (r *BufReader) readFull(p []byte) error {
	b, err := r.readSlice(len(p))
	if err != nil {
		return err
	}
	copy(p, b)
	return nil
}

// setLimit confines subsequent reads to the next n bytes.
func (r *BufReader) setLimit(n int64) { r.limit = n }

// clearLimit asserts the confined span was fully consumed, then lifts the
// limit.
func (r *BufReader) clearLimit() error {
	if r.limit > 0 {
		return decodeErrorf("cannot decode block: there's data left in the block after decoding it entirely")
	}
	r.limit = -1
	return nil
}

// Read implements io.Reader so a BufReader can feed a decompressor while
// block accounting happens at an outer layer.
func (r *BufReader) Read(p []byte) (int, error) {
	if r.buffered() == 0 {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.buf[r.pos:r.end])
	r.pos += n
	return n, nil
}
