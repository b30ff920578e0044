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
	"bytes"
	"io"
	"math"
)

type ocfReaderState int

const (
	ocfNotInBlock ocfReaderState = iota
	ocfInBlock
	ocfBroken
)

// OCFReader iterates the values of an object container file: it parses the
// magic + metadata + sync header, then walks the blocked framing,
// decompressing each block with the codec the header names and verifying
// the sync marker at every block boundary.
//
// After any error the reader marks itself broken: Err reports the first
// error, and further Scan calls report end-of-stream rather than repeating
// it, so naive iteration loops terminate.
//
// When reading from a slice with the null codec, decoded byte values may
// borrow from the input slice.
type OCFReader struct {
	slice  *SliceReader
	stream *BufReader

	schema      *Schema
	decoder     *Decoder
	compression Compression
	meta        map[string][]byte
	sync        [16]byte

	state     ocfReaderState
	err       error
	remaining int64

	// In-block decoding source and codec-specific teardown state.
	blockSrc            sourceReader
	taken               *SliceReader
	limited             *io.LimitedReader
	compressedRemaining func() int64
	codecReader         io.ReadCloser
	inner               *BufReader
	snappyBuf           []byte
}

// NewOCFReader reads an object container file from a streaming source.
func NewOCFReader(ior io.Reader) (*OCFReader, error) {
	return NewOCFReaderWithConfig(ior, DecoderConfig{})
}

// NewOCFReaderWithConfig is NewOCFReader with explicit decoder bounds.
func NewOCFReaderWithConfig(ior io.Reader, cfg DecoderConfig) (*OCFReader, error) {
	r := &OCFReader{stream: NewBufReader(ior)}
	if err := r.readHeader(r.stream, cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// NewOCFReaderFromSlice reads an object container file from an in-memory
// slice, enabling borrowed outputs when the codec is null.
func NewOCFReaderFromSlice(buf []byte) (*OCFReader, error) {
	return NewOCFReaderFromSliceWithConfig(buf, DecoderConfig{})
}

// NewOCFReaderFromSliceWithConfig is NewOCFReaderFromSlice with explicit
// decoder bounds.
func NewOCFReaderFromSliceWithConfig(buf []byte, cfg DecoderConfig) (*OCFReader, error) {
	r := &OCFReader{slice: NewSliceReader(buf)}
	if err := r.readHeader(r.slice, cfg); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OCFReader) src() sourceReader {
	if r.slice != nil {
		return r.slice
	}
	return r.stream
}

func (r *OCFReader) readHeader(src sourceReader, cfg DecoderConfig) error {
	var magic [4]byte
	if err := src.readFull(magic[:]); err != nil {
		return decodeErrorf("cannot read object container file header: %s", err)
	}
	if !bytes.Equal(magic[:], ocfMagic) {
		return decodeErrorf("cannot read object container file: invalid magic: %v", magic)
	}

	meta, err := readOCFMetadata(src)
	if err != nil {
		return err
	}
	r.meta = meta

	schemaJSON, ok := meta[ocfSchemaKey]
	if !ok {
		return decodeErrorf("cannot read object container file: missing %s metadata", ocfSchemaKey)
	}
	mut, err := ParseSchema(string(schemaJSON))
	if err != nil {
		return err
	}
	schema, err := mut.Freeze()
	if err != nil {
		return err
	}
	r.schema = schema
	r.decoder = NewDecoderWithConfig(schema, cfg)

	codecID := "null"
	if raw, ok := meta[ocfCodecKey]; ok {
		codecID = string(raw)
	}
	r.compression, err = parseCompression(codecID)
	if err != nil {
		return err
	}

	if err := src.readFull(r.sync[:]); err != nil {
		return decodeErrorf("cannot read object container file header: %s", err)
	}
	return nil
}

// readOCFMetadata decodes the header's map<string, bytes> with a small
// max-sequence-size as DoS guard.
func readOCFMetadata(src sourceReader) (map[string][]byte, error) {
	meta := make(map[string][]byte)
	total := 0
	for {
		count, err := src.readVarint()
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return meta, nil
		}
		if count < 0 {
			if count == math.MinInt64 {
				return nil, decodeErrorf("cannot read object container file: malformed metadata block count")
			}
			count = -count
			if _, err := src.readVarint(); err != nil {
				return nil, err
			}
		}
		if total+int(count) > ocfMetadataMaxEntries {
			return nil, decodeErrorf("cannot read object container file: metadata has too many entries")
		}
		total += int(count)
		for i := int64(0); i < count; i++ {
			key, err := readOwnedLengthDelimited(src)
			if err != nil {
				return nil, err
			}
			value, err := readOwnedLengthDelimited(src)
			if err != nil {
				return nil, err
			}
			meta[string(key)] = value
		}
	}
}

func readOwnedLengthDelimited(src sourceReader) ([]byte, error) {
	length, err := src.readVarint()
	if err != nil {
		return nil, err
	}
	if length < 0 || length > int64(math.MaxInt32) {
		return nil, decodeErrorf("cannot read object container file: malformed metadata length: %d", length)
	}
	view, err := src.readSlice(int(length))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// Schema returns the frozen schema parsed from the file header.
func (r *OCFReader) Schema() *Schema { return r.schema }

// Compression returns the codec named by the file header.
func (r *OCFReader) Compression() Compression { return r.compression }

// Metadata returns the header metadata, including the avro.* keys.
func (r *OCFReader) Metadata() map[string][]byte { return r.meta }

// SyncMarker returns the 16-byte sync marker from the header.
func (r *OCFReader) SyncMarker() [16]byte { return r.sync }

// Err returns the first error the reader hit, if any.
func (r *OCFReader) Err() error { return r.err }

func (r *OCFReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
	r.state = ocfBroken
}

// Scan reports whether another value is available, crossing block
// boundaries as needed: it verifies the previous block's sync marker,
// peeks for end-of-file, and sets up the next block's decompression.
func (r *OCFReader) Scan() bool {
	if r.state == ocfBroken {
		return false
	}
	for r.remaining == 0 {
		if r.state == ocfInBlock {
			if err := r.finishBlock(); err != nil {
				r.fail(err)
				return false
			}
		}
		more, err := r.hasMoreInput()
		if err != nil {
			r.fail(err)
			return false
		}
		if !more {
			return false
		}
		if err := r.startBlock(); err != nil {
			r.fail(err)
			return false
		}
	}
	return true
}

// Read decodes the next value. Call only after Scan returned true.
func (r *OCFReader) Read() (interface{}, error) {
	if r.state != ocfInBlock || r.remaining <= 0 {
		return nil, decodeErrorf("cannot read object container file: Read called without successful Scan")
	}
	value, err := r.decoder.decodeAny(r.blockSrc, r.schema.root(), r.decoder.cfg.AllowedDepth, false)
	if err != nil {
		r.fail(err)
		return nil, err
	}
	r.remaining--
	return value, nil
}

func (r *OCFReader) hasMoreInput() (bool, error) {
	if r.slice != nil {
		return len(r.slice.Rest()) > 0, nil
	}
	return r.stream.hasMore()
}

func (r *OCFReader) startBlock() error {
	src := r.src()
	count, err := src.readVarint()
	if err != nil {
		return err
	}
	if count < 0 {
		return decodeErrorf("cannot read object container file: negative block object count: %d", count)
	}
	blockSize, err := src.readVarint()
	if err != nil {
		return err
	}
	if blockSize < 0 || blockSize > int64(math.MaxInt32) {
		return decodeErrorf("cannot read object container file: invalid block size: %d", blockSize)
	}
	size := int(blockSize)

	switch r.compression {
	case CompressionNull:
		if r.slice != nil {
			taken, err := r.slice.take(size)
			if err != nil {
				return err
			}
			r.taken = taken
			r.blockSrc = taken
		} else {
			r.stream.setLimit(int64(size))
			r.blockSrc = r.stream
		}

	case CompressionSnappy:
		// Snappy is decompressed in one shot; the decompression buffer is
		// reused across blocks, so decoded values must not borrow from it.
		raw, err := src.readSlice(size)
		if err != nil {
			return err
		}
		decompressed, err := decompressSnappyBlock(r.snappyBuf, raw)
		if err != nil {
			return err
		}
		r.snappyBuf = decompressed
		blockReader := NewSliceReader(decompressed)
		blockReader.forceCopy = true
		r.taken = blockReader
		r.blockSrc = blockReader

	default:
		// Streaming decompression: bound the compressed span, wrap it in
		// the codec's decoder, and buffer that for the datum decoder.
		var compressed io.Reader
		if r.slice != nil {
			raw, err := r.slice.readSlice(size)
			if err != nil {
				return err
			}
			br := bytes.NewReader(raw)
			compressed = br
			r.compressedRemaining = func() int64 { return int64(br.Len()) }
		} else {
			limited := &io.LimitedReader{R: r.stream, N: int64(size)}
			r.limited = limited
			compressed = limited
			r.compressedRemaining = func() int64 { return limited.N }
		}
		codecReader, err := newDecompressor(r.compression, compressed)
		if err != nil {
			return err
		}
		r.codecReader = codecReader
		r.inner = NewBufReader(codecReader)
		r.blockSrc = r.inner
	}

	r.remaining = count
	r.state = ocfInBlock
	return nil
}

func (r *OCFReader) finishBlock() error {
	switch r.compression {
	case CompressionNull:
		if r.slice != nil {
			if err := r.slice.finishTake(r.taken); err != nil {
				return err
			}
			r.taken = nil
		} else {
			if err := r.stream.clearLimit(); err != nil {
				return err
			}
		}

	case CompressionSnappy:
		if len(r.taken.Rest()) > 0 {
			return decodeErrorf("cannot read object container file: there's data left in the block after decoding it entirely")
		}
		r.taken = nil

	default:
		// One extra read forces the decompressor to recognize end-of-frame
		// (zstandard in particular will not consume its trailing bytes
		// otherwise) and catches trailing uncompressed data.
		more, err := r.inner.hasMore()
		if err != nil {
			return err
		}
		if more {
			return decodeErrorf("cannot read object container file: there's data left in the block after decoding it entirely")
		}
		if r.compressedRemaining() > 0 {
			return decodeErrorf("cannot read object container file: block decompression left compressed data unconsumed")
		}
		if err := r.codecReader.Close(); err != nil {
			return decodeErrorf("cannot read object container file: %s", err)
		}
		r.codecReader = nil
		r.inner = nil
		r.limited = nil
		r.compressedRemaining = nil
	}
	r.blockSrc = nil

	var sync [16]byte
	if err := r.src().readFull(sync[:]); err != nil {
		return err
	}
	if sync != r.sync {
		return decodeErrorf("cannot read object container file: incorrect sync marker at end of block")
	}
	r.state = ocfNotInBlock
	return nil
}
