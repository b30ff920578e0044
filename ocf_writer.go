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
	"crypto/rand"
	"io"
)

// OCFConfig configures an OCFWriter.
type OCFConfig struct {
	// W receives the object container file. Required.
	W io.Writer

	// Schema is the frozen schema every appended datum conforms to.
	// Required.
	Schema *Schema

	// Compression selects the block codec. Default CompressionNull.
	Compression Compression

	// CompressionLevel is an opaque 1..9 level (1..22 for zstandard), or
	// CompressionLevelDefault for the library default. Out-of-range levels
	// are clipped to the codec's supported maximum.
	CompressionLevel int

	// ApproxBlockSize is the uncompressed block size threshold at which a
	// block is flushed. Default DefaultApproxBlockSize.
	ApproxBlockSize int

	// SyncMarker pins the 16-byte sync marker, e.g. for reproducible
	// output; nil picks a random one.
	SyncMarker *[16]byte

	// UserMetadata is embedded in the header next to the avro.* keys, which
	// it may not override.
	UserMetadata map[string][]byte

	// EncoderConfig, when non-nil, supplies encoding options and shared
	// buffer pools.
	EncoderConfig *EncoderConfig
}

// WriteAll writes values as a complete object container file in one call:
// header, blocks compressed with the given codec, and the final flush.
func WriteAll(w io.Writer, schema *Schema, compression Compression, values []interface{}) error {
	ocf, err := NewOCFWriter(OCFConfig{W: w, Schema: schema, Compression: compression})
	if err != nil {
		return err
	}
	if err := ocf.Append(values); err != nil {
		return err
	}
	return ocf.Close()
}

// OCFWriter writes an object container file: the header is emitted on
// construction, appended datums accumulate in an in-progress block, and
// blocks are compressed and flushed once the size threshold is crossed (or
// on FinishBlock/Close).
//
// Call Close to flush the final block and observe any pending I/O failure.
type OCFWriter struct {
	w               io.Writer
	schema          *Schema
	encoder         *Encoder
	compression     Compression
	level           int
	approxBlockSize int
	sync            [16]byte

	block []byte
	count int64
	out   []byte
	err   error
}

// NewOCFWriter validates the configuration and immediately writes the file
// header: magic, metadata map (schema JSON, codec identifier, user
// metadata), and sync marker.
func NewOCFWriter(cfg OCFConfig) (*OCFWriter, error) {
	if cfg.W == nil {
		return nil, encodeErrorf("cannot create object container file writer: W ought to be non-nil")
	}
	if cfg.Schema == nil {
		return nil, encodeErrorf("cannot create object container file writer: Schema ought to be non-nil")
	}

	w := &OCFWriter{
		w:               cfg.W,
		schema:          cfg.Schema,
		compression:     cfg.Compression,
		level:           cfg.Compression.clipLevel(cfg.CompressionLevel),
		approxBlockSize: cfg.ApproxBlockSize,
	}
	if w.approxBlockSize <= 0 {
		w.approxBlockSize = DefaultApproxBlockSize
	}
	if cfg.EncoderConfig != nil {
		w.encoder = NewEncoderWithConfig(cfg.EncoderConfig)
	} else {
		w.encoder = NewEncoder(cfg.Schema)
	}
	if cfg.SyncMarker != nil {
		w.sync = *cfg.SyncMarker
	} else if _, err := rand.Read(w.sync[:]); err != nil {
		return nil, encodeErrorf("cannot create object container file writer: %s", err)
	}

	header := append([]byte{}, ocfMagic...)
	entries := 2 + len(cfg.UserMetadata)
	header = appendVarint(header, int64(entries))
	header = appendLengthDelimited(header, []byte(ocfSchemaKey))
	header = appendLengthDelimited(header, []byte(cfg.Schema.JSON()))
	header = appendLengthDelimited(header, []byte(ocfCodecKey))
	header = appendLengthDelimited(header, []byte(w.compression.String()))
	for key, value := range cfg.UserMetadata {
		if key == ocfSchemaKey || key == ocfCodecKey {
			return nil, encodeErrorf("cannot create object container file writer: user metadata may not override %q", key)
		}
		header = appendLengthDelimited(header, []byte(key))
		header = appendLengthDelimited(header, value)
	}
	header = appendVarint(header, int64(0))
	header = append(header, w.sync[:]...)

	if _, err := cfg.W.Write(header); err != nil {
		return nil, encodeErrorf("cannot write object container file header: %s", err)
	}
	return w, nil
}

// SyncMarker returns the sync marker in use.
func (w *OCFWriter) SyncMarker() [16]byte { return w.sync }

// Schema returns the schema the writer encodes with.
func (w *OCFWriter) Schema() *Schema { return w.schema }

// Append serializes each value into the in-progress block, flushing
// whenever the block size threshold is crossed. On a serialization failure
// the block is truncated back to its pre-attempt length, so already-queued
// values are unaffected.
func (w *OCFWriter) Append(values []interface{}) error {
	if w.err != nil {
		return w.err
	}
	for _, value := range values {
		before := len(w.block)
		block, err := w.encoder.BinaryFromNative(w.block, value)
		if err != nil {
			w.block = w.block[:before]
			return err
		}
		w.block = block
		w.count++
		if len(w.block) >= w.approxBlockSize {
			if err := w.flushBlock(); err != nil {
				return err
			}
		}
	}
	return nil
}

// PushSerialized appends an already-encoded run of count datums produced
// with the same schema, e.g. by an encoder running on another goroutine.
func (w *OCFWriter) PushSerialized(count int, data []byte) error {
	if w.err != nil {
		return w.err
	}
	if count < 0 {
		return encodeErrorf("cannot write object container file: negative serialized datum count: %d", count)
	}
	w.block = append(w.block, data...)
	w.count += int64(count)
	if len(w.block) >= w.approxBlockSize {
		return w.flushBlock()
	}
	return nil
}

// FinishBlock flushes the in-progress block, if any.
func (w *OCFWriter) FinishBlock() error {
	if w.err != nil {
		return w.err
	}
	if w.count == 0 {
		return nil
	}
	return w.flushBlock()
}

// Close flushes the final block. It does not close the underlying writer.
func (w *OCFWriter) Close() error {
	if err := w.FinishBlock(); err != nil {
		return err
	}
	return w.err
}

func (w *OCFWriter) flushBlock() error {
	compressed, err := compressBlock(nil, w.compression, w.level, w.block)
	if err != nil {
		w.err = err
		return err
	}

	w.out = w.out[:0]
	w.out = appendVarint(w.out, w.count)
	w.out = appendVarint(w.out, int64(len(compressed)))
	w.out = append(w.out, compressed...)
	w.out = append(w.out, w.sync[:]...)

	if _, err := w.w.Write(w.out); err != nil {
		w.err = encodeErrorf("cannot write object container file block: %s", err)
		return w.err
	}
	w.block = w.block[:0]
	w.count = 0
	return nil
}
