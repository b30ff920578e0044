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
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// compressBlock compresses one uncompressed OCF block payload, appending to
// dst. The snappy framing is the raw block followed by the 4-byte big-endian
// CRC32 of the uncompressed data; the other codecs are plain streams.
func compressBlock(dst []byte, compression Compression, level int, payload []byte) ([]byte, error) {
	switch compression {
	case CompressionNull:
		return append(dst, payload...), nil

	case CompressionSnappy:
		compressed := snappy.Encode(nil, payload)
		dst = append(dst, compressed...)
		var crc [4]byte
		binary.BigEndian.PutUint32(crc[:], crc32.ChecksumIEEE(payload))
		return append(dst, crc[:]...), nil

	case CompressionDeflate:
		flateLevel := flate.DefaultCompression
		if level != CompressionLevelDefault {
			flateLevel = level
		}
		var out bytes.Buffer
		fw, err := flate.NewWriter(&out, flateLevel)
		if err != nil {
			return nil, encodeErrorf("cannot compress block with deflate: %s", err)
		}
		if _, err := fw.Write(payload); err != nil {
			return nil, encodeErrorf("cannot compress block with deflate: %s", err)
		}
		if err := fw.Close(); err != nil {
			return nil, encodeErrorf("cannot compress block with deflate: %s", err)
		}
		return append(dst, out.Bytes()...), nil

	case CompressionBzip2:
		var config *bzip2.WriterConfig
		if level != CompressionLevelDefault {
			config = &bzip2.WriterConfig{Level: level}
		}
		var out bytes.Buffer
		bw, err := bzip2.NewWriter(&out, config)
		if err != nil {
			return nil, encodeErrorf("cannot compress block with bzip2: %s", err)
		}
		if _, err := bw.Write(payload); err != nil {
			return nil, encodeErrorf("cannot compress block with bzip2: %s", err)
		}
		if err := bw.Close(); err != nil {
			return nil, encodeErrorf("cannot compress block with bzip2: %s", err)
		}
		return append(dst, out.Bytes()...), nil

	case CompressionXz:
		var out bytes.Buffer
		xw, err := xz.NewWriter(&out)
		if err != nil {
			return nil, encodeErrorf("cannot compress block with xz: %s", err)
		}
		if _, err := xw.Write(payload); err != nil {
			return nil, encodeErrorf("cannot compress block with xz: %s", err)
		}
		if err := xw.Close(); err != nil {
			return nil, encodeErrorf("cannot compress block with xz: %s", err)
		}
		return append(dst, out.Bytes()...), nil

	case CompressionZstandard:
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if level != CompressionLevelDefault {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		var out bytes.Buffer
		zw, err := zstd.NewWriter(&out, opts...)
		if err != nil {
			return nil, encodeErrorf("cannot compress block with zstandard: %s", err)
		}
		if _, err := zw.Write(payload); err != nil {
			return nil, encodeErrorf("cannot compress block with zstandard: %s", err)
		}
		if err := zw.Close(); err != nil {
			return nil, encodeErrorf("cannot compress block with zstandard: %s", err)
		}
		return append(dst, out.Bytes()...), nil

	default:
		return nil, encodeErrorf("cannot compress block: unknown compression codec %d", compression)
	}
}

// newDecompressor wraps a reader of one block's compressed payload in the
// codec's streaming decoder. Snappy is not handled here: it is a one-shot
// codec (see decompressSnappyBlock).
func newDecompressor(compression Compression, r io.Reader) (io.ReadCloser, error) {
	switch compression {
	case CompressionDeflate:
		return flate.NewReader(r), nil
	case CompressionBzip2:
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, decodeErrorf("cannot decompress block with bzip2: %s", err)
		}
		return br, nil
	case CompressionXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, decodeErrorf("cannot decompress block with xz: %s", err)
		}
		return io.NopCloser(xr), nil
	case CompressionZstandard:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, decodeErrorf("cannot decompress block with zstandard: %s", err)
		}
		return zstdReadCloser{zr}, nil
	default:
		return nil, decodeErrorf("cannot decompress block: unknown compression codec %d", compression)
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// decompressSnappyBlock decompresses a whole snappy block up-front,
// verifying the trailing big-endian CRC32 of the decompressed data. dst is
// reused when large enough.
func decompressSnappyBlock(dst, block []byte) ([]byte, error) {
	if len(block) < 4 {
		return nil, decodeErrorf("cannot decompress block with snappy: block size ought to be at least 4 for CRC")
	}
	compressed, trailer := block[:len(block)-4], block[len(block)-4:]
	decodedLen, err := snappy.DecodedLen(compressed)
	if err != nil {
		return nil, decodeErrorf("cannot decompress block with snappy: %s", err)
	}
	if cap(dst) < decodedLen {
		dst = make([]byte, decodedLen)
	}
	decompressed, err := snappy.Decode(dst[:decodedLen], compressed)
	if err != nil {
		return nil, decodeErrorf("cannot decompress block with snappy: %s", err)
	}
	if len(decompressed) != decodedLen {
		return nil, decodeErrorf("cannot decompress block with snappy: incorrect decompressed size")
	}
	expected := binary.BigEndian.Uint32(trailer)
	if actual := crc32.ChecksumIEEE(decompressed); actual != expected {
		return nil, decodeErrorf("cannot decompress block with snappy: incorrect CRC32 of decompressed data: computed: %d; expected: %d",
			actual, expected)
	}
	return decompressed, nil
}
