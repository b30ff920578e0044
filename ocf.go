// Copyright [2019] LinkedIn Corp. Licensed under the Apache License, Version
// 2.0 (the "License"); you may not use this file except in compliance with the
// License.  You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.

package avrofast

// ocfMagic opens every object container file.
var ocfMagic = []byte{'O', 'b', 'j', 1}

const (
	ocfSchemaKey = "avro.schema"
	ocfCodecKey  = "avro.codec"

	// ocfMetadataMaxEntries is the DoS guard applied when decoding the
	// header metadata map.
	ocfMetadataMaxEntries = 1000

	// DefaultApproxBlockSize is the uncompressed block size threshold at
	// which the OCF writer flushes a block.
	DefaultApproxBlockSize = 64 * 1024
)

// Compression selects the codec OCF blocks are compressed with.
type Compression int

const (
	CompressionNull Compression = iota
	CompressionDeflate
	CompressionSnappy
	CompressionBzip2
	CompressionXz
	CompressionZstandard
)

var compressionNames = [...]string{
	CompressionNull:      "null",
	CompressionDeflate:   "deflate",
	CompressionSnappy:    "snappy",
	CompressionBzip2:     "bzip2",
	CompressionXz:        "xz",
	CompressionZstandard: "zstandard",
}

func (c Compression) String() string {
	if c < 0 || int(c) >= len(compressionNames) {
		return "unknown"
	}
	return compressionNames[c]
}

func parseCompression(identifier string) (Compression, error) {
	for c, name := range compressionNames {
		if name == identifier {
			return Compression(c), nil
		}
	}
	return 0, decodeErrorf("cannot read object container file: unknown codec identifier: %q", identifier)
}

// CompressionLevelDefault asks each codec library for its own default level.
const CompressionLevelDefault = 0

// maxLevel is the highest compression level a codec accepts; out-of-range
// requests are clipped to it.
func (c Compression) maxLevel() int {
	if c == CompressionZstandard {
		return 22
	}
	return 9
}

func (c Compression) clipLevel(level int) int {
	if level == CompressionLevelDefault {
		return CompressionLevelDefault
	}
	if level < 1 {
		level = 1
	}
	if max := c.maxLevel(); level > max {
		level = max
	}
	return level
}
