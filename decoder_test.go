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
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMaxSeqSize(t *testing.T) {
	mut, err := ParseSchema(`{"type":"array","items":"int"}`)
	require.NoError(t, err)
	schema, err := mut.Freeze()
	require.NoError(t, err)
	decoder := NewDecoderWithConfig(schema, DecoderConfig{MaxSeqSize: 3})

	// Two blocks of two items exceed the cap of three; elements are counted
	// cumulatively across blocks.
	input := []byte{4, 2, 2, 4, 2, 2, 0}
	_, _, err = decoder.NativeFromBinary(input)
	ensureError(t, err, "maximum sequence size")

	decoder = NewDecoderWithConfig(schema, DecoderConfig{MaxSeqSize: 4})
	value, _, err := decoder.NativeFromBinary(input)
	require.NoError(t, err)
	assert.Len(t, value, 4)
}

func TestDecodeAllowedDepthConfigurable(t *testing.T) {
	mut, err := ParseSchema(`{"type":"record","name":"Test","fields":[{"name":"b","type":["null","Test"]}]}`)
	require.NoError(t, err)
	schema, err := mut.Freeze()
	require.NoError(t, err)

	// Each level consumes two depth units (union + record), so depth 8
	// rejects a chain of five and accepts a chain of three.
	deep := func(levels int) []byte {
		buf := bytes.Repeat([]byte{0x02}, levels)
		return append(buf, 0x00)
	}
	decoder := NewDecoderWithConfig(schema, DecoderConfig{AllowedDepth: 8})
	_, _, err = decoder.NativeFromBinary(deep(5))
	ensureError(t, err, "recursion limit reached")
	_, _, err = decoder.NativeFromBinary(deep(3))
	require.NoError(t, err)
}

func TestDecodeFromReaderOwnsBytes(t *testing.T) {
	codec, err := NewCodec(`"bytes"`)
	require.NoError(t, err)
	input := []byte("\x06abc")

	decoder := NewDecoder(codec.Schema())
	value, err := decoder.NativeFromReader(NewBufReader(bytes.NewReader(input)))
	require.NoError(t, err)
	decoded := value.([]byte)
	input[1] = 'X'
	assert.Equal(t, []byte("abc"), decoded, "streaming decode ought to return owned bytes")

	// The slice path may borrow.
	value, _, err = codec.NativeFromBinary(input)
	require.NoError(t, err)
	assert.Equal(t, []byte("Xbc"), value.([]byte))
}

func TestDecodeStreamedRecord(t *testing.T) {
	codec, err := NewCodec(`{"type":"record","name":"Test","fields":[
		{"name":"a","type":"long"},{"name":"b","type":"string"}]}`)
	require.NoError(t, err)
	decoder := NewDecoder(codec.Schema())
	value, err := decoder.NativeFromReader(NewBufReader(&oneByteReader{data: []byte("\x36\x06foo")}))
	require.NoError(t, err)
	expected := map[string]interface{}{"a": int64(27), "b": "foo"}
	if !reflect.DeepEqual(value, expected) {
		t.Errorf("GOT: %#v; WANT: %#v", value, expected)
	}
}

func TestDecodeTrailingGarbageReported(t *testing.T) {
	// The decoder itself leaves trailing bytes for the caller.
	codec, err := NewCodec(`"long"`)
	require.NoError(t, err)
	value, remaining, err := codec.NativeFromBinary([]byte{54, 0xAA})
	require.NoError(t, err)
	assert.Equal(t, int64(27), value)
	assert.Equal(t, []byte{0xAA}, remaining)
}

func TestDecodeNegativeBlockCountWithSize(t *testing.T) {
	// Map with one negative-count block: |N|=1, then byte size, then entry.
	input := []byte{1, 8, 0x02, 'k', 2, 0}
	codec, err := NewCodec(`{"type":"map","values":"int"}`)
	require.NoError(t, err)
	value, remaining, err := codec.NativeFromBinary(input)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.Equal(t, map[string]interface{}{"k": int32(1)}, value)
}
