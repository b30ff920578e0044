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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeIntegerCoercion(t *testing.T) {
	testBinaryEncodePass(t, `"long"`, int32(3), []byte{6})
	testBinaryEncodePass(t, `"long"`, int(3), []byte{6})
	testBinaryEncodePass(t, `"long"`, uint8(3), []byte{6})
	testBinaryEncodePass(t, `"int"`, int64(3), []byte{6})
	testBinaryEncodePass(t, `"int"`, float64(3), []byte{6})
	testBinaryEncodeFail(t, `"int"`, float64(3.5), "would lose precision")
	testBinaryEncodeFail(t, `"int"`, "3", "expected: Go integer")
}

func TestEncodeBytesFromString(t *testing.T) {
	testBinaryEncodePass(t, `"bytes"`, "some bytes", []byte("\x14some bytes"))
	testBinaryEncodePass(t, `"string"`, []byte("foo"), []byte("\x06foo"))
}

func TestEncodeSlowSequenceToBytes(t *testing.T) {
	testBinaryEncodeFail(t, `"bytes"`, []interface{}{int32(1), int32(2)}, "not allowed by default")

	mut, err := ParseSchema(`"bytes"`)
	require.NoError(t, err)
	schema, err := mut.Freeze()
	require.NoError(t, err)
	enc := NewEncoderWithConfig(NewEncoderConfig(schema).AllowSlowSequenceToBytes())
	buf, err := enc.BinaryFromNative(nil, []interface{}{int32(1), int32(2)})
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 1, 2}, buf)

	_, err = enc.BinaryFromNative(nil, []interface{}{int32(300)})
	ensureError(t, err, "byte-sized integer")
}

func TestEncodeRecordOutOfOrderBuffering(t *testing.T) {
	// Go map iteration order is random, so over many rounds every arrival
	// order gets exercised through the reordering scratch buffers; the
	// output must always be in schema-declared order.
	schema := `{"type":"record","name":"Test","fields":[
		{"name":"a","type":"long"},
		{"name":"b","type":"string"},
		{"name":"c","type":"boolean"},
		{"name":"d","type":"int"}]}`
	codec, err := NewCodec(schema)
	require.NoError(t, err)

	expected := []byte("\x36\x06foo\x01\x06")
	datum := map[string]interface{}{
		"a": int64(27), "b": "foo", "c": true, "d": int32(3),
	}
	for i := 0; i < 64; i++ {
		buf, err := codec.BinaryFromNative(nil, datum)
		require.NoError(t, err)
		assert.Equal(t, expected, buf)
	}
}

func TestEncodeRecordBufferPoolReuse(t *testing.T) {
	schema := `{"type":"record","name":"Test","fields":[
		{"name":"a","type":"long"},
		{"name":"b","type":"string"}]}`
	mut, err := ParseSchema(schema)
	require.NoError(t, err)
	frozen, err := mut.Freeze()
	require.NoError(t, err)

	cfg := NewEncoderConfig(frozen)
	enc := NewEncoderWithConfig(cfg)
	datum := map[string]interface{}{"a": int64(1), "b": "x"}
	for i := 0; i < 16; i++ {
		buf, err := enc.BinaryFromNative(nil, datum)
		require.NoError(t, err)
		assert.Equal(t, []byte("\x02\x02x"), buf)
	}
}

func TestEncodeNestedRecord(t *testing.T) {
	schema := `{"type":"record","name":"outer","fields":[
		{"name":"in","type":{"type":"record","name":"inner","fields":[
			{"name":"x","type":"int"}]}},
		{"name":"tail","type":"string"}]}`
	testBinaryCodecPass(t, schema, map[string]interface{}{
		"in":   map[string]interface{}{"x": int32(1)},
		"tail": "z",
	}, []byte("\x02\x02z"))
}

func TestEncodeMapValues(t *testing.T) {
	testBinaryEncodeFail(t, `{"type":"map","values":"int"}`, "nope", "expected: Go map")
	testBinaryCodecPass(t, `{"type":"map","values":"int"}`, map[string]interface{}{}, []byte{0})
}

func TestEncodeArrayGenericSlices(t *testing.T) {
	// Typed Go slices are accepted through reflection.
	testBinaryEncodePass(t, `{"type":"array","items":"long"}`, []int64{1, 2}, []byte{4, 2, 4, 0})
	testBinaryEncodePass(t, `{"type":"array","items":"string"}`, []string{"a"}, []byte("\x02\x02a\x00"))
}

func TestEncodeDurationForms(t *testing.T) {
	schema := `{"type":{"name":"dur","type":"fixed","size":12},"logicalType":"duration"}`
	expected := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0}
	testBinaryEncodePass(t, schema, map[string]interface{}{
		"months": uint32(1), "days": uint32(2), "milliseconds": uint32(3),
	}, expected)
	testBinaryEncodePass(t, schema, []interface{}{uint32(1), uint32(2), uint32(3)}, expected)
	testBinaryEncodePass(t, schema, [3]uint32{1, 2, 3}, expected)
	testBinaryEncodeFail(t, schema, map[string]interface{}{"months": uint32(1)}, "months/days/milliseconds")
}

func TestEncodeFixedDecimal(t *testing.T) {
	schema := `{"type":{"type":"fixed","name":"dec","size":4},"logicalType":"decimal","precision":8,"scale":2}`
	// 1.5 at scale 2 is unscaled 150, sign-padded to 4 bytes.
	testBinaryEncodePass(t, schema, "1.5", []byte{0, 0, 0, 150})
	testBinaryEncodePass(t, schema, "-1.5", []byte{0xFF, 0xFF, 0xFF, 0x6A})

	codec, err := NewCodec(schema)
	require.NoError(t, err)
	value, _, err := codec.NativeFromBinary([]byte{0, 0, 0, 150})
	require.NoError(t, err)
	assert.Equal(t, "1.50", decimalText(t, value))
}

func TestEncodeDecimalInteger(t *testing.T) {
	schema := `{"type":"bytes","logicalType":"decimal","precision":6,"scale":2}`
	// An integer input is scaled by 10^scale: 3 becomes unscaled 300.
	testBinaryEncodePass(t, schema, int64(3), []byte{4, 0x01, 0x2C})
}

func TestEncodeUnsupportedType(t *testing.T) {
	testBinaryEncodeFail(t, `"boolean"`, "true", "expected: Go bool")
	testBinaryEncodeFail(t, `"null"`, int32(0), "expected: Go nil")
}
