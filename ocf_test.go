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

const ocfTestSchema = `{"type":"record","name":"Test","fields":[
	{"name":"a","type":"long"},
	{"name":"b","type":"string"}]}`

func ocfTestValues() []interface{} {
	return []interface{}{
		map[string]interface{}{"a": int64(0), "b": "hello"},
		map[string]interface{}{"a": int64(1), "b": "hello"},
		map[string]interface{}{"a": int64(2), "b": "hello"},
	}
}

func writeTestOCF(t *testing.T, compression Compression, approxBlockSize int, userMetadata map[string][]byte) []byte {
	t.Helper()
	mut, err := ParseSchema(ocfTestSchema)
	require.NoError(t, err)
	schema, err := mut.Freeze()
	require.NoError(t, err)

	var out bytes.Buffer
	w, err := NewOCFWriter(OCFConfig{
		W:               &out,
		Schema:          schema,
		Compression:     compression,
		ApproxBlockSize: approxBlockSize,
		UserMetadata:    userMetadata,
	})
	require.NoError(t, err)
	require.NoError(t, w.Append(ocfTestValues()))
	require.NoError(t, w.Close())
	return out.Bytes()
}

func readAllOCF(t *testing.T, r *OCFReader) []interface{} {
	t.Helper()
	var values []interface{}
	for r.Scan() {
		value, err := r.Read()
		require.NoError(t, err)
		values = append(values, value)
	}
	require.NoError(t, r.Err())
	return values
}

func TestOCFRoundTripAllCodecs(t *testing.T) {
	for _, compression := range []Compression{
		CompressionNull, CompressionDeflate, CompressionSnappy,
		CompressionBzip2, CompressionXz, CompressionZstandard,
	} {
		t.Run(compression.String(), func(t *testing.T) {
			encoded := writeTestOCF(t, compression, DefaultApproxBlockSize, nil)

			// Stream reader.
			r, err := NewOCFReader(bytes.NewReader(encoded))
			require.NoError(t, err)
			assert.Equal(t, compression, r.Compression())
			values := readAllOCF(t, r)
			if !reflect.DeepEqual(values, ocfTestValues()) {
				t.Errorf("GOT: %#v; WANT: %#v", values, ocfTestValues())
			}

			// Slice reader.
			rs, err := NewOCFReaderFromSlice(encoded)
			require.NoError(t, err)
			values = readAllOCF(t, rs)
			if !reflect.DeepEqual(values, ocfTestValues()) {
				t.Errorf("GOT: %#v; WANT: %#v", values, ocfTestValues())
			}
		})
	}
}

func TestOCFMultipleBlocks(t *testing.T) {
	// A tiny block size threshold forces one block per value.
	encoded := writeTestOCF(t, CompressionNull, 1, nil)
	r, err := NewOCFReader(bytes.NewReader(encoded))
	require.NoError(t, err)
	values := readAllOCF(t, r)
	assert.Len(t, values, 3)
}

func TestOCFUserMetadata(t *testing.T) {
	encoded := writeTestOCF(t, CompressionNull, DefaultApproxBlockSize, map[string][]byte{
		"app.origin": []byte("unit-test"),
	})
	r, err := NewOCFReader(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, []byte("unit-test"), r.Metadata()["app.origin"])
	assert.Contains(t, r.Metadata(), "avro.schema")
	assert.Equal(t, []byte("null"), r.Metadata()["avro.codec"])
}

func TestOCFFixedSyncMarker(t *testing.T) {
	mut, err := ParseSchema(`"long"`)
	require.NoError(t, err)
	schema, err := mut.Freeze()
	require.NoError(t, err)

	sync := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	var out bytes.Buffer
	w, err := NewOCFWriter(OCFConfig{W: &out, Schema: schema, SyncMarker: &sync})
	require.NoError(t, err)
	require.NoError(t, w.Append([]interface{}{int64(1)}))
	require.NoError(t, w.Close())

	r, err := NewOCFReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, sync, r.SyncMarker())
	assert.Equal(t, []interface{}{int64(1)}, readAllOCF(t, r))

	// Two identically-configured writers produce identical files.
	var out2 bytes.Buffer
	w2, err := NewOCFWriter(OCFConfig{W: &out2, Schema: schema, SyncMarker: &sync})
	require.NoError(t, err)
	require.NoError(t, w2.Append([]interface{}{int64(1)}))
	require.NoError(t, w2.Close())
	assert.Equal(t, out.Bytes(), out2.Bytes())
}

func TestOCFSyncMarkerMismatch(t *testing.T) {
	encoded := writeTestOCF(t, CompressionNull, DefaultApproxBlockSize, nil)
	// Corrupt the trailing sync marker.
	encoded[len(encoded)-1] ^= 0xFF

	r, err := NewOCFReader(bytes.NewReader(encoded))
	require.NoError(t, err)
	count := 0
	for r.Scan() {
		_, err := r.Read()
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 3, count)
	ensureError(t, r.Err(), "incorrect sync marker")

	// Broken is sticky: further Scan calls pretend end-of-stream.
	assert.False(t, r.Scan())
}

func TestOCFWrongMagic(t *testing.T) {
	_, err := NewOCFReader(bytes.NewReader([]byte("not an avro file")))
	ensureError(t, err, "invalid magic")
}

func TestOCFSnappyCorruptCRC(t *testing.T) {
	encoded := writeTestOCF(t, CompressionSnappy, DefaultApproxBlockSize, nil)
	// Flip a bit in the CRC trailer (last 4 bytes before the sync marker).
	encoded[len(encoded)-17] ^= 0x01

	r, err := NewOCFReader(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.False(t, r.Scan())
	ensureError(t, r.Err(), "CRC32")
}

func TestOCFSliceBorrowsWithNullCodec(t *testing.T) {
	mut, err := ParseSchema(`"bytes"`)
	require.NoError(t, err)
	schema, err := mut.Freeze()
	require.NoError(t, err)

	var out bytes.Buffer
	w, err := NewOCFWriter(OCFConfig{W: &out, Schema: schema})
	require.NoError(t, err)
	require.NoError(t, w.Append([]interface{}{[]byte("abc")}))
	require.NoError(t, w.Close())
	encoded := out.Bytes()

	r, err := NewOCFReaderFromSlice(encoded)
	require.NoError(t, err)
	require.True(t, r.Scan())
	value, err := r.Read()
	require.NoError(t, err)
	decoded := value.([]byte)
	assert.Equal(t, []byte("abc"), decoded)

	// With the null codec on a slice, the decoded bytes alias the input.
	idx := bytes.Index(encoded, []byte("abc"))
	require.GreaterOrEqual(t, idx, 0)
	encoded[idx] = 'X'
	assert.Equal(t, []byte("Xbc"), decoded)
}

func TestOCFPushSerialized(t *testing.T) {
	mut, err := ParseSchema(`"long"`)
	require.NoError(t, err)
	schema, err := mut.Freeze()
	require.NoError(t, err)

	// Encode two datums off to the side, e.g. on another goroutine.
	enc := NewEncoder(schema)
	pre, err := enc.BinaryFromNative(nil, int64(1))
	require.NoError(t, err)
	pre, err = enc.BinaryFromNative(pre, int64(2))
	require.NoError(t, err)

	var out bytes.Buffer
	w, err := NewOCFWriter(OCFConfig{W: &out, Schema: schema})
	require.NoError(t, err)
	require.NoError(t, w.PushSerialized(2, pre))
	require.NoError(t, w.Append([]interface{}{int64(3)}))
	require.NoError(t, w.Close())

	r, err := NewOCFReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, readAllOCF(t, r))
}

func TestOCFAppendFailureLeavesBlockConsistent(t *testing.T) {
	mut, err := ParseSchema(`"long"`)
	require.NoError(t, err)
	schema, err := mut.Freeze()
	require.NoError(t, err)

	var out bytes.Buffer
	w, err := NewOCFWriter(OCFConfig{W: &out, Schema: schema})
	require.NoError(t, err)
	require.NoError(t, w.Append([]interface{}{int64(1)}))
	// A value the schema rejects must not corrupt the in-progress block.
	ensureError(t, w.Append([]interface{}{"not a long"}), "expected: Go integer")
	require.NoError(t, w.Append([]interface{}{int64(2)}))
	require.NoError(t, w.Close())

	r, err := NewOCFReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(2)}, readAllOCF(t, r))
}

func TestOCFEmptyFile(t *testing.T) {
	mut, err := ParseSchema(`"long"`)
	require.NoError(t, err)
	schema, err := mut.Freeze()
	require.NoError(t, err)

	var out bytes.Buffer
	w, err := NewOCFWriter(OCFConfig{W: &out, Schema: schema})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewOCFReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.False(t, r.Scan())
	require.NoError(t, r.Err())
}

func TestOCFWriteAll(t *testing.T) {
	mut, err := ParseSchema(ocfTestSchema)
	require.NoError(t, err)
	schema, err := mut.Freeze()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, WriteAll(&out, schema, CompressionDeflate, ocfTestValues()))

	r, err := NewOCFReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, CompressionDeflate, r.Compression())
	values := readAllOCF(t, r)
	if !reflect.DeepEqual(values, ocfTestValues()) {
		t.Errorf("GOT: %#v; WANT: %#v", values, ocfTestValues())
	}
}

func TestOCFReaderSchemaAccess(t *testing.T) {
	encoded := writeTestOCF(t, CompressionNull, DefaultApproxBlockSize, nil)
	r, err := NewOCFReader(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.NotNil(t, r.Schema())
	assert.NotEmpty(t, r.Schema().JSON())
}
