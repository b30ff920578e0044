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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchemaPrimitives(t *testing.T) {
	for _, schema := range []string{`"null"`, `"boolean"`, `"int"`, `"long"`, `"float"`, `"double"`, `"bytes"`, `"string"`} {
		mut, err := ParseSchema(schema)
		require.NoError(t, err, schema)
		_, err = mut.Freeze()
		require.NoError(t, err, schema)
	}
}

func TestParseSchemaInvalid(t *testing.T) {
	testSchemaInvalid(t, `{`, "cannot parse schema JSON")
	testSchemaInvalid(t, `42`, "ought to be string, object, or array")
	testSchemaInvalid(t, `"sometype"`, "unknown reference")
	testSchemaInvalid(t, `{"type":"record","name":"r","fields":[{"name":"f","type":"undeclared"}]}`, "unknown reference")
	testSchemaInvalid(t, `{"type":"record","fields":[]}`, "missing name")
	testSchemaInvalid(t, `{"type":"fixed","name":"f"}`, "missing field \"size\"")
	testSchemaInvalid(t, `{"type":"enum","name":"e"}`, "missing field \"symbols\"")
	testSchemaInvalid(t, `{"type":"array"}`, "missing field \"items\"")
	testSchemaInvalid(t, `{"type":"map"}`, "missing field \"values\"")
}

func TestParseSchemaForwardReference(t *testing.T) {
	// A reference may appear before its definition.
	schema := `{"type":"record","name":"outer","fields":[
		{"name":"a","type":"laterEnum"},
		{"name":"z","type":{"type":"enum","name":"laterEnum","symbols":["x"]}}]}`
	mut, err := ParseSchema(schema)
	require.NoError(t, err)
	frozen, err := mut.Freeze()
	require.NoError(t, err)
	codec := NewCodecFromSchema(frozen)
	buf, err := codec.BinaryFromNative(nil, map[string]interface{}{"a": "x", "z": "x"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, buf)
}

func TestUnconditionalCycleRejected(t *testing.T) {
	// A record whose field is itself, transitively only through records, is
	// an unconditional cycle: the decoder would recurse without input.
	testSchemaInvalid(t, `{"type":"record","name":"r","fields":[{"name":"f","type":"r"}]}`,
		"record that ends up always containing itself")
	testSchemaInvalid(t, `{"type":"record","name":"a","fields":[{"name":"f","type":
		{"type":"record","name":"b","fields":[{"name":"g","type":"a"}]}}]}`,
		"record that ends up always containing itself")

	// Through a union the cycle is conditional and fine.
	mut, err := ParseSchema(`{"type":"record","name":"r","fields":[{"name":"f","type":["null","r"]}]}`)
	require.NoError(t, err)
	_, err = mut.Freeze()
	require.NoError(t, err)
}

func TestDuplicateNameRejected(t *testing.T) {
	testSchemaInvalid(t, `{"type":"record","name":"r","fields":[
		{"name":"a","type":{"type":"fixed","name":"f","size":2}},
		{"name":"b","type":{"type":"fixed","name":"f","size":3}}]}`,
		"duplicate definitions")
}

func TestNamespaceResolution(t *testing.T) {
	// A dotted name is fully qualified verbatim; otherwise the enclosing
	// namespace is prepended; "namespace":"" forces the null namespace.
	schema := `{"type":"record","name":"com.example.outer","fields":[
		{"name":"a","type":{"type":"fixed","name":"inner","size":2}},
		{"name":"b","type":"com.example.inner"},
		{"name":"c","type":{"type":"fixed","name":"naked","namespace":"","size":2}},
		{"name":"d","type":".naked"}]}`
	mut, err := ParseSchema(schema)
	require.NoError(t, err)
	_, err = mut.Freeze()
	require.NoError(t, err)

	var names []string
	for _, node := range mut.Nodes() {
		if node.Type == TypeFixed {
			names = append(names, node.Name.FullName())
		}
	}
	assert.ElementsMatch(t, []string{"com.example.inner", "naked"}, names)
}

func TestSchemaJSONRoundTrip(t *testing.T) {
	for _, schema := range []string{
		`"int"`,
		`{"type":"array","items":"string"}`,
		`["null","long"]`,
		`{"type":"record","name":"com.example.rec","fields":[{"name":"f","type":["null","com.example.rec"]}]}`,
		`{"type":"enum","name":"colors","symbols":["red","green","blue"]}`,
		`{"type":"bytes","logicalType":"decimal","precision":4,"scale":1}`,
	} {
		mut, err := ParseSchema(schema)
		require.NoError(t, err, schema)
		emitted, err := mut.MarshalJSON()
		require.NoError(t, err, schema)

		// Re-serializing a parsed schema yields JSON that re-parses to a
		// graph with the same fingerprint.
		reparsed, err := ParseSchema(string(emitted))
		require.NoError(t, err, "emitted: %s", emitted)
		originalFP, err := mut.CanonicalFormRabinFingerprint()
		require.NoError(t, err)
		reparsedFP, err := reparsed.CanonicalFormRabinFingerprint()
		require.NoError(t, err)
		assert.Equal(t, originalFP, reparsedFP, schema)
	}
}

func TestSchemaJSONUnnamedCycleFails(t *testing.T) {
	// Build, by hand, an array whose items are the array itself: no named
	// reference can break the cycle, so serialization must refuse.
	mut := FromNodes([]SchemaNode{{Type: TypeArray, Items: 0}})
	_, err := mut.MarshalJSON()
	ensureError(t, err, "cycle that can't be avoided using named references")
}

func TestCanonicalForm(t *testing.T) {
	for _, tc := range []struct {
		schema string
		pcf    string
	}{
		{`"null"`, `"null"`},
		{`{"type":"string"}`, `"string"`},
		{`{"type":"array","items":"int"}`, `{"type":"array","items":"int"}`},
		{`{"type":"fixed","name":"foo","size":15,"doc":"ignored"}`, `{"name":"foo","type":"fixed","size":15}`},
		{
			`{"type":"record","name":"PigValue","fields":[{"name":"value","type":["null","int","long","PigValue"]}]}`,
			`{"name":"PigValue","type":"record","fields":[{"name":"value","type":["null","int","long","PigValue"]}]}`,
		},
		{
			// Logical types are entirely omitted from the PCF.
			`{"type":"bytes","logicalType":"decimal","precision":4,"scale":1}`,
			`"bytes"`,
		},
	} {
		mut, err := ParseSchema(tc.schema)
		require.NoError(t, err, tc.schema)
		pcf, err := mut.canonicalForm()
		require.NoError(t, err, tc.schema)
		assert.Equal(t, tc.pcf, pcf, tc.schema)
	}
}

func TestRabinFingerprint(t *testing.T) {
	// Reference fingerprints from the Avro specification's CRC-64-AVRO test
	// data.
	for _, tc := range []struct {
		schema      string
		fingerprint int64
	}{
		{`"null"`, 7195948357588979594},
		{`"boolean"`, -6970731678124411036},
		{`{"type":"fixed","name":"foo","size":15}`, 1756455273707447556},
		{`{"type":"record","name":"PigValue","fields":[{"name":"value","type":["null","int","long","PigValue"]}]}`,
			-1759257747318642341},
	} {
		mut, err := ParseSchema(tc.schema)
		require.NoError(t, err, tc.schema)
		fp, err := mut.CanonicalFormRabinFingerprint()
		require.NoError(t, err, tc.schema)
		assert.Equal(t, tc.fingerprint, int64(binary.LittleEndian.Uint64(fp[:])), tc.schema)
	}
}

func TestRabinRawBytes(t *testing.T) {
	fp := rabinFingerprint([]byte("hello world"))
	assert.Equal(t, int64(2906301498937520992), int64(binary.LittleEndian.Uint64(fp[:])))
}

func TestFreezeFingerprintMatchesSafeForm(t *testing.T) {
	schema := `{"type":"record","name":"Test","fields":[{"name":"field","type":"string"}]}`
	mut, err := ParseSchema(schema)
	require.NoError(t, err)
	safeFP, err := mut.CanonicalFormRabinFingerprint()
	require.NoError(t, err)
	frozen, err := mut.Freeze()
	require.NoError(t, err)
	assert.Equal(t, safeFP, frozen.RabinFingerprint())
}

func TestUnknownLogicalTypeDegrades(t *testing.T) {
	// Unknown logical types and mismatched pairings are preserved in the
	// editable graph but degrade to the inner regular type at freeze.
	for _, tc := range []struct {
		schema string
		datum  interface{}
		buf    []byte
	}{
		{`{"type":"string","logicalType":"new-fancy-type"}`, "foo", []byte("\x06foo")},
		{`{"type":"long","logicalType":"date"}`, int64(3), []byte{6}}, // date requires int
		{`{"type":{"type":"fixed","name":"f","size":11},"logicalType":"duration"}`,
			[]byte("elevenchars"), []byte("elevenchars")}, // duration requires size 12
	} {
		testBinaryCodecPass(t, tc.schema, tc.datum, tc.buf)
	}
}

func TestSchemaMutClone(t *testing.T) {
	mut, err := ParseSchema(`{"type":"record","name":"r","fields":[{"name":"f","type":"int"}]}`)
	require.NoError(t, err)
	clone := mut.Clone()
	(*clone.NodesMut())[0].Fields[0].Name = "renamed"
	assert.Equal(t, "f", mut.Nodes()[0].Fields[0].Name)
	assert.Equal(t, "renamed", clone.Nodes()[0].Fields[0].Name)
}

func TestSchemaMutValidate(t *testing.T) {
	mut := FromNodes([]SchemaNode{{Type: TypeArray, Items: 7}})
	ensureError(t, mut.Validate(), "non-existing node")

	mut = FromNodes([]SchemaNode{{Type: TypeArray, Items: 1}, {Type: TypeInt}})
	require.NoError(t, mut.Validate())
}

func TestFreezeUUIDLogicalType(t *testing.T) {
	testBinaryCodecPass(t, `{"type":"string","logicalType":"uuid"}`,
		"12345678-1234-5678-1234-567812345678",
		append([]byte{72}, []byte("12345678-1234-5678-1234-567812345678")...))
}

func TestTemporalLogicalTypes(t *testing.T) {
	testBinaryCodecPass(t, `{"type":"int","logicalType":"date"}`, int32(3), []byte{6})
	testBinaryCodecPass(t, `{"type":"int","logicalType":"time-millis"}`, int32(3), []byte{6})
	testBinaryCodecPass(t, `{"type":"long","logicalType":"time-micros"}`, int64(3), []byte{6})
	testBinaryCodecPass(t, `{"type":"long","logicalType":"timestamp-millis"}`, int64(3), []byte{6})
	testBinaryCodecPass(t, `{"type":"long","logicalType":"timestamp-micros"}`, int64(3), []byte{6})
}
