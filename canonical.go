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
	"strconv"
	"sync"
)

// rabinEmpty is the CRC-64-AVRO polynomial seed, per the Avro specification's
// schema fingerprint section.
const rabinEmpty uint64 = 0xc15d213aa4d7a795

var (
	rabinTableOnce sync.Once
	rabinTable     [256]uint64
)

func rabinFingerprintTable() *[256]uint64 {
	rabinTableOnce.Do(func() {
		for i := range rabinTable {
			fp := uint64(i)
			for j := 0; j < 8; j++ {
				mask := -(fp & 1)
				fp = (fp >> 1) ^ (rabinEmpty & mask)
			}
			rabinTable[i] = fp
		}
	})
	return &rabinTable
}

// rabinFingerprint computes the 64-bit Rabin fingerprint (CRC-64-AVRO) of
// data and returns it as 8 little-endian bytes, the form used by single
// object encoding.
func rabinFingerprint(data []byte) [8]byte {
	table := rabinFingerprintTable()
	fp := rabinEmpty
	for _, b := range data {
		fp = (fp >> 8) ^ table[byte(fp)^b]
	}
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], fp)
	return out
}

// CanonicalFormRabinFingerprint computes the Rabin fingerprint of the
// schema's Parsing Canonical Form. This is what identifies a schema in Avro
// single object encoding.
//
// The PCF itself is deliberately not exposed: matching the reference Java
// implementation, it performs no string escaping, so it is not guaranteed to
// be valid JSON and must only be used as fingerprint input.
func (s *SchemaMut) CanonicalFormRabinFingerprint() ([8]byte, error) {
	var buf bytes.Buffer
	state := &canonicalFormState{
		nodes:        s.nodes,
		namedWritten: make([]bool, len(s.nodes)),
		buf:          &buf,
	}
	if err := state.write(RootKey); err != nil {
		return [8]byte{}, err
	}
	return rabinFingerprint(buf.Bytes()), nil
}

// canonicalForm renders the Parsing Canonical Form. Kept internal; see
// CanonicalFormRabinFingerprint.
func (s *SchemaMut) canonicalForm() (string, error) {
	var buf bytes.Buffer
	state := &canonicalFormState{
		nodes:        s.nodes,
		namedWritten: make([]bool, len(s.nodes)),
		buf:          &buf,
	}
	if err := state.write(RootKey); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type canonicalFormState struct {
	nodes        []SchemaNode
	namedWritten []bool
	buf          *bytes.Buffer
}

// write appends the canonical form of one node. It is a strict
// transliteration of the reference Java algorithm: a fixed shape per node
// type, logical types elided entirely, and a bare fully-qualified name
// substituted once a named type has already appeared.
func (c *canonicalFormState) write(key SchemaKey) error {
	if key < 0 || int(key) >= len(c.nodes) {
		return schemaErrorf("schema key %d refers to non-existing node", key)
	}
	node := &c.nodes[key]

	writeOnlyName := func(name Name) bool {
		if c.namedWritten[key] {
			c.buf.WriteByte('"')
			c.buf.WriteString(name.FullName())
			c.buf.WriteByte('"')
			return true
		}
		c.namedWritten[key] = true
		return false
	}

	switch node.Type {
	case TypeNull, TypeBoolean, TypeInt, TypeLong, TypeFloat, TypeDouble, TypeBytes, TypeString:
		c.buf.WriteByte('"')
		c.buf.WriteString(node.Type.String())
		c.buf.WriteByte('"')
	case TypeArray:
		c.buf.WriteString(`{"type":"array","items":`)
		if err := c.write(node.Items); err != nil {
			return err
		}
		c.buf.WriteByte('}')
	case TypeMap:
		c.buf.WriteString(`{"type":"map","values":`)
		if err := c.write(node.Values); err != nil {
			return err
		}
		c.buf.WriteByte('}')
	case TypeUnion:
		c.buf.WriteByte('[')
		for i, variant := range node.Variants {
			if i > 0 {
				c.buf.WriteByte(',')
			}
			if err := c.write(variant); err != nil {
				return err
			}
		}
		c.buf.WriteByte(']')
	case TypeRecord:
		if writeOnlyName(node.Name) {
			return nil
		}
		c.buf.WriteString(`{"name":"`)
		c.buf.WriteString(node.Name.FullName())
		c.buf.WriteString(`","type":"record","fields":[`)
		for i, field := range node.Fields {
			if i > 0 {
				c.buf.WriteByte(',')
			}
			c.buf.WriteString(`{"name":"`)
			c.buf.WriteString(field.Name)
			c.buf.WriteString(`","type":`)
			if err := c.write(field.Type); err != nil {
				return err
			}
			c.buf.WriteByte('}')
		}
		c.buf.WriteString(`]}`)
	case TypeEnum:
		if writeOnlyName(node.Name) {
			return nil
		}
		c.buf.WriteString(`{"name":"`)
		c.buf.WriteString(node.Name.FullName())
		c.buf.WriteString(`","type":"enum","symbols":[`)
		for i, symbol := range node.Symbols {
			if i > 0 {
				c.buf.WriteByte(',')
			}
			c.buf.WriteByte('"')
			c.buf.WriteString(symbol)
			c.buf.WriteByte('"')
		}
		c.buf.WriteString(`]}`)
	case TypeFixed:
		if writeOnlyName(node.Name) {
			return nil
		}
		c.buf.WriteString(`{"name":"`)
		c.buf.WriteString(node.Name.FullName())
		c.buf.WriteString(`","type":"fixed","size":`)
		c.buf.WriteString(strconv.Itoa(node.Size))
		c.buf.WriteByte('}')
	case TypeLogical:
		// Logical types are entirely omitted from the PCF.
		return c.write(node.Inner)
	default:
		return schemaErrorf("cannot write canonical form for unknown node type %d", node.Type)
	}
	return nil
}
