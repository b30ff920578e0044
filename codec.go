// Copyright [2019] LinkedIn Corp. Licensed under the Apache License, Version
// 2.0 (the "License"); you may not use this file except in compliance with the
// License.  You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.

package avrofast

// Codec bundles a frozen Schema with a decoder and an encoder behind the
// classic two-method surface. A Codec is not safe for concurrent use; build
// one per goroutine around the same shared Schema.
type Codec struct {
	schema  *Schema
	decoder *Decoder
	encoder *Encoder
}

// NewCodec compiles schema JSON all the way to a ready codec.
func NewCodec(schemaJSON string) (*Codec, error) {
	mut, err := ParseSchema(schemaJSON)
	if err != nil {
		return nil, err
	}
	schema, err := mut.Freeze()
	if err != nil {
		return nil, err
	}
	return NewCodecFromSchema(schema), nil
}

// NewCodecFromSchema builds a codec around an already-frozen schema.
func NewCodecFromSchema(schema *Schema) *Codec {
	return &Codec{
		schema:  schema,
		decoder: NewDecoder(schema),
		encoder: NewEncoder(schema),
	}
}

// Schema returns the frozen schema this codec operates on.
func (c *Codec) Schema() *Schema { return c.schema }

// NativeFromBinary decodes one datum from buf, returning the decoded value
// and the unconsumed remainder of buf.
func (c *Codec) NativeFromBinary(buf []byte) (interface{}, []byte, error) {
	return c.decoder.NativeFromBinary(buf)
}

// BinaryFromNative appends the binary encoding of datum to buf.
func (c *Codec) BinaryFromNative(buf []byte, datum interface{}) ([]byte, error) {
	return c.encoder.BinaryFromNative(buf, datum)
}
