// Copyright [2019] LinkedIn Corp. Licensed under the Apache License, Version
// 2.0 (the "License"); you may not use this file except in compliance with the
// License.  You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.

// Package avrofast is a fast, allocation-lean codec for the Apache Avro
// binary encoding.
//
// A schema is parsed from JSON into an editable SchemaMut (a flat node graph
// referenced by index), then frozen into an immutable Schema whose nodes are
// linked by direct pointers and which carries pre-computed union, record,
// and enum lookup tables. Decoder and Encoder translate between binary Avro
// datums and native Go values against a frozen Schema; Codec bundles both.
//
// The single-datum form, the C3 01 single object framing, and the object
// container file format (OCFReader, OCFWriter) are all supported, the
// latter with the null, deflate, snappy, bzip2, xz, and zstandard block
// codecs.
//
// The decoder requires that a datum was written with the same schema it is
// read with: reader-vs-writer schema resolution is out of scope.
package avrofast
