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
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
)

// JSON returns the schema as minified JSON. If the SchemaMut was produced by
// ParseSchema and not edited since, this is the original document minified
// (all fields preserved); otherwise it is re-generated from the graph,
// which loses non-stored fields such as doc and default.
func (s *SchemaMut) JSON() (string, error) {
	if s.schemaJSON != "" {
		return s.schemaJSON, nil
	}
	buf, err := s.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// JSONIndent is like JSON but pretty-printed.
func (s *SchemaMut) JSONIndent() (string, error) {
	minified, err := s.JSON()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, []byte(minified), "", "  "); err != nil {
		return "", schemaErrorf("cannot indent schema JSON: %s", err)
	}
	return out.String(), nil
}

// MarshalJSON emits a JSON representation of the current graph. Named nodes
// are lowered to references after their first occurrence (short name when
// the enclosing namespace matches, fully-qualified otherwise). It fails when
// a non-named node would have to be emitted more than once, i.e. the graph
// contains a cycle not broken by a named reference.
func (s *SchemaMut) MarshalJSON() ([]byte, error) {
	stream := schemaJSONConfig.BorrowStream(nil)
	defer schemaJSONConfig.ReturnStream(stream)

	w := &schemaJSONWriter{
		nodes:   s.nodes,
		written: make([]bool, len(s.nodes)),
		stream:  stream,
	}
	if err := w.writeNode(RootKey, ""); err != nil {
		return nil, err
	}
	if stream.Error != nil {
		return nil, schemaErrorf("cannot serialize schema to JSON: %s", stream.Error)
	}
	out := make([]byte, len(stream.Buffer()))
	copy(out, stream.Buffer())
	return out, nil
}

type schemaJSONWriter struct {
	nodes   []SchemaNode
	written []bool
	stream  *jsoniter.Stream
}

// refString lowers a reference to an already-written named node: the short
// name when the enclosing namespace matches, a leading-dot form for a
// null-namespace name referenced from inside a namespace, the
// fully-qualified name otherwise.
func (w *schemaJSONWriter) refString(name Name, enclosingNamespace string) string {
	switch {
	case name.Namespace() == enclosingNamespace:
		return name.ShortName()
	case name.Namespace() == "":
		return "." + name.FullName()
	default:
		return name.FullName()
	}
}

func (w *schemaJSONWriter) writeName(name Name, enclosingNamespace string) {
	switch {
	case name.Namespace() == enclosingNamespace:
		w.stream.WriteObjectField("name")
		w.stream.WriteString(name.ShortName())
	case name.Namespace() == "":
		// An explicit empty namespace brings the null namespace back.
		w.stream.WriteObjectField("namespace")
		w.stream.WriteString("")
		w.stream.WriteMore()
		w.stream.WriteObjectField("name")
		w.stream.WriteString(name.ShortName())
	default:
		w.stream.WriteObjectField("name")
		w.stream.WriteString(name.FullName())
	}
}

func (w *schemaJSONWriter) writeNode(key SchemaKey, enclosingNamespace string) error {
	if key < 0 || int(key) >= len(w.nodes) {
		return schemaErrorf("schema key %d refers to non-existing node", key)
	}
	node := &w.nodes[key]

	named := node.Type == TypeRecord || node.Type == TypeEnum || node.Type == TypeFixed
	if w.written[key] {
		if !named {
			return schemaErrorf("schema contains a cycle that can't be avoided using named references")
		}
		w.stream.WriteString(w.refString(node.Name, enclosingNamespace))
		return nil
	}
	w.written[key] = true

	switch node.Type {
	case TypeNull, TypeBoolean, TypeInt, TypeLong, TypeFloat, TypeDouble, TypeBytes, TypeString:
		w.stream.WriteString(node.Type.String())
	case TypeArray:
		w.stream.WriteObjectStart()
		w.stream.WriteObjectField("type")
		w.stream.WriteString("array")
		w.stream.WriteMore()
		w.stream.WriteObjectField("items")
		if err := w.writeNode(node.Items, enclosingNamespace); err != nil {
			return err
		}
		w.stream.WriteObjectEnd()
	case TypeMap:
		w.stream.WriteObjectStart()
		w.stream.WriteObjectField("type")
		w.stream.WriteString("map")
		w.stream.WriteMore()
		w.stream.WriteObjectField("values")
		if err := w.writeNode(node.Values, enclosingNamespace); err != nil {
			return err
		}
		w.stream.WriteObjectEnd()
	case TypeUnion:
		w.stream.WriteArrayStart()
		for i, variant := range node.Variants {
			if i > 0 {
				w.stream.WriteMore()
			}
			if err := w.writeNode(variant, enclosingNamespace); err != nil {
				return err
			}
		}
		w.stream.WriteArrayEnd()
	case TypeRecord:
		w.stream.WriteObjectStart()
		w.stream.WriteObjectField("type")
		w.stream.WriteString("record")
		w.stream.WriteMore()
		w.writeName(node.Name, enclosingNamespace)
		w.stream.WriteMore()
		w.stream.WriteObjectField("fields")
		w.stream.WriteArrayStart()
		for i, field := range node.Fields {
			if i > 0 {
				w.stream.WriteMore()
			}
			w.stream.WriteObjectStart()
			w.stream.WriteObjectField("name")
			w.stream.WriteString(field.Name)
			w.stream.WriteMore()
			w.stream.WriteObjectField("type")
			if err := w.writeNode(field.Type, node.Name.Namespace()); err != nil {
				return err
			}
			w.stream.WriteObjectEnd()
		}
		w.stream.WriteArrayEnd()
		w.stream.WriteObjectEnd()
	case TypeEnum:
		w.stream.WriteObjectStart()
		w.stream.WriteObjectField("type")
		w.stream.WriteString("enum")
		w.stream.WriteMore()
		w.writeName(node.Name, enclosingNamespace)
		w.stream.WriteMore()
		w.stream.WriteObjectField("symbols")
		w.stream.WriteArrayStart()
		for i, symbol := range node.Symbols {
			if i > 0 {
				w.stream.WriteMore()
			}
			w.stream.WriteString(symbol)
		}
		w.stream.WriteArrayEnd()
		w.stream.WriteObjectEnd()
	case TypeFixed:
		w.stream.WriteObjectStart()
		w.stream.WriteObjectField("type")
		w.stream.WriteString("fixed")
		w.stream.WriteMore()
		w.writeName(node.Name, enclosingNamespace)
		w.stream.WriteMore()
		w.stream.WriteObjectField("size")
		w.stream.WriteInt(node.Size)
		w.stream.WriteObjectEnd()
	case TypeLogical:
		w.stream.WriteObjectStart()
		w.stream.WriteObjectField("logicalType")
		w.stream.WriteString(node.LogicalType)
		if node.LogicalType == LogicalDecimal {
			w.stream.WriteMore()
			w.stream.WriteObjectField("precision")
			w.stream.WriteInt(node.Precision)
			w.stream.WriteMore()
			w.stream.WriteObjectField("scale")
			w.stream.WriteInt(node.Scale)
		}
		w.stream.WriteMore()
		w.stream.WriteObjectField("type")
		if err := w.writeNode(node.Inner, enclosingNamespace); err != nil {
			return err
		}
		w.stream.WriteObjectEnd()
	default:
		return schemaErrorf("cannot serialize schema node of unknown type %d", node.Type)
	}
	return nil
}
