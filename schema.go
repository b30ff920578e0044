// Copyright [2019] LinkedIn Corp. Licensed under the Apache License, Version
// 2.0 (the "License"); you may not use this file except in compliance with the
// License.  You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.

package avrofast

import "slices"

// Type discriminates the kind of a SchemaNode.
type Type int

// Regular Avro types, plus TypeLogical for a logical-type annotation node
// that wraps an inner regular-type node.
const (
	TypeNull Type = iota
	TypeBoolean
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeBytes
	TypeString
	TypeArray
	TypeMap
	TypeUnion
	TypeRecord
	TypeEnum
	TypeFixed
	TypeLogical
)

var typeNames = map[Type]string{
	TypeNull:    "null",
	TypeBoolean: "boolean",
	TypeInt:     "int",
	TypeLong:    "long",
	TypeFloat:   "float",
	TypeDouble:  "double",
	TypeBytes:   "bytes",
	TypeString:  "string",
	TypeArray:   "array",
	TypeMap:     "map",
	TypeUnion:   "union",
	TypeRecord:  "record",
	TypeEnum:    "enum",
	TypeFixed:   "fixed",
	TypeLogical: "logical",
}

func (t Type) String() string { return typeNames[t] }

// Logical type identifiers as they appear in schema JSON.
const (
	LogicalDecimal         = "decimal"
	LogicalUUID            = "uuid"
	LogicalDate            = "date"
	LogicalTimeMillis      = "time-millis"
	LogicalTimeMicros      = "time-micros"
	LogicalTimestampMillis = "timestamp-millis"
	LogicalTimestampMicros = "timestamp-micros"
	LogicalDuration        = "duration"
)

// SchemaKey is the location of a node in a SchemaMut: a stable index into the
// node sequence. The root of the schema is always index 0.
type SchemaKey int

// RootKey is the SchemaKey of the schema root.
const RootKey SchemaKey = 0

// RecordField is one field of a record node, referencing its type by key.
type RecordField struct {
	Name string
	Type SchemaKey
}

// SchemaNode is one node of the editable schema graph. Which fields are
// meaningful depends on Type:
//
//	TypeArray:   Items
//	TypeMap:     Values
//	TypeUnion:   Variants
//	TypeRecord:  Name, Fields
//	TypeEnum:    Name, Symbols
//	TypeFixed:   Name, Size
//	TypeLogical: LogicalType, Inner, and for "decimal" Precision and Scale
//
// References between nodes are SchemaKeys indexing into the owning SchemaMut.
type SchemaNode struct {
	Type Type

	Items    SchemaKey
	Values   SchemaKey
	Variants []SchemaKey
	Fields   []RecordField
	Symbols  []string
	Name     Name
	Size     int

	LogicalType string
	Inner       SchemaKey
	Precision   int
	Scale       int
}

// SchemaMut is the editable representation of an Avro schema: a general
// directed graph of nodes stored in a flat sequence, with references by
// index. Cycles are permitted (and are how self-referential schemas are
// expressed), except zero-sized cycles, which are rejected by Validate.
//
// A SchemaMut is freely mutable; Freeze consumes it into the immutable
// Schema used by the decoder and encoder.
type SchemaMut struct {
	nodes []SchemaNode
	// Minified original JSON, preserved across parse for re-emission.
	// Cleared by NodesMut since edits invalidate it.
	schemaJSON string
}

// FromNodes builds a SchemaMut from a node sequence. The first node is the
// root.
func FromNodes(nodes []SchemaNode) *SchemaMut {
	return &SchemaMut{nodes: nodes}
}

// Nodes returns the underlying node storage. The first node is the root.
func (s *SchemaMut) Nodes() []SchemaNode { return s.nodes }

// NodesMut returns the node storage for mutation. This drops the preserved
// original JSON; it will be re-generated on demand (losing non-stored fields
// such as doc and default).
func (s *SchemaMut) NodesMut() *[]SchemaNode {
	s.schemaJSON = ""
	return &s.nodes
}

// Get returns the node at key, or false when the key is out of range.
func (s *SchemaMut) Get(key SchemaKey) (SchemaNode, bool) {
	if key < 0 || int(key) >= len(s.nodes) {
		return SchemaNode{}, false
	}
	return s.nodes[key], true
}

// Root returns the root node of the schema.
func (s *SchemaMut) Root() SchemaNode { return s.nodes[0] }

// Clone returns a deep copy of the editable graph, so the copy can be edited
// without affecting the original.
func (s *SchemaMut) Clone() *SchemaMut {
	nodes := make([]SchemaNode, len(s.nodes))
	for i, node := range s.nodes {
		node.Variants = slices.Clone(node.Variants)
		node.Fields = slices.Clone(node.Fields)
		node.Symbols = slices.Clone(node.Symbols)
		nodes[i] = node
	}
	return &SchemaMut{nodes: nodes, schemaJSON: s.schemaJSON}
}

// Validate checks the structural invariants that parsing normally
// guarantees: every reference in range, and no zero-sized cycle. It is
// mostly useful after editing the graph through NodesMut.
func (s *SchemaMut) Validate() error {
	if len(s.nodes) == 0 {
		return schemaErrorf("schema ought to have at least one node (the root)")
	}
	check := func(key SchemaKey) error {
		if key < 0 || int(key) >= len(s.nodes) {
			return schemaErrorf("schema key %d refers to non-existing node", key)
		}
		return nil
	}
	for i := range s.nodes {
		node := &s.nodes[i]
		switch node.Type {
		case TypeArray:
			if err := check(node.Items); err != nil {
				return err
			}
		case TypeMap:
			if err := check(node.Values); err != nil {
				return err
			}
		case TypeUnion:
			for _, v := range node.Variants {
				if err := check(v); err != nil {
					return err
				}
			}
		case TypeRecord:
			for _, f := range node.Fields {
				if err := check(f.Type); err != nil {
					return err
				}
			}
		case TypeLogical:
			if err := check(node.Inner); err != nil {
				return err
			}
			if s.nodes[node.Inner].Type == TypeLogical {
				return schemaErrorf("immediately-nested logical types: %q in %q",
					s.nodes[node.Inner].LogicalType, node.LogicalType)
			}
		}
	}
	return s.checkForCycles()
}

// checkForCycles detects zero-sized unconditional cycles: a record that is
// transitively reachable from itself solely via record-field edges. Any
// other path (union, array, map) consumes at least one byte of input, so it
// cannot make the decoder recurse for free.
func (s *SchemaMut) checkForCycles() error {
	visited := make([]bool, len(s.nodes))
	checked := make([]bool, len(s.nodes))
	for idx := range s.nodes {
		if s.nodes[idx].Type == TypeRecord && !checked[idx] {
			if err := s.checkNoZeroSizedCycle(idx, visited, checked); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SchemaMut) checkNoZeroSizedCycle(nodeIdx int, visited, checked []bool) error {
	visited[nodeIdx] = true
	for _, field := range s.nodes[nodeIdx].Fields {
		target := s.resolveThroughLogical(field.Type)
		if s.nodes[target].Type != TypeRecord {
			continue
		}
		if visited[target] {
			return schemaErrorf("schema contains a record that ends up always containing itself")
		}
		if err := s.checkNoZeroSizedCycle(int(target), visited, checked); err != nil {
			return err
		}
	}
	visited[nodeIdx] = false
	checked[nodeIdx] = true
	return nil
}

// resolveThroughLogical follows logical-type wrappers down to the regular
// node they annotate.
func (s *SchemaMut) resolveThroughLogical(key SchemaKey) SchemaKey {
	for s.nodes[key].Type == TypeLogical {
		key = s.nodes[key].Inner
	}
	return key
}
