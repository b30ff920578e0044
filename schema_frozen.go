// Copyright [2019] LinkedIn Corp. Licensed under the Apache License, Version
// 2.0 (the "License"); you may not use this file except in compliance with the
// License.  You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.

package avrofast

// nodeType is the fully-lowered kind of a frozen schema node. Logical types
// that survived freeze get dedicated kinds; the rest have been remapped to
// their inner regular node.
type nodeType int

const (
	nodeNull nodeType = iota
	nodeBoolean
	nodeInt
	nodeLong
	nodeFloat
	nodeDouble
	nodeBytes
	nodeString
	nodeArray
	nodeMap
	nodeUnion
	nodeRecord
	nodeEnum
	nodeFixed
	nodeDecimal
	nodeUUID
	nodeDate
	nodeTimeMillis
	nodeTimeMicros
	nodeTimestampMillis
	nodeTimestampMicros
	nodeDuration
)

var nodeTypeNames = [...]string{
	nodeNull:            "Null",
	nodeBoolean:         "Boolean",
	nodeInt:             "Int",
	nodeLong:            "Long",
	nodeFloat:           "Float",
	nodeDouble:          "Double",
	nodeBytes:           "Bytes",
	nodeString:          "String",
	nodeArray:           "Array",
	nodeMap:             "Map",
	nodeUnion:           "Union",
	nodeRecord:          "Record",
	nodeEnum:            "Enum",
	nodeFixed:           "Fixed",
	nodeDecimal:         "Decimal",
	nodeUUID:            "Uuid",
	nodeDate:            "Date",
	nodeTimeMillis:      "TimeMillis",
	nodeTimeMicros:      "TimeMicros",
	nodeTimestampMillis: "TimestampMillis",
	nodeTimestampMicros: "TimestampMicros",
	nodeDuration:        "Duration",
}

func (t nodeType) String() string { return nodeTypeNames[t] }

type frozenField struct {
	name   string
	schema *node
}

// node is one node of a frozen Schema. All inter-node edges are direct
// pointers into the owning Schema's flat node allocation, so navigating the
// graph is free of index arithmetic and bounds checks.
type node struct {
	t nodeType

	// Array items / map values.
	child *node

	// Union.
	variants     []*node
	variantNames []string
	perCategory  [numUnionCategories]unionTarget
	perName      map[string]unionTarget

	// Record.
	fields     []frozenField
	fieldIndex map[string]int

	// Enum.
	symbols     []string
	symbolIndex map[string]int

	// Record / enum / fixed.
	name Name

	// Fixed.
	size int

	// Decimal.
	scale     int
	precision int
	reprFixed *node // nil means the bytes representation
}

// Schema is the immutable, possibly-cyclic frozen schema used by the decoder
// and encoder. It is produced by SchemaMut.Freeze and is freely shareable;
// all mutation happens on the SchemaMut before freezing.
type Schema struct {
	nodes       []node
	rootNode    *node
	fingerprint [8]byte
	schemaJSON  string
}

// JSON returns the schema JSON, as preserved from parse or regenerated at
// freeze. This is what an OCF writer embeds in the file header.
func (s *Schema) JSON() string { return s.schemaJSON }

// RabinFingerprint returns the Rabin fingerprint of the schema's Parsing
// Canonical Form as 8 little-endian bytes.
func (s *Schema) RabinFingerprint() [8]byte { return s.fingerprint }

func (s *Schema) root() *node { return s.rootNode }

// Freeze lowers the editable graph into an immutable Schema: logical-type
// annotations either become dedicated node kinds or degrade to their inner
// regular type, every reference becomes a direct pointer, and the per-union,
// per-record, and per-enum lookup tables are populated.
//
// The SchemaMut should not be used for freezing again afterwards; Clone it
// first if further editing is needed.
func (s *SchemaMut) Freeze() (*Schema, error) {
	if len(s.nodes) == 0 {
		return nil, schemaErrorf("schema ought to have at least one node (the root)")
	}

	fingerprint, err := s.CanonicalFormRabinFingerprint()
	if err != nil {
		return nil, err
	}
	schemaJSON, err := s.JSON()
	if err != nil {
		return nil, err
	}

	// Resolve logical annotations: either to a dedicated node kind, or to a
	// remap of every reference onto the inner regular node.
	const noRemap = -1
	remap := make([]int, len(s.nodes))
	resolved := make([]nodeType, len(s.nodes))
	decimalFixedIdx := make([]int, len(s.nodes))
	for i := range s.nodes {
		remap[i] = noRemap
		decimalFixedIdx[i] = noRemap
		safeNode := &s.nodes[i]
		if safeNode.Type != TypeLogical {
			continue
		}
		if safeNode.Inner < 0 || int(safeNode.Inner) >= len(s.nodes) {
			return nil, schemaErrorf("logical type refers to node that doesn't exist")
		}
		inner := &s.nodes[safeNode.Inner]
		if inner.Type == TypeLogical {
			return nil, schemaErrorf("immediately-nested logical types: %q in %q",
				inner.LogicalType, safeNode.LogicalType)
		}
		switch {
		case safeNode.LogicalType == LogicalDecimal && inner.Type == TypeBytes:
			resolved[i] = nodeDecimal
		case safeNode.LogicalType == LogicalDecimal && inner.Type == TypeFixed:
			resolved[i] = nodeDecimal
			decimalFixedIdx[i] = int(safeNode.Inner)
		case safeNode.LogicalType == LogicalUUID && inner.Type == TypeString:
			resolved[i] = nodeUUID
		case safeNode.LogicalType == LogicalDate && inner.Type == TypeInt:
			resolved[i] = nodeDate
		case safeNode.LogicalType == LogicalTimeMillis && inner.Type == TypeInt:
			resolved[i] = nodeTimeMillis
		case safeNode.LogicalType == LogicalTimeMicros && inner.Type == TypeLong:
			resolved[i] = nodeTimeMicros
		case safeNode.LogicalType == LogicalTimestampMillis && inner.Type == TypeLong:
			resolved[i] = nodeTimestampMillis
		case safeNode.LogicalType == LogicalTimestampMicros && inner.Type == TypeLong:
			resolved[i] = nodeTimestampMicros
		case safeNode.LogicalType == LogicalDuration && inner.Type == TypeFixed && inner.Size == 12:
			resolved[i] = nodeDuration
		default:
			// Unknown logical type, or a mismatched inner-type pairing:
			// degrade to the inner regular type.
			remap[i] = int(safeNode.Inner)
		}
	}

	frozen := &Schema{
		nodes:       make([]node, len(s.nodes)),
		fingerprint: fingerprint,
		schemaJSON:  schemaJSON,
	}

	// The root itself may be a degraded logical wrapper, in which case the
	// remap applies to it too.
	rootIdx := 0
	if remap[0] != noRemap {
		rootIdx = remap[0]
	}
	frozen.rootNode = &frozen.nodes[rootIdx]

	keyToPtr := func(key SchemaKey) (*node, error) {
		if key < 0 || int(key) >= len(s.nodes) {
			return nil, schemaErrorf("schema key %d is out of bounds (len: %d)", key, len(s.nodes))
		}
		idx := int(key)
		if remap[idx] != noRemap {
			// There cannot be nested logical types, so no second remapping.
			idx = remap[idx]
		}
		return &frozen.nodes[idx], nil
	}

	for i := range s.nodes {
		safeNode := &s.nodes[i]
		out := &frozen.nodes[i]
		switch safeNode.Type {
		case TypeLogical:
			if remap[i] != noRemap {
				// Every reference to this node points at the inner node now;
				// the placeholder is never visited.
				continue
			}
			out.t = resolved[i]
			if out.t == nodeDecimal {
				out.scale = safeNode.Scale
				out.precision = safeNode.Precision
				if decimalFixedIdx[i] != noRemap {
					out.reprFixed = &frozen.nodes[decimalFixedIdx[i]]
				}
			}
		case TypeNull:
			out.t = nodeNull
		case TypeBoolean:
			out.t = nodeBoolean
		case TypeInt:
			out.t = nodeInt
		case TypeLong:
			out.t = nodeLong
		case TypeFloat:
			out.t = nodeFloat
		case TypeDouble:
			out.t = nodeDouble
		case TypeBytes:
			out.t = nodeBytes
		case TypeString:
			out.t = nodeString
		case TypeArray:
			out.t = nodeArray
			child, err := keyToPtr(safeNode.Items)
			if err != nil {
				return nil, err
			}
			out.child = child
		case TypeMap:
			out.t = nodeMap
			child, err := keyToPtr(safeNode.Values)
			if err != nil {
				return nil, err
			}
			out.child = child
		case TypeUnion:
			out.t = nodeUnion
			out.variants = make([]*node, len(safeNode.Variants))
			for j, variantKey := range safeNode.Variants {
				variant, err := keyToPtr(variantKey)
				if err != nil {
					return nil, err
				}
				out.variants[j] = variant
			}
		case TypeRecord:
			out.t = nodeRecord
			out.name = safeNode.Name
			out.fields = make([]frozenField, len(safeNode.Fields))
			out.fieldIndex = make(map[string]int, len(safeNode.Fields))
			for j, field := range safeNode.Fields {
				fieldNode, err := keyToPtr(field.Type)
				if err != nil {
					return nil, err
				}
				out.fields[j] = frozenField{name: field.Name, schema: fieldNode}
				out.fieldIndex[field.Name] = j
			}
		case TypeEnum:
			out.t = nodeEnum
			out.name = safeNode.Name
			out.symbols = safeNode.Symbols
			out.symbolIndex = make(map[string]int, len(safeNode.Symbols))
			for j, symbol := range safeNode.Symbols {
				out.symbolIndex[symbol] = j
			}
		case TypeFixed:
			out.t = nodeFixed
			out.name = safeNode.Name
			out.size = safeNode.Size
		default:
			return nil, schemaErrorf("cannot freeze schema node of unknown type %d", safeNode.Type)
		}
	}

	// All nodes exist now, so the per-union lookup tables can read even the
	// late-resolved parts such as decimal representations.
	for i := range frozen.nodes {
		union := &frozen.nodes[i]
		if union.t == nodeUnion {
			buildUnionLookup(union)
		}
	}

	return frozen, nil
}

// variantName is the tag the decoder presents for a union variant: the
// fully-qualified name for named types, the PascalCase type name otherwise.
func variantName(n *node) string {
	switch n.t {
	case nodeRecord, nodeEnum, nodeFixed:
		return n.name.FullName()
	case nodeDecimal:
		if n.reprFixed != nil {
			return n.reprFixed.name.FullName()
		}
		return n.t.String()
	default:
		return n.t.String()
	}
}
