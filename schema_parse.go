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
	jsoniter "github.com/json-iterator/go"
)

var schemaJSONConfig = jsoniter.ConfigCompatibleWithStandardLibrary

var primitiveTypes = map[string]Type{
	"null":    TypeNull,
	"boolean": TypeBoolean,
	"int":     TypeInt,
	"long":    TypeLong,
	"float":   TypeFloat,
	"double":  TypeDouble,
	"bytes":   TypeBytes,
	"string":  TypeString,
}

// lateBit marks a SchemaKey as an index into the unresolved-name list rather
// than the node sequence; such keys are fixed up in a second pass once the
// whole document has been parsed, so references may appear before their
// definitions.
const lateBit SchemaKey = 1 << 30

type schemaParser struct {
	nodes           []SchemaNode
	names           map[nameKey]SchemaKey
	unresolvedNames []nameKey
}

// ParseSchema parses Avro schema JSON into an editable SchemaMut. Beyond the
// Avro specification it tolerates references appearing before their
// definitions, and accepts `"namespace": ""` to denote the null namespace
// explicitly.
func ParseSchema(schemaJSON string) (*SchemaMut, error) {
	var raw interface{}
	if err := schemaJSONConfig.UnmarshalFromString(schemaJSON, &raw); err != nil {
		return nil, schemaErrorf("cannot parse schema JSON: %s", err)
	}

	p := &schemaParser{names: make(map[nameKey]SchemaKey)}
	if _, err := p.parseNode(raw, ""); err != nil {
		return nil, err
	}

	// Fix up references that were seen before their definitions.
	if len(p.unresolvedNames) > 0 {
		resolved := make([]SchemaKey, len(p.unresolvedNames))
		for i, key := range p.unresolvedNames {
			idx, ok := p.names[key]
			if !ok {
				return nil, schemaErrorf("schema contains an unknown reference: %s", key)
			}
			resolved[i] = idx
		}
		fix := func(key *SchemaKey) {
			if *key&lateBit != 0 {
				*key = resolved[*key&^lateBit]
			}
		}
		for i := range p.nodes {
			node := &p.nodes[i]
			switch node.Type {
			case TypeArray:
				fix(&node.Items)
			case TypeMap:
				fix(&node.Values)
			case TypeUnion:
				for j := range node.Variants {
					fix(&node.Variants[j])
				}
			case TypeRecord:
				for j := range node.Fields {
					fix(&node.Fields[j].Type)
				}
			case TypeLogical:
				fix(&node.Inner)
			}
		}
	}

	minified, err := schemaJSONConfig.MarshalToString(raw)
	if err != nil {
		return nil, schemaErrorf("cannot minify schema JSON: %s", err)
	}

	s := &SchemaMut{nodes: p.nodes, schemaJSON: minified}
	if err := s.checkForCycles(); err != nil {
		return nil, err
	}
	return s, nil
}

// parseNode recursively registers one schema node and returns its key. A
// node may be a primitive type string, a reference string, a union array, or
// an object.
func (p *schemaParser) parseNode(raw interface{}, enclosingNamespace string) (SchemaKey, error) {
	switch v := raw.(type) {
	case string:
		if t, ok := primitiveTypes[v]; ok {
			idx := p.reserve()
			p.nodes[idx] = SchemaNode{Type: t}
			return idx, nil
		}
		// A bare string that is not a primitive type name is a reference to
		// a named type, possibly not yet defined.
		key := splitReference(v, enclosingNamespace)
		if idx, ok := p.names[key]; ok {
			return idx, nil
		}
		late := SchemaKey(len(p.unresolvedNames)) | lateBit
		p.unresolvedNames = append(p.unresolvedNames, key)
		return late, nil
	case []interface{}:
		idx := p.reserve()
		variants := make([]SchemaKey, len(v))
		for i, variant := range v {
			child, err := p.parseNode(variant, enclosingNamespace)
			if err != nil {
				return 0, err
			}
			variants[i] = child
		}
		p.nodes[idx] = SchemaNode{Type: TypeUnion, Variants: variants}
		return idx, nil
	case map[string]interface{}:
		return p.parseObject(v, enclosingNamespace)
	default:
		return 0, schemaErrorf("schema ought to be string, object, or array; received: %T", raw)
	}
}

func (p *schemaParser) parseObject(obj map[string]interface{}, enclosingNamespace string) (SchemaKey, error) {
	typeRaw, ok := obj["type"]
	if !ok {
		return 0, schemaErrorf("schema object ought to have a \"type\" field")
	}

	if logicalRaw, ok := obj["logicalType"]; ok {
		logicalType, ok := logicalRaw.(string)
		if !ok {
			return 0, schemaErrorf("schema \"logicalType\" ought to be a string; received: %T", logicalRaw)
		}
		idx := p.reserve()
		node := SchemaNode{Type: TypeLogical, LogicalType: logicalType}
		if logicalType == LogicalDecimal {
			precision, err := intField(obj, "precision", logicalType)
			if err != nil {
				return 0, err
			}
			scale, _ := intField(obj, "scale", logicalType) // scale defaults to 0
			node.Precision = precision
			node.Scale = scale
		}
		inner, err := p.parseLogicalInner(obj, typeRaw, enclosingNamespace)
		if err != nil {
			return 0, err
		}
		if resolved, ok := p.nodeAt(inner); ok && resolved.Type == TypeLogical {
			return 0, schemaErrorf("immediately-nested logical types: %q in %q", resolved.LogicalType, logicalType)
		}
		node.Inner = inner
		p.nodes[idx] = node
		return idx, nil
	}

	return p.parseRegularObject(obj, typeRaw, enclosingNamespace)
}

// parseLogicalInner parses the regular type a logical annotation wraps. The
// "type" value may itself be a full schema (object, union array, reference),
// e.g. {"type":{"name":"duration","type":"fixed","size":12},"logicalType":"duration"}.
func (p *schemaParser) parseLogicalInner(obj map[string]interface{}, typeRaw interface{}, enclosingNamespace string) (SchemaKey, error) {
	if typeName, ok := typeRaw.(string); ok {
		if _, primitive := primitiveTypes[typeName]; !primitive {
			if _, complexType := complexTypeNames[typeName]; complexType {
				// Inline complex type sharing the annotation's object, e.g.
				// {"type":"fixed","name":"f","size":12,"logicalType":"duration"}.
				return p.parseRegularObject(obj, typeRaw, enclosingNamespace)
			}
		}
	}
	return p.parseNode(typeRaw, enclosingNamespace)
}

var complexTypeNames = map[string]Type{
	"array":  TypeArray,
	"map":    TypeMap,
	"record": TypeRecord,
	"enum":   TypeEnum,
	"fixed":  TypeFixed,
}

func (p *schemaParser) parseRegularObject(obj map[string]interface{}, typeRaw interface{}, enclosingNamespace string) (SchemaKey, error) {
	typeName, ok := typeRaw.(string)
	if !ok {
		// {"type": {...}} with a nested schema and no logicalType: the inner
		// schema stands on its own.
		return p.parseNode(typeRaw, enclosingNamespace)
	}

	if t, primitive := primitiveTypes[typeName]; primitive {
		idx := p.reserve()
		p.nodes[idx] = SchemaNode{Type: t}
		return idx, nil
	}

	t, complexType := complexTypeNames[typeName]
	if !complexType {
		// A reference in "type" position.
		return p.parseNode(typeName, enclosingNamespace)
	}

	idx := p.reserve()

	var named nameKey
	if t == TypeRecord || t == TypeEnum || t == TypeFixed {
		nameRaw, ok := obj["name"].(string)
		if !ok {
			return 0, schemaErrorf("missing name for type %q", typeName)
		}
		namespace := enclosingNamespace
		if explicit, ok := obj["namespace"].(string); ok {
			// An explicit empty string selects the null namespace.
			namespace = explicit
		}
		named = splitReference(nameRaw, namespace)
		if _, dup := p.names[named]; dup {
			return 0, schemaErrorf("schema contains duplicate definitions for %s", named)
		}
		p.names[named] = idx
	}

	switch t {
	case TypeArray:
		itemsRaw, ok := obj["items"]
		if !ok {
			return 0, schemaErrorf("missing field \"items\" on type array")
		}
		items, err := p.parseNode(itemsRaw, enclosingNamespace)
		if err != nil {
			return 0, err
		}
		p.nodes[idx] = SchemaNode{Type: TypeArray, Items: items}
	case TypeMap:
		valuesRaw, ok := obj["values"]
		if !ok {
			return 0, schemaErrorf("missing field \"values\" on type map")
		}
		values, err := p.parseNode(valuesRaw, enclosingNamespace)
		if err != nil {
			return 0, err
		}
		p.nodes[idx] = SchemaNode{Type: TypeMap, Values: values}
	case TypeRecord:
		fieldsRaw, ok := obj["fields"].([]interface{})
		if !ok {
			return 0, schemaErrorf("missing field \"fields\" on type record")
		}
		fields := make([]RecordField, len(fieldsRaw))
		for i, fieldRaw := range fieldsRaw {
			fieldObj, ok := fieldRaw.(map[string]interface{})
			if !ok {
				return 0, schemaErrorf("record field ought to be an object; received: %T", fieldRaw)
			}
			fieldName, ok := fieldObj["name"].(string)
			if !ok {
				return 0, schemaErrorf("record field ought to have a string \"name\"")
			}
			fieldTypeRaw, ok := fieldObj["type"]
			if !ok {
				return 0, schemaErrorf("record field %q ought to have a \"type\"", fieldName)
			}
			fieldType, err := p.parseNode(fieldTypeRaw, named.namespace)
			if err != nil {
				return 0, err
			}
			fields[i] = RecordField{Name: fieldName, Type: fieldType}
		}
		p.nodes[idx] = SchemaNode{Type: TypeRecord, Name: named.toName(), Fields: fields}
	case TypeEnum:
		symbolsRaw, ok := obj["symbols"].([]interface{})
		if !ok {
			return 0, schemaErrorf("missing field \"symbols\" on type enum")
		}
		symbols := make([]string, len(symbolsRaw))
		for i, symbolRaw := range symbolsRaw {
			symbol, ok := symbolRaw.(string)
			if !ok {
				return 0, schemaErrorf("enum symbol ought to be a string; received: %T", symbolRaw)
			}
			symbols[i] = symbol
		}
		p.nodes[idx] = SchemaNode{Type: TypeEnum, Name: named.toName(), Symbols: symbols}
	case TypeFixed:
		size, err := intField(obj, "size", typeName)
		if err != nil {
			return 0, err
		}
		p.nodes[idx] = SchemaNode{Type: TypeFixed, Name: named.toName(), Size: size}
	}

	return idx, nil
}

func (p *schemaParser) reserve() SchemaKey {
	idx := SchemaKey(len(p.nodes))
	p.nodes = append(p.nodes, SchemaNode{})
	return idx
}

// nodeAt resolves a possibly-late key to its node when already materialized.
func (p *schemaParser) nodeAt(key SchemaKey) (SchemaNode, bool) {
	if key&lateBit != 0 {
		return SchemaNode{}, false
	}
	return p.nodes[key], true
}

func intField(obj map[string]interface{}, field, owner string) (int, error) {
	raw, ok := obj[field]
	if !ok {
		return 0, schemaErrorf("missing field %q on type %q", field, owner)
	}
	f, ok := raw.(float64)
	if !ok || f != float64(int(f)) || f < 0 {
		return 0, schemaErrorf("field %q on type %q ought to be a non-negative integer; received: %v", field, owner, raw)
	}
	return int(f), nil
}
