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
	"fmt"
	"sort"
)

// unionCategory is the broad category of a value about to be written. Union
// variant resolution is a table lookup on this category, with the table
// fully pre-computed at freeze time.
type unionCategory int

const (
	catNull unionCategory = iota
	catBoolean
	catInteger
	catInteger4
	catInteger8
	catFloat4
	catFloat8
	catStr
	catSliceU8
	catUnitStruct
	catUnitVariant
	catStructOrMap
	catSeqOrTuple
	numUnionCategories
)

var unionCategoryNames = [...]string{
	catNull:        "null",
	catBoolean:     "boolean",
	catInteger:     "integer",
	catInteger4:    "32-bit integer",
	catInteger8:    "64-bit integer",
	catFloat4:      "32-bit float",
	catFloat8:      "64-bit float",
	catStr:         "string",
	catSliceU8:     "byte slice",
	catUnitStruct:  "unit struct",
	catUnitVariant: "unit variant",
	catStructOrMap: "struct or map",
	catSeqOrTuple:  "sequence",
}

func (c unionCategory) String() string { return unionCategoryNames[c] }

const (
	targetNone uint8 = iota
	targetSome
	targetConflict
)

// unionTarget is one slot of a union's per-category table: the variant
// discriminant to emit and the node to continue encoding against. A
// conflict state means two variants contributed at equal best priority, so
// the category is ambiguous and the caller must provide an explicit name.
type unionTarget struct {
	discriminant int64
	schema       *node
	state        uint8
	priority     int
}

// buildUnionLookup populates a union node's per-category and per-name
// tables. Each variant contributes to one or more categories with a
// priority; the lowest priority wins, and ties at the best priority render
// the category ambiguous.
func buildUnionLookup(union *node) {
	union.perName = make(map[string]unionTarget)
	union.variantNames = make([]string, len(union.variants))

	for i, variant := range union.variants {
		discriminant := int64(i)
		union.variantNames[i] = variantName(variant)

		register := func(category unionCategory, priority int) {
			slot := &union.perCategory[category]
			switch slot.state {
			case targetNone:
				*slot = unionTarget{
					discriminant: discriminant,
					schema:       variant,
					state:        targetSome,
					priority:     priority,
				}
			case targetSome:
				switch {
				case slot.priority < priority:
					// Existing entry wins.
				case slot.priority == priority:
					slot.state = targetConflict
				default:
					*slot = unionTarget{
						discriminant: discriminant,
						schema:       variant,
						state:        targetSome,
						priority:     priority,
					}
				}
			case targetConflict:
				if priority < slot.priority {
					*slot = unionTarget{
						discriminant: discriminant,
						schema:       variant,
						state:        targetSome,
						priority:     priority,
					}
				}
			}
		}
		registerName := func(name Name) {
			target := unionTarget{discriminant: discriminant, schema: variant, state: targetSome}
			union.perName[name.ShortName()] = target
			union.perName[name.FullName()] = target
		}

		switch variant.t {
		case nodeNull:
			register(catNull, 0)
			register(catUnitStruct, 0)
			register(catUnitVariant, 2)
		case nodeBoolean:
			register(catBoolean, 0)
		case nodeInt, nodeDate, nodeTimeMillis:
			register(catInteger, 0)
			register(catInteger4, 0)
			register(catInteger8, 1)
		case nodeLong, nodeTimeMicros, nodeTimestampMillis, nodeTimestampMicros:
			register(catInteger, 0)
			register(catInteger4, 1)
			register(catInteger8, 0)
		case nodeFloat:
			register(catFloat4, 0)
			register(catFloat8, 1)
		case nodeDouble:
			register(catFloat8, 0)
			register(catFloat4, 1) // a float32 widens to double
		case nodeBytes:
			register(catStr, 10)
			register(catSliceU8, 0)
			register(catSeqOrTuple, 10)
		case nodeString:
			register(catStr, 0)
			register(catUnitStruct, 0)
			register(catSliceU8, 1)
			register(catUnitVariant, 1)
		case nodeArray:
			register(catSeqOrTuple, 0)
		case nodeMap:
			register(catStructOrMap, 0)
		case nodeUnion:
			// Unions directly inside unions are unsupported by convention,
			// so no lookups are registered through them.
		case nodeEnum:
			registerName(variant.name)
			register(catInteger, 10)
			register(catInteger4, 10)
			register(catInteger8, 10)
			register(catUnitStruct, 0)
			register(catStr, 5)
			register(catUnitVariant, 0)
		case nodeRecord:
			registerName(variant.name)
			register(catStructOrMap, 0)
		case nodeFixed:
			registerName(variant.name)
			register(catStr, 15)
			register(catSliceU8, 0)
			register(catSeqOrTuple, 15)
		case nodeDecimal:
			if variant.reprFixed != nil {
				registerName(variant.reprFixed.name)
			}
			register(catInteger, 5)
			register(catInteger4, 5)
			register(catInteger8, 5)
		case nodeUUID:
			// A string in a union with both Uuid and String cannot be told
			// apart, so both register Str at equal priority and the conflict
			// forces an explicit name.
			register(catStr, 0)
		case nodeDuration:
			register(catStructOrMap, 5)
			register(catSeqOrTuple, 5)
			register(catSliceU8, 5)
		}
	}
}

// lookupUnnamed resolves a category against the union's pre-computed table.
func (n *node) lookupUnnamed(category unionCategory) (unionTarget, error) {
	slot := n.perCategory[category]
	switch slot.state {
	case targetSome:
		return slot, nil
	case targetConflict:
		return unionTarget{}, encodeErrorf(
			"cannot encode binary union: %s value is ambiguous between several variants; "+
				"specify the variant explicitly with a single-entry map keyed by type name: allowed names: %v",
			category, n.sortedVariantNames())
	default:
		return unionTarget{}, encodeErrorf(
			"cannot encode binary union: no member schema types support %s values: allowed names: %v",
			category, n.sortedVariantNames())
	}
}

// lookupNamed resolves an explicit variant name (short or fully-qualified
// named-type name, or the PascalCase type name for unnamed variants).
func (n *node) lookupNamed(name string) (unionTarget, bool) {
	if target, ok := n.perName[name]; ok {
		return target, true
	}
	// Unnamed variants can still be selected by their type name, which is
	// how a value decoded from a tagged union round-trips back in.
	for i, vn := range n.variantNames {
		if vn == name {
			return unionTarget{
				discriminant: int64(i),
				schema:       n.variants[i],
				state:        targetSome,
			}, true
		}
	}
	return unionTarget{}, false
}

// sortedVariantNames is used for error reporting when the encoder receives a
// datum no variant supports.
func (n *node) sortedVariantNames() []string {
	names := make([]string, len(n.variantNames))
	copy(names, n.variantNames)
	sort.Strings(names)
	return names
}

// nullVariant returns the discriminant of the union's Null variant when the
// per-category table resolves the null category to one; used when tolerating
// missing record fields.
func (n *node) nullVariant() (int64, bool) {
	slot := n.perCategory[catNull]
	if slot.state == targetSome && slot.schema.t == nodeNull {
		return slot.discriminant, true
	}
	return 0, false
}

// taggedUnionValue wraps a decoded non-null union variant when the union is
// not a simple [null, X] pair: a single-entry map keyed by the variant name,
// which is also the form the encoder accepts as an explicit variant hint.
func taggedUnionValue(name string, value interface{}) map[string]interface{} {
	return map[string]interface{}{name: value}
}

func describeDatum(datum interface{}) string {
	return fmt.Sprintf("%T", datum)
}
