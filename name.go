// Copyright [2019] LinkedIn Corp. Licensed under the Apache License, Version
// 2.0 (the "License"); you may not use this file except in compliance with the
// License.  You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.

package avrofast

import "strings"

// Name is the identity of a named type (record, enum, fixed). It stores the
// fully-qualified name and, when the type lives in a namespace, the position
// of the last dot that separates namespace from short name.
//
// A name with no namespace (the "null namespace") has delimiter -1.
type Name struct {
	fullName     string
	delimiterIdx int
}

// NewName builds a Name from a short name and an optional namespace. If
// shortName already contains a dot it is treated as fully qualified and
// namespace is ignored, per the Avro name resolution rules.
func NewName(shortName, namespace string) Name {
	if idx := strings.LastIndexByte(shortName, '.'); idx >= 0 {
		return Name{fullName: shortName, delimiterIdx: idx}
	}
	if namespace == "" {
		return Name{fullName: shortName, delimiterIdx: -1}
	}
	return Name{
		fullName:     namespace + "." + shortName,
		delimiterIdx: len(namespace),
	}
}

// FullName returns the fully-qualified name, e.g. "com.example.Thing".
func (n Name) FullName() string { return n.fullName }

// ShortName returns the name without its namespace.
func (n Name) ShortName() string {
	if n.delimiterIdx < 0 {
		return n.fullName
	}
	return n.fullName[n.delimiterIdx+1:]
}

// Namespace returns the namespace, or the empty string for the null
// namespace.
func (n Name) Namespace() string {
	if n.delimiterIdx < 0 {
		return ""
	}
	return n.fullName[:n.delimiterIdx]
}

func (n Name) String() string { return n.fullName }

// nameKey identifies a named type during parsing; namespace "" means the
// null namespace.
type nameKey struct {
	namespace string
	name      string
}

func (k nameKey) String() string {
	if k.namespace == "" {
		return k.name
	}
	return k.namespace + "." + k.name
}

func (k nameKey) toName() Name {
	return NewName(k.name, k.namespace)
}

// splitReference resolves a bare string reference against the enclosing
// namespace: a dotted reference is fully qualified verbatim, otherwise the
// enclosing namespace is prepended.
func splitReference(reference, enclosingNamespace string) nameKey {
	if idx := strings.LastIndexByte(reference, '.'); idx >= 0 {
		return nameKey{namespace: reference[:idx], name: reference[idx+1:]}
	}
	return nameKey{namespace: enclosingNamespace, name: reference}
}
