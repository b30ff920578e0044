// Copyright [2019] LinkedIn Corp. Licensed under the Apache License, Version
// 2.0 (the "License"); you may not use this file except in compliance with the
// License.  You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.

package avrofast

import "fmt"

// SchemaError is returned when parsing, validating, serializing, or freezing
// a schema fails. It carries a single human-readable message.
type SchemaError struct {
	Message string
}

func (e *SchemaError) Error() string { return e.Message }

func schemaErrorf(format string, a ...interface{}) error {
	return &SchemaError{Message: fmt.Sprintf(format, a...)}
}

// DecodeError is returned when a datum cannot be decoded from its binary
// form. After a DecodeError the reader position is indeterminate.
type DecodeError struct {
	Message string
}

func (e *DecodeError) Error() string { return e.Message }

func decodeErrorf(format string, a ...interface{}) error {
	return &DecodeError{Message: fmt.Sprintf(format, a...)}
}

// EncodeError is returned when a value cannot be encoded against the current
// schema node.
type EncodeError struct {
	Message string
}

func (e *EncodeError) Error() string { return e.Message }

func encodeErrorf(format string, a ...interface{}) error {
	return &EncodeError{Message: fmt.Sprintf(format, a...)}
}
