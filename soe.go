// Copyright [2019] LinkedIn Corp. Licensed under the Apache License, Version
// 2.0 (the "License"); you may not use this file except in compliance with the
// License.  You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.

package avrofast

import "bytes"

// soeMagic is the two-byte marker opening Avro single object encoding.
var soeMagic = []byte{0xc3, 0x01}

// SingleFromNative appends the single-object framing of datum: the C3 01
// magic, the schema's 8-byte little-endian Rabin fingerprint, then the
// datum.
func (c *Codec) SingleFromNative(buf []byte, datum interface{}) ([]byte, error) {
	buf = append(buf, soeMagic...)
	fingerprint := c.schema.RabinFingerprint()
	buf = append(buf, fingerprint[:]...)
	return c.encoder.BinaryFromNative(buf, datum)
}

// NativeFromSingle decodes one single-object-framed datum, verifying the
// magic and that the embedded fingerprint matches this codec's schema.
func (c *Codec) NativeFromSingle(buf []byte) (interface{}, []byte, error) {
	if len(buf) < 10 || !bytes.Equal(buf[:2], soeMagic) {
		return nil, buf, decodeErrorf("cannot decode single object encoding: wrong magic")
	}
	fingerprint := c.schema.RabinFingerprint()
	if !bytes.Equal(buf[2:10], fingerprint[:]) {
		return nil, buf, decodeErrorf("cannot decode single object encoding: schema fingerprint mismatch")
	}
	value, rest, err := c.decoder.NativeFromBinary(buf[10:])
	if err != nil {
		return nil, buf, err
	}
	return value, rest, nil
}
