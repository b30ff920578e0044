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
	"math/big"

	"github.com/cockroachdb/apd/v3"
)

// maxDecimalBytes bounds the two's-complement representation of a decimal's
// unscaled integer; wider decimals are unsupported.
const maxDecimalBytes = 16

// decimalContext has enough precision for any 16-byte unscaled integer.
var decimalContext = apd.Context{
	Precision:   50,
	MaxExponent: apd.MaxExponent,
	MinExponent: apd.MinExponent,
	Traps:       apd.DefaultTraps,
	Rounding:    apd.RoundHalfUp,
}

// decodeDecimal reads the big-endian two's-complement unscaled integer
// (length-prefixed for the bytes representation, exactly size bytes for the
// fixed representation) and applies the schema's scale.
func (d *Decoder) decodeDecimal(r sourceReader, n *node, skip bool) (interface{}, error) {
	var size int
	if n.reprFixed != nil {
		size = n.reprFixed.size
	} else {
		length, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		if length < 0 {
			return nil, decodeErrorf("cannot decode binary decimal: negative length: %d", length)
		}
		size = int(length)
	}
	if size > maxDecimalBytes {
		return nil, decodeErrorf("cannot decode binary decimal: decimals of size larger than %d are not supported (got size %d)",
			maxDecimalBytes, size)
	}
	raw, err := r.readSlice(size)
	if err != nil {
		return nil, err
	}
	if skip {
		return nil, nil
	}

	unscaled := new(big.Int).SetBytes(raw)
	if size > 0 && raw[0]&0x80 != 0 {
		// Negative in two's-complement: subtract 2^(8*size).
		offset := new(big.Int).Lsh(big.NewInt(1), uint(8*size))
		unscaled.Sub(unscaled, offset)
	}

	coeff := new(apd.BigInt).SetMathBigInt(unscaled)
	return apd.NewWithBigInt(coeff, int32(-n.scale)), nil
}

// appendDecimal rescales dec to the schema's scale and appends the minimal
// (bytes representation) or size-padded (fixed representation) big-endian
// two's-complement unscaled integer.
func appendDecimal(buf []byte, n *node, dec *apd.Decimal) ([]byte, error) {
	rescaled := new(apd.Decimal)
	condition, err := decimalContext.Quantize(rescaled, dec, int32(-n.scale))
	if err != nil || condition.Inexact() {
		return nil, encodeErrorf(
			"cannot encode binary decimal: value %s cannot be scaled to fit in schema scale %d", dec, n.scale)
	}

	unscaled := rescaled.Coeff.MathBigInt()
	if rescaled.Negative {
		unscaled = new(big.Int).Neg(unscaled)
	}
	raw, err := twosComplementBytes(unscaled)
	if err != nil {
		return nil, err
	}

	if n.reprFixed == nil {
		buf = appendVarint(buf, int64(len(raw)))
		return append(buf, raw...), nil
	}

	size := n.reprFixed.size
	if len(raw) > size {
		return nil, encodeErrorf("cannot encode binary decimal: value %s does not fit in fixed size %d", dec, size)
	}
	pad := byte(0x00)
	if rescaled.Negative {
		pad = 0xFF
	}
	for i := len(raw); i < size; i++ {
		buf = append(buf, pad)
	}
	return append(buf, raw...), nil
}

// twosComplementBytes renders v as the minimal-length big-endian
// two's-complement byte string: leading 0x00/0xFF are elided while
// preserving the sign bit, and zero is a single zero byte.
func twosComplementBytes(v *big.Int) ([]byte, error) {
	if v.Sign() >= 0 {
		raw := v.Bytes()
		if len(raw) == 0 {
			raw = []byte{0}
		} else if raw[0]&0x80 != 0 {
			raw = append([]byte{0}, raw...)
		}
		if len(raw) > maxDecimalBytes {
			return nil, encodeErrorf("cannot encode binary decimal: decimals of size larger than %d are not supported", maxDecimalBytes)
		}
		return raw, nil
	}

	size := 1
	for {
		// v fits in size bytes signed iff v >= -(2^(8*size-1)).
		low := new(big.Int).Lsh(big.NewInt(1), uint(8*size-1))
		low.Neg(low)
		if v.Cmp(low) >= 0 {
			break
		}
		size++
		if size > maxDecimalBytes {
			return nil, encodeErrorf("cannot encode binary decimal: decimals of size larger than %d are not supported", maxDecimalBytes)
		}
	}
	offset := new(big.Int).Lsh(big.NewInt(1), uint(8*size))
	tc := new(big.Int).Add(v, offset)
	raw := tc.Bytes()
	for len(raw) < size {
		raw = append([]byte{0}, raw...)
	}
	return raw, nil
}

// decimalFromDatum coerces the encoder's accepted decimal inputs: an
// apd.Decimal, decimal text, an integer (taken at scale 0), or a float.
func decimalFromDatum(datum interface{}) (*apd.Decimal, error) {
	switch v := datum.(type) {
	case *apd.Decimal:
		return v, nil
	case apd.Decimal:
		return &v, nil
	case string:
		dec, _, err := apd.NewFromString(v)
		if err != nil {
			return nil, encodeErrorf("cannot encode binary decimal: string cannot be converted to decimal: %s", err)
		}
		return dec, nil
	case float64:
		dec := new(apd.Decimal)
		if _, err := dec.SetFloat64(v); err != nil {
			return nil, encodeErrorf("cannot encode binary decimal: float cannot be converted to decimal: %s", err)
		}
		return dec, nil
	case float32:
		dec := new(apd.Decimal)
		if _, err := dec.SetFloat64(float64(v)); err != nil {
			return nil, encodeErrorf("cannot encode binary decimal: float cannot be converted to decimal: %s", err)
		}
		return dec, nil
	default:
		if i, ok := asInt64(datum); ok {
			return apd.New(i, 0), nil
		}
		return nil, encodeErrorf("cannot encode binary decimal: unsupported type %s", describeDatum(datum))
	}
}
