package cbor

import (
	"encoding/binary"
	"math"
	"math/big"

	"github.com/x448/float16"
)

// This file is the byte-level framing codec: append-style emitters for
// CBOR headers and primitive payloads. The encoder engine composes these;
// they are also usable standalone for hand-rolled encodings.

// appendUintHead appends a header with the given major type and argument
// in the shortest form.
func appendUintHead(b []byte, majorType uint8, u uint64) []byte {
	switch {
	case u <= addInfoDirect:
		return append(b, makeByte(majorType, uint8(u)))
	case u <= math.MaxUint8:
		return append(b, makeByte(majorType, addInfoUint8), uint8(u))
	case u <= math.MaxUint16:
		return append(b, makeByte(majorType, addInfoUint16), byte(u>>8), byte(u))
	case u <= math.MaxUint32:
		b = append(b, makeByte(majorType, addInfoUint32))
		return binary.BigEndian.AppendUint32(b, uint32(u))
	default:
		b = append(b, makeByte(majorType, addInfoUint64))
		return binary.BigEndian.AppendUint64(b, u)
	}
}

// AppendUint64 appends an unsigned integer (major type 0).
func AppendUint64(b []byte, u uint64) []byte {
	return appendUintHead(b, majorTypeUint, u)
}

// AppendNegUint64 appends the negative integer -1-u (major type 1).
func AppendNegUint64(b []byte, u uint64) []byte {
	return appendUintHead(b, majorTypeNegInt, u)
}

// AppendInt64 appends a signed integer using the shortest encoding.
func AppendInt64(b []byte, i int64) []byte {
	if i >= 0 {
		return appendUintHead(b, majorTypeUint, uint64(i))
	}
	return appendUintHead(b, majorTypeNegInt, uint64(-1-i))
}

// AppendBigInt appends a big integer: as major type 0/1 when it fits,
// otherwise as a tag 2/3 bignum with big-endian magnitude bytes.
func AppendBigInt(b []byte, z *big.Int) []byte {
	if z.Sign() >= 0 {
		if z.IsUint64() {
			return AppendUint64(b, z.Uint64())
		}
		b = AppendTag(b, tagPosBignum)
		return AppendBytes(b, z.Bytes())
	}
	// n = -1 - value
	n := new(big.Int).Not(z)
	if n.IsUint64() {
		return AppendNegUint64(b, n.Uint64())
	}
	b = AppendTag(b, tagNegBignum)
	return AppendBytes(b, n.Bytes())
}

// AppendBytes appends a definite-length byte string.
func AppendBytes(b []byte, data []byte) []byte {
	b = appendUintHead(b, majorTypeBytes, uint64(len(data)))
	return append(b, data...)
}

// AppendString appends a definite-length text string.
func AppendString(b []byte, s string) []byte {
	b = appendUintHead(b, majorTypeText, uint64(len(s)))
	return append(b, s...)
}

// AppendArrayHeader appends a definite-length array header.
func AppendArrayHeader(b []byte, sz uint64) []byte {
	return appendUintHead(b, majorTypeArray, sz)
}

// AppendMapHeader appends a definite-length map header.
func AppendMapHeader(b []byte, sz uint64) []byte {
	return appendUintHead(b, majorTypeMap, sz)
}

// Indefinite-length headers and the break stop code.

func AppendBytesHeaderIndefinite(b []byte) []byte {
	return append(b, makeByte(majorTypeBytes, addInfoIndefinite))
}

func AppendTextHeaderIndefinite(b []byte) []byte {
	return append(b, makeByte(majorTypeText, addInfoIndefinite))
}

func AppendArrayHeaderIndefinite(b []byte) []byte {
	return append(b, makeByte(majorTypeArray, addInfoIndefinite))
}

func AppendMapHeaderIndefinite(b []byte) []byte {
	return append(b, makeByte(majorTypeMap, addInfoIndefinite))
}

// AppendBreak appends the break stop code (0xff).
func AppendBreak(b []byte) []byte {
	return append(b, makeByte(majorTypeSimple, simpleBreak))
}

// AppendTag appends a semantic tag head (major type 6).
func AppendTag(b []byte, tag uint64) []byte {
	return appendUintHead(b, majorTypeTag, tag)
}

// AppendBool appends a bool.
func AppendBool(b []byte, v bool) []byte {
	if v {
		return append(b, makeByte(majorTypeSimple, simpleTrue))
	}
	return append(b, makeByte(majorTypeSimple, simpleFalse))
}

// AppendNil appends null.
func AppendNil(b []byte) []byte {
	return append(b, makeByte(majorTypeSimple, simpleNull))
}

// AppendUndefined appends the undefined literal.
func AppendUndefined(b []byte) []byte {
	return append(b, makeByte(majorTypeSimple, simpleUndefined))
}

// AppendSimpleValue appends a simple value: 0..23 in the initial byte,
// 24..255 in the two-byte form. Value 31 would collide with the break
// stop code; callers must reject it first.
func AppendSimpleValue(b []byte, val uint8) []byte {
	if val <= addInfoDirect {
		return append(b, makeByte(majorTypeSimple, val))
	}
	return append(b, makeByte(majorTypeSimple, addInfoUint8), val)
}

// AppendFloat16 appends an IEEE 754 binary16 value.
func AppendFloat16(b []byte, h float16.Float16) []byte {
	bits := h.Bits()
	return append(b, makeByte(majorTypeSimple, simpleFloat16), byte(bits>>8), byte(bits))
}

// AppendFloat32 appends an IEEE 754 binary32 value.
func AppendFloat32(b []byte, f float32) []byte {
	b = append(b, makeByte(majorTypeSimple, simpleFloat32))
	return binary.BigEndian.AppendUint32(b, math.Float32bits(f))
}

// AppendFloat64 appends an IEEE 754 binary64 value.
func AppendFloat64(b []byte, f float64) []byte {
	b = append(b, makeByte(majorTypeSimple, simpleFloat64))
	return binary.BigEndian.AppendUint64(b, math.Float64bits(f))
}

// AppendFloatCanonical appends the shortest float width that preserves
// the value exactly. NaN collapses to the canonical quiet NaN f97e00;
// infinities use the half-precision forms.
func AppendFloatCanonical(b []byte, f float64) []byte {
	if math.IsNaN(f) {
		return append(b, 0xf9, 0x7e, 0x00)
	}
	if math.IsInf(f, 1) {
		return append(b, 0xf9, 0x7c, 0x00)
	}
	if math.IsInf(f, -1) {
		return append(b, 0xf9, 0xfc, 0x00)
	}
	f32 := float32(f)
	if float64(f32) == f {
		h := float16.Fromfloat32(f32)
		if h.Float32() == f32 {
			return AppendFloat16(b, h)
		}
		return AppendFloat32(b, f32)
	}
	return AppendFloat64(b, f)
}
