package cbor

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"math/big"
	"strconv"

	"github.com/x448/float16"
)

// Diag renders the next encoded item in RFC 8949 diagnostic notation and
// returns the remaining bytes.
func Diag(b []byte) (string, []byte, error) {
	bb := GetByteBuffer()
	defer PutByteBuffer(bb)
	rest, err := diagItem(bb, b, 0)
	if err != nil {
		return "", b, err
	}
	out := make([]byte, bb.Len())
	copy(out, bb.Bytes())
	return string(out), rest, nil
}

func diagItem(buf *ByteBuffer, b []byte, depth int) ([]byte, error) {
	if depth > DefaultMaxDepth {
		return b, decodeValueErr("maximum recursion depth exceeded")
	}
	if len(b) < 1 {
		return b, &DecodeEOFError{Wanted: 1}
	}
	major := getMajorType(b[0])
	addInfo := getAddInfo(b[0])

	switch major {
	case majorTypeUint:
		u, o, err := readUintHead(b, major)
		if err != nil {
			return b, err
		}
		buf.WriteString(strconv.FormatUint(u, 10))
		return o, nil

	case majorTypeNegInt:
		u, o, err := readUintHead(b, major)
		if err != nil {
			return b, err
		}
		if u <= math.MaxInt64 {
			buf.WriteString(strconv.FormatInt(-1-int64(u), 10))
		} else {
			z := new(big.Int).SetUint64(u)
			z.Neg(z)
			z.Sub(z, big.NewInt(1))
			buf.WriteString(z.String())
		}
		return o, nil

	case majorTypeBytes:
		if addInfo == addInfoIndefinite {
			return diagChunks(buf, b[1:], major, func(chunk []byte) {
				buf.WriteString("h'")
				dst := buf.Extend(hex.EncodedLen(len(chunk)))
				hex.Encode(dst, chunk)
				buf.WriteString("'")
			})
		}
		sz, o, err := readUintHead(b, major)
		if err != nil {
			return b, err
		}
		if uint64(len(o)) < sz {
			return b, &DecodeEOFError{Wanted: int(sz), Got: len(o)}
		}
		buf.WriteString("h'")
		dst := buf.Extend(hex.EncodedLen(int(sz)))
		hex.Encode(dst, o[:sz])
		buf.WriteString("'")
		return o[sz:], nil

	case majorTypeText:
		if addInfo == addInfoIndefinite {
			return diagChunks(buf, b[1:], major, func(chunk []byte) {
				buf.WriteString(strconv.Quote(string(chunk)))
			})
		}
		sz, o, err := readUintHead(b, major)
		if err != nil {
			return b, err
		}
		if uint64(len(o)) < sz {
			return b, &DecodeEOFError{Wanted: int(sz), Got: len(o)}
		}
		buf.WriteString(strconv.Quote(string(o[:sz])))
		return o[sz:], nil

	case majorTypeArray:
		if addInfo == addInfoIndefinite {
			buf.WriteString("[_ ")
			o := b[1:]
			first := true
			for {
				if len(o) < 1 {
					return b, &DecodeEOFError{Wanted: 1}
				}
				if o[0] == makeByte(majorTypeSimple, simpleBreak) {
					buf.WriteString("]")
					return o[1:], nil
				}
				if !first {
					buf.WriteString(", ")
				}
				first = false
				var err error
				o, err = diagItem(buf, o, depth+1)
				if err != nil {
					return b, err
				}
			}
		}
		sz, o, err := readUintHead(b, major)
		if err != nil {
			return b, err
		}
		buf.WriteString("[")
		for i := uint64(0); i < sz; i++ {
			if i > 0 {
				buf.WriteString(", ")
			}
			o, err = diagItem(buf, o, depth+1)
			if err != nil {
				return b, err
			}
		}
		buf.WriteString("]")
		return o, nil

	case majorTypeMap:
		if addInfo == addInfoIndefinite {
			buf.WriteString("{_ ")
			o := b[1:]
			first := true
			for {
				if len(o) < 1 {
					return b, &DecodeEOFError{Wanted: 1}
				}
				if o[0] == makeByte(majorTypeSimple, simpleBreak) {
					buf.WriteString("}")
					return o[1:], nil
				}
				if !first {
					buf.WriteString(", ")
				}
				first = false
				var err error
				o, err = diagItem(buf, o, depth+1)
				if err != nil {
					return b, err
				}
				buf.WriteString(": ")
				o, err = diagItem(buf, o, depth+1)
				if err != nil {
					return b, err
				}
			}
		}
		sz, o, err := readUintHead(b, major)
		if err != nil {
			return b, err
		}
		buf.WriteString("{")
		for i := uint64(0); i < sz; i++ {
			if i > 0 {
				buf.WriteString(", ")
			}
			o, err = diagItem(buf, o, depth+1)
			if err != nil {
				return b, err
			}
			buf.WriteString(": ")
			o, err = diagItem(buf, o, depth+1)
			if err != nil {
				return b, err
			}
		}
		buf.WriteString("}")
		return o, nil

	case majorTypeTag:
		tag, o, err := readUintHead(b, major)
		if err != nil {
			return b, err
		}
		buf.WriteString(strconv.FormatUint(tag, 10))
		buf.WriteString("(")
		o, err = diagItem(buf, o, depth+1)
		if err != nil {
			return b, err
		}
		buf.WriteString(")")
		return o, nil

	default: // majorTypeSimple
		switch addInfo {
		case simpleFalse:
			buf.WriteString("false")
			return b[1:], nil
		case simpleTrue:
			buf.WriteString("true")
			return b[1:], nil
		case simpleNull:
			buf.WriteString("null")
			return b[1:], nil
		case simpleUndefined:
			buf.WriteString("undefined")
			return b[1:], nil
		case addInfoUint8:
			if len(b) < 2 {
				return b, &DecodeEOFError{Wanted: 2, Got: len(b)}
			}
			buf.WriteString("simple(" + strconv.Itoa(int(b[1])) + ")")
			return b[2:], nil
		case simpleFloat16:
			if len(b) < 3 {
				return b, &DecodeEOFError{Wanted: 3, Got: len(b)}
			}
			h := float16.Frombits(binary.BigEndian.Uint16(b[1:]))
			diagFloat(buf, float64(h.Float32()))
			return b[3:], nil
		case simpleFloat32:
			if len(b) < 5 {
				return b, &DecodeEOFError{Wanted: 5, Got: len(b)}
			}
			diagFloat(buf, float64(math.Float32frombits(binary.BigEndian.Uint32(b[1:]))))
			return b[5:], nil
		case simpleFloat64:
			if len(b) < 9 {
				return b, &DecodeEOFError{Wanted: 9, Got: len(b)}
			}
			diagFloat(buf, math.Float64frombits(binary.BigEndian.Uint64(b[1:])))
			return b[9:], nil
		case simpleBreak:
			return b, decodeValueErr("break stop code outside indefinite-length item")
		default:
			if addInfo < simpleFalse {
				buf.WriteString("simple(" + strconv.Itoa(int(addInfo)) + ")")
				return b[1:], nil
			}
			return b, decodeValueErr("invalid additional information")
		}
	}
}

func diagChunks(buf *ByteBuffer, o []byte, major uint8, emit func([]byte)) ([]byte, error) {
	buf.WriteString("(_ ")
	first := true
	for {
		if len(o) < 1 {
			return o, &DecodeEOFError{Wanted: 1}
		}
		if o[0] == makeByte(majorTypeSimple, simpleBreak) {
			buf.WriteString(")")
			return o[1:], nil
		}
		sz, q, err := readUintHead(o, major)
		if err != nil {
			return o, err
		}
		if uint64(len(q)) < sz {
			return o, &DecodeEOFError{Wanted: int(sz), Got: len(q)}
		}
		if !first {
			buf.WriteString(", ")
		}
		first = false
		emit(q[:sz])
		o = q[sz:]
	}
}

func diagFloat(buf *ByteBuffer, f float64) {
	switch {
	case math.IsNaN(f):
		buf.WriteString("NaN")
	case math.IsInf(f, 1):
		buf.WriteString("Infinity")
	case math.IsInf(f, -1):
		buf.WriteString("-Infinity")
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		buf.WriteString(strconv.FormatFloat(f, 'f', 1, 64))
	default:
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
}
