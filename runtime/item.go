package cbor

import (
	"encoding/binary"
	"math"
)

// Slice-level helpers for handling raw encoded items without building
// native values: skipping one item and walking CBOR sequences. The header
// reader also backs the diagnostic renderer.

// readUintHead reads the header argument of the item at the start of b,
// requiring the given major type, and returns the remaining bytes.
func readUintHead(b []byte, expectedMajor uint8) (uint64, []byte, error) {
	if len(b) < 1 {
		return 0, b, &DecodeEOFError{Wanted: 1}
	}
	if major := getMajorType(b[0]); major != expectedMajor {
		return 0, b, decodeValueErr("unexpected major type")
	}
	addInfo := getAddInfo(b[0])
	switch {
	case addInfo <= addInfoDirect:
		return uint64(addInfo), b[1:], nil
	case addInfo == addInfoUint8:
		if len(b) < 2 {
			return 0, b, &DecodeEOFError{Wanted: 2, Got: len(b)}
		}
		return uint64(b[1]), b[2:], nil
	case addInfo == addInfoUint16:
		if len(b) < 3 {
			return 0, b, &DecodeEOFError{Wanted: 3, Got: len(b)}
		}
		return uint64(binary.BigEndian.Uint16(b[1:])), b[3:], nil
	case addInfo == addInfoUint32:
		if len(b) < 5 {
			return 0, b, &DecodeEOFError{Wanted: 5, Got: len(b)}
		}
		return uint64(binary.BigEndian.Uint32(b[1:])), b[5:], nil
	case addInfo == addInfoUint64:
		if len(b) < 9 {
			return 0, b, &DecodeEOFError{Wanted: 9, Got: len(b)}
		}
		return binary.BigEndian.Uint64(b[1:]), b[9:], nil
	default:
		return 0, b, decodeValueErr("invalid additional information")
	}
}

// Skip skips over the next encoded item and returns the remaining bytes.
func Skip(b []byte) ([]byte, error) {
	return skipItem(b, 0)
}

func skipItem(b []byte, depth int) ([]byte, error) {
	if depth > DefaultMaxDepth {
		return b, decodeValueErr("maximum recursion depth exceeded")
	}
	if len(b) < 1 {
		return b, &DecodeEOFError{Wanted: 1}
	}
	major := getMajorType(b[0])
	addInfo := getAddInfo(b[0])

	switch major {
	case majorTypeUint, majorTypeNegInt, majorTypeTag:
		_, o, err := readUintHead(b, major)
		if err != nil {
			return b, err
		}
		if major == majorTypeTag {
			return skipItem(o, depth+1)
		}
		return o, nil

	case majorTypeBytes, majorTypeText:
		if addInfo == addInfoIndefinite {
			o := b[1:]
			for {
				if len(o) < 1 {
					return b, &DecodeEOFError{Wanted: 1}
				}
				if o[0] == makeByte(majorTypeSimple, simpleBreak) {
					return o[1:], nil
				}
				sz, q, err := readUintHead(o, major)
				if err != nil {
					return b, err
				}
				if uint64(len(q)) < sz {
					return b, &DecodeEOFError{Wanted: int(sz), Got: len(q)}
				}
				o = q[sz:]
			}
		}
		sz, o, err := readUintHead(b, major)
		if err != nil {
			return b, err
		}
		if sz > math.MaxInt {
			return b, decodeValueErr("length exceeds platform capacity")
		}
		if uint64(len(o)) < sz {
			return b, &DecodeEOFError{Wanted: int(sz), Got: len(o)}
		}
		return o[sz:], nil

	case majorTypeArray, majorTypeMap:
		per := 1
		if major == majorTypeMap {
			per = 2
		}
		if addInfo == addInfoIndefinite {
			o := b[1:]
			for {
				if len(o) < 1 {
					return b, &DecodeEOFError{Wanted: 1}
				}
				if o[0] == makeByte(majorTypeSimple, simpleBreak) {
					return o[1:], nil
				}
				var err error
				for i := 0; i < per; i++ {
					o, err = skipItem(o, depth+1)
					if err != nil {
						return b, err
					}
				}
			}
		}
		sz, o, err := readUintHead(b, major)
		if err != nil {
			return b, err
		}
		for i := uint64(0); i < sz; i++ {
			for j := 0; j < per; j++ {
				o, err = skipItem(o, depth+1)
				if err != nil {
					return b, err
				}
			}
		}
		return o, nil

	default: // majorTypeSimple
		switch addInfo {
		case simpleFloat16:
			if len(b) < 3 {
				return b, &DecodeEOFError{Wanted: 3, Got: len(b)}
			}
			return b[3:], nil
		case simpleFloat32:
			if len(b) < 5 {
				return b, &DecodeEOFError{Wanted: 5, Got: len(b)}
			}
			return b[5:], nil
		case simpleFloat64:
			if len(b) < 9 {
				return b, &DecodeEOFError{Wanted: 9, Got: len(b)}
			}
			return b[9:], nil
		case addInfoUint8:
			if len(b) < 2 {
				return b, &DecodeEOFError{Wanted: 2, Got: len(b)}
			}
			return b[2:], nil
		case simpleBreak:
			return b, decodeValueErr("break stop code outside indefinite-length item")
		case 28, 29, 30:
			return b, decodeValueErr("invalid additional information")
		default:
			return b[1:], nil
		}
	}
}

// ForEachSequence calls onItem for each item of a CBOR sequence in b.
// The slice passed to onItem references b and contains exactly one item.
func ForEachSequence(b []byte, onItem func(item []byte) error) error {
	p := b
	for len(p) > 0 {
		r, err := Skip(p)
		if err != nil {
			return err
		}
		if err := onItem(p[:len(p)-len(r)]); err != nil {
			return err
		}
		p = r
	}
	return nil
}

// SplitSequence splits a CBOR sequence into per-item slices referencing
// the original buffer.
func SplitSequence(b []byte) (out [][]byte, err error) {
	err = ForEachSequence(b, func(item []byte) error {
		out = append(out, item)
		return nil
	})
	return out, err
}
