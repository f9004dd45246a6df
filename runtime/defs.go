// Package cbor implements a dynamic encoder and decoder for the Concise
// Binary Object Representation (CBOR, RFC 8949).
//
// Unlike schema-driven codecs, this package works on untyped values: the
// decoder materializes each data item into a native Go value (integers,
// strings, []any, *Map, Tag, ...) and the encoder dispatches on the value's
// Go type. On top of the base format it implements:
//
//   - shared values (tags 28/29), so cyclic object graphs round-trip;
//   - string references (tags 25/256), compressing repeated strings;
//   - canonical (deterministic) encoding per RFC 8949 section 4.2;
//   - the registered semantic tags for date/time, bignums, decimal
//     fractions, bigfloats, rationals, regular expressions, MIME
//     messages, UUIDs, IP addresses and prefixes, sets and complex
//     numbers.
//
// The package-level Marshal/Unmarshal functions cover the common case;
// Encoder and Decoder expose options, hooks and streaming over
// io.Writer/io.Reader.
package cbor

// CBOR major types (3 bits)
const (
	majorTypeUint   = 0 // unsigned integer
	majorTypeNegInt = 1 // negative integer
	majorTypeBytes  = 2 // byte string
	majorTypeText   = 3 // text string (UTF-8)
	majorTypeArray  = 4 // array
	majorTypeMap    = 5 // map
	majorTypeTag    = 6 // semantic tag
	majorTypeSimple = 7 // float, simple values, break
)

// Additional info values (5 bits)
const (
	// 0-23: literal value
	addInfoDirect     = 23 // max direct value
	addInfoUint8      = 24 // 1-byte uint8 follows
	addInfoUint16     = 25 // 2-byte uint16 follows
	addInfoUint32     = 26 // 4-byte uint32 follows
	addInfoUint64     = 27 // 8-byte uint64 follows
	addInfoIndefinite = 31 // indefinite length (for bytes, text, array, map)
)

// Simple values in major type 7
const (
	simpleFalse     = 20
	simpleTrue      = 21
	simpleNull      = 22
	simpleUndefined = 23
	simpleFloat16   = 25
	simpleFloat32   = 26
	simpleFloat64   = 27
	simpleBreak     = 31
)

// Semantic tags handled by this package
const (
	tagDateTimeString     = 0     // RFC3339 date/time string
	tagEpochDateTime      = 1     // Unix timestamp (int or float)
	tagPosBignum          = 2     // positive bignum
	tagNegBignum          = 3     // negative bignum
	tagDecimalFrac        = 4     // decimal fraction [exp, mantissa]
	tagBigfloat           = 5     // bigfloat [exp, mantissa]
	tagStringRef          = 25    // reference to a previously seen string
	tagShareable          = 28    // mark the next item shareable
	tagSharedRef          = 29    // reference to a shareable item
	tagRational           = 30    // rational number [numerator, denominator]
	tagRegexp             = 35    // regular expression
	tagMIME               = 36    // MIME message
	tagUUID               = 37    // RFC 4122 UUID
	tagIPv4               = 52    // IPv4 address or prefix (RFC 9164)
	tagIPv6               = 54    // IPv6 address or prefix (RFC 9164)
	tagEpochDate          = 100   // days since the epoch
	tagStringRefNamespace = 256   // string reference namespace
	tagSet                = 258   // mathematical set
	tagNetworkAddress     = 260   // deprecated address representation
	tagNetworkPrefix      = 261   // deprecated prefix representation
	tagDateString         = 1004  // RFC 3339 full-date string
	tagComplex            = 43000 // complex number [real, imaginary]
	tagSelfDescribeCBOR   = 55799 // self-describe CBOR (0xd9d9f7)
)

// makeByte creates a CBOR initial byte from major type and additional info
func makeByte(majorType, addInfo uint8) byte {
	return byte((majorType << 5) | addInfo)
}

// getMajorType extracts the major type from a CBOR initial byte
func getMajorType(b byte) uint8 {
	return (b >> 5) & 0x07
}

// getAddInfo extracts the additional info from a CBOR initial byte
func getAddInfo(b byte) uint8 {
	return b & 0x1f
}
