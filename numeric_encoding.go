package rangeindex

import (
	"encoding/binary"
	"fmt"
	"math"
)

// NumericKind identifies the native little-endian layout of a numeric
// field's raw document bytes, so FieldIndex can turn DocumentStore bytes
// into an ordered key without the caller re-deriving it by hand.
type NumericKind int

const (
	Int32Kind NumericKind = iota
	Int64Kind
	Uint32Kind
	Uint64Kind
	Float64Kind
)

// rawKeyWidth returns the expected raw byte width for k.
func (k NumericKind) rawKeyWidth() int {
	switch k {
	case Int32Kind, Uint32Kind:
		return 4
	default:
		return 8
	}
}

// EncodeNumericKey produces the ordered-map key for a numeric field value:
// the little-endian bytes of v, reversed to big-endian, with the
// most-significant bit of the first byte flipped so that lexicographic
// byte order matches numeric order (spec §4.4). Supported types are int32,
// int64, uint32, uint64, float64, and int (encoded as int64). The unsigned
// types are only reversed, without the flip.
//
// For the two's-complement integer types this is exactly reverse-then-flip:
// the magnitude bits of a two's-complement negative number already sort
// backwards relative to sign, so flipping only the sign bit is sufficient.
// float64 additionally flips every bit when the sign bit is set, since
// IEEE-754 magnitude bits sort forward regardless of sign and the simple
// flip alone would misorder negative floats against each other.
func EncodeNumericKey(v any) ([]byte, error) {
	switch x := v.(type) {
	case int32:
		return encodeFixedWidth(4, uint64(uint32(x))), nil
	case int64:
		return encodeFixedWidth(8, uint64(x)), nil
	case uint32:
		return encodeUnsignedFixedWidth(4, uint64(x)), nil
	case uint64:
		return encodeUnsignedFixedWidth(8, uint64(x)), nil
	case int:
		return encodeFixedWidth(8, uint64(int64(x))), nil
	case float64:
		return encodeFloat64(x), nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrEncoding, v)
	}
}

// DecodeNumericKey is the inverse of EncodeNumericKey for the given key
// width and type tag. Callers must know the original type; the encoded
// key alone does not carry it (spec §7 EncodingError: callers must keep
// key width consistent for a field).
func DecodeNumericKey[T int32 | int64 | uint32 | uint64 | int | float64](key []byte) (T, error) {
	var zero T
	switch any(zero).(type) {
	case int32:
		if len(key) != 4 {
			return zero, ErrEncoding
		}
		bits := decodeFixedWidthBits(key)
		return any(int32(uint32(bits))).(T), nil
	case uint32:
		if len(key) != 4 {
			return zero, ErrEncoding
		}
		bits := decodeUnsignedFixedWidthBits(key)
		return any(uint32(bits)).(T), nil
	case int64, int:
		if len(key) != 8 {
			return zero, ErrEncoding
		}
		bits := decodeFixedWidthBits(key)
		if _, isInt := any(zero).(int); isInt {
			return any(int(int64(bits))).(T), nil
		}
		return any(int64(bits)).(T), nil
	case uint64:
		if len(key) != 8 {
			return zero, ErrEncoding
		}
		bits := decodeUnsignedFixedWidthBits(key)
		return any(bits).(T), nil
	case float64:
		if len(key) != 8 {
			return zero, ErrEncoding
		}
		return any(decodeFloat64(key)).(T), nil
	}
	return zero, ErrEncoding
}

func encodeFixedWidth(width int, bits uint64) []byte {
	buf := make([]byte, width)
	switch width {
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(bits))
	case 8:
		binary.LittleEndian.PutUint64(buf, bits)
	}
	reverseInPlace(buf)
	buf[0] ^= 0x80
	return buf
}

func decodeFixedWidthBits(key []byte) uint64 {
	buf := append([]byte(nil), key...)
	buf[0] ^= 0x80
	reverseInPlace(buf)
	switch len(buf) {
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	}
	return 0
}

// encodeUnsignedFixedWidth skips the sign-bit flip: unsigned magnitudes
// already sort correctly once reversed to big-endian.
func encodeUnsignedFixedWidth(width int, v uint64) []byte {
	buf := make([]byte, width)
	switch width {
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, v)
	}
	reverseInPlace(buf)
	return buf
}

func decodeUnsignedFixedWidthBits(key []byte) uint64 {
	buf := append([]byte(nil), key...)
	reverseInPlace(buf)
	switch len(buf) {
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	}
	return 0
}

func encodeFloat64(v float64) []byte {
	bits := math.Float64bits(v)
	if bits>>63 == 1 {
		bits = ^bits
	} else {
		bits ^= 1 << 63
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

func decodeFloat64(key []byte) float64 {
	bits := binary.BigEndian.Uint64(key)
	if bits>>63 == 0 {
		bits = ^bits
	} else {
		bits ^= 1 << 63
	}
	return math.Float64frombits(bits)
}

func reverseInPlace(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// encodeRawNumericKey turns raw little-endian document bytes of the given
// kind into the ordered-map key, by decoding them to the matching Go type
// and delegating to EncodeNumericKey — guaranteeing the same byte sequence
// a caller would get by encoding a typed bound with EncodeNumericKey, so
// values written via raw document bytes and range bounds supplied as Go
// values compare correctly against each other.
func encodeRawNumericKey(raw []byte, kind NumericKind) ([]byte, error) {
	if len(raw) != kind.rawKeyWidth() {
		return nil, fmt.Errorf("%w: expected %d bytes for %v, got %d", ErrEncoding, kind.rawKeyWidth(), kind, len(raw))
	}
	switch kind {
	case Int32Kind:
		return EncodeNumericKey(int32(binary.LittleEndian.Uint32(raw)))
	case Uint32Kind:
		return EncodeNumericKey(binary.LittleEndian.Uint32(raw))
	case Int64Kind:
		return EncodeNumericKey(int64(binary.LittleEndian.Uint64(raw)))
	case Uint64Kind:
		return EncodeNumericKey(binary.LittleEndian.Uint64(raw))
	case Float64Kind:
		return EncodeNumericKey(math.Float64frombits(binary.LittleEndian.Uint64(raw)))
	default:
		return nil, fmt.Errorf("%w: unknown numeric kind %v", ErrEncoding, kind)
	}
}

// decodeFilterBounds decodes a FilterInfo's LowerValue/UpperValue back into
// typed bounds for FieldIndex.SearchNumeric, using kind to pick the right
// concrete type instead of guessing from the byte width (int64 and
// float64 both encode to 8 bytes, so width alone can't disambiguate them).
func decodeFilterBounds(kind NumericKind, lower, upper []byte) (low, high any, err error) {
	switch kind {
	case Int32Kind:
		l, e := DecodeNumericKey[int32](lower)
		if e != nil {
			return nil, nil, e
		}
		h, e := DecodeNumericKey[int32](upper)
		if e != nil {
			return nil, nil, e
		}
		return l, h, nil
	case Uint32Kind:
		l, e := DecodeNumericKey[uint32](lower)
		if e != nil {
			return nil, nil, e
		}
		h, e := DecodeNumericKey[uint32](upper)
		if e != nil {
			return nil, nil, e
		}
		return l, h, nil
	case Int64Kind:
		l, e := DecodeNumericKey[int64](lower)
		if e != nil {
			return nil, nil, e
		}
		h, e := DecodeNumericKey[int64](upper)
		if e != nil {
			return nil, nil, e
		}
		return l, h, nil
	case Uint64Kind:
		l, e := DecodeNumericKey[uint64](lower)
		if e != nil {
			return nil, nil, e
		}
		h, e := DecodeNumericKey[uint64](upper)
		if e != nil {
			return nil, nil, e
		}
		return l, h, nil
	case Float64Kind:
		l, e := DecodeNumericKey[float64](lower)
		if e != nil {
			return nil, nil, e
		}
		h, e := DecodeNumericKey[float64](upper)
		if e != nil {
			return nil, nil, e
		}
		return l, h, nil
	default:
		return nil, nil, ErrEncoding
	}
}

func (k NumericKind) String() string {
	switch k {
	case Int32Kind:
		return "int32"
	case Int64Kind:
		return "int64"
	case Uint32Kind:
		return "uint32"
	case Uint64Kind:
		return "uint64"
	case Float64Kind:
		return "float64"
	default:
		return "unknown"
	}
}
