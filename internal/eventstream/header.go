package eventstream

import (
	"encoding/binary"
	"fmt"
)

// HeaderType identifies the shape of a header value, per the AWS Event
// Stream header type-tag table.
type HeaderType byte

const (
	HeaderTypeBoolTrue  HeaderType = 0
	HeaderTypeBoolFalse HeaderType = 1
	HeaderTypeInt8      HeaderType = 2
	HeaderTypeInt16     HeaderType = 3
	HeaderTypeInt32     HeaderType = 4
	HeaderTypeInt64     HeaderType = 5
	HeaderTypeByteArray HeaderType = 6
	HeaderTypeString    HeaderType = 7
	HeaderTypeTimestamp HeaderType = 8
	HeaderTypeUUID      HeaderType = 9
)

// HeaderValue is a decoded header value. Exactly one of the typed fields
// is meaningful, selected by Type.
type HeaderValue struct {
	Type HeaderType
	Bool bool
	Int8 int8
	I16  int16
	I32  int32
	I64  int64
	// Bytes holds the raw payload for ByteArray and UUID values, and the
	// UTF-8 bytes for String values.
	Bytes []byte
	// TimestampMS holds milliseconds since epoch for Timestamp values.
	TimestampMS int64
}

// String returns the decoded string value; only meaningful for
// HeaderTypeString.
func (v HeaderValue) String() string {
	return string(v.Bytes)
}

// Headers is the decoded header block of a frame, keyed by header name.
// Per §4.B, duplicate header names keep the last occurrence.
type Headers map[string]HeaderValue

// ErrHeaderUnknownType is returned when a header's type tag does not match
// any of the known shapes in the table of §4.B.
type ErrHeaderUnknownType struct {
	Tag byte
}

func (e *ErrHeaderUnknownType) Error() string {
	return fmt.Sprintf("eventstream: unknown header type tag %d", e.Tag)
}

// decodeHeaders parses the header block layout of §4.B: a sequence of
// (name_len: u8, name: ascii, type_tag: u8, value) tuples until buf is
// exhausted.
func decodeHeaders(buf []byte) (Headers, error) {
	headers := make(Headers)
	offset := 0
	for offset < len(buf) {
		if offset+1 > len(buf) {
			return nil, fmt.Errorf("eventstream: truncated header name length")
		}
		nameLen := int(buf[offset])
		offset++

		if offset+nameLen > len(buf) {
			return nil, fmt.Errorf("eventstream: truncated header name")
		}
		name := string(buf[offset : offset+nameLen])
		offset += nameLen

		if offset+1 > len(buf) {
			return nil, fmt.Errorf("eventstream: truncated header type tag")
		}
		tag := buf[offset]
		offset++

		value, next, err := decodeHeaderValue(buf, offset, HeaderType(tag))
		if err != nil {
			return nil, err
		}
		offset = next
		headers[name] = value
	}
	return headers, nil
}

func decodeHeaderValue(buf []byte, offset int, t HeaderType) (HeaderValue, int, error) {
	switch t {
	case HeaderTypeBoolTrue:
		return HeaderValue{Type: t, Bool: true}, offset, nil
	case HeaderTypeBoolFalse:
		return HeaderValue{Type: t, Bool: false}, offset, nil
	case HeaderTypeInt8:
		if offset+1 > len(buf) {
			return HeaderValue{}, 0, fmt.Errorf("eventstream: truncated int8 header value")
		}
		return HeaderValue{Type: t, Int8: int8(buf[offset])}, offset + 1, nil
	case HeaderTypeInt16:
		if offset+2 > len(buf) {
			return HeaderValue{}, 0, fmt.Errorf("eventstream: truncated int16 header value")
		}
		return HeaderValue{Type: t, I16: int16(binary.BigEndian.Uint16(buf[offset : offset+2]))}, offset + 2, nil
	case HeaderTypeInt32:
		if offset+4 > len(buf) {
			return HeaderValue{}, 0, fmt.Errorf("eventstream: truncated int32 header value")
		}
		return HeaderValue{Type: t, I32: int32(binary.BigEndian.Uint32(buf[offset : offset+4]))}, offset + 4, nil
	case HeaderTypeInt64:
		if offset+8 > len(buf) {
			return HeaderValue{}, 0, fmt.Errorf("eventstream: truncated int64 header value")
		}
		return HeaderValue{Type: t, I64: int64(binary.BigEndian.Uint64(buf[offset : offset+8]))}, offset + 8, nil
	case HeaderTypeByteArray, HeaderTypeString:
		if offset+2 > len(buf) {
			return HeaderValue{}, 0, fmt.Errorf("eventstream: truncated header value length")
		}
		valLen := int(binary.BigEndian.Uint16(buf[offset : offset+2]))
		offset += 2
		if offset+valLen > len(buf) {
			return HeaderValue{}, 0, fmt.Errorf("eventstream: truncated header value")
		}
		val := make([]byte, valLen)
		copy(val, buf[offset:offset+valLen])
		return HeaderValue{Type: t, Bytes: val}, offset + valLen, nil
	case HeaderTypeTimestamp:
		if offset+8 > len(buf) {
			return HeaderValue{}, 0, fmt.Errorf("eventstream: truncated timestamp header value")
		}
		return HeaderValue{Type: t, TimestampMS: int64(binary.BigEndian.Uint64(buf[offset : offset+8]))}, offset + 8, nil
	case HeaderTypeUUID:
		if offset+16 > len(buf) {
			return HeaderValue{}, 0, fmt.Errorf("eventstream: truncated uuid header value")
		}
		val := make([]byte, 16)
		copy(val, buf[offset:offset+16])
		return HeaderValue{Type: t, Bytes: val}, offset + 16, nil
	default:
		return HeaderValue{}, 0, &ErrHeaderUnknownType{Tag: byte(t)}
	}
}

// encodeHeaders is the inverse of decodeHeaders; used by tests to exercise
// the codec's round-trip law and by components that need to build a frame
// for local testing harnesses.
func encodeHeaders(headers Headers) ([]byte, error) {
	var buf []byte
	for name, v := range headers {
		if len(name) > 255 {
			return nil, fmt.Errorf("eventstream: header name %q too long", name)
		}
		buf = append(buf, byte(len(name)))
		buf = append(buf, name...)
		buf = append(buf, byte(v.Type))
		buf = append(buf, encodeHeaderValue(v)...)
	}
	return buf, nil
}

func encodeHeaderValue(v HeaderValue) []byte {
	switch v.Type {
	case HeaderTypeBoolTrue, HeaderTypeBoolFalse:
		return nil
	case HeaderTypeInt8:
		return []byte{byte(v.Int8)}
	case HeaderTypeInt16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(v.I16))
		return b
	case HeaderTypeInt32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v.I32))
		return b
	case HeaderTypeInt64:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v.I64))
		return b
	case HeaderTypeByteArray, HeaderTypeString:
		b := make([]byte, 2+len(v.Bytes))
		binary.BigEndian.PutUint16(b[:2], uint16(len(v.Bytes)))
		copy(b[2:], v.Bytes)
		return b
	case HeaderTypeTimestamp:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v.TimestampMS))
		return b
	case HeaderTypeUUID:
		b := make([]byte, 16)
		copy(b, v.Bytes)
		return b
	default:
		return nil
	}
}
