package eventstream

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		v    HeaderValue
	}{
		{"bool-true", HeaderValue{Type: HeaderTypeBoolTrue, Bool: true}},
		{"bool-false", HeaderValue{Type: HeaderTypeBoolFalse}},
		{"i8-min", HeaderValue{Type: HeaderTypeInt8, Int8: -128}},
		{"i8-max", HeaderValue{Type: HeaderTypeInt8, Int8: 127}},
		{"i16", HeaderValue{Type: HeaderTypeInt16, I16: -1}},
		{"i32", HeaderValue{Type: HeaderTypeInt32, I32: 1 << 30}},
		{"i64-max", HeaderValue{Type: HeaderTypeInt64, I64: 9223372036854775807}},
		{"byte-array-empty", HeaderValue{Type: HeaderTypeByteArray, Bytes: []byte{}}},
		{"byte-array", HeaderValue{Type: HeaderTypeByteArray, Bytes: []byte{0x01, 0x02, 0xff}}},
		{"utf8-empty", HeaderValue{Type: HeaderTypeString, Bytes: []byte("")}},
		{"utf8", HeaderValue{Type: HeaderTypeString, Bytes: []byte("messageStart")}},
		{"timestamp", HeaderValue{Type: HeaderTypeTimestamp, TimestampMS: 1735689600000}},
		{"uuid-zero", HeaderValue{Type: HeaderTypeUUID, Bytes: make([]byte, 16)}},
		{"uuid-ff", HeaderValue{Type: HeaderTypeUUID, Bytes: bytes.Repeat([]byte{0xff}, 16)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := Headers{"x": tc.v}
			encoded, err := encodeHeaders(headers)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			decoded, err := decodeHeaders(encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			got, ok := decoded["x"]
			if !ok {
				t.Fatalf("missing header after round-trip")
			}
			if got.Type != tc.v.Type || got.Bool != tc.v.Bool || got.Int8 != tc.v.Int8 ||
				got.I16 != tc.v.I16 || got.I32 != tc.v.I32 || got.I64 != tc.v.I64 ||
				got.TimestampMS != tc.v.TimestampMS || !bytes.Equal(got.Bytes, tc.v.Bytes) {
				t.Fatalf("round-trip mismatch: got %+v want %+v", got, tc.v)
			}
		})
	}
}

func TestDecodeHeadersDuplicateNameKeepsLast(t *testing.T) {
	h1, _ := encodeHeaderValueForTest(HeaderValue{Type: HeaderTypeString, Bytes: []byte("first")})
	h2, _ := encodeHeaderValueForTest(HeaderValue{Type: HeaderTypeString, Bytes: []byte("second")})

	var buf []byte
	buf = append(buf, byte(len("dup")))
	buf = append(buf, "dup"...)
	buf = append(buf, byte(HeaderTypeString))
	buf = append(buf, h1...)
	buf = append(buf, byte(len("dup")))
	buf = append(buf, "dup"...)
	buf = append(buf, byte(HeaderTypeString))
	buf = append(buf, h2...)

	decoded, err := decodeHeaders(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["dup"].String() != "second" {
		t.Fatalf("expected last occurrence to win, got %q", decoded["dup"].String())
	}
}

func TestDecodeHeadersUnknownType(t *testing.T) {
	buf := []byte{3, 'f', 'o', 'o', 0xAB}
	_, err := decodeHeaders(buf)
	var unknown *ErrHeaderUnknownType
	if err == nil {
		t.Fatal("expected error for unknown header type")
	}
	if !isHeaderUnknownType(err, &unknown) {
		t.Fatalf("expected ErrHeaderUnknownType, got %v", err)
	}
}

func isHeaderUnknownType(err error, target **ErrHeaderUnknownType) bool {
	e, ok := err.(*ErrHeaderUnknownType)
	if ok {
		*target = e
	}
	return ok
}

func encodeHeaderValueForTest(v HeaderValue) ([]byte, error) {
	return encodeHeaderValue(v), nil
}
