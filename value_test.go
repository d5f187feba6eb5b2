// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/luxfi/unirpc/ndarray"
)

var allDTypes = []ndarray.DType{
	ndarray.Int8, ndarray.Int16, ndarray.Int32, ndarray.Int64,
	ndarray.Uint8, ndarray.Uint16, ndarray.Uint32, ndarray.Uint64,
	ndarray.Float32, ndarray.Float64,
}

func patternArray(t *testing.T, dtype ndarray.DType, shape ...int) *ndarray.Array {
	t.Helper()
	n := dtype.Size()
	for _, d := range shape {
		n *= d
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i*37 + 11)
	}
	a, err := ndarray.FromBytes(dtype, shape, buf)
	if err != nil {
		t.Fatalf("FromBytes(%s, %v): %v", dtype, shape, err)
	}
	return a
}

// wireRoundTrip encodes v, serializes it with codec and decodes it again.
func wireRoundTrip(t *testing.T, vc *ValueCodec, codec Codec, v interface{}) interface{} {
	t.Helper()
	enc, err := vc.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data, err := codec.Encode(enc)
	if err != nil {
		t.Fatalf("wire encode: %v", err)
	}
	var wire interface{}
	if err := codec.Decode(data, &wire); err != nil {
		t.Fatalf("wire decode: %v", err)
	}
	dec, err := vc.Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return dec
}

func TestArrayRoundTripAllDTypes(t *testing.T) {
	vc := NewValueCodec()
	shapes := [][]int{{}, {0}, {5}, {2, 3}, {2, 3, 4}}
	for _, dtype := range allDTypes {
		for _, shape := range shapes {
			a := patternArray(t, dtype, shape...)
			got, ok := wireRoundTrip(t, vc, JSONCodec{}, a).(*ndarray.Array)
			if !ok {
				t.Fatalf("%s %v: decoded value is not an array", dtype, shape)
			}
			if !got.Equal(a) {
				t.Fatalf("%s %v: round trip changed the array", dtype, shape)
			}
		}
	}
}

func TestArrayRoundTripRawBytesOverCBOR(t *testing.T) {
	vc := NewValueCodec()
	vc.Base64 = false
	codec, err := NewCBORCodec()
	if err != nil {
		t.Fatalf("NewCBORCodec: %v", err)
	}

	a := patternArray(t, ndarray.Float32, 3, 2)
	enc, err := vc.Encode(a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, ok := enc.(*TaggedArray).Data.([]byte); !ok {
		t.Fatalf("expected raw bytes payload, got %T", enc.(*TaggedArray).Data)
	}
	got := wireRoundTrip(t, vc, codec, a).(*ndarray.Array)
	if !got.Equal(a) {
		t.Fatal("round trip changed the array")
	}
}

func TestNonContiguousArrayIsCopied(t *testing.T) {
	vc := NewValueCodec()
	a := ndarray.MustFromSlice([]int16{1, 2, 3, 4, 5, 6}, 2, 3)
	view := a.Transpose()

	got := wireRoundTrip(t, vc, JSONCodec{}, view).(*ndarray.Array)
	if !reflect.DeepEqual(got.Shape(), []int{3, 2}) {
		t.Fatalf("shape = %v", got.Shape())
	}
	if want := []int16{1, 4, 2, 5, 3, 6}; !reflect.DeepEqual(ndarray.Values[int16](got), want) {
		t.Fatalf("values = %v, want %v", ndarray.Values[int16](got), want)
	}
	if view.IsContiguous() {
		t.Fatal("encoding modified the input view")
	}
}

func TestEncodeIsIdempotent(t *testing.T) {
	vc := NewValueCodec()
	a := patternArray(t, ndarray.Int32, 4, 2)

	first, err := vc.Encode(a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded := wireRoundTrip(t, vc, JSONCodec{}, a)
	second, err := vc.Encode(decoded)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("re-encoding differs:\n%#v\n%#v", first, second)
	}
}

func TestPassThrough(t *testing.T) {
	vc := NewValueCodec()
	values := []interface{}{
		nil,
		true,
		"text",
		3.5,
		[]interface{}{"a", 1.0},
		map[string]interface{}{"key": "value"},
	}
	for _, v := range values {
		enc, err := vc.Encode(v)
		if err != nil || !reflect.DeepEqual(enc, v) {
			t.Fatalf("Encode(%#v) = %#v, %v", v, enc, err)
		}
		dec, err := vc.Decode(v)
		if err != nil || !reflect.DeepEqual(dec, v) {
			t.Fatalf("Decode(%#v) = %#v, %v", v, dec, err)
		}
	}
}

func TestEncodeArrayDTypeOverride(t *testing.T) {
	vc := NewValueCodec()
	a := ndarray.MustFromSlice([]float64{1, 2, 3})

	enc, err := vc.EncodeArray(a, "int16")
	if err != nil {
		t.Fatalf("EncodeArray: %v", err)
	}
	if enc.DType != "int16" {
		t.Fatalf("dtype = %q", enc.DType)
	}
	raw, _ := base64.StdEncoding.DecodeString(enc.Data.(string))
	if want := []byte{1, 0, 2, 0, 3, 0}; !reflect.DeepEqual(raw, want) {
		t.Fatalf("data = %v, want %v", raw, want)
	}
	if a.DType() != ndarray.Float64 {
		t.Fatal("override modified the input")
	}

	_, err = vc.EncodeArray(a, "complex128")
	if !errors.Is(err, ErrUnsupportedDType) {
		t.Fatalf("got %v, want UnsupportedDType", err)
	}
}

func TestMatrixEncoder(t *testing.T) {
	vc := NewValueCodec()
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	enc, err := vc.Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ta, ok := enc.(*TaggedArray)
	if !ok {
		t.Fatalf("expected tagged array, got %T", enc)
	}
	if ta.DType != "float64" || !reflect.DeepEqual(ta.Shape, []int{2, 2}) {
		t.Fatalf("unexpected header: %+v", ta)
	}
}

func TestDecodeErrors(t *testing.T) {
	vc := NewValueCodec()
	tests := []struct {
		name string
		obj  map[string]interface{}
		want error
	}{
		{
			name: "bad base64",
			obj:  map[string]interface{}{TagKey: TagNDArray, "dtype": "int32", "shape": []interface{}{1.0}, "data": "!!!not base64"},
			want: ErrInvalidBase64,
		},
		{
			name: "length not a multiple of item size",
			obj:  map[string]interface{}{TagKey: TagNDArray, "dtype": "int32", "shape": []interface{}{1.0}, "data": base64.StdEncoding.EncodeToString([]byte{1, 2, 3})},
			want: ErrShapeMismatch,
		},
		{
			name: "shape does not match length",
			obj:  map[string]interface{}{TagKey: TagNDArray, "dtype": "int8", "shape": []interface{}{2.0, 2.0}, "data": base64.StdEncoding.EncodeToString([]byte{1, 2, 3})},
			want: ErrShapeMismatch,
		},
		{
			name: "shape product overflows",
			obj:  map[string]interface{}{TagKey: ShortTagNDArray, "dtype": "int8", "shape": []interface{}{json.Number("4294967296"), json.Number("4294967296")}, "data": ""},
			want: ErrShapeMismatch,
		},
		{
			name: "unknown dtype",
			obj:  map[string]interface{}{TagKey: TagNDArray, "dtype": "object", "shape": []interface{}{}, "data": ""},
			want: ErrUnsupportedDType,
		},
		{
			name: "unknown tag",
			obj:  map[string]interface{}{TagKey: "__RPC_VAL_SPARSE__"},
			want: ErrUnknownArrayTag,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vc.Decode(tt.obj)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeAcceptsShortTag(t *testing.T) {
	vc := NewValueCodec()
	obj := map[string]interface{}{
		TagKey:  "NDARRAY",
		"dtype": "<u1",
		"shape": []interface{}{3.0},
		"data":  base64.StdEncoding.EncodeToString([]byte{7, 8, 9}),
	}
	v, err := vc.Decode(obj)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := ndarray.Values[uint8](v.(*ndarray.Array)); !reflect.DeepEqual(got, []uint8{7, 8, 9}) {
		t.Fatalf("values = %v", got)
	}
}

func TestDecodeArgsWrapsKwargErrors(t *testing.T) {
	vc := NewValueCodec()
	_, _, err := vc.DecodeArgs(nil, map[string]interface{}{
		"weights": map[string]interface{}{TagKey: "BOGUS"},
	})
	if !errors.Is(err, ErrUnknownArrayTag) {
		t.Fatalf("got %v, want UnknownArrayTag", err)
	}
	if KindOf(err) != string(KindUnknownArrayTag) {
		t.Fatalf("KindOf = %s", KindOf(err))
	}
}

func TestEncodeNilMatrix(t *testing.T) {
	vc := NewValueCodec()
	var d *mat.Dense
	if _, err := vc.Encode(d); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("Encode(nil *mat.Dense) = %v, want ShapeMismatch", err)
	}
}
