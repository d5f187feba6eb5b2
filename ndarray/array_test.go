// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ndarray

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestParseDType(t *testing.T) {
	for d := Int8; d <= Float64; d++ {
		got, err := ParseDType(d.String())
		if err != nil {
			t.Fatalf("ParseDType(%q): %v", d, err)
		}
		if got != d {
			t.Errorf("ParseDType(%q) = %s", d, got)
		}
	}
	if got, err := ParseDType("<f4"); err != nil || got != Float32 {
		t.Errorf("ParseDType(<f4) = %s, %v", got, err)
	}
	if _, err := ParseDType("complex128"); !errors.Is(err, ErrUnsupportedDType) {
		t.Errorf("expected ErrUnsupportedDType, got %v", err)
	}
}

func TestFromBytesLayout(t *testing.T) {
	buf := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0}
	a, err := FromBytes(Int32, []int{2, 2}, buf)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got := a.At(1, 0); got != 3 {
		t.Errorf("At(1,0) = %v, want 3", got)
	}
	if got := a.Sum(); got != 10 {
		t.Errorf("Sum = %v, want 10", got)
	}
}

func TestFromBytesRejectsBadLength(t *testing.T) {
	if _, err := FromBytes(Int32, []int{3}, make([]byte, 10)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("partial element: expected ErrShapeMismatch, got %v", err)
	}
	if _, err := FromBytes(Int32, []int{2, 2}, make([]byte, 12)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("short buffer: expected ErrShapeMismatch, got %v", err)
	}
}

func TestTransposeIsNotContiguous(t *testing.T) {
	a := MustFromSlice([]int16{1, 2, 3, 4, 5, 6}, 2, 3)
	before := append([]byte(nil), a.Bytes()...)

	tr := a.Transpose()
	if tr.IsContiguous() {
		t.Fatal("transpose of a 2x3 array should not be contiguous")
	}
	if got := tr.Shape(); got[0] != 3 || got[1] != 2 {
		t.Fatalf("transpose shape = %v", got)
	}
	want := []int16{1, 4, 2, 5, 3, 6}
	got := Values[int16](tr)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transposed values = %v, want %v", got, want)
		}
	}
	c := tr.Contiguous()
	if !c.IsContiguous() {
		t.Fatal("Contiguous returned a non-contiguous array")
	}
	if !bytes.Equal(a.Bytes(), before) {
		t.Fatal("Contiguous mutated the source buffer")
	}
}

func TestAsType(t *testing.T) {
	a := MustFromSlice([]float64{1.9, -2.5, 300})
	b, err := a.AsType(Int8)
	if err != nil {
		t.Fatalf("AsType: %v", err)
	}
	got := Values[int8](b)
	want := []int8{1, -2, 44}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AsType(int8) = %v, want %v", got, want)
		}
	}
	if _, err := a.AsType(Invalid); !errors.Is(err, ErrUnsupportedDType) {
		t.Errorf("expected ErrUnsupportedDType, got %v", err)
	}
}

func TestReshape(t *testing.T) {
	a := MustFromSlice([]uint8{1, 2, 3, 4, 5, 6}, 2, 3)
	r, err := a.Transpose().Reshape(6)
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}
	if !bytes.Equal(r.Bytes(), []byte{1, 4, 2, 5, 3, 6}) {
		t.Fatalf("reshaped bytes = %v", r.Bytes())
	}
	if _, err := a.Reshape(4); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestMatrixInterop(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	a, err := FromMatrix(m)
	if err != nil {
		t.Fatalf("FromMatrix: %v", err)
	}
	if a.DType() != Float64 || a.At(0, 1) != 2 {
		t.Fatalf("FromMatrix = %s, At(0,1)=%v", a, a.At(0, 1))
	}
	d, err := a.Transpose().ToDense()
	if err != nil {
		t.Fatalf("ToDense: %v", err)
	}
	if d.At(0, 1) != 3 {
		t.Errorf("ToDense(transpose).At(0,1) = %v, want 3", d.At(0, 1))
	}
}

func TestFromMatrixRejectsNil(t *testing.T) {
	var d *mat.Dense
	if _, err := FromMatrix(d); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("FromMatrix(nil *Dense) = %v, want ErrShapeMismatch", err)
	}
	if _, err := FromMatrix(nil); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("FromMatrix(nil) = %v, want ErrShapeMismatch", err)
	}
}

func TestShapeOverflowRejected(t *testing.T) {
	huge := []int{1 << 32, 1 << 32}
	if _, err := FromBytes(Int8, huge, nil); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("FromBytes(%v) = %v, want ErrShapeMismatch", huge, err)
	}
	if _, err := FromBytes(Float64, []int{math.MaxInt / 4}, nil); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("byte length overflow accepted: %v", err)
	}
	if _, err := New(Int8, 1<<62, 1<<62, 0); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("New with overflowing shape = %v, want ErrShapeMismatch", err)
	}
}

func TestZeroSizedArray(t *testing.T) {
	a, err := New(Float32, 0, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Size() != 0 || len(a.Bytes()) != 0 {
		t.Fatalf("expected empty array, got size %d", a.Size())
	}
}
