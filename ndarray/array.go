// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ndarray

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrShapeMismatch is returned when a buffer length does not agree with the
// requested shape and dtype.
var ErrShapeMismatch = errors.New("ndarray: shape mismatch")

// Array is a dense n-dimensional numeric array backed by little-endian bytes.
//
// Strides and offset are counted in elements, so an Array may be a
// non-contiguous view (see Transpose) over another Array's buffer.
type Array struct {
	dtype   DType
	shape   []int
	strides []int
	offset  int
	data    []byte
}

// New returns a zero-filled contiguous array.
func New(dtype DType, shape ...int) (*Array, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}
	n, err := elements(shape, dtype.Size())
	if err != nil {
		return nil, err
	}
	return &Array{
		dtype:   dtype,
		shape:   cloneInts(shape),
		strides: rowMajorStrides(shape),
		data:    make([]byte, n*dtype.Size()),
	}, nil
}

// FromBytes interprets buf as a row-major buffer of dtype elements with the
// given shape. The returned array shares buf.
func FromBytes(dtype DType, shape []int, buf []byte) (*Array, error) {
	size := dtype.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("%w: buffer of %d bytes is not a multiple of %s element size %d",
			ErrShapeMismatch, len(buf), dtype, size)
	}
	n, err := elements(shape, size)
	if err != nil {
		return nil, err
	}
	if n*size != len(buf) {
		return nil, fmt.Errorf("%w: cannot reshape %d %s elements into shape %v",
			ErrShapeMismatch, len(buf)/size, dtype, shape)
	}
	return &Array{
		dtype:   dtype,
		shape:   cloneInts(shape),
		strides: rowMajorStrides(shape),
		data:    buf,
	}, nil
}

// FromSlice copies values into a new array. Without a shape the array is
// one-dimensional.
func FromSlice[T Number](values []T, shape ...int) (*Array, error) {
	if len(shape) == 0 {
		shape = []int{len(values)}
	}
	a, err := New(DTypeOf[T](), shape...)
	if err != nil {
		return nil, err
	}
	if len(values) != a.Size() {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(values), shape)
	}
	size := a.dtype.Size()
	for i, v := range values {
		store(a.dtype, a.data[i*size:], scalarOf(v))
	}
	return a, nil
}

// MustFromSlice is like FromSlice but panics on error.
func MustFromSlice[T Number](values []T, shape ...int) *Array {
	a, err := FromSlice(values, shape...)
	if err != nil {
		panic(err)
	}
	return a
}

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Shape returns a copy of the dimension sizes.
func (a *Array) Shape() []int { return cloneInts(a.shape) }

// Ndim returns the number of dimensions.
func (a *Array) Ndim() int { return len(a.shape) }

// Size returns the number of elements.
func (a *Array) Size() int {
	n := 1
	for _, d := range a.shape {
		n *= d
	}
	return n
}

// Nbytes returns the size of the element data in bytes.
func (a *Array) Nbytes() int { return a.Size() * a.dtype.Size() }

// IsContiguous reports whether the elements are laid out row-major without
// gaps starting at the beginning of the buffer.
func (a *Array) IsContiguous() bool {
	if a.offset != 0 {
		return false
	}
	want := 1
	for i := len(a.shape) - 1; i >= 0; i-- {
		if a.shape[i] != 1 && a.strides[i] != want {
			return false
		}
		want *= a.shape[i]
	}
	return true
}

// Contiguous returns a row-major copy of a, or a itself when it is already
// contiguous. The receiver is never modified.
func (a *Array) Contiguous() *Array {
	if a.IsContiguous() {
		return a
	}
	size := a.dtype.Size()
	out := &Array{
		dtype:   a.dtype,
		shape:   cloneInts(a.shape),
		strides: rowMajorStrides(a.shape),
		data:    make([]byte, a.Nbytes()),
	}
	i := 0
	a.each(func(elem int) {
		copy(out.data[i*size:(i+1)*size], a.data[elem*size:(elem+1)*size])
		i++
	})
	return out
}

// Bytes returns the elements as a row-major little-endian buffer. For a
// contiguous array the result aliases the array's storage.
func (a *Array) Bytes() []byte {
	c := a.Contiguous()
	return c.data[:c.Nbytes()]
}

// Transpose returns a view with the axes reversed.
func (a *Array) Transpose() *Array {
	n := len(a.shape)
	t := &Array{
		dtype:   a.dtype,
		shape:   make([]int, n),
		strides: make([]int, n),
		offset:  a.offset,
		data:    a.data,
	}
	for i := 0; i < n; i++ {
		t.shape[i] = a.shape[n-1-i]
		t.strides[i] = a.strides[n-1-i]
	}
	return t
}

// Reshape returns an array with the same elements in a new shape. A
// non-contiguous array is copied first.
func (a *Array) Reshape(shape ...int) (*Array, error) {
	n, err := elements(shape, a.dtype.Size())
	if err != nil {
		return nil, err
	}
	if n != a.Size() {
		return nil, fmt.Errorf("%w: cannot reshape array of size %d into shape %v", ErrShapeMismatch, a.Size(), shape)
	}
	c := a.Contiguous()
	return &Array{
		dtype:   c.dtype,
		shape:   cloneInts(shape),
		strides: rowMajorStrides(shape),
		data:    c.data,
	}, nil
}

// AsType returns a contiguous copy converted to dtype.
func (a *Array) AsType(dtype DType) (*Array, error) {
	out, err := New(dtype, a.shape...)
	if err != nil {
		return nil, err
	}
	src, dst := a.dtype.Size(), dtype.Size()
	i := 0
	a.each(func(elem int) {
		store(dtype, out.data[i*dst:], load(a.dtype, a.data[elem*src:]))
		i++
	})
	return out, nil
}

// At returns the element at the given index converted to float64. It panics
// if the index is out of range.
func (a *Array) At(idx ...int) float64 {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("ndarray: %d indices for %d-dimensional array", len(idx), len(a.shape)))
	}
	elem := a.offset
	for i, x := range idx {
		if x < 0 || x >= a.shape[i] {
			panic(fmt.Sprintf("ndarray: index %d out of range for axis %d with size %d", x, i, a.shape[i]))
		}
		elem += x * a.strides[i]
	}
	return load(a.dtype, a.data[elem*a.dtype.Size():]).float64()
}

// Float64s returns the elements in row-major order converted to float64.
func (a *Array) Float64s() []float64 {
	return Values[float64](a)
}

// Sum returns the sum of all elements as float64.
func (a *Array) Sum() float64 {
	var total float64
	size := a.dtype.Size()
	a.each(func(elem int) {
		total += load(a.dtype, a.data[elem*size:]).float64()
	})
	return total
}

// Equal reports whether b has the same dtype, shape and element bytes.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.dtype != b.dtype || len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return string(a.Bytes()) == string(b.Bytes())
}

func (a *Array) String() string {
	dims := make([]string, len(a.shape))
	for i, d := range a.shape {
		dims[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("ndarray(%s, shape=(%s))", a.dtype, strings.Join(dims, ", "))
}

// Values returns the elements of a in row-major order converted to T.
func Values[T Number](a *Array) []T {
	out := make([]T, 0, a.Size())
	size := a.dtype.Size()
	a.each(func(elem int) {
		out = append(out, valueAs[T](load(a.dtype, a.data[elem*size:])))
	})
	return out
}

// each calls fn with the buffer element index of every element in row-major
// order.
func (a *Array) each(fn func(elem int)) {
	n := a.Size()
	if n == 0 {
		return
	}
	if a.IsContiguous() {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	idx := make([]int, len(a.shape))
	for k := 0; k < n; k++ {
		elem := a.offset
		for i, x := range idx {
			elem += x * a.strides[i]
		}
		fn(elem)
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < a.shape[i] {
				break
			}
			idx[i] = 0
		}
	}
}

// elements returns the element count of shape. It fails when the count, or
// the byte length at itemSize bytes per element, does not fit in an int.
func elements(shape []int, itemSize int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in shape %v", ErrShapeMismatch, shape)
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: shape %v is too large", ErrShapeMismatch, shape)
		}
		n *= d
	}
	if itemSize > 0 && n > math.MaxInt/itemSize {
		return 0, fmt.Errorf("%w: shape %v is too large for %d-byte elements", ErrShapeMismatch, shape, itemSize)
	}
	return n, nil
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

func cloneInts(v []int) []int {
	out := make([]int, len(v))
	copy(out, v)
	return out
}
