// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ndarray

import (
	"fmt"
	"reflect"

	"gonum.org/v1/gonum/mat"
)

// FromMatrix copies a gonum matrix into a float64 array of shape (rows, cols).
// A nil matrix, including a typed nil such as (*mat.Dense)(nil), is an error.
func FromMatrix(m mat.Matrix) (*Array, error) {
	if v := reflect.ValueOf(m); !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		return nil, fmt.Errorf("%w: nil matrix", ErrShapeMismatch)
	}
	r, c := m.Dims()
	a, err := New(Float64, r, c)
	if err != nil {
		return nil, err
	}
	size := Float64.Size()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			store(Float64, a.data[(i*c+j)*size:], scalar{dtype: Float64, f: m.At(i, j)})
		}
	}
	return a, nil
}

// ToDense converts a two-dimensional array into a gonum dense matrix.
func (a *Array) ToDense() (*mat.Dense, error) {
	if len(a.shape) != 2 {
		return nil, fmt.Errorf("%w: dense matrix requires 2 dimensions, got shape %v", ErrShapeMismatch, a.shape)
	}
	if a.shape[0] == 0 || a.shape[1] == 0 {
		return nil, fmt.Errorf("%w: dense matrix requires non-empty shape, got %v", ErrShapeMismatch, a.shape)
	}
	return mat.NewDense(a.shape[0], a.shape[1], a.Float64s()), nil
}
