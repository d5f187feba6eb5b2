// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package handles provides the handles unirpcd serves for smoke-testing
// clients.
package handles

import (
	"context"
	"errors"

	"github.com/luxfi/unirpc"
	"github.com/luxfi/unirpc/ndarray"
)

// Register adds the built-in handles to reg.
func Register(reg *unirpc.Registry) error {
	return reg.AddNamed(map[string]interface{}{
		"echo":      unirpc.HandlerFunc(echo),
		"add":       add,
		"sum":       sum,
		"shape":     shape,
		"transpose": transpose,
		"scale":     scale,
		"handles":   func() []string { return reg.Names() },
	})
}

// echo returns its positional arguments as separate result values.
func echo(_ context.Context, args []interface{}, kwargs map[string]interface{}) ([]interface{}, error) {
	if len(kwargs) > 0 {
		return nil, &unirpc.ArgumentError{Descr: "echo takes no keyword arguments"}
	}
	return args, nil
}

func add(a, b float64) float64 { return a + b }

func sum(a *ndarray.Array) (float64, error) {
	if a == nil {
		return 0, errNilArray
	}
	return a.Sum(), nil
}

func shape(a *ndarray.Array) ([]int, error) {
	if a == nil {
		return nil, errNilArray
	}
	return a.Shape(), nil
}

func transpose(a *ndarray.Array) (*ndarray.Array, error) {
	if a == nil {
		return nil, errNilArray
	}
	return a.Transpose(), nil
}

// scale multiplies every element by factor. The result is float64.
func scale(a *ndarray.Array, factor float64) (*ndarray.Array, error) {
	if a == nil {
		return nil, errNilArray
	}
	vals := a.Float64s()
	for i := range vals {
		vals[i] *= factor
	}
	return ndarray.FromSlice(vals, a.Shape()...)
}

var errNilArray = errors.New("expected an array, got null")
