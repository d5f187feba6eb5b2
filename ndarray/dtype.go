// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ndarray

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedDType is returned when a dtype name does not map to a
// supported fixed-width numeric element type.
var ErrUnsupportedDType = errors.New("ndarray: unsupported dtype")

// DType identifies the element type of an Array.
type DType uint8

const (
	Invalid DType = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
)

var dtypeNames = [...]string{
	Invalid: "invalid",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
}

var dtypeSizes = [...]int{
	Int8: 1, Int16: 2, Int32: 4, Int64: 8,
	Uint8: 1, Uint16: 2, Uint32: 4, Uint64: 8,
	Float32: 4, Float64: 8,
}

// aliases accepted by ParseDType in addition to the canonical names.
var dtypeAliases = map[string]DType{
	"byte":   Int8,
	"ubyte":  Uint8,
	"short":  Int16,
	"ushort": Uint16,
	"intc":   Int32,
	"uintc":  Uint32,
	"int":    Int64,
	"long":   Int64,
	"uint":   Uint64,
	"single": Float32,
	"double": Float64,
	"float":  Float64,
	"i1":     Int8,
	"i2":     Int16,
	"i4":     Int32,
	"i8":     Int64,
	"u1":     Uint8,
	"u2":     Uint16,
	"u4":     Uint32,
	"u8":     Uint64,
	"f4":     Float32,
	"f8":     Float64,
}

// ParseDType resolves a dtype name. Canonical names are the ones returned by
// DType.String; a leading '<' or '|' byte-order marker is tolerated.
func ParseDType(name string) (DType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimLeft(n, "<|=")
	for d := Int8; d <= Float64; d++ {
		if dtypeNames[d] == n {
			return d, nil
		}
	}
	if d, ok := dtypeAliases[n]; ok {
		return d, nil
	}
	return Invalid, fmt.Errorf("%w: %q", ErrUnsupportedDType, name)
}

func (d DType) String() string {
	if int(d) < len(dtypeNames) {
		return dtypeNames[d]
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Size returns the element width in bytes, or 0 for an invalid dtype.
func (d DType) Size() int {
	if d == Invalid || int(d) >= len(dtypeSizes) {
		return 0
	}
	return dtypeSizes[d]
}

// Valid reports whether d names a supported element type.
func (d DType) Valid() bool { return d.Size() > 0 }

func (d DType) isFloat() bool { return d == Float32 || d == Float64 }

func (d DType) isUnsigned() bool { return d >= Uint8 && d <= Uint64 }

// Number is the set of Go element types an Array can hold.
type Number interface {
	int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		float32 | float64
}

// DTypeOf returns the dtype matching the Go element type T.
func DTypeOf[T Number]() DType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return Invalid
}
