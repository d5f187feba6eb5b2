// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ndarray

import (
	"encoding/binary"
	"math"
)

// scalar holds one element widened to the representation of its dtype class.
type scalar struct {
	dtype DType
	i     int64
	u     uint64
	f     float64
}

func (s scalar) float64() float64 {
	switch {
	case s.dtype.isFloat():
		return s.f
	case s.dtype.isUnsigned():
		return float64(s.u)
	default:
		return float64(s.i)
	}
}

func (s scalar) int64() int64 {
	switch {
	case s.dtype.isFloat():
		return int64(s.f)
	case s.dtype.isUnsigned():
		return int64(s.u)
	default:
		return s.i
	}
}

func (s scalar) uint64() uint64 {
	switch {
	case s.dtype.isFloat():
		if s.f < 0 {
			return uint64(int64(s.f))
		}
		return uint64(s.f)
	case s.dtype.isUnsigned():
		return s.u
	default:
		return uint64(s.i)
	}
}

// load reads the element of type d stored little-endian at the start of b.
func load(d DType, b []byte) scalar {
	s := scalar{dtype: d}
	switch d {
	case Int8:
		s.i = int64(int8(b[0]))
	case Int16:
		s.i = int64(int16(binary.LittleEndian.Uint16(b)))
	case Int32:
		s.i = int64(int32(binary.LittleEndian.Uint32(b)))
	case Int64:
		s.i = int64(binary.LittleEndian.Uint64(b))
	case Uint8:
		s.u = uint64(b[0])
	case Uint16:
		s.u = uint64(binary.LittleEndian.Uint16(b))
	case Uint32:
		s.u = uint64(binary.LittleEndian.Uint32(b))
	case Uint64:
		s.u = binary.LittleEndian.Uint64(b)
	case Float32:
		s.f = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Float64:
		s.f = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return s
}

// store writes s converted to d at the start of b. Conversions follow Go's
// numeric conversion rules: floats truncate toward zero, integers wrap.
func store(d DType, b []byte, s scalar) {
	switch d {
	case Int8:
		b[0] = byte(int8(s.int64()))
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(int16(s.int64())))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(s.int64())))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(s.int64()))
	case Uint8:
		b[0] = uint8(s.uint64())
	case Uint16:
		binary.LittleEndian.PutUint16(b, uint16(s.uint64()))
	case Uint32:
		binary.LittleEndian.PutUint32(b, uint32(s.uint64()))
	case Uint64:
		binary.LittleEndian.PutUint64(b, s.uint64())
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(s.float64())))
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(s.float64()))
	}
}

func scalarOf[T Number](v T) scalar {
	switch x := any(v).(type) {
	case int8:
		return scalar{dtype: Int8, i: int64(x)}
	case int16:
		return scalar{dtype: Int16, i: int64(x)}
	case int32:
		return scalar{dtype: Int32, i: int64(x)}
	case int64:
		return scalar{dtype: Int64, i: x}
	case uint8:
		return scalar{dtype: Uint8, u: uint64(x)}
	case uint16:
		return scalar{dtype: Uint16, u: uint64(x)}
	case uint32:
		return scalar{dtype: Uint32, u: uint64(x)}
	case uint64:
		return scalar{dtype: Uint64, u: x}
	case float32:
		return scalar{dtype: Float32, f: float64(x)}
	case float64:
		return scalar{dtype: Float64, f: x}
	}
	return scalar{}
}

func valueAs[T Number](s scalar) T {
	var zero T
	switch any(zero).(type) {
	case float32, float64:
		return T(s.float64())
	case uint8, uint16, uint32, uint64:
		return T(s.uint64())
	default:
		return T(s.int64())
	}
}
