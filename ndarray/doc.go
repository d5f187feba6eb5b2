// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ndarray implements the dense numeric arrays carried by unirpc
// tagged array values.
//
// An Array couples a fixed-width element type (DType) with a shape and a
// little-endian byte buffer. Arrays may be strided views of another array's
// storage; Contiguous and Bytes always produce the row-major layout used on
// the wire.
package ndarray
