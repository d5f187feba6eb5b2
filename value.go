// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/luxfi/unirpc/ndarray"
)

// Tag key and values reserved for codec use inside argument and result values.
const (
	TagKey     = "rpc_tag"
	TagNDArray = "__RPC_VAL_NDARRAY__"
)

// TaggedArray is the wire form of a numeric array. Data holds a standard
// base64 string, or raw bytes when the codec has base64 disabled.
type TaggedArray struct {
	Tag   string      `json:"rpc_tag"`
	DType string      `json:"dtype"`
	Shape []int       `json:"shape"`
	Data  interface{} `json:"data"`
}

// EncoderFunc converts a native value into its wire form.
type EncoderFunc func(c *ValueCodec, v interface{}) (interface{}, error)

// DecoderFunc converts a tagged wire object back into a native value.
type DecoderFunc func(c *ValueCodec, obj map[string]interface{}) (interface{}, error)

type valueEncoder struct {
	match  func(v interface{}) bool
	encode EncoderFunc
}

// ValueCodec encodes and decodes individual argument and result values.
//
// Encoding is selected by an ordered list of (predicate, encoder) pairs,
// first match wins. Decoding is selected by the rpc_tag string of the wire
// object. Values matched by neither pass through unchanged.
type ValueCodec struct {
	// Base64 selects base64 strings for array payloads. When false, payloads
	// are raw byte slices, which only binary wire codecs carry verbatim.
	Base64 bool

	mu       sync.RWMutex
	encoders []valueEncoder
	decoders map[string]DecoderFunc
}

// NewValueCodec returns a codec with base64 payloads and the built-in array
// encoders (*ndarray.Array, gonum mat.Matrix) and decoder.
func NewValueCodec() *ValueCodec {
	c := &ValueCodec{
		Base64:   true,
		decoders: make(map[string]DecoderFunc),
	}
	c.RegisterEncoder(func(v interface{}) bool {
		_, ok := v.(*ndarray.Array)
		return ok
	}, func(c *ValueCodec, v interface{}) (interface{}, error) {
		return c.EncodeArray(v.(*ndarray.Array), "")
	})
	c.RegisterEncoder(func(v interface{}) bool {
		_, ok := v.(mat.Matrix)
		return ok
	}, func(c *ValueCodec, v interface{}) (interface{}, error) {
		a, err := ndarray.FromMatrix(v.(mat.Matrix))
		if err != nil {
			return nil, newError(KindShapeMismatch, err, "cannot encode matrix: %v", err)
		}
		return c.EncodeArray(a, "")
	})
	c.RegisterDecoder(TagNDArray, decodeArray)
	c.RegisterDecoder(ShortTagNDArray, decodeArray)
	return c
}

// RegisterEncoder appends an encoder. Encoders are tried in registration
// order.
func (c *ValueCodec) RegisterEncoder(match func(v interface{}) bool, enc EncoderFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoders = append(c.encoders, valueEncoder{match: match, encode: enc})
}

// RegisterDecoder binds a decoder to an rpc_tag value, replacing any
// previous one.
func (c *ValueCodec) RegisterDecoder(tag string, dec DecoderFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoders[tag] = dec
}

// Encode returns the wire form of v. Values without a matching encoder are
// returned unchanged; nested containers are not traversed.
func (c *ValueCodec) Encode(v interface{}) (interface{}, error) {
	c.mu.RLock()
	var enc EncoderFunc
	for _, e := range c.encoders {
		if e.match(v) {
			enc = e.encode
			break
		}
	}
	c.mu.RUnlock()
	if enc == nil {
		return v, nil
	}
	return enc(c, v)
}

// Decode returns the native form of v. Objects carrying an rpc_tag are
// handed to the decoder registered for that tag; everything else is returned
// unchanged.
func (c *ValueCodec) Decode(v interface{}) (interface{}, error) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return v, nil
	}
	raw, ok := obj[TagKey]
	if !ok {
		return v, nil
	}
	tag, _ := raw.(string)
	c.mu.RLock()
	dec, ok := c.decoders[tag]
	c.mu.RUnlock()
	if !ok {
		return nil, newError(KindUnknownArrayTag, nil, "unknown RPC arg decoder tag '%v'", raw)
	}
	return dec(c, obj)
}

// EncodeArray encodes a as a tagged array. A non-empty dtype casts the
// elements to that type first. The input array is never modified.
func (c *ValueCodec) EncodeArray(a *ndarray.Array, dtype string) (*TaggedArray, error) {
	if a == nil {
		return nil, newError(KindShapeMismatch, nil, "cannot encode nil array")
	}
	if dtype != "" {
		d, err := ndarray.ParseDType(dtype)
		if err != nil {
			return nil, newError(KindUnsupportedDType, err, "cannot cast %s array to dtype %q", a.DType(), dtype)
		}
		if a, err = a.AsType(d); err != nil {
			return nil, newError(KindUnsupportedDType, err, "cannot cast array to dtype %q: %v", dtype, err)
		}
	}
	raw := a.Bytes()
	var data interface{}
	if c.Base64 {
		data = base64.StdEncoding.EncodeToString(raw)
	} else {
		data = append([]byte(nil), raw...)
	}
	return &TaggedArray{
		Tag:   TagNDArray,
		DType: a.DType().String(),
		Shape: a.Shape(),
		Data:  data,
	}, nil
}

// EncodeMany encodes each value, preserving order and length.
func (c *ValueCodec) EncodeMany(vals []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		enc, err := c.Encode(v)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// DecodeMany decodes each value, preserving order and length.
func (c *ValueCodec) DecodeMany(vals []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		dec, err := c.Decode(v)
		if err != nil {
			return nil, err
		}
		out[i] = dec
	}
	return out, nil
}

// EncodeArgs encodes positional and keyword arguments. Keyword keys are kept.
func (c *ValueCodec) EncodeArgs(args []interface{}, kwargs map[string]interface{}) ([]interface{}, map[string]interface{}, error) {
	return c.mapArgs(args, kwargs, c.Encode)
}

// DecodeArgs decodes positional and keyword arguments. Keyword keys are kept.
func (c *ValueCodec) DecodeArgs(args []interface{}, kwargs map[string]interface{}) ([]interface{}, map[string]interface{}, error) {
	return c.mapArgs(args, kwargs, c.Decode)
}

func (c *ValueCodec) mapArgs(
	args []interface{},
	kwargs map[string]interface{},
	fn func(interface{}) (interface{}, error),
) ([]interface{}, map[string]interface{}, error) {
	outArgs := make([]interface{}, len(args))
	for i, v := range args {
		x, err := fn(v)
		if err != nil {
			return nil, nil, err
		}
		outArgs[i] = x
	}
	outKwargs := make(map[string]interface{}, len(kwargs))
	for k, v := range kwargs {
		x, err := fn(v)
		if err != nil {
			return nil, nil, fmt.Errorf("kwarg %q: %w", k, err)
		}
		outKwargs[k] = x
	}
	return outArgs, outKwargs, nil
}

func decodeArray(_ *ValueCodec, obj map[string]interface{}) (interface{}, error) {
	name, _ := obj["dtype"].(string)
	dtype, err := ndarray.ParseDType(name)
	if err != nil {
		return nil, newError(KindUnsupportedDType, err, "data type '%v' not understood", obj["dtype"])
	}
	shape, err := shapeOf(obj["shape"])
	if err != nil {
		return nil, err
	}

	var buf []byte
	switch data := obj["data"].(type) {
	case string:
		buf, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, newError(KindInvalidBase64, err, "`data` was not a valid Base64 string")
		}
	case []byte:
		buf = data
	case nil:
		return nil, newError(KindInvalidBase64, nil, "`data` is missing")
	default:
		return nil, newError(KindInvalidBase64, nil, "`data` must be a Base64 string, got %T", data)
	}

	a, err := ndarray.FromBytes(dtype, shape, buf)
	if err != nil {
		return nil, newError(KindShapeMismatch, err, "%v", err)
	}
	return a, nil
}

func shapeOf(v interface{}) ([]int, error) {
	switch s := v.(type) {
	case []int:
		return s, nil
	case []interface{}:
		shape := make([]int, len(s))
		for i, d := range s {
			n, ok := toInt(d)
			if !ok || n < 0 {
				return nil, newError(KindShapeMismatch, nil, "invalid dimension %v in shape %v", d, v)
			}
			shape[i] = n
		}
		return shape, nil
	default:
		return nil, newError(KindShapeMismatch, nil, "`shape` must be a list of non-negative integers, got %v", v)
	}
}

// toInt converts the integer representations produced by the wire codecs.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		if int64(int(n)) != n {
			return 0, false
		}
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil || int64(int(i)) != i {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

// AsArray returns v as an array if it is one.
func AsArray(v interface{}) (*ndarray.Array, bool) {
	a, ok := v.(*ndarray.Array)
	return a, ok
}
