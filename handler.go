// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/luxfi/unirpc/ndarray"
)

// Handler serves calls to one handle. It returns every result value in order.
type Handler interface {
	HandleCall(ctx context.Context, args []interface{}, kwargs map[string]interface{}) ([]interface{}, error)
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) ([]interface{}, error)

func (f HandlerFunc) HandleCall(ctx context.Context, args []interface{}, kwargs map[string]interface{}) ([]interface{}, error) {
	return f(ctx, args, kwargs)
}

// Kwargs receives the keyword arguments of a call when it is the last
// parameter of a function passed to Func.
type Kwargs map[string]interface{}

// ArgumentError reports arguments that do not fit a handle's signature.
type ArgumentError struct {
	Descr string
}

func (e *ArgumentError) Error() string { return e.Descr }

func argErrorf(format string, args ...interface{}) error {
	return &ArgumentError{Descr: fmt.Sprintf(format, args...)}
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	kwargsType  = reflect.TypeOf(Kwargs(nil))
	arrayType   = reflect.TypeOf((*ndarray.Array)(nil))
	denseType   = reflect.TypeOf((*mat.Dense)(nil))
)

// funcHandler calls an arbitrary Go function through reflection.
type funcHandler struct {
	fn     reflect.Value
	typ    reflect.Type
	ctx    bool // first parameter is context.Context
	kwargs bool // last parameter is Kwargs
	err    bool // last result is error
}

// Func adapts fn into a Handler. Positional arguments are converted to the
// parameter types of fn. fn may take a leading context.Context and a
// trailing Kwargs parameter; a trailing error result is reported as the
// call's error and the remaining results become the result values.
func Func(fn interface{}) (Handler, error) {
	if h, ok := fn.(Handler); ok {
		return h, nil
	}
	if f, ok := fn.(func(context.Context, []interface{}, map[string]interface{}) ([]interface{}, error)); ok {
		return HandlerFunc(f), nil
	}
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("handle of type %T is not callable", fn)
	}
	t := v.Type()
	h := &funcHandler{fn: v, typ: t}
	if t.NumIn() > 0 && t.In(0) == contextType {
		h.ctx = true
	}
	if n := t.NumIn(); n > 0 && t.In(n-1) == kwargsType {
		h.kwargs = true
	}
	if n := t.NumOut(); n > 0 && t.Out(n-1) == errorType {
		h.err = true
	}
	return h, nil
}

func (h *funcHandler) HandleCall(ctx context.Context, args []interface{}, kwargs map[string]interface{}) ([]interface{}, error) {
	in, err := h.arguments(ctx, args, kwargs)
	if err != nil {
		return nil, err
	}
	outs := h.fn.Call(in)
	if h.err {
		last := outs[len(outs)-1]
		outs = outs[:len(outs)-1]
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
	}
	results := make([]interface{}, len(outs))
	for i, o := range outs {
		results[i] = o.Interface()
	}
	return results, nil
}

func (h *funcHandler) arguments(ctx context.Context, args []interface{}, kwargs map[string]interface{}) ([]reflect.Value, error) {
	t := h.typ
	first, last := 0, t.NumIn()
	if h.ctx {
		first++
	}
	if h.kwargs {
		last--
	}
	if !h.kwargs && len(kwargs) > 0 {
		for k := range kwargs {
			return nil, argErrorf("got an unexpected keyword argument '%s'", k)
		}
	}

	fixed := last - first
	variadic := t.IsVariadic() && !h.kwargs
	if variadic {
		fixed--
		if len(args) < fixed {
			return nil, argErrorf("takes at least %d positional arguments but %d were given", fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, argErrorf("takes %d positional arguments but %d were given", fixed, len(args))
	}

	in := make([]reflect.Value, 0, t.NumIn()+len(args))
	if h.ctx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, a := range args {
		var pt reflect.Type
		if i < fixed {
			pt = t.In(first + i)
		} else {
			pt = t.In(t.NumIn() - 1).Elem()
		}
		v, err := convertArg(a, pt)
		if err != nil {
			return nil, argErrorf("argument %d: %v", i, err)
		}
		in = append(in, v)
	}
	if h.kwargs {
		kw := make(Kwargs, len(kwargs))
		for k, v := range kwargs {
			kw[k] = v
		}
		in = append(in, reflect.ValueOf(kw))
	}
	return in, nil
}

// convertArg converts a decoded wire value to the parameter type t.
func convertArg(v interface{}, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use null as %s", t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if a, ok := v.(*ndarray.Array); ok && t == denseType {
		d, err := a.ToDense()
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d), nil
	}
	if t == arrayType {
		return reflect.Value{}, fmt.Errorf("cannot use %T as array", v)
	}
	if isNumber(v) {
		if out, ok, err := numberValue(v, t); ok || err != nil {
			return out, err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(b, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
	}
	return ptr.Elem(), nil
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case json.Number, float64, float32, int, int64, int32, uint64, uint32:
		return true
	}
	return false
}

// numberValue converts a numeric wire value to a numeric kind. ok is false
// when t is not numeric.
func numberValue(v interface{}, t reflect.Type) (reflect.Value, bool, error) {
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, ok := asInt64(v)
		if !ok || out.OverflowInt(i) {
			return reflect.Value{}, true, fmt.Errorf("cannot use %v as %s", v, t)
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, ok := asInt64(v)
		u := uint64(i)
		if n, isU := v.(uint64); isU {
			u, ok = n, true
		} else if i < 0 {
			ok = false
		}
		if !ok || out.OverflowUint(u) {
			return reflect.Value{}, true, fmt.Errorf("cannot use %v as %s", v, t)
		}
		out.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, ok := asFloat64(v)
		if !ok {
			return reflect.Value{}, true, fmt.Errorf("cannot use %v as %s", v, t)
		}
		out.SetFloat(f)
	default:
		return reflect.Value{}, false, nil
	}
	return out, true, nil
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(string(n), 64)
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return asInt64(float64(n))
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func asFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
