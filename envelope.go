// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Envelope tags carried in the rpc_tag field of every message.
const (
	TagCall   = "__RPC_CALL__"
	TagResult = "__RPC_RESULT__"
	TagError  = "__RPC_ERROR__"
)

// Short tag spellings. They are always accepted on input and are written
// under ShortTagKey when short tags are enabled.
const (
	ShortTagKey     = "tag"
	ShortTagCall    = "CALL"
	ShortTagResult  = "RESULT"
	ShortTagError   = "ERROR"
	ShortTagNDArray = "NDARRAY"
)

var tagAliases = map[string]string{
	ShortTagCall:   TagCall,
	ShortTagResult: TagResult,
	ShortTagError:  TagError,
}

// CallEnvelope asks the server to invoke a handle.
type CallEnvelope struct {
	Tag    string                 `json:"rpc_tag"`
	Handle string                 `json:"handle"`
	UID    interface{}            `json:"uid"`
	Args   []interface{}          `json:"args"`
	Kwargs map[string]interface{} `json:"kwargs"`
}

// ResultEnvelope carries every value returned by a handle, in order.
type ResultEnvelope struct {
	Tag    string        `json:"rpc_tag"`
	Handle string        `json:"handle"`
	UID    interface{}   `json:"uid"`
	Result []interface{} `json:"result"`
}

// ErrorEnvelope reports a failed call. Handle and UID are nil when they
// could not be read from the request.
type ErrorEnvelope struct {
	Tag       string      `json:"rpc_tag"`
	Handle    *string     `json:"handle"`
	UID       interface{} `json:"uid"`
	Exception string      `json:"exception"`
	Descr     string      `json:"descr"`
}

func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Exception, e.Descr)
}

// PrepareCall builds a call envelope, encoding args and kwargs with vc (the
// default value codec when nil).
func PrepareCall(vc *ValueCodec, handle string, uid interface{}, args []interface{}, kwargs map[string]interface{}) (*CallEnvelope, error) {
	if vc == nil {
		vc = defaultValueCodec
	}
	encArgs, encKwargs, err := vc.EncodeArgs(args, kwargs)
	if err != nil {
		return nil, err
	}
	return &CallEnvelope{
		Tag:    TagCall,
		Handle: handle,
		UID:    uid,
		Args:   encArgs,
		Kwargs: encKwargs,
	}, nil
}

// PrepareResult builds a result envelope, encoding vals with vc.
func PrepareResult(vc *ValueCodec, handle string, uid interface{}, vals []interface{}) (*ResultEnvelope, error) {
	if vc == nil {
		vc = defaultValueCodec
	}
	if uid == nil {
		return nil, newError(KindInvalidEnvelope, nil, "Invalid uid.")
	}
	enc, err := vc.EncodeMany(vals)
	if err != nil {
		return nil, err
	}
	return &ResultEnvelope{Tag: TagResult, Handle: handle, UID: uid, Result: enc}, nil
}

// PrepareError builds an error envelope from err.
func PrepareError(err error, handle *string, uid interface{}) *ErrorEnvelope {
	return &ErrorEnvelope{
		Tag:       TagError,
		Handle:    handle,
		UID:       uid,
		Exception: KindOf(err),
		Descr:     err.Error(),
	}
}

var defaultValueCodec = NewValueCodec()

// ParseCall interprets a decoded wire message as a call envelope. It checks,
// in order, the tag, the uid and the types of handle, args and kwargs.
func ParseCall(msg interface{}) (*CallEnvelope, error) {
	obj, ok := msg.(map[string]interface{})
	if !ok {
		return nil, newError(KindInvalidEnvelope, nil, "Invalid RPC call: invalid tag.")
	}
	call := &CallEnvelope{Tag: envelopeTag(obj)}
	if call.Tag != TagCall {
		return nil, newError(KindInvalidEnvelope, nil, "Invalid RPC call: invalid tag.")
	}
	call.UID = obj["uid"]
	if call.UID == nil {
		return nil, newError(KindInvalidEnvelope, nil, "Invalid RPC call: invalid uid.")
	}
	handle, ok := obj["handle"].(string)
	if !ok {
		return nil, newError(KindInvalidEnvelope, nil, "Invalid RPC call: unknown handle `%v`.", obj["handle"])
	}
	call.Handle = handle
	switch args := obj["args"].(type) {
	case nil:
		call.Args = []interface{}{}
	case []interface{}:
		call.Args = args
	default:
		return nil, newError(KindInvalidEnvelope, nil, "Invalid RPC call: args must be a list, got %T.", args)
	}
	switch kwargs := obj["kwargs"].(type) {
	case nil:
		call.Kwargs = map[string]interface{}{}
	case map[string]interface{}:
		call.Kwargs = kwargs
	default:
		return nil, newError(KindInvalidEnvelope, nil, "Invalid RPC call: kwargs must be an object, got %T.", kwargs)
	}
	return call, nil
}

func envelopeTag(obj map[string]interface{}) string {
	raw, ok := obj[TagKey]
	if !ok {
		raw = obj["tag"]
	}
	tag, _ := raw.(string)
	if canonical, ok := tagAliases[tag]; ok {
		return canonical
	}
	return tag
}

// Dispatch validates call against reg, invokes the handle with decoded
// arguments and returns the encoded result envelope. vc may be nil to use
// the default value codec. A panicking handle is reported as an error.
func Dispatch(ctx context.Context, call *CallEnvelope, reg *Registry, vc *ValueCodec) (*ResultEnvelope, error) {
	if vc == nil {
		vc = defaultValueCodec
	}
	tag := call.Tag
	if canonical, ok := tagAliases[tag]; ok {
		tag = canonical
	}
	if tag != TagCall {
		return nil, newError(KindInvalidEnvelope, nil, "Invalid RPC call: invalid tag.")
	}
	if call.UID == nil {
		return nil, newError(KindInvalidEnvelope, nil, "Invalid RPC call: invalid uid.")
	}
	h, lerr := reg.Lookup(call.Handle)
	if lerr != nil {
		return nil, newError(KindInvalidEnvelope, lerr, "Invalid RPC call: unknown handle `%s`.", call.Handle)
	}

	args, kwargs, err := vc.DecodeArgs(call.Args, call.Kwargs)
	if err != nil {
		return nil, err
	}

	vals, err := invoke(ctx, h, call.Handle, args, kwargs)
	if err != nil {
		return nil, err
	}
	return encodeResult(vc, call.Handle, call.UID, vals)
}

// encodeResult is PrepareResult with panics from value encoders reported as
// errors.
func encodeResult(vc *ValueCodec, handle string, uid interface{}, vals []interface{}) (res *ResultEnvelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindHandlerError, panicError(r), "encode result of `%s`: %v", handle, r)
		}
	}()
	return PrepareResult(vc, handle, uid, vals)
}

func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

func invoke(ctx context.Context, h Handler, name string, args []interface{}, kwargs map[string]interface{}) (vals []interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Handle: name, Err: panicError(r), Stack: debug.Stack()}
		}
	}()
	vals, err = h.HandleCall(ctx, args, kwargs)
	if err != nil {
		return nil, &HandlerError{Handle: name, Err: err}
	}
	if vals == nil {
		vals = []interface{}{}
	}
	return vals, nil
}

// Reply turns one decoded wire message into exactly one reply envelope: a
// *ResultEnvelope on success, an *ErrorEnvelope otherwise. Handle and uid
// of an error reply are salvaged from msg when possible.
func Reply(ctx context.Context, msg interface{}, reg *Registry, vc *ValueCodec) interface{} {
	call, err := ParseCall(msg)
	if err == nil {
		var res *ResultEnvelope
		if res, err = Dispatch(ctx, call, reg, vc); err == nil {
			return res
		}
	}
	handle, uid := salvage(msg)
	return PrepareError(err, handle, uid)
}

// salvage extracts handle and uid from a message that failed to dispatch.
func salvage(msg interface{}) (*string, interface{}) {
	obj, ok := msg.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	var handle *string
	if h, ok := obj["handle"].(string); ok {
		handle = &h
	}
	return handle, obj["uid"]
}

// ShortForm returns env spelled with short tags: the envelope tag moves to
// the "tag" key ({"tag": "RESULT", ...}) and tagged arrays among its values
// carry "NDARRAY". Other values are returned unchanged.
func ShortForm(env interface{}) interface{} {
	switch e := env.(type) {
	case *CallEnvelope:
		kwargs := make(map[string]interface{}, len(e.Kwargs))
		for k, v := range e.Kwargs {
			kwargs[k] = shortValue(v)
		}
		return map[string]interface{}{
			ShortTagKey: ShortTagCall,
			"handle":    e.Handle,
			"uid":       e.UID,
			"args":      shortValues(e.Args),
			"kwargs":    kwargs,
		}
	case *ResultEnvelope:
		return map[string]interface{}{
			ShortTagKey: ShortTagResult,
			"handle":    e.Handle,
			"uid":       e.UID,
			"result":    shortValues(e.Result),
		}
	case *ErrorEnvelope:
		var handle interface{}
		if e.Handle != nil {
			handle = *e.Handle
		}
		return map[string]interface{}{
			ShortTagKey: ShortTagError,
			"handle":    handle,
			"uid":       e.UID,
			"exception": e.Exception,
			"descr":     e.Descr,
		}
	}
	return env
}

func shortValues(vals []interface{}) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = shortValue(v)
	}
	return out
}

func shortValue(v interface{}) interface{} {
	if ta, ok := v.(*TaggedArray); ok && ta != nil {
		short := *ta
		short.Tag = ShortTagNDArray
		return &short
	}
	return v
}
