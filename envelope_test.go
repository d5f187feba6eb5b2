// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/luxfi/unirpc/ndarray"
)

type quotaError struct{ left int }

func (e *quotaError) Error() string { return "quota exhausted" }

type QuotaError struct{}

func (QuotaError) Error() string { return "over quota" }

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	err := reg.AddNamed(map[string]interface{}{
		"add": func(a, b int) int { return a + b },
		"sum": func(a *ndarray.Array) int64 {
			var total int64
			for _, v := range ndarray.Values[int64](a) {
				total += v
			}
			return total
		},
		"identity": func(a *ndarray.Array) *ndarray.Array { return a },
		"nothing":  func() {},
		"pair":     func() (string, int) { return "x", 2 },
		"fail":     func() error { return QuotaError{} },
		"private":  func() error { return &quotaError{} },
		"boom":     func() int { panic("kaboom") },
	})
	if err != nil {
		t.Fatalf("AddNamed: %v", err)
	}
	return reg
}

// decodeMessage parses a JSON message the way the server does.
func decodeMessage(t *testing.T, s string) interface{} {
	t.Helper()
	var msg interface{}
	if err := (JSONCodec{}).Decode([]byte(s), &msg); err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return msg
}

func TestReplyAdd(t *testing.T) {
	reg := testRegistry(t)
	msg := decodeMessage(t, `{"rpc_tag":"__RPC_CALL__","handle":"add","uid":1,"args":[2,3],"kwargs":{}}`)

	res, ok := Reply(context.Background(), msg, reg, nil).(*ResultEnvelope)
	if !ok {
		t.Fatalf("expected result envelope")
	}
	want := &ResultEnvelope{Tag: TagResult, Handle: "add", UID: json.Number("1"), Result: []interface{}{5}}
	if !reflect.DeepEqual(res, want) {
		t.Fatalf("got %+v, want %+v", res, want)
	}
}

func TestReplyShortTagsAccepted(t *testing.T) {
	reg := testRegistry(t)
	msg := decodeMessage(t, `{"tag":"CALL","handle":"add","uid":"u","args":[1,1]}`)
	if _, ok := Reply(context.Background(), msg, reg, nil).(*ResultEnvelope); !ok {
		t.Fatal("expected result envelope for short tag")
	}
}

func TestReplySumsInt32Array(t *testing.T) {
	reg := testRegistry(t)
	data := base64.StdEncoding.EncodeToString([]byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0})
	msg := decodeMessage(t, `{"rpc_tag":"__RPC_CALL__","handle":"sum","uid":2,"args":[
		{"rpc_tag":"__RPC_VAL_NDARRAY__","dtype":"int32","shape":[2,2],"data":"`+data+`"}],"kwargs":{}}`)

	res, ok := Reply(context.Background(), msg, reg, nil).(*ResultEnvelope)
	if !ok {
		t.Fatalf("expected result envelope")
	}
	if !reflect.DeepEqual(res.Result, []interface{}{int64(10)}) {
		t.Fatalf("result = %v, want [10]", res.Result)
	}
}

func TestReplyResultShapes(t *testing.T) {
	reg := testRegistry(t)
	tests := map[string][]interface{}{
		"nothing": {},
		"pair":    {"x", 2},
	}
	for handle, want := range tests {
		msg := map[string]interface{}{TagKey: TagCall, "handle": handle, "uid": "u"}
		res, ok := Reply(context.Background(), msg, reg, nil).(*ResultEnvelope)
		if !ok {
			t.Fatalf("%s: expected result envelope", handle)
		}
		if !reflect.DeepEqual(res.Result, want) {
			t.Fatalf("%s: result = %#v, want %#v", handle, res.Result, want)
		}
	}
}

func TestReplyErrors(t *testing.T) {
	reg := testRegistry(t)
	name := func(s string) *string { return &s }
	tests := []struct {
		name      string
		msg       string
		exception string
		descr     string
		handle    *string
		uid       interface{}
	}{
		{
			name:      "missing handle",
			msg:       `{"rpc_tag":"__RPC_CALL__","handle":"missing","uid":7,"args":[],"kwargs":{}}`,
			exception: "InvalidEnvelope",
			descr:     "unknown handle `missing`",
			handle:    name("missing"),
			uid:       json.Number("7"),
		},
		{
			name:      "wrong tag",
			msg:       `{"rpc_tag":"__RPC_RESULT__","handle":"add","uid":1,"args":[],"kwargs":{}}`,
			exception: "InvalidEnvelope",
			descr:     "invalid tag",
			handle:    name("add"),
			uid:       json.Number("1"),
		},
		{
			name:      "missing uid",
			msg:       `{"rpc_tag":"__RPC_CALL__","handle":"add","args":[2,3]}`,
			exception: "InvalidEnvelope",
			descr:     "invalid uid",
			handle:    name("add"),
		},
		{
			name:      "not an object",
			msg:       `[1, 2, 3]`,
			exception: "InvalidEnvelope",
			descr:     "invalid tag",
		},
		{
			name:      "malformed base64",
			msg:       `{"rpc_tag":"__RPC_CALL__","handle":"sum","uid":3,"args":[{"rpc_tag":"__RPC_VAL_NDARRAY__","dtype":"int32","shape":[1],"data":"@@@"}]}`,
			exception: "InvalidBase64",
			descr:     "Base64",
			handle:    name("sum"),
			uid:       json.Number("3"),
		},
		{
			name:      "handler error",
			msg:       `{"rpc_tag":"__RPC_CALL__","handle":"fail","uid":"abc","args":[],"kwargs":{}}`,
			exception: "QuotaError",
			descr:     "over quota",
			handle:    name("fail"),
			uid:       "abc",
		},
		{
			name:      "unexported handler error type",
			msg:       `{"rpc_tag":"__RPC_CALL__","handle":"private","uid":4}`,
			exception: "HandlerError",
			descr:     "quota exhausted",
			handle:    name("private"),
			uid:       json.Number("4"),
		},
		{
			name:      "panic",
			msg:       `{"rpc_tag":"__RPC_CALL__","handle":"boom","uid":5}`,
			exception: "HandlerError",
			descr:     "kaboom",
			handle:    name("boom"),
			uid:       json.Number("5"),
		},
		{
			name:      "bad arguments",
			msg:       `{"rpc_tag":"__RPC_CALL__","handle":"add","uid":6,"args":[1]}`,
			exception: "ArgumentError",
			descr:     "positional arguments",
			handle:    name("add"),
			uid:       json.Number("6"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := decodeMessage(t, tt.msg)
			e, ok := Reply(context.Background(), msg, reg, nil).(*ErrorEnvelope)
			if !ok {
				t.Fatal("expected error envelope")
			}
			if e.Tag != TagError || e.Exception != tt.exception {
				t.Fatalf("got %s/%s, want %s", e.Tag, e.Exception, tt.exception)
			}
			if !strings.Contains(e.Descr, tt.descr) {
				t.Fatalf("descr %q does not mention %q", e.Descr, tt.descr)
			}
			if !reflect.DeepEqual(e.Handle, tt.handle) {
				t.Fatalf("handle = %v, want %v", e.Handle, tt.handle)
			}
			if !reflect.DeepEqual(e.UID, tt.uid) {
				t.Fatalf("uid = %#v, want %#v", e.UID, tt.uid)
			}
		})
	}
}

func TestDispatchDoesNotMutateCall(t *testing.T) {
	reg := testRegistry(t)
	call := &CallEnvelope{Tag: "CALL", Handle: "add", UID: 1, Args: []interface{}{1, 2}}
	if _, err := Dispatch(context.Background(), call, reg, nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if call.Tag != "CALL" {
		t.Fatalf("Dispatch rewrote the tag to %q", call.Tag)
	}

	call.Handle = "missing"
	_, err := Dispatch(context.Background(), call, reg, nil)
	if !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("got %v, want InvalidEnvelope", err)
	}
}

func TestPrepareCallEncodesArrays(t *testing.T) {
	a := ndarray.MustFromSlice([]uint16{1, 2})
	call, err := PrepareCall(nil, "sum", "id", []interface{}{a}, map[string]interface{}{"w": a})
	if err != nil {
		t.Fatalf("PrepareCall: %v", err)
	}
	if call.Tag != TagCall || call.UID != "id" {
		t.Fatalf("unexpected envelope %+v", call)
	}
	if _, ok := call.Args[0].(*TaggedArray); !ok {
		t.Fatalf("arg not encoded: %T", call.Args[0])
	}
	if _, ok := call.Kwargs["w"].(*TaggedArray); !ok {
		t.Fatalf("kwarg not encoded: %T", call.Kwargs["w"])
	}

	data, err := (JSONCodec{}).Encode(call)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), `"rpc_tag":"__RPC_CALL__"`) {
		t.Fatalf("unexpected wire form %s", data)
	}
}

func TestPrepareErrorSerializesNulls(t *testing.T) {
	data, err := (JSONCodec{}).Encode(PrepareError(ErrInvalidEnvelope, nil, nil))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"handle":null`) || !strings.Contains(s, `"uid":null`) {
		t.Fatalf("expected null handle and uid in %s", s)
	}
}

func TestReplyNilMatrixResult(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Set("empty", func() *mat.Dense { return nil }); err != nil {
		t.Fatalf("Set: %v", err)
	}
	msg := decodeMessage(t, `{"rpc_tag":"__RPC_CALL__","handle":"empty","uid":3}`)
	e, ok := Reply(context.Background(), msg, reg, nil).(*ErrorEnvelope)
	if !ok {
		t.Fatal("expected error envelope")
	}
	if e.Exception != string(KindShapeMismatch) {
		t.Fatalf("exception = %s, want ShapeMismatch", e.Exception)
	}
	if e.Handle == nil || *e.Handle != "empty" || e.UID != json.Number("3") {
		t.Fatalf("handle/uid not echoed: %v/%v", e.Handle, e.UID)
	}
}

func TestDispatchRecoversEncoderPanic(t *testing.T) {
	vc := NewValueCodec()
	vc.RegisterEncoder(func(v interface{}) bool {
		_, ok := v.(string)
		return ok
	}, func(*ValueCodec, interface{}) (interface{}, error) {
		panic("encoder exploded")
	})
	call := &CallEnvelope{Tag: TagCall, Handle: "pair", UID: 1}
	_, err := Dispatch(context.Background(), call, testRegistry(t), vc)
	if err == nil {
		t.Fatal("expected an error")
	}
	if KindOf(err) != string(KindHandlerError) || !strings.Contains(err.Error(), "encoder exploded") {
		t.Fatalf("got %s: %v", KindOf(err), err)
	}
}

func TestShortForm(t *testing.T) {
	reg := testRegistry(t)
	msg := decodeMessage(t, `{"tag":"CALL","handle":"add","uid":1,"args":[2,3],"kwargs":{}}`)
	data, err := (JSONCodec{}).Encode(ShortForm(Reply(context.Background(), msg, reg, nil)))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := `{"handle":"add","result":[5],"tag":"RESULT","uid":1}`; string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}

	data, err = (JSONCodec{}).Encode(ShortForm(PrepareError(ErrInvalidEnvelope, nil, nil)))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, want := range []string{`"tag":"ERROR"`, `"handle":null`, `"uid":null`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("%s does not contain %s", data, want)
		}
	}
}

func TestShortFormArrays(t *testing.T) {
	a := ndarray.MustFromSlice([]int32{1, 2})
	call, err := PrepareCall(nil, "sum", "id", []interface{}{a}, map[string]interface{}{"w": a})
	if err != nil {
		t.Fatalf("PrepareCall: %v", err)
	}
	short, ok := ShortForm(call).(map[string]interface{})
	if !ok || short[ShortTagKey] != ShortTagCall {
		t.Fatalf("unexpected short form %#v", short)
	}
	arg := short["args"].([]interface{})[0].(*TaggedArray)
	kw := short["kwargs"].(map[string]interface{})["w"].(*TaggedArray)
	if arg.Tag != ShortTagNDArray || kw.Tag != ShortTagNDArray {
		t.Fatalf("array tags = %q, %q", arg.Tag, kw.Tag)
	}
	if call.Args[0].(*TaggedArray).Tag != TagNDArray {
		t.Fatal("ShortForm modified the call")
	}

	got, err := NewValueCodec().Decode(map[string]interface{}{
		TagKey: arg.Tag, "dtype": arg.DType, "shape": []interface{}{2.0}, "data": arg.Data,
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.(*ndarray.Array).Equal(a) {
		t.Fatalf("decoded %v, want %v", got, a)
	}
}
