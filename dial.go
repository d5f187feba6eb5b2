// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// Dial connects to an RPC server using the default transport (ZeroMQ).
// Use WithTransport for transport selection.
func Dial(ctx context.Context, addr string, opts ...DialOption) (Client, error) {
	o := &dialOptions{
		transport: DefaultTransport,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.codec == nil {
		o.codec = defaultCodec
	}
	if o.values == nil {
		o.values = defaultValueCodec
	}

	dial, _, err := lookupTransport(o.transport)
	if err != nil {
		return nil, err
	}
	rt, err := dial(ctx, addr, o)
	if err != nil {
		return nil, err
	}
	return &client{rt: rt, codec: o.codec, values: o.values, shortTags: o.shortTags}, nil
}

// Listen binds a server transport using the default transport (ZeroMQ).
func Listen(ctx context.Context, addr string, opts ...ServerOption) (Transport, error) {
	o := &serverOptions{
		transport: DefaultTransport,
	}
	for _, opt := range opts {
		opt(o)
	}

	_, listen, err := lookupTransport(o.transport)
	if err != nil {
		return nil, err
	}
	return listen(ctx, addr, o)
}

// client implements Client over any registered transport
type client struct {
	rt        roundTripper
	codec     Codec
	values    *ValueCodec
	shortTags bool
}

func (c *client) Call(ctx context.Context, handle string, args []interface{}, kwargs map[string]interface{}) ([]interface{}, error) {
	uid := uuid.NewString()
	call, err := PrepareCall(c.values, handle, uid, args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	var msg interface{} = call
	if c.shortTags {
		msg = ShortForm(call)
	}
	payload, err := c.codec.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("encode call: %w", err)
	}

	resp, err := c.rt.RoundTrip(ctx, payload)
	if err != nil {
		return nil, err
	}

	var reply interface{}
	if err := c.codec.Decode(resp, &reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return c.readReply(reply, uid)
}

func (c *client) readReply(msg interface{}, uid string) ([]interface{}, error) {
	obj, ok := msg.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("decode reply: expected object, got %T", msg)
	}
	switch envelopeTag(obj) {
	case TagResult:
		if !sameUID(obj["uid"], uid) {
			return nil, fmt.Errorf("reply uid %v does not match call uid %s", obj["uid"], uid)
		}
		result, ok := obj["result"].([]interface{})
		if !ok && obj["result"] != nil {
			return nil, fmt.Errorf("decode reply: result must be a list, got %T", obj["result"])
		}
		return c.values.DecodeMany(result)
	case TagError:
		e := &ErrorEnvelope{Tag: TagError, UID: obj["uid"]}
		if h, ok := obj["handle"].(string); ok {
			e.Handle = &h
		}
		e.Exception, _ = obj["exception"].(string)
		e.Descr, _ = obj["descr"].(string)
		return nil, e
	default:
		return nil, fmt.Errorf("decode reply: unexpected tag %v", obj[TagKey])
	}
}

func sameUID(got interface{}, want string) bool {
	switch v := got.(type) {
	case string:
		return v == want
	case []byte:
		return string(v) == want
	}
	return reflect.DeepEqual(got, want)
}

func (c *client) CallRaw(ctx context.Context, payload []byte) ([]byte, error) {
	return c.rt.RoundTrip(ctx, payload)
}

func (c *client) Close() error {
	return c.rt.Close()
}
