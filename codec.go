// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Wire format names accepted by WireCodec.
const (
	WireJSON = "json"
	WireCBOR = "cbor"
)

// JSONCodec is the default wire codec. Numbers decode as json.Number so
// integer arguments and uids survive without float rounding.
type JSONCodec struct{}

func (JSONCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("invalid character after top-level value")
	}
	return nil
}

// CBORCodec encodes messages as deterministic CBOR. Tagged array payloads
// travel as byte strings when the value codec has base64 disabled.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec returns a CBOR codec using the core deterministic encoding
// options. Maps decode with string keys so decoded messages have the same
// shape as JSON ones.
func NewCBORCodec() (*CBORCodec, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return &CBORCodec{enc: em, dec: dm}, nil
}

func (c *CBORCodec) Encode(v interface{}) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c *CBORCodec) Decode(data []byte, v interface{}) error {
	return c.dec.Unmarshal(data, v)
}

// defaultCodec is used when no codec is specified
var defaultCodec Codec = JSONCodec{}

// WireCodec returns the codec registered under name.
func WireCodec(name string) (Codec, error) {
	switch name {
	case "", WireJSON:
		return JSONCodec{}, nil
	case WireCBOR:
		return NewCBORCodec()
	default:
		return nil, fmt.Errorf("unknown wire format: %s", name)
	}
}
