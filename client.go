// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Client is the transport-agnostic RPC client interface.
type Client interface {
	// Call invokes handle and returns its decoded result values. An error
	// reply is returned as *ErrorEnvelope.
	Call(ctx context.Context, handle string, args []interface{}, kwargs map[string]interface{}) ([]interface{}, error)

	// CallRaw sends a pre-encoded request and returns the raw reply
	CallRaw(ctx context.Context, payload []byte) ([]byte, error)

	// Close closes the connection
	Close() error
}

// Codec encodes/decodes whole wire messages
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// Transport is the server side of a request/reply socket. Recv and Send
// must alternate: every received request is answered by exactly one Send
// before the next Recv.
type Transport interface {
	io.Closer
	Send(ctx context.Context, data []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Addr() string
}

// roundTripper is the client side of a request/reply socket.
type roundTripper interface {
	io.Closer
	RoundTrip(ctx context.Context, payload []byte) ([]byte, error)
}

// DialOption configures client connections
type DialOption func(*dialOptions)

type dialOptions struct {
	codec     Codec
	values    *ValueCodec
	transport string // "zmq", "zap", "http", "grpc", "mem"
	shortTags bool
}

// WithCodec sets the wire codec
func WithCodec(c Codec) DialOption {
	return func(o *dialOptions) { o.codec = c }
}

// WithValueCodec sets the value codec used for arguments and results
func WithValueCodec(vc *ValueCodec) DialOption {
	return func(o *dialOptions) { o.values = vc }
}

// WithTransport explicitly sets the transport type
func WithTransport(t string) DialOption {
	return func(o *dialOptions) { o.transport = t }
}

// WithShortTags sends calls as {"tag": "CALL", ...} instead of the
// rpc_tag spelling
func WithShortTags(v bool) DialOption {
	return func(o *dialOptions) { o.shortTags = v }
}

// ServerOption configures servers
type ServerOption func(*serverOptions)

type serverOptions struct {
	codec     Codec
	values    *ValueCodec
	transport string
	logger    *zap.Logger
	verbose   bool
	shortTags bool
	metrics   prometheus.Registerer
}

// WithServerCodec sets the wire codec for the server
func WithServerCodec(c Codec) ServerOption {
	return func(o *serverOptions) { o.codec = c }
}

// WithServerValueCodec sets the value codec used for arguments and results
func WithServerValueCodec(vc *ValueCodec) ServerOption {
	return func(o *serverOptions) { o.values = vc }
}

// WithServerTransport explicitly sets the transport type for the server
func WithServerTransport(t string) ServerOption {
	return func(o *serverOptions) { o.transport = t }
}

// WithLogger sets the server logger
func WithLogger(l *zap.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// WithVerbose logs every dispatched call and returned reply
func WithVerbose(v bool) ServerOption {
	return func(o *serverOptions) { o.verbose = v }
}

// WithServerShortTags writes replies as {"tag": "RESULT", ...} and tagged
// arrays as "NDARRAY" instead of the rpc_tag spelling
func WithServerShortTags(v bool) ServerOption {
	return func(o *serverOptions) { o.shortTags = v }
}

// WithMetrics registers server metrics on r
func WithMetrics(r prometheus.Registerer) ServerOption {
	return func(o *serverOptions) { o.metrics = r }
}
