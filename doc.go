// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package unirpc implements a minimal request/reply RPC protocol whose
// values may carry dense numeric arrays.
//
// # Protocol
//
// Every message is one object tagged by its rpc_tag field:
//
//	{"rpc_tag": "__RPC_CALL__", "handle": "add", "uid": 1, "args": [2, 3], "kwargs": {}}
//	{"rpc_tag": "__RPC_RESULT__", "handle": "add", "uid": 1, "result": [5]}
//	{"rpc_tag": "__RPC_ERROR__", "handle": "add", "uid": 1, "exception": "HandlerError", "descr": "..."}
//
// Arrays travel as tagged values holding dtype, shape and the row-major
// little-endian bytes in base64:
//
//	{"rpc_tag": "__RPC_VAL_NDARRAY__", "dtype": "int32", "shape": [2, 2], "data": "AQAAAAIAAAADAAAABAAAAA=="}
//
// Inputs may also use the short spellings {"tag": "CALL", ...} and
// "NDARRAY". WithServerShortTags makes the server answer in that form.
//
// # Usage
//
// Server usage:
//
//	reg := unirpc.NewRegistry()
//	reg.Set("add", func(a, b int) int { return a + b })
//
//	srv, err := unirpc.NewServer(reg, unirpc.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	err = srv.ListenAndServe(ctx, "tcp://*:5555")
//
// Client usage:
//
//	client, err := unirpc.Dial(ctx, "tcp://localhost:5555")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	result, err := client.Call(ctx, "add", []interface{}{2, 3}, nil)
//
// # Transport Selection
//
// ZeroMQ REQ/REP is the default transport. ZAP framed TCP, a JSON-RPC 2.0
// bridge over HTTP, a gRPC unary bridge and an in-process transport are
// selected with WithTransport and WithServerTransport. Whatever the
// transport, the server handles one request at a time.
//
// # Architecture
//
//   - value.go: tagged array encoding of individual values
//   - registry.go, handler.go: handle registry and function adapters
//   - envelope.go: call, result and error envelopes and dispatch
//   - server.go: the request/reply loop
//   - transport.go: transport registry and the shared request inbox
//   - zmq.go, zap.go, http.go, grpc.go, mem.go: transports
//   - dial.go: Dial, Listen and the client
//   - codec.go: JSON and CBOR wire codecs
package unirpc
