// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// GRPCMethod is the full name of the unary method carrying call envelopes.
const GRPCMethod = "/unirpc.Handles/Call"

// rawFrame is a wire message passed through gRPC untouched.
type rawFrame struct {
	data []byte
}

// rawCodec lets gRPC carry already-encoded wire messages instead of
// protobuf.
type rawCodec struct{}

func (rawCodec) Name() string { return "unirpc-raw" }

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	f, ok := v.(*rawFrame)
	if !ok {
		return nil, fmt.Errorf("grpc: cannot marshal %T", v)
	}
	return f.data, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	f, ok := v.(*rawFrame)
	if !ok {
		return fmt.Errorf("grpc: cannot unmarshal into %T", v)
	}
	f.data = append([]byte(nil), data...)
	return nil
}

type grpcHandles interface {
	Call(ctx context.Context, in *rawFrame) (*rawFrame, error)
}

func grpcCallHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(rawFrame)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(grpcHandles).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GRPCMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(grpcHandles).Call(ctx, req.(*rawFrame))
	}
	return interceptor(ctx, in, info, handler)
}

var grpcServiceDesc = grpc.ServiceDesc{
	ServiceName: "unirpc.Handles",
	HandlerType: (*grpcHandles)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: grpcCallHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "unirpc.proto",
}

type grpcTransport struct {
	*inbox
	listener net.Listener
	server   *grpc.Server
}

func listenGRPC(ctx context.Context, addr string, _ *serverOptions) (Transport, error) {
	l, err := listenTCP(ctx, addr)
	if err != nil {
		return nil, err
	}
	t := &grpcTransport{
		inbox:    newInbox(),
		listener: l,
		server:   grpc.NewServer(grpc.ForceServerCodec(rawCodec{})),
	}
	t.server.RegisterService(&grpcServiceDesc, t)
	go t.server.Serve(l)
	return t, nil
}

func (t *grpcTransport) Call(ctx context.Context, in *rawFrame) (*rawFrame, error) {
	out, err := t.submit(ctx, in.data)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.FromContextError(err).Err()
	}
	return &rawFrame{data: out}, nil
}

func (t *grpcTransport) Addr() string {
	return t.listener.Addr().String()
}

func (t *grpcTransport) Close() error {
	t.inbox.close()
	t.server.Stop()
	return nil
}

type grpcConn struct {
	conn *grpc.ClientConn
}

func dialGRPC(_ context.Context, addr string, _ *dialOptions) (roundTripper, error) {
	conn, err := grpc.NewClient(hostPort(addr),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &grpcConn{conn: conn}, nil
}

func (c *grpcConn) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	out := new(rawFrame)
	if err := c.conn.Invoke(ctx, GRPCMethod, &rawFrame{data: payload}, out); err != nil {
		return nil, err
	}
	return out.data, nil
}

func (c *grpcConn) Close() error {
	return c.conn.Close()
}
