// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"context"
	"fmt"
	"sync"
)

// In-process transports live in a name table so a client in the same
// process can dial "mem" servers by address.
var (
	memMu      sync.Mutex
	memServers = map[string]*MemTransport{}
)

// MemTransport is an in-process request/reply transport.
type MemTransport struct {
	*inbox
	addr string
}

// NewMemTransport returns an unregistered in-process transport. Use Do to
// send requests to it.
func NewMemTransport() *MemTransport {
	return &MemTransport{inbox: newInbox(), addr: "mem"}
}

// Do submits one request and waits for the reply.
func (t *MemTransport) Do(ctx context.Context, data []byte) ([]byte, error) {
	return t.submit(ctx, data)
}

func (t *MemTransport) Addr() string { return t.addr }

func (t *MemTransport) Close() error {
	memMu.Lock()
	if memServers[t.addr] == t {
		delete(memServers, t.addr)
	}
	memMu.Unlock()
	t.inbox.close()
	return nil
}

func listenMem(_ context.Context, addr string, _ *serverOptions) (Transport, error) {
	memMu.Lock()
	defer memMu.Unlock()
	if _, ok := memServers[addr]; ok {
		return nil, fmt.Errorf("listen mem %s: address in use", addr)
	}
	t := &MemTransport{inbox: newInbox(), addr: addr}
	memServers[addr] = t
	return t, nil
}

type memConn struct {
	t *MemTransport
}

func dialMem(_ context.Context, addr string, _ *dialOptions) (roundTripper, error) {
	memMu.Lock()
	defer memMu.Unlock()
	t, ok := memServers[addr]
	if !ok {
		return nil, fmt.Errorf("dial mem %s: no such server", addr)
	}
	return &memConn{t: t}, nil
}

func (c *memConn) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	return c.t.Do(ctx, payload)
}

func (*memConn) Close() error { return nil }
