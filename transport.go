// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
)

// Transport types
const (
	TransportZMQ  = "zmq"  // ZeroMQ REQ/REP, default
	TransportZAP  = "zap"  // Length-prefixed TCP frames
	TransportHTTP = "http" // JSON-RPC 2.0 over HTTP
	TransportGRPC = "grpc" // gRPC unary bridge
	TransportMem  = "mem"  // In-process pipe
)

// DefaultTransport is the default transport type (ZeroMQ)
const DefaultTransport = TransportZMQ

var (
	ErrClosed           = errors.New("unirpc: transport closed")
	ErrReplyPending     = errors.New("unirpc: previous request not answered")
	ErrNoPendingRequest = errors.New("unirpc: no request to reply to")
	ErrUnknownTransport = errors.New("unirpc: unknown transport")
)

type dialFunc func(ctx context.Context, addr string, o *dialOptions) (roundTripper, error)
type listenFunc func(ctx context.Context, addr string, o *serverOptions) (Transport, error)

var (
	transportsMu sync.RWMutex
	transports   = map[string]struct {
		dial   dialFunc
		listen listenFunc
	}{}
)

func init() {
	registerTransport(TransportZMQ, dialZMQ, listenZMQ)
	registerTransport(TransportZAP, dialZAP, listenZAP)
	registerTransport(TransportHTTP, dialHTTP, listenHTTP)
	registerTransport(TransportGRPC, dialGRPC, listenGRPC)
	registerTransport(TransportMem, dialMem, listenMem)
}

// registerTransport registers a new transport
func registerTransport(name string, dial dialFunc, listen listenFunc) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = struct {
		dial   dialFunc
		listen listenFunc
	}{dial, listen}
}

func lookupTransport(name string) (dialFunc, listenFunc, error) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	t, ok := transports[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTransport, name)
	}
	return t.dial, t.listen, nil
}

// AvailableTransports returns the sorted list of available transport types
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// HasTransport checks if a transport is available
func HasTransport(name string) bool {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	_, ok := transports[name]
	return ok
}

// hostPort turns "tcp://*:5555" into ":5555" for net.Listen and net.Dial.
func hostPort(addr string) string {
	addr = strings.TrimPrefix(addr, "tcp://")
	if strings.HasPrefix(addr, "*:") {
		addr = addr[1:]
	}
	return addr
}

// pending is one request waiting in an inbox together with the channel its
// reply goes back on.
type pending struct {
	data  []byte
	reply chan []byte
}

// inbox funnels requests from any number of connections into one
// Recv/Send loop. A request is answered before the next one is handed out.
type inbox struct {
	queue   chan *pending
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	current *pending
}

func newInbox() *inbox {
	return &inbox{
		queue: make(chan *pending),
		done:  make(chan struct{}),
	}
}

// submit enqueues data and waits for its reply.
func (b *inbox) submit(ctx context.Context, data []byte) ([]byte, error) {
	p := &pending{data: data, reply: make(chan []byte, 1)}
	select {
	case b.queue <- p:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrClosed
	}
	select {
	case out := <-p.reply:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrClosed
	}
}

func (b *inbox) Recv(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	busy := b.current != nil
	b.mu.Unlock()
	if busy {
		return nil, ErrReplyPending
	}
	select {
	case p := <-b.queue:
		b.mu.Lock()
		b.current = p
		b.mu.Unlock()
		return p.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrClosed
	}
}

func (b *inbox) Send(_ context.Context, data []byte) error {
	b.mu.Lock()
	p := b.current
	b.current = nil
	b.mu.Unlock()
	if p == nil {
		return ErrNoPendingRequest
	}
	p.reply <- data
	return nil
}

func (b *inbox) close() {
	b.once.Do(func() { close(b.done) })
}

// listenTCP binds addr after stripping the tcp:// scheme.
func listenTCP(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", hostPort(addr))
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return l, nil
}
