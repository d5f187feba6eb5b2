// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
)

const zmqDialRetry = 250 * time.Millisecond

// zmqEndpoint adds the tcp:// scheme and the * wildcard host ZeroMQ
// expects, so ":5555" and "tcp://*:5555" name the same endpoint.
func zmqEndpoint(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "*" + addr
	}
	return "tcp://" + addr
}

type zmqMsg struct {
	data []byte
	err  error
}

// zmqTransport is a REP socket. A reader goroutine owns sock.Recv so that
// Recv can honor context cancellation; it only reads the next request after
// the previous reply went out.
type zmqTransport struct {
	sock    zmq4.Socket
	msgs    chan zmqMsg
	sent    chan struct{}
	done    chan struct{}
	once    sync.Once
	waiting atomic.Bool
}

func listenZMQ(_ context.Context, addr string, _ *serverOptions) (Transport, error) {
	sock := zmq4.NewRep(context.Background())
	if err := sock.Listen(zmqEndpoint(addr)); err != nil {
		sock.Close()
		return nil, fmt.Errorf("zmq listen %s: %w", addr, err)
	}
	t := &zmqTransport{
		sock: sock,
		msgs: make(chan zmqMsg),
		sent: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *zmqTransport) readLoop() {
	for {
		msg, err := t.sock.Recv()
		select {
		case t.msgs <- zmqMsg{data: msg.Bytes(), err: err}:
		case <-t.done:
			return
		}
		if err != nil {
			return
		}
		select {
		case <-t.sent:
		case <-t.done:
			return
		}
	}
}

func (t *zmqTransport) Recv(ctx context.Context) ([]byte, error) {
	if t.waiting.Load() {
		return nil, ErrReplyPending
	}
	select {
	case m := <-t.msgs:
		if m.err != nil {
			return nil, fmt.Errorf("zmq recv: %w", m.err)
		}
		t.waiting.Store(true)
		return m.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrClosed
	}
}

func (t *zmqTransport) Send(_ context.Context, data []byte) error {
	if !t.waiting.Swap(false) {
		return ErrNoPendingRequest
	}
	if err := t.sock.Send(zmq4.NewMsg(data)); err != nil {
		return fmt.Errorf("zmq send: %w", err)
	}
	select {
	case t.sent <- struct{}{}:
	case <-t.done:
		return ErrClosed
	}
	return nil
}

func (t *zmqTransport) Addr() string {
	if a := t.sock.Addr(); a != nil {
		return "tcp://" + a.String()
	}
	return ""
}

func (t *zmqTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.sock.Close()
	})
	return err
}

// zmqConn is a REQ socket. Calls are serialized; a call abandoned through
// its context leaves the socket out of lockstep, so the connection is
// closed.
type zmqConn struct {
	mu     sync.Mutex
	sock   zmq4.Socket
	closed atomic.Bool
}

func dialZMQ(_ context.Context, addr string, _ *dialOptions) (roundTripper, error) {
	sock := zmq4.NewReq(context.Background(), zmq4.WithDialerRetry(zmqDialRetry))
	if err := sock.Dial(zmqEndpoint(addr)); err != nil {
		sock.Close()
		return nil, fmt.Errorf("zmq dial %s: %w", addr, err)
	}
	return &zmqConn{sock: sock}, nil
}

func (c *zmqConn) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := c.sock.Send(zmq4.NewMsg(payload)); err != nil {
		return nil, fmt.Errorf("zmq send: %w", err)
	}

	res := make(chan zmqMsg, 1)
	go func() {
		msg, err := c.sock.Recv()
		res <- zmqMsg{data: msg.Bytes(), err: err}
	}()
	select {
	case m := <-res:
		if m.err != nil {
			return nil, fmt.Errorf("zmq recv: %w", m.err)
		}
		return m.data, nil
	case <-ctx.Done():
		c.close()
		return nil, ctx.Err()
	}
}

func (c *zmqConn) close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.sock.Close()
}

func (c *zmqConn) Close() error {
	return c.close()
}
