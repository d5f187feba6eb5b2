// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrZAPClosed   = errors.New("zap: connection closed")
	ErrZAPBadFrame = errors.New("zap: malformed frame")
	ErrZAPTooLarge = errors.New("zap: message too large")
)

// MessageType identifies ZAP message types
type MessageType uint8

const (
	MsgRequest  MessageType = 0x01
	MsgResponse MessageType = 0x02
	MsgError    MessageType = 0x03
)

const (
	zapMaxMessage   = 64 * 1024 * 1024
	zapWriteTimeout = 30 * time.Second
)

// Frame: [4 len][1 type][4 reqID][payload]
func writeFrame(w io.Writer, typ MessageType, id uint32, payload []byte) error {
	msgLen := 1 + 4 + len(payload)
	if msgLen > zapMaxMessage {
		return ErrZAPTooLarge
	}
	buf := make([]byte, 4+msgLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(msgLen))
	buf[4] = byte(typ)
	binary.BigEndian.PutUint32(buf[5:9], id)
	copy(buf[9:], payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) (MessageType, uint32, []byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, 0, nil, err
	}
	msgLen := binary.BigEndian.Uint32(header)
	if msgLen < 5 || msgLen > zapMaxMessage {
		return 0, 0, nil, ErrZAPBadFrame
	}
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(r, msg); err != nil {
		return 0, 0, nil, err
	}
	return MessageType(msg[0]), binary.BigEndian.Uint32(msg[1:5]), msg[5:], nil
}

// ZAPConn represents a ZAP connection for RPC
type ZAPConn struct {
	conn     net.Conn
	writeMu  sync.Mutex
	pending  sync.Map // requestID -> chan *ZAPResponse
	nextID   atomic.Uint32
	closed   atomic.Bool
	readDone chan struct{}
}

// ZAPResponse holds a response from a ZAP call
type ZAPResponse struct {
	Data []byte
	Err  error
}

// ZAPDial connects to a ZAP server
func ZAPDial(ctx context.Context, addr string) (*ZAPConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", hostPort(addr))
	if err != nil {
		return nil, fmt.Errorf("zap dial: %w", err)
	}

	zc := &ZAPConn{
		conn:     conn,
		readDone: make(chan struct{}),
	}
	go zc.readLoop()
	return zc, nil
}

func dialZAP(ctx context.Context, addr string, _ *dialOptions) (roundTripper, error) {
	return ZAPDial(ctx, addr)
}

// RoundTrip sends one request frame and waits for its reply
func (z *ZAPConn) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	if z.closed.Load() {
		return nil, ErrZAPClosed
	}

	requestID := z.nextID.Add(1)
	respCh := make(chan *ZAPResponse, 1)
	z.pending.Store(requestID, respCh)
	defer z.pending.Delete(requestID)

	z.writeMu.Lock()
	err := writeFrame(z.conn, MsgRequest, requestID, payload)
	z.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("zap write: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp.Data, nil
	case <-z.readDone:
		return nil, ErrZAPClosed
	}
}

func (z *ZAPConn) readLoop() {
	defer close(z.readDone)

	for {
		msgType, requestID, payload, err := readFrame(z.conn)
		if err != nil {
			return
		}
		if ch, ok := z.pending.Load(requestID); ok {
			respCh := ch.(chan *ZAPResponse)
			switch msgType {
			case MsgResponse:
				respCh <- &ZAPResponse{Data: payload}
			case MsgError:
				respCh <- &ZAPResponse{Err: errors.New(string(payload))}
			}
		}
	}
}

// Close closes the connection
func (z *ZAPConn) Close() error {
	if z.closed.Swap(true) {
		return nil
	}
	return z.conn.Close()
}

// zapTransport accepts ZAP connections and feeds their requests, one at a
// time per connection, into the server loop.
type zapTransport struct {
	*inbox
	listener net.Listener
	conns    sync.Map
	closed   atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
}

func listenZAP(ctx context.Context, addr string, _ *serverOptions) (Transport, error) {
	l, err := listenTCP(ctx, addr)
	if err != nil {
		return nil, err
	}
	return newZAPTransport(l), nil
}

func newZAPTransport(l net.Listener) *zapTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &zapTransport{
		inbox:    newInbox(),
		listener: l,
		ctx:      ctx,
		cancel:   cancel,
	}
	go t.acceptLoop()
	return t
}

func (t *zapTransport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.closed.Load() {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return
		}
		go t.handleConn(conn)
	}
}

func (t *zapTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	t.conns.Store(conn, struct{}{})
	defer t.conns.Delete(conn)

	for {
		msgType, requestID, payload, err := readFrame(conn)
		if err != nil {
			return
		}
		if msgType != MsgRequest {
			continue
		}
		reply, err := t.submit(t.ctx, payload)
		typ := MsgResponse
		if err != nil {
			typ, reply = MsgError, []byte(err.Error())
		}
		conn.SetWriteDeadline(time.Now().Add(zapWriteTimeout))
		if err := writeFrame(conn, typ, requestID, reply); err != nil {
			return
		}
	}
}

func (t *zapTransport) Addr() string {
	return t.listener.Addr().String()
}

// Close closes the listener and every open connection
func (t *zapTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.cancel()
	t.inbox.close()
	t.conns.Range(func(key, _ interface{}) bool {
		key.(net.Conn).Close()
		return true
	})
	return t.listener.Close()
}
