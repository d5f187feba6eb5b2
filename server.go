// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the position of the server loop in its request/reply cycle.
type State int32

const (
	StateWaiting State = iota
	StateProcessing
	StateSending
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING_FOR_REQUEST"
	case StateProcessing:
		return "PROCESSING"
	case StateSending:
		return "SENDING_REPLY"
	default:
		return "UNKNOWN"
	}
}

// Server answers call envelopes against a registry, one request at a time.
type Server struct {
	registry  *Registry
	values    *ValueCodec
	codec     Codec
	transport string
	log       *zap.Logger
	verbose   bool
	shortTags bool
	metrics   *metrics
	state     atomic.Int32
}

// NewServer creates a server for reg.
func NewServer(reg *Registry, opts ...ServerOption) (*Server, error) {
	o := &serverOptions{
		transport: DefaultTransport,
	}
	for _, opt := range opts {
		opt(o)
	}
	if reg == nil {
		reg = NewRegistry()
	}
	s := &Server{
		registry:  reg,
		values:    o.values,
		codec:     o.codec,
		transport: o.transport,
		log:       o.logger,
		verbose:   o.verbose,
		shortTags: o.shortTags,
	}
	if s.values == nil {
		s.values = defaultValueCodec
	}
	if s.codec == nil {
		s.codec = defaultCodec
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if o.metrics != nil {
		m, err := newMetrics(o.metrics)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		s.metrics = m
	}
	return s, nil
}

// Registry returns the registry the server dispatches against.
func (s *Server) Registry() *Registry { return s.registry }

// State returns the current loop state.
func (s *Server) State() State { return State(s.state.Load()) }

// ListenAndServe binds addr with the configured transport and serves it
// until ctx is cancelled or the transport fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	t, err := Listen(ctx, addr, WithServerTransport(s.transport), WithServerCodec(s.codec))
	if err != nil {
		return err
	}
	s.log.Info("listening", zap.String("addr", t.Addr()), zap.String("transport", s.transport))
	return s.Serve(ctx, t)
}

// Serve runs the request/reply loop on t. It returns nil once ctx is
// cancelled and the transport error otherwise. t is closed on return.
func (s *Server) Serve(ctx context.Context, t Transport) error {
	defer t.Close()
	for {
		s.state.Store(int32(StateWaiting))
		if ctx.Err() != nil {
			return nil
		}
		msg, err := t.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		s.state.Store(int32(StateProcessing))
		reply := s.Handle(ctx, msg)

		s.state.Store(int32(StateSending))
		if err := t.Send(context.WithoutCancel(ctx), reply); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
}

// Handle turns one raw request into exactly one raw reply. It never fails:
// every error becomes an error envelope.
func (s *Server) Handle(ctx context.Context, msg []byte) []byte {
	start := time.Now()
	var (
		decoded interface{}
		reply   interface{}
	)
	if err := s.codec.Decode(msg, &decoded); err != nil {
		reply = PrepareError(newError(KindInvalidEnvelope, err, "malformed message: %v", err), nil, nil)
	} else {
		if s.verbose {
			s.log.Info("dispatching call", zap.Any("msg", decoded))
		}
		reply = Reply(ctx, decoded, s.registry, s.values)
	}

	out, err := s.encode(reply)
	if err != nil {
		handle, uid := salvage(decoded)
		reply = PrepareError(err, handle, uid)
		if out, err = s.encode(reply); err != nil {
			reply = PrepareError(err, nil, nil)
			out, _ = s.encode(reply)
		}
	}

	switch r := reply.(type) {
	case *ResultEnvelope:
		if s.verbose {
			s.log.Info("returning result", zap.String("handle", r.Handle), zap.Any("uid", r.UID))
		}
		s.metrics.observe(TagResult, "", time.Since(start))
	case *ErrorEnvelope:
		if s.verbose {
			s.log.Info("returning error",
				zap.Stringp("handle", r.Handle),
				zap.Any("uid", r.UID),
				zap.String("exception", r.Exception),
				zap.String("descr", r.Descr))
		}
		s.metrics.observe(TagError, r.Exception, time.Since(start))
	}
	return out
}

// encode writes reply with the wire codec. A panicking codec is reported as
// an error so the loop can still answer.
func (s *Server) encode(reply interface{}) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("encode reply: panic: %v", r)
		}
	}()
	var msg interface{} = reply
	if s.shortTags {
		msg = ShortForm(reply)
	}
	if out, err = s.codec.Encode(msg); err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return out, nil
}
