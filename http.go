// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	rpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

const (
	// HTTPPath is where the JSON-RPC bridge is mounted
	HTTPPath = "/rpc"
	// HTTPMethod is the JSON-RPC method carrying one call envelope
	HTTPMethod = "unirpc.Call"

	httpTimeout = 30 * time.Second
)

var errHTTPWire = errors.New("http transport carries json wire messages only")

// newHTTPClient creates a fresh HTTP client with disabled connection reuse.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: httpTimeout,
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
}

// CleanlyCloseBody drains and closes an HTTP response body to prevent
// HTTP/2 GOAWAY errors caused by closing bodies with unread data.
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// SendJSONRequest issues one JSON-RPC 2.0 request and decodes its result
// into reply. There are no retries.
func SendJSONRequest(ctx context.Context, uri *url.URL, method string, params interface{}, reply interface{}) error {
	requestBodyBytes, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		uri.String(),
		bytes.NewBuffer(requestBodyBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := newHTTPClient().Do(request)
	if err != nil {
		return fmt.Errorf("failed to issue request: %w", err)
	}
	defer CleanlyCloseBody(resp.Body)

	// Return an error for any non successful status code
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("received status code: %d", resp.StatusCode)
	}
	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		return fmt.Errorf("failed to decode client response: %w", err)
	}
	return nil
}

// httpService is the JSON-RPC receiver. Its params and result are the raw
// call and reply envelopes.
type httpService struct {
	inbox *inbox
}

// Call hands one call envelope to the server loop and returns its reply.
func (s *httpService) Call(r *http.Request, args *json.RawMessage, reply *json.RawMessage) error {
	if args == nil || len(*args) == 0 {
		return errors.New("missing call envelope")
	}
	out, err := s.inbox.submit(r.Context(), []byte(*args))
	if err != nil {
		return err
	}
	*reply = json.RawMessage(out)
	return nil
}

type httpTransport struct {
	*inbox
	listener net.Listener
	server   *http.Server
}

func isJSONWire(c Codec) bool {
	switch c.(type) {
	case nil, JSONCodec, *JSONCodec:
		return true
	}
	return false
}

func listenHTTP(ctx context.Context, addr string, o *serverOptions) (Transport, error) {
	if !isJSONWire(o.codec) {
		return nil, errHTTPWire
	}
	l, err := listenTCP(ctx, addr)
	if err != nil {
		return nil, err
	}

	t := &httpTransport{inbox: newInbox(), listener: l}
	rs := rpc.NewServer()
	rs.RegisterCodec(json2.NewCodec(), "application/json")
	if err := rs.RegisterService(&httpService{inbox: t.inbox}, "unirpc"); err != nil {
		l.Close()
		return nil, fmt.Errorf("register http service: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(HTTPPath, rs)
	t.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: httpTimeout,
	}
	go t.server.Serve(l)
	return t, nil
}

func (t *httpTransport) Addr() string {
	return t.listener.Addr().String()
}

func (t *httpTransport) Close() error {
	t.inbox.close()
	err := t.server.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// httpConn posts every call as a JSON-RPC request
type httpConn struct {
	uri *url.URL
}

func dialHTTP(_ context.Context, addr string, o *dialOptions) (roundTripper, error) {
	if !isJSONWire(o.codec) {
		return nil, errHTTPWire
	}
	raw := addr
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + hostPort(raw)
	}
	uri, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("http dial %s: %w", addr, err)
	}
	if uri.Path == "" {
		uri.Path = HTTPPath
	}
	return &httpConn{uri: uri}, nil
}

func (c *httpConn) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	var reply json.RawMessage
	if err := SendJSONRequest(ctx, c.uri, HTTPMethod, json.RawMessage(payload), &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (*httpConn) Close() error { return nil }
