// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// Registry maps handle names to handlers. It is safe for concurrent use;
// registering a name that already exists replaces the previous handler.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handler)}
}

// Set registers behavior under name. behavior may be a Handler, a
// HandlerFunc or any function accepted by Func.
func (r *Registry) Set(name string, behavior interface{}) error {
	h, err := Func(behavior)
	if err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[name] = h
	return nil
}

// Add registers each behavior under its intrinsic name: the Go function
// name for functions, or Name() for values that provide one. Nothing is
// registered if any behavior is rejected.
func (r *Registry) Add(behaviors ...interface{}) error {
	named := make(map[string]Handler, len(behaviors))
	for _, b := range behaviors {
		name, err := intrinsicName(b)
		if err != nil {
			return err
		}
		h, err := Func(b)
		if err != nil {
			return fmt.Errorf("register %q: %w", name, err)
		}
		named[name] = h
	}
	r.store(named)
	return nil
}

// AddNamed registers every entry of behaviors under its map key. Nothing is
// registered if any behavior is rejected.
func (r *Registry) AddNamed(behaviors map[string]interface{}) error {
	named := make(map[string]Handler, len(behaviors))
	for name, b := range behaviors {
		h, err := Func(b)
		if err != nil {
			return fmt.Errorf("register %q: %w", name, err)
		}
		named[name] = h
	}
	r.store(named)
	return nil
}

func (r *Registry) store(named map[string]Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, h := range named {
		r.handles[name] = h
	}
}

// Remove unregisters name and reports whether it was present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[name]
	delete(r.handles, name)
	return ok
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, error) {
	r.mu.RLock()
	h, ok := r.handles[name]
	r.mu.RUnlock()
	if !ok {
		return nil, newError(KindInvalidEnvelope, nil, "handle not found: `%s`", name)
	}
	return h, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[name]
	return ok
}

// Names returns the registered handle names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Invoke calls the handler registered under name. Errors returned by the
// handler are passed through untouched.
func (r *Registry) Invoke(ctx context.Context, name string, args []interface{}, kwargs map[string]interface{}) ([]interface{}, error) {
	h, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return h.HandleCall(ctx, args, kwargs)
}

var anonymousFunc = regexp.MustCompile(`^func\d+$`)

func intrinsicName(b interface{}) (string, error) {
	if n, ok := b.(interface{ Name() string }); ok {
		return n.Name(), nil
	}
	v := reflect.ValueOf(b)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return "", fmt.Errorf("handle of type %T is not callable", b)
	}
	fn := runtime.FuncForPC(v.Pointer())
	if fn == nil {
		return "", fmt.Errorf("cannot determine name of %T", b)
	}
	name := strings.TrimSuffix(fn.Name(), "-fm")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || anonymousFunc.MatchString(name) {
		return "", fmt.Errorf("cannot register anonymous function %s without a name", fn.Name())
	}
	return name, nil
}
