/*
 * MIT License
 *
 * Copyright (c) 2022-2024  Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package memory provides an in-process coordination server with sessions
// and ephemeral nodes. It is meant for tests and for embedding.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.uber.org/atomic"

	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/internal/locker"
	"github.com/tochemey/ranger/store"
)

const persistent int64 = 0

type entry struct {
	data  []byte
	owner int64
}

// Server holds the tree shared by every Store opened on it
type Server struct {
	_ locker.NoCopy

	mu       sync.RWMutex
	nodes    map[string]*entry
	sessions map[int64]*Store
	sequence int64
}

// NewServer creates an empty Server
func NewServer() *Server {
	return &Server{
		nodes:    map[string]*entry{"/": {}},
		sessions: make(map[int64]*Store),
	}
}

// Open opens a Store with a fresh session rooted at namespace
func (s *Server) Open(namespace string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	handle := &Store{
		server:    s,
		namespace: namespace,
		session:   s.sequence,
		closed:    atomic.NewBool(false),
	}
	s.sessions[handle.session] = handle
	return handle
}

// Expire ends the session of the given store as if it had timed out.
// Its ephemeral nodes are removed and the handle becomes unusable.
func (s *Server) Expire(handle *Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endSession(handle.session)
}

// Delete removes the node at the absolute path p regardless of its owner.
// It reports whether the node existed.
func (s *Server) Delete(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = store.Clean(p)
	if _, ok := s.nodes[p]; !ok || p == "/" {
		return false
	}
	for key := range s.nodes {
		if key == p || strings.HasPrefix(key, p+"/") {
			delete(s.nodes, key)
		}
	}
	return true
}

// Paths returns every absolute path of the tree, sorted
func (s *Server) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.nodes))
	for p := range s.nodes {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// endSession must be called with the lock held
func (s *Server) endSession(session int64) {
	handle, ok := s.sessions[session]
	if !ok {
		return
	}
	delete(s.sessions, session)
	handle.closed.Store(true)
	for p, node := range s.nodes {
		if node.owner == session {
			delete(s.nodes, p)
		}
	}
}

// Store is a session on a Server
type Store struct {
	_ locker.NoCopy

	server    *Server
	namespace string
	session   int64
	closed    *atomic.Bool
}

var _ store.Store = (*Store)(nil)

// Session returns the session identifier of the handle
func (x *Store) Session() int64 {
	return x.session
}

// BlockUntilConnected implements store.Store.
func (x *Store) BlockUntilConnected(ctx context.Context) error {
	return x.check(ctx)
}

// EnsureContainer implements store.Store.
func (x *Store) EnsureContainer(ctx context.Context, p string) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	target := x.path(p)
	x.server.mu.Lock()
	defer x.server.mu.Unlock()
	for _, parent := range append(store.Parents(target), target) {
		if _, ok := x.server.nodes[parent]; !ok {
			x.server.nodes[parent] = &entry{owner: persistent}
		}
	}
	return nil
}

// Exists implements store.Store.
func (x *Store) Exists(ctx context.Context, p string) (bool, error) {
	if err := x.check(ctx); err != nil {
		return false, err
	}

	x.server.mu.RLock()
	defer x.server.mu.RUnlock()
	_, ok := x.server.nodes[x.path(p)]
	return ok, nil
}

// CreateEphemeral implements store.Store.
func (x *Store) CreateEphemeral(ctx context.Context, p string, data []byte) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	target := x.path(p)
	x.server.mu.Lock()
	defer x.server.mu.Unlock()
	if _, ok := x.server.nodes[target]; ok {
		return rerrors.NewErrNodeExists(p)
	}

	parents := store.Parents(target)
	if len(parents) > 0 {
		if _, ok := x.server.nodes[parents[len(parents)-1]]; !ok {
			return rerrors.NewErrNoNode(parents[len(parents)-1])
		}
	}

	x.server.nodes[target] = &entry{data: slices.Clone(data), owner: x.session}
	return nil
}

// SetData implements store.Store.
func (x *Store) SetData(ctx context.Context, p string, data []byte) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	x.server.mu.Lock()
	defer x.server.mu.Unlock()
	node, ok := x.server.nodes[x.path(p)]
	if !ok {
		return rerrors.NewErrNoNode(p)
	}
	node.data = slices.Clone(data)
	return nil
}

// GetData implements store.Store.
func (x *Store) GetData(ctx context.Context, p string) ([]byte, error) {
	if err := x.check(ctx); err != nil {
		return nil, err
	}

	x.server.mu.RLock()
	defer x.server.mu.RUnlock()
	node, ok := x.server.nodes[x.path(p)]
	if !ok {
		return nil, rerrors.NewErrNoNode(p)
	}
	return slices.Clone(node.data), nil
}

// Children implements store.Store.
func (x *Store) Children(ctx context.Context, p string) ([]string, error) {
	if err := x.check(ctx); err != nil {
		return nil, err
	}

	target := x.path(p)
	x.server.mu.RLock()
	defer x.server.mu.RUnlock()
	if _, ok := x.server.nodes[target]; !ok {
		return nil, rerrors.NewErrNoNode(p)
	}

	prefix := strings.TrimSuffix(target, "/") + "/"
	children := make([]string, 0)
	for key := range x.server.nodes {
		name, found := strings.CutPrefix(key, prefix)
		if !found || name == "" || strings.Contains(name, "/") {
			continue
		}
		children = append(children, name)
	}
	slices.Sort(children)
	return children, nil
}

// Close implements store.Store.
func (x *Store) Close() error {
	if x.closed.Load() {
		return nil
	}
	x.server.mu.Lock()
	defer x.server.mu.Unlock()
	x.server.endSession(x.session)
	return nil
}

func (x *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if x.closed.Load() {
		return rerrors.ErrStoreClosed
	}
	return nil
}

func (x *Store) path(p string) string {
	return store.Namespaced(x.namespace, p)
}
