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

// Package store defines the coordination primitives the registration engine
// relies on. Backends adapt an existing coordination service to them.
//
// Paths are absolute, slash separated and relative to the namespace the store
// was opened with. An ephemeral node lives as long as the session of the store
// handle that created it.
package store

import (
	"context"
	"path"
	"strings"
)

// Store is a hierarchical coordination store with ephemeral nodes
type Store interface {
	// BlockUntilConnected blocks until the store has a live session or ctx is done
	BlockUntilConnected(ctx context.Context) error
	// EnsureContainer creates the persistent path and its parents when missing.
	// It is idempotent.
	EnsureContainer(ctx context.Context, path string) error
	// Exists reports whether the node exists
	Exists(ctx context.Context, path string) (bool, error)
	// CreateEphemeral atomically creates a node owned by the session.
	// It returns errors.ErrNodeExists when the path is taken.
	CreateEphemeral(ctx context.Context, path string, data []byte) error
	// SetData replaces the data of a node. It returns errors.ErrNoNode when
	// the node does not exist.
	SetData(ctx context.Context, path string, data []byte) error
	// GetData returns the raw data of a node. It returns errors.ErrNoNode when
	// the node does not exist.
	GetData(ctx context.Context, path string) ([]byte, error)
	// Children returns the names of the direct children of path
	Children(ctx context.Context, path string) ([]string, error)
	// Close ends the session. Ephemeral nodes owned by the session go away.
	Close() error
}

// Clean normalizes a store path: absolute, without trailing slash.
func Clean(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}

// Parents returns the ancestors of p from the top, p excluded.
// Parents("/a/b/c") returns ["/a", "/a/b"].
func Parents(p string) []string {
	p = Clean(p)
	if p == "/" {
		return nil
	}

	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	parents := make([]string, 0, len(segments)-1)
	for i := 1; i < len(segments); i++ {
		parents = append(parents, "/"+strings.Join(segments[:i], "/"))
	}
	return parents
}

// Namespaced prefixes p with the namespace root
func Namespaced(namespace, p string) string {
	namespace = strings.Trim(namespace, "/")
	if namespace == "" {
		return Clean(p)
	}
	return Clean("/" + namespace + Clean(p))
}
