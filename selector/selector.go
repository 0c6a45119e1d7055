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

// Package selector holds the contracts used by finders to pick instances of a
// service, and the default uniform random node selector.
package selector

import (
	"math/rand/v2"

	"github.com/tochemey/ranger/node"
)

// NodeSelector picks one node among the candidates. It returns nil when
// there is no candidate.
type NodeSelector[T any] interface {
	Select(nodes []*node.ServiceNode[T]) *node.ServiceNode[T]
}

// ShardSelector narrows the nodes of a service down to the shard matching criteria
type ShardSelector[T any] interface {
	Nodes(criteria func(data T) bool, nodes []*node.ServiceNode[T]) []*node.ServiceNode[T]
}

// ShardSelectorFunc adapts a function to a ShardSelector
type ShardSelectorFunc[T any] func(criteria func(data T) bool, nodes []*node.ServiceNode[T]) []*node.ServiceNode[T]

// Nodes implements ShardSelector
func (f ShardSelectorFunc[T]) Nodes(criteria func(data T) bool, nodes []*node.ServiceNode[T]) []*node.ServiceNode[T] {
	return f(criteria, nodes)
}

// Random selects a node uniformly at random
type Random[T any] struct{}

var _ NodeSelector[any] = Random[any]{}

// NewRandom creates a uniform random NodeSelector
func NewRandom[T any]() Random[T] {
	return Random[T]{}
}

// Select implements NodeSelector
func (Random[T]) Select(nodes []*node.ServiceNode[T]) *node.ServiceNode[T] {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[rand.IntN(len(nodes))] //nolint:gosec
}
