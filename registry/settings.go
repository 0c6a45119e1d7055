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

package registry

import (
	"time"

	"github.com/tochemey/ranger/codec"
	"github.com/tochemey/ranger/log"
	"github.com/tochemey/ranger/selector"
	"github.com/tochemey/ranger/store"
)

// Settings is the validated configuration handed to a Factory
type Settings[T any] struct {
	namespace       string
	serviceName     string
	store           store.Store
	ownsStore       bool
	serializer      codec.Serializer[T]
	deserializer    codec.Deserializer[T]
	nodeSelector    selector.NodeSelector[T]
	shardSelector   selector.ShardSelector[T]
	refreshInterval time.Duration
	disableWatchers bool
	logger          log.Logger
}

// Namespace returns the root of every path
func (s *Settings[T]) Namespace() string { return s.namespace }

// ServiceName returns the name of the service
func (s *Settings[T]) ServiceName() string { return s.serviceName }

// Store returns the connected store handle
func (s *Settings[T]) Store() store.Store { return s.store }

// OwnsStore reports whether the store was opened by Build, in which case
// the built component is responsible for closing it.
func (s *Settings[T]) OwnsStore() bool { return s.ownsStore }

// Serializer returns the serializer. It may be nil.
func (s *Settings[T]) Serializer() codec.Serializer[T] { return s.serializer }

// Deserializer returns the deserializer. It may be nil.
func (s *Settings[T]) Deserializer() codec.Deserializer[T] { return s.deserializer }

// NodeSelector returns the node selection strategy
func (s *Settings[T]) NodeSelector() selector.NodeSelector[T] { return s.nodeSelector }

// ShardSelector returns the shard selection strategy. It may be nil.
func (s *Settings[T]) ShardSelector() selector.ShardSelector[T] { return s.shardSelector }

// RefreshInterval returns the effective refresh interval, never below MinRefreshInterval
func (s *Settings[T]) RefreshInterval() time.Duration { return s.refreshInterval }

// DisableWatchers reports whether watches are disabled
func (s *Settings[T]) DisableWatchers() bool { return s.disableWatchers }

// Logger returns the logger
func (s *Settings[T]) Logger() log.Logger { return s.logger }
