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

const (
	// MinRefreshInterval is the lowest refresh interval accepted by Build.
	// Lower values are raised to it.
	MinRefreshInterval = time.Second
)

// ConnectRetry bounds the attempts made by Build to reach the store.
// The delay between attempts grows exponentially from InitialDelay up to MaxDelay.
type ConnectRetry struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultConnectRetry returns the default connection retry policy
func DefaultConnectRetry() ConnectRetry {
	return ConnectRetry{
		MaxRetries:     10,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}

// Builder collects the registry configuration. It is a value: every WithX
// method returns a modified copy and leaves the receiver untouched.
// Nothing is validated until Build.
type Builder[T any] struct {
	namespace        string
	serviceName      string
	connectionString string
	store            store.Store
	serializer       codec.Serializer[T]
	deserializer     codec.Deserializer[T]
	nodeSelector     selector.NodeSelector[T]
	shardSelector    selector.ShardSelector[T]
	refreshInterval  time.Duration
	disableWatchers  bool
	logger           log.Logger
	connectRetry     ConnectRetry
	connector        Connector
}

// NewBuilder creates a Builder with the defaults: uniform random node
// selection, default logger, default connection retry and Dial as connector.
func NewBuilder[T any]() Builder[T] {
	return Builder[T]{
		nodeSelector: selector.NewRandom[T](),
		logger:       log.DefaultLogger,
		connectRetry: DefaultConnectRetry(),
		connector:    Dial,
	}
}

// WithNamespace sets the root of every path
func (b Builder[T]) WithNamespace(namespace string) Builder[T] {
	b.namespace = namespace
	return b
}

// WithServiceName sets the name of the service
func (b Builder[T]) WithServiceName(serviceName string) Builder[T] {
	b.serviceName = serviceName
	return b
}

// WithConnectionString sets the store connection string.
// It is ignored when a store is set with WithStore.
func (b Builder[T]) WithConnectionString(connectionString string) Builder[T] {
	b.connectionString = connectionString
	return b
}

// WithStore sets an already opened store handle. Build does not close it.
func (b Builder[T]) WithStore(s store.Store) Builder[T] {
	b.store = s
	return b
}

// WithCodec sets both the serializer and the deserializer
func (b Builder[T]) WithCodec(c codec.Codec[T]) Builder[T] {
	b.serializer = c
	b.deserializer = c
	return b
}

// WithSerializer sets the serializer used to publish nodes
func (b Builder[T]) WithSerializer(serializer codec.Serializer[T]) Builder[T] {
	b.serializer = serializer
	return b
}

// WithDeserializer sets the deserializer used to read nodes
func (b Builder[T]) WithDeserializer(deserializer codec.Deserializer[T]) Builder[T] {
	b.deserializer = deserializer
	return b
}

// WithNodeSelector sets the node selection strategy
func (b Builder[T]) WithNodeSelector(nodeSelector selector.NodeSelector[T]) Builder[T] {
	b.nodeSelector = nodeSelector
	return b
}

// WithShardSelector sets the shard selection strategy
func (b Builder[T]) WithShardSelector(shardSelector selector.ShardSelector[T]) Builder[T] {
	b.shardSelector = shardSelector
	return b
}

// WithRefreshInterval sets the heartbeat and refresh interval
func (b Builder[T]) WithRefreshInterval(interval time.Duration) Builder[T] {
	b.refreshInterval = interval
	return b
}

// WithDisableWatchers disables the store watches on the finder side
func (b Builder[T]) WithDisableWatchers(disable bool) Builder[T] {
	b.disableWatchers = disable
	return b
}

// WithLogger sets the logger
func (b Builder[T]) WithLogger(logger log.Logger) Builder[T] {
	b.logger = logger
	return b
}

// WithConnectRetry sets the policy used to reach the store
func (b Builder[T]) WithConnectRetry(maxRetries int, initialDelay, maxDelay time.Duration) Builder[T] {
	b.connectRetry.MaxRetries = maxRetries
	b.connectRetry.InitialDelay = initialDelay
	b.connectRetry.MaxDelay = maxDelay
	return b
}

// WithConnector sets the function opening a store from the connection string
func (b Builder[T]) WithConnector(connector Connector) Builder[T] {
	b.connector = connector
	return b
}
