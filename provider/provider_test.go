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

package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"github.com/tochemey/ranger/codec"
	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/health"
	"github.com/tochemey/ranger/log"
	"github.com/tochemey/ranger/node"
	"github.com/tochemey/ranger/registry"
	"github.com/tochemey/ranger/store"
	"github.com/tochemey/ranger/store/memory"
)

const nodePath = "/orders/10.0.0.5:9000"

type payload struct {
	Version string `json:"version"`
}

// spyStore counts the writes reaching the wrapped store and lets a test
// inject failures before they do
type spyStore struct {
	store.Store
	creates      *atomic.Int32
	sets         *atomic.Int32
	onCreate     func() error
	onSet        func() error
	hideExisting bool
}

func newSpyStore(st store.Store) *spyStore {
	return &spyStore{
		Store:   st,
		creates: atomic.NewInt32(0),
		sets:    atomic.NewInt32(0),
	}
}

func (s *spyStore) Exists(ctx context.Context, p string) (bool, error) {
	if s.hideExisting {
		return false, nil
	}
	return s.Store.Exists(ctx, p)
}

func (s *spyStore) CreateEphemeral(ctx context.Context, p string, data []byte) error {
	s.creates.Inc()
	if s.onCreate != nil {
		if err := s.onCreate(); err != nil {
			return err
		}
	}
	return s.Store.CreateEphemeral(ctx, p, data)
}

func (s *spyStore) SetData(ctx context.Context, p string, data []byte) error {
	s.sets.Inc()
	if s.onSet != nil {
		if err := s.onSet(); err != nil {
			return err
		}
	}
	return s.Store.SetData(ctx, p, data)
}

func newNode() *node.ServiceNode[payload] {
	return node.New("10.0.0.5", 9000, payload{Version: "v1"})
}

func newProvider(t *testing.T, st store.Store, clock clockwork.Clock, opts ...Option) *Provider[payload] {
	t.Helper()
	options := append([]Option{
		WithClock(clock),
		WithLogger(log.DiscardLogger),
		WithMeterProvider(noop.NewMeterProvider()),
	}, opts...)
	p, err := New("orders", st, codec.NewJSON[payload](), newNode(), options...)
	require.NoError(t, err)
	return p
}

func readNode(t *testing.T, server *memory.Server) *node.ServiceNode[payload] {
	t.Helper()
	reader := server.Open("prod")
	defer reader.Close()
	data, err := reader.GetData(t.Context(), nodePath)
	if errors.Is(err, rerrors.ErrNoNode) {
		return nil
	}
	require.NoError(t, err)
	serviceNode, err := codec.NewJSON[payload]().Deserialize(data)
	require.NoError(t, err)
	return serviceNode
}

func publishedStatus(t *testing.T, server *memory.Server) health.Status {
	serviceNode := readNode(t, server)
	if serviceNode == nil {
		return health.StatusUnknown
	}
	return serviceNode.HealthStatus
}

func TestNew(t *testing.T) {
	serializer := codec.NewJSON[payload]()
	st := memory.NewServer().Open("prod")
	defer st.Close()

	testCases := []struct {
		name        string
		serviceName string
		store       store.Store
		serializer  codec.Serializer[payload]
		node        *node.ServiceNode[payload]
		opts        []Option
	}{
		{name: "without service name", store: st, serializer: serializer, node: newNode()},
		{name: "without store", serviceName: "orders", serializer: serializer, node: newNode()},
		{name: "without serializer", serviceName: "orders", store: st, node: newNode()},
		{name: "without node", serviceName: "orders", store: st, serializer: serializer},
		{name: "with invalid port", serviceName: "orders", store: st, serializer: serializer, node: node.New("10.0.0.5", 0, payload{})},
		{name: "without host", serviceName: "orders", store: st, serializer: serializer, node: node.New("", 9000, payload{})},
		{
			name:        "with mismatched data supplier",
			serviceName: "orders",
			store:       st,
			serializer:  serializer,
			node:        newNode(),
			opts: []Option{WithDataSupplier(func(context.Context) (string, error) {
				return "v2", nil
			})},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(tc.serviceName, tc.store, tc.serializer, tc.node, tc.opts...)
			require.ErrorIs(t, err, rerrors.ErrInvalidConfig)
			assert.Nil(t, p)
		})
	}

	t.Run("with defaults", func(t *testing.T) {
		p, err := New("orders", st, serializer, newNode(), WithMeterProvider(noop.NewMeterProvider()))
		require.NoError(t, err)
		assert.Equal(t, nodePath, p.Path())
		assert.Equal(t, StateStopped, p.State())
		assert.Equal(t, DefaultHeartbeatInterval, p.heartbeatInterval)
		assert.Equal(t, DefaultStaleUpdateThreshold, p.staleUpdateThreshold)
		assert.Equal(t, DefaultRetryPolicy(), p.retryPolicy)
		assert.Empty(t, p.checks)
	})
	t.Run("the node is copied", func(t *testing.T) {
		serviceNode := newNode()
		p, err := New("orders", st, serializer, serviceNode, WithMeterProvider(noop.NewMeterProvider()))
		require.NoError(t, err)
		serviceNode.Data.Version = "changed"
		assert.Equal(t, "v1", p.ServiceNode().Data.Version)
	})
}

func TestStart(t *testing.T) {
	t.Run("registers the node and publishes its health right away", func(t *testing.T) {
		ctx := t.Context()
		server := memory.NewServer()
		clock := clockwork.NewFakeClock()
		p := newProvider(t, server.Open("prod"), clock)

		require.NoError(t, p.Start(ctx))
		assert.Equal(t, StateRegistered, p.State())
		assert.Contains(t, server.Paths(), "/prod/orders/10.0.0.5:9000")

		serviceNode := readNode(t, server)
		require.NotNil(t, serviceNode)
		assert.Equal(t, "10.0.0.5", serviceNode.Host)
		assert.Equal(t, 9000, serviceNode.Port)
		assert.Equal(t, "v1", serviceNode.Data.Version)

		require.Eventually(t, func() bool {
			return publishedStatus(t, server) == health.StatusHealthy
		}, time.Second, 10*time.Millisecond)
		assert.Equal(t, clock.Now().UnixMilli(), readNode(t, server).LastUpdatedTimestamp)
		assert.Equal(t, health.StatusHealthy, p.ServiceNode().HealthStatus)

		require.NoError(t, p.Stop(ctx))
		assert.Nil(t, readNode(t, server))
		goleak.VerifyNone(t)
	})
	t.Run("twice returns an error", func(t *testing.T) {
		ctx := t.Context()
		p := newProvider(t, memory.NewServer().Open("prod"), clockwork.NewFakeClock())
		require.NoError(t, p.Start(ctx))
		require.ErrorIs(t, p.Start(ctx), rerrors.ErrAlreadyStarted)
		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("waits for the previous session to release the path", func(t *testing.T) {
		ctx := t.Context()
		server := memory.NewServer()
		previous := server.Open("prod")
		require.NoError(t, previous.EnsureContainer(ctx, "/orders"))
		require.NoError(t, previous.CreateEphemeral(ctx, nodePath, []byte(`{"host":"10.0.0.5","port":9000}`)))

		clock := clockwork.NewFakeClock()
		spy := newSpyStore(server.Open("prod"))
		p := newProvider(t, spy, clock, WithRegistrationRetry(RetryPolicy{Interval: time.Second, MaxAttempts: 5}))

		errc := make(chan error, 1)
		go func() { errc <- p.Start(ctx) }()

		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.EqualValues(t, 2, spy.creates.Load())
		assert.Equal(t, StateStarting, p.State())

		server.Expire(previous)
		clock.Advance(time.Second)

		require.NoError(t, <-errc)
		assert.EqualValues(t, 3, spy.creates.Load())
		assert.Equal(t, StateRegistered, p.State())
		assert.Equal(t, "v1", readNode(t, server).Data.Version)
		assert.Equal(t, []string{"/prod" + nodePath}, childrenOf(server, "/prod/orders"))

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("a failed start stops the aggregator", func(t *testing.T) {
		ctx := t.Context()
		server := memory.NewServer()
		previous := server.Open("prod")
		defer previous.Close()
		require.NoError(t, previous.EnsureContainer(ctx, "/orders"))
		require.NoError(t, previous.CreateEphemeral(ctx, nodePath, nil))

		clock := clockwork.NewFakeClock()
		aggregator := health.NewAggregator(
			health.WithAggregatorClock(clock),
			health.WithAggregatorLogger(log.DiscardLogger))
		up := health.NewCheck("disk", func(context.Context) health.Status { return health.StatusHealthy })
		require.NoError(t, aggregator.AddMonitor(up, time.Minute, time.Minute))

		st := server.Open("prod")
		p := newProvider(t, st, clock,
			WithAggregator(aggregator),
			WithRegistrationRetry(RetryPolicy{Interval: time.Second, MaxAttempts: 1}))

		require.ErrorIs(t, p.Start(ctx), rerrors.ErrNodeExists)
		require.NoError(t, aggregator.AddMonitor(up, time.Minute, time.Minute))
		require.NoError(t, st.BlockUntilConnected(ctx))

		require.NoError(t, p.Stop(ctx))
		require.ErrorIs(t, st.BlockUntilConnected(ctx), rerrors.ErrStoreClosed)
		goleak.VerifyNone(t)
	})
	t.Run("gives up after the maximum attempts", func(t *testing.T) {
		ctx := t.Context()
		server := memory.NewServer()
		previous := server.Open("prod")
		defer previous.Close()
		require.NoError(t, previous.EnsureContainer(ctx, "/orders"))
		require.NoError(t, previous.CreateEphemeral(ctx, nodePath, nil))

		clock := clockwork.NewFakeClock()
		spy := newSpyStore(server.Open("prod"))
		p := newProvider(t, spy, clock, WithRegistrationRetry(RetryPolicy{Interval: time.Second, MaxAttempts: 3}))

		errc := make(chan error, 1)
		go func() { errc <- p.Start(ctx) }()
		for range 2 {
			require.NoError(t, clock.BlockUntilContext(ctx, 1))
			clock.Advance(time.Second)
		}

		err := <-errc
		require.ErrorIs(t, err, rerrors.ErrRegistration)
		require.ErrorIs(t, err, rerrors.ErrNodeExists)
		assert.Contains(t, err.Error(), "service=(orders)")
		assert.Contains(t, err.Error(), "3 attempt(s)")
		assert.EqualValues(t, 3, spy.creates.Load())
		assert.Equal(t, StateStopped, p.State())

		require.NoError(t, p.Stop(ctx))
		require.ErrorIs(t, spy.BlockUntilConnected(ctx), rerrors.ErrStoreClosed)
		goleak.VerifyNone(t)
	})
	t.Run("gives up once the elapsed bound is reached", func(t *testing.T) {
		ctx := t.Context()
		server := memory.NewServer()
		previous := server.Open("prod")
		defer previous.Close()
		require.NoError(t, previous.EnsureContainer(ctx, "/orders"))
		require.NoError(t, previous.CreateEphemeral(ctx, nodePath, nil))

		clock := clockwork.NewFakeClock()
		spy := newSpyStore(server.Open("prod"))
		p := newProvider(t, spy, clock, WithRegistrationRetry(RetryPolicy{Interval: time.Second, MaxElapsed: 2500 * time.Millisecond}))

		errc := make(chan error, 1)
		go func() { errc <- p.Start(ctx) }()
		for range 2 {
			require.NoError(t, clock.BlockUntilContext(ctx, 1))
			clock.Advance(time.Second)
		}

		require.ErrorIs(t, <-errc, rerrors.ErrNodeExists)
		assert.EqualValues(t, 3, spy.creates.Load())
		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("does not retry other failures", func(t *testing.T) {
		ctx := t.Context()
		spy := newSpyStore(memory.NewServer().Open("prod"))
		spy.onCreate = func() error { return errors.New("connection loss") }
		p := newProvider(t, spy, clockwork.NewFakeClock())

		err := p.Start(ctx)
		require.ErrorIs(t, err, rerrors.ErrRegistration)
		assert.Contains(t, err.Error(), "connection loss")
		assert.EqualValues(t, 1, spy.creates.Load())
		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("fails when the store is closed", func(t *testing.T) {
		ctx := t.Context()
		st := memory.NewServer().Open("prod")
		require.NoError(t, st.Close())
		p := newProvider(t, st, clockwork.NewFakeClock())

		err := p.Start(ctx)
		require.ErrorIs(t, err, rerrors.ErrRegistration)
		require.ErrorIs(t, err, rerrors.ErrStoreClosed)
		require.NoError(t, p.Stop(ctx))
	})
	t.Run("stops retrying when the context is canceled", func(t *testing.T) {
		server := memory.NewServer()
		previous := server.Open("prod")
		defer previous.Close()
		require.NoError(t, previous.EnsureContainer(t.Context(), "/orders"))
		require.NoError(t, previous.CreateEphemeral(t.Context(), nodePath, nil))

		clock := clockwork.NewFakeClock()
		p := newProvider(t, server.Open("prod"), clock, WithRegistrationRetry(RetryPolicy{Interval: time.Second}))

		ctx, cancel := context.WithCancel(t.Context())
		errc := make(chan error, 1)
		go func() { errc <- p.Start(ctx) }()
		require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
		cancel()

		require.ErrorIs(t, <-errc, context.Canceled)
		require.NoError(t, p.Stop(t.Context()))
		goleak.VerifyNone(t)
	})
}

func TestStop(t *testing.T) {
	t.Run("before Start does nothing", func(t *testing.T) {
		ctx := t.Context()
		st := memory.NewServer().Open("prod")
		p := newProvider(t, st, clockwork.NewFakeClock())
		require.NoError(t, p.Stop(ctx))
		require.NoError(t, st.BlockUntilConnected(ctx))
		require.NoError(t, st.Close())
	})
	t.Run("is idempotent", func(t *testing.T) {
		ctx := t.Context()
		server := memory.NewServer()
		p := newProvider(t, server.Open("prod"), clockwork.NewFakeClock())
		require.NoError(t, p.Start(ctx))
		require.NoError(t, p.Stop(ctx))
		require.NoError(t, p.Stop(ctx))
		assert.Equal(t, StateStopped, p.State())
		assert.NotContains(t, server.Paths(), "/prod"+nodePath)
		goleak.VerifyNone(t)
	})
	t.Run("is bounded by the context", func(t *testing.T) {
		ctx := t.Context()
		release := make(chan struct{})
		spy := newSpyStore(memory.NewServer().Open("prod"))
		spy.onSet = func() error {
			<-release
			return nil
		}
		p := newProvider(t, spy, clockwork.NewFakeClock())
		require.NoError(t, p.Start(ctx))
		require.Eventually(t, func() bool { return spy.sets.Load() == 1 }, time.Second, 10*time.Millisecond)

		stopCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err := p.Stop(stopCtx)
		require.ErrorIs(t, err, rerrors.ErrShutdown)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, StateStopped, p.State())

		close(release)
		<-p.done
		goleak.VerifyNone(t)
	})
}

func TestHeartbeat(t *testing.T) {
	t.Run("runs with a fixed delay", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		spy := newSpyStore(memory.NewServer().Open("prod"))
		p := newProvider(t, spy, clock,
			WithHeartbeatInterval(2*time.Second),
			WithStaleUpdateThreshold(time.Millisecond))
		require.NoError(t, p.Start(ctx))

		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.EqualValues(t, 1, spy.sets.Load())

		clock.Advance(1999 * time.Millisecond)
		assert.Never(t, func() bool { return spy.sets.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)

		clock.Advance(time.Millisecond)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.EqualValues(t, 2, spy.sets.Load())

		clock.Advance(2 * time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.EqualValues(t, 3, spy.sets.Load())

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("skips unchanged status until it is stale", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		spy := newSpyStore(memory.NewServer().Open("prod"))
		p := newProvider(t, spy, clock,
			WithHeartbeatInterval(2*time.Second),
			WithStaleUpdateThreshold(5*time.Second))
		require.NoError(t, p.Start(ctx))

		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		require.EqualValues(t, 1, spy.sets.Load())

		for range 2 {
			clock.Advance(2 * time.Second)
			require.NoError(t, clock.BlockUntilContext(ctx, 1))
			assert.EqualValues(t, 1, spy.sets.Load())
		}

		clock.Advance(2 * time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.EqualValues(t, 2, spy.sets.Load())

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("publishes health transitions", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		server := memory.NewServer()
		healthy := atomic.NewBool(true)
		check := health.NewCheck("database", func(context.Context) health.Status {
			if healthy.Load() {
				return health.StatusHealthy
			}
			return health.StatusUnhealthy
		})

		p := newProvider(t, server.Open("prod"), clock,
			WithHealthChecks(check),
			WithStaleUpdateThreshold(time.Minute))
		require.NoError(t, p.Start(ctx))
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, health.StatusHealthy, publishedStatus(t, server))

		healthy.Store(false)
		clock.Advance(time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, health.StatusUnhealthy, publishedStatus(t, server))
		assert.Equal(t, clock.Now().UnixMilli(), readNode(t, server).LastUpdatedTimestamp)

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("a panicking check is unhealthy", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		server := memory.NewServer()
		check := health.NewCheck("broken", func(context.Context) health.Status {
			panic("boom")
		})

		p := newProvider(t, server.Open("prod"), clock, WithHealthChecks(check))
		require.NoError(t, p.Start(ctx))
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, health.StatusUnhealthy, publishedStatus(t, server))

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("bounds each check with the timeout", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		server := memory.NewServer()
		check := health.NewCheck("slow", func(ctx context.Context) health.Status {
			<-ctx.Done()
			return health.StatusUnhealthy
		})

		p := newProvider(t, server.Open("prod"), clock,
			WithHealthChecks(check),
			WithCheckTimeout(20*time.Millisecond))
		require.NoError(t, p.Start(ctx))
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, health.StatusUnhealthy, publishedStatus(t, server))

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("uses the health policy", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		server := memory.NewServer()
		up := health.NewCheck("up", func(context.Context) health.Status { return health.StatusHealthy })
		down := health.NewCheck("down", func(context.Context) health.Status { return health.StatusUnhealthy })

		p := newProvider(t, server.Open("prod"), clock,
			WithHealthChecks(up, down),
			WithHealthPolicy(health.AnyHealthy))
		require.NoError(t, p.Start(ctx))
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, health.StatusHealthy, publishedStatus(t, server))

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("merges the supplied data", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		server := memory.NewServer()
		version := atomic.NewString("v2")

		p := newProvider(t, server.Open("prod"), clock,
			WithDataSupplier(func(context.Context) (payload, error) {
				return payload{Version: version.Load()}, nil
			}),
			WithStaleUpdateThreshold(time.Millisecond))
		require.NoError(t, p.Start(ctx))
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, "v2", readNode(t, server).Data.Version)

		version.Store("v3")
		clock.Advance(time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, "v3", readNode(t, server).Data.Version)
		assert.Equal(t, "v3", p.ServiceNode().Data.Version)

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("a failing cycle does not stop the schedule", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		reader := sdkmetric.NewManualReader()
		meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		server := memory.NewServer()
		spy := newSpyStore(server.Open("prod"))
		failures := atomic.NewInt32(1)
		spy.onSet = func() error {
			if failures.Dec() >= 0 {
				return errors.New("connection loss")
			}
			return nil
		}

		p := newProvider(t, spy, clock,
			WithMeterProvider(meterProvider),
			WithStaleUpdateThreshold(time.Millisecond))
		require.NoError(t, p.Start(ctx))
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, health.StatusUnknown, publishedStatus(t, server))
		assert.EqualValues(t, 1, sumOf(t, reader, "ranger.heartbeat.failures"))

		clock.Advance(time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, health.StatusHealthy, publishedStatus(t, server))
		assert.EqualValues(t, 2, sumOf(t, reader, "ranger.heartbeat.cycles"))
		assert.EqualValues(t, 1, sumOf(t, reader, "ranger.heartbeat.failures"))
		assert.EqualValues(t, 1, sumOf(t, reader, "ranger.registration.attempts"))

		require.NoError(t, p.Stop(ctx))
		require.NoError(t, meterProvider.Shutdown(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("a failing data supplier does not stop the schedule", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		server := memory.NewServer()
		failing := atomic.NewBool(true)

		p := newProvider(t, server.Open("prod"), clock,
			WithDataSupplier(func(context.Context) (payload, error) {
				if failing.Load() {
					return payload{}, errors.New("not ready")
				}
				return payload{Version: "v2"}, nil
			}))
		require.NoError(t, p.Start(ctx))
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, "v1", readNode(t, server).Data.Version)

		failing.Store(false)
		clock.Advance(time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, "v2", readNode(t, server).Data.Version)

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("includes the aggregator", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		server := memory.NewServer()
		aggregator := health.NewAggregator(
			health.WithAggregatorClock(clock),
			health.WithAggregatorLogger(log.DiscardLogger))
		down := health.NewCheck("disk", func(context.Context) health.Status { return health.StatusUnhealthy })
		require.NoError(t, aggregator.AddMonitor(down, time.Minute, 2*time.Minute))

		p := newProvider(t, server.Open("prod"), clock, WithAggregator(aggregator))
		require.NoError(t, p.Start(ctx))
		require.Eventually(t, func() bool {
			return publishedStatus(t, server) == health.StatusUnhealthy
		}, time.Second, 10*time.Millisecond)
		assert.Contains(t, aggregator.States(), "disk")

		require.NoError(t, p.Stop(ctx))
		require.NoError(t, aggregator.AddMonitor(down, time.Minute, time.Minute))
		goleak.VerifyNone(t)
	})
}

func TestUpdateState(t *testing.T) {
	t.Run("round trips the node", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		server := memory.NewServer()
		p := newProvider(t, server.Open("prod"), clock, WithStaleUpdateThreshold(time.Hour))
		require.NoError(t, p.Start(ctx))
		require.NoError(t, clock.BlockUntilContext(ctx, 1))

		updated := p.ServiceNode()
		updated.Data.Version = "v2"
		updated.HealthStatus = health.StatusUnhealthy
		updated.LastUpdatedTimestamp = 1700000000000
		require.NoError(t, p.UpdateState(ctx, updated))

		assert.Equal(t, updated, readNode(t, server))
		assert.Equal(t, updated, p.ServiceNode())

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("rejects another node", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		server := memory.NewServer()
		p := newProvider(t, server.Open("prod"), clock, WithStaleUpdateThreshold(time.Millisecond))
		require.NoError(t, p.Start(ctx))
		require.NoError(t, clock.BlockUntilContext(ctx, 1))

		other := node.New("10.0.0.6", 9001, payload{Version: "v2"})
		require.ErrorIs(t, p.UpdateState(ctx, other), rerrors.ErrInvalidConfig)
		assert.Equal(t, nodePath, p.Path())
		assert.Equal(t, "10.0.0.5:9000", p.ServiceNode().Representation())

		clock.Advance(time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, []string{"/prod" + nodePath}, childrenOf(server, "/prod/orders"))
		assert.Equal(t, clock.Now().UnixMilli(), readNode(t, server).LastUpdatedTimestamp)

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("recreates a missing node without retry", func(t *testing.T) {
		ctx := t.Context()
		clock := clockwork.NewFakeClock()
		server := memory.NewServer()
		spy := newSpyStore(server.Open("prod"))
		p := newProvider(t, spy, clock, WithStaleUpdateThreshold(time.Hour))
		require.NoError(t, p.Start(ctx))
		require.NoError(t, clock.BlockUntilContext(ctx, 1))

		require.True(t, server.Delete("/prod"+nodePath))
		require.NoError(t, p.UpdateState(ctx, newNode()))
		assert.EqualValues(t, 2, spy.creates.Load())
		assert.NotNil(t, readNode(t, server))

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("overwrites a node created concurrently", func(t *testing.T) {
		ctx := t.Context()
		server := memory.NewServer()
		spy := newSpyStore(server.Open("prod"))
		require.NoError(t, spy.EnsureContainer(ctx, "/orders"))
		require.NoError(t, spy.Store.CreateEphemeral(ctx, nodePath, []byte("{}")))
		spy.hideExisting = true

		p := newProvider(t, spy, clockwork.NewFakeClock())
		updated := newNode()
		updated.Data.Version = "v2"
		require.NoError(t, p.UpdateState(ctx, updated))
		assert.EqualValues(t, 1, spy.creates.Load())
		assert.EqualValues(t, 1, spy.sets.Load())
		assert.Equal(t, "v2", readNode(t, server).Data.Version)
		require.NoError(t, spy.Close())
	})
	t.Run("returns store failures", func(t *testing.T) {
		ctx := t.Context()
		st := memory.NewServer().Open("prod")
		p := newProvider(t, st, clockwork.NewFakeClock())
		require.NoError(t, st.Close())
		require.ErrorIs(t, p.UpdateState(ctx, newNode()), rerrors.ErrStoreClosed)
		require.Error(t, p.UpdateState(ctx, nil))
	})
}

func TestFactory(t *testing.T) {
	t.Run("builds a provider from the registry settings", func(t *testing.T) {
		ctx := t.Context()
		server := memory.NewServer()
		clock := clockwork.NewFakeClock()
		healthy := atomic.NewBool(true)
		check := health.NewCheck("database", func(context.Context) health.Status {
			if healthy.Load() {
				return health.StatusHealthy
			}
			return health.StatusUnhealthy
		})
		builder := registry.NewBuilder[payload]().
			WithNamespace("prod").
			WithServiceName("orders").
			WithStore(server.Open("prod")).
			WithCodec(codec.NewJSON[payload]()).
			WithRefreshInterval(2000 * time.Millisecond).
			WithLogger(log.DiscardLogger)

		p, err := registry.Build(ctx, builder, NewFactory(newNode(),
			WithClock(clock),
			WithMeterProvider(noop.NewMeterProvider()),
			WithHealthChecks(check),
			WithStaleUpdateThreshold(time.Minute),
			WithHeartbeatInterval(time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, p.heartbeatInterval)
		assert.Equal(t, log.DiscardLogger, p.logger)

		require.NoError(t, p.Start(ctx))
		assert.Contains(t, server.Paths(), "/prod/orders/10.0.0.5:9000")
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, health.StatusHealthy, publishedStatus(t, server))

		healthy.Store(false)
		clock.Advance(time.Second)
		assert.Equal(t, health.StatusHealthy, publishedStatus(t, server))
		clock.Advance(time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, health.StatusUnhealthy, publishedStatus(t, server))

		require.NoError(t, p.Stop(ctx))
		goleak.VerifyNone(t)
	})
	t.Run("requires a serializer", func(t *testing.T) {
		builder := registry.NewBuilder[payload]().
			WithNamespace("prod").
			WithServiceName("orders").
			WithStore(memory.NewServer().Open("prod")).
			WithDeserializer(codec.NewJSON[payload]()).
			WithLogger(log.DiscardLogger)

		p, err := registry.Build(t.Context(), builder, NewFactory(newNode()))
		require.ErrorIs(t, err, rerrors.ErrInvalidConfig)
		assert.Nil(t, p)
	})
}

func TestRetryPolicy(t *testing.T) {
	clock := clockwork.NewFakeClock()
	t.Run("bounded by attempts", func(t *testing.T) {
		b := RetryPolicy{Interval: time.Second, MaxAttempts: 3}.backOff(t.Context(), clock)
		b.Reset()
		assert.Equal(t, time.Second, b.NextBackOff())
		assert.Equal(t, time.Second, b.NextBackOff())
		assert.Equal(t, time.Duration(-1), b.NextBackOff())
	})
	t.Run("unbounded", func(t *testing.T) {
		b := RetryPolicy{}.backOff(t.Context(), clock)
		b.Reset()
		for range 100 {
			assert.Equal(t, time.Second, b.NextBackOff())
		}
	})
	t.Run("bounded by elapsed time", func(t *testing.T) {
		b := RetryPolicy{Interval: time.Second, MaxElapsed: 1500 * time.Millisecond}.backOff(t.Context(), clock)
		b.Reset()
		assert.Equal(t, time.Second, b.NextBackOff())
		clock.Advance(time.Second)
		assert.Equal(t, time.Duration(-1), b.NextBackOff())
	})
}

func TestState(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "registered", StateRegistered.String())
}

func childrenOf(server *memory.Server, parent string) []string {
	var children []string
	for _, p := range server.Paths() {
		if strings.HasPrefix(p, parent+"/") {
			children = append(children, p)
		}
	}
	return children
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			var total int64
			for _, point := range sum.DataPoints {
				total += point.Value
			}
			return total
		}
	}
	return 0
}
