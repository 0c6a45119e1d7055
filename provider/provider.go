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
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"

	"github.com/tochemey/ranger/codec"
	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/health"
	"github.com/tochemey/ranger/internal/errorschain"
	"github.com/tochemey/ranger/internal/locker"
	imetric "github.com/tochemey/ranger/internal/metric"
	"github.com/tochemey/ranger/internal/validation"
	"github.com/tochemey/ranger/log"
	"github.com/tochemey/ranger/node"
	"github.com/tochemey/ranger/store"
)

// Provider registers a service instance as an ephemeral node in the
// coordination store and keeps its health status current with a fixed-delay
// heartbeat. The node disappears when the store session ends.
type Provider[T any] struct {
	_ locker.NoCopy

	serviceName string
	path        string
	store       store.Store
	serializer  codec.Serializer[T]
	supplier    func(ctx context.Context) (T, error)

	checks               []health.Check
	policy               health.Policy
	aggregator           *health.Aggregator
	heartbeatInterval    time.Duration
	staleUpdateThreshold time.Duration
	retryPolicy          RetryPolicy

	clock      clockwork.Clock
	logger     log.Logger
	metric     *imetric.RegistrationMetric
	attributes metric.MeasurementOption

	// lifecycle guards Start and Stop
	lifecycle sync.Mutex
	state     *atomic.Int32
	started   *atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once

	// mu guards the last published node
	mu            sync.RWMutex
	node          *node.ServiceNode[T]
	lastPublished time.Time
}

// New creates a Provider for the given node. The provider owns the store and
// closes it on Stop.
func New[T any](serviceName string, st store.Store, serializer codec.Serializer[T], serviceNode *node.ServiceNode[T], opts ...Option) (*Provider[T], error) {
	config := defaultOptions()
	for _, opt := range opts {
		opt.Apply(config)
	}

	if err := validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("ServiceName", serviceName)).
		AddAssertion(st != nil, "store is required").
		AddAssertion(serializer != nil, "serializer is required").
		AddAssertion(serviceNode != nil, "service node is required").
		AddAssertion(config.clock != nil, "clock is required").
		Validate(); err != nil {
		return nil, rerrors.NewConfigurationError(err)
	}

	if err := validation.NewTCPAddressValidator(serviceNode.Representation()).Validate(); err != nil {
		return nil, rerrors.NewConfigurationError(err)
	}

	var supplier func(ctx context.Context) (T, error)
	if config.dataSupplier != nil {
		fn, ok := config.dataSupplier.(func(ctx context.Context) (T, error))
		if !ok {
			return nil, rerrors.NewConfigurationError(fmt.Errorf("data supplier of type %T does not produce the node data type", config.dataSupplier))
		}
		supplier = fn
	}

	if config.heartbeatInterval <= 0 {
		config.heartbeatInterval = DefaultHeartbeatInterval
	}

	if config.staleUpdateThreshold <= 0 {
		config.staleUpdateThreshold = DefaultStaleUpdateThreshold
	}

	if config.logger == nil {
		config.logger = log.DefaultLogger
	}

	if config.policy == nil {
		config.policy = health.AllHealthy
	}

	registrationMetric, err := imetric.NewRegistrationMetric(imetric.NewProvider(config.meterProvider).Meter())
	if err != nil {
		return nil, err
	}

	checks := make([]health.Check, 0, len(config.checks)+1)
	for _, check := range config.checks {
		if check == nil {
			continue
		}
		checks = append(checks, boundedCheck{check: check, timeout: config.checkTimeout})
	}

	if config.aggregator != nil {
		checks = append(checks, config.aggregator)
	}

	return &Provider[T]{
		serviceName:          serviceName,
		path:                 node.Path(serviceName, serviceNode.Representation()),
		store:                st,
		serializer:           serializer,
		supplier:             supplier,
		checks:               checks,
		policy:               config.policy,
		aggregator:           config.aggregator,
		heartbeatInterval:    config.heartbeatInterval,
		staleUpdateThreshold: config.staleUpdateThreshold,
		retryPolicy:          config.retryPolicy,
		clock:                config.clock,
		logger:               config.logger,
		metric:               registrationMetric,
		attributes:           metric.WithAttributes(attribute.String("service", serviceName)),
		state:                atomic.NewInt32(int32(StateStopped)),
		started:              atomic.NewBool(false),
		node:                 serviceNode.Clone(),
	}, nil
}

// Start registers the node and schedules the heartbeat.
// The node is discoverable once Start returns without error. A failed Start
// stops the aggregator; the store stays open until Stop.
func (p *Provider[T]) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if !p.started.CompareAndSwap(false, true) {
		return rerrors.ErrAlreadyStarted
	}

	p.state.Store(int32(StateStarting))
	p.logger.Infof("starting service provider for service=(%s) at path=(%s)", p.serviceName, p.path)

	if p.aggregator != nil {
		p.aggregator.Start(context.WithoutCancel(ctx))
	}

	if err := p.register(ctx); err != nil {
		if p.aggregator != nil {
			p.aggregator.Stop()
		}
		p.state.Store(int32(StateStopped))
		err = rerrors.NewRegistrationError(p.serviceName, err)
		p.logger.Error(err)
		return err
	}

	heartbeatCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.heartbeatLoop(heartbeatCtx)

	p.state.Store(int32(StateRegistered))
	p.logger.Infof("service=(%s) registered at path=(%s)", p.serviceName, p.path)
	return nil
}

// Stop halts the heartbeat, stops the aggregator and closes the store.
// The ephemeral node goes away with the store session. Stop is idempotent
// and does nothing when Start was never called.
func (p *Provider[T]) Stop(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if !p.started.Load() {
		return nil
	}

	var err error
	p.stopOnce.Do(func() {
		chain := errorschain.New(errorschain.ReturnAll())
		if p.cancel != nil {
			p.cancel()
			select {
			case <-p.done:
			case <-ctx.Done():
				chain.AddError(fmt.Errorf("heartbeat did not stop in time: %w", ctx.Err()))
			}
		}

		if p.aggregator != nil {
			p.aggregator.Stop()
		}

		chain.AddErrorFn(p.store.Close)
		p.state.Store(int32(StateStopped))

		if cerr := chain.Error(); cerr != nil {
			err = rerrors.NewShutdownError(cerr)
			p.logger.Error(err)
			return
		}
		p.logger.Infof("service provider for service=(%s) stopped", p.serviceName)
	})
	return err
}

// UpdateState publishes the given node. An absent node is created as an
// ephemeral node without retry; a node created concurrently is overwritten.
// The node must have the representation of the registered node.
func (p *Provider[T]) UpdateState(ctx context.Context, serviceNode *node.ServiceNode[T]) error {
	if serviceNode == nil {
		return errors.New("service node is required")
	}

	path := node.Path(p.serviceName, serviceNode.Representation())
	if path != p.path {
		return rerrors.NewConfigurationError(fmt.Errorf("node=(%s) is not the registered node=(%s)", path, p.path))
	}

	payload, err := p.serializer.Serialize(serviceNode)
	if err != nil {
		return err
	}

	exists, err := p.store.Exists(ctx, path)
	if err != nil {
		return err
	}

	if !exists {
		err = p.store.CreateEphemeral(ctx, path, payload)
		switch {
		case err == nil:
			p.published(ctx, serviceNode)
			return nil
		case !errors.Is(err, rerrors.ErrNodeExists):
			return err
		}
	}

	if err := p.store.SetData(ctx, path, payload); err != nil {
		return err
	}

	p.published(ctx, serviceNode)
	return nil
}

// State returns the lifecycle state
func (p *Provider[T]) State() State {
	return State(p.state.Load())
}

// ServiceNode returns a copy of the last published node
func (p *Provider[T]) ServiceNode() *node.ServiceNode[T] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.node.Clone()
}

// Path returns the registration path of the node
func (p *Provider[T]) Path() string {
	return p.path
}

// register creates the ephemeral node, waiting out a previous session that
// still holds the path.
func (p *Provider[T]) register(ctx context.Context) error {
	if err := p.store.BlockUntilConnected(ctx); err != nil {
		return err
	}

	if err := p.store.EnsureContainer(ctx, node.ServicePath(p.serviceName)); err != nil {
		return err
	}

	serviceNode := p.ServiceNode()
	payload, err := p.serializer.Serialize(serviceNode)
	if err != nil {
		return backoff.Permanent(err)
	}

	attempts := 0
	create := func() error {
		attempts++
		p.metric.RegistrationAttempts().Add(ctx, 1, p.attributes)
		err := p.store.CreateEphemeral(ctx, p.path, payload)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, rerrors.ErrNodeExists):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	notify := func(err error, next time.Duration) {
		p.logger.Warnf("node=(%s) still exists, attempt %d failed. Retrying in %s", p.path, attempts, next)
	}

	err = backoff.RetryNotifyWithTimer(create, p.retryPolicy.backOff(ctx, p.clock), notify, &clockTimer{clock: p.clock})
	if err != nil {
		if errors.Is(err, rerrors.ErrNodeExists) {
			return fmt.Errorf("gave up after %d attempt(s): %w", attempts, err)
		}
		return err
	}

	p.published(ctx, serviceNode)
	return nil
}

func (p *Provider[T]) published(ctx context.Context, serviceNode *node.ServiceNode[T]) {
	p.mu.Lock()
	p.node = serviceNode.Clone()
	p.lastPublished = p.clock.Now()
	p.mu.Unlock()
	p.metric.NodeHealth().Record(ctx, int64(serviceNode.HealthStatus), p.attributes)
}

// boundedCheck runs a check under a timeout
type boundedCheck struct {
	check   health.Check
	timeout time.Duration
}

func (b boundedCheck) Name() string {
	return b.check.Name()
}

func (b boundedCheck) Check(ctx context.Context) health.Status {
	if b.timeout <= 0 {
		return b.check.Check(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.check.Check(ctx)
}
