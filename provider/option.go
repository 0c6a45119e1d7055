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
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"

	"github.com/tochemey/ranger/health"
	"github.com/tochemey/ranger/log"
)

const (
	// DefaultHeartbeatInterval is the delay between two heartbeat cycles
	DefaultHeartbeatInterval = time.Second
	// DefaultStaleUpdateThreshold is the age after which an unchanged status is republished
	DefaultStaleUpdateThreshold = 5 * time.Second
	// DefaultCheckTimeout bounds a single health check
	DefaultCheckTimeout = time.Second
)

type options struct {
	dataSupplier         any
	checks               []health.Check
	policy               health.Policy
	aggregator           *health.Aggregator
	heartbeatInterval    time.Duration
	staleUpdateThreshold time.Duration
	checkTimeout         time.Duration
	retryPolicy          RetryPolicy
	clock                clockwork.Clock
	logger               log.Logger
	meterProvider        metric.MeterProvider
}

func defaultOptions() *options {
	return &options{
		policy:               health.AllHealthy,
		heartbeatInterval:    DefaultHeartbeatInterval,
		staleUpdateThreshold: DefaultStaleUpdateThreshold,
		checkTimeout:         DefaultCheckTimeout,
		retryPolicy:          DefaultRetryPolicy(),
		clock:                clockwork.NewRealClock(),
		logger:               log.DefaultLogger,
	}
}

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(opts *options)
}

// enforce compilation error
var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*options)

// Apply implements Option
func (f OptionFunc) Apply(opts *options) {
	f(opts)
}

// WithDataSupplier sets the function producing the node data published by
// every heartbeat. Its type parameter must match the provider's.
func WithDataSupplier[T any](supplier func(ctx context.Context) (T, error)) Option {
	return OptionFunc(func(opts *options) {
		opts.dataSupplier = supplier
	})
}

// WithHealthChecks adds health checks evaluated at every heartbeat
func WithHealthChecks(checks ...health.Check) Option {
	return OptionFunc(func(opts *options) {
		opts.checks = append(opts.checks, checks...)
	})
}

// WithHealthPolicy sets how the check results are combined.
// Default: health.AllHealthy
func WithHealthPolicy(policy health.Policy) Option {
	return OptionFunc(func(opts *options) {
		opts.policy = policy
	})
}

// WithAggregator sets a health aggregator started and stopped with the
// provider. It is evaluated as one more health check.
func WithAggregator(aggregator *health.Aggregator) Option {
	return OptionFunc(func(opts *options) {
		opts.aggregator = aggregator
	})
}

// WithHeartbeatInterval sets the delay between the end of a heartbeat
// cycle and the start of the next one
func WithHeartbeatInterval(interval time.Duration) Option {
	return OptionFunc(func(opts *options) {
		opts.heartbeatInterval = interval
	})
}

// WithStaleUpdateThreshold sets the age after which the node is republished
// even though its health status did not change
func WithStaleUpdateThreshold(threshold time.Duration) Option {
	return OptionFunc(func(opts *options) {
		opts.staleUpdateThreshold = threshold
	})
}

// WithCheckTimeout bounds each health check
func WithCheckTimeout(timeout time.Duration) Option {
	return OptionFunc(func(opts *options) {
		opts.checkTimeout = timeout
	})
}

// WithRegistrationRetry sets the retry policy applied when the node path is
// still held by a previous session
func WithRegistrationRetry(policy RetryPolicy) Option {
	return OptionFunc(func(opts *options) {
		opts.retryPolicy = policy
	})
}

// WithClock sets the clock driving the heartbeat and the registration retry
func WithClock(clock clockwork.Clock) Option {
	return OptionFunc(func(opts *options) {
		opts.clock = clock
	})
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(opts *options) {
		opts.logger = logger
	})
}

// WithMeterProvider sets the OpenTelemetry meter provider.
// Default: the global provider
func WithMeterProvider(meterProvider metric.MeterProvider) Option {
	return OptionFunc(func(opts *options) {
		opts.meterProvider = meterProvider
	})
}
