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

// Package registry validates the configuration shared by the components
// registering and discovering service instances, connects to the
// coordination store, and hands the result to a Factory.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flowchartsman/retry"

	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/internal/validation"
	"github.com/tochemey/ranger/log"
	"github.com/tochemey/ranger/store"
)

// Factory builds a component out of validated Settings
type Factory[T, R any] interface {
	Build(settings *Settings[T]) (R, error)
}

// FactoryFunc adapts a function to a Factory
type FactoryFunc[T, R any] func(settings *Settings[T]) (R, error)

// Build implements Factory
func (f FactoryFunc[T, R]) Build(settings *Settings[T]) (R, error) {
	return f(settings)
}

// Build validates the builder, connects to the store unless one was given,
// and delegates construction to the factory.
//
// Validation failures and an unreachable store are returned as
// configuration errors. A store opened by Build is closed when the factory fails.
func Build[T, R any](ctx context.Context, builder Builder[T], factory Factory[T, R]) (R, error) {
	var zero R
	if factory == nil {
		return zero, rerrors.NewConfigurationError(errors.New("factory is required"))
	}

	settings, err := builder.settings()
	if err != nil {
		return zero, rerrors.NewConfigurationError(err)
	}

	if settings.store == nil {
		handle, err := builder.connect(ctx)
		if err != nil {
			return zero, rerrors.NewConfigurationError(err)
		}
		settings.store = handle
		settings.ownsStore = true
	}

	component, err := factory.Build(settings)
	if err != nil {
		if settings.ownsStore {
			if cerr := settings.store.Close(); cerr != nil {
				settings.logger.Warnf("failed to close store: %v", cerr)
			}
		}
		return zero, err
	}
	return component, nil
}

func (b Builder[T]) settings() (*Settings[T], error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = log.DefaultLogger
	}

	interval := b.refreshInterval
	if interval < MinRefreshInterval {
		logger.Warnf("Node refresh interval for %s is too low: %d ms. Has been upgraded to %d ms",
			b.serviceName, interval.Milliseconds(), MinRefreshInterval.Milliseconds())
		interval = MinRefreshInterval
	}

	return &Settings[T]{
		namespace:       b.namespace,
		serviceName:     b.serviceName,
		store:           b.store,
		serializer:      b.serializer,
		deserializer:    b.deserializer,
		nodeSelector:    b.nodeSelector,
		shardSelector:   b.shardSelector,
		refreshInterval: interval,
		disableWatchers: b.disableWatchers,
		logger:          logger,
	}, nil
}

func (b Builder[T]) validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("namespace", b.namespace)).
		AddValidator(validation.NewEmptyStringValidator("service name", b.serviceName)).
		AddAssertion(!strings.Contains(strings.Trim(b.serviceName, "/"), "/"), "the [service name] must not contain '/'").
		AddAssertion(b.serializer != nil || b.deserializer != nil, "the [codec] is required").
		AddAssertion(b.nodeSelector != nil, "the [node selector] is required").
		AddAssertion(b.store != nil || strings.TrimSpace(b.connectionString) != "",
			"either the [store] or the [connection string] is required").
		AddAssertion(b.store != nil || b.connector != nil, "the [connector] is required").
		Validate()
}

// connect opens the store and blocks until it is connected, retrying with an
// exponential backoff. The handle is closed when every attempt failed.
func (b Builder[T]) connect(ctx context.Context) (store.Store, error) {
	logger := b.logger
	if logger == nil {
		logger = log.DefaultLogger
	}

	policy := b.connectRetry
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = DefaultConnectRetry().AttemptTimeout
	}

	var handle store.Store
	retrier := retry.NewRetrier(policy.MaxRetries, policy.InitialDelay, policy.MaxDelay)
	err := retrier.RunContext(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
		defer cancel()

		if handle == nil {
			opened, err := b.connector(attemptCtx, b.namespace, b.connectionString, logger)
			if err != nil {
				logger.Warnf("failed to open store for service=(%s): %v", b.serviceName, err)
				return err
			}
			handle = opened
		}

		if err := handle.BlockUntilConnected(attemptCtx); err != nil {
			logger.Warnf("store not connected yet for service=(%s): %v", b.serviceName, err)
			return err
		}
		return nil
	})

	if err != nil {
		if handle != nil {
			if cerr := handle.Close(); cerr != nil {
				logger.Warnf("failed to close store: %v", cerr)
			}
		}
		return nil, fmt.Errorf("%w: %w", rerrors.ErrStoreUnreachable, err)
	}
	return handle, nil
}
