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
	"errors"

	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/node"
	"github.com/tochemey/ranger/registry"
)

// NewFactory returns a registry.Factory building a Provider for the given node.
// The refresh interval of the settings becomes the heartbeat interval.
func NewFactory[T any](serviceNode *node.ServiceNode[T], opts ...Option) registry.Factory[T, *Provider[T]] {
	return registry.FactoryFunc[T, *Provider[T]](func(settings *registry.Settings[T]) (*Provider[T], error) {
		if settings.Serializer() == nil {
			return nil, rerrors.NewConfigurationError(errors.New("a serializer is required to register a service"))
		}

		options := make([]Option, 0, len(opts)+2)
		options = append(options, WithLogger(settings.Logger()))
		options = append(options, opts...)
		options = append(options, WithHeartbeatInterval(settings.RefreshInterval()))
		return New(settings.ServiceName(), settings.Store(), settings.Serializer(), serviceNode, options...)
	})
}
