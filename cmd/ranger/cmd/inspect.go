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

package cmd

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/tochemey/ranger/codec"
	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/health"
	"github.com/tochemey/ranger/log"
	"github.com/tochemey/ranger/node"
	"github.com/tochemey/ranger/registry"
	"github.com/tochemey/ranger/selector"
	"github.com/tochemey/ranger/store"
)

func newInspectCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "inspect",
		Short: "Print the instances registered under a service",
		RunE:  runInspect,
	}

	flags := command.Flags()
	flags.Bool("healthy", false, "only print healthy instances")
	flags.Bool("select", false, "print a single instance picked at random")
	return command
}

func runInspect(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := config.Validate(); err != nil {
		return err
	}

	logger := config.logger(cmd)
	builder := registry.NewBuilder[map[string]string]().
		WithNamespace(config.Namespace).
		WithServiceName(config.Service).
		WithConnectionString(config.Connection).
		WithCodec(codec.NewJSON[map[string]string]()).
		WithLogger(logger)

	if config.Healthy {
		builder = builder.WithShardSelector(selector.ShardSelectorFunc[map[string]string](healthyNodes))
	}

	finder, err := registry.Build(cmd.Context(), builder, registry.FactoryFunc[map[string]string, *inspector[map[string]string]](newInspector[map[string]string]))
	if err != nil {
		return err
	}
	defer finder.Close()

	nodes, err := finder.Nodes(cmd.Context())
	if err != nil {
		return err
	}

	var output any = nodes
	if config.Select {
		output = finder.Select(nodes)
	}

	bytea, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bytea))
	return err
}

func healthyNodes(_ func(map[string]string) bool, nodes []*node.ServiceNode[map[string]string]) []*node.ServiceNode[map[string]string] {
	healthy := make([]*node.ServiceNode[map[string]string], 0, len(nodes))
	for _, serviceNode := range nodes {
		if serviceNode.HealthStatus == health.StatusHealthy {
			healthy = append(healthy, serviceNode)
		}
	}
	return healthy
}

// inspector reads the nodes registered under a service
type inspector[T any] struct {
	settings *registry.Settings[T]
	store    store.Store
	logger   log.Logger
}

func newInspector[T any](settings *registry.Settings[T]) (*inspector[T], error) {
	if settings.Deserializer() == nil {
		return nil, rerrors.NewConfigurationError(errors.New("a deserializer is required to read the registrations"))
	}
	return &inspector[T]{
		settings: settings,
		store:    settings.Store(),
		logger:   settings.Logger(),
	}, nil
}

// Nodes returns every node registered under the service. Nodes that vanish
// while being read or that cannot be decoded are skipped.
func (x *inspector[T]) Nodes(ctx context.Context) ([]*node.ServiceNode[T], error) {
	serviceName := x.settings.ServiceName()
	children, err := x.store.Children(ctx, node.ServicePath(serviceName))
	if err != nil {
		if errors.Is(err, rerrors.ErrNoNode) {
			return []*node.ServiceNode[T]{}, nil
		}
		return nil, err
	}

	nodes := make([]*node.ServiceNode[T], 0, len(children))
	for _, child := range children {
		data, err := x.store.GetData(ctx, node.Path(serviceName, child))
		if err != nil {
			if errors.Is(err, rerrors.ErrNoNode) {
				continue
			}
			return nil, err
		}

		serviceNode, err := x.settings.Deserializer().Deserialize(data)
		if err != nil {
			x.logger.Warnf("skipping node=(%s) of service=(%s): %v", child, serviceName, err)
			continue
		}
		nodes = append(nodes, serviceNode)
	}

	if shard := x.settings.ShardSelector(); shard != nil {
		nodes = shard.Nodes(nil, nodes)
	}
	return nodes, nil
}

// Select picks one of the given nodes with the configured node selector
func (x *inspector[T]) Select(nodes []*node.ServiceNode[T]) *node.ServiceNode[T] {
	return x.settings.NodeSelector().Select(nodes)
}

// Close releases the store when it was opened for the inspection
func (x *inspector[T]) Close() error {
	if x.settings.OwnsStore() {
		return x.store.Close()
	}
	return nil
}
