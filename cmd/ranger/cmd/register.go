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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tochemey/ranger/codec"
	"github.com/tochemey/ranger/health"
	"github.com/tochemey/ranger/internal/validation"
	"github.com/tochemey/ranger/node"
	"github.com/tochemey/ranger/provider"
	"github.com/tochemey/ranger/registry"
)

func newRegisterCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "register",
		Short: "Register an instance and keep its health current until interrupted",
		RunE:  runRegister,
	}

	flags := command.Flags()
	flags.String("host", "127.0.0.1", "host the instance is reachable at")
	flags.Int("port", 0, "port the instance is reachable at")
	flags.Duration("interval", time.Second, "heartbeat interval")
	flags.Duration("stale-threshold", provider.DefaultStaleUpdateThreshold, "republish an unchanged health status after this delay")
	flags.Duration("shutdown-timeout", 5*time.Second, "maximum time to wait for a clean shutdown")
	flags.StringSlice("health-address", nil, "TCP address that must accept connections for the instance to be healthy")
	flags.StringToString("metadata", nil, "node data as key=value pairs")
	return command
}

func runRegister(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	serviceNode := node.New(config.Host, config.Port, config.Metadata)
	if err := validation.New(validation.FailFast()).
		AddValidator(config).
		AddValidator(validation.NewTCPAddressValidator(serviceNode.Representation())).
		Validate(); err != nil {
		return err
	}

	logger := config.logger(cmd)
	defer func() { _ = logger.Flush() }()

	checks := make([]health.Check, 0, len(config.HealthAddresses))
	for _, address := range config.HealthAddresses {
		checks = append(checks, health.NewTCPCheck(address))
	}

	builder := registry.NewBuilder[map[string]string]().
		WithNamespace(config.Namespace).
		WithServiceName(config.Service).
		WithConnectionString(config.Connection).
		WithCodec(codec.NewJSON[map[string]string]()).
		WithRefreshInterval(config.Interval).
		WithLogger(logger)

	serviceProvider, err := registry.Build(cmd.Context(), builder, provider.NewFactory(serviceNode,
		provider.WithHealthChecks(checks...),
		provider.WithStaleUpdateThreshold(config.StaleThreshold)))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := func() error {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.ShutdownTimeout)
		defer cancel()
		return serviceProvider.Stop(stopCtx)
	}

	if err := serviceProvider.Start(ctx); err != nil {
		_ = shutdown()
		return err
	}

	<-ctx.Done()
	logger.Infof("shutting down service=(%s) instance=(%s)", config.Service, serviceNode.Representation())
	return shutdown()
}
