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

package zookeeper

import (
	"context"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/log"
	"github.com/tochemey/ranger/store"
	"github.com/tochemey/ranger/store/storetest"
)

func TestConfig(t *testing.T) {
	t.Run("Sanitize sets the defaults", func(t *testing.T) {
		config := &Config{Servers: []string{" 127.0.0.1:2181 ", ""}}
		config.Sanitize()
		assert.Equal(t, []string{"127.0.0.1:2181"}, config.Servers)
		assert.Equal(t, 15*time.Second, config.SessionTimeout)
		assert.Equal(t, 50*time.Millisecond, config.PollInterval)
		assert.Equal(t, zk.WorldACL(zk.PermAll), config.ACL)
		assert.Equal(t, log.DefaultLogger, config.Logger)
		require.NoError(t, config.Validate())
	})
	t.Run("Validate", func(t *testing.T) {
		require.Error(t, (&Config{}).Validate())
		require.Error(t, (&Config{Servers: []string{"127.0.0.1"}}).Validate())
	})
	t.Run("New with invalid config", func(t *testing.T) {
		s, err := New(&Config{})
		require.Error(t, err)
		require.Nil(t, s)
	})
}

func TestStore(t *testing.T) {
	server := startZooKeeper(t)

	t.Run("conformance", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) store.Store {
			s, err := New(&Config{
				Servers:        []string{server},
				Namespace:      "conformance",
				SessionTimeout: 4 * time.Second,
				Logger:         log.DiscardLogger,
			})
			require.NoError(t, err)
			return s
		})
	})
	t.Run("BlockUntilConnected honors the context", func(t *testing.T) {
		s, err := New(&Config{
			Servers:        []string{"127.0.0.1:1"},
			SessionTimeout: time.Second,
			Logger:         log.DiscardLogger,
		})
		require.NoError(t, err)
		defer s.Close()

		ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, s.BlockUntilConnected(ctx), context.DeadlineExceeded)

		require.NoError(t, s.Close())
		require.ErrorIs(t, s.BlockUntilConnected(t.Context()), rerrors.ErrStoreClosed)
	})
}

func startZooKeeper(t *testing.T) string {
	t.Helper()
	container, err := testcontainers.Run(t.Context(), "zookeeper:3.9",
		testcontainers.WithExposedPorts("2181/tcp"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("2181/tcp")))
	require.NoError(t, err)
	t.Cleanup(func() {
		err := testcontainers.TerminateContainer(container)
		require.NoError(t, err)
	})

	endpoint, err := container.PortEndpoint(t.Context(), "2181/tcp", "")
	require.NoError(t, err)
	return endpoint
}
