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

package etcd

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	testcontainer "github.com/testcontainers/testcontainers-go/modules/etcd"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/atomic"

	"github.com/tochemey/ranger/log"
	"github.com/tochemey/ranger/store"
	"github.com/tochemey/ranger/store/storetest"
)

func TestConfig(t *testing.T) {
	t.Run("Sanitize sets the defaults", func(t *testing.T) {
		config := &Config{Endpoints: []string{"127.0.0.1:2379"}}
		config.Sanitize()
		assert.NotNil(t, config.Context)
		assert.Equal(t, 10*time.Second, config.TTL)
		assert.Equal(t, 5*time.Second, config.DialTimeout)
		assert.Equal(t, 5*time.Second, config.Timeout)
		assert.Equal(t, 100*time.Millisecond, config.PollInterval)
		assert.Equal(t, log.DefaultLogger, config.Logger)
		require.NoError(t, config.Validate())
	})
	t.Run("Validate", func(t *testing.T) {
		config := &Config{}
		config.Sanitize()
		require.Error(t, config.Validate())

		config = &Config{Endpoints: []string{"127.0.0.1:2379"}, TTL: time.Millisecond}
		config.Sanitize()
		require.Error(t, config.Validate())
	})
	t.Run("New with nil config", func(t *testing.T) {
		s, err := New(nil)
		require.Error(t, err)
		require.Nil(t, s)
	})
}

func TestStore(t *testing.T) {
	endpoints := startEtcd(t)
	namespaces := atomic.NewInt32(0)

	open := func(t *testing.T, namespace string) *Store {
		s, err := New(&Config{
			Context:   t.Context(),
			Endpoints: endpoints,
			Namespace: namespace,
			TTL:       5 * time.Second,
			Logger:    log.DiscardLogger,
		})
		require.NoError(t, err)
		return s
	}

	t.Run("conformance", func(t *testing.T) {
		storetest.Run(t, func(t *testing.T) store.Store {
			return open(t, "conformance")
		})
	})
	t.Run("namespace prefixes every key", func(t *testing.T) {
		ctx := t.Context()
		ns := fmt.Sprintf("prod-%d", namespaces.Inc())
		s := open(t, ns)
		defer s.Close()

		require.NoError(t, s.EnsureContainer(ctx, "/orders"))
		require.NoError(t, s.CreateEphemeral(ctx, "/orders/10.0.0.5:9000", []byte("node")))

		resp, err := s.client.Get(ctx, ns+"/orders/10.0.0.5:9000")
		require.NoError(t, err)
		require.Len(t, resp.Kvs, 1)
		assert.Equal(t, "node", string(resp.Kvs[0].Value))
		assert.EqualValues(t, s.leaseID, resp.Kvs[0].Lease)
	})
	t.Run("SetData keeps the session lease", func(t *testing.T) {
		ctx := t.Context()
		ns := fmt.Sprintf("prod-%d", namespaces.Inc())
		s := open(t, ns)
		defer s.Close()

		require.NoError(t, s.EnsureContainer(ctx, "/orders"))
		require.NoError(t, s.CreateEphemeral(ctx, "/orders/10.0.0.5:9000", []byte("v1")))
		require.NoError(t, s.SetData(ctx, "/orders/10.0.0.5:9000", []byte("v2")))

		resp, err := s.client.Get(ctx, ns+"/orders/10.0.0.5:9000", clientv3.WithPrefix())
		require.NoError(t, err)
		require.Len(t, resp.Kvs, 1)
		assert.EqualValues(t, s.leaseID, resp.Kvs[0].Lease)
	})
	t.Run("BlockUntilConnected", func(t *testing.T) {
		s := open(t, "connect")
		require.NoError(t, s.BlockUntilConnected(t.Context()))
		require.NoError(t, s.Close())
		require.Error(t, s.BlockUntilConnected(t.Context()))
	})
}

func startEtcd(t *testing.T) []string {
	t.Helper()
	container, err := testcontainer.Run(t.Context(), "gcr.io/etcd-development/etcd:v3.5.14")
	require.NoError(t, err)
	t.Cleanup(func() {
		err := testcontainers.TerminateContainer(container)
		require.NoError(t, err)
	})

	endpoints, err := container.ClientEndpoints(t.Context())
	require.NoError(t, err)
	return endpoints
}
