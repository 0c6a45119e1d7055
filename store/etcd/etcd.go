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

// Package etcd implements store.Store on top of etcd.
//
// The session is a lease granted when the store is created and kept alive
// until Close. Ephemeral nodes are keys attached to that lease; containers are
// keys without lease.
package etcd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	goset "github.com/deckarep/golang-set/v2"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
	"go.uber.org/atomic"

	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/internal/errorschain"
	"github.com/tochemey/ranger/internal/locker"
	"github.com/tochemey/ranger/store"
)

// Store is the etcd store
type Store struct {
	_ locker.NoCopy

	config          *Config
	client          *clientv3.Client
	kv              clientv3.KV
	lease           clientv3.Lease
	leaseID         clientv3.LeaseID
	cancelKeepAlive context.CancelFunc
	keepAliveDone   chan struct{}
	closed          *atomic.Bool
	once            sync.Once
}

var _ store.Store = (*Store)(nil)

// New connects to etcd and opens a session lease
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, errors.New("store/etcd: config is nil")
	}

	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
		TLS:         config.TLS,
		Username:    config.Username,
		Password:    config.Password,
		Context:     config.Context,
	})
	if err != nil {
		return nil, err
	}

	kv, lease := client.KV, client.Lease
	if prefix := strings.Trim(config.Namespace, "/"); prefix != "" {
		kv = namespace.NewKV(client.KV, prefix)
		lease = namespace.NewLease(client.Lease, prefix)
	}

	x := &Store{
		config:        config,
		client:        client,
		kv:            kv,
		lease:         lease,
		keepAliveDone: make(chan struct{}),
		closed:        atomic.NewBool(false),
	}

	if err := x.openSession(); err != nil {
		if cerr := client.Close(); cerr != nil {
			return nil, errors.Join(err, fmt.Errorf("failed to close etcd client: %w", cerr))
		}
		return nil, err
	}
	return x, nil
}

// BlockUntilConnected implements store.Store.
func (x *Store) BlockUntilConnected(ctx context.Context) error {
	ticker := time.NewTicker(x.config.PollInterval)
	defer ticker.Stop()
	for {
		if x.closed.Load() {
			return rerrors.ErrStoreClosed
		}

		if x.reachable(ctx) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// EnsureContainer implements store.Store.
func (x *Store) EnsureContainer(ctx context.Context, p string) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	opCtx, cancel := x.withTimeout(ctx)
	defer cancel()

	target := store.Clean(p)
	for _, key := range append(store.Parents(target), target) {
		_, err := x.kv.Txn(opCtx).
			If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
			Then(clientv3.OpPut(key, "")).
			Commit()
		if err != nil {
			return fmt.Errorf("store/etcd: failed to create container=(%s): %w", key, err)
		}
	}
	return nil
}

// Exists implements store.Store.
func (x *Store) Exists(ctx context.Context, p string) (bool, error) {
	if err := x.check(ctx); err != nil {
		return false, err
	}

	opCtx, cancel := x.withTimeout(ctx)
	defer cancel()

	resp, err := x.kv.Get(opCtx, store.Clean(p), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("store/etcd: failed to check path=(%s): %w", p, err)
	}
	return resp.Count > 0, nil
}

// CreateEphemeral implements store.Store.
func (x *Store) CreateEphemeral(ctx context.Context, p string, data []byte) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	opCtx, cancel := x.withTimeout(ctx)
	defer cancel()

	key := store.Clean(p)
	resp, err := x.kv.Txn(opCtx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(data), clientv3.WithLease(x.leaseID))).
		Commit()
	if err != nil {
		return fmt.Errorf("store/etcd: failed to create path=(%s): %w", p, err)
	}

	if !resp.Succeeded {
		return rerrors.NewErrNodeExists(p)
	}
	return nil
}

// SetData implements store.Store.
func (x *Store) SetData(ctx context.Context, p string, data []byte) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	opCtx, cancel := x.withTimeout(ctx)
	defer cancel()

	key := store.Clean(p)
	resp, err := x.kv.Txn(opCtx).
		If(clientv3.Compare(clientv3.CreateRevision(key), ">", 0)).
		Then(clientv3.OpPut(key, string(data), clientv3.WithIgnoreLease())).
		Commit()
	if err != nil {
		return fmt.Errorf("store/etcd: failed to update path=(%s): %w", p, err)
	}

	if !resp.Succeeded {
		return rerrors.NewErrNoNode(p)
	}
	return nil
}

// GetData implements store.Store.
func (x *Store) GetData(ctx context.Context, p string) ([]byte, error) {
	if err := x.check(ctx); err != nil {
		return nil, err
	}

	opCtx, cancel := x.withTimeout(ctx)
	defer cancel()

	resp, err := x.kv.Get(opCtx, store.Clean(p))
	if err != nil {
		return nil, fmt.Errorf("store/etcd: failed to read path=(%s): %w", p, err)
	}

	if len(resp.Kvs) == 0 {
		return nil, rerrors.NewErrNoNode(p)
	}
	return resp.Kvs[0].Value, nil
}

// Children implements store.Store.
func (x *Store) Children(ctx context.Context, p string) ([]string, error) {
	exists, err := x.Exists(ctx, p)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, rerrors.NewErrNoNode(p)
	}

	opCtx, cancel := x.withTimeout(ctx)
	defer cancel()

	prefix := strings.TrimSuffix(store.Clean(p), "/") + "/"
	resp, err := x.kv.Get(opCtx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("store/etcd: failed to list path=(%s): %w", p, err)
	}

	names := goset.NewThreadUnsafeSet[string]()
	for _, kv := range resp.Kvs {
		name, _, _ := strings.Cut(strings.TrimPrefix(string(kv.Key), prefix), "/")
		if name != "" {
			names.Add(name)
		}
	}

	children := names.ToSlice()
	slices.Sort(children)
	return children, nil
}

// Close revokes the session lease, which deletes the ephemeral nodes, and
// closes the client.
func (x *Store) Close() error {
	var err error
	x.once.Do(func() {
		x.closed.Store(true)
		x.cancelKeepAlive()
		<-x.keepAliveDone

		ctx, cancel := context.WithTimeout(context.Background(), x.config.Timeout)
		defer cancel()

		err = errorschain.New(errorschain.ReturnAll()).
			AddErrorFn(func() error {
				if _, err := x.lease.Revoke(ctx, x.leaseID); err != nil {
					return fmt.Errorf("store/etcd: failed to revoke session lease: %w", err)
				}
				return nil
			}).
			AddErrorFn(func() error {
				if err := x.client.Close(); err != nil {
					return fmt.Errorf("store/etcd: failed to close etcd client: %w", err)
				}
				return nil
			}).
			Error()
	})
	return err
}

func (x *Store) openSession() error {
	ctx, cancel := context.WithTimeout(x.config.Context, x.config.DialTimeout)
	defer cancel()

	if _, err := x.client.Status(ctx, x.config.Endpoints[0]); err != nil {
		return fmt.Errorf("failed to connect to etcd: %w", err)
	}

	grant, err := x.lease.Grant(ctx, int64(x.config.TTL.Seconds()))
	if err != nil {
		return fmt.Errorf("store/etcd: failed to create session lease: %w", err)
	}
	x.leaseID = grant.ID

	keepAliveCtx, keepAliveCancel := context.WithCancel(x.config.Context)
	responses, err := x.lease.KeepAlive(keepAliveCtx, x.leaseID)
	if err != nil {
		keepAliveCancel()
		return fmt.Errorf("store/etcd: failed to start keep-alive: %w", err)
	}
	x.cancelKeepAlive = keepAliveCancel

	go func() {
		defer close(x.keepAliveDone)
		for range responses {
			// drained to keep the channel from blocking
		}
		if keepAliveCtx.Err() == nil {
			x.config.Logger.Warnf("etcd session lease=(%d) is no longer kept alive", x.leaseID)
		}
	}()
	return nil
}

func (x *Store) reachable(ctx context.Context) bool {
	opCtx, cancel := x.withTimeout(ctx)
	defer cancel()
	for _, endpoint := range x.client.Endpoints() {
		if _, err := x.client.Status(opCtx, endpoint); err == nil {
			return true
		}
	}
	return false
}

func (x *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if x.closed.Load() {
		return rerrors.ErrStoreClosed
	}
	return nil
}

func (x *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, x.config.Timeout)
}
