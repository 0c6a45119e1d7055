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

// Package consul implements store.Store on the Consul KV store.
//
// The store opens a Consul session with the delete behavior. Ephemeral nodes
// are keys locked by that session: they are deleted when the session is
// destroyed or expires.
package consul

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	goset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/consul/api"
	"go.uber.org/atomic"

	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/internal/errorschain"
	"github.com/tochemey/ranger/internal/locker"
	"github.com/tochemey/ranger/store"
)

const sessionName = "ranger"

// Store is the Consul store
type Store struct {
	_ locker.NoCopy

	config    *Config
	client    *api.Client
	sessionID string
	done      chan struct{}
	renewed   chan struct{}
	closed    *atomic.Bool
	once      sync.Once
}

var _ store.Store = (*Store)(nil)

// New creates the Consul client and opens the session
func New(config *Config) (*Store, error) {
	if config == nil {
		config = new(Config)
	}

	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("consul store config is invalid: %w", err)
	}

	consulConfig := api.DefaultConfig()
	consulConfig.Address = config.Address
	consulConfig.Scheme = config.Scheme
	consulConfig.Datacenter = config.Datacenter
	consulConfig.Token = config.Token

	client, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	ctx, cancel := context.WithTimeout(config.Context, config.Timeout)
	defer cancel()

	sessionID, _, err := client.Session().Create(&api.SessionEntry{
		Name:      sessionName,
		Behavior:  api.SessionBehaviorDelete,
		TTL:       config.SessionTTL.String(),
		LockDelay: time.Millisecond,
	}, (&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create consul session: %w", err)
	}

	x := &Store{
		config:    config,
		client:    client,
		sessionID: sessionID,
		done:      make(chan struct{}),
		renewed:   make(chan struct{}),
		closed:    atomic.NewBool(false),
	}

	go x.renew()
	return x, nil
}

// BlockUntilConnected implements store.Store.
func (x *Store) BlockUntilConnected(ctx context.Context) error {
	ticker := time.NewTicker(x.config.PollInterval)
	defer ticker.Stop()
	for {
		if err := x.check(ctx); err != nil {
			return err
		}

		opCtx, cancel := x.withTimeout(ctx)
		leader, err := x.client.Status().LeaderWithQueryOptions(x.query(opCtx))
		cancel()
		if err == nil && leader != "" {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-x.done:
			return rerrors.ErrStoreClosed
		case <-ticker.C:
		}
	}
}

// EnsureContainer implements store.Store.
func (x *Store) EnsureContainer(ctx context.Context, p string) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	ctx, cancel := x.withTimeout(ctx)
	defer cancel()

	target := x.key(p)
	segments := strings.Split(target, "/")
	for i := range segments {
		key := strings.Join(segments[:i+1], "/")
		if key == "" {
			continue
		}
		// a zero ModifyIndex makes the write conditional on the key being absent
		if _, _, err := x.client.KV().CAS(&api.KVPair{Key: key}, x.write(ctx)); err != nil {
			return fmt.Errorf("store/consul: failed to create container=(%s): %w", key, err)
		}
	}
	return nil
}

// Exists implements store.Store.
func (x *Store) Exists(ctx context.Context, p string) (bool, error) {
	if err := x.check(ctx); err != nil {
		return false, err
	}

	ctx, cancel := x.withTimeout(ctx)
	defer cancel()

	pair, _, err := x.client.KV().Get(x.key(p), x.query(ctx))
	if err != nil {
		return false, fmt.Errorf("store/consul: failed to check path=(%s): %w", p, err)
	}
	return pair != nil, nil
}

// CreateEphemeral implements store.Store.
func (x *Store) CreateEphemeral(ctx context.Context, p string, data []byte) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	ctx, cancel := x.withTimeout(ctx)
	defer cancel()

	key := x.key(p)
	ops := api.TxnOps{
		&api.TxnOp{KV: &api.KVTxnOp{Verb: api.KVCheckNotExists, Key: key}},
		&api.TxnOp{KV: &api.KVTxnOp{Verb: api.KVLock, Key: key, Value: data, Session: x.sessionID}},
	}

	ok, resp, _, err := x.client.Txn().Txn(ops, x.query(ctx))
	if err != nil {
		return fmt.Errorf("store/consul: failed to create path=(%s): %w", p, err)
	}

	if !ok {
		if failedAt(resp, 0) {
			return rerrors.NewErrNodeExists(p)
		}
		return fmt.Errorf("store/consul: failed to create path=(%s): %w", p, txnError(resp))
	}
	return nil
}

// SetData implements store.Store.
func (x *Store) SetData(ctx context.Context, p string, data []byte) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	ctx, cancel := x.withTimeout(ctx)
	defer cancel()

	key := x.key(p)
	// a plain set keeps the session holding the key
	ops := api.TxnOps{
		&api.TxnOp{KV: &api.KVTxnOp{Verb: api.KVGet, Key: key}},
		&api.TxnOp{KV: &api.KVTxnOp{Verb: api.KVSet, Key: key, Value: data}},
	}

	ok, resp, _, err := x.client.Txn().Txn(ops, x.query(ctx))
	if err != nil {
		return fmt.Errorf("store/consul: failed to update path=(%s): %w", p, err)
	}

	if !ok {
		if failedAt(resp, 0) {
			return rerrors.NewErrNoNode(p)
		}
		return fmt.Errorf("store/consul: failed to update path=(%s): %w", p, txnError(resp))
	}
	return nil
}

// GetData implements store.Store.
func (x *Store) GetData(ctx context.Context, p string) ([]byte, error) {
	if err := x.check(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := x.withTimeout(ctx)
	defer cancel()

	pair, _, err := x.client.KV().Get(x.key(p), x.query(ctx))
	if err != nil {
		return nil, fmt.Errorf("store/consul: failed to read path=(%s): %w", p, err)
	}

	if pair == nil {
		return nil, rerrors.NewErrNoNode(p)
	}
	return pair.Value, nil
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

	ctx, cancel := x.withTimeout(ctx)
	defer cancel()

	prefix := x.key(p) + "/"
	keys, _, err := x.client.KV().Keys(prefix, "/", x.query(ctx))
	if err != nil {
		return nil, fmt.Errorf("store/consul: failed to list path=(%s): %w", p, err)
	}

	names := goset.NewThreadUnsafeSet[string]()
	for _, key := range keys {
		name := strings.TrimSuffix(strings.TrimPrefix(key, prefix), "/")
		if name != "" {
			names.Add(name)
		}
	}

	children := names.ToSlice()
	slices.Sort(children)
	return children, nil
}

// Close destroys the session, which deletes the ephemeral nodes.
func (x *Store) Close() error {
	var err error
	x.once.Do(func() {
		x.closed.Store(true)
		close(x.done)
		<-x.renewed

		ctx, cancel := context.WithTimeout(context.Background(), x.config.Timeout)
		defer cancel()

		err = errorschain.New(errorschain.ReturnFirst()).
			AddErrorFn(func() error {
				if _, err := x.client.Session().Destroy(x.sessionID, x.write(ctx)); err != nil {
					return fmt.Errorf("store/consul: failed to destroy session=(%s): %w", x.sessionID, err)
				}
				return nil
			}).
			Error()
	})
	return err
}

func (x *Store) renew() {
	defer close(x.renewed)
	err := x.client.Session().RenewPeriodic(x.config.SessionTTL.String(), x.sessionID,
		(&api.WriteOptions{}).WithContext(x.config.Context), x.done)
	if err != nil && !x.closed.Load() {
		x.config.Logger.Errorf("consul session=(%s) is no longer renewed: %v", x.sessionID, err)
	}
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

// key maps a store path to a Consul key, which has no leading slash
func (x *Store) key(p string) string {
	return strings.TrimPrefix(store.Namespaced(x.config.Namespace, p), "/")
}

func (x *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, x.config.Timeout)
}

func (x *Store) query(ctx context.Context) *api.QueryOptions {
	return (&api.QueryOptions{}).WithContext(ctx)
}

func (x *Store) write(ctx context.Context) *api.WriteOptions {
	return (&api.WriteOptions{}).WithContext(ctx)
}

func failedAt(resp *api.TxnResponse, index int) bool {
	if resp == nil {
		return false
	}
	for _, txnErr := range resp.Errors {
		if txnErr.OpIndex == index {
			return true
		}
	}
	return false
}

func txnError(resp *api.TxnResponse) error {
	if resp == nil || len(resp.Errors) == 0 {
		return errors.New("transaction rolled back")
	}
	errs := make([]error, 0, len(resp.Errors))
	for _, txnErr := range resp.Errors {
		errs = append(errs, fmt.Errorf("op=(%d): %s", txnErr.OpIndex, txnErr.What))
	}
	return errors.Join(errs...)
}
