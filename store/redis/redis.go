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

// Package redis implements store.Store on Redis.
//
// Every path is a key. Ephemeral nodes are keys with an expiry that the store
// keeps pushing back while it is open; containers never expire. Each ephemeral
// key has an owner key holding the session token of the store that created it,
// so a store only refreshes and deletes the keys it still owns. Closing the
// store deletes the ephemeral keys it owns.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	goset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"

	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/internal/errorschain"
	"github.com/tochemey/ranger/internal/locker"
	"github.com/tochemey/ranger/store"
)

const ownerPrefix = "ranger:owner:"

var (
	// KEYS: node, owner. ARGV: data, token, ttl in milliseconds
	createScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[3]) then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
	return 1
end
return 0`)

	// KEYS: node, owner. ARGV: token, ttl in milliseconds
	refreshScript = redis.NewScript(`
if redis.call('GET', KEYS[2]) ~= ARGV[1] then
	return 0
end
if redis.call('PEXPIRE', KEYS[1], ARGV[2]) == 0 then
	redis.call('DEL', KEYS[2])
	return 0
end
redis.call('PEXPIRE', KEYS[2], ARGV[2])
return 1`)

	// KEYS: node, owner. ARGV: token
	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[2]) ~= ARGV[1] then
	return 0
end
redis.call('DEL', KEYS[2])
return redis.call('DEL', KEYS[1])`)
)

// Store is the Redis store
type Store struct {
	_ locker.NoCopy

	token   string
	config  *Config
	client  *redis.Client
	owned   goset.Set[string]
	closed  *atomic.Bool
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
}

var _ store.Store = (*Store)(nil)

// New creates the Redis client and starts the session keeper
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, errors.New("store/redis: config is nil")
	}

	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(config.Context)
	x := &Store{
		token:   uuid.NewString(),
		config:  config,
		client:  redis.NewClient(config.options()),
		owned:   goset.NewSet[string](),
		closed:  atomic.NewBool(false),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	go x.keepAlive(ctx)
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
		err := x.client.Ping(opCtx).Err()
		cancel()
		if err == nil {
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

	ctx, cancel := x.withTimeout(ctx)
	defer cancel()

	target := x.key(p)
	for _, key := range append(store.Parents(target), target) {
		if err := x.client.SetNX(ctx, key, "", 0).Err(); err != nil {
			return fmt.Errorf("store/redis: failed to create container=(%s): %w", key, err)
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

	count, err := x.client.Exists(ctx, x.key(p)).Result()
	if err != nil {
		return false, fmt.Errorf("store/redis: failed to check path=(%s): %w", p, err)
	}
	return count > 0, nil
}

// CreateEphemeral implements store.Store.
func (x *Store) CreateEphemeral(ctx context.Context, p string, data []byte) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	ctx, cancel := x.withTimeout(ctx)
	defer cancel()

	key := x.key(p)
	created, err := createScript.Run(ctx, x.client, []string{key, ownerKey(key)}, data, x.token, x.config.TTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("store/redis: failed to create path=(%s): %w", p, err)
	}

	if created == 0 {
		return rerrors.NewErrNodeExists(p)
	}
	x.owned.Add(key)
	return nil
}

// SetData implements store.Store.
func (x *Store) SetData(ctx context.Context, p string, data []byte) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	ctx, cancel := x.withTimeout(ctx)
	defer cancel()

	err := x.client.SetArgs(ctx, x.key(p), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return rerrors.NewErrNoNode(p)
	}

	if err != nil {
		return fmt.Errorf("store/redis: failed to update path=(%s): %w", p, err)
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

	data, err := x.client.Get(ctx, x.key(p)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, rerrors.NewErrNoNode(p)
	}

	if err != nil {
		return nil, fmt.Errorf("store/redis: failed to read path=(%s): %w", p, err)
	}
	return data, nil
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

	prefix := strings.TrimSuffix(x.key(p), "/") + "/"
	names := goset.NewThreadUnsafeSet[string]()
	iter := x.client.Scan(ctx, 0, escapePattern(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		name, _, _ := strings.Cut(strings.TrimPrefix(iter.Val(), prefix), "/")
		if name != "" {
			names.Add(name)
		}
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store/redis: failed to list path=(%s): %w", p, err)
	}

	children := names.ToSlice()
	slices.Sort(children)
	return children, nil
}

// Close stops the session keeper, deletes the ephemeral keys owned by the
// store and closes the client.
func (x *Store) Close() error {
	var err error
	x.once.Do(func() {
		x.closed.Store(true)
		x.cancel()
		<-x.stopped

		ctx, cancel := context.WithTimeout(context.Background(), x.config.Timeout)
		defer cancel()

		err = errorschain.New(errorschain.ReturnAll()).
			AddErrorFn(func() error {
				keys := x.owned.ToSlice()
				if len(keys) == 0 {
					return nil
				}
				_, err := x.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
					for _, key := range keys {
						releaseScript.Eval(ctx, pipe, []string{key, ownerKey(key)}, x.token)
					}
					return nil
				})
				if err != nil && !errors.Is(err, redis.Nil) {
					return fmt.Errorf("store/redis: failed to delete ephemeral nodes: %w", err)
				}
				return nil
			}).
			AddErrorFn(x.client.Close).
			Error()
	})
	return err
}

// keepAlive pushes back the expiry of the owned keys every TTL/3.
// A key that vanished or now belongs to another session is forgotten.
func (x *Store) keepAlive(ctx context.Context) {
	defer close(x.stopped)
	ticker := time.NewTicker(x.config.TTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			x.refresh(ctx)
		}
	}
}

func (x *Store) refresh(ctx context.Context) {
	keys := x.owned.ToSlice()
	if len(keys) == 0 {
		return
	}

	ctx, cancel := x.withTimeout(ctx)
	defer cancel()

	cmds := make([]*redis.Cmd, len(keys))
	_, err := x.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = refreshScript.Eval(ctx, pipe, []string{key, ownerKey(key)}, x.token, x.config.TTL.Milliseconds())
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		x.config.Logger.Warnf("failed to refresh redis session keys: %v", err)
		return
	}

	for i, cmd := range cmds {
		if refreshed, err := cmd.Int(); err == nil && refreshed == 0 {
			x.config.Logger.Warnf("ephemeral node=(%s) expired or taken over before refresh", keys[i])
			x.owned.Remove(keys[i])
		}
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

func (x *Store) key(p string) string {
	return store.Namespaced(x.config.Namespace, p)
}

func ownerKey(key string) string {
	return ownerPrefix + key
}

func (x *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, x.config.Timeout)
}

// escapePattern escapes the glob characters of a SCAN pattern
func escapePattern(s string) string {
	var builder strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			builder.WriteRune('\\')
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
