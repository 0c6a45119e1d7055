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

// Package zookeeper implements store.Store on top of ZooKeeper.
// Ephemeral nodes are bound to the ZooKeeper session of the handle.
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"go.uber.org/atomic"

	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/internal/locker"
	"github.com/tochemey/ranger/log"
	"github.com/tochemey/ranger/store"
)

// Store is the ZooKeeper store
type Store struct {
	_ locker.NoCopy

	config *Config
	conn   *zk.Conn
	closed *atomic.Bool
	done   chan struct{}
	once   sync.Once
}

var _ store.Store = (*Store)(nil)

// New connects to ZooKeeper. The connection is established in the background;
// use BlockUntilConnected to wait for the session.
func New(config *Config) (*Store, error) {
	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	conn, _, err := zk.Connect(config.Servers, config.SessionTimeout,
		zk.WithLogger(&logger{config.Logger}),
		zk.WithEventCallback(func(event zk.Event) {
			if event.Type == zk.EventSession {
				config.Logger.Debugf("zookeeper session state=(%s) server=(%s)", event.State, event.Server)
			}
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}

	return &Store{
		config: config,
		conn:   conn,
		closed: atomic.NewBool(false),
		done:   make(chan struct{}),
	}, nil
}

// BlockUntilConnected implements store.Store.
func (x *Store) BlockUntilConnected(ctx context.Context) error {
	ticker := time.NewTicker(x.config.PollInterval)
	defer ticker.Stop()
	for {
		if x.closed.Load() {
			return rerrors.ErrStoreClosed
		}

		if x.conn.State() == zk.StateHasSession {
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
	target := x.path(p)
	for _, segment := range append(store.Parents(target), target) {
		if err := x.check(ctx); err != nil {
			return err
		}

		_, err := x.conn.Create(segment, nil, zk.FlagPersistent, x.config.ACL)
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return x.translate(p, err)
		}
	}
	return nil
}

// Exists implements store.Store.
func (x *Store) Exists(ctx context.Context, p string) (bool, error) {
	if err := x.check(ctx); err != nil {
		return false, err
	}

	exists, _, err := x.conn.Exists(x.path(p))
	if err != nil {
		return false, x.translate(p, err)
	}
	return exists, nil
}

// CreateEphemeral implements store.Store.
func (x *Store) CreateEphemeral(ctx context.Context, p string, data []byte) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	if _, err := x.conn.Create(x.path(p), data, zk.FlagEphemeral, x.config.ACL); err != nil {
		return x.translate(p, err)
	}
	return nil
}

// SetData implements store.Store.
func (x *Store) SetData(ctx context.Context, p string, data []byte) error {
	if err := x.check(ctx); err != nil {
		return err
	}

	if _, err := x.conn.Set(x.path(p), data, -1); err != nil {
		return x.translate(p, err)
	}
	return nil
}

// GetData implements store.Store.
func (x *Store) GetData(ctx context.Context, p string) ([]byte, error) {
	if err := x.check(ctx); err != nil {
		return nil, err
	}

	data, _, err := x.conn.Get(x.path(p))
	if err != nil {
		return nil, x.translate(p, err)
	}
	return data, nil
}

// Children implements store.Store.
func (x *Store) Children(ctx context.Context, p string) ([]string, error) {
	if err := x.check(ctx); err != nil {
		return nil, err
	}

	children, _, err := x.conn.Children(x.path(p))
	if err != nil {
		return nil, x.translate(p, err)
	}
	return children, nil
}

// Close implements store.Store.
func (x *Store) Close() error {
	x.once.Do(func() {
		x.closed.Store(true)
		close(x.done)
		x.conn.Close()
	})
	return nil
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

func (x *Store) path(p string) string {
	return store.Namespaced(x.config.Namespace, p)
}

func (x *Store) translate(p string, err error) error {
	switch {
	case errors.Is(err, zk.ErrNodeExists):
		return rerrors.NewErrNodeExists(p)
	case errors.Is(err, zk.ErrNoNode):
		return rerrors.NewErrNoNode(p)
	case errors.Is(err, zk.ErrConnectionClosed), errors.Is(err, zk.ErrClosing):
		return fmt.Errorf("%w: %w", rerrors.ErrStoreClosed, err)
	default:
		return fmt.Errorf("zookeeper operation on path=(%s) failed: %w", p, err)
	}
}

// logger bridges the client logs to log.Logger
type logger struct {
	log.Logger
}

var _ zk.Logger = (*logger)(nil)

func (l *logger) Printf(format string, args ...any) {
	l.Debugf(format, args...)
}
