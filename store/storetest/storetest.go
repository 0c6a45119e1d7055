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

// Package storetest checks that a store.Store backend honors the coordination
// primitives expected by the registration engine.
package storetest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/store"
)

// Opener opens a new handle, with its own session, on the backend under test.
// Every handle returned for a given test shares the same namespace.
type Opener func(t *testing.T) store.Store

// Run runs the conformance tests against the backend
func Run(t *testing.T, open Opener) {
	t.Helper()

	t.Run("BlockUntilConnected", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		require.NoError(t, s.BlockUntilConnected(t.Context()))
	})
	t.Run("EnsureContainer is idempotent", func(t *testing.T) {
		ctx := t.Context()
		s := open(t)
		defer s.Close()

		require.NoError(t, s.EnsureContainer(ctx, "/containers/orders"))
		require.NoError(t, s.EnsureContainer(ctx, "/containers/orders"))

		exists, err := s.Exists(ctx, "/containers/orders")
		require.NoError(t, err)
		assert.True(t, exists)

		children, err := s.Children(ctx, "/containers")
		require.NoError(t, err)
		assert.Equal(t, []string{"orders"}, children)
	})
	t.Run("CreateEphemeral then read and update", func(t *testing.T) {
		ctx := t.Context()
		s := open(t)
		defer s.Close()

		require.NoError(t, s.EnsureContainer(ctx, "/crud"))
		path := "/crud/10.0.0.5:9000"

		exists, err := s.Exists(ctx, path)
		require.NoError(t, err)
		require.False(t, exists)

		require.NoError(t, s.CreateEphemeral(ctx, path, []byte("v1")))
		data, err := s.GetData(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), data)

		err = s.CreateEphemeral(ctx, path, []byte("v2"))
		require.ErrorIs(t, err, rerrors.ErrNodeExists)

		require.NoError(t, s.SetData(ctx, path, []byte("v2")))
		data, err = s.GetData(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), data)
	})
	t.Run("missing node", func(t *testing.T) {
		ctx := t.Context()
		s := open(t)
		defer s.Close()

		require.NoError(t, s.EnsureContainer(ctx, "/missing"))
		err := s.SetData(ctx, "/missing/10.0.0.5:9000", []byte("v1"))
		require.ErrorIs(t, err, rerrors.ErrNoNode)

		_, err = s.GetData(ctx, "/missing/10.0.0.5:9000")
		require.ErrorIs(t, err, rerrors.ErrNoNode)
	})
	t.Run("Children lists the direct children", func(t *testing.T) {
		ctx := t.Context()
		s := open(t)
		defer s.Close()

		require.NoError(t, s.EnsureContainer(ctx, "/listing"))
		require.NoError(t, s.CreateEphemeral(ctx, "/listing/10.0.0.5:9000", []byte("a")))
		require.NoError(t, s.CreateEphemeral(ctx, "/listing/10.0.0.6:9000", []byte("b")))

		children, err := s.Children(ctx, "/listing")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"10.0.0.5:9000", "10.0.0.6:9000"}, children)
	})
	t.Run("closing the session removes its ephemeral nodes", func(t *testing.T) {
		ctx := t.Context()
		owner := open(t)
		observer := open(t)
		defer observer.Close()

		require.NoError(t, owner.EnsureContainer(ctx, "/sessions"))
		path := "/sessions/10.0.0.5:9000"
		require.NoError(t, owner.CreateEphemeral(ctx, path, []byte("previous")))

		err := observer.CreateEphemeral(ctx, path, []byte("next"))
		require.ErrorIs(t, err, rerrors.ErrNodeExists)

		require.NoError(t, owner.Close())
		require.Eventually(t, func() bool {
			exists, err := observer.Exists(ctx, path)
			return err == nil && !exists
		}, 30*time.Second, 100*time.Millisecond)

		require.NoError(t, observer.CreateEphemeral(ctx, path, []byte("next")))
		exists, err := observer.Exists(ctx, "/sessions")
		require.NoError(t, err)
		assert.True(t, exists)
	})
	t.Run("closed store", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Close())
		_, err := s.Exists(t.Context(), "/closed")
		require.Error(t, err)
	})
}
