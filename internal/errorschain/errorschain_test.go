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

package errorschain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorsChain(t *testing.T) {
	t.Run("With ReturnFirst", func(t *testing.T) {
		e1 := errors.New("err1")
		e2 := errors.New("err2")

		actual := New(ReturnFirst()).AddError(nil).AddError(e1).AddError(e2).Error()
		require.ErrorIs(t, actual, e1)
		require.NotErrorIs(t, actual, e2)
	})
	t.Run("With only nil errors", func(t *testing.T) {
		require.NoError(t, New(ReturnAll()).AddError(nil).AddErrorFn(func() error { return nil }).Error())
	})
	t.Run("With AddErrorFns ReturnFirst skips the remaining steps", func(t *testing.T) {
		var calls []string
		fn1 := func() error { calls = append(calls, "fn1"); return errors.New("err1") }
		fn2 := func() error { calls = append(calls, "fn2"); return nil }

		actual := New(ReturnFirst()).AddErrorFns(fn1, fn2).Error()
		require.EqualError(t, actual, "err1")
		require.Equal(t, []string{"fn1"}, calls)
	})
	t.Run("With AddErrorFn ReturnAll runs every step", func(t *testing.T) {
		var calls []string
		fn1 := func() error { calls = append(calls, "fn1"); return errors.New("err1") }
		fn2 := func() error { calls = append(calls, "fn2"); return nil }
		fn3 := func() error { calls = append(calls, "fn3"); return errors.New("err3") }

		actual := New(ReturnAll()).AddErrorFn(fn1).AddErrorFn(fn2).AddErrorFn(fn3).Error()
		require.EqualError(t, actual, "err1; err3")
		require.Equal(t, []string{"fn1", "fn2", "fn3"}, calls)
	})
}
