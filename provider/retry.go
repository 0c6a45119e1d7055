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

package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// RetryPolicy governs the registration retry when the node path is still
// held, typically by the session of a previous instance that has not expired.
// The wait between attempts is fixed.
type RetryPolicy struct {
	// Interval is the wait between two attempts
	Interval time.Duration
	// MaxAttempts bounds the number of attempts, the first one included.
	// Zero means unbounded.
	MaxAttempts int
	// MaxElapsed bounds the time spent retrying. Zero means unbounded.
	MaxElapsed time.Duration
}

// DefaultRetryPolicy retries every second for about a minute
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Interval:    time.Second,
		MaxAttempts: 60,
	}
}

func (r RetryPolicy) backOff(ctx context.Context, clock clockwork.Clock) backoff.BackOff {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultRetryPolicy().Interval
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(interval)
	if r.MaxElapsed > 0 {
		b = &elapsedBackOff{BackOff: b, clock: clock, maxElapsed: r.MaxElapsed}
	}

	if r.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(r.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// elapsedBackOff stops once the next attempt would start after maxElapsed
type elapsedBackOff struct {
	backoff.BackOff
	clock      clockwork.Clock
	maxElapsed time.Duration
	start      time.Time
}

func (b *elapsedBackOff) Reset() {
	b.start = b.clock.Now()
	b.BackOff.Reset()
}

func (b *elapsedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop || b.clock.Since(b.start)+next > b.maxElapsed {
		return backoff.Stop
	}
	return next
}

// clockTimer is a backoff.Timer driven by a clockwork.Clock
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

var _ backoff.Timer = (*clockTimer)(nil)

func (t *clockTimer) Start(duration time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(duration)
		return
	}
	t.timer.Reset(duration)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}
