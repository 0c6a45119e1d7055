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

package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/ranger/internal/locker"
	"github.com/tochemey/ranger/log"
)

// ErrAggregatorRunning is returned when a monitor is added to a running Aggregator
var ErrAggregatorRunning = errors.New("health aggregator is running")

const aggregatorName = "service-health-aggregator"

type monitor struct {
	check     Check
	interval  time.Duration
	staleness time.Duration
	state     State
}

// Aggregator runs isolated monitors on their own schedule and exposes their
// combined health as a Check. A monitor whose last result is older than its
// staleness bound is reported unhealthy.
type Aggregator struct {
	_ locker.NoCopy

	mu       sync.RWMutex
	monitors []*monitor
	clock    clockwork.Clock
	logger   log.Logger
	running  *atomic.Bool
	cancel   context.CancelFunc
	group    *errgroup.Group
}

var _ Check = (*Aggregator)(nil)

// AggregatorOption configures an Aggregator
type AggregatorOption func(*Aggregator)

// WithAggregatorClock sets the clock used to schedule the monitors
func WithAggregatorClock(clock clockwork.Clock) AggregatorOption {
	return func(a *Aggregator) {
		a.clock = clock
	}
}

// WithAggregatorLogger sets the logger
func WithAggregatorLogger(logger log.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator creates an Aggregator without monitors
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	aggregator := &Aggregator{
		clock:   clockwork.NewRealClock(),
		logger:  log.DefaultLogger,
		running: atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt(aggregator)
	}
	return aggregator
}

// AddMonitor registers a check run every interval. Its result is trusted for
// staleness; a staleness shorter than the interval is raised to twice the interval.
func (a *Aggregator) AddMonitor(check Check, interval, staleness time.Duration) error {
	if check == nil || interval <= 0 {
		return errors.New("health monitor requires a check and a positive interval")
	}

	if a.running.Load() {
		return ErrAggregatorRunning
	}

	if staleness < interval {
		staleness = 2 * interval
	}

	a.mu.Lock()
	a.monitors = append(a.monitors, &monitor{
		check:     check,
		interval:  interval,
		staleness: staleness,
	})
	a.mu.Unlock()
	return nil
}

// Start runs every monitor once, then schedules them in the background.
// Calling Start on a running Aggregator is a no-op.
func (a *Aggregator) Start(ctx context.Context) {
	if !a.running.CompareAndSwap(false, true) {
		return
	}

	for _, m := range a.snapshot() {
		a.refresh(ctx, m)
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	a.cancel = cancel
	a.group = group

	for _, m := range a.snapshot() {
		group.Go(func() error {
			a.watch(ctx, m)
			return nil
		})
	}
	a.logger.Debugf("health aggregator started with %d monitor(s)", len(a.monitors))
}

// Stop halts the monitors and waits for the running checks to return.
func (a *Aggregator) Stop() {
	if !a.running.CompareAndSwap(true, false) {
		return
	}

	a.cancel()
	_ = a.group.Wait()
	a.logger.Debug("health aggregator stopped")
}

// Name implements Check
func (a *Aggregator) Name() string {
	return aggregatorName
}

// Check implements Check.
func (a *Aggregator) Check(context.Context) Status {
	now := a.clock.Now()

	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, m := range a.monitors {
		if m.state.IsStale(now, m.staleness) {
			a.logger.Warnf("health monitor=(%s) is stale, last checked at %s", m.check.Name(), m.state.CheckedAt)
			return StatusUnhealthy
		}
		if m.state.Status != StatusHealthy {
			return StatusUnhealthy
		}
	}
	return StatusHealthy
}

// States returns the last state of every monitor keyed by check name
func (a *Aggregator) States() map[string]State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	states := make(map[string]State, len(a.monitors))
	for _, m := range a.monitors {
		states[m.check.Name()] = m.state
	}
	return states
}

func (a *Aggregator) watch(ctx context.Context, m *monitor) {
	for {
		timer := a.clock.NewTimer(m.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
			a.refresh(ctx, m)
		}
	}
}

func (a *Aggregator) refresh(ctx context.Context, m *monitor) {
	ctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	status, err := run(ctx, m.check)
	if err != nil {
		a.logger.Error(err)
	}

	a.mu.Lock()
	m.state = State{Status: status, CheckedAt: a.clock.Now()}
	a.mu.Unlock()
}

func (a *Aggregator) snapshot() []*monitor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	monitors := make([]*monitor, len(a.monitors))
	copy(monitors, a.monitors)
	return monitors
}
