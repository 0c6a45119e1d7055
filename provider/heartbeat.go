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
	"fmt"

	rerrors "github.com/tochemey/ranger/errors"
	"github.com/tochemey/ranger/health"
	"github.com/tochemey/ranger/node"
)

// heartbeatLoop runs the first cycle right away, then waits for the
// heartbeat interval after the end of each cycle. Cycles never overlap.
func (p *Provider[T]) heartbeatLoop(ctx context.Context) {
	defer close(p.done)
	for {
		if err := p.heartbeat(ctx); err != nil {
			p.metric.HeartbeatFailures().Add(ctx, 1, p.attributes)
			p.logger.Error(err)
		}

		timer := p.clock.NewTimer(p.heartbeatInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}

// heartbeat runs a single cycle
func (p *Provider[T]) heartbeat(ctx context.Context) error {
	start := p.clock.Now()
	p.metric.HeartbeatCycles().Add(ctx, 1, p.attributes)
	defer func() {
		elapsed := p.clock.Since(start)
		p.metric.HeartbeatDuration().Record(ctx, float64(elapsed.Microseconds())/1e3, p.attributes)
	}()

	state, err := health.Evaluate(ctx, p.checks, p.policy, start)
	if err != nil {
		p.logger.Warnf("service=(%s) health evaluation: %v", p.serviceName, err)
	}

	if ctx.Err() != nil {
		return nil
	}

	updated, ok := p.next(state)
	if !ok {
		p.logger.Debugf("service=(%s) health status=(%s) unchanged, skipping update", p.serviceName, state.Status)
		return nil
	}

	if p.supplier != nil {
		data, err := p.supplier(ctx)
		if err != nil {
			return rerrors.NewHeartbeatError(p.serviceName, fmt.Errorf("node data supplier failed: %w", err))
		}
		updated.Data = data
	}

	if err := p.UpdateState(ctx, updated); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return rerrors.NewHeartbeatError(p.serviceName, err)
	}
	return nil
}

// next returns the node to publish for the given health state. It returns
// false when the status did not change and the last publish is still fresh.
func (p *Provider[T]) next(state health.State) (*node.ServiceNode[T], bool) {
	p.mu.RLock()
	current := p.node.Clone()
	lastPublished := p.lastPublished
	p.mu.RUnlock()

	fresh := !lastPublished.IsZero() && state.CheckedAt.Sub(lastPublished) < p.staleUpdateThreshold
	if current.HealthStatus == state.Status && fresh {
		return nil, false
	}

	current.HealthStatus = state.Status
	current.LastUpdatedTimestamp = state.CheckedAt.UnixMilli()
	return current, true
}
