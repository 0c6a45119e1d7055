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
	"fmt"
	"time"
)

// Check evaluates one aspect of the instance health
type Check interface {
	// Name identifies the check in logs
	Name() string
	// Check returns the current status. Implementations should honor ctx.
	Check(ctx context.Context) Status
}

type checkFunc struct {
	name string
	fn   func(ctx context.Context) Status
}

// NewCheck creates a Check from a function
func NewCheck(name string, fn func(ctx context.Context) Status) Check {
	return &checkFunc{name: name, fn: fn}
}

func (c *checkFunc) Name() string {
	return c.name
}

func (c *checkFunc) Check(ctx context.Context) Status {
	return c.fn(ctx)
}

// Result is the outcome of one check
type Result struct {
	Name   string
	Status Status
}

// Policy combines the results of a round of checks into a single status
type Policy func(results []Result) Status

// AllHealthy reports healthy only when every check is healthy.
// No checks means healthy.
func AllHealthy(results []Result) Status {
	for _, result := range results {
		if result.Status != StatusHealthy {
			return StatusUnhealthy
		}
	}
	return StatusHealthy
}

// AnyHealthy reports healthy when at least one check is healthy.
// No checks means healthy.
func AnyHealthy(results []Result) Status {
	if len(results) == 0 {
		return StatusHealthy
	}
	for _, result := range results {
		if result.Status == StatusHealthy {
			return StatusHealthy
		}
	}
	return StatusUnhealthy
}

// Evaluate runs all the checks sequentially and combines them with policy.
// A panicking check counts as unhealthy and its panic is returned as an error
// alongside the computed state.
func Evaluate(ctx context.Context, checks []Check, policy Policy, now time.Time) (State, error) {
	if policy == nil {
		policy = AllHealthy
	}

	var errs []error
	results := make([]Result, 0, len(checks))
	for _, check := range checks {
		status, err := run(ctx, check)
		if err != nil {
			errs = append(errs, err)
		}
		results = append(results, Result{Name: check.Name(), Status: status})
	}

	return State{Status: policy(results), CheckedAt: now}, errors.Join(errs...)
}

func run(ctx context.Context, check Check) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status = StatusUnhealthy
			err = fmt.Errorf("health check=(%s) panicked: %v", check.Name(), r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return StatusUnhealthy, fmt.Errorf("health check=(%s) not run: %w", check.Name(), err)
	}
	return check.Check(ctx), nil
}
