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

package metric

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// RegistrationMetric groups the instruments describing the registration
// lifecycle of a service instance.
//
// Instruments:
//   - ranger.registration.attempts   (Int64Counter)
//   - ranger.heartbeat.cycles        (Int64Counter)
//   - ranger.heartbeat.failures      (Int64Counter)
//   - ranger.heartbeat.duration      (Float64Histogram, unit: ms)
//   - ranger.node.health             (Int64Gauge)
type RegistrationMetric struct {
	registrationAttempts metric.Int64Counter
	heartbeatCycles      metric.Int64Counter
	heartbeatFailures    metric.Int64Counter
	heartbeatDuration    metric.Float64Histogram
	nodeHealth           metric.Int64Gauge
}

// NewRegistrationMetric creates the instruments using the provided Meter.
func NewRegistrationMetric(meter metric.Meter) (*RegistrationMetric, error) {
	var (
		instruments RegistrationMetric
		err         error
	)

	if instruments.registrationAttempts, err = meter.Int64Counter(
		"ranger.registration.attempts",
		metric.WithDescription("Total number of attempts to create the service node"),
	); err != nil {
		return nil, fmt.Errorf("failed to create registrationAttempts instrument, %w", err)
	}

	if instruments.heartbeatCycles, err = meter.Int64Counter(
		"ranger.heartbeat.cycles",
		metric.WithDescription("Total number of heartbeat cycles"),
	); err != nil {
		return nil, fmt.Errorf("failed to create heartbeatCycles instrument, %w", err)
	}

	if instruments.heartbeatFailures, err = meter.Int64Counter(
		"ranger.heartbeat.failures",
		metric.WithDescription("Total number of failed heartbeat cycles"),
	); err != nil {
		return nil, fmt.Errorf("failed to create heartbeatFailures instrument, %w", err)
	}

	if instruments.heartbeatDuration, err = meter.Float64Histogram(
		"ranger.heartbeat.duration",
		metric.WithDescription("Duration of a heartbeat cycle"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create heartbeatDuration instrument, %w", err)
	}

	if instruments.nodeHealth, err = meter.Int64Gauge(
		"ranger.node.health",
		metric.WithDescription("Last published health status: 0 unknown, 1 healthy, 2 unhealthy"),
	); err != nil {
		return nil, fmt.Errorf("failed to create nodeHealth instrument, %w", err)
	}

	return &instruments, nil
}

// RegistrationAttempts counts the attempts to create the service node
func (x *RegistrationMetric) RegistrationAttempts() metric.Int64Counter {
	return x.registrationAttempts
}

// HeartbeatCycles counts the heartbeat cycles
func (x *RegistrationMetric) HeartbeatCycles() metric.Int64Counter {
	return x.heartbeatCycles
}

// HeartbeatFailures counts the failed heartbeat cycles
func (x *RegistrationMetric) HeartbeatFailures() metric.Int64Counter {
	return x.heartbeatFailures
}

// HeartbeatDuration records the duration of each heartbeat cycle in milliseconds
func (x *RegistrationMetric) HeartbeatDuration() metric.Float64Histogram {
	return x.heartbeatDuration
}

// NodeHealth records the last published health status
func (x *RegistrationMetric) NodeHealth() metric.Int64Gauge {
	return x.nodeHealth
}
