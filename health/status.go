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
	"fmt"
	"time"
)

// Status is the health of a service instance
type Status int

const (
	// StatusUnknown is reported before any check has run
	StatusUnknown Status = iota
	// StatusHealthy means the instance can take traffic
	StatusHealthy
	// StatusUnhealthy means the instance must not take traffic
	StatusUnhealthy
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "healthy":
		*s = StatusHealthy
	case "unhealthy":
		*s = StatusUnhealthy
	case "unknown", "":
		*s = StatusUnknown
	default:
		return fmt.Errorf("invalid health status=(%s)", text)
	}
	return nil
}

// State is the aggregated health of an instance at a point in time
type State struct {
	Status    Status
	CheckedAt time.Time
}

// IsStale reports whether the state is older than threshold at now.
// A state that was never checked is always stale.
func (s State) IsStale(now time.Time, threshold time.Duration) bool {
	if s.CheckedAt.IsZero() {
		return true
	}
	return now.Sub(s.CheckedAt) >= threshold
}
