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

package etcd

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/tochemey/ranger/internal/validation"
	"github.com/tochemey/ranger/log"
)

// Config holds the etcd store configuration
type Config struct {
	// Context specifies the execution context of the client.
	// If nil, context.Background() will be used.
	Context context.Context
	// Endpoints is a list of etcd cluster endpoints
	Endpoints []string
	// Namespace prefixes every key written by the store
	Namespace string
	// TTL is the time-to-live of the session lease.
	// Ephemeral nodes disappear at most TTL after the session is lost.
	// Default: 10s
	TTL time.Duration
	// TLS configuration (optional)
	TLS *tls.Config
	// DialTimeout for etcd client connections.
	// Default: 5s
	DialTimeout time.Duration
	// Username for etcd authentication (optional)
	Username string
	// Password for etcd authentication (optional)
	Password string
	// Timeout for etcd operations.
	// Default: 5s
	Timeout time.Duration
	// PollInterval is the period between connectivity probes of BlockUntilConnected.
	// Default: 100ms
	PollInterval time.Duration
	// Logger default: log.DefaultLogger
	Logger log.Logger
}

var _ validation.Validator = (*Config)(nil)

// Sanitize sets the defaults
func (c *Config) Sanitize() {
	if c.Context == nil {
		c.Context = context.Background()
	}

	if c.TTL <= 0 {
		c.TTL = 10 * time.Second
	}

	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}

	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}

	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}

	if c.Logger == nil {
		c.Logger = log.DefaultLogger
	}
}

// Validate implements validation.Validator.
func (c *Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddAssertion(len(c.Endpoints) > 0, "Endpoints must not be empty").
		AddAssertion(c.TTL >= time.Second, "TTL must be at least one second").
		AddAssertion(c.DialTimeout > 0, "DialTimeout must be greater than 0").
		Validate()
}
