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

package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tochemey/ranger/internal/validation"
	"github.com/tochemey/ranger/log"
)

// Config defines the Redis store configuration
type Config struct {
	// Context specifies the execution context of the session keeper.
	// If nil, context.Background() will be used.
	Context context.Context
	// Addr is the host:port address of the Redis server
	Addr string
	// Username for Redis ACL authentication (optional)
	Username string
	// Password for Redis authentication (optional)
	Password string
	// DB is the logical database
	DB int
	// TLS configuration (optional)
	TLS *tls.Config
	// Namespace prefixes every key written by the store
	Namespace string
	// TTL is the expiry of the ephemeral keys. The session refreshes them
	// every TTL/3 until Close.
	// Default: 10s
	TTL time.Duration
	// Timeout for Redis operations.
	// Default: 5s
	Timeout time.Duration
	// PollInterval is the period between pings of BlockUntilConnected.
	// Default: 100ms
	PollInterval time.Duration
	// Logger default: log.DefaultLogger
	Logger log.Logger
}

var _ validation.Validator = (*Config)(nil)

// ConfigFromURL builds a Config from a redis:// or rediss:// URL
func ConfigFromURL(url string) (*Config, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return &Config{
		Addr:     options.Addr,
		Username: options.Username,
		Password: options.Password,
		DB:       options.DB,
		TLS:      options.TLSConfig,
	}, nil
}

// Sanitize sets the defaults
func (c *Config) Sanitize() {
	if c.Context == nil {
		c.Context = context.Background()
	}

	if c.TTL <= 0 {
		c.TTL = 10 * time.Second
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
		AddValidator(validation.NewTCPAddressValidator(c.Addr)).
		AddAssertion(c.TTL >= 3*time.Millisecond, "TTL is too short").
		AddAssertion(c.DB >= 0, "DB is invalid").
		Validate()
}

func (c *Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		TLSConfig:    c.TLS,
		ReadTimeout:  c.Timeout,
		WriteTimeout: c.Timeout,
	}
}
