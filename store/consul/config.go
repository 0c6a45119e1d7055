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

package consul

import (
	"context"
	"time"

	"github.com/tochemey/ranger/internal/validation"
	"github.com/tochemey/ranger/log"
)

// Config defines the Consul store configuration.
type Config struct {
	// Context specifies the execution context for Consul operations.
	// If nil, context.Background() will be used.
	Context context.Context
	// Address is the address of the Consul agent to connect to.
	// Default: "127.0.0.1:8500"
	Address string
	// Scheme is the URI scheme of the agent.
	// Default: "http"
	Scheme string
	// Datacenter specifies the Consul datacenter to use.
	// If empty, the agent's default datacenter is used.
	Datacenter string
	// Token is the Consul ACL token used for authenticated requests.
	Token string
	// Namespace prefixes every key written by the store
	Namespace string
	// SessionTTL is the TTL of the session owning the ephemeral nodes.
	// Consul does not accept values below 10s.
	// Default: 10s
	SessionTTL time.Duration
	// Timeout specifies the maximum duration for Consul requests.
	// Default: 10s
	Timeout time.Duration
	// PollInterval is the period between leader probes of BlockUntilConnected.
	// Default: 200ms
	PollInterval time.Duration
	// Logger default: log.DefaultLogger
	Logger log.Logger
}

var _ validation.Validator = (*Config)(nil)

// Sanitize sets the defaults.
func (config *Config) Sanitize() {
	if config.Context == nil {
		config.Context = context.Background()
	}

	if config.Address == "" {
		config.Address = "127.0.0.1:8500"
	}

	if config.Scheme == "" {
		config.Scheme = "http"
	}

	if config.SessionTTL <= 0 {
		config.SessionTTL = 10 * time.Second
	}

	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 200 * time.Millisecond
	}

	if config.Logger == nil {
		config.Logger = log.DefaultLogger
	}
}

// Validate checks if the configuration is valid.
func (config *Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddValidator(validation.NewEmptyStringValidator("Address", config.Address)).
		AddAssertion(config.SessionTTL >= 10*time.Second, "SessionTTL must be at least 10s").
		AddAssertion(config.SessionTTL <= 24*time.Hour, "SessionTTL must be at most 24h").
		Validate()
}
