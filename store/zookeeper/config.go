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

package zookeeper

import (
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/tochemey/ranger/internal/validation"
	"github.com/tochemey/ranger/log"
)

// Config defines the ZooKeeper store configuration
type Config struct {
	// Servers is the list of ZooKeeper servers as host:port
	Servers []string
	// Namespace is the root of every path used by the store
	Namespace string
	// SessionTimeout bounds how long ephemeral nodes survive a lost connection.
	// Default: 15s
	SessionTimeout time.Duration
	// PollInterval is the connection state polling period of BlockUntilConnected.
	// Default: 50ms
	PollInterval time.Duration
	// ACL applied to created nodes.
	// Default: world, all permissions
	ACL []zk.ACL
	// Logger receives the client logs at debug level.
	// Default: log.DefaultLogger
	Logger log.Logger
}

var _ validation.Validator = (*Config)(nil)

// Sanitize sets the defaults
func (config *Config) Sanitize() {
	servers := make([]string, 0, len(config.Servers))
	for _, server := range config.Servers {
		if server = strings.TrimSpace(server); server != "" {
			servers = append(servers, server)
		}
	}
	config.Servers = servers

	if config.SessionTimeout <= 0 {
		config.SessionTimeout = 15 * time.Second
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 50 * time.Millisecond
	}

	if len(config.ACL) == 0 {
		config.ACL = zk.WorldACL(zk.PermAll)
	}

	if config.Logger == nil {
		config.Logger = log.DefaultLogger
	}
}

// Validate checks the configuration
func (config *Config) Validate() error {
	chain := validation.New(validation.FailFast()).
		AddAssertion(len(config.Servers) > 0, "Servers must not be empty")
	for _, server := range config.Servers {
		chain = chain.AddValidator(validation.NewTCPAddressValidator(server))
	}
	return chain.Validate()
}
