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

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when the registry configuration is incomplete or invalid.
	// It is fatal and never retried.
	ErrInvalidConfig = errors.New("invalid registry configuration")

	// ErrStoreUnreachable is returned when the coordination store cannot be reached
	// within the connection retry policy.
	ErrStoreUnreachable = errors.New("coordination store is unreachable")

	// ErrNodeExists is returned by the store when an ephemeral node is created on a path
	// that is still occupied, typically by a session that has not expired yet.
	ErrNodeExists = errors.New("node already exists")

	// ErrNoNode is returned by the store when the target path does not exist.
	ErrNoNode = errors.New("node does not exist")

	// ErrStoreClosed is returned when an operation is attempted on a closed store handle.
	ErrStoreClosed = errors.New("store is closed")

	// ErrRegistration is returned when the service node could not be published.
	// The instance is not discoverable.
	ErrRegistration = errors.New("service registration failed")

	// ErrHeartbeat indicates a failed heartbeat cycle. It never stops the heartbeat schedule.
	ErrHeartbeat = errors.New("heartbeat cycle failed")

	// ErrShutdown indicates that some resources could not be released cleanly.
	ErrShutdown = errors.New("shutdown did not complete cleanly")

	// ErrAlreadyStarted is returned when the provider is started more than once.
	ErrAlreadyStarted = errors.New("provider already started")
)

// NewConfigurationError wraps err with ErrInvalidConfig
func NewConfigurationError(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}

// NewRegistrationError wraps err with ErrRegistration and names the service that
// could not be registered.
func NewRegistrationError(serviceName string, err error) error {
	return fmt.Errorf("could not create node for service=(%s). This service will not be discoverable: %w: %w",
		serviceName, ErrRegistration, err)
}

// NewHeartbeatError wraps err with ErrHeartbeat for the given service.
func NewHeartbeatError(serviceName string, err error) error {
	return fmt.Errorf("service=(%s) %w: %w", serviceName, ErrHeartbeat, err)
}

// NewShutdownError wraps err with ErrShutdown
func NewShutdownError(err error) error {
	return fmt.Errorf("%w: %w", ErrShutdown, err)
}

// NewErrNodeExists formats an ErrNodeExists with the given path.
func NewErrNodeExists(path string) error {
	return fmt.Errorf("path=(%s) %w", path, ErrNodeExists)
}

// NewErrNoNode formats an ErrNoNode with the given path.
func NewErrNoNode(path string) error {
	return fmt.Errorf("path=(%s) %w", path, ErrNoNode)
}
