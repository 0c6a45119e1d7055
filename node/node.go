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

package node

import (
	"net"
	"path"
	"strconv"
	"strings"

	"github.com/tochemey/ranger/health"
)

// ServiceNode describes one live instance of a service as published in the store.
// Data is opaque to the registration engine and only interpreted by the codec.
type ServiceNode[T any] struct {
	Host                 string        `json:"host"`
	Port                 int           `json:"port"`
	Data                 T             `json:"data"`
	HealthStatus         health.Status `json:"healthStatus"`
	LastUpdatedTimestamp int64         `json:"lastUpdatedTimestamp"`
}

// New creates a ServiceNode with an unknown health status
func New[T any](host string, port int, data T) *ServiceNode[T] {
	return &ServiceNode[T]{
		Host:         host,
		Port:         port,
		Data:         data,
		HealthStatus: health.StatusUnknown,
	}
}

// Representation returns the unique identifier of the instance, host:port.
func (n *ServiceNode[T]) Representation() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// Clone returns a shallow copy of the node
func (n *ServiceNode[T]) Clone() *ServiceNode[T] {
	if n == nil {
		return nil
	}
	clone := *n
	return &clone
}

// Path returns the registration path of an instance: /<service>/<representation>
func Path(service, representation string) string {
	return path.Join(ServicePath(service), representation)
}

// ServicePath returns the container path of a service: /<service>
func ServicePath(service string) string {
	return "/" + strings.Trim(service, "/")
}
