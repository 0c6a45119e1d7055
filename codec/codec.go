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

// Package codec converts service nodes to and from the bytes stored in a
// registration path. The registration engine never interprets those bytes.
package codec

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/tochemey/ranger/node"
)

// Serializer encodes a node into its stored form
type Serializer[T any] interface {
	Serialize(node *node.ServiceNode[T]) ([]byte, error)
}

// Deserializer decodes the stored form of a node
type Deserializer[T any] interface {
	Deserialize(data []byte) (*node.ServiceNode[T], error)
}

// Codec is both a Serializer and a Deserializer
type Codec[T any] interface {
	Serializer[T]
	Deserializer[T]
}

// JSON is a Codec backed by json-iterator with the encoding/json compatible configuration.
type JSON[T any] struct {
	api jsoniter.API
}

var _ Codec[any] = (*JSON[any])(nil)

// NewJSON creates a JSON codec
func NewJSON[T any]() *JSON[T] {
	return &JSON[T]{api: jsoniter.ConfigCompatibleWithStandardLibrary}
}

// Serialize implements Serializer
func (c *JSON[T]) Serialize(node *node.ServiceNode[T]) ([]byte, error) {
	if node == nil {
		return nil, fmt.Errorf("cannot serialize a nil service node")
	}
	bytea, err := c.api.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize service node=(%s): %w", node.Representation(), err)
	}
	return bytea, nil
}

// Deserialize implements Deserializer
func (c *JSON[T]) Deserialize(data []byte) (*node.ServiceNode[T], error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot deserialize an empty service node payload")
	}
	decoded := new(node.ServiceNode[T])
	if err := c.api.Unmarshal(data, decoded); err != nil {
		return nil, fmt.Errorf("failed to deserialize service node: %w", err)
	}
	return decoded, nil
}
