/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package store provides the context store behind node, flow and global operands.
//
// A ContextStore maps scoped keys onto a raw key/value Backend:
//
//	global  -> global:<key>
//	flow    -> flow:<flowId>:<key>
//	node    -> node:<flowId>:<nodeId>:<key>
//
// Backends are provided by the memory, sql and natskv sub packages.
//
// Package store 提供上下文存储，按作用域为键添加命名空间。
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rulego/rulerouter/api/types"
)

// ErrInvalidScope is returned for a scope other than node, flow or global.
var ErrInvalidScope = errors.New("invalid context scope")

// Backend is a raw key/value store. Get returns nil for an unset key.
type Backend interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
	// Keys returns the keys starting with prefix, in any order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// NodeScoped is implemented by stores that can be bound to one node,
// so that node scoped keys of different nodes do not collide.
type NodeScoped interface {
	ForNode(nodeId string) types.ContextStore
}

// FlowScoped is implemented by stores that can be rebound to another flow.
type FlowScoped interface {
	ForFlow(flowId string) types.ContextStore
}

var (
	_ types.ContextStore = (*ContextStore)(nil)
	_ NodeScoped         = (*ContextStore)(nil)
	_ FlowScoped         = (*ContextStore)(nil)
)

// ContextStore 作用域上下文存储
type ContextStore struct {
	backend Backend
	flowId  string
	nodeId  string
}

// NewContextStore creates a store for one flow. nodeId may be empty and bound later with ForNode.
func NewContextStore(backend Backend, flowId, nodeId string) *ContextStore {
	return &ContextStore{backend: backend, flowId: flowId, nodeId: nodeId}
}

// ForNode returns a copy of the store bound to nodeId.
func (s *ContextStore) ForNode(nodeId string) types.ContextStore {
	cp := *s
	cp.nodeId = nodeId
	return &cp
}

// ForFlow returns a copy of the store bound to flowId. The node binding is kept.
func (s *ContextStore) ForFlow(flowId string) types.ContextStore {
	cp := *s
	cp.flowId = flowId
	return &cp
}

// Backend returns the underlying backend.
func (s *ContextStore) Backend() Backend {
	return s.backend
}

func (s *ContextStore) prefix(scope types.ContextScope) (string, error) {
	switch scope {
	case types.ScopeGlobal:
		return "global:", nil
	case types.ScopeFlow:
		return "flow:" + s.flowId + ":", nil
	case types.ScopeNode:
		return "node:" + s.flowId + ":" + s.nodeId + ":", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
}

// Get returns the value stored under key, or nil if it is not set.
func (s *ContextStore) Get(ctx context.Context, scope types.ContextScope, key string) (interface{}, error) {
	prefix, err := s.prefix(scope)
	if err != nil {
		return nil, err
	}
	return s.backend.Get(ctx, prefix+key)
}

// Set stores value under key. A nil value deletes the key.
func (s *ContextStore) Set(ctx context.Context, scope types.ContextScope, key string, value interface{}) error {
	prefix, err := s.prefix(scope)
	if err != nil {
		return err
	}
	if value == nil {
		return s.backend.Delete(ctx, prefix+key)
	}
	return s.backend.Set(ctx, prefix+key, value)
}

// Keys lists the keys set in scope, sorted.
func (s *ContextStore) Keys(ctx context.Context, scope types.ContextScope) ([]string, error) {
	prefix, err := s.prefix(scope)
	if err != nil {
		return nil, err
	}
	raw, err := s.backend.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k[len(prefix):])
		}
	}
	sort.Strings(keys)
	return keys, nil
}
