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

package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/components/filter"
	"github.com/rulego/rulerouter/components/transform"
)

// Registry is the default registry for router node components.
var Registry = new(RuleComponentRegistry)

var _ types.ComponentRegistry = (*RuleComponentRegistry)(nil)

// init registers default components to the default component registry.
func init() {
	var components []types.Node
	components = append(components, filter.Registry.Components()...)
	components = append(components, transform.Registry.Components()...)

	for _, node := range components {
		_ = Registry.Register(node)
	}
}

// RuleComponentRegistry 节点组件注册器
// RuleComponentRegistry is a registry for router node components.
type RuleComponentRegistry struct {
	components map[string]types.Node
	sync.RWMutex
}

// Register adds a node component to the registry.
func (r *RuleComponentRegistry) Register(node types.Node) error {
	r.Lock()
	defer r.Unlock()
	if r.components == nil {
		r.components = make(map[string]types.Node)
	}
	if _, ok := r.components[node.Type()]; ok {
		return fmt.Errorf("%w. componentType=%s", types.ErrComponentExists, node.Type())
	}
	r.components[node.Type()] = node
	return nil
}

// Unregister removes a component from the registry by its type.
func (r *RuleComponentRegistry) Unregister(componentType string) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.components[componentType]; !ok {
		return fmt.Errorf("%w. componentType=%s", types.ErrComponentNotFound, componentType)
	}
	delete(r.components, componentType)
	return nil
}

// NewNode creates a new instance of a node component by its type.
func (r *RuleComponentRegistry) NewNode(componentType string) (types.Node, error) {
	r.RLock()
	defer r.RUnlock()

	if node, ok := r.components[componentType]; !ok {
		return nil, fmt.Errorf("%w. componentType=%s", types.ErrComponentNotFound, componentType)
	} else {
		return node.New(), nil
	}
}

// GetComponents returns a map of all registered components.
func (r *RuleComponentRegistry) GetComponents() map[string]types.Node {
	r.RLock()
	defer r.RUnlock()
	var components = map[string]types.Node{}
	for k, v := range r.components {
		components[k] = v
	}
	return components
}

// Types returns the registered component types, sorted.
func (r *RuleComponentRegistry) Types() []string {
	r.RLock()
	defer r.RUnlock()
	names := make([]string, 0, len(r.components))
	for k := range r.components {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
