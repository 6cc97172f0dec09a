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

// Package rulerouter manages flows of router nodes by id.
//
// Package rulerouter 按ID管理路由节点流。
//
// A flow is a set of `switch` and `change` nodes wired port to node, defined in JSON:
//
//	{
//	  "id": "thermostat",
//	  "nodes": [
//	    {"id": "route", "type": "switch", "configuration": {...}, "wires": [["mark"], []]},
//	    {"id": "mark", "type": "change", "configuration": {...}}
//	  ]
//	}
//
// Usage:
//
//	flow, err := rulerouter.New("", def, rulerouter.NewConfig(), engine.WithOutput(onOutput))
//	_ = flow.Send("route", types.NewMsg(0, fields))
package rulerouter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/engine"
	"github.com/rulego/rulerouter/utils/json"
)

// ErrFlowNotFound is returned when no flow is loaded under an id.
var ErrFlowNotFound = errors.New("flow not found")

// Registry is the default component registry.
var Registry = engine.Registry

// NewConfig creates a Config with the default registry and expression engines.
func NewConfig(opts ...types.Option) types.Config {
	return engine.NewConfig(opts...)
}

// ParseFlow decodes a JSON flow definition.
func ParseFlow(def []byte) (engine.RuleFlow, error) {
	var flow engine.RuleFlow
	if err := json.Unmarshal(def, &flow); err != nil {
		return flow, fmt.Errorf("decode flow: %w", err)
	}
	return flow, nil
}

// DefaultRouter 默认流管理器
var DefaultRouter = &RuleRouter{}

// RuleRouter 流管理器
// RuleRouter keeps loaded flows by id. It is safe for concurrent use.
type RuleRouter struct {
	flows sync.Map
}

// Load creates a flow from every *.json file in folderPath. Files that fail to load
// are logged and skipped.
func (g *RuleRouter) Load(folderPath string, config types.Config, opts ...engine.FlowOption) error {
	if !strings.HasSuffix(folderPath, "*.json") && !strings.HasSuffix(folderPath, "*.JSON") {
		folderPath = filepath.Join(folderPath, "*.json")
	}
	paths, err := filepath.Glob(folderPath)
	if err != nil {
		return err
	}
	sort.Strings(paths)
	logger := types.NewLogger(config.Logger)
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			logger.Printf("load flow %s error: %v", path, err)
			continue
		}
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if _, err := g.New(id, b, config, opts...); err != nil {
			logger.Printf("load flow %s error: %v", path, err)
		}
	}
	return nil
}

// New creates a flow from def and stores it. id overrides the id of the definition; an
// existing flow with the same id is returned as is.
//
// A flow with disabled nodes is stored and returned together with the configuration error.
func (g *RuleRouter) New(id string, def []byte, config types.Config, opts ...engine.FlowOption) (*engine.Flow, error) {
	flowDef, err := ParseFlow(def)
	if err != nil {
		return nil, err
	}
	if id != "" {
		flowDef.Id = id
	}
	if flowDef.Id == "" {
		return nil, &types.ConfigError{Field: "id", Err: errors.New("flow id is required")}
	}
	if v, ok := g.flows.Load(flowDef.Id); ok {
		return v.(*engine.Flow), nil
	}
	flow, err := engine.NewFlow(config, flowDef, opts...)
	if flow == nil {
		return nil, err
	}
	if v, loaded := g.flows.LoadOrStore(flow.Id(), flow); loaded {
		flow.Destroy()
		return v.(*engine.Flow), nil
	}
	return flow, err
}

// Get returns the flow loaded under id.
func (g *RuleRouter) Get(id string) (*engine.Flow, bool) {
	v, ok := g.flows.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*engine.Flow), true
}

// Send delivers msg to a node of a flow.
func (g *RuleRouter) Send(flowId, nodeId string, msg types.RuleMsg) error {
	flow, ok := g.Get(flowId)
	if !ok {
		return fmt.Errorf("%w: %s", ErrFlowNotFound, flowId)
	}
	return flow.Send(nodeId, msg)
}

// Del destroys and removes the flow loaded under id.
func (g *RuleRouter) Del(id string) {
	if v, ok := g.flows.LoadAndDelete(id); ok {
		v.(*engine.Flow).Destroy()
	}
}

// Range calls f for each flow until f returns false.
func (g *RuleRouter) Range(f func(id string, flow *engine.Flow) bool) {
	g.flows.Range(func(key, value any) bool {
		return f(key.(string), value.(*engine.Flow))
	})
}

// Stop destroys and removes every flow.
func (g *RuleRouter) Stop() {
	g.flows.Range(func(key, value any) bool {
		g.Del(key.(string))
		return true
	})
}

// Load loads flows into DefaultRouter.
func Load(folderPath string, config types.Config, opts ...engine.FlowOption) error {
	return DefaultRouter.Load(folderPath, config, opts...)
}

// New creates a flow in DefaultRouter.
func New(id string, def []byte, config types.Config, opts ...engine.FlowOption) (*engine.Flow, error) {
	return DefaultRouter.New(id, def, config, opts...)
}

// Get returns a flow of DefaultRouter.
func Get(id string) (*engine.Flow, bool) {
	return DefaultRouter.Get(id)
}

// Del removes a flow from DefaultRouter.
func Del(id string) {
	DefaultRouter.Del(id)
}

// Stop destroys every flow of DefaultRouter.
func Stop() {
	DefaultRouter.Stop()
}
