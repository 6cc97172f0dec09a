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
	"context"
	"fmt"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/store"
)

// RuleNode 节点定义
// RuleNode defines one configured node.
type RuleNode struct {
	// Id is unique within a flow.
	Id   string `json:"id" mapstructure:"id"`
	Type string `json:"type" mapstructure:"type"`
	Name string `json:"name" mapstructure:"name"`
	// Configuration is decoded by the node itself.
	Configuration types.Configuration `json:"configuration" mapstructure:"configuration"`
	// Wires[p] lists the ids of the nodes receiving port p.
	Wires [][]string `json:"wires" mapstructure:"wires"`
}

// OnPortFunc receives the messages a node emits.
type OnPortFunc func(nodeId string, msg types.RuleMsg, port int)

// OnFailureFunc receives the errors a node reports.
type OnFailureFunc func(nodeId string, msg types.RuleMsg, err error)

var _ types.RuleContext = (*RuleNodeCtx)(nil)

// RuleNodeCtx 节点组件实例
// RuleNodeCtx is an initialized node instance. It is also the RuleContext handed to
// the node, routing its emissions and reports to the callbacks.
type RuleNodeCtx struct {
	types.Node
	SelfDefinition *RuleNode
	config         types.Config
	ctx            context.Context
	onPort         OnPortFunc
	onFailure      OnFailureFunc
	// initErr is the configuration error that disabled the node, if any.
	initErr error
}

// InitRuleNodeCtx creates and initializes the node described by def.
//
// An unknown type returns a nil context. A configuration error returns both the context and
// the error: the node stays in place, disabled, and reports every message it receives.
func InitRuleNodeCtx(ctx context.Context, config types.Config, def *RuleNode, onPort OnPortFunc, onFailure OnFailureFunc) (*RuleNodeCtx, error) {
	if config.ComponentsRegistry == nil {
		config.ComponentsRegistry = Registry
	}
	node, err := config.ComponentsRegistry.NewNode(def.Type)
	if err != nil {
		return nil, &types.ConfigError{Field: "nodes." + def.Id + ".type", Err: err}
	}
	if scoped, ok := config.Store.(store.NodeScoped); ok {
		config.Store = scoped.ForNode(def.Id)
	}
	if def.Configuration == nil {
		def.Configuration = make(types.Configuration)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rn := &RuleNodeCtx{
		Node:           node,
		SelfDefinition: def,
		config:         config,
		ctx:            ctx,
		onPort:         onPort,
		onFailure:      onFailure,
	}
	if err = node.Init(config, def.Configuration); err != nil {
		rn.initErr = fmt.Errorf("node %s: %w", def.Id, err)
		types.NewLogger(config.Logger).Printf("node %s(%s) disabled: %v", def.Id, def.Type, err)
		return rn, rn.initErr
	}
	return rn, nil
}

// Disabled returns the configuration error that disabled the node, or nil.
func (rn *RuleNodeCtx) Disabled() error {
	return rn.initErr
}

// OnMsg hands msg to the node. It returns once msg is queued.
func (rn *RuleNodeCtx) OnMsg(msg types.RuleMsg) {
	rn.Node.OnMsg(rn, msg)
}

func (rn *RuleNodeCtx) TellPort(msg types.RuleMsg, port int) {
	if rn.onPort != nil {
		rn.onPort(rn.SelfDefinition.Id, msg, port)
	}
}

func (rn *RuleNodeCtx) TellFailure(msg types.RuleMsg, err error) {
	if rn.onFailure != nil {
		rn.onFailure(rn.SelfDefinition.Id, msg, err)
	} else {
		types.NewLogger(rn.config.Logger).Printf("node %s: %v", rn.SelfDefinition.Id, err)
	}
}

func (rn *RuleNodeCtx) GetContext() context.Context {
	return rn.ctx
}

func (rn *RuleNodeCtx) Config() types.Config {
	return rn.config
}

func (rn *RuleNodeCtx) GetSelfId() string {
	return rn.SelfDefinition.Id
}
