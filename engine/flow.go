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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/store"
)

// ErrNodeNotFound is returned when a message is sent to an unknown node id.
var ErrNodeNotFound = errors.New("node not found")

// RuleFlow 节点集合定义
// RuleFlow defines a set of nodes and the wires between their ports.
type RuleFlow struct {
	Id    string     `json:"id" mapstructure:"id"`
	Nodes []RuleNode `json:"nodes" mapstructure:"nodes"`
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithOutput sets the callback receiving port emissions that have no wire.
func WithOutput(fn OnPortFunc) FlowOption {
	return func(f *Flow) {
		f.onOutput = fn
	}
}

// WithOnFailure sets the callback receiving the errors reported by every node.
func WithOnFailure(fn OnFailureFunc) FlowOption {
	return func(f *Flow) {
		f.onFailure = fn
	}
}

// WithContext sets the context handed to the nodes.
func WithContext(ctx context.Context) FlowOption {
	return func(f *Flow) {
		f.ctx = ctx
	}
}

// Flow 已初始化的节点集合
// Flow is a set of initialized nodes. An emission on a wired port is delivered to each
// wired node, a copy per extra recipient; an emission on an unwired port goes to the
// output callback.
type Flow struct {
	id        string
	config    types.Config
	ctx       context.Context
	onOutput  OnPortFunc
	onFailure OnFailureFunc

	nodes map[string]*RuleNodeCtx
	// order keeps the definition order for Destroy.
	order []string
	once  sync.Once
}

// NewFlow initializes every node of def.
//
// Nodes whose configuration fails to load are kept, disabled, and their errors are
// joined into the returned error; the Flow is usable in that case. Duplicate ids, unknown
// types and wires to unknown nodes fail the whole flow.
func NewFlow(config types.Config, def RuleFlow, opts ...FlowOption) (*Flow, error) {
	f := &Flow{id: def.Id, ctx: context.Background(), nodes: make(map[string]*RuleNodeCtx)}
	for _, opt := range opts {
		opt(f)
	}
	if f.id == "" {
		f.id = config.FlowId
	}
	config.FlowId = f.id
	if scoped, ok := config.Store.(store.FlowScoped); ok {
		config.Store = scoped.ForFlow(f.id)
	}
	f.config = config

	for i := range def.Nodes {
		d := def.Nodes[i]
		if d.Id == "" {
			return nil, &types.ConfigError{Field: fmt.Sprintf("nodes[%d].id", i), Err: errors.New("id is required")}
		}
		if _, ok := f.nodes[d.Id]; ok {
			f.Destroy()
			return nil, &types.ConfigError{Field: fmt.Sprintf("nodes[%d].id", i), Err: fmt.Errorf("duplicate node id %s", d.Id)}
		}
		for p, wire := range d.Wires {
			for _, target := range wire {
				if !hasNode(def.Nodes, target) {
					f.Destroy()
					return nil, &types.ConfigError{Field: fmt.Sprintf("nodes[%d].wires[%d]", i, p), Err: fmt.Errorf("%w: %s", ErrNodeNotFound, target)}
				}
			}
		}
		// placeholder so that the duplicate check sees ids of nodes whose type is unknown
		f.nodes[d.Id] = nil
		f.order = append(f.order, d.Id)
	}

	var initErrs []error
	for i := range def.Nodes {
		d := def.Nodes[i]
		rn, err := InitRuleNodeCtx(f.ctx, config, &d, f.tellPort, f.tellFailure)
		if rn == nil {
			f.Destroy()
			return nil, err
		}
		f.nodes[d.Id] = rn
		if err != nil {
			initErrs = append(initErrs, err)
		}
	}
	return f, errors.Join(initErrs...)
}

func hasNode(nodes []RuleNode, id string) bool {
	for _, n := range nodes {
		if n.Id == id {
			return true
		}
	}
	return false
}

// Id returns the flow id.
func (f *Flow) Id() string {
	return f.id
}

// Config returns the configuration the nodes were created with.
func (f *Flow) Config() types.Config {
	return f.config
}

// Node returns the node with id.
func (f *Flow) Node(id string) (*RuleNodeCtx, bool) {
	rn, ok := f.nodes[id]
	return rn, ok && rn != nil
}

// Nodes returns the nodes in definition order.
func (f *Flow) Nodes() []*RuleNodeCtx {
	nodes := make([]*RuleNodeCtx, 0, len(f.order))
	for _, id := range f.order {
		if rn, ok := f.Node(id); ok {
			nodes = append(nodes, rn)
		}
	}
	return nodes
}

// idler is implemented by nodes that queue their input.
type idler interface {
	Idle() bool
}

// Idle reports whether every node is idle.
func (f *Flow) Idle() bool {
	for _, rn := range f.Nodes() {
		if i, ok := rn.Node.(idler); ok && !i.Idle() {
			return false
		}
	}
	return true
}

// Wait blocks until every node has been idle for two consecutive polls, or ctx is done.
// A group waiting for missing parts does not keep a node busy.
func (f *Flow) Wait(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	stable := 0
	for stable < 2 {
		if f.Idle() {
			stable++
		} else {
			stable = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Send delivers msg to the node with id.
func (f *Flow) Send(id string, msg types.RuleMsg) error {
	rn, ok := f.Node(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	rn.OnMsg(msg)
	return nil
}

func (f *Flow) tellPort(nodeId string, msg types.RuleMsg, port int) {
	var wire []string
	if rn, ok := f.Node(nodeId); ok && port >= 0 && port < len(rn.SelfDefinition.Wires) {
		wire = rn.SelfDefinition.Wires[port]
	}
	if len(wire) == 0 {
		if f.onOutput != nil {
			f.onOutput(nodeId, msg, port)
		}
		return
	}
	for i, target := range wire {
		out := msg
		if i > 0 {
			out = msg.Copy()
		}
		if next, ok := f.Node(target); ok {
			next.OnMsg(out)
		}
	}
}

func (f *Flow) tellFailure(nodeId string, msg types.RuleMsg, err error) {
	if f.onFailure != nil {
		f.onFailure(nodeId, msg, err)
		return
	}
	types.NewLogger(f.config.Logger).Printf("flow %s node %s: %v", f.id, nodeId, err)
}

// Destroy destroys every node in definition order.
func (f *Flow) Destroy() {
	f.once.Do(func() {
		for _, id := range f.order {
			if rn, ok := f.Node(id); ok {
				rn.Destroy()
			}
		}
	})
}
