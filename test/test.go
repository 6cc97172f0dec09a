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

package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rulego/rulerouter/api/types"
	"github.com/stretchr/testify/require"
)

// FailurePort is the port passed to the callback for reported errors.
const FailurePort = -1

// NodeTestRuleContext
// 只为测试单节点，临时创建的上下文
// callback 回调处理结果，port为FailurePort时err为报告的错误
type NodeTestRuleContext struct {
	context  context.Context
	config   types.Config
	selfId   string
	callback func(msg types.RuleMsg, port int, err error)
}

func NewRuleContext(config types.Config, callback func(msg types.RuleMsg, port int, err error)) types.RuleContext {
	return &NodeTestRuleContext{
		context:  context.TODO(),
		config:   config,
		callback: callback,
	}
}

func NewRuleContextFull(ctx context.Context, config types.Config, selfId string, callback func(msg types.RuleMsg, port int, err error)) types.RuleContext {
	return &NodeTestRuleContext{
		context:  ctx,
		config:   config,
		selfId:   selfId,
		callback: callback,
	}
}

func (ctx *NodeTestRuleContext) TellPort(msg types.RuleMsg, port int) {
	ctx.callback(msg, port, nil)
}

func (ctx *NodeTestRuleContext) TellFailure(msg types.RuleMsg, err error) {
	ctx.callback(msg, FailurePort, err)
}

func (ctx *NodeTestRuleContext) GetContext() context.Context {
	return ctx.context
}

func (ctx *NodeTestRuleContext) Config() types.Config {
	return ctx.config
}

func (ctx *NodeTestRuleContext) GetSelfId() string {
	return ctx.selfId
}

// Output is one callback invocation recorded by a Recorder.
type Output struct {
	Port int
	Msg  types.RuleMsg
	Err  error
}

// Recorder 记录节点输出，可并发使用
type Recorder struct {
	mu      sync.Mutex
	outputs []Output
}

// Callback records an output. Pass it to NewRuleContext.
func (r *Recorder) Callback(msg types.RuleMsg, port int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, Output{Port: port, Msg: msg, Err: err})
}

// Outputs returns every recorded output in order.
func (r *Recorder) Outputs() []Output {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Output(nil), r.outputs...)
}

// Port returns the messages emitted on port, in order.
func (r *Recorder) Port(port int) []types.RuleMsg {
	var out []types.RuleMsg
	for _, o := range r.Outputs() {
		if o.Port == port && o.Err == nil {
			out = append(out, o.Msg)
		}
	}
	return out
}

// Errors returns the reported errors, in order.
func (r *Recorder) Errors() []error {
	var out []error
	for _, o := range r.Outputs() {
		if o.Port == FailurePort {
			out = append(out, o.Err)
		}
	}
	return out
}

// Len returns the number of recorded outputs.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outputs)
}

// WaitFor waits until at least n outputs are recorded.
func (r *Recorder) WaitFor(t *testing.T, n int) []Output {
	t.Helper()
	require.Eventually(t, func() bool { return r.Len() >= n }, 2*time.Second, time.Millisecond,
		"waiting for %d outputs", n)
	return r.Outputs()
}
