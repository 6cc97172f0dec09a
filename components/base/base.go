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

// Package base provides helpers shared by the router node components.
package base

import (
	"errors"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/router/fanout"
	"github.com/rulego/rulerouter/router/group"
	"github.com/rulego/rulerouter/router/operand"
)

// Error kinds reported to MetricsRecorder.Error.
const (
	KindExpression    = "ExpressionError"
	KindStoreFailure  = "StoreFailure"
	KindGroupOverflow = "GroupOverflow"
	KindCountMismatch = "CountMismatch"
	KindNodeClosed    = "NodeClosed"
	KindNodeDisabled  = "NodeDisabled"
	KindOther         = "Other"
)

var NodeUtils = &nodeUtils{}

type nodeUtils struct {
}

// Recorder returns the configured metrics recorder, or one that discards events.
func (n *nodeUtils) Recorder(config types.Config) types.MetricsRecorder {
	if config.Metrics != nil {
		return config.Metrics
	}
	return nopRecorder{}
}

// ErrorKind classifies err for metrics and logs.
func (n *nodeUtils) ErrorKind(err error) string {
	switch {
	case errors.Is(err, operand.ErrExpression):
		return KindExpression
	case errors.Is(err, operand.ErrStoreFailure):
		return KindStoreFailure
	case errors.Is(err, group.ErrGroupOverflow):
		return KindGroupOverflow
	case errors.Is(err, group.ErrCountMismatch):
		return KindCountMismatch
	case errors.Is(err, types.ErrNodeClosed):
		return KindNodeClosed
	case errors.Is(err, types.ErrNodeDisabled):
		return KindNodeDisabled
	default:
		return KindOther
	}
}

// Report sends err to the diagnostic channel and counts it.
func (n *nodeUtils) Report(ctx types.RuleContext, nodeType string, msg types.RuleMsg, err error) {
	n.Recorder(ctx.Config()).Error(nodeType, ctx.GetSelfId(), n.ErrorKind(err))
	ctx.TellFailure(msg, err)
}

// Emit hands emissions to ctx. Every emitted message is a copy, except that with share
// the first emission of each member carries the member itself.
func (n *nodeUtils) Emit(ctx types.RuleContext, nodeType string, emissions []fanout.Emission, share bool) {
	rec := n.Recorder(ctx.Config())
	shared := make(map[int]bool)
	for _, e := range emissions {
		msg := e.Msg
		if share && !shared[e.Member] {
			shared[e.Member] = true
		} else {
			msg = msg.Copy()
		}
		ctx.TellPort(msg, e.Port)
		rec.Emitted(nodeType, ctx.GetSelfId(), e.Port)
	}
}

type nopRecorder struct{}

func (nopRecorder) MsgReceived(string, string)     {}
func (nopRecorder) Evaluated(string, string, bool) {}
func (nopRecorder) Emitted(string, string, int)    {}
func (nopRecorder) Error(string, string, string)   {}
func (nopRecorder) Buffered(string, int)           {}
func (nopRecorder) Overflow(string)                {}
