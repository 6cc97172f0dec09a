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

package types

import (
	"time"
)

// Config defines the configuration shared by every node created from it.
type Config struct {
	// Logger is the logging interface, defaulting to `DefaultLogger()`.
	Logger Logger
	// Pool serves node queues. If not configured, the go func method is used.
	Pool Pool
	// ComponentsRegistry is the component registry nodes are created from.
	ComponentsRegistry ComponentRegistry
	// Store is the context store behind node/flow/global operands.
	// Nodes report a store failure when a context operand is used without one.
	Store ContextStore
	// ExpressionEngines maps an operand type (for example "expr" or "js") to its engine.
	ExpressionEngines map[string]ExpressionEngine
	// Metrics receives router counters. Nil disables metrics.
	Metrics MetricsRecorder
	// MaxKeptMsgs is the default ceiling of buffered parts per grouping node, 0 is unbounded.
	// A node's own `maxKeptMsgs` configuration overrides it.
	MaxKeptMsgs int
	// ScriptMaxExecutionTime is the maximum execution time of js expressions, defaulting to 2000 milliseconds.
	ScriptMaxExecutionTime time.Duration
	// Properties are global properties exposed to expressions as `env`.
	Properties map[string]string
	// FlowId is used to namespace flow scoped context keys.
	FlowId string
}

// MetricsRecorder receives router events. See package metrics for the Prometheus implementation.
type MetricsRecorder interface {
	MsgReceived(nodeType, nodeId string)
	Evaluated(nodeType, nodeId string, matched bool)
	Emitted(nodeType, nodeId string, port int)
	Error(nodeType, nodeId string, kind string)
	Buffered(nodeId string, count int)
	Overflow(nodeId string)
}

// RegisterExpressionEngine registers an engine for an operand type.
func (c *Config) RegisterExpressionEngine(name string, engine ExpressionEngine) {
	if c.ExpressionEngines == nil {
		c.ExpressionEngines = make(map[string]ExpressionEngine)
	}
	c.ExpressionEngines[name] = engine
}

// NewConfig creates a new Config with default values and applies the provided options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		ScriptMaxExecutionTime: time.Millisecond * 2000,
		Logger:                 DefaultLogger(),
		Properties:             make(map[string]string),
	}

	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}
