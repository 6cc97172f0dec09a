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

// Option is a function type that modifies the Config.
type Option func(*Config) error

// WithComponentsRegistry is an option that sets the components' registry of the Config.
func WithComponentsRegistry(componentsRegistry ComponentRegistry) Option {
	return func(c *Config) error {
		c.ComponentsRegistry = componentsRegistry
		return nil
	}
}

// WithPool is an option that sets the pool of the Config.
func WithPool(pool Pool) Option {
	return func(c *Config) error {
		c.Pool = pool
		return nil
	}
}

// WithLogger is an option that sets the logger of the Config.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.Logger = NewLogger(logger)
		return nil
	}
}

// WithStore is an option that sets the context store of the Config.
func WithStore(store ContextStore) Option {
	return func(c *Config) error {
		c.Store = store
		return nil
	}
}

// WithExpressionEngine registers an expression engine under name.
func WithExpressionEngine(name string, engine ExpressionEngine) Option {
	return func(c *Config) error {
		c.RegisterExpressionEngine(name, engine)
		return nil
	}
}

// WithMetrics is an option that sets the metrics recorder of the Config.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(c *Config) error {
		c.Metrics = metrics
		return nil
	}
}

// WithMaxKeptMsgs sets the default ceiling of buffered parts per grouping node.
func WithMaxKeptMsgs(max int) Option {
	return func(c *Config) error {
		c.MaxKeptMsgs = max
		return nil
	}
}

// WithScriptMaxExecutionTime is an option that sets the js execution limit of the Config.
func WithScriptMaxExecutionTime(d time.Duration) Option {
	return func(c *Config) error {
		c.ScriptMaxExecutionTime = d
		return nil
	}
}

// WithFlowId sets the flow id used for flow scoped context keys.
func WithFlowId(flowId string) Option {
	return func(c *Config) error {
		c.FlowId = flowId
		return nil
	}
}

// WithProperties sets the properties exposed to expressions as `env`.
func WithProperties(properties map[string]string) Option {
	return func(c *Config) error {
		c.Properties = properties
		return nil
	}
}
