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
	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/utils/expr"
	"github.com/rulego/rulerouter/utils/js"
)

// NewConfig creates a Config backed by the default Registry, with the expr and js
// expression engines registered unless an option already registered them.
func NewConfig(opts ...types.Option) types.Config {
	c := types.NewConfig(types.WithComponentsRegistry(Registry))
	for _, opt := range opts {
		_ = opt(&c)
	}
	if _, ok := c.ExpressionEngines[expr.Type]; !ok {
		c.RegisterExpressionEngine(expr.Type, expr.New())
	}
	if _, ok := c.ExpressionEngines[js.Type]; !ok {
		c.RegisterExpressionEngine(js.Type, js.NewGojaJsEngine(c))
	}
	return c
}
