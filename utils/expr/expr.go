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

// Package expr provides the default expression engine, backed by expr-lang.
//
// Expressions see the evaluation environment prepared by the operand resolver:
// `msg` (message fields), `id`, `ts`, `parts`, `index`, `count`, `prev`, `env`
// and the context accessors `node(key)`, `flow(key)` and `global(key)`. For example:
//
//	msg.payload.temperature > 50 && flow("threshold") != nil
package expr

import (
	"context"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rulego/rulerouter/api/types"
)

// Type is the operand type name the engine is registered under.
const Type = "expr"

var _ types.ExpressionEngine = (*Engine)(nil)

// shadowedBuiltins 与环境变量同名的内置函数
var shadowedBuiltins = []string{"count"}

// Engine compiles expr-lang programs.
type Engine struct {
	// AsBool forces boolean programs. Used for rule conditions.
	AsBool bool
}

// New creates an expr-lang engine.
func New() *Engine {
	return &Engine{}
}

// Compile compiles src once. Undefined variables evaluate to nil.
// The builtins named like environment keys are disabled so that `count` is the sequence count.
func (e *Engine) Compile(src string) (types.CompiledExpr, error) {
	src = strings.TrimSpace(src)
	opts := []expr.Option{expr.AllowUndefinedVariables()}
	for _, name := range shadowedBuiltins {
		opts = append(opts, expr.DisableBuiltin(name))
	}
	if e.AsBool {
		opts = append(opts, expr.AsBool())
	}
	program, err := expr.Compile(src, opts...)
	if err != nil {
		return nil, err
	}
	return &Program{Source: src, program: program}, nil
}

// Program is a compiled expr-lang program.
type Program struct {
	Source  string
	program *vm.Program
}

// Evaluate runs the program. A fresh VM is used per call so programs are safe to share.
func (p *Program) Evaluate(ctx context.Context, env map[string]interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var exprVm = vm.VM{}
	return exprVm.Run(p.program, env)
}
