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

// Package js provides a JavaScript expression engine for computed operands.
//
// This package implements the engine using the goja library. Each expression is
// compiled once into a goja.Program; evaluation borrows a VM from a pool, binds the
// environment (`msg`, `index`, `count`, `flow(key)`...) as globals and runs the program.
//
// A source containing a `return` statement is treated as a function body:
//
//	var t = msg.payload.temperature; return t > 50;
//
// anything else as a single expression:
//
//	msg.payload.temperature > 50
package js

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rulego/rulerouter/api/types"
)

const (
	// Type is the operand type name the engine is registered under.
	Type = "js"
	// GlobalKey global properties key,call them through the global.xx method
	GlobalKey = "env"
)

var ErrExecutionTimeout = errors.New("js execution timeout")

var _ types.ExpressionEngine = (*GojaJsEngine)(nil)

// GojaJsEngine goja js engine
type GojaJsEngine struct {
	vmPool     sync.Pool
	config     types.Config
	maxExecute time.Duration
}

// NewGojaJsEngine Create a new instance of the JavaScript engine
func NewGojaJsEngine(config types.Config) *GojaJsEngine {
	jsEngine := &GojaJsEngine{
		config:     config,
		maxExecute: config.ScriptMaxExecutionTime,
	}
	jsEngine.vmPool = sync.Pool{
		New: func() interface{} {
			return jsEngine.NewVm()
		},
	}
	return jsEngine
}

// NewVm new a js VM
func (g *GojaJsEngine) NewVm() *goja.Runtime {
	vm := goja.New()
	if len(g.config.Properties) != 0 {
		if err := vm.Set(GlobalKey, g.config.Properties); err != nil && g.config.Logger != nil {
			g.config.Logger.Printf("set global properties error: %s", err.Error())
		}
	}
	return vm
}

// Compile wraps src and precompiles it.
func (g *GojaJsEngine) Compile(src string) (types.CompiledExpr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, errors.New("empty js expression")
	}
	var wrapped string
	if strings.Contains(src, "return") {
		wrapped = fmt.Sprintf("(function(){ %s \n})()", src)
	} else {
		wrapped = fmt.Sprintf("(%s)", src)
	}
	program, err := goja.Compile("", wrapped, true)
	if err != nil {
		return nil, err
	}
	return &jsProgram{engine: g, program: program, source: src}, nil
}

type jsProgram struct {
	engine  *GojaJsEngine
	program *goja.Program
	source  string
}

// Evaluate Execute JavaScript script
func (p *jsProgram) Evaluate(ctx context.Context, env map[string]interface{}) (out interface{}, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("%s", caught)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := p.engine
	vm := g.vmPool.Get().(*goja.Runtime)
	defer g.vmPool.Put(vm)

	for k, v := range env {
		if err := vm.Set(k, v); err != nil {
			return nil, err
		}
	}
	defer func() {
		for k := range env {
			_ = vm.GlobalObject().Delete(k)
		}
	}()

	timer := g.startTimeout(vm)
	defer g.stopTimeout(vm, timer)

	res, err := vm.RunProgram(p.program)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, ErrExecutionTimeout
		}
		return nil, err
	}
	return res.Export(), nil
}

// startTimeout starts a timeout for JS script execution using time.AfterFunc
// Returns nil if timeout is not configured
func (g *GojaJsEngine) startTimeout(vm *goja.Runtime) *time.Timer {
	if g.maxExecute <= 0 {
		return nil
	}
	return time.AfterFunc(g.maxExecute, func() {
		vm.Interrupt("execution timeout")
	})
}

// stopTimeout stops the timeout timer and resets the interrupt flag before the VM is reused.
func (g *GojaJsEngine) stopTimeout(vm *goja.Runtime, timer *time.Timer) {
	if timer != nil {
		timer.Stop()
		vm.ClearInterrupt()
	}
}
