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

package operand

import (
	"context"
	"fmt"
	"sync"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/utils/maps"
)

// Resolver 操作数解析器，每个节点实例持有一个
// Resolver resolves operands for one node instance.
//
// Resolve may block on the context store or on an expression. Callers serialize
// resolutions per node, so the memo and store reads observe arrival order.
type Resolver struct {
	// Store backs ContextValue operands and the node/flow/global expression functions.
	Store types.ContextStore
	// Memo backs PreviousResult operands.
	Memo *Memo
	// Properties are exposed to expressions as `env`.
	Properties map[string]string
}

// NewResolver creates a resolver over the store and properties of config.
func NewResolver(config types.Config, memo *Memo) *Resolver {
	return &Resolver{Store: config.Store, Memo: memo, Properties: config.Properties}
}

// Resolve returns the value of op for msg. Message fields that do not exist resolve to
// Missing. Failures are returned as *EvalError.
func (r *Resolver) Resolve(ctx context.Context, op Operand, msg types.RuleMsg) (interface{}, error) {
	switch o := op.(type) {
	case Literal:
		return o.Value, nil
	case MessageField:
		return o.lookup(msg), nil
	case ContextValue:
		v, err := r.contextGet(ctx, o.Scope, o.Key)
		if err != nil {
			return nil, newEvalError(StoreFailure, o, err)
		}
		return v, nil
	case PreviousResult:
		if r.Memo == nil {
			return nil, nil
		}
		return r.Memo.Load(), nil
	case ComputedExpression:
		return r.evaluate(ctx, o, msg)
	case nil:
		return nil, fmt.Errorf("%w: nil operand", ErrUnknownType)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, op)
	}
}

func (f MessageField) lookup(msg types.RuleMsg) interface{} {
	segments := f.segments
	if segments == nil {
		var err error
		if segments, err = maps.ParsePath(f.Path); err != nil {
			return Missing
		}
	}
	if v, ok := maps.LookupSegments(msg.Fields, segments); ok {
		return v
	}
	return Missing
}

func (r *Resolver) evaluate(ctx context.Context, e ComputedExpression, msg types.RuleMsg) (interface{}, error) {
	if e.Compiled == nil {
		return nil, newEvalError(ExpressionError, e, ErrNoEngine)
	}
	var (
		mu       sync.Mutex
		storeErr error
	)
	onStoreErr := func(err error) {
		mu.Lock()
		if storeErr == nil {
			storeErr = err
		}
		mu.Unlock()
	}
	out, err := e.Compiled.Evaluate(ctx, r.Env(ctx, msg, onStoreErr))
	mu.Lock()
	defer mu.Unlock()
	if storeErr != nil {
		return nil, newEvalError(StoreFailure, e, storeErr)
	}
	if err != nil {
		return nil, newEvalError(ExpressionError, e, err)
	}
	return out, nil
}

// Env 构建表达式执行环境
// Env builds the variables an expression sees for msg:
// `msg`, `id`, `ts`, `parts`, `index`, `count`, `prev`, `env` and the
// `node(key)`, `flow(key)`, `global(key)` context accessors.
// `index` and `count` are nil for a message outside a sequence, `count` also when undeclared.
// Store failures inside accessors are passed to onStoreErr and read as nil.
func (r *Resolver) Env(ctx context.Context, msg types.RuleMsg, onStoreErr func(error)) map[string]interface{} {
	env := map[string]interface{}{
		types.MsgKey:   msg.Fields,
		types.IdKey:    msg.Id,
		types.TsKey:    msg.Ts,
		types.PartsKey: msg.Parts.ToMap(),
		types.IndexKey: nil,
		types.CountKey: nil,
		types.PrevKey:  nil,
		"env":          r.Properties,
	}
	if msg.Parts != nil {
		env[types.IndexKey] = msg.Parts.Index
		if msg.Parts.HasCount() {
			env[types.CountKey] = msg.Parts.Count
		}
	}
	if r.Memo != nil {
		env[types.PrevKey] = r.Memo.Load()
	}
	for _, scope := range []types.ContextScope{types.ScopeNode, types.ScopeFlow, types.ScopeGlobal} {
		scope := scope
		env[string(scope)] = func(key string) interface{} {
			v, err := r.contextGet(ctx, scope, key)
			if err != nil {
				if onStoreErr != nil {
					onStoreErr(err)
				}
				return nil
			}
			return v
		}
	}
	return env
}

// contextGet reads key from scope. The first path segment of key is the stored key;
// the remaining segments are resolved inside the stored value.
func (r *Resolver) contextGet(ctx context.Context, scope types.ContextScope, key string) (interface{}, error) {
	if r.Store == nil {
		return nil, types.ErrStoreNotConfigured
	}
	segments, err := maps.ParsePath(key)
	if err != nil {
		return nil, err
	}
	first, ok := segments[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: %q", maps.ErrInvalidPath, key)
	}
	v, err := r.Store.Get(ctx, scope, first)
	if err != nil {
		return nil, err
	}
	if len(segments) == 1 || v == nil {
		return v, nil
	}
	nested, _ := maps.LookupSegments(v, segments[1:])
	return nested, nil
}
