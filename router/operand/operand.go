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

// Package operand resolves the typed operands of router rules: literals, message
// fields, context-store values, the node's previous result and computed expressions.
//
// Operand is a closed sum type. Every variant is built once at configuration time by
// Build and resolved per message by Resolver.Resolve.
package operand

import (
	"fmt"
	"sync"

	"github.com/rulego/rulerouter/api/types"
)

// Operand type names accepted in node configuration.
const (
	TypeMsg    = "msg"
	TypeFlow   = "flow"
	TypeGlobal = "global"
	TypeNode   = "node"
	TypePrev   = "prev"
	TypeEnv    = "env"
	TypeStr    = "str"
	TypeNum    = "num"
	TypeBool   = "bool"
	TypeJson   = "json"
	TypeNull   = "null"
	TypeRegex  = "re"
)

// Kind identifies an operand variant.
type Kind int

const (
	KindLiteral Kind = iota + 1
	KindMessageField
	KindContextValue
	KindPreviousResult
	KindComputedExpression
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindMessageField:
		return "msg"
	case KindContextValue:
		return "context"
	case KindPreviousResult:
		return "prev"
	case KindComputedExpression:
		return "expression"
	default:
		return "unknown"
	}
}

// Operand is one typed input of a rule. The set of variants is closed.
type Operand interface {
	Kind() Kind
	String() string
	sealed()
}

// missing is the type of the Missing sentinel.
type missing struct{}

func (missing) String() string { return "<missing>" }

// Missing is returned for a message field that does not exist. It is distinct from nil,
// equals nothing and only satisfies the `missing` test (and `istype undefined`).
var Missing interface{} = missing{}

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v interface{}) bool {
	_, ok := v.(missing)
	return ok
}

// Literal is a constant coerced at configuration time.
type Literal struct {
	Value interface{}
}

func (Literal) Kind() Kind { return KindLiteral }
func (l Literal) String() string {
	return fmt.Sprintf("literal(%v)", l.Value)
}
func (Literal) sealed() {}

// MessageField is a property path inside the message fields.
type MessageField struct {
	Path     string
	segments []interface{}
}

func (MessageField) Kind() Kind       { return KindMessageField }
func (f MessageField) String() string { return "msg." + f.Path }
func (MessageField) sealed()          {}

// ContextValue is a key in the node, flow or global context store.
// Key may be a property path; its first segment is the stored key.
type ContextValue struct {
	Scope types.ContextScope
	Key   string
}

func (ContextValue) Kind() Kind       { return KindContextValue }
func (c ContextValue) String() string { return string(c.Scope) + "." + c.Key }
func (ContextValue) sealed()          {}

// PreviousResult is the subject value memoized by the node after its last completed pass.
type PreviousResult struct{}

func (PreviousResult) Kind() Kind     { return KindPreviousResult }
func (PreviousResult) String() string { return "prev" }
func (PreviousResult) sealed()        {}

// ComputedExpression is an expression compiled at configuration time.
type ComputedExpression struct {
	Lang     string
	Source   string
	Compiled types.CompiledExpr
	// UsesCount is set when the expression references the sequence length,
	// which forces a grouping node to wait for the whole sequence.
	UsesCount bool
}

func (ComputedExpression) Kind() Kind       { return KindComputedExpression }
func (e ComputedExpression) String() string { return e.Lang + "(" + e.Source + ")" }
func (ComputedExpression) sealed()          {}

// Memo holds the per-node previous result.
type Memo struct {
	mu    sync.RWMutex
	value interface{}
}

// Load returns the memoized value, nil before the first completed pass.
func (m *Memo) Load() interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

// Store replaces the memoized value.
func (m *Memo) Store(v interface{}) {
	m.mu.Lock()
	m.value = v
	m.mu.Unlock()
}
