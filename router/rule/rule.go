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

// Package rule evaluates the ordered rule list of a router node against a subject value.
//
// Rules are built once from configuration by Build and evaluated per message by
// Evaluator.Evaluate, which returns one match flag per rule.
package rule

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/router/operand"
	"github.com/rulego/rulerouter/utils/cast"
)

// Operator 规则运算符
type Operator string

const (
	OpEq      Operator = "eq"
	OpNeq     Operator = "neq"
	OpLt      Operator = "lt"
	OpLte     Operator = "lte"
	OpGt      Operator = "gt"
	OpGte     Operator = "gte"
	OpBtwn    Operator = "btwn"
	OpCont    Operator = "cont"
	OpRegex   Operator = "regex"
	OpTrue    Operator = "true"
	OpFalse   Operator = "false"
	OpNull    Operator = "null"
	OpNnull   Operator = "nnull"
	OpExists  Operator = "exists"
	OpMissing Operator = "missing"
	OpIsType  Operator = "istype"
	OpEmpty   Operator = "empty"
	OpNempty  Operator = "nempty"
	OpHead    Operator = "head"
	OpTail    Operator = "tail"
	OpIndex   Operator = "index"
	OpHasKey  Operator = "hask"
	OpExpr    Operator = "expr"
	OpElse    Operator = "else"
)

var (
	ErrUnknownOperator = errors.New("unknown operator")
	ErrMissingOperand  = errors.New("missing operand")
	ErrUnknownTypeName = errors.New("unknown type name")
)

// arity is the number of operands each operator takes besides the subject.
var arity = map[Operator]int{
	OpEq: 1, OpNeq: 1, OpLt: 1, OpLte: 1, OpGt: 1, OpGte: 1,
	OpBtwn: 2, OpCont: 1, OpRegex: 1,
	OpTrue: 0, OpFalse: 0, OpNull: 0, OpNnull: 0, OpExists: 0, OpMissing: 0,
	OpIsType: 1, OpEmpty: 0, OpNempty: 0,
	OpHead: 1, OpTail: 1, OpIndex: 2, OpHasKey: 1,
	OpExpr: 1, OpElse: 0,
}

var typeNames = map[string]bool{
	"string": true, "number": true, "boolean": true, "array": true, "buffer": true,
	"object": true, "json": true, "null": true, "undefined": true,
}

// Config 规则配置
// Config is the configuration form of a rule, for example
//
//	{"operator": "btwn", "value": "10", "valueType": "num", "value2": "limits.max", "value2Type": "flow"}
type Config struct {
	Operator   string
	Value      interface{}
	ValueType  string
	Value2     interface{}
	Value2Type string
	// IgnoreCase makes `regex` case-insensitive.
	IgnoreCase bool
}

// Rule is an immutable, configured rule.
type Rule struct {
	Operator Operator
	// Operands are the comparison operands, the subject excluded.
	Operands   []operand.Operand
	IgnoreCase bool
	IsElse     bool
	// pattern is the regex of a `regex` rule whose pattern is a literal.
	pattern *regexp.Regexp
}

// Build 构建规则，字面量正则在此编译
// Build validates cfg and builds its operands. A literal regex is compiled here,
// so a bad pattern is a configuration error.
func Build(cfg Config, config types.Config) (Rule, error) {
	op := Operator(cfg.Operator)
	n, ok := arity[op]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownOperator, cfg.Operator)
	}
	r := Rule{Operator: op, IgnoreCase: cfg.IgnoreCase, IsElse: op == OpElse}
	defs := []operand.Def{{Type: cfg.ValueType, Value: cfg.Value}, {Type: cfg.Value2Type, Value: cfg.Value2}}
	for i := 0; i < n; i++ {
		if defs[i].Value == nil && defs[i].Type != operand.TypePrev && defs[i].Type != operand.TypeNull {
			return Rule{}, fmt.Errorf("%w: %s needs %d operand(s)", ErrMissingOperand, op, n)
		}
		o, err := operand.Build(defs[i], config)
		if err != nil {
			return Rule{}, err
		}
		r.Operands = append(r.Operands, o)
	}
	switch op {
	case OpRegex:
		if lit, ok := r.Operands[0].(operand.Literal); ok {
			re, err := regexp.Compile(patternOf(cast.ToString(lit.Value), r.IgnoreCase))
			if err != nil {
				return Rule{}, err
			}
			r.pattern = re
		}
	case OpIsType:
		if lit, ok := r.Operands[0].(operand.Literal); ok && !typeNames[cast.ToString(lit.Value)] {
			return Rule{}, fmt.Errorf("%w: %v", ErrUnknownTypeName, lit.Value)
		}
	}
	return r, nil
}

// NeedsCount 规则是否依赖序列总数
// NeedsCount reports whether the rule can only be evaluated once the sequence length is known.
func (r Rule) NeedsCount() bool {
	if r.Operator == OpTail {
		return true
	}
	for _, o := range r.Operands {
		if operand.NeedsCount(o) {
			return true
		}
	}
	return false
}

func patternOf(src string, ignoreCase bool) string {
	if ignoreCase {
		return "(?i)" + src
	}
	return src
}
