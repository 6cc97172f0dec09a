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

package rule

import (
	"context"
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/router/operand"
)

// DefaultRegexCacheSize bounds the cache of patterns compiled at evaluation time.
const DefaultRegexCacheSize = 128

// Evaluator 规则执行器
// Evaluator applies a node's rules in order. It is owned by one node instance and,
// like the node's memo, must not be used by two messages at once.
type Evaluator struct {
	Resolver *operand.Resolver
	Memo     *operand.Memo
	// CheckAll evaluates every rule. When false the pass stops at the first match.
	CheckAll bool
	regexps  *lru.Cache[string, *regexp.Regexp]
}

// NewEvaluator creates an evaluator. The resolver and the evaluator share memo.
func NewEvaluator(resolver *operand.Resolver, memo *operand.Memo, checkAll bool) *Evaluator {
	cache, _ := lru.New[string, *regexp.Regexp](DefaultRegexCacheSize)
	return &Evaluator{Resolver: resolver, Memo: memo, CheckAll: checkAll, regexps: cache}
}

// Evaluate returns one match flag per rule.
//
// An `else` rule matches when no rule matched since the previous `else` rule, or since
// the start of the pass. Once the pass completes the memo holds subject, a missing subject
// being stored as nil. Any resolution failure aborts the pass: no flags are returned,
// the memo is left as it was and the error is an *operand.EvalError naming the rule.
func (e *Evaluator) Evaluate(ctx context.Context, rules []Rule, subject interface{}, msg types.RuleMsg) ([]bool, error) {
	matches := make([]bool, len(rules))
	elseFlag := true
	for i := range rules {
		r := &rules[i]
		var test bool
		if r.IsElse {
			test = elseFlag
			elseFlag = true
		} else {
			var err error
			if test, err = e.match(ctx, r, subject, msg); err != nil {
				return nil, operand.AtRule(err, i)
			}
		}
		if test {
			matches[i] = true
			elseFlag = false
			if !e.CheckAll {
				break
			}
		}
	}
	if e.Memo != nil {
		if operand.IsMissing(subject) {
			subject = nil
		}
		e.Memo.Store(subject)
	}
	return matches, nil
}

func (e *Evaluator) match(ctx context.Context, r *Rule, subject interface{}, msg types.RuleMsg) (bool, error) {
	fn, ok := operators[r.Operator]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, r.Operator)
	}
	op := operation{subject: subject, parts: msg.Parts}
	for _, o := range r.Operands {
		v, err := e.Resolver.Resolve(ctx, o, msg)
		if err != nil {
			return false, err
		}
		op.args = append(op.args, v)
	}
	if r.Operator == OpRegex && r.pattern == nil {
		if pattern, ok := scalarString(op.args[0]); ok {
			re, err := e.regex(patternOf(pattern, r.IgnoreCase))
			if err != nil {
				return false, &operand.EvalError{Kind: operand.ExpressionError, Operand: r.Operands[0].String(), Rule: -1, Err: err}
			}
			op.re = re
		}
	}
	return fn(r, op), nil
}

// regex returns the compiled pattern of a dynamic `regex` operand.
func (e *Evaluator) regex(pattern string) (*regexp.Regexp, error) {
	if e.regexps != nil {
		if re, ok := e.regexps.Get(pattern); ok {
			return re, nil
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if e.regexps != nil {
		e.regexps.Add(pattern, re)
	}
	return re, nil
}

// NeedsCount reports whether any rule needs the declared sequence length.
func NeedsCount(rules []Rule) bool {
	for _, r := range rules {
		if r.NeedsCount() {
			return true
		}
	}
	return false
}
