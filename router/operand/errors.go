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
	"errors"
	"fmt"
)

// ErrorKind classifies an evaluation failure.
type ErrorKind int

const (
	ExpressionError ErrorKind = iota + 1
	StoreFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ExpressionError:
		return "expression"
	case StoreFailure:
		return "store"
	default:
		return "unknown"
	}
}

var (
	ErrExpression   = errors.New("expression error")
	ErrStoreFailure = errors.New("context store failure")
)

// EvalError is a per-message, recoverable failure to resolve an operand.
// The message's pass is abandoned; other queued messages proceed.
type EvalError struct {
	Kind    ErrorKind
	Operand string
	// Rule is the index of the rule being evaluated, -1 for the subject property.
	Rule int
	Err  error
}

func (e *EvalError) Error() string {
	where := "property"
	if e.Rule >= 0 {
		where = fmt.Sprintf("rule %d", e.Rule)
	}
	return fmt.Sprintf("%s error resolving %s (%s): %v", e.Kind, e.Operand, where, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// Is matches ErrExpression and ErrStoreFailure by kind.
func (e *EvalError) Is(target error) bool {
	switch target {
	case ErrExpression:
		return e.Kind == ExpressionError
	case ErrStoreFailure:
		return e.Kind == StoreFailure
	}
	return false
}

func newEvalError(kind ErrorKind, op Operand, err error) *EvalError {
	return &EvalError{Kind: kind, Operand: op.String(), Rule: -1, Err: err}
}

// AtRule records which rule failed. Errors of other types are returned unchanged.
func AtRule(err error, rule int) error {
	var ee *EvalError
	if errors.As(err, &ee) {
		cp := *ee
		cp.Rule = rule
		return &cp
	}
	return err
}
