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
	"reflect"
	"regexp"
	"strings"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/router/operand"
	"github.com/rulego/rulerouter/utils/cast"
)

// operation holds the resolved inputs of one rule test.
type operation struct {
	subject interface{}
	args    []interface{}
	parts   *types.Parts
	// re is the compiled dynamic pattern of a `regex` rule.
	re *regexp.Regexp
}

type operatorFunc func(r *Rule, op operation) bool

var operators = map[Operator]operatorFunc{
	OpEq:  func(_ *Rule, op operation) bool { return looseEqual(op.subject, op.args[0]) },
	OpNeq: func(_ *Rule, op operation) bool { return looseNotEqual(op.subject, op.args[0]) },
	OpLt: func(_ *Rule, op operation) bool {
		return ordered(op.subject, op.args[0], func(c int) bool { return c < 0 })
	},
	OpLte: func(_ *Rule, op operation) bool {
		return ordered(op.subject, op.args[0], func(c int) bool { return c <= 0 })
	},
	OpGt: func(_ *Rule, op operation) bool {
		return ordered(op.subject, op.args[0], func(c int) bool { return c > 0 })
	},
	OpGte: func(_ *Rule, op operation) bool {
		return ordered(op.subject, op.args[0], func(c int) bool { return c >= 0 })
	},
	OpBtwn: func(_ *Rule, op operation) bool {
		a, lo, hi := op.subject, op.args[0], op.args[1]
		ge := func(c int) bool { return c >= 0 }
		le := func(c int) bool { return c <= 0 }
		return (ordered(a, lo, ge) && ordered(a, hi, le)) || (ordered(a, lo, le) && ordered(a, hi, ge))
	},
	OpCont: func(_ *Rule, op operation) bool {
		s, ok := scalarString(op.subject)
		if !ok {
			return false
		}
		sub, ok := scalarString(op.args[0])
		return ok && strings.Contains(s, sub)
	},
	OpRegex: func(r *Rule, op operation) bool {
		s, ok := scalarString(op.subject)
		if !ok {
			return false
		}
		re := r.pattern
		if re == nil {
			re = op.re
		}
		return re != nil && re.MatchString(s)
	},
	OpTrue:  func(_ *Rule, op operation) bool { return op.subject == true },
	OpFalse: func(_ *Rule, op operation) bool { return op.subject == false },
	OpNull:  func(_ *Rule, op operation) bool { return op.subject == nil },
	OpNnull: func(_ *Rule, op operation) bool {
		return op.subject != nil && !operand.IsMissing(op.subject)
	},
	OpExists:  func(_ *Rule, op operation) bool { return !operand.IsMissing(op.subject) },
	OpMissing: func(_ *Rule, op operation) bool { return operand.IsMissing(op.subject) },
	OpIsType: func(_ *Rule, op operation) bool {
		want := cast.ToString(op.args[0])
		if want == "json" {
			return isJsonString(op.subject)
		}
		return typeName(op.subject) == want
	},
	OpEmpty: func(_ *Rule, op operation) bool {
		empty, ok := isEmpty(op.subject)
		return ok && empty
	},
	OpNempty: func(_ *Rule, op operation) bool {
		empty, ok := isEmpty(op.subject)
		return ok && !empty
	},
	OpHead: func(_ *Rule, op operation) bool {
		n, ok := number(op.args[0])
		return op.parts != nil && ok && float64(op.parts.Index) < n
	},
	OpTail: func(_ *Rule, op operation) bool {
		n, ok := number(op.args[0])
		return op.parts.HasCount() && ok && float64(op.parts.Index) >= float64(op.parts.Count)-n
	},
	OpIndex: func(_ *Rule, op operation) bool {
		lo, ok1 := number(op.args[0])
		hi, ok2 := number(op.args[1])
		if op.parts == nil || !ok1 || !ok2 {
			return false
		}
		i := float64(op.parts.Index)
		return lo <= i && i <= hi
	},
	OpHasKey: func(_ *Rule, op operation) bool {
		key, ok := scalarString(op.args[0])
		if !ok || op.subject == nil {
			return false
		}
		rv := reflect.ValueOf(op.subject)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return false
		}
		return rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key())).IsValid()
	},
	OpExpr: func(_ *Rule, op operation) bool { return op.args[0] == true },
}

// scalarString converts strings, numbers and booleans for the string operators.
func scalarString(v interface{}) (string, bool) {
	switch classify(v) {
	case classString, classNumericString, classNumber, classBool:
		return cast.ToString(v), true
	}
	return "", false
}

func number(v interface{}) (float64, bool) {
	switch classify(v) {
	case classNumber, classNumericString:
		return toNumber(v), true
	}
	return 0, false
}
