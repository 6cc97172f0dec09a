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
	"encoding/json"
	"reflect"
	"strings"

	"github.com/rulego/rulerouter/router/operand"
	"github.com/rulego/rulerouter/utils/cast"
)

// Loose comparison is intentional: `"5" == 5` holds, matching the historical behaviour
// of the switch node. The whole policy is the table below so that it can be enumerated
// in tests.

// valueClass is the coercion class of a resolved operand.
type valueClass int

const (
	classNumber valueClass = iota
	classNumericString
	classString
	classBool
	classNil
	classMissing
	classComposite
	classCount
)

func (c valueClass) String() string {
	return [...]string{"number", "numeric string", "string", "bool", "nil", "missing", "composite"}[c]
}

// coercion is how two classes are compared.
type coercion int

const (
	// never: the comparison is false, for equality and for ordering.
	never coercion = iota
	// numeric: both sides are converted to float64; bools become 0 or 1.
	numeric
	// lexical: both sides are compared as strings.
	lexical
	// identity: equal, not ordered. Used for nil against nil.
	identity
)

// coercionTable[left][right]. Arrays and objects never compare, missing never compares.
var coercionTable = [classCount][classCount]coercion{
	classNumber: {
		classNumber:        numeric,
		classNumericString: numeric,
		classBool:          numeric,
	},
	classNumericString: {
		classNumber:        numeric,
		classNumericString: lexical,
		classString:        lexical,
		classBool:          numeric,
	},
	classString: {
		classNumericString: lexical,
		classString:        lexical,
	},
	classBool: {
		classNumber:        numeric,
		classNumericString: numeric,
		classBool:          numeric,
	},
	classNil: {
		classNil: identity,
	},
}

func classify(v interface{}) valueClass {
	if operand.IsMissing(v) {
		return classMissing
	}
	switch s := v.(type) {
	case nil:
		return classNil
	case bool:
		return classBool
	case string:
		if _, ok := cast.ParseNumber(s); ok {
			return classNumericString
		}
		return classString
	case json.Number:
		return classNumber
	}
	if cast.IsNumber(v) {
		return classNumber
	}
	return classComposite
}

func toNumber(v interface{}) float64 {
	switch b := v.(type) {
	case bool:
		if b {
			return 1
		}
		return 0
	case string:
		f, _ := cast.ParseNumber(b)
		return f
	}
	return cast.ToFloat64(v)
}

// compare orders a against b under the policy table. ok is false when the pair is not
// ordered, in which case every ordering and equality test fails.
func compare(a, b interface{}) (result int, ok bool) {
	switch coercionTable[classify(a)][classify(b)] {
	case numeric:
		x, y := toNumber(a), toNumber(b)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case lexical:
		return strings.Compare(a.(string), b.(string)), true
	}
	return 0, false
}

// looseEqual is the equality of the `eq` operator.
func looseEqual(a, b interface{}) bool {
	if coercionTable[classify(a)][classify(b)] == identity {
		return true
	}
	c, ok := compare(a, b)
	return ok && c == 0
}

// looseNotEqual is the inequality of the `neq` operator. Pairs the table does not compare
// are unequal, except that missing and composite values fail every comparison.
func looseNotEqual(a, b interface{}) bool {
	ca, cb := classify(a), classify(b)
	if ca == classMissing || cb == classMissing || ca == classComposite || cb == classComposite {
		return false
	}
	return !looseEqual(a, b)
}

func ordered(a, b interface{}, accept func(int) bool) bool {
	c, ok := compare(a, b)
	return ok && accept(c)
}

// isEmpty reports emptiness for strings, slices, arrays and maps. ok is false for other kinds.
func isEmpty(v interface{}) (empty bool, ok bool) {
	if v == nil || operand.IsMissing(v) {
		return false, false
	}
	if s, isString := v.(string); isString {
		return s == "", true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0, true
	}
	return false, false
}

// typeName names v the way the `istype` operator expects.
func typeName(v interface{}) string {
	if operand.IsMissing(v) {
		return "undefined"
	}
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []byte:
		return "buffer"
	}
	if cast.IsNumber(v) {
		return "number"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return "unknown"
}

// isJsonString reports whether v is a string holding a valid JSON document.
func isJsonString(v interface{}) bool {
	s, ok := v.(string)
	return ok && json.Valid([]byte(s))
}
