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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/utils/cast"
	"github.com/rulego/rulerouter/utils/maps"
)

var (
	ErrUnknownType     = errors.New("unknown operand type")
	ErrNoEngine        = errors.New("no expression engine registered")
	ErrInvalidLiteral  = errors.New("invalid literal")
	countReferenceExpr = regexp.MustCompile(`\bcount\b`)
)

// Def 操作数配置
// Def is the configuration form of an operand, for example
// `{"type": "msg", "value": "payload.temperature"}` or `{"type": "num", "value": "50"}`.
// An empty Type means an auto-typed literal.
type Def struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// Build 在配置加载时构建操作数：字面量完成类型转换，表达式完成编译，路径完成解析
// Build constructs an operand once at configuration time. Literals are coerced, message
// paths parsed and expressions compiled here so per-message resolution never fails on them.
func Build(def Def, config types.Config) (Operand, error) {
	switch def.Type {
	case TypeMsg:
		path := strings.TrimSpace(cast.ToString(def.Value))
		segments, err := maps.ParsePath(path)
		if err != nil {
			return nil, err
		}
		return MessageField{Path: path, segments: segments}, nil
	case TypeFlow, TypeGlobal, TypeNode:
		key := strings.TrimSpace(cast.ToString(def.Value))
		if _, err := maps.ParsePath(key); err != nil {
			return nil, err
		}
		return ContextValue{Scope: types.ContextScope(def.Type), Key: key}, nil
	case TypePrev:
		return PreviousResult{}, nil
	case TypeEnv:
		name := cast.ToString(def.Value)
		if v, ok := config.Properties[name]; ok {
			return Literal{Value: v}, nil
		}
		return Literal{Value: os.Getenv(name)}, nil
	case "", "auto", TypeStr, TypeNum, TypeBool, TypeJson, TypeNull, TypeRegex:
		v, err := ParseLiteral(def.Type, def.Value)
		if err != nil {
			return nil, err
		}
		return Literal{Value: v}, nil
	}
	engine, ok := config.ExpressionEngines[def.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, def.Type)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoEngine, def.Type)
	}
	src := cast.ToString(def.Value)
	compiled, err := engine.Compile(src)
	if err != nil {
		return nil, err
	}
	return ComputedExpression{
		Lang:      def.Type,
		Source:    src,
		Compiled:  compiled,
		UsesCount: countReferenceExpr.MatchString(src),
	}, nil
}

// ParseLiteral 按字面量类型转换配置值
// ParseLiteral coerces a configured literal.
//
// The auto type turns numeric strings into float64 unless they are quoted,
// "true"/"false" into booleans and "null" into nil. Other strings are kept,
// with one level of surrounding quotes removed.
func ParseLiteral(valueType string, value interface{}) (interface{}, error) {
	switch valueType {
	case TypeStr, TypeRegex:
		return cast.ToString(value), nil
	case TypeNum:
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v is not a number", ErrInvalidLiteral, value)
		}
		return f, nil
	case TypeBool:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v is not a boolean", ErrInvalidLiteral, value)
		}
		return b, nil
	case TypeJson:
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		var v interface{}
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLiteral, err)
		}
		return v, nil
	case TypeNull:
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	trimmed := strings.TrimSpace(s)
	if len(trimmed) >= 2 {
		first, last := trimmed[0], trimmed[len(trimmed)-1]
		if (first == '"' || first == '\'') && first == last {
			return trimmed[1 : len(trimmed)-1], nil
		}
	}
	switch trimmed {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}
	if f, ok := cast.ParseNumber(trimmed); ok {
		return f, nil
	}
	return s, nil
}

// NeedsCount reports whether resolving op depends on the declared sequence length.
func NeedsCount(op Operand) bool {
	e, ok := op.(ComputedExpression)
	return ok && e.UsesCount
}
