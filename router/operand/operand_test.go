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
	"errors"
	"testing"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/utils/expr"
	"github.com/rulego/rulerouter/utils/js"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, scope types.ContextScope, key string) (interface{}, error) {
	args := m.Called(scope, key)
	return args.Get(0), args.Error(1)
}

func (m *mockStore) Set(ctx context.Context, scope types.ContextScope, key string, value interface{}) error {
	args := m.Called(scope, key, value)
	return args.Error(0)
}

func testConfig(store types.ContextStore) types.Config {
	config := types.NewConfig(types.WithStore(store), types.WithProperties(map[string]string{"site": "s1"}))
	config.RegisterExpressionEngine(expr.Type, expr.New())
	config.RegisterExpressionEngine(js.Type, js.NewGojaJsEngine(config))
	return config
}

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		valueType string
		value     interface{}
		want      interface{}
		wantErr   bool
	}{
		{"", "5", float64(5), false},
		{"", " 2.5 ", 2.5, false},
		{"", `"5"`, "5", false},
		{"", "'true'", "true", false},
		{"", "true", true, false},
		{"", "false", false, false},
		{"", "null", nil, false},
		{"", "abc", "abc", false},
		{"", "", "", false},
		{"", 7, 7, false},
		{TypeStr, 12, "12", false},
		{TypeNum, "12", float64(12), false},
		{TypeNum, "x", nil, true},
		{TypeBool, "true", true, false},
		{TypeBool, "yes?", nil, true},
		{TypeJson, `{"a":[1,2]}`, map[string]interface{}{"a": []interface{}{float64(1), float64(2)}}, false},
		{TypeJson, `{"a"`, nil, true},
		{TypeNull, "anything", nil, false},
		{TypeRegex, "^a.*", "^a.*", false},
	}
	for _, tt := range tests {
		got, err := ParseLiteral(tt.valueType, tt.value)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidLiteral, "%s %v", tt.valueType, tt.value)
			continue
		}
		require.Nil(t, err)
		assert.Equal(t, tt.want, got, "%s %v", tt.valueType, tt.value)
	}
}

func TestBuild(t *testing.T) {
	config := testConfig(nil)

	op, err := Build(Def{Type: TypeMsg, Value: "payload.items[0]"}, config)
	require.Nil(t, err)
	assert.Equal(t, KindMessageField, op.Kind())

	_, err = Build(Def{Type: TypeMsg, Value: ""}, config)
	assert.NotNil(t, err)

	op, err = Build(Def{Type: TypeFlow, Value: "limits.max"}, config)
	require.Nil(t, err)
	assert.Equal(t, ContextValue{Scope: types.ScopeFlow, Key: "limits.max"}, op)

	op, err = Build(Def{Type: TypePrev}, config)
	require.Nil(t, err)
	assert.Equal(t, KindPreviousResult, op.Kind())

	op, err = Build(Def{Type: TypeEnv, Value: "site"}, config)
	require.Nil(t, err)
	assert.Equal(t, Literal{Value: "s1"}, op)

	op, err = Build(Def{Type: expr.Type, Value: "index + 1 < count"}, config)
	require.Nil(t, err)
	assert.True(t, NeedsCount(op))

	op, err = Build(Def{Type: js.Type, Value: "msg.a + 1"}, config)
	require.Nil(t, err)
	assert.False(t, NeedsCount(op))

	_, err = Build(Def{Type: expr.Type, Value: "msg.a +"}, config)
	assert.NotNil(t, err)

	_, err = Build(Def{Type: "jsonata", Value: "$"}, config)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestResolveLiteralIdempotent(t *testing.T) {
	config := testConfig(nil)
	r := NewResolver(config, &Memo{})
	op, err := Build(Def{Value: `{"k":1}`, Type: TypeJson}, config)
	require.Nil(t, err)
	msg := types.NewMsg(0, nil)
	first, err := r.Resolve(context.Background(), op, msg)
	require.Nil(t, err)
	second, err := r.Resolve(context.Background(), op, msg)
	require.Nil(t, err)
	assert.Equal(t, first, second)
}

func TestResolveMessageField(t *testing.T) {
	config := testConfig(nil)
	r := NewResolver(config, &Memo{})
	msg := types.NewMsg(0, map[string]interface{}{
		"payload": map[string]interface{}{
			"items": []interface{}{"a", nil},
			"k v":   1,
		},
	})
	tests := []struct {
		path string
		want interface{}
	}{
		{"payload.items[0]", "a"},
		{"payload.items[1]", nil},
		{"payload.items[2]", Missing},
		{`payload["k v"]`, 1},
		{"payload.none", Missing},
		{"payload.items.x", Missing},
	}
	for _, tt := range tests {
		op, err := Build(Def{Type: TypeMsg, Value: tt.path}, config)
		require.Nil(t, err)
		got, err := r.Resolve(context.Background(), op, msg)
		require.Nil(t, err)
		assert.Equal(t, tt.want, got, tt.path)
	}
	assert.True(t, IsMissing(Missing))
	assert.False(t, IsMissing(nil))
}

func TestResolveContextValue(t *testing.T) {
	store := &mockStore{}
	store.On("Get", types.ScopeFlow, "limits").Return(map[string]interface{}{"max": 10}, nil)
	store.On("Get", types.ScopeGlobal, "down").Return(nil, errors.New("connection refused"))
	config := testConfig(store)
	r := NewResolver(config, &Memo{})
	msg := types.NewMsg(0, nil)

	got, err := r.Resolve(context.Background(), ContextValue{Scope: types.ScopeFlow, Key: "limits.max"}, msg)
	require.Nil(t, err)
	assert.Equal(t, 10, got)

	_, err = r.Resolve(context.Background(), ContextValue{Scope: types.ScopeGlobal, Key: "down"}, msg)
	assert.ErrorIs(t, err, ErrStoreFailure)
	var evalErr *EvalError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, StoreFailure, evalErr.Kind)
	assert.Equal(t, -1, evalErr.Rule)
	assert.Equal(t, 2, AtRule(err, 2).(*EvalError).Rule)

	noStore := NewResolver(testConfig(nil), &Memo{})
	_, err = noStore.Resolve(context.Background(), ContextValue{Scope: types.ScopeNode, Key: "a"}, msg)
	assert.ErrorIs(t, err, types.ErrStoreNotConfigured)
	store.AssertExpectations(t)
}

func TestResolvePreviousResult(t *testing.T) {
	memo := &Memo{}
	r := NewResolver(testConfig(nil), memo)
	msg := types.NewMsg(0, nil)
	v, err := r.Resolve(context.Background(), PreviousResult{}, msg)
	require.Nil(t, err)
	assert.Nil(t, v)
	memo.Store("last")
	v, err = r.Resolve(context.Background(), PreviousResult{}, msg)
	require.Nil(t, err)
	assert.Equal(t, "last", v)
}

func TestResolveComputedExpression(t *testing.T) {
	store := &mockStore{}
	store.On("Get", types.ScopeFlow, "threshold").Return(50, nil)
	store.On("Get", types.ScopeGlobal, "broken").Return(nil, errors.New("timeout"))
	config := testConfig(store)
	memo := &Memo{}
	memo.Store(3)
	r := NewResolver(config, memo)
	msg := types.NewPartMsg(map[string]interface{}{"temperature": 60}, types.Parts{Id: "g", Index: 1, Count: 3})

	op, err := Build(Def{Type: expr.Type, Value: `msg.temperature > flow("threshold") && index < count && prev == 3`}, config)
	require.Nil(t, err)
	v, err := r.Resolve(context.Background(), op, msg)
	require.Nil(t, err)
	assert.Equal(t, true, v)

	op, err = Build(Def{Type: js.Type, Value: "msg.temperature + '-' + env.site"}, config)
	require.Nil(t, err)
	v, err = r.Resolve(context.Background(), op, msg)
	require.Nil(t, err)
	assert.Equal(t, "60-s1", v)

	op, err = Build(Def{Type: expr.Type, Value: `global("broken")`}, config)
	require.Nil(t, err)
	_, err = r.Resolve(context.Background(), op, msg)
	assert.ErrorIs(t, err, ErrStoreFailure)

	op, err = Build(Def{Type: expr.Type, Value: "msg.temperature.x.y"}, config)
	require.Nil(t, err)
	_, err = r.Resolve(context.Background(), op, msg)
	assert.ErrorIs(t, err, ErrExpression)
}
