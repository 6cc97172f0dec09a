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

package filter

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/metrics"
	"github.com/rulego/rulerouter/router/group"
	"github.com/rulego/rulerouter/router/operand"
	"github.com/rulego/rulerouter/store"
	"github.com/rulego/rulerouter/store/memory"
	"github.com/rulego/rulerouter/test"
	"github.com/rulego/rulerouter/utils/expr"
	"github.com/rulego/rulerouter/utils/js"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Get(ctx context.Context, scope types.ContextScope, key string) (interface{}, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Set(ctx context.Context, scope types.ContextScope, key string, value interface{}) error {
	return errors.New("connection refused")
}

// blockingStore blocks every read until the caller's context is done.
type blockingStore struct {
	once    sync.Once
	started chan struct{}
}

func (s *blockingStore) Get(ctx context.Context, scope types.ContextScope, key string) (interface{}, error) {
	s.once.Do(func() { close(s.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *blockingStore) Set(ctx context.Context, scope types.ContextScope, key string, value interface{}) error {
	return nil
}

func newConfig(opts ...types.Option) types.Config {
	config := types.NewConfig(opts...)
	config.RegisterExpressionEngine(expr.Type, expr.New())
	config.RegisterExpressionEngine(js.Type, js.NewGojaJsEngine(config))
	return config
}

func newSwitch(t *testing.T, config types.Config, configuration types.Configuration) (*SwitchNode, *test.Recorder, types.RuleContext) {
	t.Helper()
	node, err := test.CreateAndInitNodeWithConfig(config, SwitchNodeType, configuration, Registry)
	require.Nil(t, err)
	t.Cleanup(node.Destroy)
	rec := &test.Recorder{}
	return node.(*SwitchNode), rec, test.NewRuleContextFull(context.Background(), config, "s1", rec.Callback)
}

func fields(kv ...interface{}) map[string]interface{} {
	m := make(map[string]interface{})
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func part(id string, index, count int) *types.Parts {
	return &types.Parts{Id: id, Index: index, Count: count}
}

func TestSwitchNodeNew(t *testing.T) {
	test.NodeNew(t, SwitchNodeType, &SwitchNode{}, Registry)

	node := (&SwitchNode{}).New().(*SwitchNode)
	assert.Equal(t, types.PayloadKey, node.Config.Property)
	assert.Equal(t, operand.TypeMsg, node.Config.PropertyType)
	assert.True(t, node.Config.CheckAll)
}

func TestSwitchNodeConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		field string
		rules []interface{}
		extra types.Configuration
	}{
		{"unknown operator", "rules[0]", []interface{}{map[string]interface{}{"operator": "approx", "value": 1}}, nil},
		{"missing operand", "rules[1]", []interface{}{map[string]interface{}{"operator": "else"}, map[string]interface{}{"operator": "btwn", "value": 1}}, nil},
		{"bad regex", "rules[0]", []interface{}{map[string]interface{}{"operator": "regex", "value": "a(b", "valueType": "re"}}, nil},
		{"bad expression", "rules[0]", []interface{}{map[string]interface{}{"operator": "expr", "value": "msg.a +", "valueType": "expr"}}, nil},
		{"bad property", "property", nil, types.Configuration{"propertyType": "jsonata"}},
		{"bad schedule", "resetSchedule", nil, types.Configuration{"resetSchedule": "every tuesday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configuration := types.Configuration{"rules": tt.rules}
			for k, v := range tt.extra {
				configuration[k] = v
			}
			node, err := test.CreateAndInitNodeWithConfig(newConfig(), SwitchNodeType, configuration, Registry)
			require.NotNil(t, err)
			var ce *types.ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)

			// a disabled node reports every message and never routes
			rec := &test.Recorder{}
			node.OnMsg(test.NewRuleContext(newConfig(), rec.Callback), types.NewMsg(0, fields("payload", 1)))
			require.Len(t, rec.Errors(), 1)
			assert.Equal(t, types.ErrNodeDisabled, rec.Errors()[0])
			assert.Equal(t, 1, rec.Len())
		})
	}
}

func TestSwitchNodeStopAtFirstMatch(t *testing.T) {
	node, rec, ctx := newSwitch(t, newConfig(), types.Configuration{
		"property": "topic",
		"rules": []interface{}{
			map[string]interface{}{"operator": "eq", "value": "a", "valueType": "str"},
			map[string]interface{}{"operator": "else"},
		},
		"checkAll": false,
	})
	assert.Equal(t, 2, node.Ports())
	assert.False(t, node.Grouping())

	node.OnMsg(ctx, types.NewMsg(0, fields("topic", "a")))
	node.OnMsg(ctx, types.NewMsg(0, fields("topic", "b")))
	out := rec.WaitFor(t, 2)
	assert.Equal(t, 0, out[0].Port)
	assert.Equal(t, "a", out[0].Msg.Fields["topic"])
	assert.Equal(t, 1, out[1].Port)
	assert.Equal(t, "b", out[1].Msg.Fields["topic"])
}

func TestSwitchNodeCheckAllCopies(t *testing.T) {
	for _, share := range []bool{false, true} {
		node, rec, ctx := newSwitch(t, newConfig(), types.Configuration{
			"property": "payload.temperature",
			"rules": []interface{}{
				map[string]interface{}{"operator": "gt", "value": "20", "valueType": "num"},
				map[string]interface{}{"operator": "btwn", "value": "10", "valueType": "num", "value2": 60},
				map[string]interface{}{"operator": "lt", "value": "0"},
			},
			"shareMsg": share,
		})
		msg := types.NewMsg(0, fields("payload", map[string]interface{}{"temperature": 50}))
		node.OnMsg(ctx, msg)
		out := rec.WaitFor(t, 2)
		require.Equal(t, 0, out[0].Port)
		require.Equal(t, 1, out[1].Port)

		same := func(a, b map[string]interface{}) bool {
			return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
		}
		assert.Equal(t, share, same(msg.Fields, out[0].Msg.Fields))
		assert.False(t, same(msg.Fields, out[1].Msg.Fields))
		assert.False(t, same(out[0].Msg.Fields, out[1].Msg.Fields))
		assert.Equal(t, msg.Id, out[1].Msg.Id)

		out[1].Msg.Fields["payload"].(map[string]interface{})["temperature"] = -1
		assert.Equal(t, 50, out[0].Msg.Fields["payload"].(map[string]interface{})["temperature"])
	}
}

func TestSwitchNodePreviousValue(t *testing.T) {
	node, rec, ctx := newSwitch(t, newConfig(), types.Configuration{
		"rules": []interface{}{
			map[string]interface{}{"operator": "eq", "valueType": "prev"},
			map[string]interface{}{"operator": "else"},
		},
		"checkAll": false,
	})
	for _, v := range []interface{}{1, 1, 2, 2, 2, 3} {
		node.OnMsg(ctx, types.NewMsg(0, fields("payload", v)))
	}
	out := rec.WaitFor(t, 6)
	var ports []int
	for _, o := range out {
		ports = append(ports, o.Port)
	}
	assert.Equal(t, []int{1, 0, 1, 0, 0, 1}, ports)
	assert.Equal(t, 3, node.memo.Load())
}

func TestSwitchNodeContextOperands(t *testing.T) {
	backend := memory.New(0)
	cs := store.NewContextStore(backend, "f1", "s1")
	require.Nil(t, cs.Set(context.Background(), types.ScopeFlow, "limits", map[string]interface{}{"max": 50}))
	require.Nil(t, cs.Set(context.Background(), types.ScopeGlobal, "site", "s1"))
	config := newConfig(types.WithStore(cs))

	node, rec, ctx := newSwitch(t, config, types.Configuration{
		"rules": []interface{}{
			map[string]interface{}{"operator": "gt", "value": "limits.max", "valueType": "flow"},
			map[string]interface{}{"operator": "expr", "value": `global("site") == "s1" && msg.payload < flow("limits").max`, "valueType": "expr"},
		},
	})
	node.OnMsg(ctx, types.NewMsg(0, fields("payload", 70)))
	node.OnMsg(ctx, types.NewMsg(0, fields("payload", 30)))
	out := rec.WaitFor(t, 2)
	assert.Equal(t, 0, out[0].Port)
	assert.Equal(t, 70, out[0].Msg.Fields["payload"])
	assert.Equal(t, 1, out[1].Port)
	assert.Equal(t, 30, out[1].Msg.Fields["payload"])
}

func TestSwitchNodeErrorsDoNotBlock(t *testing.T) {
	counters := metrics.NewCounters()
	config := newConfig(types.WithStore(failingStore{}), types.WithMetrics(counters))
	node, rec, ctx := newSwitch(t, config, types.Configuration{
		"rules": []interface{}{
			map[string]interface{}{"operator": "eq", "value": "on", "valueType": "str"},
			map[string]interface{}{"operator": "gt", "value": "limit", "valueType": "flow"},
			map[string]interface{}{"operator": "else"},
		},
		"checkAll": false,
	})
	node.OnMsg(ctx, types.NewMsg(0, fields("payload", "on")))
	node.OnMsg(ctx, types.NewMsg(0, fields("payload", "off")))
	node.OnMsg(ctx, types.NewMsg(0, fields("payload", "on")))
	out := rec.WaitFor(t, 3)

	assert.Equal(t, 0, out[0].Port)
	assert.Equal(t, test.FailurePort, out[1].Port)
	assert.True(t, errors.Is(out[1].Err, operand.ErrStoreFailure))
	var ee *operand.EvalError
	require.True(t, errors.As(out[1].Err, &ee))
	assert.Equal(t, 1, ee.Rule)
	assert.Equal(t, "off", out[1].Msg.Fields["payload"])
	assert.Equal(t, 0, out[2].Port)

	s := counters.Get()
	assert.Equal(t, int64(3), s.Received)
	assert.Equal(t, int64(2), s.Sent)
	assert.Equal(t, int64(1), s.Errors["StoreFailure"])
}

func TestSwitchNodeExpressionError(t *testing.T) {
	node, rec, ctx := newSwitch(t, newConfig(), types.Configuration{
		"property":     "msg.payload.a.b",
		"propertyType": "js",
		"rules": []interface{}{
			map[string]interface{}{"operator": "true"},
		},
	})
	node.OnMsg(ctx, types.NewMsg(0, fields("payload", 1)))
	node.OnMsg(ctx, types.NewMsg(0, fields("payload", map[string]interface{}{"a": map[string]interface{}{"b": true}})))
	out := rec.WaitFor(t, 2)
	assert.True(t, errors.Is(out[0].Err, operand.ErrExpression))
	var ee *operand.EvalError
	require.True(t, errors.As(out[0].Err, &ee))
	assert.Equal(t, -1, ee.Rule)
	assert.Equal(t, 0, out[1].Port)
}

func TestSwitchNodeReassembly(t *testing.T) {
	node, rec, ctx := newSwitch(t, newConfig(), types.Configuration{
		"rules": []interface{}{
			map[string]interface{}{"operator": "nnull"},
			map[string]interface{}{"operator": "gte", "value": "1", "valueType": "num"},
		},
		"repair": true,
	})
	require.True(t, node.Grouping())

	test.NodeOnMsg(t, node, ctx, []test.Msg{
		{Fields: fields("payload", 1), Parts: part("g1", 1, 3)},
		{Fields: fields("payload", 0), Parts: part("g1", 0, 3)},
	})
	// a message without sequence metadata is routed on its own
	node.OnMsg(ctx, types.NewMsg(0, fields("payload", 9)))
	out := rec.WaitFor(t, 2)
	require.Len(t, out, 2)
	assert.Equal(t, 9, out[0].Msg.Fields["payload"])
	assert.Nil(t, out[0].Msg.Parts)
	assert.Equal(t, 2, node.buffer.Len())

	node.OnMsg(ctx, types.NewPartMsg(fields("payload", 2), types.Parts{Id: "g1", Index: 2, Count: 3}))
	rec.WaitFor(t, 2+5)
	assert.Equal(t, 0, node.buffer.Len())

	port0 := rec.Port(0)[1:]
	require.Len(t, port0, 3)
	for i, m := range port0 {
		assert.Equal(t, i, m.Fields["payload"])
		assert.Equal(t, i, m.Parts.Index)
		assert.Equal(t, 3, m.Parts.Count)
		assert.NotEqual(t, "g1", m.Parts.Id)
		assert.Equal(t, port0[0].Parts.Id, m.Parts.Id)
	}
	port1 := rec.Port(1)[1:]
	require.Len(t, port1, 2)
	for i, m := range port1 {
		assert.Equal(t, i+1, m.Fields["payload"])
		assert.Equal(t, i, m.Parts.Index)
		assert.Equal(t, 2, m.Parts.Count)
	}
	assert.NotEqual(t, port0[0].Parts.Id, port1[0].Parts.Id)
}

func TestSwitchNodeGroupingForCount(t *testing.T) {
	node, rec, ctx := newSwitch(t, newConfig(), types.Configuration{
		"rules": []interface{}{
			map[string]interface{}{"operator": "expr", "value": "index == count - 1", "valueType": "expr"},
			map[string]interface{}{"operator": "tail", "value": "2", "valueType": "num"},
		},
	})
	require.True(t, node.Grouping())
	// only the first part declares the count
	test.NodeOnMsg(t, node, ctx, []test.Msg{
		{Fields: fields("payload", "c"), Parts: part("g", 2, 0)},
		{Fields: fields("payload", "a"), Parts: part("g", 0, 3)},
		{Fields: fields("payload", "b"), Parts: part("g", 1, 0)},
	})
	out := rec.WaitFor(t, 3)
	require.Len(t, out, 3)
	// without repair the original sequence metadata is kept, with the declared count
	assert.Equal(t, 1, out[0].Port)
	assert.Equal(t, "b", out[0].Msg.Fields["payload"])
	assert.Equal(t, types.Parts{Id: "g", Index: 1, Count: 3}, *out[0].Msg.Parts)
	assert.Equal(t, 0, out[1].Port)
	assert.Equal(t, "c", out[1].Msg.Fields["payload"])
	assert.Equal(t, 1, out[2].Port)
	assert.Equal(t, "c", out[2].Msg.Fields["payload"])
	assert.Equal(t, types.Parts{Id: "g", Index: 2, Count: 3}, *out[2].Msg.Parts)
}

func TestSwitchNodeOverflow(t *testing.T) {
	counters := metrics.NewCounters()
	node, rec, ctx := newSwitch(t, newConfig(types.WithMetrics(counters)), types.Configuration{
		"rules":       []interface{}{map[string]interface{}{"operator": "nnull"}},
		"repair":      true,
		"maxKeptMsgs": 2,
	})
	test.NodeOnMsg(t, node, ctx, []test.Msg{
		{Fields: fields("payload", 1), Parts: part("g1", 0, 3)},
		{Fields: fields("payload", 2), Parts: part("g2", 0, 3)},
		{Fields: fields("payload", 3), Parts: part("g3", 0, 3)},
	})
	out := rec.WaitFor(t, 1)
	require.Len(t, out, 1)
	var oe *group.GroupOverflowError
	require.True(t, errors.As(out[0].Err, &oe))
	assert.Equal(t, 2, oe.Ceiling)
	assert.Equal(t, 3, oe.Dropped)
	assert.Equal(t, 0, node.buffer.Len())

	// the node keeps working
	test.NodeOnMsg(t, node, ctx, []test.Msg{{Fields: fields("payload", 4), Parts: part("g4", 0, 1)}})
	out = rec.WaitFor(t, 2)
	assert.Equal(t, 0, out[1].Port)
	assert.Equal(t, int64(1), counters.Get().Overflows)
	assert.Equal(t, 0, counters.Get().Buffered["s1"])
}

func TestSwitchNodeEngineCeiling(t *testing.T) {
	config := newConfig()
	config.MaxKeptMsgs = 1
	node, _, _ := newSwitch(t, config, types.Configuration{"repair": true})
	assert.Equal(t, 1, node.buffer.Ceiling())

	node, _, _ = newSwitch(t, config, types.Configuration{"repair": true, "maxKeptMsgs": 5})
	assert.Equal(t, 5, node.buffer.Ceiling())
}

func TestSwitchNodeCountMismatch(t *testing.T) {
	node, rec, ctx := newSwitch(t, newConfig(), types.Configuration{
		"rules":  []interface{}{map[string]interface{}{"operator": "nnull"}},
		"repair": true,
	})
	test.NodeOnMsg(t, node, ctx, []test.Msg{
		{Fields: fields("payload", 0), Parts: part("g", 0, 2)},
		{Fields: fields("payload", 1), Parts: part("g", 1, 5)},
	})
	out := rec.WaitFor(t, 3)
	assert.True(t, errors.Is(out[0].Err, group.ErrCountMismatch))
	assert.Equal(t, 0, out[1].Port)
	assert.Equal(t, 2, out[2].Msg.Parts.Count)
}

func TestSwitchNodeResetMessage(t *testing.T) {
	node, rec, ctx := newSwitch(t, newConfig(), types.Configuration{
		"rules":  []interface{}{map[string]interface{}{"operator": "nnull"}},
		"repair": true,
	})
	test.NodeOnMsg(t, node, ctx, []test.Msg{
		{Fields: fields("payload", 0), Parts: part("g", 0, 2)},
		{Fields: fields("reset", true)},
		{Fields: fields("payload", 1), Parts: part("g", 1, 2)},
		{Fields: fields("payload", 9)},
	})
	out := rec.WaitFor(t, 1)
	require.Len(t, out, 1)
	assert.Equal(t, 9, out[0].Msg.Fields["payload"])
	// the reset message itself is not routed and the second part starts a new group
	assert.Equal(t, 1, node.buffer.Len())
}

func TestSwitchNodeResetSchedule(t *testing.T) {
	node, rec, ctx := newSwitch(t, newConfig(), types.Configuration{
		"rules":         []interface{}{map[string]interface{}{"operator": "nnull"}},
		"repair":        true,
		"resetSchedule": "@every 1s",
	})
	test.NodeOnMsg(t, node, ctx, []test.Msg{{Fields: fields("payload", 0), Parts: part("g", 0, 2)}})
	assert.Eventually(t, func() bool { return node.buffer.Len() == 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return node.buffer.Len() == 0 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, rec.Len())
}

func TestSwitchNodeDestroy(t *testing.T) {
	node, rec, ctx := newSwitch(t, newConfig(), types.Configuration{
		"rules":  []interface{}{map[string]interface{}{"operator": "nnull"}},
		"repair": true,
	})
	test.NodeOnMsg(t, node, ctx, []test.Msg{{Fields: fields("payload", 0), Parts: part("g", 0, 2)}})
	assert.Eventually(t, func() bool { return node.buffer.Len() == 1 }, time.Second, time.Millisecond)

	node.Destroy()
	assert.Equal(t, 0, node.buffer.Len())
	_, err := node.buffer.Admit(types.NewPartMsg(fields("payload", 1), types.Parts{Id: "g", Index: 1, Count: 2}))
	assert.Equal(t, group.ErrBufferClosed, err)
	assert.Equal(t, 0, node.buffer.Len())
	node.OnMsg(ctx, types.NewPartMsg(fields("payload", 1), types.Parts{Id: "g", Index: 1, Count: 2}))
	out := rec.WaitFor(t, 1)
	require.Len(t, out, 1)
	assert.Equal(t, types.ErrNodeClosed, out[0].Err)
}

func TestSwitchNodeDestroyDuringStoreRead(t *testing.T) {
	for _, repair := range []bool{false, true} {
		blocking := &blockingStore{started: make(chan struct{})}
		counters := metrics.NewCounters()
		node, rec, ctx := newSwitch(t, newConfig(types.WithStore(blocking), types.WithMetrics(counters)), types.Configuration{
			"property":     "limit",
			"propertyType": "flow",
			"rules":        []interface{}{map[string]interface{}{"operator": "nnull"}},
			"repair":       repair,
		})
		node.OnMsg(ctx, types.NewPartMsg(fields("payload", 1), types.Parts{Id: "g", Index: 0, Count: 1}))
		<-blocking.started
		node.Destroy()

		assert.Eventually(t, func() bool { return node.Idle() }, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 0, rec.Len())
		assert.Equal(t, int64(0), counters.Get().Failed)
		assert.Equal(t, 0, node.buffer.Len())
	}
}
