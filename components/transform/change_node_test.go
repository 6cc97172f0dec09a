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

package transform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/router/operand"
	"github.com/rulego/rulerouter/store"
	"github.com/rulego/rulerouter/store/memory"
	"github.com/rulego/rulerouter/test"
	"github.com/rulego/rulerouter/utils/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Get(ctx context.Context, scope types.ContextScope, key string) (interface{}, error) {
	return nil, errors.New("timeout")
}

func (failingStore) Set(ctx context.Context, scope types.ContextScope, key string, value interface{}) error {
	return errors.New("timeout")
}

// flakyStore fails reads of one key and serves the rest from a real store.
type flakyStore struct {
	types.ContextStore
	broken string
}

func (s flakyStore) Get(ctx context.Context, scope types.ContextScope, key string) (interface{}, error) {
	if key == s.broken {
		return nil, errors.New("timeout")
	}
	return s.ContextStore.Get(ctx, scope, key)
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

func newChange(t *testing.T, config types.Config, rules ...interface{}) (*ChangeNode, *test.Recorder, types.RuleContext) {
	t.Helper()
	config.RegisterExpressionEngine(expr.Type, expr.New())
	node, err := test.CreateAndInitNodeWithConfig(config, ChangeNodeType, types.Configuration{"rules": rules}, Registry)
	require.Nil(t, err)
	t.Cleanup(node.Destroy)
	rec := &test.Recorder{}
	return node.(*ChangeNode), rec, test.NewRuleContextFull(context.Background(), config, "c1", rec.Callback)
}

func rule(kv ...interface{}) map[string]interface{} {
	m := make(map[string]interface{})
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func TestChangeNodeNew(t *testing.T) {
	test.NodeNew(t, ChangeNodeType, &ChangeNode{}, Registry)
}

func TestChangeNodeConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		rule map[string]interface{}
		want error
	}{
		{"unknown type", rule("type", "swap", "property", "a"), ErrUnknownChangeType},
		{"bad scope", rule("type", "set", "property", "a", "propertyType", "chain", "to", 1), ErrInvalidTarget},
		{"index first", rule("type", "delete", "property", "[0].a"), ErrInvalidTarget},
		{"bad move target", rule("type", "move", "property", "a", "to", "b", "toType", "str"), ErrInvalidTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := test.CreateAndInitNodeWithConfig(types.NewConfig(), ChangeNodeType,
				types.Configuration{"rules": []interface{}{tt.rule}}, Registry)
			assert.True(t, types.IsConfigError(err))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := test.CreateAndInitNodeWithConfig(types.NewConfig(), ChangeNodeType,
		types.Configuration{"rules": []interface{}{rule("type", "change", "property", "a", "from", "(", "fromType", "re")}}, Registry)
	assert.True(t, types.IsConfigError(err))
}

func TestChangeNodeMsgRules(t *testing.T) {
	node, rec, ctx := newChange(t, types.NewConfig(),
		rule("type", "set", "property", "payload.unit", "to", "C", "toType", "str"),
		rule("type", "set", "property", "payload.double", "to", "msg.payload.value * 2", "toType", "expr"),
		rule("type", "change", "property", "topic", "from", "^sensors/(\\w+)", "fromType", "re", "to", "devices/$1", "toType", "str"),
		rule("type", "change", "property", "status", "from", "1", "fromType", "num", "to", "on", "toType", "str"),
		rule("type", "move", "property", "raw", "to", "payload.raw"),
		rule("type", "delete", "property", "debug"),
		rule("type", "set", "property", "copy", "to", "payload.tags", "toType", "msg"),
	)
	msg := types.NewMsg(0, map[string]interface{}{
		"payload": map[string]interface{}{"value": 21, "tags": []interface{}{"a"}},
		"topic":   "sensors/t1",
		"status":  1,
		"raw":     "0x15",
		"debug":   true,
	})
	node.OnMsg(ctx, msg)
	out := rec.WaitFor(t, 1)
	require.Nil(t, out[0].Err)
	assert.Equal(t, 0, out[0].Port)

	f := out[0].Msg.Fields
	payload := f["payload"].(map[string]interface{})
	assert.Equal(t, "C", payload["unit"])
	assert.Equal(t, 42, payload["double"])
	assert.Equal(t, "0x15", payload["raw"])
	assert.Equal(t, "devices/t1", f["topic"])
	assert.Equal(t, "on", f["status"])
	assert.NotContains(t, f, "raw")
	assert.NotContains(t, f, "debug")
	assert.Equal(t, []interface{}{"a"}, f["copy"])

	// the input message is untouched
	assert.Equal(t, "sensors/t1", msg.Fields["topic"])
	assert.Contains(t, msg.Fields, "debug")
	// copied values do not alias
	f["copy"].([]interface{})[0] = "b"
	assert.Equal(t, "a", payload["tags"].([]interface{})[0])
}

func TestChangeNodeStringReplace(t *testing.T) {
	node, rec, ctx := newChange(t, types.NewConfig(),
		rule("type", "change", "property", "payload", "from", "-", "fromType", "str", "to", "_", "toType", "str"),
		rule("type", "change", "property", "missing", "from", "a", "to", "b"),
	)
	node.OnMsg(ctx, types.NewMsg(0, map[string]interface{}{"payload": "a-b-c"}))
	out := rec.WaitFor(t, 1)
	assert.Equal(t, "a_b_c", out[0].Msg.Fields["payload"])
	assert.NotContains(t, out[0].Msg.Fields, "missing")
}

func TestChangeNodeContextTargets(t *testing.T) {
	cs := store.NewContextStore(memory.New(0), "f1", "c1")
	config := types.NewConfig(types.WithStore(cs))
	node, rec, ctx := newChange(t, config,
		rule("type", "set", "property", "limits.max", "propertyType", "flow", "to", "payload", "toType", "msg"),
		rule("type", "move", "property", "last", "to", "prevPayload"),
		rule("type", "set", "property", "last", "propertyType", "node", "to", "payload", "toType", "msg"),
		rule("type", "set", "property", "max", "to", "limits.max", "toType", "flow"),
	)
	node.OnMsg(ctx, types.NewMsg(0, map[string]interface{}{"payload": 50, "last": 40}))
	out := rec.WaitFor(t, 1)
	require.Nil(t, out[0].Err)
	assert.Equal(t, 50, out[0].Msg.Fields["max"])
	assert.Equal(t, 40, out[0].Msg.Fields["prevPayload"])

	bg := context.Background()
	v, _ := cs.Get(bg, types.ScopeFlow, "limits")
	assert.Equal(t, map[string]interface{}{"max": 50}, v)
	v, _ = cs.Get(bg, types.ScopeNode, "last")
	assert.Equal(t, 50, v)

	node2, rec2, ctx2 := newChange(t, config,
		rule("type", "delete", "property", "limits.max", "propertyType", "flow"),
		rule("type", "delete", "property", "last", "propertyType", "node"),
	)
	node2.OnMsg(ctx2, types.NewMsg(0, map[string]interface{}{}))
	rec2.WaitFor(t, 1)
	v, _ = cs.Get(bg, types.ScopeFlow, "limits")
	assert.Equal(t, map[string]interface{}{}, v)
	v, _ = cs.Get(bg, types.ScopeNode, "last")
	assert.Nil(t, v)
}

func TestChangeNodeFailingRuleAborts(t *testing.T) {
	config := types.NewConfig(types.WithStore(failingStore{}))
	node, rec, ctx := newChange(t, config,
		rule("type", "set", "property", "a", "to", 1, "toType", "num"),
		rule("type", "set", "property", "b", "to", "x", "toType", "flow"),
	)
	node.OnMsg(ctx, types.NewMsg(0, map[string]interface{}{"payload": 1}))
	node.OnMsg(ctx, types.NewMsg(0, map[string]interface{}{"payload": 2}))
	out := rec.WaitFor(t, 2)
	require.Len(t, out, 2)
	for i, o := range out {
		assert.Equal(t, test.FailurePort, o.Port)
		assert.True(t, errors.Is(o.Err, operand.ErrStoreFailure))
		var ee *operand.EvalError
		require.True(t, errors.As(o.Err, &ee))
		assert.Equal(t, 1, ee.Rule)
		assert.Equal(t, i+1, o.Msg.Fields["payload"])
		assert.NotContains(t, o.Msg.Fields, "a")
	}
}

func TestChangeNodeContextWritesKeptOnAbort(t *testing.T) {
	cs := store.NewContextStore(memory.New(0), "f1", "c1")
	config := types.NewConfig(types.WithStore(flakyStore{ContextStore: cs, broken: "broken"}))
	node, rec, ctx := newChange(t, config,
		rule("type", "set", "property", "seen", "propertyType", "flow", "to", "payload", "toType", "msg"),
		rule("type", "set", "property", "b", "to", "broken", "toType", "flow"),
	)
	node.OnMsg(ctx, types.NewMsg(0, map[string]interface{}{"payload": 7}))
	out := rec.WaitFor(t, 1)
	require.Len(t, out, 1)
	assert.Equal(t, test.FailurePort, out[0].Port)
	assert.True(t, errors.Is(out[0].Err, operand.ErrStoreFailure))

	v, err := cs.Get(context.Background(), types.ScopeFlow, "seen")
	require.Nil(t, err)
	assert.Equal(t, 7, v)
}

func TestChangeNodeDestroyDuringStoreRead(t *testing.T) {
	blocking := &blockingStore{started: make(chan struct{})}
	node, rec, ctx := newChange(t, types.NewConfig(types.WithStore(blocking)),
		rule("type", "set", "property", "limit", "to", "limit", "toType", "flow"),
	)
	node.OnMsg(ctx, types.NewMsg(0, map[string]interface{}{"payload": 1}))
	<-blocking.started
	node.Destroy()

	assert.Eventually(t, func() bool { return node.Idle() }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, rec.Len())
}

func TestChangeNodeDestroy(t *testing.T) {
	node, rec, ctx := newChange(t, types.NewConfig(), rule("type", "delete", "property", "a"))
	node.Destroy()
	node.OnMsg(ctx, types.NewMsg(0, nil))
	out := rec.WaitFor(t, 1)
	assert.Equal(t, types.ErrNodeClosed, out[0].Err)
}
