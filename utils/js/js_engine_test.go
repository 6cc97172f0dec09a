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

package js

import (
	"context"
	"testing"
	"time"

	"github.com/rulego/rulerouter/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGojaJsEngine(t *testing.T) {
	config := types.NewConfig(types.WithProperties(map[string]string{"site": "s1"}))
	engine := NewGojaJsEngine(config)

	p, err := engine.Compile("msg.temperature > 50")
	require.Nil(t, err)
	out, err := p.Evaluate(context.Background(), map[string]interface{}{
		"msg": map[string]interface{}{"temperature": 60},
	})
	require.Nil(t, err)
	assert.Equal(t, true, out)

	p, err = engine.Compile("var n = msg.name.toUpperCase(); return n + '-' + env.site + '-' + flow('k');")
	require.Nil(t, err)
	out, err = p.Evaluate(context.Background(), map[string]interface{}{
		"msg":  map[string]interface{}{"name": "aa"},
		"flow": func(key string) interface{} { return key + "v" },
	})
	require.Nil(t, err)
	assert.Equal(t, "AA-s1-kv", out)

	p, err = engine.Compile("index + 1")
	require.Nil(t, err)
	out, err = p.Evaluate(context.Background(), map[string]interface{}{"index": 2})
	require.Nil(t, err)
	assert.Equal(t, int64(3), out)

	_, err = engine.Compile("msg.a +* 2")
	assert.NotNil(t, err)
	_, err = engine.Compile("  ")
	assert.NotNil(t, err)

	p, err = engine.Compile("msg.a.b.c")
	require.Nil(t, err)
	_, err = p.Evaluate(context.Background(), map[string]interface{}{"msg": map[string]interface{}{}})
	assert.NotNil(t, err)
}

func TestGojaJsEngineTimeout(t *testing.T) {
	config := types.NewConfig(types.WithScriptMaxExecutionTime(50 * time.Millisecond))
	engine := NewGojaJsEngine(config)
	p, err := engine.Compile("while(true){}; return 1;")
	require.Nil(t, err)
	_, err = p.Evaluate(context.Background(), nil)
	assert.Equal(t, ErrExecutionTimeout, err)

	p, err = engine.Compile("1 + 1")
	require.Nil(t, err)
	out, err := p.Evaluate(context.Background(), nil)
	require.Nil(t, err)
	assert.Equal(t, int64(2), out)
}
