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

package test

import (
	"testing"
	"time"

	"github.com/rulego/rulerouter/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CreateAndInitNode 创建并初始化一个节点实例
func CreateAndInitNode(targetNodeType string, initConfig types.Configuration, registry *types.SafeComponentSlice) (types.Node, error) {
	return CreateAndInitNodeWithConfig(types.NewConfig(), targetNodeType, initConfig, registry)
}

// CreateAndInitNodeWithConfig 使用指定引擎配置创建并初始化一个节点实例
func CreateAndInitNodeWithConfig(config types.Config, targetNodeType string, initConfig types.Configuration, registry *types.SafeComponentSlice) (types.Node, error) {
	nodeFactory, ok := registry.Get(targetNodeType)
	if !ok {
		return nil, types.NewConfigError("type", types.ErrComponentNotFound)
	}
	node := nodeFactory.New()
	err := node.Init(config, initConfig)
	return node, err
}

// NodeNew 测试创建节点实例
func NodeNew(t *testing.T, targetNodeType string, targetNode types.Node, registry *types.SafeComponentSlice) {
	nodeFactory, ok := registry.Get(targetNodeType)
	require.True(t, ok)
	assert.Equal(t, targetNodeType, nodeFactory.Type())
	node := nodeFactory.New()
	assert.IsType(t, targetNode, node)
	assert.NotSame(t, nodeFactory, node)
}

type Msg struct {
	Fields map[string]interface{}
	Parts  *types.Parts
	//发之后暂停间隔
	AfterSleep time.Duration
}

// NodeOnMsg 按顺序发送消息
func NodeOnMsg(t *testing.T, node types.Node, ctx types.RuleContext, msgList []Msg) {
	for _, item := range msgList {
		msg := types.NewMsg(time.Now().UnixMilli(), item.Fields)
		if item.Parts != nil {
			msg.Parts = item.Parts.Copy()
		}
		node.OnMsg(ctx, msg)
		if item.AfterSleep > 0 {
			time.Sleep(item.AfterSleep)
		}
	}
}
