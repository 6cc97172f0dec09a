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

// Package types defines the messages, node contracts and collaborator interfaces
// shared by the router packages and node components.
package types

import (
	"context"
)

// Relation types used on the diagnostic path.
const (
	Success = "Success"
	Failure = "Failure"
)

// Configuration 组件配置类型
// Configuration is the raw node configuration, decoded into a typed struct by each node.
type Configuration map[string]interface{}

// ComponentRegistry 节点组件注册器
type ComponentRegistry interface {
	//Register 注册组件，如果`node.Type()`已经存在则返回一个`已存在`错误
	Register(node Node) error
	//Unregister 删除组件
	Unregister(componentType string) error
	//NewNode 通过nodeType创建一个新的node实例
	NewNode(nodeType string) (Node, error)
	//GetComponents 获取所有注册组件列表
	GetComponents() map[string]Node
}

// Node 路由节点组件接口
// Node is a router-equipped node component.
//
// Each configured node gets its own instance through New, so state such as the
// previous-result memo, the pending queue and buffered groups is per instance.
type Node interface {
	//New 创建一个组件新实例
	New() Node
	//Type 组件类型，类型不能重复
	Type() string
	//Init 组件初始化。返回错误代表配置错误，节点被禁用
	//Init loads the configuration once. A returned error is fatal for the node.
	Init(ruleConfig Config, configuration Configuration) error
	//OnMsg 处理消息。消息进入节点队列，按到达顺序处理
	OnMsg(ctx RuleContext, msg RuleMsg)
	//Destroy 销毁，丢弃队列中的消息和未完成的分组
	Destroy()
}

// RuleContext 消息处理上下文，连接节点与下游以及诊断通道
// RuleContext is the emission sink and diagnostic channel for one inbound message.
type RuleContext interface {
	//TellPort 把消息发送到指定输出端口，不等待确认
	TellPort(msg RuleMsg, port int)
	//TellFailure 报告非致命错误
	TellFailure(msg RuleMsg, err error)
	//GetContext 获取上下文，用于取消阻塞操作
	GetContext() context.Context
	//Config 获取引擎配置
	Config() Config
	//GetSelfId 获取当前节点ID
	GetSelfId() string
}

// Pool 协程池
type Pool interface {
	//Submit 往协程池提交一个任务
	//如果协程池满返回错误
	Submit(task func()) error
	//Release 释放
	Release()
}

// ContextScope is the visibility of a context-store key.
type ContextScope string

const (
	ScopeNode   = ContextScope("node")
	ScopeFlow   = ContextScope("flow")
	ScopeGlobal = ContextScope("global")
)

// Valid reports whether s is one of the known scopes.
func (s ContextScope) Valid() bool {
	return s == ScopeNode || s == ScopeFlow || s == ScopeGlobal
}

// ContextStore is the external key/value store behind context operands.
// Calls may block; implementations must honour ctx cancellation where they can.
type ContextStore interface {
	// Get returns the value for key, or nil if it is not set.
	Get(ctx context.Context, scope ContextScope, key string) (interface{}, error)
	// Set stores value under key. A nil value deletes the key.
	Set(ctx context.Context, scope ContextScope, key string, value interface{}) error
}

// ExpressionEngine compiles expression source text once, at configuration time.
type ExpressionEngine interface {
	Compile(src string) (CompiledExpr, error)
}

// CompiledExpr is a compiled expression, safe for repeated evaluation.
type CompiledExpr interface {
	Evaluate(ctx context.Context, env map[string]interface{}) (interface{}, error)
}
