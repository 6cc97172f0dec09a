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

package types

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/mohae/deepcopy"
)

const (
	MsgKey      = "msg"
	IdKey       = "id"
	TsKey       = "ts"
	PartsKey    = "parts"
	IndexKey    = "index"
	CountKey    = "count"
	PrevKey     = "prev"
	PayloadKey  = "payload"
	TopicKey    = "topic"
	ResetKey    = "reset"
	PartsIdKey  = "id"
	PartsIdxKey = "index"
	PartsCntKey = "count"
)

// Parts 消息序列元数据，用于拆分/合并
// Parts is the sequence metadata of a message that belongs to a split sequence.
type Parts struct {
	// Id 分组ID，同一序列的所有消息相同
	Id string `json:"id"`
	// Index 在序列中的位置，从0开始
	Index int `json:"index"`
	// Count 序列消息总数，0表示未知
	// Count of zero means the sender did not declare the sequence length on this part.
	Count int `json:"count,omitempty"`
}

// HasCount reports whether the part declares the sequence length.
func (p *Parts) HasCount() bool {
	return p != nil && p.Count > 0
}

// Copy 复制
func (p *Parts) Copy() *Parts {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// ToMap exposes the parts to expressions.
func (p *Parts) ToMap() map[string]interface{} {
	if p == nil {
		return nil
	}
	return map[string]interface{}{
		PartsIdKey:  p.Id,
		PartsIdxKey: p.Index,
		PartsCntKey: p.Count,
	}
}

// RuleMsg 路由消息
// RuleMsg is an open-ended set of named fields plus optional sequence metadata.
type RuleMsg struct {
	// 消息时间戳
	Ts int64 `json:"ts"`
	// 消息ID
	Id string `json:"id"`
	// Fields 消息字段，可嵌套map/slice
	Fields map[string]interface{} `json:"fields"`
	// Parts 序列元数据，可为空
	Parts *Parts `json:"parts,omitempty"`
}

// NewMsg 创建一个新的消息实例，并通过uuid生成消息ID
func NewMsg(ts int64, fields map[string]interface{}) RuleMsg {
	uuId, _ := uuid.NewV4()
	return newMsg(uuId.String(), ts, fields, nil)
}

// NewPartMsg creates a message that is one part of the sequence parts.Id.
func NewPartMsg(fields map[string]interface{}, parts Parts) RuleMsg {
	uuId, _ := uuid.NewV4()
	return newMsg(uuId.String(), 0, fields, &parts)
}

func newMsg(id string, ts int64, fields map[string]interface{}, parts *Parts) RuleMsg {
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}
	if id == "" {
		uuId, _ := uuid.NewV4()
		id = uuId.String()
	}
	if fields == nil {
		fields = make(map[string]interface{})
	}
	return RuleMsg{
		Ts:     ts,
		Id:     id,
		Fields: fields,
		Parts:  parts,
	}
}

// Copy 深度复制。修改副本不会影响原消息
// Copy returns an independent deep copy of the message.
func (m *RuleMsg) Copy() RuleMsg {
	var fields map[string]interface{}
	if m.Fields != nil {
		fields, _ = deepcopy.Copy(m.Fields).(map[string]interface{})
	}
	return newMsg(m.Id, m.Ts, fields, m.Parts.Copy())
}

// InSequence reports whether the message carries usable sequence metadata.
func (m *RuleMsg) InSequence() bool {
	return m.Parts != nil && m.Parts.Id != ""
}

// Get 获取顶层字段
func (m *RuleMsg) Get(key string) (interface{}, bool) {
	v, ok := m.Fields[key]
	return v, ok
}

// Put 设置顶层字段
func (m *RuleMsg) Put(key string, value interface{}) {
	if m.Fields == nil {
		m.Fields = make(map[string]interface{})
	}
	m.Fields[key] = value
}
