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

// Package endpoint carries messages between the outside world and a flow of router nodes.
//
// Package endpoint 在外部系统与路由节点之间传递消息。
//
// The wire form of a message is an Envelope, one JSON object per message:
//
//	{"node": "route", "fields": {"payload": 35, "topic": "t"}, "parts": {"id": "g1", "index": 0, "count": 2}}
//
// On input `node` names the node to deliver to; `id`, `ts` and `parts` are optional.
// On output `node` and `port` name the node and port that emitted the message.
//
// Built-in transports:
//
//   - Lines: newline-delimited envelopes over any io.Reader / io.Writer (endpoint.Lines)
//   - MQTT: topic to node bridge (endpoint/mqtt)
package endpoint
