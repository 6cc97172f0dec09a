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

package endpoint

import (
	"errors"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/utils/json"
)

// ErrNoNode is returned when an inbound envelope names no node and no default is set.
var ErrNoNode = errors.New("envelope names no node")

// Envelope 消息的传输格式
// Envelope is the wire form of a message.
type Envelope struct {
	// Node is the destination node on input, the emitting node on output.
	Node string `json:"node,omitempty"`
	// Port is set on output only.
	Port *int `json:"port,omitempty"`
	// Error is set on output when the node reported a failure.
	Error string `json:"error,omitempty"`
	types.RuleMsg
}

// Decode parses one envelope. Missing id and timestamp are generated.
func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, err
	}
	msg := types.NewMsg(env.Ts, env.Fields)
	if env.Id != "" {
		msg.Id = env.Id
	}
	msg.Parts = env.Parts
	env.RuleMsg = msg
	return env, nil
}

// Encode renders msg as emitted on port of node.
func Encode(node string, port int, msg types.RuleMsg) ([]byte, error) {
	return json.Marshal(Envelope{Node: node, Port: &port, RuleMsg: msg})
}

// EncodeFailure renders a failure reported by node for msg.
func EncodeFailure(node string, msg types.RuleMsg, err error) ([]byte, error) {
	return json.Marshal(Envelope{Node: node, Error: err.Error(), RuleMsg: msg})
}
