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

// Package transform provides the field transform component.
//
// Package transform 提供字段修改组件。
//
//   - ChangeNode (`change`): applies set, change, delete and move rules to message fields
//     and context values, in order, then sends the message to output port 0.
//     按顺序执行修改规则，然后把消息发送到输出端口0
//
// Values are operands, as in the switch node: literals (`str`, `num`, `bool`, `json`),
// message fields (`msg`), context values (`flow`, `global`, `node`), `env` and expressions
// (`expr`, `js`).
package transform

import "github.com/rulego/rulerouter/api/types"

// Registry 本包组件注册表
var Registry = &types.SafeComponentSlice{}
