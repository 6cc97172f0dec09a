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

// Package filter provides the rule routing components.
//
// - SwitchNode (`switch`): routes a message to the output ports of the rules it matches,
// with optional reassembly of message sequences and per-port sequence renumbering.
//
// Each component is registered with the Registry. Reference the component by its Type
// in a node configuration, for example:
//
//	{
//	  "id": "s1",
//	  "type": "switch",
//	  "configuration": {
//	    "property": "payload",
//	    "rules": [{"operator": "gt", "value": "50", "valueType": "num"}, {"operator": "else"}],
//	    "checkAll": false
//	  }
//	}
package filter

import "github.com/rulego/rulerouter/api/types"

// Registry 本包组件注册表
var Registry = &types.SafeComponentSlice{}
