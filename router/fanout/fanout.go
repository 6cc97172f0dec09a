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

// Package fanout renumbers a completed sequence that is routed to several output ports.
//
// Each port receives its own sequence: a fresh id, indexes 0..count-1 in original order and
// a count equal to the number of parts routed to that port.
package fanout

import (
	"github.com/gofrs/uuid/v5"
	"github.com/rulego/rulerouter/api/types"
)

// Emission is one message to send on Port.
type Emission struct {
	// Member is the index of the source message in the completed sequence.
	Member int
	Port   int
	Msg    types.RuleMsg
}

// NewId returns a random sequence id.
func NewId() string {
	id, _ := uuid.NewV4()
	return id.String()
}

// Renumber stamps the members selected by masks with per-port sequence metadata.
//
// masks[i][p] selects members[i] for port p. Emissions are returned in member order, and in
// port order for one member. An emitted message shares Fields with its member; only Parts is
// replaced. newId is called once per port that receives at least one member; nil uses NewId.
func Renumber(members []types.RuleMsg, masks [][]bool, newId func() string) []Emission {
	if newId == nil {
		newId = NewId
	}
	// first pass: totals per port
	var totals []int
	for i := range members {
		if i >= len(masks) {
			break
		}
		for p, selected := range masks[i] {
			if !selected {
				continue
			}
			for len(totals) <= p {
				totals = append(totals, 0)
			}
			totals[p]++
		}
	}
	ids := make([]string, len(totals))
	for p, total := range totals {
		if total > 0 {
			ids[p] = newId()
		}
	}

	// second pass: stamp with running indexes
	next := make([]int, len(totals))
	var out []Emission
	for i, m := range members {
		if i >= len(masks) {
			break
		}
		for p, selected := range masks[i] {
			if !selected {
				continue
			}
			stamped := m
			stamped.Parts = &types.Parts{Id: ids[p], Index: next[p], Count: totals[p]}
			next[p]++
			out = append(out, Emission{Member: i, Port: p, Msg: stamped})
		}
	}
	return out
}

// ByPort groups emissions by port.
func ByPort(emissions []Emission) map[int][]types.RuleMsg {
	out := make(map[int][]types.RuleMsg)
	for _, e := range emissions {
		out[e.Port] = append(out[e.Port], e.Msg)
	}
	return out
}
