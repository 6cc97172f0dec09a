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

// Package metrics provides MetricsRecorder implementations: in-process atomic counters
// and Prometheus collectors.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/rulego/rulerouter/api/types"
)

var _ types.MetricsRecorder = (*Counters)(nil)

// Counters 路由计数器，进程内统计
// Counters holds router counters across all nodes.
type Counters struct {
	Received  int64 // Number of received messages
	Matched   int64 // Number of evaluations where at least one rule matched
	Unmatched int64 // Number of evaluations where no rule matched
	Sent      int64 // Number of emitted messages
	Failed    int64 // Number of reported errors
	Overflows int64 // Number of buffer overflows

	mu       sync.Mutex
	buffered map[string]int
	errors   map[string]int64
}

// NewCounters creates a new instance of Counters.
func NewCounters() *Counters {
	return &Counters{buffered: make(map[string]int), errors: make(map[string]int64)}
}

func (m *Counters) MsgReceived(_, _ string) {
	atomic.AddInt64(&m.Received, 1)
}

func (m *Counters) Evaluated(_, _ string, matched bool) {
	if matched {
		atomic.AddInt64(&m.Matched, 1)
	} else {
		atomic.AddInt64(&m.Unmatched, 1)
	}
}

func (m *Counters) Emitted(_, _ string, _ int) {
	atomic.AddInt64(&m.Sent, 1)
}

func (m *Counters) Error(_, _ string, kind string) {
	atomic.AddInt64(&m.Failed, 1)
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *Counters) Buffered(nodeId string, count int) {
	m.mu.Lock()
	m.buffered[nodeId] = count
	m.mu.Unlock()
}

func (m *Counters) Overflow(_ string) {
	atomic.AddInt64(&m.Overflows, 1)
}

// Snapshot is a copy of the counters.
type Snapshot struct {
	Received  int64
	Matched   int64
	Unmatched int64
	Sent      int64
	Failed    int64
	Overflows int64
	// Errors counts reported errors by kind.
	Errors map[string]int64
	// Buffered is the last buffered part count per node.
	Buffered map[string]int
}

// Get returns a copy of the current counters.
func (m *Counters) Get() Snapshot {
	s := Snapshot{
		Received:  atomic.LoadInt64(&m.Received),
		Matched:   atomic.LoadInt64(&m.Matched),
		Unmatched: atomic.LoadInt64(&m.Unmatched),
		Sent:      atomic.LoadInt64(&m.Sent),
		Failed:    atomic.LoadInt64(&m.Failed),
		Overflows: atomic.LoadInt64(&m.Overflows),
		Errors:    make(map[string]int64),
		Buffered:  make(map[string]int),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.errors {
		s.Errors[k] = v
	}
	for k, v := range m.buffered {
		s.Buffered[k] = v
	}
	return s
}

// Reset resets all counters to zero.
func (m *Counters) Reset() {
	atomic.StoreInt64(&m.Received, 0)
	atomic.StoreInt64(&m.Matched, 0)
	atomic.StoreInt64(&m.Unmatched, 0)
	atomic.StoreInt64(&m.Sent, 0)
	atomic.StoreInt64(&m.Failed, 0)
	atomic.StoreInt64(&m.Overflows, 0)
	m.mu.Lock()
	m.errors = make(map[string]int64)
	m.buffered = make(map[string]int)
	m.mu.Unlock()
}

// Multi fans events out to several recorders. Nil recorders are skipped.
func Multi(recorders ...types.MetricsRecorder) types.MetricsRecorder {
	var out multi
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multi []types.MetricsRecorder

func (m multi) MsgReceived(nodeType, nodeId string) {
	for _, r := range m {
		r.MsgReceived(nodeType, nodeId)
	}
}

func (m multi) Evaluated(nodeType, nodeId string, matched bool) {
	for _, r := range m {
		r.Evaluated(nodeType, nodeId, matched)
	}
}

func (m multi) Emitted(nodeType, nodeId string, port int) {
	for _, r := range m {
		r.Emitted(nodeType, nodeId, port)
	}
}

func (m multi) Error(nodeType, nodeId string, kind string) {
	for _, r := range m {
		r.Error(nodeType, nodeId, kind)
	}
}

func (m multi) Buffered(nodeId string, count int) {
	for _, r := range m {
		r.Buffered(nodeId, count)
	}
}

func (m multi) Overflow(nodeId string) {
	for _, r := range m {
		r.Overflow(nodeId)
	}
}
