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

// Package group reassembles split message sequences.
//
// A Buffer holds the parts of every incomplete sequence seen by one node. A sequence is
// released exactly once, the moment the number of received parts reaches the count declared
// by its first part that carries one. The total number of held parts is bounded by a
// ceiling; exceeding it discards every incomplete sequence.
package group

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rulego/rulerouter/api/types"
)

var (
	// ErrGroupOverflow matches every *GroupOverflowError.
	ErrGroupOverflow = errors.New("too many pending parts")
	// ErrCountMismatch matches every *CountMismatchError.
	ErrCountMismatch = errors.New("sequence count mismatch")
	// ErrNotInSequence is returned when a message without sequence metadata is admitted.
	ErrNotInSequence = errors.New("message is not part of a sequence")
	// ErrBufferClosed is returned by Admit after Close.
	ErrBufferClosed = errors.New("group buffer closed")
)

// GroupOverflowError is returned when admitting a part takes the buffer over its ceiling.
// All incomplete groups have been discarded when it is returned.
type GroupOverflowError struct {
	Ceiling int
	// Dropped is the number of parts discarded, the admitted one included.
	Dropped int
}

func (e *GroupOverflowError) Error() string {
	return fmt.Sprintf("%s: ceiling %d exceeded, %d parts dropped", ErrGroupOverflow, e.Ceiling, e.Dropped)
}

func (e *GroupOverflowError) Is(target error) bool {
	return target == ErrGroupOverflow
}

// CountMismatchError reports a part whose count disagrees with the count already declared
// for its group. The declared count is kept.
type CountMismatchError struct {
	GroupId  string
	Declared int
	Got      int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("%s: group %s declared %d parts, part says %d", ErrCountMismatch, e.GroupId, e.Declared, e.Got)
}

func (e *CountMismatchError) Is(target error) bool {
	return target == ErrCountMismatch
}

// Group 分组，累积同一序列的消息
type Group struct {
	Id string
	// DeclaredCount is 0 until a part carrying a count arrives.
	DeclaredCount int
	// Received holds the parts in arrival order.
	Received []types.RuleMsg
	// Seq orders groups by creation.
	Seq uint64
}

// Info is a snapshot of an incomplete group.
type Info struct {
	Id            string
	DeclaredCount int
	Received      int
	Seq           uint64
}

// Result is the outcome of Admit.
type Result struct {
	// GroupId is the sequence the admitted part belongs to.
	GroupId string
	// Drained holds the complete sequence ordered by part index, nil while the group is pending.
	// Every drained part carries the declared count.
	Drained []types.RuleMsg
	// Warnings are non-fatal problems with the admitted part, such as a count mismatch.
	Warnings []error
}

// Complete reports whether the admission released a group.
func (r Result) Complete() bool {
	return r.Drained != nil
}

// Buffer 分组重组缓冲区
// Buffer is the reassembly buffer of one node. It is safe for concurrent use, although
// a node only ever admits one message at a time.
type Buffer struct {
	mu      sync.Mutex
	groups  map[string]*Group
	total   int
	ceiling int
	seq     uint64
	closed  bool
}

// NewBuffer creates a buffer holding at most ceiling parts. A ceiling of 0 is unbounded.
func NewBuffer(ceiling int) *Buffer {
	if ceiling < 0 {
		ceiling = 0
	}
	return &Buffer{groups: make(map[string]*Group), ceiling: ceiling}
}

// Admit adds msg to its group.
//
// A count of 0 is treated as unknown, so a group whose parts never declare a count only
// leaves the buffer through Clear or an overflow.
func (b *Buffer) Admit(msg types.RuleMsg) (Result, error) {
	if !msg.InSequence() {
		return Result{}, ErrNotInSequence
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Result{}, ErrBufferClosed
	}

	id := msg.Parts.Id
	res := Result{GroupId: id}
	g, ok := b.groups[id]
	if !ok {
		b.seq++
		g = &Group{Id: id, Seq: b.seq}
		b.groups[id] = g
	}
	g.Received = append(g.Received, msg)
	if msg.Parts.HasCount() {
		if g.DeclaredCount == 0 {
			g.DeclaredCount = msg.Parts.Count
		} else if g.DeclaredCount != msg.Parts.Count {
			res.Warnings = append(res.Warnings, &CountMismatchError{GroupId: id, Declared: g.DeclaredCount, Got: msg.Parts.Count})
		}
	}

	b.total++
	if b.ceiling > 0 && b.total > b.ceiling {
		dropped := b.clear()
		return res, &GroupOverflowError{Ceiling: b.ceiling, Dropped: dropped}
	}

	if g.DeclaredCount > 0 && len(g.Received) == g.DeclaredCount {
		delete(b.groups, id)
		b.total -= len(g.Received)
		res.Drained = drain(g)
	}
	return res, nil
}

// drain orders the parts by index, arrival order breaking ties, and stamps the declared count.
func drain(g *Group) []types.RuleMsg {
	out := make([]types.RuleMsg, len(g.Received))
	copy(out, g.Received)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Parts.Index < out[j].Parts.Index
	})
	for i := range out {
		p := out[i].Parts.Copy()
		p.Count = g.DeclaredCount
		out[i].Parts = p
	}
	return out
}

// Clear discards every incomplete group and returns the number of parts dropped.
func (b *Buffer) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clear()
}

// Close discards every incomplete group and rejects later admissions.
// It returns the number of parts dropped.
func (b *Buffer) Close() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.clear()
}

func (b *Buffer) clear() int {
	dropped := b.total
	b.groups = make(map[string]*Group)
	b.total = 0
	return dropped
}

// Len returns the number of parts held across all incomplete groups.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Ceiling returns the configured ceiling.
func (b *Buffer) Ceiling() int {
	return b.ceiling
}

// Groups returns the incomplete groups ordered by creation.
func (b *Buffer) Groups() []Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	infos := make([]Info, 0, len(b.groups))
	for _, g := range b.groups {
		infos = append(infos, Info{Id: g.Id, DeclaredCount: g.DeclaredCount, Received: len(g.Received), Seq: g.Seq})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Seq < infos[j].Seq })
	return infos
}
