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

// Package queue serializes the processing of a node's inbound messages.
//
// A Queue keeps a FIFO of pending entries and at most one serving goroutine. The serving
// goroutine hands entries to the handler one at a time, so a handler that blocks (on a
// context store read, for example) holds back every later entry of the same node.
// There is no timeout: a handler that never returns stalls its queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rulego/rulerouter/api/types"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Handler processes one entry. The context is cancelled when the queue is closed.
type Handler[T any] func(ctx context.Context, item T) error

type entry[T any] struct {
	item       T
	onComplete func(error)
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	pool   types.Pool
	parent context.Context
}

// WithPool serves the queue from pool instead of a dedicated goroutine.
// When the pool rejects the task a goroutine is started instead.
func WithPool(pool types.Pool) Option {
	return func(o *options) {
		o.pool = pool
	}
}

// WithContext sets the parent of the context handed to the handler.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.parent = ctx
	}
}

// Queue 节点输入队列，保证同一时间只有一条消息在处理
// Queue is a per-node FIFO with exactly one entry in flight.
type Queue[T any] struct {
	handler Handler[T]
	pool    types.Pool
	ctx     context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	pending    []entry[T]
	processing bool
	closed     bool
}

// New creates a queue serving handler.
func New[T any](handler Handler[T], opts ...Option) *Queue[T] {
	o := options{parent: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(o.parent)
	return &Queue[T]{handler: handler, pool: o.pool, ctx: ctx, cancel: cancel}
}

// Enqueue appends item and starts serving if the queue is idle. onComplete, if not nil,
// runs on the serving goroutine with the handler's result once item has been processed;
// it never runs for an entry that is dropped or still in flight when the queue closes.
func (q *Queue[T]) Enqueue(item T, onComplete func(error)) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, entry[T]{item: item, onComplete: onComplete})
	start := !q.processing
	q.processing = true
	q.mu.Unlock()

	if start {
		q.start()
	}
	return nil
}

func (q *Queue[T]) start() {
	if q.pool != nil {
		if err := q.pool.Submit(q.serve); err == nil {
			return
		}
	}
	go q.serve()
}

// serve drains the queue, then clears the processing flag.
func (q *Queue[T]) serve() {
	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			q.processing = false
			q.mu.Unlock()
			return
		}
		e := q.pending[0]
		q.pending[0] = entry[T]{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		err := q.run(e.item)

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			continue
		}
		if e.onComplete != nil {
			e.onComplete(err)
		}
	}
}

func (q *Queue[T]) run(item T) (err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("queue handler panic: %v", caught)
		}
	}()
	return q.handler(q.ctx, item)
}

// Close drops pending entries and cancels the handler context. The entry in flight, if any,
// runs to completion but its result is ignored. Close returns the number of dropped entries.
func (q *Queue[T]) Close() int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()
	q.cancel()
	return dropped
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of entries waiting, the entry in flight excluded.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Processing reports whether an entry is in flight or about to be served.
func (q *Queue[T]) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// Context returns the context handed to the handler.
func (q *Queue[T]) Context() context.Context {
	return q.ctx
}
