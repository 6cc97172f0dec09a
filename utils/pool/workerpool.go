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

// Package pool provides the worker pool that serves node queues.
//
// Each node queue submits one long-running serve loop while it has pending messages, so a
// pool sized for the number of busy nodes keeps goroutine creation off the message path.
// Idle workers are reused most-recently-stopped first and retired after MaxIdleWorkerDuration.
//
// Package pool 提供服务节点队列的协程池。
package pool

import (
	"errors"
	"sync"
	"time"

	"github.com/rulego/rulerouter/api/types"
)

var (
	// ErrNoIdleWorkers is returned by Submit when every worker is busy and MaxWorkersCount is reached.
	ErrNoIdleWorkers = errors.New("no idle workers")
	// ErrPoolStopped is returned by Submit after Release.
	ErrPoolStopped = errors.New("worker pool stopped")
)

const defaultMaxIdleWorkerDuration = 10 * time.Second

var _ types.Pool = (*WorkerPool)(nil)

// WorkerPool 协程池，最近空闲的工作协程优先复用
// WorkerPool runs submitted functions on reusable worker goroutines.
type WorkerPool struct {
	// MaxWorkersCount caps the number of workers. Zero means unbounded.
	MaxWorkersCount int
	// MaxIdleWorkerDuration is how long a worker may stay idle before it exits.
	MaxIdleWorkerDuration time.Duration

	mu      sync.Mutex
	workers int
	busy    int
	ready   []*worker
	stopped bool
	stopCh  chan struct{}
	once    sync.Once
}

type worker struct {
	tasks    chan func()
	lastUsed time.Time
}

// NewWorkerPool creates and starts a pool.
func NewWorkerPool(maxWorkers int, maxIdle time.Duration) *WorkerPool {
	wp := &WorkerPool{MaxWorkersCount: maxWorkers, MaxIdleWorkerDuration: maxIdle}
	wp.Start()
	return wp
}

// Start starts the idle worker reaper. Calling it more than once has no effect.
func (wp *WorkerPool) Start() {
	wp.once.Do(func() {
		wp.stopCh = make(chan struct{})
		go wp.reap(wp.stopCh)
	})
}

// Submit hands fn to an idle worker, starting a new one if allowed.
func (wp *WorkerPool) Submit(fn func()) error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return ErrPoolStopped
	}
	var w *worker
	if n := len(wp.ready); n > 0 {
		w = wp.ready[n-1]
		wp.ready[n-1] = nil
		wp.ready = wp.ready[:n-1]
	} else if wp.MaxWorkersCount <= 0 || wp.workers < wp.MaxWorkersCount {
		w = &worker{tasks: make(chan func(), 1)}
		wp.workers++
		go wp.run(w)
	} else {
		wp.mu.Unlock()
		return ErrNoIdleWorkers
	}
	wp.busy++
	wp.mu.Unlock()
	w.tasks <- fn
	return nil
}

func (wp *WorkerPool) run(w *worker) {
	for fn := range w.tasks {
		if fn == nil {
			break
		}
		fn()
		if !wp.park(w) {
			break
		}
	}
	wp.mu.Lock()
	wp.workers--
	wp.mu.Unlock()
}

// park returns w to the ready stack. It reports false when the pool is stopping.
func (wp *WorkerPool) park(w *worker) bool {
	w.lastUsed = time.Now()
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.busy--
	if wp.stopped {
		return false
	}
	wp.ready = append(wp.ready, w)
	return true
}

func (wp *WorkerPool) reap(stopCh chan struct{}) {
	idle := wp.MaxIdleWorkerDuration
	if idle <= 0 {
		idle = defaultMaxIdleWorkerDuration
	}
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			wp.retireIdle(time.Now().Add(-idle))
		}
	}
}

// retireIdle stops workers idle since before deadline. The ready stack is ordered by
// last use, oldest first.
func (wp *WorkerPool) retireIdle(deadline time.Time) {
	wp.mu.Lock()
	n := 0
	for n < len(wp.ready) && wp.ready[n].lastUsed.Before(deadline) {
		n++
	}
	retired := append([]*worker(nil), wp.ready[:n]...)
	wp.ready = append(wp.ready[:0], wp.ready[n:]...)
	wp.mu.Unlock()
	for _, w := range retired {
		w.tasks <- nil
	}
}

// Release stops idle workers and rejects further submissions.
// Busy workers exit once their current function returns.
func (wp *WorkerPool) Release() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	ready := wp.ready
	wp.ready = nil
	stopCh := wp.stopCh
	wp.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
	}
	for _, w := range ready {
		w.tasks <- nil
	}
}

// Stats returns the number of live and busy workers.
func (wp *WorkerPool) Stats() (workers, busy int) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.workers, wp.busy
}
