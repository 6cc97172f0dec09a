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

package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool(t *testing.T) {
	wp := NewWorkerPool(0, time.Second)
	defer wp.Release()

	var n int32
	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		require.Nil(t, wp.Submit(func() {
			atomic.AddInt32(&n, 1)
			wg.Done()
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(1000), atomic.LoadInt32(&n))
}

func TestWorkerPoolMaxWorkers(t *testing.T) {
	wp := NewWorkerPool(1, time.Second)
	block := make(chan struct{})
	require.Nil(t, wp.Submit(func() { <-block }))
	assert.Equal(t, ErrNoIdleWorkers, wp.Submit(func() {}))
	workers, busy := wp.Stats()
	assert.Equal(t, 1, workers)
	assert.Equal(t, 1, busy)
	close(block)

	assert.Eventually(t, func() bool {
		return wp.Submit(func() {}) == nil
	}, time.Second, 10*time.Millisecond)

	wp.Release()
	wp.Release()
	assert.Equal(t, ErrPoolStopped, wp.Submit(func() {}))
}

func TestWorkerPoolRetiresIdleWorkers(t *testing.T) {
	wp := NewWorkerPool(0, 20*time.Millisecond)
	defer wp.Release()
	done := make(chan struct{})
	require.Nil(t, wp.Submit(func() { close(done) }))
	<-done
	assert.Eventually(t, func() bool {
		workers, _ := wp.Stats()
		return workers == 0
	}, 2*time.Second, 10*time.Millisecond)
}
