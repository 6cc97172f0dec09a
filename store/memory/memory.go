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

// Package memory provides an in-process context store backend.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mohae/deepcopy"
	"github.com/rulego/rulerouter/store"
)

var _ store.Backend = (*Store)(nil)

// Store is an in-memory backend. Values are deep copied on the way in and out, so a stored
// value never aliases message fields. Keys may carry a time to live.
type Store struct {
	items      map[string]item
	mu         sync.RWMutex
	stopGc     chan struct{} // Channel to signal GC to stop
	ticker     *time.Ticker  // Ticker for GC
	gcInterval time.Duration // GC interval duration
}

// item is a stored value. An expiration of 0 never expires.
type item struct {
	value      interface{}
	expiration int64
}

// New creates a Store. GC of expired keys starts with the first key set with a ttl.
func New(gcInterval time.Duration) *Store {
	s := &Store{
		items:      make(map[string]item),
		stopGc:     make(chan struct{}),
		gcInterval: time.Minute * 5, // Default 5 minute
	}
	if gcInterval > 0 {
		s.gcInterval = gcInterval
	}
	return s
}

// Get returns the value of key, or nil if it is unset or expired.
func (s *Store) Get(_ context.Context, key string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, found := s.items[key]
	if !found || it.expired(time.Now().UnixNano()) {
		return nil, nil
	}
	return deepcopy.Copy(it.value), nil
}

// Set stores value without expiration.
func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores value for ttl. A ttl of 0 never expires.
func (s *Store) SetWithTTL(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	var expiration int64
	if ttl > 0 {
		expiration = time.Now().Add(ttl).UnixNano()
	}
	s.mu.Lock()
	s.items[key] = item{value: deepcopy.Copy(value), expiration: expiration}
	shouldStartGC := expiration > 0 && s.ticker == nil
	s.mu.Unlock()

	if shouldStartGC {
		s.StartGC()
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Keys returns the live keys starting with prefix.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().UnixNano()
	var keys []string
	for k, v := range s.items {
		if strings.HasPrefix(k, prefix) && !v.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (it item) expired(now int64) bool {
	return it.expiration > 0 && now > it.expiration
}

// StartGC starts removing expired keys every gcInterval. It is a no-op if GC is running.
func (s *Store) StartGC() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.gcInterval)
	ticker, stop := s.ticker, s.stopGc
	go func() {
		for {
			select {
			case <-ticker.C:
				s.deleteExpired()
			case <-stop:
				return
			}
		}
	}()
}

// StopGC stops the GC goroutine.
func (s *Store) StopGC() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
	close(s.stopGc)
	s.stopGc = make(chan struct{})
}

func (s *Store) deleteExpired() {
	now := time.Now().UnixNano()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.items {
		if v.expired(now) {
			delete(s.items, k)
		}
	}
}
