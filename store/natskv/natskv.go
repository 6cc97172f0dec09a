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

// Package natskv provides a context store backend on a NATS JetStream key/value bucket.
//
// KV keys only allow a restricted alphabet, so store keys are encoded with
// unpadded base64url. Values are stored as JSON.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rulego/rulerouter/store"
	"github.com/rulego/rulerouter/utils/json"
)

// DefaultTimeout bounds every bucket operation.
const DefaultTimeout = 5 * time.Second

var _ store.Backend = (*Store)(nil)

// Bucket is the part of jetstream.KeyValue the store uses.
type Bucket interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
	ListKeys(ctx context.Context, opts ...jetstream.WatchOpt) (jetstream.KeyLister, error)
}

// Store is a NATS KV backed context store.
type Store struct {
	bucket  Bucket
	timeout time.Duration
	conn    *nats.Conn
}

// New wraps an existing bucket.
func New(bucket Bucket, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{bucket: bucket, timeout: timeout}
}

// Open connects to url and opens bucket, creating it if it does not exist.
func Open(ctx context.Context, url, bucket string, opts ...nats.Option) (*Store, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open kv bucket %s: %w", bucket, err)
	}
	s := New(kv, DefaultTimeout)
	s.conn = nc
	return s, nil
}

// SetTimeout changes the bound of every bucket operation.
func (s *Store) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.timeout = timeout
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeKey(key string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(key)
	return string(b), err
}

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}

func (s *Store) Get(ctx context.Context, key string) (interface{}, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	entry, err := s.bucket.Get(ctx, encodeKey(key))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return json.DecodeValue(entry.Value())
}

func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err = s.bucket.Put(ctx, encodeKey(key), b); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	err := s.bucket.Delete(ctx, encodeKey(key))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// Keys lists the bucket and keeps the keys starting with prefix.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	lister, err := s.bucket.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = lister.Stop() }()
	var keys []string
	for k := range lister.Keys() {
		key, err := decodeKey(k)
		if err != nil {
			// not written by this store
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close closes the connection opened by Open.
func (s *Store) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}
