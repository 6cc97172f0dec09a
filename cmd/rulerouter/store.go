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

package main

import (
	"context"

	"github.com/rulego/rulerouter/store"
	"github.com/rulego/rulerouter/store/memory"
	"github.com/rulego/rulerouter/store/natskv"
	sqlstore "github.com/rulego/rulerouter/store/sql"
)

// openStore opens the configured backend. The returned function releases it.
func openStore(ctx context.Context, c StoreConfig) (store.Backend, func(), error) {
	switch c.Type {
	case StoreSql:
		s, err := sqlstore.Open(ctx, c.Sql)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case StoreNats:
		s, err := natskv.Open(ctx, c.Nats.Url, c.Nats.Bucket)
		if err != nil {
			return nil, nil, err
		}
		if c.Nats.Timeout > 0 {
			s.SetTimeout(c.Nats.Timeout)
		}
		return s, s.Close, nil
	default:
		s := memory.New(c.GcInterval)
		return s, s.StopGC, nil
	}
}
