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

package sql

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQueries(t *testing.T) {
	q, err := buildQueries(DriverPostgres, "")
	require.Nil(t, err)
	assert.True(t, strings.Contains(q.get, DefaultTable))
	assert.True(t, strings.Contains(q.set, "ON CONFLICT"))
	assert.True(t, strings.Contains(q.del, "$1"))

	q, err = buildQueries(DriverMysql, "ctx_values")
	require.Nil(t, err)
	assert.True(t, strings.Contains(q.set, "ON DUPLICATE KEY"))
	assert.True(t, strings.Contains(q.keys, "ctx_values"))

	_, err = buildQueries("sqlite", "")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
	_, err = buildQueries(DriverMysql, "x; DROP TABLE y")
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, "node:f!_1:%", likePrefix("node:f_1:"))
	assert.Equal(t, "a!%!!%", likePrefix("a%!"))
}

// TestStore runs against a live database when RULEROUTER_SQL_DRIVER and RULEROUTER_SQL_DSN are set.
func TestStore(t *testing.T) {
	driver, dsn := os.Getenv("RULEROUTER_SQL_DRIVER"), os.Getenv("RULEROUTER_SQL_DSN")
	if driver == "" || dsn == "" {
		t.Skip("RULEROUTER_SQL_DRIVER/RULEROUTER_SQL_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, Config{DriverName: driver, Dsn: dsn, PoolSize: 4, Table: "rulerouter_context_test"})
	require.Nil(t, err)
	defer s.Close()

	cs := store.NewContextStore(s, "f1", "n1")
	require.Nil(t, cs.Set(ctx, types.ScopeFlow, "limits", map[string]interface{}{"max": 10}))
	v, err := cs.Get(ctx, types.ScopeFlow, "limits")
	require.Nil(t, err)
	assert.Equal(t, map[string]interface{}{"max": float64(10)}, v)

	keys, err := cs.Keys(ctx, types.ScopeFlow)
	require.Nil(t, err)
	assert.Contains(t, keys, "limits")

	require.Nil(t, cs.Set(ctx, types.ScopeFlow, "limits", nil))
	v, err = cs.Get(ctx, types.ScopeFlow, "limits")
	require.Nil(t, err)
	assert.Nil(t, v)
}
