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

// Package sql provides a context store backend on a MySQL or PostgreSQL table.
//
// Values are stored as JSON text in a two column table:
//
//	CREATE TABLE rulerouter_context (k VARCHAR(255) PRIMARY KEY, v TEXT NOT NULL)
package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/rulego/rulerouter/store"
	"github.com/rulego/rulerouter/utils/json"
)

const (
	DriverMysql    = "mysql"
	DriverPostgres = "postgres"
	// DefaultTable is the table used when Config.Table is empty.
	DefaultTable = "rulerouter_context"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported sql driver")
	ErrInvalidTable      = errors.New("invalid table name")
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var _ store.Backend = (*Store)(nil)

// Config 数据库上下文存储配置
type Config struct {
	// DriverName 数据库驱动名称，mysql或postgres
	DriverName string
	// Dsn 数据库连接配置，参考sql.Open参数
	Dsn string
	// PoolSize 连接池大小
	PoolSize int
	// Table 表名
	Table string
}

// Store is a sql backed context store.
type Store struct {
	db      *sql.DB
	queries queries
}

type queries struct {
	get, set, del, keys, create string
}

// Open opens the database, checks the connection and creates the table if needed.
func Open(ctx context.Context, config Config) (*Store, error) {
	db, err := sql.Open(config.DriverName, config.Dsn)
	if err != nil {
		return nil, err
	}
	if config.PoolSize > 0 {
		db.SetMaxOpenConns(config.PoolSize)
		db.SetMaxIdleConns(config.PoolSize / 2)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s, err := New(db, config.DriverName, config.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err = s.EnsureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database.
func New(db *sql.DB, driverName, table string) (*Store, error) {
	q, err := buildQueries(driverName, table)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, queries: q}, nil
}

func buildQueries(driverName, table string) (queries, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return queries{}, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	switch driverName {
	case DriverMysql:
		return queries{
			get:    fmt.Sprintf("SELECT v FROM %s WHERE k = ?", table),
			set:    fmt.Sprintf("INSERT INTO %s (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)", table),
			del:    fmt.Sprintf("DELETE FROM %s WHERE k = ?", table),
			keys:   fmt.Sprintf("SELECT k FROM %s WHERE k LIKE ? ESCAPE '!'", table),
			create: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (k VARCHAR(255) PRIMARY KEY, v TEXT NOT NULL)", table),
		}, nil
	case DriverPostgres:
		return queries{
			get:    fmt.Sprintf("SELECT v FROM %s WHERE k = $1", table),
			set:    fmt.Sprintf("INSERT INTO %s (k, v) VALUES ($1, $2) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v", table),
			del:    fmt.Sprintf("DELETE FROM %s WHERE k = $1", table),
			keys:   fmt.Sprintf("SELECT k FROM %s WHERE k LIKE $1 ESCAPE '!'", table),
			create: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (k VARCHAR(255) PRIMARY KEY, v TEXT NOT NULL)", table),
		}, nil
	default:
		return queries{}, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driverName)
	}
}

// EnsureTable creates the table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.queries.create)
	return err
}

func (s *Store) Get(ctx context.Context, key string) (interface{}, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.queries.get, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.DecodeValue([]byte(raw))
}

func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.queries.set, key, string(b))
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.queries.del, key)
	return err
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.keys, likePrefix(prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// likePrefix escapes LIKE wildcards in prefix with '!'.
func likePrefix(prefix string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(prefix) + "%"
}
