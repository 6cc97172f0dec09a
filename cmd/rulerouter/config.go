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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rulego/rulerouter/endpoint/mqtt"
	"github.com/rulego/rulerouter/engine"
	sqlstore "github.com/rulego/rulerouter/store/sql"
	"github.com/rulego/rulerouter/utils/json"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. RULEROUTER_ADMIN_ADDR.
const EnvPrefix = "RULEROUTER"

const (
	StoreMemory = "memory"
	StoreSql    = "sql"
	StoreNats   = "nats"
)

// Config 服务配置
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Admin  AdminConfig  `mapstructure:"admin"`
	Store  StoreConfig  `mapstructure:"store"`
	Pool   PoolConfig   `mapstructure:"pool"`
	Router RouterConfig `mapstructure:"router"`
	Input  InputConfig  `mapstructure:"input"`
	Output OutputConfig `mapstructure:"output"`
	Mqtt   MqttConfig   `mapstructure:"mqtt"`
	// FlowFile is a JSON flow definition. It takes precedence over Flow and keeps
	// the case of configuration keys, which the inline form lowercases.
	FlowFile string          `mapstructure:"flowFile"`
	Flow     engine.RuleFlow `mapstructure:"flow"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level"`
	// Format is text or json.
	Format string `mapstructure:"format"`
	// File defaults to stderr. Stdout is reserved for node outputs.
	File string `mapstructure:"file"`
}

// AdminConfig serves /metrics, /healthz and /nodes. An empty Addr disables it.
type AdminConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// StoreConfig 上下文存储配置
type StoreConfig struct {
	// Type is memory, sql or nats.
	Type       string          `mapstructure:"type"`
	GcInterval time.Duration   `mapstructure:"gcInterval"`
	Sql        sqlstore.Config `mapstructure:"sql"`
	Nats       NatsConfig      `mapstructure:"nats"`
}

// NatsConfig NATS KV存储配置
type NatsConfig struct {
	Url     string        `mapstructure:"url"`
	Bucket  string        `mapstructure:"bucket"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PoolConfig 协程池配置
type PoolConfig struct {
	MaxWorkers int           `mapstructure:"maxWorkers"`
	MaxIdle    time.Duration `mapstructure:"maxIdle"`
}

// RouterConfig holds the engine wide node defaults.
type RouterConfig struct {
	MaxKeptMsgs            int               `mapstructure:"maxKeptMsgs"`
	ScriptMaxExecutionTime time.Duration     `mapstructure:"scriptMaxExecutionTime"`
	Properties             map[string]string `mapstructure:"properties"`
}

// InputConfig 输入配置
type InputConfig struct {
	// Stdin reads newline-delimited envelopes from standard input.
	Stdin       bool   `mapstructure:"stdin"`
	DefaultNode string `mapstructure:"defaultNode"`
	MaxLineSize int    `mapstructure:"maxLineSize"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Failures also writes reported failures to standard output.
	Failures bool `mapstructure:"failures"`
}

// MqttConfig mqtt桥接配置
type MqttConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	mqtt.Config `mapstructure:",squash"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("admin.addr", "")
	v.SetDefault("admin.namespace", "rulerouter")
	v.SetDefault("store.type", StoreMemory)
	v.SetDefault("store.gcInterval", 5*time.Minute)
	v.SetDefault("store.sql.driverName", "")
	v.SetDefault("store.sql.dsn", "")
	v.SetDefault("store.sql.table", sqlstore.DefaultTable)
	v.SetDefault("store.nats.url", "")
	v.SetDefault("store.nats.bucket", "rulerouter")
	v.SetDefault("pool.maxWorkers", 0)
	v.SetDefault("pool.maxIdle", 10*time.Second)
	v.SetDefault("router.maxKeptMsgs", 0)
	v.SetDefault("router.scriptMaxExecutionTime", 2*time.Second)
	v.SetDefault("input.stdin", true)
	v.SetDefault("input.defaultNode", "")
	v.SetDefault("output.failures", false)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.server", "")
	v.SetDefault("flowFile", "")
}

// LoadConfig reads file, if not empty, over the defaults and applies RULEROUTER_* overrides.
func LoadConfig(file string) (Config, error) {
	var c Config
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	if c.FlowFile != "" {
		flow, err := loadFlowFile(c.FlowFile)
		if err != nil {
			return c, err
		}
		c.Flow = flow
	}
	return c, c.validate()
}

func loadFlowFile(file string) (engine.RuleFlow, error) {
	var flow engine.RuleFlow
	b, err := os.ReadFile(file)
	if err != nil {
		return flow, err
	}
	if err = json.Unmarshal(b, &flow); err != nil {
		return flow, fmt.Errorf("decode flow %s: %w", file, err)
	}
	return flow, nil
}

func (c Config) validate() error {
	switch c.Store.Type {
	case StoreMemory, StoreSql, StoreNats:
	default:
		return fmt.Errorf("store.type: unknown store %q", c.Store.Type)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if len(c.Flow.Nodes) == 0 {
		return fmt.Errorf("flow: no nodes defined")
	}
	if !c.Input.Stdin && !c.Mqtt.Enabled {
		return fmt.Errorf("input: neither stdin nor mqtt is enabled")
	}
	return nil
}
