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

package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeDisabled is reported for messages sent to a node whose configuration failed to load.
	ErrNodeDisabled = errors.New("node disabled by configuration error")
	// ErrNodeClosed is returned when a message arrives after Destroy.
	ErrNodeClosed = errors.New("node closed")
	// ErrStoreNotConfigured is returned by context operations when Config.Store is nil.
	ErrStoreNotConfigured = errors.New("context store not configured")
	// ErrComponentNotFound is returned when no component is registered for a node type.
	ErrComponentNotFound = errors.New("component not found")
	// ErrComponentExists is returned when a node type is registered twice.
	ErrComponentExists = errors.New("component already exists")
)

// ConfigError 配置错误，节点加载时发生，会禁用节点
// ConfigError is a configuration-time failure. It disables the node.
type ConfigError struct {
	// Field is the configuration path, for example `rules[2].value`.
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %v", e.Err)
	}
	return fmt.Sprintf("config error at %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps err as a ConfigError for field.
func NewConfigError(field string, err error) error {
	return &ConfigError{Field: field, Err: err}
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
