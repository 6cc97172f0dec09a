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

// Package maps decodes node configuration and resolves dotted/bracketed property paths
// such as `payload.items[0]["full name"]` inside message fields and context values.
package maps

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var (
	ErrEmptyPath   = errors.New("empty property path")
	ErrInvalidPath = errors.New("invalid property path")
	ErrNotSettable = errors.New("path traverses a non-container value")
)

// Map2Struct Decode takes an input structure and uses reflection to translate it to
// the output structure. output must be a pointer to a map or struct.
// Decoded maps and slices replace the existing ones instead of being merged into them.
func Map2Struct(input interface{}, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		ZeroFields: true,
		Result:     output,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// ParsePath splits a property path into segments. String segments are map keys,
// int segments are slice indexes.
//
//	a.b[0]["c.d"]  ->  "a", "b", 0, "c.d"
func ParsePath(path string) ([]interface{}, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrEmptyPath
	}
	var segments []interface{}
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			segments = append(segments, sb.String())
			sb.Reset()
		}
	}
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '.':
			if sb.Len() == 0 && (i == 0 || path[i-1] != ']') {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
			}
			flush()
		case '[':
			flush()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed bracket in %q", ErrInvalidPath, path)
			}
			inner := strings.TrimSpace(path[i+1 : i+end])
			if n := len(inner); n >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[n-1] == inner[0] {
				segments = append(segments, inner[1:n-1])
			} else if idx, err := strconv.Atoi(inner); err == nil && idx >= 0 {
				segments = append(segments, idx)
			} else {
				return nil, fmt.Errorf("%w: bad index %q in %q", ErrInvalidPath, inner, path)
			}
			i += end
		default:
			sb.WriteByte(c)
		}
	}
	if strings.HasSuffix(path, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	flush()
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return segments, nil
}

// Lookup resolves path inside root. The second result is false when any segment is absent,
// which callers must keep distinct from a present nil value.
func Lookup(root interface{}, path string) (interface{}, bool) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	return LookupSegments(root, segments)
}

// LookupSegments resolves already parsed segments inside root.
func LookupSegments(root interface{}, segments []interface{}) (interface{}, bool) {
	current := root
	for _, seg := range segments {
		switch key := seg.(type) {
		case string:
			switch m := current.(type) {
			case map[string]interface{}:
				v, ok := m[key]
				if !ok {
					return nil, false
				}
				current = v
			case map[string]string:
				v, ok := m[key]
				if !ok {
					return nil, false
				}
				current = v
			default:
				return nil, false
			}
		case int:
			rv := reflect.ValueOf(current)
			if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || key >= rv.Len() {
				return nil, false
			}
			current = rv.Index(key).Interface()
		}
	}
	return current, true
}

// Get 获取嵌套字段值，不存在返回nil
func Get(input interface{}, fieldName string) interface{} {
	v, _ := Lookup(input, fieldName)
	return v
}

// Set stores value at path, creating intermediate maps as needed.
func Set(root map[string]interface{}, path string, value interface{}) error {
	segments, err := ParsePath(path)
	if err != nil {
		return err
	}
	return SetSegments(root, segments, value)
}

// SetSegments stores value at the parsed path inside root.
func SetSegments(root map[string]interface{}, segments []interface{}, value interface{}) error {
	if root == nil {
		return ErrNotSettable
	}
	var parent interface{} = root
	for i, seg := range segments {
		last := i == len(segments)-1
		switch key := seg.(type) {
		case string:
			m, ok := parent.(map[string]interface{})
			if !ok {
				return fmt.Errorf("%w at segment %q", ErrNotSettable, key)
			}
			if last {
				m[key] = value
				return nil
			}
			next, exists := m[key]
			if !exists || next == nil {
				next = newContainer(segments[i+1])
				m[key] = next
			}
			parent = next
		case int:
			s, ok := parent.([]interface{})
			if !ok || key >= len(s) {
				return fmt.Errorf("%w at index %d", ErrNotSettable, key)
			}
			if last {
				s[key] = value
				return nil
			}
			if s[key] == nil {
				s[key] = newContainer(segments[i+1])
			}
			parent = s[key]
		}
	}
	return nil
}

// Delete removes the value at path. It reports whether anything was removed.
// Deleting a slice element sets it to nil rather than shifting the slice.
func Delete(root map[string]interface{}, path string) bool {
	segments, err := ParsePath(path)
	if err != nil {
		return false
	}
	return DeleteSegments(root, segments)
}

// DeleteSegments removes the value at the parsed path inside root.
func DeleteSegments(root map[string]interface{}, segments []interface{}) bool {
	if len(segments) == 0 {
		return false
	}
	parent, ok := LookupSegments(root, segments[:len(segments)-1])
	if !ok {
		return false
	}
	switch key := segments[len(segments)-1].(type) {
	case string:
		if m, ok := parent.(map[string]interface{}); ok {
			if _, exists := m[key]; exists {
				delete(m, key)
				return true
			}
		}
	case int:
		if s, ok := parent.([]interface{}); ok && key < len(s) {
			s[key] = nil
			return true
		}
	}
	return false
}

func newContainer(next interface{}) interface{} {
	if _, ok := next.(int); ok {
		return make([]interface{}, 0)
	}
	return make(map[string]interface{})
}
