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
	"fmt"
	"testing"
)

func benchFields(n int) map[string]interface{} {
	fields := make(map[string]interface{}, n)
	for i := 0; i < n; i++ {
		fields[fmt.Sprintf("key%d", i)] = map[string]interface{}{"value": i, "tags": []interface{}{"a", "b"}}
	}
	return fields
}

func BenchmarkRuleMsgCopy(b *testing.B) {
	msg := NewPartMsg(benchFields(20), Parts{Id: "g1", Index: 0, Count: 10})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = msg.Copy()
	}
}

func BenchmarkNewMsg(b *testing.B) {
	fields := benchFields(5)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = NewMsg(0, fields)
	}
}
