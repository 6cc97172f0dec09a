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

package rulerouter

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flowDef = `{
  "id": "thermostat",
  "nodes": [
    {
      "id": "route",
      "type": "switch",
      "configuration": {
        "property": "payload",
        "rules": [
          {"operator": "gt", "value": "30", "valueType": "num"},
          {"operator": "else"}
        ],
        "checkAll": false
      },
      "wires": [["mark"], []]
    },
    {
      "id": "mark",
      "type": "change",
      "configuration": {
        "rules": [{"type": "set", "property": "alarm", "to": "true", "toType": "bool"}]
      }
    }
  ]
}`

type output struct {
	node string
	port int
	msg  types.RuleMsg
}

type outputs struct {
	mu  sync.Mutex
	out []output
}

func (o *outputs) onPort(nodeId string, msg types.RuleMsg, port int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.out = append(o.out, output{node: nodeId, port: port, msg: msg})
}

func (o *outputs) get() []output {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]output(nil), o.out...)
}

func TestParseFlow(t *testing.T) {
	def, err := ParseFlow([]byte(flowDef))
	require.Nil(t, err)
	assert.Equal(t, "thermostat", def.Id)
	require.Len(t, def.Nodes, 2)
	assert.Equal(t, [][]string{{"mark"}, {}}, def.Nodes[0].Wires)
	assert.Equal(t, "payload", def.Nodes[0].Configuration["property"])

	_, err = ParseFlow([]byte(`{"nodes":`))
	assert.NotNil(t, err)
}

func TestRuleRouter(t *testing.T) {
	router := &RuleRouter{}
	defer router.Stop()
	out := &outputs{}

	flow, err := router.New("", []byte(flowDef), NewConfig(), engine.WithOutput(out.onPort))
	require.Nil(t, err)
	again, err := router.New("", []byte(flowDef), NewConfig())
	require.Nil(t, err)
	assert.Same(t, flow, again)

	got, ok := router.Get("thermostat")
	require.True(t, ok)
	assert.Same(t, flow, got)

	require.Nil(t, router.Send("thermostat", "route", types.NewMsg(0, map[string]interface{}{"payload": 35})))
	require.Nil(t, router.Send("thermostat", "route", types.NewMsg(0, map[string]interface{}{"payload": 5})))
	assert.Eventually(t, func() bool { return len(out.get()) == 2 }, 2*time.Second, 5*time.Millisecond)
	for _, o := range out.get() {
		if o.node == "mark" {
			assert.Equal(t, true, o.msg.Fields["alarm"])
		} else {
			assert.Equal(t, "route", o.node)
			assert.Equal(t, 1, o.port)
		}
	}

	assert.ErrorIs(t, router.Send("nope", "route", types.NewMsg(0, nil)), ErrFlowNotFound)

	// the id argument overrides the definition's id
	_, err = router.New("copy", []byte(flowDef), NewConfig())
	require.Nil(t, err)
	var ids []string
	router.Range(func(id string, flow *engine.Flow) bool {
		ids = append(ids, id)
		return true
	})
	assert.ElementsMatch(t, []string{"thermostat", "copy"}, ids)

	router.Del("copy")
	_, ok = router.Get("copy")
	assert.False(t, ok)

	_, err = router.New("", []byte(`{"nodes":[]}`), NewConfig())
	assert.True(t, types.IsConfigError(err))
}

func TestRuleRouterLoad(t *testing.T) {
	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(flowDef), 0644))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{"nodes":[{"id":"x","type":"nope"}]}`), 0644))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte(flowDef), 0644))

	router := &RuleRouter{}
	defer router.Stop()
	require.Nil(t, router.Load(dir, NewConfig()))
	_, ok := router.Get("a")
	assert.True(t, ok)
	_, ok = router.Get("b")
	assert.False(t, ok)
	_, ok = router.Get("c")
	assert.False(t, ok)
}

func TestDefaultRouter(t *testing.T) {
	defer Stop()
	_, err := New("default", []byte(flowDef), NewConfig())
	require.Nil(t, err)
	_, ok := Get("default")
	assert.True(t, ok)
	Del("default")
	_, ok = Get("default")
	assert.False(t, ok)
	assert.Equal(t, Registry, NewConfig().ComponentsRegistry)
}
