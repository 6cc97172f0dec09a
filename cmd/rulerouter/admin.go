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
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rulego/rulerouter/engine"
	"github.com/rulego/rulerouter/metrics"
	"github.com/rulego/rulerouter/utils/json"
)

// nodeInfo is one entry of GET /nodes.
type nodeInfo struct {
	Id       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	Disabled string `json:"disabled,omitempty"`
	Idle     bool   `json:"idle"`
}

// newAdminRouter 管理接口路由
func newAdminRouter(gatherer prometheus.Gatherer, counters *metrics.Counters, flow *engine.Flow) *httprouter.Router {
	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	router.GET("/stats", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, counters.Get())
	})
	router.GET("/nodes", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, listNodes(flow))
	})
	router.GET("/nodes/:id", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rn, ok := flow.Node(ps.ByName("id"))
		if !ok {
			http.Error(w, engine.ErrNodeNotFound.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, toNodeInfo(rn))
	})
	return router
}

func listNodes(flow *engine.Flow) []nodeInfo {
	nodes := flow.Nodes()
	infos := make([]nodeInfo, 0, len(nodes))
	for _, rn := range nodes {
		infos = append(infos, toNodeInfo(rn))
	}
	return infos
}

func toNodeInfo(rn *engine.RuleNodeCtx) nodeInfo {
	info := nodeInfo{Id: rn.SelfDefinition.Id, Type: rn.SelfDefinition.Type, Name: rn.SelfDefinition.Name, Idle: true}
	if err := rn.Disabled(); err != nil {
		info.Disabled = err.Error()
	}
	if i, ok := rn.Node.(interface{ Idle() bool }); ok {
		info.Idle = i.Idle()
	}
	return info
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
