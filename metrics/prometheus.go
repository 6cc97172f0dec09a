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

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rulego/rulerouter/api/types"
)

var _ types.MetricsRecorder = (*RouterMetrics)(nil)

// RouterMetrics holds Prometheus metrics for router nodes
type RouterMetrics struct {
	messagesReceived *prometheus.CounterVec
	evaluationsTotal *prometheus.CounterVec
	emittedTotal     *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	bufferedParts    *prometheus.GaugeVec
	overflowsTotal   *prometheus.CounterVec
}

// NewRouterMetrics creates and registers router metrics.
// It returns nil if no registerer is provided.
func NewRouterMetrics(registerer prometheus.Registerer, namespace string) *RouterMetrics {
	if registerer == nil {
		return nil
	}
	if namespace == "" {
		namespace = "rulerouter"
	}
	m := &RouterMetrics{
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "messages_received_total",
			Help:      "Total messages received by router nodes",
		}, []string{"node_type", "node_id"}),

		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "evaluations_total",
			Help:      "Total rule evaluation passes",
		}, []string{"node_type", "node_id", "result"}),

		emittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "emitted_total",
			Help:      "Messages emitted per output port",
		}, []string{"node_type", "node_id", "port"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "errors_total",
			Help:      "Reported errors by kind",
		}, []string{"node_type", "node_id", "error_type"}),

		bufferedParts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "buffered_parts",
			Help:      "Parts held in incomplete groups",
		}, []string{"node_id"}),

		overflowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "overflows_total",
			Help:      "Group buffer overflows",
		}, []string{"node_id"}),
	}

	registerer.MustRegister(
		m.messagesReceived,
		m.evaluationsTotal,
		m.emittedTotal,
		m.errorsTotal,
		m.bufferedParts,
		m.overflowsTotal,
	)
	return m
}

func (m *RouterMetrics) MsgReceived(nodeType, nodeId string) {
	m.messagesReceived.WithLabelValues(nodeType, nodeId).Inc()
}

func (m *RouterMetrics) Evaluated(nodeType, nodeId string, matched bool) {
	result := "unmatched"
	if matched {
		result = "matched"
	}
	m.evaluationsTotal.WithLabelValues(nodeType, nodeId, result).Inc()
}

func (m *RouterMetrics) Emitted(nodeType, nodeId string, port int) {
	m.emittedTotal.WithLabelValues(nodeType, nodeId, strconv.Itoa(port)).Inc()
}

func (m *RouterMetrics) Error(nodeType, nodeId string, kind string) {
	m.errorsTotal.WithLabelValues(nodeType, nodeId, kind).Inc()
}

func (m *RouterMetrics) Buffered(nodeId string, count int) {
	m.bufferedParts.WithLabelValues(nodeId).Set(float64(count))
}

func (m *RouterMetrics) Overflow(nodeId string) {
	m.overflowsTotal.WithLabelValues(nodeId).Inc()
}
