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

// Package mqtt bridges MQTT topics and router nodes.
//
// Package mqtt 桥接MQTT主题与路由节点：订阅主题的消息发送到节点，节点端口的输出发布到主题。
//
// Inbound, a message on an input topic becomes a message with the fields
// `topic`, `payload`, `qos` and `retain`; the payload is decoded as JSON when it parses,
// otherwise it is kept as a string. With Envelope set the payload is a whole envelope
// instead (see package endpoint), which is how sequence metadata travels over MQTT.
//
// Outbound, an emission on a configured node port publishes the `payload` field, or the
// whole envelope with Envelope set. A string payload is published as is.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/endpoint"
	"github.com/rulego/rulerouter/utils/cast"
	"github.com/rulego/rulerouter/utils/json"
)

const (
	QosKey    = "qos"
	RetainKey = "retain"

	defaultTimeout = 5 * time.Second
)

var (
	// ErrNoTopic is returned when an output names no topic and the message has no `topic` field.
	ErrNoTopic = errors.New("no topic to publish to")
	// ErrInvalidQos is returned when a message's `qos` field is not 0, 1 or 2.
	ErrInvalidQos = errors.New("invalid qos")
	// ErrSubscriptionRefused is returned when the broker acknowledges a subscription with 0x80.
	ErrSubscriptionRefused = errors.New("subscription refused by broker")
)

// Client is the part of paho.Client the bridge uses.
type Client interface {
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var _ Client = (paho.Client)(nil)

// Input routes a topic filter to a node.
type Input struct {
	Topic string
	Qos   byte
	// Node receives the messages. In envelope mode an envelope naming a node overrides it.
	Node string
}

// Output publishes the emissions of one node port.
type Output struct {
	Node string
	Port int
	// Topic defaults to the message's `topic` field, in which case the message's `qos`
	// and `retain` fields, when present, override Qos and Retained.
	Topic    string
	Qos      byte
	Retained bool
}

// Config 客户端和桥接配置
type Config struct {
	// mqtt broker 地址
	Server   string
	Username string
	Password string
	// 重连重试间隔
	MaxReconnectInterval time.Duration
	CleanSession         bool
	ClientID             string
	CAFile               string
	CertFile             string
	CertKeyFile          string

	Inputs  []Input
	Outputs []Output
	// Envelope carries whole envelopes as payloads.
	Envelope bool
	// Timeout bounds each subscribe, unsubscribe and publish acknowledgement, defaulting to 5s.
	Timeout time.Duration
}

type portKey struct {
	node string
	port int
}

// Bridge 主题与节点的桥接
type Bridge struct {
	client  Client
	sender  endpoint.Sender
	conf    Config
	logger  types.Logger
	outputs map[portKey][]Output

	mu         sync.Mutex
	subscribed []string
}

// NewBridge creates a bridge over a connected client.
func NewBridge(client Client, sender endpoint.Sender, conf Config, logger types.Logger) *Bridge {
	if conf.Timeout <= 0 {
		conf.Timeout = defaultTimeout
	}
	b := &Bridge{
		client:  client,
		sender:  sender,
		conf:    conf,
		logger:  types.NewLogger(logger),
		outputs: make(map[portKey][]Output),
	}
	for _, o := range conf.Outputs {
		k := portKey{node: o.Node, port: o.Port}
		b.outputs[k] = append(b.outputs[k], o)
	}
	return b
}

// Start subscribes every input. On error the inputs already subscribed stay subscribed
// until Stop.
func (b *Bridge) Start() error {
	for _, in := range b.conf.Inputs {
		token := b.client.Subscribe(in.Topic, in.Qos, b.handler(in))
		if err := b.wait(token); err != nil {
			return fmt.Errorf("subscribe %s: %w", in.Topic, err)
		}
		if is128Err(token, in.Topic) {
			return fmt.Errorf("subscribe %s: %w", in.Topic, ErrSubscriptionRefused)
		}
		b.mu.Lock()
		b.subscribed = append(b.subscribed, in.Topic)
		b.mu.Unlock()
		b.logger.Printf("subscribed to topic,topic=%s,qos=%d,node=%s", in.Topic, int(in.Qos), in.Node)
	}
	return nil
}

// Stop unsubscribes the inputs.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	topics := b.subscribed
	b.subscribed = nil
	b.mu.Unlock()
	if len(topics) == 0 {
		return nil
	}
	return b.wait(b.client.Unsubscribe(topics...))
}

func (b *Bridge) handler(in Input) paho.MessageHandler {
	return func(_ paho.Client, data paho.Message) {
		node, msg, err := b.toMsg(in, data)
		if err == nil {
			err = b.sender.Send(node, msg)
		}
		if err != nil {
			b.logger.Printf("mqtt topic %s: %v", data.Topic(), err)
		}
	}
}

func (b *Bridge) toMsg(in Input, data paho.Message) (string, types.RuleMsg, error) {
	if b.conf.Envelope {
		env, err := endpoint.Decode(data.Payload())
		if err != nil {
			return "", types.RuleMsg{}, err
		}
		node := env.Node
		if node == "" {
			node = in.Node
		}
		return node, env.RuleMsg, nil
	}
	fields := map[string]interface{}{
		types.TopicKey:   data.Topic(),
		types.PayloadKey: decodePayload(data.Payload()),
		QosKey:           int(data.Qos()),
		RetainKey:        data.Retained(),
	}
	return in.Node, types.NewMsg(0, fields), nil
}

func decodePayload(b []byte) interface{} {
	if v, err := json.DecodeValue(b); err == nil && v != nil {
		return v
	}
	return string(b)
}

// Publish publishes msg on the outputs configured for the port. It reports whether any
// output is configured.
func (b *Bridge) Publish(nodeId string, msg types.RuleMsg, port int) (bool, error) {
	outputs := b.outputs[portKey{node: nodeId, port: port}]
	if len(outputs) == 0 {
		return false, nil
	}
	payload, err := b.encode(nodeId, port, msg)
	if err != nil {
		return true, err
	}
	var errs []error
	for _, o := range outputs {
		topic, qos, retained := o.Topic, o.Qos, o.Retained
		if topic == "" {
			topic = cast.ToString(msg.Fields[types.TopicKey])
			if qos, retained, err = msgQos(msg, qos, retained); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if topic == "" {
			errs = append(errs, ErrNoTopic)
			continue
		}
		if err := b.wait(b.client.Publish(topic, qos, retained, payload)); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", topic, err))
		}
	}
	return true, errors.Join(errs...)
}

// msgQos 主题取自消息时，qos和retain也取自消息
// msgQos reads the `qos` and `retain` fields of msg, keeping the defaults for absent fields.
func msgQos(msg types.RuleMsg, qos byte, retained bool) (byte, bool, error) {
	if v, ok := msg.Fields[QosKey]; ok && v != nil {
		n, err := cast.ToIntE(v)
		if err != nil || n < 0 || n > 2 {
			return 0, false, fmt.Errorf("%w: %v", ErrInvalidQos, v)
		}
		qos = byte(n)
	}
	if v, ok := msg.Fields[RetainKey]; ok && v != nil {
		retained = cast.ToBool(v)
	}
	return qos, retained, nil
}

// OnPort publishes an emission, falling back to next when the port has no output.
// It matches engine.OnPortFunc.
func (b *Bridge) OnPort(next func(nodeId string, msg types.RuleMsg, port int)) func(nodeId string, msg types.RuleMsg, port int) {
	return func(nodeId string, msg types.RuleMsg, port int) {
		ok, err := b.Publish(nodeId, msg, port)
		if err != nil {
			b.logger.Printf("node %s port %d: %v", nodeId, port, err)
		}
		if !ok && next != nil {
			next(nodeId, msg, port)
		}
	}
}

func (b *Bridge) encode(nodeId string, port int, msg types.RuleMsg) ([]byte, error) {
	if b.conf.Envelope {
		return endpoint.Encode(nodeId, port, msg)
	}
	switch v := msg.Fields[types.PayloadKey].(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// 判断是否是acl 128错误
func is128Err(token paho.Token, topic string) bool {
	st, ok := token.(*paho.SubscribeToken)
	if !ok {
		return false
	}
	result, ok := st.Result()[topic]
	return ok && result == 128
}

func (b *Bridge) wait(token paho.Token) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.conf.Timeout)
	defer cancel()
	return waitToken(ctx, token)
}
