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

package transform

//规则链节点配置示例：
//{
//	"id": "c1",
//	"type": "change",
//	"name": "修改字段",
//	"configuration": {
//		"rules": [
//			{"type": "set", "property": "payload.unit", "to": "C", "toType": "str"},
//			{"type": "change", "property": "topic", "from": "^sensors/", "fromType": "re", "to": "devices/", "toType": "str"},
//			{"type": "move", "property": "payload.raw", "to": "last", "toType": "flow"},
//			{"type": "delete", "property": "debug"}
//		]
//	}
//}
import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mohae/deepcopy"
	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/components/base"
	"github.com/rulego/rulerouter/router/fanout"
	"github.com/rulego/rulerouter/router/operand"
	"github.com/rulego/rulerouter/router/queue"
	"github.com/rulego/rulerouter/utils/cast"
	"github.com/rulego/rulerouter/utils/maps"
)

// ChangeNodeType 组件类型
const ChangeNodeType = "change"

// 修改规则类型
const (
	ChangeSet    = "set"
	ChangeChange = "change"
	ChangeDelete = "delete"
	ChangeMove   = "move"
)

var (
	ErrUnknownChangeType = errors.New("unknown change rule type")
	ErrInvalidTarget     = errors.New("invalid change target")
)

func init() {
	Registry.Add(&ChangeNode{})
}

// ChangeRule 修改规则
type ChangeRule struct {
	// Type 规则类型：set, change, delete, move
	Type string
	// Property 目标属性路径
	Property string
	// PropertyType 目标作用域：msg(默认), flow, global, node
	PropertyType string
	// To set:新值; change:替换值; move:目标属性路径
	To interface{}
	// ToType To的操作数类型，move规则为目标作用域
	ToType string
	// From change规则的查找值
	From interface{}
	// FromType From的操作数类型，re为正则表达式
	FromType string
}

// ChangeNodeConfiguration 节点配置
type ChangeNodeConfiguration struct {
	// Rules 按顺序执行的修改规则
	Rules []ChangeRule
}

// ChangeNode 按规则修改消息字段或上下文值，然后把消息发送到输出端口0
// 任一规则失败则报告错误，消息不输出
type ChangeNode struct {
	//节点配置
	Config ChangeNodeConfiguration

	ruleConfig types.Config
	rules      []changeRule
	resolver   *operand.Resolver
	queue      *queue.Queue[changeJob]
	initErr    error
}

// target 可写的属性
type target struct {
	scope    string
	path     string
	segments []interface{}
	read     operand.Operand
}

func (t target) String() string {
	return t.scope + "." + t.path
}

type changeRule struct {
	kind   string
	target target
	// to 新值或替换值
	to operand.Operand
	// dest move规则的目标
	dest target
	from operand.Operand
	// pattern fromType为re时的正则表达式
	pattern *regexp.Regexp
}

type changeJob struct {
	ctx types.RuleContext
	msg types.RuleMsg
}

// Type 组件类型
func (x *ChangeNode) Type() string {
	return ChangeNodeType
}

func (x *ChangeNode) New() types.Node {
	return &ChangeNode{}
}

// Init 初始化，值在此解析，正则表达式和表达式在此编译
func (x *ChangeNode) Init(ruleConfig types.Config, configuration types.Configuration) error {
	x.ruleConfig = ruleConfig
	x.initErr = x.load(configuration)
	return x.initErr
}

func (x *ChangeNode) load(configuration types.Configuration) error {
	if err := maps.Map2Struct(configuration, &x.Config); err != nil {
		return types.NewConfigError("", err)
	}
	x.rules = make([]changeRule, 0, len(x.Config.Rules))
	for i, cfg := range x.Config.Rules {
		r, err := x.buildRule(cfg)
		if err != nil {
			return types.NewConfigError(fmt.Sprintf("rules[%d]", i), err)
		}
		x.rules = append(x.rules, r)
	}
	x.resolver = operand.NewResolver(x.ruleConfig, &operand.Memo{})
	x.queue = queue.New(x.handle, queue.WithPool(x.ruleConfig.Pool))
	return nil
}

func (x *ChangeNode) buildRule(cfg ChangeRule) (changeRule, error) {
	r := changeRule{kind: cfg.Type}
	var err error
	if r.target, err = x.buildTarget(cfg.PropertyType, cfg.Property); err != nil {
		return r, err
	}
	switch cfg.Type {
	case ChangeSet:
		r.to, err = operand.Build(operand.Def{Type: cfg.ToType, Value: cfg.To}, x.ruleConfig)
	case ChangeChange:
		if cfg.FromType == operand.TypeRegex {
			r.pattern, err = regexp.Compile(cast.ToString(cfg.From))
		} else {
			r.from, err = operand.Build(operand.Def{Type: cfg.FromType, Value: cfg.From}, x.ruleConfig)
		}
		if err == nil {
			r.to, err = operand.Build(operand.Def{Type: cfg.ToType, Value: cfg.To}, x.ruleConfig)
		}
	case ChangeMove:
		r.dest, err = x.buildTarget(cfg.ToType, cast.ToString(cfg.To))
	case ChangeDelete:
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownChangeType, cfg.Type)
	}
	return r, err
}

func (x *ChangeNode) buildTarget(scope, path string) (target, error) {
	if scope == "" {
		scope = operand.TypeMsg
	}
	switch scope {
	case operand.TypeMsg, operand.TypeFlow, operand.TypeGlobal, operand.TypeNode:
	default:
		return target{}, fmt.Errorf("%w: scope %q", ErrInvalidTarget, scope)
	}
	segments, err := maps.ParsePath(path)
	if err != nil {
		return target{}, err
	}
	if _, ok := segments[0].(string); !ok {
		return target{}, fmt.Errorf("%w: %q starts with an index", ErrInvalidTarget, path)
	}
	read, err := operand.Build(operand.Def{Type: scope, Value: path}, x.ruleConfig)
	if err != nil {
		return target{}, err
	}
	return target{scope: scope, path: path, segments: segments, read: read}, nil
}

// Idle reports whether no message is queued or in flight.
func (x *ChangeNode) Idle() bool {
	return x.queue == nil || !x.queue.Processing()
}

// OnMsg 处理消息
func (x *ChangeNode) OnMsg(ctx types.RuleContext, msg types.RuleMsg) {
	base.NodeUtils.Recorder(ctx.Config()).MsgReceived(ChangeNodeType, ctx.GetSelfId())
	if x.initErr != nil || x.queue == nil {
		base.NodeUtils.Report(ctx, ChangeNodeType, msg, types.ErrNodeDisabled)
		return
	}
	if err := x.queue.Enqueue(changeJob{ctx: ctx, msg: msg}, nil); err != nil {
		base.NodeUtils.Report(ctx, ChangeNodeType, msg, types.ErrNodeClosed)
	}
}

// handle 按顺序应用规则。消息字段在副本上修改，规则失败时不输出；
// 已经执行的flow/global/node作用域写入不回滚
// handle applies the rules in order. A failing rule aborts the message, but context
// writes made by earlier rules are kept.
func (x *ChangeNode) handle(ctx context.Context, job changeJob) error {
	out := job.msg.Copy()
	for i := range x.rules {
		if err := x.apply(ctx, &x.rules[i], &out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			err = operand.AtRule(err, i)
			base.NodeUtils.Report(job.ctx, ChangeNodeType, job.msg, err)
			return err
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	base.NodeUtils.Emit(job.ctx, ChangeNodeType, []fanout.Emission{{Port: 0, Msg: out}}, true)
	return nil
}

func (x *ChangeNode) apply(ctx context.Context, r *changeRule, msg *types.RuleMsg) error {
	switch r.kind {
	case ChangeSet:
		v, err := x.resolver.Resolve(ctx, r.to, *msg)
		if err != nil {
			return err
		}
		return x.write(ctx, r.target, msg, v)
	case ChangeDelete:
		return x.write(ctx, r.target, msg, operand.Missing)
	case ChangeMove:
		v, err := x.resolver.Resolve(ctx, r.target.read, *msg)
		if err != nil || operand.IsMissing(v) {
			return err
		}
		if err = x.write(ctx, r.target, msg, operand.Missing); err != nil {
			return err
		}
		return x.write(ctx, r.dest, msg, v)
	case ChangeChange:
		current, err := x.resolver.Resolve(ctx, r.target.read, *msg)
		if err != nil || operand.IsMissing(current) {
			return err
		}
		to, err := x.resolver.Resolve(ctx, r.to, *msg)
		if err != nil {
			return err
		}
		var from interface{}
		if r.pattern == nil {
			if from, err = x.resolver.Resolve(ctx, r.from, *msg); err != nil {
				return err
			}
		}
		changed, ok := replace(current, r.pattern, from, to)
		if !ok {
			return nil
		}
		return x.write(ctx, r.target, msg, changed)
	}
	return nil
}

// replace 替换字符串中的匹配部分；非字符串值或者to为非字符串时，整个值等于from才替换
func replace(current interface{}, pattern *regexp.Regexp, from, to interface{}) (interface{}, bool) {
	s, isString := current.(string)
	toString, toIsString := to.(string)
	if pattern != nil {
		if !isString {
			return nil, false
		}
		if toIsString {
			return pattern.ReplaceAllString(s, toString), true
		}
		if loc := pattern.FindStringIndex(s); loc != nil && loc[0] == 0 && loc[1] == len(s) {
			return to, true
		}
		return nil, false
	}
	if operand.IsMissing(from) || from == nil {
		return nil, false
	}
	fromString := cast.ToString(from)
	if isString && toIsString {
		if fromString == "" {
			return nil, false
		}
		return strings.ReplaceAll(s, fromString, toString), true
	}
	if cast.ToString(current) == fromString {
		return to, true
	}
	return nil, false
}

// write 写入目标，operand.Missing表示删除
func (x *ChangeNode) write(ctx context.Context, t target, msg *types.RuleMsg, value interface{}) error {
	if t.scope == operand.TypeMsg {
		if operand.IsMissing(value) {
			maps.DeleteSegments(msg.Fields, t.segments)
			return nil
		}
		if msg.Fields == nil {
			msg.Fields = make(map[string]interface{})
		}
		if err := maps.SetSegments(msg.Fields, t.segments, deepcopy.Copy(value)); err != nil {
			return fmt.Errorf("set %s: %w", t, err)
		}
		return nil
	}

	store := x.ruleConfig.Store
	if store == nil {
		return storeError(t, types.ErrStoreNotConfigured)
	}
	scope := types.ContextScope(t.scope)
	key := t.segments[0].(string)
	if len(t.segments) == 1 {
		if operand.IsMissing(value) {
			value = nil
		}
		if err := store.Set(ctx, scope, key, value); err != nil {
			return storeError(t, err)
		}
		return nil
	}
	// 嵌套路径：读出顶层值，修改后整体写回
	stored, err := store.Get(ctx, scope, key)
	if err != nil {
		return storeError(t, err)
	}
	root, ok := deepcopy.Copy(stored).(map[string]interface{})
	if !ok {
		if operand.IsMissing(value) {
			return nil
		}
		root = make(map[string]interface{})
	}
	if operand.IsMissing(value) {
		if !maps.DeleteSegments(root, t.segments[1:]) {
			return nil
		}
	} else if err := maps.SetSegments(root, t.segments[1:], deepcopy.Copy(value)); err != nil {
		return fmt.Errorf("set %s: %w", t, err)
	}
	if err := store.Set(ctx, scope, key, root); err != nil {
		return storeError(t, err)
	}
	return nil
}

func storeError(t target, err error) error {
	return &operand.EvalError{Kind: operand.StoreFailure, Operand: t.String(), Rule: -1, Err: err}
}

// Destroy 销毁，丢弃队列中的消息
func (x *ChangeNode) Destroy() {
	if x.queue != nil {
		x.queue.Close()
	}
}
