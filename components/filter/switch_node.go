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

package filter

//规则链节点配置示例：
//{
//        "id": "s1",
//        "type": "switch",
//        "name": "switch",
//        "configuration": {
//          "property": "payload.temperature",
//          "propertyType": "msg",
//          "rules": [
//            {"operator": "gt", "value": "50", "valueType": "num"},
//            {"operator": "btwn", "value": "20", "valueType": "num", "value2": "limits.max", "value2Type": "flow"},
//            {"operator": "else"}
//          ],
//          "checkAll": true
//        }
//      }
import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rulego/rulerouter/api/types"
	"github.com/rulego/rulerouter/components/base"
	"github.com/rulego/rulerouter/router/fanout"
	"github.com/rulego/rulerouter/router/group"
	"github.com/rulego/rulerouter/router/operand"
	"github.com/rulego/rulerouter/router/queue"
	"github.com/rulego/rulerouter/router/rule"
	"github.com/rulego/rulerouter/utils/cast"
	"github.com/rulego/rulerouter/utils/maps"
)

// SwitchNodeType 组件类型
const SwitchNodeType = "switch"

func init() {
	Registry.Add(&SwitchNode{})
}

// SwitchNodeConfiguration 节点配置
type SwitchNodeConfiguration struct {
	// Property 被测试的属性，与PropertyType组成一个操作数，默认`payload`
	Property string
	// PropertyType 属性类型：msg, flow, global, node, env, prev, expr, js，或字面量类型
	PropertyType string
	// Rules 规则列表，第i条规则匹配时消息发送到第i个输出端口
	Rules []rule.Config
	// CheckAll true:检查所有规则，false:第一条匹配后停止
	CheckAll bool
	// Repair 重建消息序列，每个输出端口得到独立的序列
	Repair bool
	// MaxKeptMsgs 分组缓冲消息上限，0使用引擎配置的MaxKeptMsgs
	MaxKeptMsgs int
	// ResetSchedule 定时清除未完成分组的cron表达式，支持秒，例如：`0 */5 * * * *`
	ResetSchedule string
	// ShareMsg 第一个接收者得到原消息，其他接收者得到副本
	ShareMsg bool
}

// SwitchNode 按规则列表路由消息，规则i匹配则发送到输出端口i
// SwitchNode routes each message to the ports of the rules it matches.
//
// The node evaluates one message at a time, in arrival order. When Repair is set, or a rule
// needs the sequence count (`tail`, or an expression referring to `count`), messages that
// belong to a sequence are held until the sequence is complete and then routed together.
// Errors are reported through RuleContext.TellFailure; the message is not routed.
type SwitchNode struct {
	//节点配置
	Config SwitchNodeConfiguration

	ruleConfig types.Config
	subject    operand.Operand
	rules      []rule.Rule
	memo       *operand.Memo
	resolver   *operand.Resolver
	evaluator  *rule.Evaluator
	grouping   bool
	buffer     *group.Buffer
	queue      *queue.Queue[switchJob]
	cron       *cron.Cron
	initErr    error
	nodeId     atomic.Value
}

// switchJob 队列条目，reset为定时清除的控制条目
type switchJob struct {
	ctx   types.RuleContext
	msg   types.RuleMsg
	reset bool
}

// Type 组件类型
func (x *SwitchNode) Type() string {
	return SwitchNodeType
}

func (x *SwitchNode) New() types.Node {
	return &SwitchNode{Config: SwitchNodeConfiguration{
		Property:     types.PayloadKey,
		PropertyType: operand.TypeMsg,
		CheckAll:     true,
	}}
}

// Init 初始化，配置错误会禁用节点
func (x *SwitchNode) Init(ruleConfig types.Config, configuration types.Configuration) error {
	x.ruleConfig = ruleConfig
	x.ruleConfig.Logger = types.NewLogger(ruleConfig.Logger)
	x.initErr = x.load(configuration)
	return x.initErr
}

func (x *SwitchNode) load(configuration types.Configuration) error {
	if err := maps.Map2Struct(configuration, &x.Config); err != nil {
		return types.NewConfigError("", err)
	}
	if x.Config.PropertyType == "" {
		x.Config.PropertyType = operand.TypeMsg
	}
	subject, err := operand.Build(operand.Def{Type: x.Config.PropertyType, Value: x.Config.Property}, x.ruleConfig)
	if err != nil {
		return types.NewConfigError("property", err)
	}
	x.subject = subject
	x.rules = make([]rule.Rule, 0, len(x.Config.Rules))
	for i, cfg := range x.Config.Rules {
		r, err := rule.Build(cfg, x.ruleConfig)
		if err != nil {
			return types.NewConfigError(fmt.Sprintf("rules[%d]", i), err)
		}
		x.rules = append(x.rules, r)
	}
	x.grouping = x.Config.Repair || rule.NeedsCount(x.rules)

	ceiling := x.Config.MaxKeptMsgs
	if ceiling <= 0 {
		ceiling = x.ruleConfig.MaxKeptMsgs
	}
	x.buffer = group.NewBuffer(ceiling)
	x.memo = &operand.Memo{}
	x.resolver = operand.NewResolver(x.ruleConfig, x.memo)
	x.evaluator = rule.NewEvaluator(x.resolver, x.memo, x.Config.CheckAll)

	if x.Config.ResetSchedule != "" {
		x.cron = cron.New(cron.WithSeconds())
		if _, err := x.cron.AddFunc(x.Config.ResetSchedule, x.scheduledReset); err != nil {
			return types.NewConfigError("resetSchedule", err)
		}
	}
	x.queue = queue.New(x.handle, queue.WithPool(x.ruleConfig.Pool))
	if x.cron != nil {
		x.cron.Start()
	}
	return nil
}

// Ports 输出端口数量
func (x *SwitchNode) Ports() int {
	return len(x.rules)
}

// Grouping reports whether sequences are reassembled before routing.
func (x *SwitchNode) Grouping() bool {
	return x.grouping
}

// Idle reports whether no message is queued or in flight.
func (x *SwitchNode) Idle() bool {
	return x.queue == nil || !x.queue.Processing()
}

// OnMsg 处理消息，消息进入队列按到达顺序处理
func (x *SwitchNode) OnMsg(ctx types.RuleContext, msg types.RuleMsg) {
	x.nodeId.Store(ctx.GetSelfId())
	base.NodeUtils.Recorder(ctx.Config()).MsgReceived(SwitchNodeType, ctx.GetSelfId())
	if x.initErr != nil || x.queue == nil {
		base.NodeUtils.Report(ctx, SwitchNodeType, msg, types.ErrNodeDisabled)
		return
	}
	if err := x.queue.Enqueue(switchJob{ctx: ctx, msg: msg}, nil); err != nil {
		base.NodeUtils.Report(ctx, SwitchNodeType, msg, types.ErrNodeClosed)
	}
}

func (x *SwitchNode) scheduledReset() {
	_ = x.queue.Enqueue(switchJob{reset: true}, nil)
}

// handle 处理一个队列条目，一次只有一个条目在处理
func (x *SwitchNode) handle(ctx context.Context, job switchJob) error {
	if job.reset {
		x.clearGroups("schedule")
		return nil
	}
	rc, msg := job.ctx, job.msg
	if x.grouping && isReset(msg) {
		x.clearGroups("reset message")
		return nil
	}
	if !x.grouping || !msg.InSequence() {
		mask, err := x.route(ctx, rc, msg)
		if ctx.Err() != nil {
			// 节点已销毁，结果被忽略
			return ctx.Err()
		}
		if err != nil {
			base.NodeUtils.Report(rc, SwitchNodeType, msg, err)
			return err
		}
		base.NodeUtils.Emit(rc, SwitchNodeType, single(msg, mask), x.Config.ShareMsg)
		return nil
	}
	return x.admit(ctx, rc, msg)
}

// admit 缓冲序列消息，分组完成后按index顺序路由整个分组
func (x *SwitchNode) admit(ctx context.Context, rc types.RuleContext, msg types.RuleMsg) error {
	rec := base.NodeUtils.Recorder(rc.Config())
	if ctx.Err() != nil {
		return ctx.Err()
	}
	res, err := x.buffer.Admit(msg)
	if errors.Is(err, group.ErrBufferClosed) {
		return err
	}
	for _, warning := range res.Warnings {
		base.NodeUtils.Report(rc, SwitchNodeType, msg, warning)
	}
	rec.Buffered(rc.GetSelfId(), x.buffer.Len())
	if err != nil {
		rec.Overflow(rc.GetSelfId())
		x.ruleConfig.Logger.Printf("switch node %s: %v", rc.GetSelfId(), err)
		base.NodeUtils.Report(rc, SwitchNodeType, msg, err)
		return err
	}
	if !res.Complete() {
		return nil
	}

	masks := make([][]bool, len(res.Drained))
	for i, member := range res.Drained {
		mask, err := x.route(ctx, rc, member)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			base.NodeUtils.Report(rc, SwitchNodeType, member, err)
			return err
		}
		masks[i] = mask
	}
	var emissions []fanout.Emission
	if x.Config.Repair {
		emissions = fanout.Renumber(res.Drained, masks, nil)
	} else {
		for i, member := range res.Drained {
			for _, e := range single(member, masks[i]) {
				e.Member = i
				emissions = append(emissions, e)
			}
		}
	}
	base.NodeUtils.Emit(rc, SwitchNodeType, emissions, x.Config.ShareMsg)
	return nil
}

// route 解析属性并执行一次规则评估
func (x *SwitchNode) route(ctx context.Context, rc types.RuleContext, msg types.RuleMsg) ([]bool, error) {
	subject, err := x.resolver.Resolve(ctx, x.subject, msg)
	if err != nil {
		return nil, err
	}
	mask, err := x.evaluator.Evaluate(ctx, x.rules, subject, msg)
	if err != nil {
		return nil, err
	}
	matched := false
	for _, m := range mask {
		matched = matched || m
	}
	base.NodeUtils.Recorder(rc.Config()).Evaluated(SwitchNodeType, rc.GetSelfId(), matched)
	return mask, nil
}

func (x *SwitchNode) clearGroups(reason string) {
	dropped := x.buffer.Clear()
	nodeId, _ := x.nodeId.Load().(string)
	if dropped > 0 {
		x.ruleConfig.Logger.Printf("switch node %s: %s cleared %d buffered parts", nodeId, reason, dropped)
	}
	base.NodeUtils.Recorder(x.ruleConfig).Buffered(nodeId, 0)
}

// Destroy 销毁，丢弃队列中的消息和未完成的分组
func (x *SwitchNode) Destroy() {
	if x.cron != nil {
		x.cron.Stop()
	}
	if x.queue != nil {
		x.queue.Close()
	}
	if x.buffer != nil {
		x.buffer.Close()
	}
}

// single 单条消息的输出
func single(msg types.RuleMsg, mask []bool) []fanout.Emission {
	var out []fanout.Emission
	for port, selected := range mask {
		if selected {
			out = append(out, fanout.Emission{Port: port, Msg: msg})
		}
	}
	return out
}

// isReset 消息带有reset=true时清除未完成的分组
func isReset(msg types.RuleMsg) bool {
	v, ok := msg.Fields[types.ResetKey]
	return ok && cast.ToBool(v)
}
