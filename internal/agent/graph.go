package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

const (
	NodeInput      = "input_node"
	NodeChatModel  = "chat_model_node"
	NodeTools      = "tools_node"
	NodeRoundLimit = "round_limit_node"
)

// BuildGraph 构建 Agent 的处理流程图：
//
//	START -> input -> chat_model --(tool calls)--> tools -> chat_model (loop)
//	                          \--(no tool calls)--> END
//	                          \--(轮数达到上限)--> round_limit -> END
func BuildGraph(ctx context.Context, cm model.ToolCallingChatModel, tools []tool.BaseTool, cfg Config) (compose.Runnable[AgentState, AgentState], error) {
	cfg = cfg.withDefaults()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		loc = time.UTC
	}

	// 将工具信息绑定到 chatModel
	toolInfos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("get tool info failed: %w", err)
		}
		toolInfos = append(toolInfos, info)
	}
	cm, err = cm.WithTools(toolInfos)
	if err != nil {
		return nil, fmt.Errorf("bind tools to chat model failed: %w", err)
	}

	toolIndex, err := buildToolIndex(ctx, tools)
	if err != nil {
		return nil, err
	}

	// 初始化 Graph，输入输出都是 AgentState
	g := compose.NewGraph[AgentState, AgentState]()

	_ = g.AddLambdaNode(NodeInput, compose.InvokableLambda(InputNode), compose.WithNodeName(NodeInput))

	// 核心 LLM 推理节点，使用闭包注入 chatModel 和运行参数
	_ = g.AddLambdaNode(NodeChatModel, compose.InvokableLambda(func(ctx context.Context, state AgentState) (AgentState, error) {
		return ChatModelNode(ctx, state, cm, loc, cfg.ModelTimeout)
	}), compose.WithNodeName(NodeChatModel))

	// 工具执行节点：并发执行本轮所有工具调用后回到推理节点
	_ = g.AddLambdaNode(NodeTools, compose.InvokableLambda(func(ctx context.Context, state AgentState) (AgentState, error) {
		return ExecuteToolCalls(ctx, state, toolIndex)
	}), compose.WithNodeName(NodeTools))

	// 轮数上限节点：达到上限时合成收尾消息，终止循环
	_ = g.AddLambdaNode(NodeRoundLimit, compose.InvokableLambda(func(ctx context.Context, state AgentState) (AgentState, error) {
		state.Messages = append(state.Messages, schema.AssistantMessage(
			"这个请求涉及的步骤太多，我没能在限定轮数内完成，请把任务拆小一些再试。", nil))
		state.NextStepToolCalls = nil
		return state, nil
	}), compose.WithNodeName(NodeRoundLimit))

	if err := g.AddEdge(compose.START, NodeInput); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeInput, NodeChatModel); err != nil {
		return nil, err
	}

	// ChatModel 之后的路由：
	// 有 ToolCalls 且未达轮数上限 -> Tools；达上限 -> RoundLimit；否则 -> END
	err = g.AddBranch(NodeChatModel, compose.NewGraphBranch(func(ctx context.Context, state AgentState) (string, error) {
		if len(state.NextStepToolCalls) == 0 {
			return compose.END, nil
		}
		if state.Rounds >= cfg.MaxRounds {
			return NodeRoundLimit, nil
		}
		return NodeTools, nil
	}, map[string]bool{
		NodeTools:      true,
		NodeRoundLimit: true,
		compose.END:    true,
	}))
	if err != nil {
		return nil, err
	}

	// Tools -> ChatModel (Loop back)
	if err := g.AddEdge(NodeTools, NodeChatModel); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeRoundLimit, compose.END); err != nil {
		return nil, err
	}

	// 一轮推理最多走两个节点（chat + tools），上限外再留出 input/round_limit 的余量
	runnable, err := g.Compile(ctx, compose.WithMaxRunSteps(cfg.MaxRounds*2+4))
	if err != nil {
		return nil, err
	}

	return runnable, nil
}
