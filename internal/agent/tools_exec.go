package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// buildToolIndex 按工具名建立索引，供执行节点路由
func buildToolIndex(ctx context.Context, tools []tool.BaseTool) (map[string]tool.InvokableTool, error) {
	index := make(map[string]tool.InvokableTool, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("get tool info failed: %w", err)
		}
		it, ok := t.(tool.InvokableTool)
		if !ok {
			return nil, fmt.Errorf("tool %s does not implement InvokableRun", info.Name)
		}
		if _, exists := index[info.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", info.Name)
		}
		index[info.Name] = it
	}
	return index, nil
}

// ExecuteToolCalls 并发执行本轮的所有工具调用，按调用顺序返回 Tool 消息。
// 普通失败不会中断其他调用：单个工具的错误被转换为该调用对应的 Tool
// 消息文本，让模型在下一轮看到并向用户解释。唯一的例外是 ErrNoActingUser：
// 行动用户缺失是上下文管理的 bug，整批执行直接失败，不给模型重试的机会。
func ExecuteToolCalls(ctx context.Context, state AgentState, index map[string]tool.InvokableTool) (AgentState, error) {
	calls := state.NextStepToolCalls
	if len(calls) == 0 {
		return state, nil
	}

	// 将行动用户注入 context，工具从这里读取归属
	ctx = WithActingUser(ctx, state.UserID)

	// 结果槽位按调用下标预分配，保证输出顺序与调用顺序一致
	outputs := make([]*schema.Message, len(calls))
	errs := make([]error, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call schema.ToolCall) {
			defer wg.Done()
			outputs[i], errs[i] = runSingleToolCall(ctx, call, index)
		}(i, call)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return state, err
		}
	}

	state.Messages = append(state.Messages, outputs...)
	state.NextStepToolCalls = nil
	return state, nil
}

func runSingleToolCall(ctx context.Context, call schema.ToolCall, index map[string]tool.InvokableTool) (*schema.Message, error) {
	name := call.Function.Name
	impl, ok := index[name]
	if !ok {
		return schema.ToolMessage(fmt.Sprintf("Tool %q is not available.", name), call.ID, schema.WithToolName(name)), nil
	}

	result, err := impl.InvokableRun(ctx, call.Function.Arguments)
	if err != nil {
		if errors.Is(err, ErrNoActingUser) {
			return nil, fmt.Errorf("tool %s invoked without acting user: %w", name, err)
		}
		result = fmt.Sprintf("Tool %s failed: %v", name, err)
	}
	return schema.ToolMessage(result, call.ID, schema.WithToolName(name)), nil
}
