package agent

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/behflow/behflow/internal/dates"
)

// InputNode 处理用户输入，构建初始状态
func InputNode(ctx context.Context, state AgentState) (AgentState, error) {
	if state.Messages == nil {
		state.Messages = make([]*schema.Message, 0)
	}

	// 将 UserQuery 转换为 UserMessage 并追加
	// 注意：调用方可能已经把 UserQuery 放入了 Messages，这里做个检查
	if state.UserQuery != "" {
		isLastUser := false
		if len(state.Messages) > 0 {
			lastMsg := state.Messages[len(state.Messages)-1]
			if lastMsg.Role == schema.User && lastMsg.Content == state.UserQuery {
				isLastUser = true
			}
		}
		if !isLastUser {
			state.Messages = append(state.Messages, schema.UserMessage(state.UserQuery))
		}
	}

	// 清理上一轮的临时状态
	state.NextStepToolCalls = nil
	state.Rounds = 0

	return state, nil
}

// ChatModelNode 是 Graph 中的核心推理节点，负责：
// 1. 准备 ChatTemplate 所需的变量 (history, 双历法日期等)
// 2. 使用 ChatTemplate 生成 Messages
// 3. 调用 ChatModel 获取回复
// 4. 更新 AgentState (追加 AI Message, 填充 ToolCalls, 推进轮数)
//
// 模型调用失败时不向 Graph 返回错误，而是合成一条向用户致歉的
// 助手消息并清空 ToolCalls，让本次调用以可展示的文本收尾。
func ChatModelNode(ctx context.Context, state AgentState, chatModel model.ToolCallingChatModel, loc *time.Location, modelTimeout time.Duration) (AgentState, error) {
	now := time.Now().In(loc)
	inputVars := map[string]any{
		"date":        now.Format("2006-01-02"),
		"jalali_date": dates.ToJalali(now, loc),
		"time":        now.Format("15:04:05 MST"),
		"history":     state.Messages,
	}

	template := NewChatTemplate()
	messages, err := template.Format(ctx, inputVars)
	if err != nil {
		state.Messages = append(state.Messages, modelFailureMessage())
		state.NextStepToolCalls = nil
		return state, nil
	}

	// 单次模型调用设置独立超时，避免上游 context 无限期挂起
	callCtx := ctx
	if modelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, modelTimeout)
		defer cancel()
	}

	// 这里使用 Generate 而不是 Stream，因为需要完整的 ToolCalls 信息来做路由决策
	aiMsg, err := chatModel.Generate(callCtx, messages)
	if err != nil {
		state.Messages = append(state.Messages, modelFailureMessage())
		state.NextStepToolCalls = nil
		state.Rounds++
		return state, nil
	}

	state.Messages = append(state.Messages, aiMsg)
	state.NextStepToolCalls = aiMsg.ToolCalls
	state.Rounds++

	return state, nil
}

func modelFailureMessage() *schema.Message {
	return schema.AssistantMessage(
		"抱歉，我暂时无法连接到模型服务，请稍后再试。", nil)
}
